package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/orbwatch/config"
	"github.com/alejandrodnm/orbwatch/internal/adapters/notify"
	"github.com/alejandrodnm/orbwatch/internal/adapters/storage"
)

// printHistory imprime las alertas del journal de la última ventana d.
func printHistory(cfg *config.Config, console *notify.Console, d time.Duration) error {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	to := time.Now()
	alerts, err := store.History(ctx, to.Add(-d), to)
	if err != nil {
		return err
	}
	console.PrintHistory(alerts)
	return nil
}
