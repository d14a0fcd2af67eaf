package storage

// sqlite.go: journal de alertas.
//
// Una fila por alerta disparada, entregada o no. Es solo auditoría: el estado
// de sesión nunca se reconstruye desde aquí.
//   - Precios como TEXT (decimal exacto, sin pasar por REAL).
//   - sent_at como unix ms para que los rangos comparen bien.
//   - Prune automático al arrancar: alertas > 90d.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/orbwatch/internal/domain"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
    id        TEXT PRIMARY KEY,
    symbol    TEXT    NOT NULL,
    kind      TEXT    NOT NULL,
    price     TEXT    NOT NULL,
    reference TEXT    NOT NULL,
    session   TEXT    NOT NULL,
    sent_at   INTEGER NOT NULL,
    message   TEXT    NOT NULL,
    delivered INTEGER NOT NULL DEFAULT 0,
    error     TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_alerts_sent    ON alerts(sent_at);
CREATE INDEX IF NOT EXISTS idx_alerts_session ON alerts(session, symbol);
`

const (
	retention     = 90 * 24 * time.Hour
	sessionLayout = "2006-01-02"
)

// SQLiteStorage implementa ports.AlertJournal usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada,
// aplica el schema y limpia alertas antiguas.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// Record guarda una alerta. Registrar dos veces el mismo ID actualiza el
// resultado de entrega.
func (s *SQLiteStorage) Record(ctx context.Context, a domain.Alert) error {
	delivered := 0
	if a.Delivered {
		delivered = 1
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, symbol, kind, price, reference, session, sent_at, message, delivered, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			delivered = excluded.delivered,
			error     = excluded.error`,
		a.ID,
		string(a.Symbol),
		string(a.Kind),
		a.Price.String(),
		a.Reference.String(),
		a.Session.Format(sessionLayout),
		a.At.UnixMilli(),
		a.Message,
		delivered,
		a.Error,
	); err != nil {
		return fmt.Errorf("storage.Record: insert alert %s: %w", a.ID, err)
	}
	return nil
}

// History devuelve las alertas con sent_at en [from, to], en orden cronológico.
func (s *SQLiteStorage) History(ctx context.Context, from, to time.Time) ([]domain.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, kind, price, reference, session, sent_at, message, delivered, error
		FROM alerts
		WHERE sent_at BETWEEN ? AND ?
		ORDER BY sent_at ASC, symbol ASC`,
		from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.History: query: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var (
			a                     domain.Alert
			sym, kind, price, ref string
			session               string
			sentAt                int64
			delivered             int
		)
		if err := rows.Scan(&a.ID, &sym, &kind, &price, &ref, &session, &sentAt, &a.Message, &delivered, &a.Error); err != nil {
			return nil, fmt.Errorf("storage.History: scan row: %w", err)
		}

		a.Symbol = domain.Symbol(sym)
		a.Kind = domain.AlertKind(kind)
		if a.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("storage.History: alert %s: price %q: %w", a.ID, price, err)
		}
		if a.Reference, err = decimal.NewFromString(ref); err != nil {
			return nil, fmt.Errorf("storage.History: alert %s: reference %q: %w", a.ID, ref, err)
		}
		a.Session, _ = time.Parse(sessionLayout, session)
		a.At = time.UnixMilli(sentAt).UTC()
		a.Delivered = delivered == 1
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld elimina alertas antiguas para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	s.db.ExecContext(ctx, `DELETE FROM alerts WHERE sent_at < ?`, cutoff)
}
