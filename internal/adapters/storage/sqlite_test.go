package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/orbwatch/internal/adapters/storage"
	"github.com/alejandrodnm/orbwatch/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeAlert(sym domain.Symbol, price, ref string, at time.Time) domain.Alert {
	sig := domain.Signal{
		Kind:      domain.KindAbove,
		Price:     decimal.RequireFromString(price),
		Reference: decimal.RequireFromString(ref),
	}
	a := domain.NewAlert(sym, sig, time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC), at)
	a.Delivered = true
	return a
}

func TestSQLiteStorage_RecordAndHistory(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC().Truncate(time.Millisecond)
	first := makeAlert("INFY.NS", "1523.45", "1501.25", now.Add(-2*time.Minute))
	second := makeAlert("TCS.NS", "4010.1", "3999.95", now)
	second.Delivered = false
	second.Error = "telegram down"

	ctx := context.Background()
	require.NoError(t, db.Record(ctx, second))
	require.NoError(t, db.Record(ctx, first))

	history, err := db.History(ctx, now.Add(-time.Hour), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Orden cronológico
	assert.Equal(t, first.ID, history[0].ID)
	assert.Equal(t, second.ID, history[1].ID)

	h := history[0]
	assert.Equal(t, domain.Symbol("INFY.NS"), h.Symbol)
	assert.Equal(t, domain.KindAbove, h.Kind)
	assert.Equal(t, "1523.45", h.Price.String(), "prices survive exactly")
	assert.Equal(t, "1501.25", h.Reference.String())
	assert.Equal(t, first.Message, h.Message)
	assert.True(t, h.At.Equal(first.At))
	assert.Equal(t, first.Session.Format("2006-01-02"), h.Session.Format("2006-01-02"))
	assert.True(t, h.Delivered)

	assert.False(t, history[1].Delivered)
	assert.Equal(t, "telegram down", history[1].Error)
}

func TestSQLiteStorage_HistoryRange(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	ctx := context.Background()
	require.NoError(t, db.Record(ctx, makeAlert("OLD.NS", "1", "2", now.Add(-48*time.Hour))))
	require.NoError(t, db.Record(ctx, makeAlert("NEW.NS", "1", "2", now)))

	history, err := db.History(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.Symbol("NEW.NS"), history[0].Symbol)
}

func TestSQLiteStorage_RecordSameIDUpdatesDelivery(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	a := makeAlert("X", "2", "1", time.Now().UTC())
	a.Delivered = false
	require.NoError(t, db.Record(ctx, a))

	a.Delivered = true
	require.NoError(t, db.Record(ctx, a))

	history, err := db.History(ctx, a.At.Add(-time.Second), a.At.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Delivered)
}

func TestSQLiteStorage_EmptyHistory(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	history, err := db.History(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Empty(t, history)
}
