package notify_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/alejandrodnm/orbwatch/internal/adapters/notify"
	"github.com/alejandrodnm/orbwatch/internal/domain"
	"github.com/stretchr/testify/assert"
)

type failingNotifier struct{ calls int }

func (f *failingNotifier) Send(context.Context, []domain.Destination, string) error {
	f.calls++
	return errors.New("boom")
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	var buf bytes.Buffer
	bad := &failingNotifier{}
	m := notify.Multi{bad, notify.NewConsoleWriter(&buf)}

	err := m.Send(context.Background(), nil, "New High for X: Current Price 2.00 broke previous high 1.00")
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 1, bad.calls)
	assert.Contains(t, buf.String(), "New High for X", "later notifiers still run")
}

func TestMulti_Empty(t *testing.T) {
	assert.NoError(t, notify.Multi{}.Send(context.Background(), nil, "x"))
}
