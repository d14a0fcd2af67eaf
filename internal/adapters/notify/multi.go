package notify

import (
	"context"
	"errors"

	"github.com/alejandrodnm/orbwatch/internal/domain"
	"github.com/alejandrodnm/orbwatch/internal/ports"
)

// Multi reparte cada alerta entre varios notificadores.
// Todos se intentan; el error combina los que fallaron.
type Multi []ports.Notifier

// Send implementa ports.Notifier.
func (m Multi) Send(ctx context.Context, destinations []domain.Destination, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, destinations, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
