package ports

import (
	"context"

	"github.com/alejandrodnm/orbwatch/internal/domain"
)

// Notifier entrega el texto de una alerta a uno o más destinos.
type Notifier interface {
	// Send envía el mensaje a los destinos dados. La política de reintentos,
	// si existe, es cosa de la implementación: el motor no reintenta.
	Send(ctx context.Context, destinations []domain.Destination, message string) error
}
