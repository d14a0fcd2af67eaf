package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/orbwatch/internal/domain"
)

// AlertJournal guarda las alertas emitidas para auditoría.
// Nunca se relee para reconstruir el estado de la sesión.
type AlertJournal interface {
	// Record persiste una alerta, entregada o no.
	Record(ctx context.Context, alert domain.Alert) error

	// History devuelve las alertas registradas en el rango de tiempo dado.
	History(ctx context.Context, from, to time.Time) ([]domain.Alert, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
