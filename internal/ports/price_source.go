package ports

import (
	"context"

	"github.com/alejandrodnm/orbwatch/internal/domain"
)

// PriceSource obtiene la cotización actual de un símbolo.
type PriceSource interface {
	// Fetch devuelve el precio actual y, si la fuente lo publica, el opening range.
	// Devuelve domain.ErrNoData si la fuente responde sin precio. Cualquier error
	// es local al símbolo: el motor lo registra y sigue con el resto.
	Fetch(ctx context.Context, symbol domain.Symbol) (domain.Quote, error)
}
