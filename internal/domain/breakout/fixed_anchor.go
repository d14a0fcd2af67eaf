package breakout

import (
	"github.com/alejandrodnm/orbwatch/internal/domain"
)

// FixedAnchor alerta una única vez por sesión cuando el precio se separa del
// opening range. Una vez enviada la alerta el símbolo queda silenciado hasta
// el reset de la sesión, aunque el precio vuelva y cruce otra vez.
type FixedAnchor struct{}

// Name implementa Policy.
func (FixedAnchor) Name() string { return NameFixedAnchor }

// Evaluate implementa Policy.
//
// Si aún no hay referencia se usa el opening range de la fuente (y la muestra
// se evalúa en el mismo paso); si la fuente no lo publica, el primer precio
// pasa a ser la referencia y no se alerta.
func (FixedAnchor) Evaluate(prior domain.SymbolState, obs domain.Observation) (domain.SymbolState, *domain.Signal) {
	if !obs.Price.Valid {
		return prior, nil
	}
	next := prior
	price := obs.Price.Decimal

	if !next.Reference.Valid {
		if !obs.OpeningRange.Valid {
			next.Reference = obs.Price
			return next, nil
		}
		next.Reference = obs.OpeningRange
	}

	if next.AlertSent || !obs.AlertsAllowed {
		return next, nil
	}

	ref := next.Reference.Decimal
	var kind domain.AlertKind
	switch price.Cmp(ref) {
	case 1:
		kind = domain.KindAbove
	case -1:
		kind = domain.KindBelow
	default:
		return next, nil
	}

	next.AlertSent = true
	next.Alerts++
	return next, &domain.Signal{Kind: kind, Price: price, Reference: ref}
}
