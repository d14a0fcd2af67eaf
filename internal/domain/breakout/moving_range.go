package breakout

import (
	"github.com/alejandrodnm/orbwatch/internal/domain"
)

// MovingRange sigue el máximo y el mínimo de la sesión y alerta cada vez que
// el precio los rompe (estrictamente). A diferencia de FixedAnchor es repetible.
type MovingRange struct{}

// Name implementa Policy.
func (MovingRange) Name() string { return NameMovingRange }

// Evaluate implementa Policy.
// Fuera de la banda de alertas los extremos se actualizan en silencio.
func (MovingRange) Evaluate(prior domain.SymbolState, obs domain.Observation) (domain.SymbolState, *domain.Signal) {
	if !obs.Price.Valid {
		return prior, nil
	}
	next := prior
	price := obs.Price.Decimal

	if !next.High.Valid || !next.Low.Valid {
		next.High = obs.Price
		next.Low = obs.Price
		return next, nil
	}

	var sig *domain.Signal
	switch {
	case price.GreaterThan(next.High.Decimal):
		sig = &domain.Signal{Kind: domain.KindNewHigh, Price: price, Reference: next.High.Decimal}
		next.High = obs.Price
	case price.LessThan(next.Low.Decimal):
		sig = &domain.Signal{Kind: domain.KindNewLow, Price: price, Reference: next.Low.Decimal}
		next.Low = obs.Price
	default:
		return next, nil
	}

	if !obs.AlertsAllowed {
		return next, nil
	}
	next.AlertSent = true
	next.Alerts++
	return next, sig
}
