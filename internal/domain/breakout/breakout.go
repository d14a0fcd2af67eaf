package breakout

import (
	"fmt"
	"strings"

	"github.com/alejandrodnm/orbwatch/internal/domain"
)

// Policy decide, a partir del estado previo de un símbolo y una nueva muestra,
// el estado siguiente y si hay que alertar. Debe ser pura: sin efectos laterales.
type Policy interface {
	// Name devuelve el identificador de la política tal como aparece en la config.
	Name() string
	// Evaluate devuelve el nuevo estado y una señal (nil si no hay alerta).
	// Una observación sin precio deja el estado intacto y nunca alerta.
	Evaluate(prior domain.SymbolState, obs domain.Observation) (domain.SymbolState, *domain.Signal)
}

const (
	NameFixedAnchor = "fixed_anchor"
	NameMovingRange = "moving_range"
)

// Parse devuelve la política correspondiente al nombre configurado.
func Parse(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameFixedAnchor, "":
		return FixedAnchor{}, nil
	case NameMovingRange:
		return MovingRange{}, nil
	default:
		return nil, fmt.Errorf("breakout.Parse: unknown policy %q", name)
	}
}
