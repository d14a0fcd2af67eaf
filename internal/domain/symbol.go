package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Symbol es el ticker de un instrumento tal como lo entiende la fuente de precios.
type Symbol string

// Destination identifica un destino de notificación (p. ej. un chat_id de Telegram).
type Destination string

// Quote es lo que devuelve una fuente de precios para un símbolo.
type Quote struct {
	Symbol       Symbol
	Price        decimal.Decimal
	OpeningRange decimal.NullDecimal // opcional: no todas las fuentes lo publican
}

// NormalizeSymbols limpia el universo configurado: mayúsculas, sin vacíos ni duplicados.
// Conserva el orden de entrada.
func NormalizeSymbols(raw []string) []Symbol {
	out := make([]Symbol, 0, len(raw))
	seen := make(map[Symbol]struct{}, len(raw))
	for _, r := range raw {
		s := Symbol(strings.ToUpper(strings.TrimSpace(r)))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// FormatPrice formatea un precio con dos decimales, como lo muestran las alertas.
func FormatPrice(p decimal.Decimal) string {
	return p.StringFixed(2)
}
