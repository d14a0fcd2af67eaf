package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AlertKind clasifica la ruptura detectada.
type AlertKind string

const (
	KindAbove   AlertKind = "above"    // precio por encima del opening range
	KindBelow   AlertKind = "below"    // precio por debajo del opening range
	KindNewHigh AlertKind = "new_high" // nuevo máximo de la sesión
	KindNewLow  AlertKind = "new_low"  // nuevo mínimo de la sesión
)

// Signal es la decisión del detector cuando hay que alertar.
// Reference es el ancla (fixed-anchor) o el extremo anterior (moving-range).
type Signal struct {
	Kind      AlertKind
	Price     decimal.Decimal
	Reference decimal.Decimal
}

// Message devuelve el texto de la notificación para el símbolo dado.
func (s Signal) Message(sym Symbol) string {
	price, ref := FormatPrice(s.Price), FormatPrice(s.Reference)
	switch s.Kind {
	case KindAbove:
		return fmt.Sprintf("Price Alert for %s: Current Price %s is greater than Opening Range Price %s", sym, price, ref)
	case KindBelow:
		return fmt.Sprintf("Price Alert for %s: Current Price %s is less than Opening Range Price %s", sym, price, ref)
	case KindNewHigh:
		return fmt.Sprintf("New High for %s: Current Price %s broke previous high %s", sym, price, ref)
	case KindNewLow:
		return fmt.Sprintf("New Low for %s: Current Price %s broke previous low %s", sym, price, ref)
	default:
		return fmt.Sprintf("Price Alert for %s: Current Price %s", sym, price)
	}
}

// Alert es una alerta emitida, tal como se despacha y se guarda en el journal.
type Alert struct {
	ID        string
	Symbol    Symbol
	Kind      AlertKind
	Price     decimal.Decimal
	Reference decimal.Decimal
	Session   time.Time // día de trading (medianoche local)
	At        time.Time
	Message   string
	Delivered bool
	Error     string // error de envío, vacío si se entregó
}

// NewAlert crea la alerta para una señal del detector.
func NewAlert(sym Symbol, sig Signal, session, at time.Time) Alert {
	return Alert{
		ID:        uuid.New().String(),
		Symbol:    sym,
		Kind:      sig.Kind,
		Price:     sig.Price,
		Reference: sig.Reference,
		Session:   session,
		At:        at,
		Message:   sig.Message(sym),
	}
}
