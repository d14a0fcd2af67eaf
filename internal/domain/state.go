package domain

import "github.com/shopspring/decimal"

// SymbolState es el estado de un símbolo durante una sesión.
// Lo posee en exclusiva el SessionState; se reinicia al empezar cada sesión.
type SymbolState struct {
	Reference decimal.NullDecimal // precio de apertura (opening range)
	High      decimal.NullDecimal
	Low       decimal.NullDecimal
	AlertSent bool
	Alerts    int // alertas emitidas en la sesión
}

// IsZero devuelve true si el estado no tiene ningún dato de la sesión.
func (s SymbolState) IsZero() bool {
	return !s.Reference.Valid && !s.High.Valid && !s.Low.Valid && !s.AlertSent && s.Alerts == 0
}

// Observation es una muestra de precio lista para el detector.
//
// Price inválido significa "sin dato" (la fuente falló o no devolvió precio).
// AlertsAllowed es false fuera de la banda de alertas: el estado se sigue
// manteniendo pero no se emite ninguna señal.
type Observation struct {
	Price         decimal.NullDecimal
	OpeningRange  decimal.NullDecimal
	AlertsAllowed bool
}

// ObservationFromQuote construye una Observation a partir de una cotización.
func ObservationFromQuote(q Quote, alertsAllowed bool) Observation {
	return Observation{
		Price:         decimal.NewNullDecimal(q.Price),
		OpeningRange:  q.OpeningRange,
		AlertsAllowed: alertsAllowed,
	}
}
