package yahoo

import "github.com/shopspring/decimal"

// DTOs raw del endpoint /v8/finance/chart. Solo se usan dentro de este paquete.
// Los precios se decodifican directamente a decimal para no pasar por float64.

// chartResponse es la respuesta de GET /v8/finance/chart/{symbol}.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta       chartMeta   `json:"meta"`
	Timestamp  []int64     `json:"timestamp"`
	Indicators chartSeries `json:"indicators"`
}

// chartMeta trae el último precio negociado y la zona horaria del exchange.
type chartMeta struct {
	Symbol               string              `json:"symbol"`
	Currency             string              `json:"currency"`
	ExchangeTimezoneName string              `json:"exchangeTimezoneName"`
	RegularMarketPrice   decimal.NullDecimal `json:"regularMarketPrice"`
}

type chartSeries struct {
	Quote []chartQuote `json:"quote"`
}

// chartQuote son las velas OHLC; Yahoo rellena con null los huecos.
type chartQuote struct {
	Open  []decimal.NullDecimal `json:"open"`
	Close []decimal.NullDecimal `json:"close"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}
