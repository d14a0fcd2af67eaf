package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/alejandrodnm/orbwatch/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	defaultBase = "https://query1.finance.yahoo.com"

	// Yahoo no documenta límites; 5/s con ráfaga de 10 no dispara 429 con
	// universos de ~200 símbolos cada 4 minutos.
	defaultRatePerSec = 5
	defaultBurst      = 10

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// errClient marca respuestas 4xx: no se reintentan.
var errClient = errors.New("client error")

// Client es el HTTP client del endpoint chart de Yahoo Finance, con rate
// limiting y retries. Implementa ports.PriceSource.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
}

// NewClient crea un Client contra base. Si base está vacío usa el host de
// producción; si ratePerSec <= 0 usa el límite por defecto.
func NewClient(base string, ratePerSec float64) *Client {
	if base == "" {
		base = defaultBase
	}
	if ratePerSec <= 0 {
		ratePerSec = defaultRatePerSec
	}
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), defaultBurst),
	}
}

// Fetch devuelve el último precio del símbolo y, si la sesión ya tiene
// velas, el open de la primera como precio de opening range.
// Devuelve domain.ErrNoData si Yahoo no tiene precio.
func (c *Client) Fetch(ctx context.Context, sym domain.Symbol) (domain.Quote, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=5m&range=1d", c.base, url.PathEscape(string(sym)))

	var resp chartResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("yahoo.Client.Fetch: %s: %w", sym, err)
	}
	if e := resp.Chart.Error; e != nil {
		return domain.Quote{}, fmt.Errorf("yahoo.Client.Fetch: %s: %s: %s", sym, e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return domain.Quote{}, fmt.Errorf("yahoo.Client.Fetch: %s: %w", sym, domain.ErrNoData)
	}
	return toQuote(sym, resp.Chart.Result[0])
}

// toQuote convierte un chartResult en Quote.
func toQuote(sym domain.Symbol, r chartResult) (domain.Quote, error) {
	q := domain.Quote{Symbol: sym}

	var series chartQuote
	if len(r.Indicators.Quote) > 0 {
		series = r.Indicators.Quote[0]
	}

	switch {
	case r.Meta.RegularMarketPrice.Valid:
		q.Price = r.Meta.RegularMarketPrice.Decimal
	default:
		last, ok := lastValid(series.Close)
		if !ok {
			return domain.Quote{}, fmt.Errorf("yahoo.Client.Fetch: %s: %w", sym, domain.ErrNoData)
		}
		q.Price = last
	}

	for _, o := range series.Open {
		if o.Valid {
			q.OpeningRange = o
			break
		}
	}
	return q, nil
}

func lastValid(values []decimal.NullDecimal) (decimal.Decimal, bool) {
	for i := len(values) - 1; i >= 0; i-- {
		if values[i].Valid {
			return values[i].Decimal, true
		}
	}
	return decimal.Decimal{}, false
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, u string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		// Sin User-Agent Yahoo responde 429 a casi todo.
		req.Header.Set("User-Agent", "Mozilla/5.0 (orbwatch)")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial.
// 429 y 5xx se reintentan; el resto de 4xx es definitivo.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by API", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("%w %d: %s", errClient, resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
