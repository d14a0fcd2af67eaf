package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/orbwatch/internal/application/session"
	"github.com/alejandrodnm/orbwatch/internal/domain"
	"github.com/alejandrodnm/orbwatch/internal/domain/breakout"
	"github.com/alejandrodnm/orbwatch/internal/ports"
)

// Gate es lo que el motor necesita del controlador de sesión.
// La ventana la lee el motor al empezar el ciclo (State.Acquire).
type Gate interface {
	Permits(now time.Time, w session.Window) bool
	AlertsAllowed(now time.Time, w session.Window) bool
}

// Config contiene la configuración del motor de polling.
type Config struct {
	Interval      time.Duration
	Workers       int // goroutines para el fetch paralelo (0 = NumCPU*2)
	FetchTimeout  time.Duration
	NotifyTimeout time.Duration
	Destinations  []domain.Destination
	Clock         func() time.Time // nil = time.Now
}

// DefaultConfig devuelve la configuración por defecto: ciclos de 4 minutos.
func DefaultConfig() Config {
	return Config{
		Interval:      4 * time.Minute,
		Workers:       8,
		FetchTimeout:  15 * time.Second,
		NotifyTimeout: 10 * time.Second,
	}
}

// CycleReport resume un ciclo de polling.
type CycleReport struct {
	Skipped  bool // la sesión no permitía polling: no se hizo ningún fetch
	Window   session.Window
	Polled   int
	Failed   int
	Alerts   []domain.Alert
	Duration time.Duration
}

// Engine es el orquestador del loop de polling y alertas.
type Engine struct {
	cfg      Config
	state    *session.State
	gate     Gate
	policy   breakout.Policy
	source   ports.PriceSource
	notifier ports.Notifier
	journal  ports.AlertJournal // opcional
	now      func() time.Time

	cycleMu sync.Mutex // un solo ciclo a la vez
}

// New crea un Engine con todas las dependencias inyectadas.
// journal puede ser nil.
func New(
	cfg Config,
	state *session.State,
	gate Gate,
	policy breakout.Policy,
	source ports.PriceSource,
	notifier ports.Notifier,
	journal ports.AlertJournal,
) *Engine {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = def.NotifyTimeout
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:      cfg,
		state:    state,
		gate:     gate,
		policy:   policy,
		source:   source,
		notifier: notifier,
		journal:  journal,
		now:      now,
	}
}

// Run ejecuta el loop de polling hasta que el contexto se cancele.
// Si un ciclo dura más que el intervalo, el ticker descarta los ticks
// perdidos: el siguiente ciclo se retrasa, nunca se solapa.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting",
		"interval", e.cfg.Interval,
		"policy", e.policy.Name(),
		"symbols", len(e.state.Symbols()),
		"workers", e.cfg.Workers,
	)

	e.runCycle(ctx)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopped")
			return nil
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// runCycle ejecuta un ciclo y registra el resumen.
func (e *Engine) runCycle(ctx context.Context) {
	report := e.RunCycle(ctx)
	if report.Skipped {
		slog.Debug("cycle skipped, session not open", "window", report.Window.String())
		return
	}
	slog.Info("poll cycle complete",
		"polled", report.Polled,
		"failed", report.Failed,
		"alerts", len(report.Alerts),
		"duration", report.Duration.Round(time.Millisecond),
	)
}

// RunCycle ejecuta exactamente un ciclo sobre todo el universo.
//
// Mantiene el estado de sesión en modo compartido durante todo el ciclo, así
// que un reset espera a que termine. Si la sesión no permite polling no hace
// nada. Un error en un símbolo nunca corta el ciclo ni toca a otros símbolos.
func (e *Engine) RunCycle(ctx context.Context) CycleReport {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	start := e.now()
	window, day, release := e.state.Acquire()
	defer release()

	if !e.gate.Permits(start, window) {
		return CycleReport{Skipped: true, Window: window}
	}
	allowed := e.gate.AlertsAllowed(start, window)

	results := pollConcurrent(ctx, e.state.Symbols(), e.cfg.Workers, func(ctx context.Context, sym domain.Symbol) symbolResult {
		return e.processSymbol(ctx, sym, allowed, day)
	})

	report := CycleReport{Window: window}
	for _, r := range results {
		if r.err != nil {
			report.Failed++
			continue
		}
		report.Polled++
		if r.alert != nil {
			report.Alerts = append(report.Alerts, *r.alert)
		}
	}
	report.Duration = e.now().Sub(start)
	return report
}

// processSymbol hace fetch → detector → notificación para un símbolo.
func (e *Engine) processSymbol(ctx context.Context, sym domain.Symbol, allowed bool, day time.Time) symbolResult {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	quote, err := e.source.Fetch(fetchCtx, sym)
	cancel()
	if err != nil {
		slog.Warn("price fetch failed", "symbol", sym, "err", err)
		return symbolResult{err: err}
	}

	obs := domain.ObservationFromQuote(quote, allowed)
	sig := e.state.Apply(sym, func(prior domain.SymbolState) (domain.SymbolState, *domain.Signal) {
		return e.policy.Evaluate(prior, obs)
	})
	if sig == nil {
		return symbolResult{}
	}

	alert := domain.NewAlert(sym, *sig, day, e.now())
	alert = e.dispatch(ctx, alert)
	return symbolResult{alert: &alert}
}

// dispatch envía la alerta y la registra en el journal.
//
// El estado ya quedó marcado como alertado: si el envío falla no se reintenta,
// ni ahora ni en el próximo ciclo. El envío no se corta por la cancelación del
// ciclo (la alerta ya se consumió), solo por su propio timeout.
func (e *Engine) dispatch(ctx context.Context, alert domain.Alert) domain.Alert {
	base := context.WithoutCancel(ctx)

	sendCtx, cancel := context.WithTimeout(base, e.cfg.NotifyTimeout)
	err := e.notifier.Send(sendCtx, e.cfg.Destinations, alert.Message)
	cancel()

	if err != nil {
		alert.Error = err.Error()
		slog.Error("alert delivery failed",
			"symbol", alert.Symbol,
			"kind", alert.Kind,
			"err", err,
		)
	} else {
		alert.Delivered = true
		slog.Info("breakout alert",
			"symbol", alert.Symbol,
			"kind", alert.Kind,
			"price", domain.FormatPrice(alert.Price),
			"reference", domain.FormatPrice(alert.Reference),
		)
	}

	if e.journal != nil {
		recCtx, cancel := context.WithTimeout(base, e.cfg.NotifyTimeout)
		if err := e.journal.Record(recCtx, alert); err != nil {
			slog.Warn("journal error", "symbol", alert.Symbol, "err", err)
		}
		cancel()
	}
	return alert
}
