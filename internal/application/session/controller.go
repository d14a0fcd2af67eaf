package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrInvalidWindow indica una ventana de sesión mal configurada.
// Es fatal al arrancar: el proceso nunca debe llegar a OPEN con esta config.
var ErrInvalidWindow = errors.New("invalid session window")

// Config describe la ventana de trading tal como viene de la configuración.
type Config struct {
	Open        string   // "09:15"
	Close       string   // "15:30"
	Timezone    string   // IANA, p. ej. "Asia/Kolkata"
	TradingDays []string // vacío = lunes a viernes
	AlertFrom   string   // banda de alertas, opcional
	AlertUntil  string
}

// Transition describe un cambio aplicado por Tick.
type Transition struct {
	From  Window
	To    Window
	Reset bool // true si se borró el estado de todos los símbolos
	At    time.Time
}

// Controller es la máquina de estados que abre y cierra la sesión y dispara
// el reset diario. Además responde si se puede hacer polling o alertar.
type Controller struct {
	state      *State
	loc        *time.Location
	open       Clock
	close      Clock
	days       map[time.Weekday]bool
	alertFrom  Clock
	alertUntil Clock
	band       bool
}

// NewController valida la config y crea el controlador sobre el estado dado.
// Cualquier error devuelto envuelve ErrInvalidWindow.
func NewController(cfg Config, state *State) (*Controller, error) {
	if state == nil {
		return nil, fmt.Errorf("session.NewController: nil state: %w", ErrInvalidWindow)
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("session.NewController: timezone %q: %v: %w", tz, err, ErrInvalidWindow)
	}
	open, err := ParseClock(cfg.Open)
	if err != nil {
		return nil, fmt.Errorf("session.NewController: open: %v: %w", err, ErrInvalidWindow)
	}
	closeAt, err := ParseClock(cfg.Close)
	if err != nil {
		return nil, fmt.Errorf("session.NewController: close: %v: %w", err, ErrInvalidWindow)
	}
	if open.Minutes() >= closeAt.Minutes() {
		return nil, fmt.Errorf("session.NewController: open %s must be before close %s: %w", open, closeAt, ErrInvalidWindow)
	}

	days := Weekdays()
	if len(cfg.TradingDays) > 0 {
		days, err = ParseWeekdays(cfg.TradingDays)
		if err != nil {
			return nil, fmt.Errorf("session.NewController: %v: %w", err, ErrInvalidWindow)
		}
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("session.NewController: no trading days: %w", ErrInvalidWindow)
	}

	c := &Controller{state: state, loc: loc, open: open, close: closeAt, days: days}

	if cfg.AlertFrom != "" || cfg.AlertUntil != "" {
		from, err := ParseClock(cfg.AlertFrom)
		if err != nil {
			return nil, fmt.Errorf("session.NewController: alert_from: %v: %w", err, ErrInvalidWindow)
		}
		until, err := ParseClock(cfg.AlertUntil)
		if err != nil {
			return nil, fmt.Errorf("session.NewController: alert_until: %v: %w", err, ErrInvalidWindow)
		}
		if from.Minutes() >= until.Minutes() || from.Minutes() < open.Minutes() || until.Minutes() > closeAt.Minutes() {
			return nil, fmt.Errorf("session.NewController: alert band %s-%s outside session %s-%s: %w",
				from, until, open, closeAt, ErrInvalidWindow)
		}
		c.alertFrom, c.alertUntil, c.band = from, until, true
	}
	return c, nil
}

// Location devuelve la zona horaria de la sesión.
func (c *Controller) Location() *time.Location { return c.loc }

// Tick avanza la máquina de estados hasta now y devuelve las transiciones aplicadas.
//
//	día nuevo (medianoche o arranque) -> reset, PRE_OPEN si el día opera, si no CLOSED
//	PRE_OPEN y open <= t < close      -> OPEN
//	PRE_OPEN|OPEN y t >= close        -> CLOSED
func (c *Controller) Tick(now time.Time) []Transition {
	local := now.In(c.loc)
	day := dayOf(local)

	c.state.mu.Lock()
	defer c.state.mu.Unlock()

	var out []Transition
	if !c.state.day.Equal(day) {
		from := c.state.window
		to := Closed
		if c.days[local.Weekday()] {
			to = PreOpen
		}
		c.state.resetLocked(day, to)
		out = append(out, Transition{From: from, To: to, Reset: true, At: now})
	}

	t := minuteOfDay(local)
	move := func(to Window) {
		out = append(out, Transition{From: c.state.window, To: to, At: now})
		c.state.window = to
	}
	switch c.state.window {
	case PreOpen:
		if t >= c.close.offset() {
			move(Closed)
		} else if t >= c.open.offset() {
			move(Open)
		}
	case Open:
		if t >= c.close.offset() {
			move(Closed)
		}
	}
	return out
}

// ShouldPoll devuelve true solo dentro de [open, close) de un día de trading
// con la sesión en OPEN.
func (c *Controller) ShouldPoll(now time.Time) bool {
	return c.Permits(now, c.state.Window())
}

// AlertEligible es ShouldPoll restringido a la banda de alertas, si la hay.
func (c *Controller) AlertEligible(now time.Time) bool {
	return c.AlertsAllowed(now, c.state.Window())
}

// Permits es ShouldPoll con la ventana ya leída por el llamador
// (el motor la obtiene de State.Acquire al empezar el ciclo).
func (c *Controller) Permits(now time.Time, w Window) bool {
	if w != Open {
		return false
	}
	local := now.In(c.loc)
	if !c.days[local.Weekday()] {
		return false
	}
	t := minuteOfDay(local)
	return t >= c.open.offset() && t < c.close.offset()
}

// AlertsAllowed es AlertEligible con la ventana ya leída por el llamador.
func (c *Controller) AlertsAllowed(now time.Time, w Window) bool {
	if !c.Permits(now, w) {
		return false
	}
	if !c.band {
		return true
	}
	t := minuteOfDay(now.In(c.loc))
	return t >= c.alertFrom.offset() && t < c.alertUntil.offset()
}

// Run hace Tick al arrancar y luego cada resolution hasta que el contexto se cancele.
func (c *Controller) Run(ctx context.Context, resolution time.Duration) {
	if resolution <= 0 {
		resolution = 15 * time.Second
	}
	slog.Info("session controller starting",
		"open", c.open, "close", c.close, "tz", c.loc.String(), "resolution", resolution)

	c.logTransitions(c.Tick(time.Now()))

	ticker := time.NewTicker(resolution)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("session controller stopped")
			return
		case now := <-ticker.C:
			c.logTransitions(c.Tick(now))
		}
	}
}

func (c *Controller) logTransitions(ts []Transition) {
	for _, t := range ts {
		if t.Reset {
			slog.Info("session reset", "day", t.At.In(c.loc).Format("2006-01-02"), "window", t.To.String())
			continue
		}
		slog.Info("session window changed", "from", t.From.String(), "to", t.To.String())
	}
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
