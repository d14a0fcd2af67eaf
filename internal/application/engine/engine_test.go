package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/orbwatch/internal/application/engine"
	"github.com/alejandrodnm/orbwatch/internal/application/session"
	"github.com/alejandrodnm/orbwatch/internal/domain"
	"github.com/alejandrodnm/orbwatch/internal/domain/breakout"
	"github.com/alejandrodnm/orbwatch/internal/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

// mockPriceSource devuelve, por símbolo, la siguiente cotización de la secuencia.
type mockPriceSource struct {
	mu     sync.Mutex
	prices map[domain.Symbol][]string
	errs   map[domain.Symbol]error
	block  map[domain.Symbol]bool // espera hasta que el ctx expire
	calls  map[domain.Symbol]int
}

func newMockSource() *mockPriceSource {
	return &mockPriceSource{
		prices: make(map[domain.Symbol][]string),
		errs:   make(map[domain.Symbol]error),
		block:  make(map[domain.Symbol]bool),
		calls:  make(map[domain.Symbol]int),
	}
}

func (m *mockPriceSource) Fetch(ctx context.Context, sym domain.Symbol) (domain.Quote, error) {
	m.mu.Lock()
	m.calls[sym]++
	block := m.block[sym]
	err := m.errs[sym]
	var price string
	if seq := m.prices[sym]; len(seq) > 0 {
		price = seq[0]
		m.prices[sym] = seq[1:]
	}
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return domain.Quote{}, ctx.Err()
	}
	if err != nil {
		return domain.Quote{}, err
	}
	if price == "" {
		return domain.Quote{}, domain.ErrNoData
	}
	return domain.Quote{Symbol: sym, Price: decimal.RequireFromString(price)}, nil
}

func (m *mockPriceSource) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

type mockNotifier struct {
	mu       sync.Mutex
	messages []string
	dests    [][]domain.Destination
	err      error
}

func (m *mockNotifier) Send(_ context.Context, dests []domain.Destination, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	m.dests = append(m.dests, dests)
	return m.err
}

func (m *mockNotifier) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

type mockJournal struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (m *mockJournal) Record(_ context.Context, a domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *mockJournal) History(context.Context, time.Time, time.Time) ([]domain.Alert, error) {
	return nil, nil
}

func (m *mockJournal) Close() error { return nil }

// openGate permite siempre el polling; alerts controla la banda.
type openGate struct{ alerts bool }

func (g openGate) Permits(time.Time, session.Window) bool       { return true }
func (g openGate) AlertsAllowed(time.Time, session.Window) bool { return g.alerts }

// --- helpers ---

func newEngine(t *testing.T, symbols []domain.Symbol, policy breakout.Policy, src *mockPriceSource, n *mockNotifier, j *mockJournal) (*engine.Engine, *session.State) {
	t.Helper()
	st := session.NewState(symbols)
	cfg := engine.DefaultConfig()
	cfg.FetchTimeout = 50 * time.Millisecond
	cfg.NotifyTimeout = 50 * time.Millisecond
	cfg.Destinations = []domain.Destination{"-100123"}
	var journal ports.AlertJournal
	if j != nil {
		journal = j
	}
	return engine.New(cfg, st, openGate{alerts: true}, policy, src, n, journal), st
}

func seedReference(st *session.State, sym domain.Symbol, ref string) {
	st.Apply(sym, func(s domain.SymbolState) (domain.SymbolState, *domain.Signal) {
		s.Reference = decimal.NewNullDecimal(decimal.RequireFromString(ref))
		return s, nil
	})
}

// --- tests ---

func TestEngine_EndToEndFixedAnchor(t *testing.T) {
	src := newMockSource()
	src.prices["X"] = []string{"100.00", "100.00", "105.50", "95.00"}
	n := &mockNotifier{}
	j := &mockJournal{}

	e, st := newEngine(t, []domain.Symbol{"X"}, breakout.FixedAnchor{}, src, n, j)
	seedReference(st, "X", "100.00")

	var perCycle [][]domain.Alert
	for i := 0; i < 4; i++ {
		r := e.RunCycle(context.Background())
		require.False(t, r.Skipped)
		perCycle = append(perCycle, r.Alerts)
	}

	assert.Empty(t, perCycle[0])
	assert.Empty(t, perCycle[1])
	require.Len(t, perCycle[2], 1)
	a := perCycle[2][0]
	assert.Equal(t, domain.Symbol("X"), a.Symbol)
	assert.Equal(t, domain.KindAbove, a.Kind)
	assert.True(t, a.Price.Equal(decimal.RequireFromString("105.50")))
	assert.True(t, a.Delivered)
	assert.Empty(t, perCycle[3], "already alerted this session")

	require.Len(t, n.sent(), 1)
	assert.Equal(t, "Price Alert for X: Current Price 105.50 is greater than Opening Range Price 100.00", n.sent()[0])
	assert.Equal(t, []domain.Destination{"-100123"}, n.dests[0])

	require.Len(t, j.alerts, 1)
	assert.Equal(t, a.ID, j.alerts[0].ID)
}

func TestEngine_FailureOfOneSymbolDoesNotBlockOthers(t *testing.T) {
	src := newMockSource()
	src.block["A"] = true // timeout
	src.prices["B"] = []string{"205"}
	n := &mockNotifier{}

	e, st := newEngine(t, []domain.Symbol{"A", "B"}, breakout.FixedAnchor{}, src, n, nil)
	seedReference(st, "A", "100")
	seedReference(st, "B", "200")

	r := e.RunCycle(context.Background())

	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 1, r.Polled)
	require.Len(t, r.Alerts, 1)
	assert.Equal(t, domain.Symbol("B"), r.Alerts[0].Symbol)
	require.Len(t, n.sent(), 1)

	a := st.Get("A")
	assert.False(t, a.AlertSent)
	assert.True(t, a.Reference.Decimal.Equal(decimal.RequireFromString("100")), "failed fetch leaves state untouched")
}

func TestEngine_FetchErrorsAreLocal(t *testing.T) {
	src := newMockSource()
	src.errs["A"] = errors.New("yahoo: 503")
	src.prices["C"] = []string{"10"}
	// B sin precios -> ErrNoData
	n := &mockNotifier{}

	e, st := newEngine(t, []domain.Symbol{"A", "B", "C"}, breakout.FixedAnchor{}, src, n, nil)
	r := e.RunCycle(context.Background())

	assert.Equal(t, 2, r.Failed)
	assert.Equal(t, 1, r.Polled)
	assert.True(t, st.Get("A").IsZero())
	assert.True(t, st.Get("B").IsZero(), "no data is never a zero price")
	assert.True(t, st.Get("C").Reference.Valid)
	assert.Empty(t, n.sent())
}

func TestEngine_SendFailureIsNotRetried(t *testing.T) {
	src := newMockSource()
	src.prices["X"] = []string{"110", "120", "90"}
	n := &mockNotifier{err: errors.New("telegram down")}
	j := &mockJournal{}

	e, st := newEngine(t, []domain.Symbol{"X"}, breakout.FixedAnchor{}, src, n, j)
	seedReference(st, "X", "100")

	r := e.RunCycle(context.Background())
	require.Len(t, r.Alerts, 1)
	assert.False(t, r.Alerts[0].Delivered)
	assert.Equal(t, "telegram down", r.Alerts[0].Error)
	assert.True(t, st.Get("X").AlertSent)

	e.RunCycle(context.Background())
	e.RunCycle(context.Background())
	assert.Len(t, n.sent(), 1, "attempted once, never retried")
	require.Len(t, j.alerts, 1)
	assert.False(t, j.alerts[0].Delivered)
}

func TestEngine_MovingRangeRepeats(t *testing.T) {
	src := newMockSource()
	src.prices["BTC"] = []string{"100", "101", "101", "102.5", "99", "100"}
	n := &mockNotifier{}

	e, _ := newEngine(t, []domain.Symbol{"BTC"}, breakout.MovingRange{}, src, n, nil)
	var kinds []domain.AlertKind
	for i := 0; i < 6; i++ {
		for _, a := range e.RunCycle(context.Background()).Alerts {
			kinds = append(kinds, a.Kind)
		}
	}
	assert.Equal(t, []domain.AlertKind{domain.KindNewHigh, domain.KindNewHigh, domain.KindNewLow}, kinds)
}

func TestEngine_AlertsSuppressedOutsideBand(t *testing.T) {
	src := newMockSource()
	src.prices["X"] = []string{"100", "120"}
	n := &mockNotifier{}

	st := session.NewState([]domain.Symbol{"X"})
	e := engine.New(engine.DefaultConfig(), st, openGate{alerts: false}, breakout.FixedAnchor{}, src, n, nil)

	e.RunCycle(context.Background())
	r := e.RunCycle(context.Background())
	assert.Equal(t, 1, r.Polled)
	assert.Empty(t, r.Alerts)
	assert.Empty(t, n.sent())
	assert.True(t, st.Get("X").Reference.Valid, "state is still maintained")
	assert.False(t, st.Get("X").AlertSent)
}

func TestEngine_SkipsWhenSessionClosed(t *testing.T) {
	src := newMockSource()
	src.prices["X"] = []string{"100"}
	n := &mockNotifier{}

	st := session.NewState([]domain.Symbol{"X"})
	ctrl, err := session.NewController(session.Config{Open: "09:15", Close: "15:30", Timezone: "UTC"}, st)
	require.NoError(t, err)

	// Miércoles 08:00 UTC: PRE_OPEN.
	now := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	ctrl.Tick(now)

	cfg := engine.DefaultConfig()
	cfg.Clock = func() time.Time { return now }
	e := engine.New(cfg, st, ctrl, breakout.FixedAnchor{}, src, n, nil)

	r := e.RunCycle(context.Background())
	assert.True(t, r.Skipped)
	assert.Equal(t, session.PreOpen, r.Window)
	assert.Equal(t, 0, src.totalCalls(), "no partial cycles")

	now = time.Date(2026, 10, 14, 9, 15, 0, 0, time.UTC)
	ctrl.Tick(now)
	r = e.RunCycle(context.Background())
	assert.False(t, r.Skipped)
	assert.Equal(t, 1, src.totalCalls())
}

func TestEngine_ResetBetweenSessions(t *testing.T) {
	src := newMockSource()
	src.prices["X"] = []string{"100", "101", "100", "99"}
	n := &mockNotifier{}

	st := session.NewState([]domain.Symbol{"X"})
	ctrl, err := session.NewController(session.Config{Open: "09:15", Close: "15:30", Timezone: "UTC"}, st)
	require.NoError(t, err)

	now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	cfg := engine.DefaultConfig()
	cfg.Clock = func() time.Time { return now }
	e := engine.New(cfg, st, ctrl, breakout.FixedAnchor{}, src, n, nil)

	ctrl.Tick(now)
	e.RunCycle(context.Background())
	require.Len(t, e.RunCycle(context.Background()).Alerts, 1)

	now = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	ctrl.Tick(now)
	assert.False(t, st.Get("X").AlertSent)

	e.RunCycle(context.Background())
	r := e.RunCycle(context.Background())
	require.Len(t, r.Alerts, 1, "new session, new alert")
	assert.Equal(t, domain.KindBelow, r.Alerts[0].Kind)
	assert.True(t, r.Alerts[0].Session.Equal(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)))
}

// countingSource cuenta cuántos fetch hay en vuelo a la vez.
type countingSource struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (c *countingSource) Fetch(_ context.Context, sym domain.Symbol) (domain.Quote, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return domain.Quote{Symbol: sym, Price: decimal.NewFromInt(1)}, nil
}

func TestEngine_BoundedConcurrencyAndNoOverlap(t *testing.T) {
	symbols := make([]domain.Symbol, 40)
	for i := range symbols {
		symbols[i] = domain.Symbol(string(rune('A'+i%26)) + string(rune('a'+i/26)))
	}
	src := &countingSource{}
	st := session.NewState(symbols)
	cfg := engine.DefaultConfig()
	cfg.Workers = 4
	e := engine.New(cfg, st, openGate{alerts: true}, breakout.FixedAnchor{}, src, &mockNotifier{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.RunCycle(context.Background())
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, src.peak.Load(), int32(4), "cycles never run concurrently")
	for _, sym := range symbols {
		assert.True(t, st.Get(sym).Reference.Valid, sym)
	}
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	src := newMockSource()
	st := session.NewState([]domain.Symbol{"X"})
	cfg := engine.DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	e := engine.New(cfg, st, openGate{alerts: true}, breakout.FixedAnchor{}, src, &mockNotifier{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
	assert.GreaterOrEqual(t, src.totalCalls(), 2)
}
