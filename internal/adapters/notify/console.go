package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/alejandrodnm/orbwatch/internal/domain"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

// Console implementa ports.Notifier escribiendo cada alerta en una línea.
// También imprime las tablas del histórico y del estado de sesión.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout, now: time.Now}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, now: time.Now}
}

// Send imprime el mensaje. Los destinos se ignoran: la consola es uno solo.
func (c *Console) Send(_ context.Context, _ []domain.Destination, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "[%s] %s\n", c.now().Format("15:04:05"), message)
	return err
}

// PrintHistory imprime las alertas del journal como tabla.
func (c *Console) PrintHistory(alerts []domain.Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(alerts) == 0 {
		fmt.Fprintln(c.out, "no alerts recorded")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Session", "Time", "Symbol", "Kind", "Price", "Ref", "Sent")
	delivered := 0
	for _, a := range alerts {
		sent := "yes"
		if !a.Delivered {
			sent = "FAILED"
		} else {
			delivered++
		}
		table.Append(
			a.Session.Format("2006-01-02"),
			a.At.Format("15:04:05"),
			string(a.Symbol),
			string(a.Kind),
			domain.FormatPrice(a.Price),
			domain.FormatPrice(a.Reference),
			sent,
		)
	}
	table.Render()
	fmt.Fprintf(c.out, "  %d alerts, %d delivered\n", len(alerts), delivered)
}

// PrintStates imprime el estado de sesión de cada símbolo, en el orden dado.
func (c *Console) PrintStates(symbols []domain.Symbol, states map[domain.Symbol]domain.SymbolState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	table := tablewriter.NewWriter(c.out)
	table.Header("Symbol", "Ref", "Low", "High", "Alerted", "Alerts")
	for _, sym := range symbols {
		s := states[sym]
		alerted := ""
		if s.AlertSent {
			alerted = "yes"
		}
		table.Append(
			string(sym),
			nullPrice(s.Reference),
			nullPrice(s.Low),
			nullPrice(s.High),
			alerted,
			strconv.Itoa(s.Alerts),
		)
	}
	table.Render()
}

func nullPrice(p decimal.NullDecimal) string {
	if !p.Valid {
		return "-"
	}
	return domain.FormatPrice(p.Decimal)
}
