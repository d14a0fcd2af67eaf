package session

import (
	"fmt"
	"strings"
	"time"
)

// Clock es una hora del día (HH:MM) sin fecha ni zona.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock convierte "09:15" en un Clock.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return Clock{}, fmt.Errorf("session.ParseClock: %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// MustClock es ParseClock para constantes y tests.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Minutes devuelve los minutos transcurridos desde medianoche.
func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

// IsZero devuelve true si el Clock no fue configurado (00:00).
func (c Clock) IsZero() bool { return c.Hour == 0 && c.Minute == 0 }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// minuteOfDay devuelve minuto y segundo del día como duración, para comparar con Clock.
func minuteOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond())
}

func (c Clock) offset() time.Duration { return time.Duration(c.Minutes()) * time.Minute }

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseWeekdays convierte ["mon", "Tuesday", ...] en un set de días de trading.
func ParseWeekdays(names []string) (map[time.Weekday]bool, error) {
	out := make(map[time.Weekday]bool, len(names))
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if len(key) > 3 {
			key = key[:3]
		}
		wd, ok := weekdayNames[key]
		if !ok {
			return nil, fmt.Errorf("session.ParseWeekdays: unknown weekday %q", n)
		}
		out[wd] = true
	}
	return out, nil
}

// Weekdays es el set lunes-viernes.
func Weekdays() map[time.Weekday]bool {
	return map[time.Weekday]bool{
		time.Monday: true, time.Tuesday: true, time.Wednesday: true, time.Thursday: true, time.Friday: true,
	}
}
