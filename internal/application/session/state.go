package session

import (
	"sync"
	"time"

	"github.com/alejandrodnm/orbwatch/internal/domain"
)

// Window es la compuerta de la sesión.
type Window int

const (
	Closed Window = iota
	PreOpen
	Open
)

func (w Window) String() string {
	switch w {
	case PreOpen:
		return "PRE_OPEN"
	case Open:
		return "OPEN"
	default:
		return "CLOSED"
	}
}

// State es el estado de la sesión: la ventana actual y el SymbolState de cada
// símbolo del universo. Hay una única instancia por proceso, creada en main.
//
// mu protege la ventana y el día de sesión; los ciclos lo toman en lectura
// durante todo el ciclo y el reset/transición en escritura, así un reset nunca
// se intercala con un ciclo en curso. entriesMu serializa el read-modify-write
// de cada símbolo dentro de un ciclo.
type State struct {
	mu     sync.RWMutex
	window Window
	day    time.Time

	entriesMu sync.Mutex
	symbols   []domain.Symbol
	entries   map[domain.Symbol]domain.SymbolState
}

// NewState crea el estado de sesión en CLOSED para el universo dado.
func NewState(symbols []domain.Symbol) *State {
	s := &State{
		window:  Closed,
		symbols: append([]domain.Symbol(nil), symbols...),
	}
	s.entries = freshEntries(s.symbols)
	return s
}

// Symbols devuelve el universo en su orden configurado.
func (s *State) Symbols() []domain.Symbol {
	return append([]domain.Symbol(nil), s.symbols...)
}

// Window devuelve la ventana actual.
func (s *State) Window() Window {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window
}

// Day devuelve el día de trading de la sesión actual (cero antes del primer tick).
func (s *State) Day() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.day
}

// Acquire toma el estado en modo compartido para un ciclo de polling y devuelve
// la ventana y el día vigentes. release debe llamarse al terminar el ciclo.
// Mientras se mantiene no se puede aplicar un reset ni una transición.
func (s *State) Acquire() (w Window, day time.Time, release func()) {
	s.mu.RLock()
	return s.window, s.day, s.mu.RUnlock
}

// Get devuelve una copia del estado de un símbolo.
func (s *State) Get(sym domain.Symbol) domain.SymbolState {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	return s.entries[sym]
}

// Snapshot devuelve una copia de todos los estados.
func (s *State) Snapshot() map[domain.Symbol]domain.SymbolState {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	out := make(map[domain.Symbol]domain.SymbolState, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Apply hace el read-modify-write atómico del estado de un símbolo.
// fn recibe el estado actual y devuelve el nuevo; lo que fn devuelva además
// se propaga al llamador.
func (s *State) Apply(sym domain.Symbol, fn func(domain.SymbolState) (domain.SymbolState, *domain.Signal)) *domain.Signal {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	next, sig := fn(s.entries[sym])
	s.entries[sym] = next
	return sig
}

// Reset borra todos los SymbolState y fija la ventana. Toma acceso exclusivo:
// espera a que termine cualquier ciclo en curso.
func (s *State) Reset(day time.Time, w Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(day, w)
}

func (s *State) resetLocked(day time.Time, w Window) {
	s.day = day
	s.window = w
	s.entriesMu.Lock()
	s.entries = freshEntries(s.symbols)
	s.entriesMu.Unlock()
}

func freshEntries(symbols []domain.Symbol) map[domain.Symbol]domain.SymbolState {
	m := make(map[domain.Symbol]domain.SymbolState, len(symbols))
	for _, sym := range symbols {
		m[sym] = domain.SymbolState{}
	}
	return m
}
