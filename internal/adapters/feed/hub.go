package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/orbwatch/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	DefaultHistory = 200

	clientBuffer = 64
	pingEvery    = 45 * time.Second
	readTimeout  = 90 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// AlertMsg es una alerta tal como viaja por el websocket.
type AlertMsg struct {
	Type   string `json:"type"` // "alert"
	Time   string `json:"time"` // HH:MM:SS
	Text   string `json:"text"`
	TSUnix int64  `json:"ts_unix"` // ms
}

// HistoryMsg es lo primero que recibe un cliente al conectar.
type HistoryMsg struct {
	Type   string     `json:"type"` // "history"
	Alerts []AlertMsg `json:"alerts"`
}

type statusMsg struct {
	Type string `json:"type"` // "status"
	Text string `json:"text"`
}

type controlMsg struct {
	Type   string `json:"type"`   // "control"
	Action string `json:"action"` // pause | resume
}

type client struct {
	conn   *websocket.Conn
	out    chan any
	done   chan struct{}
	paused atomic.Bool
}

// Hub reparte las alertas a los clientes websocket conectados y guarda
// las últimas en memoria para los que conectan tarde.
// Implementa ports.Notifier.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	history []AlertMsg
	limit   int
	now     func() time.Time
}

// NewHub crea un Hub que guarda como mucho limit alertas (<= 0 usa DefaultHistory).
func NewHub(limit int) *Hub {
	if limit <= 0 {
		limit = DefaultHistory
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		history: make([]AlertMsg, 0, limit),
		limit:   limit,
		now:     time.Now,
	}
}

// Send guarda el mensaje en el histórico y lo reparte a los clientes.
// Un cliente lento pierde el mensaje; nunca bloquea al motor.
func (h *Hub) Send(_ context.Context, _ []domain.Destination, message string) error {
	now := h.now()
	msg := AlertMsg{
		Type:   "alert",
		Time:   now.Format("15:04:05"),
		Text:   message,
		TSUnix: now.UnixMilli(),
	}

	// Histórico y reparto bajo el mismo lock: un cliente que conecta a la
	// vez recibe la alerta una sola vez.
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history, msg)
	if len(h.history) > h.limit {
		h.history = h.history[len(h.history)-h.limit:]
	}
	h.broadcastLocked(msg)
	return nil
}

// History devuelve una copia del histórico, de más antigua a más reciente.
func (h *Hub) History() []AlertMsg {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]AlertMsg, len(h.history))
	copy(out, h.history)
	return out
}

// Reset vacía el histórico (nueva sesión).
func (h *Hub) Reset() {
	h.mu.Lock()
	h.history = h.history[:0]
	h.mu.Unlock()
}

// Clients devuelve el número de clientes conectados.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcastLocked encola v para cada cliente no pausado.
func (h *Hub) broadcastLocked(v any) {
	for c := range h.clients {
		if c.paused.Load() {
			continue
		}
		select {
		case c.out <- v:
		default:
		}
	}
}

// Close desconecta a todos los clientes.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
	}
}

// ServeWS es el handler de GET /ws.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	cl := &client{conn: conn, out: make(chan any, clientBuffer), done: make(chan struct{})}

	// El histórico se encola antes de registrar al cliente: así ninguna
	// alerta en vivo llega antes que él.
	h.mu.Lock()
	hist := make([]AlertMsg, len(h.history))
	copy(hist, h.history)
	cl.out <- HistoryMsg{Type: "history", Alerts: hist}
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, cl)
		h.mu.Unlock()
		close(cl.done)
	}()

	go h.writeLoop(cl)
	h.readLoop(cl)
}

func (h *Hub) writeLoop(cl *client) {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	for {
		select {
		case v := <-cl.out:
			if err := cl.conn.WriteJSON(v); err != nil {
				return
			}
		case <-ping.C:
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cl.done:
			return
		}
	}
}

// readLoop atiende los mensajes de control hasta que el cliente se va.
func (h *Hub) readLoop(cl *client) {
	_ = cl.conn.SetReadDeadline(time.Now().Add(readTimeout))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		mt, data, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var ctrl controlMsg
		if err := json.Unmarshal(data, &ctrl); err != nil || ctrl.Type != "control" {
			continue
		}
		switch strings.ToLower(ctrl.Action) {
		case "pause":
			cl.paused.Store(true)
			h.reply(cl, "paused")
		case "resume":
			cl.paused.Store(false)
			h.reply(cl, "resumed")
		}
	}
}

func (h *Hub) reply(cl *client, text string) {
	select {
	case cl.out <- statusMsg{Type: "status", Text: text}:
	default:
	}
}

// Handler devuelve el mux del feed: /ws y /healthz.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", h.ServeWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
