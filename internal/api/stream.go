package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	streamBuffer = 100
	writeWait    = 5 * time.Second
)

// PredictionEvent is pushed to stream subscribers after every prediction.
type PredictionEvent struct {
	Type            string    `json:"type"`
	ID              string    `json:"id,omitempty"`
	RequestID       string    `json:"request_id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Prediction      string    `json:"prediction,omitempty"`
	Probability     float64   `json:"probability,omitempty"`
	Confidence      float64   `json:"confidence,omitempty"`
	ConfidenceLevel string    `json:"confidence_level,omitempty"`
	Anomalies       []string  `json:"anomalies,omitempty"`
}

// Hub fans prediction events out to websocket subscribers.
type Hub struct {
	upgrader websocket.Upgrader
	metrics  MetricsInterface

	clients   map[*websocket.Conn]struct{}
	clientsMu sync.Mutex

	events   chan PredictionEvent
	stop     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

func NewHub(metrics MetricsInterface) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		metrics:  metrics,
		clients:  make(map[*websocket.Conn]struct{}),
		events:   make(chan PredictionEvent, streamBuffer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the broadcaster until Stop is called.
func (h *Hub) Start() {
	if !h.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(h.done)
		for {
			select {
			case ev := <-h.events:
				h.broadcast(ev)
			case <-h.stop:
				return
			}
		}
	}()
}

// Stop disconnects every client. It is safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
		if h.started.Load() {
			<-h.done
		}

		h.clientsMu.Lock()
		for c := range h.clients {
			_ = c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			c.Close()
		}
		h.clients = make(map[*websocket.Conn]struct{})
		h.clientsMu.Unlock()
		h.reportClients(0)
	})
}

// Publish queues ev without blocking; events are dropped when subscribers
// fall behind.
func (h *Hub) Publish(ev PredictionEvent) {
	select {
	case h.events <- ev:
	default:
		log.Warn().Str("id", ev.ID).Msg("Prediction stream buffer full, dropping event")
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(ev PredictionEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal prediction event")
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for c := range h.clients {
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Msg("Dropping stream client after write failure")
			c.Close()
			delete(h.clients, c)
		}
	}
	h.reportClientsLocked()
}

// ServeHTTP upgrades the connection and holds it until the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.stop:
		http.Error(w, "stream closed", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	hello, _ := json.Marshal(PredictionEvent{Type: "connected", RequestID: RequestIDFromContext(r.Context()), Timestamp: time.Now().UTC()})
	h.clientsMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		h.clientsMu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = struct{}{}
	h.reportClientsLocked()
	h.clientsMu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.clientsMu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.reportClientsLocked()
	h.clientsMu.Unlock()
}

func (h *Hub) reportClientsLocked() {
	h.reportClients(len(h.clients))
}

func (h *Hub) reportClients(n int) {
	if h.metrics != nil {
		h.metrics.StreamClientsSet(n)
	}
}
