// Package live pushes capacity snapshots to websocket subscribers. Clients
// subscribe per event; every attendee mutation broadcasts the fresh state.
package live

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"rsvphub/internal/domain/capacity"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins — adjust for production if needed
		return true
	},
}

// Hub fans capacity updates out to the subscribers of each event.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string][]*websocket.Conn
	log         *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string][]*websocket.Conn),
		log:         log,
	}
}

type capacityUpdate struct {
	EventID    string `json:"eventId"`
	State      string `json:"state"`
	Remaining  *int   `json:"remaining,omitempty"`
	Unlimited  bool   `json:"unlimited,omitempty"`
	Going      int    `json:"going"`
	Waitlisted int    `json:"waitlisted"`
}

// PublishCapacity broadcasts the snapshot to the event's subscribers.
// Connections that fail to take the write are dropped.
func (h *Hub) PublishCapacity(eventID string, state capacity.State, counts capacity.Counts) {
	update := capacityUpdate{
		EventID:    eventID,
		State:      state.State,
		Unlimited:  state.Unlimited,
		Going:      counts.TotalGoing,
		Waitlisted: counts.Waitlisted,
	}
	if !state.Unlimited {
		remaining := state.Remaining
		update.Remaining = &remaining
	}
	payload, err := json.Marshal(update)
	if err != nil {
		h.log.Error("marshal capacity update", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.subscribers[eventID]
	alive := conns[:0]
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err == nil {
			alive = append(alive, conn)
		} else {
			conn.Close()
		}
	}
	h.subscribers[eventID] = alive
}

// ServeWS upgrades the request and keeps the subscription open until the
// client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		http.Error(w, "event id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.subscribers[eventID] = append(h.subscribers[eventID], conn)
	h.mu.Unlock()

	for {
		// Keeps the connection registered until the client disconnects.
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	conns := h.subscribers[eventID]
	remaining := make([]*websocket.Conn, 0, len(conns))
	for _, c := range conns {
		if c != conn {
			remaining = append(remaining, c)
		}
	}
	h.subscribers[eventID] = remaining
	h.mu.Unlock()

	conn.Close()
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.ServeWS(w, r)
}
