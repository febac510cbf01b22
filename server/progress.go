package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"audioscribe/logger"
	"audioscribe/model"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ProgressEvent is one message on the progress feed.
type ProgressEvent struct {
	Type      string              `json:"type"` // run_started, item_state, run_finished
	RunID     string              `json:"runId,omitempty"`
	ItemID    string              `json:"itemId,omitempty"`
	State     string              `json:"state,omitempty"`
	Error     string              `json:"error,omitempty"`
	Counts    *model.AsyncSummary `json:"counts,omitempty"`
	Summary   *model.RunSummary   `json:"summary,omitempty"`
	Timestamp int64               `json:"timestamp"`
}

// ProgressHub broadcasts run and item progress to websocket spectators. The
// pipeline calls it from the run loop, so broadcasting never blocks: a slow
// client just misses events.
type ProgressHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan ProgressEvent
}

// NewProgressHub creates an empty hub.
func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		clients: make(map[*websocket.Conn]chan ProgressEvent),
	}
}

// RunStarted implements pipeline.Notifier.
func (h *ProgressHub) RunStarted(runID string, counts model.AsyncSummary) {
	c := counts
	h.broadcast(ProgressEvent{Type: "run_started", RunID: runID, Counts: &c})
}

// ItemState implements pipeline.Notifier.
func (h *ProgressHub) ItemState(itemID string, state model.State, errCode string) {
	h.broadcast(ProgressEvent{Type: "item_state", ItemID: itemID, State: string(state), Error: errCode})
}

// RunFinished implements pipeline.Notifier.
func (h *ProgressHub) RunFinished(runID string, summary model.RunSummary, runErr error) {
	s := summary
	event := ProgressEvent{Type: "run_finished", RunID: runID, Summary: &s}
	if runErr != nil {
		event.Error = runErr.Error()
	}
	h.broadcast(event)
}

func (h *ProgressHub) broadcast(event ProgressEvent) {
	event.Timestamp = time.Now().Unix()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, send := range h.clients {
		select {
		case send <- event:
		default:
			// Client buffer full; drop rather than stall the run.
		}
	}
}

// HandleWS upgrades the connection and streams progress events until the
// client goes away.
func (h *ProgressHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	send := make(chan ProgressEvent, 32)

	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// Drain client frames so pings and close frames are handled, and so we
	// notice the client going away even when no events are flowing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-send:
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
