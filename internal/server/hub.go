package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/p-n-ai/pai-quiz/internal/notify"
	"github.com/p-n-ai/pai-quiz/internal/quiz"
)

// Stream message types.
const (
	MessageView         = "view"
	MessageNotification = "notification"
)

const subscriberBuffer = 16

// Message is one frame on a session stream.
type Message struct {
	Type         string               `json:"type"`
	View         *quiz.View           `json:"view,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
}

// Hub fans session messages out to stream subscribers. It is also a
// notify.Channel, routing notifications by their session id.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Message]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan Message]struct{}),
	}
}

// Subscribe registers a subscriber for sessionID. The returned channel is
// closed when the session is closed or unsubscribe is called.
func (h *Hub) Subscribe(sessionID string) (<-chan Message, func()) {
	ch := make(chan Message, subscriberBuffer)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan Message]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[sessionID][ch]; ok {
				delete(h.subs[sessionID], ch)
				close(ch)
				if len(h.subs[sessionID]) == 0 {
					delete(h.subs, sessionID)
				}
			}
		})
	}
}

// Publish sends m to every subscriber of sessionID. Slow subscribers miss
// messages rather than block the session.
func (h *Hub) Publish(sessionID string, m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[sessionID] {
		select {
		case ch <- m:
		default:
			slog.Warn("stream subscriber lagging, message dropped",
				"session_id", sessionID,
				"type", m.Type,
			)
		}
	}
}

// CloseSession disconnects every subscriber of sessionID.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[sessionID] {
		close(ch)
	}
	delete(h.subs, sessionID)
}

// Subscribers returns the number of subscribers of sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

// Deliver implements notify.Channel. Notifications without a session id have
// no stream to go to and are ignored.
func (h *Hub) Deliver(_ context.Context, n notify.Notification) error {
	if n.SessionID == "" {
		return nil
	}
	h.Publish(n.SessionID, Message{Type: MessageNotification, Notification: &n})
	return nil
}
