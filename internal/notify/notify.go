// Package notify delivers fire-and-forget user notifications (toasts) to the
// registered display channels.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Level is the toast style.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a single toast.
type Notification struct {
	Level     Level          `json:"level"`
	Key       string         `json:"key"`
	Text      string         `json:"text"`
	UserID    string         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Notifier accepts notifications. Delivery problems are never reported back.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Channel is one display surface notifications are delivered to.
type Channel interface {
	Deliver(ctx context.Context, n Notification) error
}

// Gateway fans notifications out to registered channels.
type Gateway struct {
	channels map[string]Channel
	mu       sync.RWMutex
}

// NewGateway creates a gateway with no channels.
func NewGateway() *Gateway {
	return &Gateway{
		channels: make(map[string]Channel),
	}
}

// Register adds a channel to the gateway, replacing any with the same name.
func (g *Gateway) Register(name string, ch Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[name] = ch
	slog.Info("notification channel registered", "channel", name)
}

// HasChannel returns true if the named channel is registered.
func (g *Gateway) HasChannel(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.channels[name]
	return ok
}

// Notify delivers n to every channel. Channel failures are logged and
// otherwise ignored.
func (g *Gateway) Notify(ctx context.Context, n Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	g.mu.RLock()
	names := make([]string, 0, len(g.channels))
	for name := range g.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	targets := make([]Channel, 0, len(names))
	for _, name := range names {
		targets = append(targets, g.channels[name])
	}
	g.mu.RUnlock()

	for i, ch := range targets {
		if err := ch.Deliver(ctx, n); err != nil {
			slog.Warn("notification delivery failed",
				"channel", names[i],
				"key", n.Key,
				"error", err,
			)
		}
	}
}

// LogChannel writes notifications to the structured log.
type LogChannel struct {
	Logger *slog.Logger
}

func (c LogChannel) Deliver(ctx context.Context, n Notification) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if n.Level == LevelError {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "notification",
		"level", string(n.Level),
		"key", n.Key,
		"text", n.Text,
		"user_id", n.UserID,
		"session_id", n.SessionID,
	)
	return nil
}

// MemoryChannel records notifications. It is a test double.
type MemoryChannel struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

func (m *MemoryChannel) Deliver(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, n)
	return nil
}

// Sent returns a copy of the delivered notifications.
func (m *MemoryChannel) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification{}, m.sent...)
}

// String formats a notification for debugging.
func (n Notification) String() string {
	return fmt.Sprintf("[%s] %s: %s", n.Level, n.Key, n.Text)
}

type sessionKey struct{}

// WithSessionID tags ctx with the session notifications raised under it belong to.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionIDFrom returns the session id set by WithSessionID, or "".
func SessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
