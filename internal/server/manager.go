// Package server exposes quiz sessions over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-quiz/internal/course"
	"github.com/p-n-ai/pai-quiz/internal/notify"
	"github.com/p-n-ai/pai-quiz/internal/quiz"
)

// ErrSessionNotFound is returned for unknown or closed session ids.
var ErrSessionNotFound = errors.New("session not found")

// DefaultSessionTTL is how long a session may sit untouched before the
// janitor closes it.
const DefaultSessionTTL = 30 * time.Minute

// ManagerConfig holds the dependencies shared by every session.
type ManagerConfig struct {
	Source           course.Source
	Committer        quiz.Committer
	Notifier         notify.Notifier // optional
	Messages         *notify.Messages
	Hub              *Hub
	RevealInterval   time.Duration
	PointsPerCorrect int
	Scheduler        quiz.Scheduler
	NewID            func() string
	SessionTTL       time.Duration // default 30m; idle sessions are closed after this
	SweepInterval    time.Duration // default SessionTTL/4, at least 1s
	Now              func() time.Time
}

// Manager owns the live sessions, keyed by session id.
type Manager struct {
	source    course.Source
	committer quiz.Committer
	notifier  notify.Notifier
	messages  *notify.Messages
	hub       *Hub
	reveal    time.Duration
	points    int
	scheduler quiz.Scheduler
	newID     func() string
	ttl       time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type entry struct {
	session  *quiz.Session
	lastSeen time.Time
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	m := &Manager{
		source:    cfg.Source,
		committer: cfg.Committer,
		notifier:  cfg.Notifier,
		messages:  cfg.Messages,
		hub:       cfg.Hub,
		reveal:    cfg.RevealInterval,
		points:    cfg.PointsPerCorrect,
		scheduler: cfg.Scheduler,
		newID:     cfg.NewID,
		ttl:       cfg.SessionTTL,
		now:       cfg.Now,
		sessions:  make(map[string]*entry),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if m.hub == nil {
		m.hub = NewHub()
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.ttl <= 0 {
		m.ttl = DefaultSessionTTL
	}
	if m.messages == nil {
		msgs, err := notify.NewMessages("en")
		if err != nil {
			return nil, err
		}
		m.messages = msgs
	}

	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = max(m.ttl/4, time.Second)
	}
	go m.janitor(interval)
	return m, nil
}

// janitor closes idle sessions until CloseAll is called.
func (m *Manager) janitor(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep closes every session not accessed within the session TTL and
// returns how many were closed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.RLock()
	var expired []string
	for id, e := range m.sessions {
		if e.lastSeen.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	closed := 0
	for _, id := range expired {
		m.mu.Lock()
		e, ok := m.sessions[id]
		if ok && e.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
		} else {
			ok = false
		}
		m.mu.Unlock()
		if ok {
			m.teardown(id, e.session)
			closed++
		}
	}
	if closed > 0 {
		slog.Info("expired idle quiz sessions", "closed", closed, "ttl", m.ttl)
	}
	return closed
}

// Start loads the course for id and opens a new session on it. Load failures
// are returned unchanged so callers can classify them with errors.Is.
func (m *Manager) Start(ctx context.Context, courseID string, id course.Identity) (string, *quiz.Session, error) {
	c, questions, err := m.source.Resolve(ctx, courseID, id)
	if err != nil {
		return "", nil, err
	}

	sessionID := m.newID()
	s, err := quiz.New(quiz.Config{
		Course:           c,
		Questions:        questions,
		Identity:         id,
		RevealInterval:   m.reveal,
		PointsPerCorrect: m.points,
		Scheduler:        m.scheduler,
		Committer:        m.committer,
		OnChange: func(v quiz.View) {
			m.hub.Publish(sessionID, Message{Type: MessageView, View: &v})
		},
		Context: notify.WithSessionID(context.Background(), sessionID),
	})
	if err != nil {
		return "", nil, fmt.Errorf("start session: %w", err)
	}

	m.mu.Lock()
	m.sessions[sessionID] = &entry{session: s, lastSeen: m.now()}
	m.mu.Unlock()

	slog.Info("quiz session started",
		"session_id", sessionID,
		"course_id", c.ID,
		"mode", id.Mode(),
		"questions", len(questions),
	)
	if m.notifier != nil {
		m.notifier.Notify(ctx, notify.Notification{
			Level:     notify.LevelInfo,
			Key:       notify.KeyLoaded,
			Text:      m.messages.Text(notify.KeyLoaded, len(questions)),
			UserID:    id.UserID,
			SessionID: sessionID,
		})
	}
	return sessionID, s, nil
}

// Get returns a live session and marks it as accessed.
func (m *Manager) Get(id string) (*quiz.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastSeen = m.now()
	return e.session, nil
}

// Close tears a session down, cancelling any pending reveal, and disconnects
// its stream subscribers.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	m.teardown(id, e.session)
	return nil
}

func (m *Manager) teardown(id string, s *quiz.Session) {
	s.Close()
	m.hub.CloseSession(id)
	slog.Info("quiz session closed", "session_id", id)
}

// CloseAll stops the janitor and tears down every session.
func (m *Manager) CloseAll() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for id, e := range sessions {
		e.session.Close()
		m.hub.CloseSession(id)
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Messages returns the localised texts used by the manager.
func (m *Manager) Messages() *notify.Messages {
	return m.messages
}

// Hub returns the hub session updates are published to.
func (m *Manager) Hub() *Hub {
	return m.hub
}
