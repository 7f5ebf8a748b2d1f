package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-quiz/internal/course"
	"github.com/p-n-ai/pai-quiz/internal/notify"
	"github.com/p-n-ai/pai-quiz/internal/progress"
	"github.com/p-n-ai/pai-quiz/internal/quiz"
	"github.com/p-n-ai/pai-quiz/internal/server"
)

// queueScheduler holds reveal callbacks until flushed.
type queueScheduler struct {
	mu    sync.Mutex
	queue []func()
}

type queuedTimer struct{}

func (queuedTimer) Stop() bool { return true }

func (q *queueScheduler) AfterFunc(_ time.Duration, f func()) quiz.Timer {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = append(q.queue, f)
	return queuedTimer{}
}

func (q *queueScheduler) flush() {
	q.mu.Lock()
	queue := q.queue
	q.queue = nil
	q.mu.Unlock()
	for _, f := range queue {
		f()
	}
}

// storeSource serves authenticated courses from memory or fails with err.
type storeSource struct {
	course    course.Course
	questions []course.Question
	err       error
}

func (s *storeSource) Resolve(_ context.Context, courseID string, id course.Identity) (course.Course, []course.Question, error) {
	if s.err != nil {
		return course.Course{}, nil, s.err
	}
	if courseID != s.course.ID || id.UserID != s.course.UserID {
		return course.Course{}, nil, course.ErrCourseNotFound
	}
	return s.course, s.questions, nil
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

type harness struct {
	t       *testing.T
	handler http.Handler
	manager *server.Manager
	sched   *queueScheduler
	clock   *fakeClock
	sink    *progress.MemorySink
	channel *notify.MemoryChannel
	store   *storeSource
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	guest, err := course.NewGuestSource()
	if err != nil {
		t.Fatalf("NewGuestSource() error = %v", err)
	}
	store := &storeSource{
		course: course.Course{ID: "course-42", UserID: "user-1", Title: "Owned", Progress: 10},
		questions: []course.Question{
			{ID: "a", Prompt: "A?", Options: []string{"1", "2", "3", "4"}, CorrectAnswer: 2, Explanation: "because"},
			{ID: "b", Prompt: "B?", Options: []string{"1", "2", "3", "4"}, CorrectAnswer: 3, Explanation: "because"},
		},
	}

	h := &harness{
		t:       t,
		sched:   &queueScheduler{},
		clock:   &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
		sink:    progress.NewMemorySink(),
		channel: &notify.MemoryChannel{},
		store:   store,
	}

	hub := server.NewHub()
	gw := notify.NewGateway()
	gw.Register("memory", h.channel)
	gw.Register("stream", hub)

	committer, err := progress.NewCommitter(progress.CommitterConfig{
		Sink:     h.sink,
		Notifier: gw,
	})
	if err != nil {
		t.Fatalf("NewCommitter() error = %v", err)
	}

	n := 0
	h.manager, err = server.NewManager(server.ManagerConfig{
		Source:    course.NewResolver(guest, store),
		Committer: committer,
		Notifier:  gw,
		Hub:       hub,
		Scheduler: h.sched,
		Now:       h.clock.now,
		NewID: func() string {
			n++
			return fmt.Sprintf("sess-%d", n)
		},
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(h.manager.CloseAll)

	h.handler = server.New(h.manager, nil).Handler()
	return h
}

func (h *harness) do(method, path, user string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(server.UserHeader, user)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) start(courseID, user string) string {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/quizzes", user, server.StartRequest{CourseID: courseID})
	if rec.Code != http.StatusCreated {
		h.t.Fatalf("POST /quizzes status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp server.StartResponse
	decode(h.t, rec, &resp)
	return resp.SessionID
}

// answer selects option, advances and lets the reveal elapse.
func (h *harness) answer(sessionID string, option int) {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/sessions/"+sessionID+"/answer", "", map[string]int{"option": option})
	if rec.Code != http.StatusOK {
		h.t.Fatalf("answer status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = h.do(http.MethodPost, "/sessions/"+sessionID+"/advance", "", nil)
	if rec.Code != http.StatusOK {
		h.t.Fatalf("advance status = %d, body = %s", rec.Code, rec.Body.String())
	}
	h.sched.flush()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}
