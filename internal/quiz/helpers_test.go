package quiz_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/p-n-ai/pai-quiz/internal/course"
	"github.com/p-n-ai/pai-quiz/internal/quiz"
)

// manualScheduler captures scheduled calls so tests decide when they fire.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	mu      *sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (m *manualScheduler) AfterFunc(d time.Duration, f func()) quiz.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{mu: &m.mu, d: d, f: f}
	m.timers = append(m.timers, t)
	return t
}

// fire runs every pending, unstopped timer.
func (m *manualScheduler) fire() {
	m.mu.Lock()
	var due []*manualTimer
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	m.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

// last returns the most recently scheduled timer.
func (m *manualScheduler) last() *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.timers) == 0 {
		return nil
	}
	return m.timers[len(m.timers)-1]
}

func (m *manualScheduler) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type recordingCommitter struct {
	mu      sync.Mutex
	results []quiz.Result
}

func (c *recordingCommitter) Commit(_ context.Context, r quiz.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *recordingCommitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

func questionsWithAnswers(correct ...int) []course.Question {
	qs := make([]course.Question, 0, len(correct))
	for i, c := range correct {
		qs = append(qs, course.Question{
			ID:            fmt.Sprintf("q%d", i+1),
			Prompt:        fmt.Sprintf("Question %d?", i+1),
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: c,
			Explanation:   fmt.Sprintf("Explanation %d", i+1),
		})
	}
	return qs
}

type fixture struct {
	session   *quiz.Session
	scheduler *manualScheduler
	committer *recordingCommitter
}

func newFixture(t interface{ Fatalf(string, ...any) }, correct ...int) fixture {
	sched := &manualScheduler{}
	committer := &recordingCommitter{}
	ids := 0
	s, err := quiz.New(quiz.Config{
		Course:         course.Course{ID: "c-1", Title: "Algebra", UserID: "u-1"},
		Questions:      questionsWithAnswers(correct...),
		Identity:       course.Identity{UserID: "u-1"},
		RevealInterval: 2 * time.Second,
		Scheduler:      sched,
		Committer:      committer,
		NewAttemptID: func() string {
			ids++
			return fmt.Sprintf("attempt-%d", ids)
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return fixture{session: s, scheduler: sched, committer: committer}
}

// answer selects option and advances past the reveal.
func (f fixture) answer(option int) error {
	if err := f.session.SelectAnswer(option); err != nil {
		return err
	}
	if err := f.session.Advance(); err != nil {
		return err
	}
	f.scheduler.fire()
	return nil
}

type committerFunc func(quiz.Result)

func (f committerFunc) Commit(_ context.Context, r quiz.Result) { f(r) }
