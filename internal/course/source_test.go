package course_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-quiz/internal/course"
	"github.com/p-n-ai/pai-quiz/internal/platform/cache"
)

// stubSource returns fixed results and counts calls.
type stubSource struct {
	course    course.Course
	questions []course.Question
	err       error
	calls     int
	lastID    course.Identity
}

func (s *stubSource) Resolve(_ context.Context, courseID string, id course.Identity) (course.Course, []course.Question, error) {
	s.calls++
	s.lastID = id
	if s.err != nil {
		return course.Course{}, nil, s.err
	}
	c := s.course
	c.ID = courseID
	return c, s.questions, nil
}

func sampleQuestions() []course.Question {
	return course.Filter([]course.RawQuestion{
		rawQuestion("q1", 4, intPtr(0)),
		rawQuestion("q2", 4, intPtr(1)),
	})
}

func TestResolver_RoutesByIdentity(t *testing.T) {
	guest := &stubSource{questions: sampleQuestions()}
	store := &stubSource{questions: sampleQuestions()}
	r := course.NewResolver(guest, store)

	if _, _, err := r.Resolve(context.Background(), "guest-course-1", course.Guest); err != nil {
		t.Fatalf("Resolve(guest) error = %v", err)
	}
	if _, _, err := r.Resolve(context.Background(), "c-1", course.Identity{UserID: "u-1"}); err != nil {
		t.Fatalf("Resolve(user) error = %v", err)
	}

	if guest.calls != 1 {
		t.Errorf("guest calls = %d, want 1", guest.calls)
	}
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1", store.calls)
	}
	if store.lastID.UserID != "u-1" {
		t.Errorf("store identity = %q, want u-1", store.lastID.UserID)
	}
}

func TestResolver_NoStoreConfigured(t *testing.T) {
	r := course.NewResolver(&stubSource{questions: sampleQuestions()}, nil)

	_, _, err := r.Resolve(context.Background(), "c-1", course.Identity{UserID: "u-1"})
	if !errors.Is(err, course.ErrSourceUnavailable) {
		t.Fatalf("Resolve() error = %v, want ErrSourceUnavailable", err)
	}
}

func TestResolver_PropagatesFailureKind(t *testing.T) {
	r := course.NewResolver(nil, &stubSource{err: course.ErrQuestionsCorrupted})

	_, _, err := r.Resolve(context.Background(), "c-1", course.Identity{UserID: "u-1"})
	if !errors.Is(err, course.ErrQuestionsCorrupted) {
		t.Fatalf("Resolve() error = %v, want ErrQuestionsCorrupted", err)
	}
}

// memoryKV is an in-memory KV.
type memoryKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string][]byte)}
}

func (m *memoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errors.New("connection refused")
	}
	v, ok := m.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func TestCachedSource_ReadThrough(t *testing.T) {
	next := &stubSource{course: course.Course{Title: "Algebra"}, questions: sampleQuestions()}
	kv := newMemoryKV()
	src := course.NewCachedSource(next, kv, time.Minute)
	id := course.Identity{UserID: "u-1"}

	for i := 0; i < 3; i++ {
		c, questions, err := src.Resolve(context.Background(), "c-1", id)
		if err != nil {
			t.Fatalf("Resolve() #%d error = %v", i, err)
		}
		if c.Title != "Algebra" {
			t.Errorf("Title = %q, want Algebra", c.Title)
		}
		if len(questions) != 2 {
			t.Errorf("len(questions) = %d, want 2", len(questions))
		}
	}

	if next.calls != 1 {
		t.Errorf("underlying calls = %d, want 1", next.calls)
	}
	if _, ok := kv.data[course.CacheKey("c-1", id)]; !ok {
		t.Error("expected cache entry to be written")
	}
}

func TestCachedSource_ScopedPerUser(t *testing.T) {
	next := &stubSource{questions: sampleQuestions()}
	src := course.NewCachedSource(next, newMemoryKV(), time.Minute)

	_, _, _ = src.Resolve(context.Background(), "c-1", course.Identity{UserID: "u-1"})
	_, _, _ = src.Resolve(context.Background(), "c-1", course.Identity{UserID: "u-2"})

	if next.calls != 2 {
		t.Errorf("underlying calls = %d, want 2 (one per owner)", next.calls)
	}
}

func TestCachedSource_FailuresNotCached(t *testing.T) {
	next := &stubSource{err: course.ErrCourseNotFound}
	kv := newMemoryKV()
	src := course.NewCachedSource(next, kv, time.Minute)

	for i := 0; i < 2; i++ {
		if _, _, err := src.Resolve(context.Background(), "c-1", course.Identity{UserID: "u-1"}); !errors.Is(err, course.ErrCourseNotFound) {
			t.Fatalf("Resolve() error = %v, want ErrCourseNotFound", err)
		}
	}
	if next.calls != 2 {
		t.Errorf("underlying calls = %d, want 2", next.calls)
	}
	if len(kv.data) != 0 {
		t.Errorf("cache entries = %d, want 0", len(kv.data))
	}
}

func TestCachedSource_CacheErrorPassesThrough(t *testing.T) {
	next := &stubSource{questions: sampleQuestions()}
	kv := newMemoryKV()
	kv.failGet = true
	src := course.NewCachedSource(next, kv, time.Minute)

	if _, _, err := src.Resolve(context.Background(), "c-1", course.Identity{UserID: "u-1"}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if next.calls != 1 {
		t.Errorf("underlying calls = %d, want 1", next.calls)
	}
}
