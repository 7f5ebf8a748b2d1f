// Package progress commits completed quiz attempts: course progress and user
// points for authenticated users, an informational notice for guests.
package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrPersistUnavailable wraps every failure to write to the sink.
var ErrPersistUnavailable = errors.New("progress store unavailable")

// Sink accepts the two writes of a progress commit. They are independent and
// not transactional.
type Sink interface {
	UpdateCourseProgress(ctx context.Context, courseID string, progress int) error
	AddUserPoints(ctx context.Context, userID string, delta int, at time.Time) error
}

// UserPoints is a user's running total.
type UserPoints struct {
	Total        int
	LastActivity time.Time
}

// MemorySink is an in-memory Sink. Setting ProgressErr or PointsErr makes the
// corresponding write fail.
type MemorySink struct {
	mu          sync.Mutex
	progress    map[string]int
	points      map[string]UserPoints
	calls       []string
	ProgressErr error
	PointsErr   error
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		progress: make(map[string]int),
		points:   make(map[string]UserPoints),
	}
}

func (s *MemorySink) UpdateCourseProgress(_ context.Context, courseID string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "progress:"+courseID)
	if s.ProgressErr != nil {
		return fmt.Errorf("%w: %w", ErrPersistUnavailable, s.ProgressErr)
	}
	s.progress[courseID] = max(s.progress[courseID], clampProgress(progress))
	return nil
}

func (s *MemorySink) AddUserPoints(_ context.Context, userID string, delta int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "points:"+userID)
	if s.PointsErr != nil {
		return fmt.Errorf("%w: %w", ErrPersistUnavailable, s.PointsErr)
	}
	p := s.points[userID]
	p.Total += delta
	p.LastActivity = at
	s.points[userID] = p
	return nil
}

// CourseProgress returns the stored progress for a course.
func (s *MemorySink) CourseProgress(courseID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress[courseID]
}

// Points returns the stored points for a user.
func (s *MemorySink) Points(userID string) UserPoints {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.points[userID]
}

// Calls returns the writes attempted so far, in order.
func (s *MemorySink) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.calls...)
}

func clampProgress(p int) int {
	return min(max(p, 0), 100)
}
