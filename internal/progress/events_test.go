package progress_test

import (
	"context"
	"testing"

	"github.com/p-n-ai/pai-quiz/internal/progress"
)

func TestMemoryEventLogger_LogEvent(t *testing.T) {
	logger := progress.NewMemoryEventLogger()

	err := logger.LogEvent(context.Background(), progress.Event{
		UserID:    "user-1",
		CourseID:  "course-1",
		EventType: progress.EventQuizCompleted,
		Data: map[string]any{
			"points": 20,
		},
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].EventType != progress.EventQuizCompleted {
		t.Errorf("EventType = %q, want quiz_completed", events[0].EventType)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestMemoryEventLogger_RequiresType(t *testing.T) {
	logger := progress.NewMemoryEventLogger()
	if err := logger.LogEvent(context.Background(), progress.Event{UserID: "u"}); err == nil {
		t.Fatal("expected error for missing event type")
	}
}

func TestPostgresEventLogger_LogEvent_NilPool(t *testing.T) {
	logger := progress.NewPostgresEventLogger(nil)

	err := logger.LogEvent(context.Background(), progress.Event{
		UserID:    "user-1",
		EventType: progress.EventQuizCompleted,
	})
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestNopEventLogger(t *testing.T) {
	if err := (progress.NopEventLogger{}).LogEvent(context.Background(), progress.Event{}); err != nil {
		t.Errorf("LogEvent() error = %v", err)
	}
}
