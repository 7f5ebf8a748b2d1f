package course

import (
	"errors"
	"fmt"
)

// Load failures. Each one ends the load attempt; callers may retry the whole
// resolve explicitly.
var (
	ErrCourseNotFound       = errors.New("course not found")
	ErrNoQuestionsAvailable = errors.New("no quiz questions available for this course yet")
	ErrQuestionsCorrupted   = errors.New("quiz questions are corrupted")
	ErrSourceUnavailable    = errors.New("question source unavailable")
)

// unavailable wraps a transport or storage failure.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, op, err)
}

// Kind returns a stable name for a load failure, or "" if err is not one.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrCourseNotFound):
		return "course_not_found"
	case errors.Is(err, ErrNoQuestionsAvailable):
		return "no_questions_available"
	case errors.Is(err, ErrQuestionsCorrupted):
		return "questions_corrupted"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	default:
		return ""
	}
}
