package course

import (
	"context"
	"errors"
	"log/slog"
)

// Source resolves a course and its ordered, validated questions for a caller.
type Source interface {
	Resolve(ctx context.Context, courseID string, id Identity) (Course, []Question, error)
}

// Resolver picks the guest catalog or the course store per call.
type Resolver struct {
	guest Source
	store Source
}

// NewResolver creates a resolver. store may be nil, in which case
// authenticated callers get ErrSourceUnavailable.
func NewResolver(guest, store Source) *Resolver {
	return &Resolver{guest: guest, store: store}
}

// Resolve routes to the source matching the identity's mode.
func (r *Resolver) Resolve(ctx context.Context, courseID string, id Identity) (Course, []Question, error) {
	src := r.store
	if id.IsGuest() {
		src = r.guest
	}
	if src == nil {
		return Course{}, nil, unavailable("resolve", errNoStore)
	}

	c, questions, err := src.Resolve(ctx, courseID, id)
	if err != nil {
		slog.Warn("quiz load failed",
			"course_id", courseID,
			"mode", id.Mode(),
			"kind", Kind(err),
			"error", err,
		)
		return Course{}, nil, err
	}

	slog.Info("quiz loaded",
		"course_id", c.ID,
		"mode", id.Mode(),
		"questions", len(questions),
	)
	return c, questions, nil
}

var errNoStore = errors.New("course store is not configured")
