package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresSink writes progress and points to PostgreSQL.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink creates a PostgreSQL-backed sink.
func NewPostgresSink(pool *pgxpool.Pool) (*PostgresSink, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresSink{pool: pool}, nil
}

// UpdateCourseProgress raises the stored progress to at least progress. The
// stored value never goes down, even when the caller's view was stale.
func (s *PostgresSink) UpdateCourseProgress(ctx context.Context, courseID string, progress int) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE courses
		 SET progress = GREATEST(progress, $2), updated_at = NOW()
		 WHERE id = $1`,
		courseID,
		clampProgress(progress),
	)
	if err != nil {
		return fmt.Errorf("%w: update course progress: %w", ErrPersistUnavailable, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: course not found: %s", ErrPersistUnavailable, courseID)
	}
	return nil
}

// AddUserPoints increments the user's total and stamps the activity time.
func (s *PostgresSink) AddUserPoints(ctx context.Context, userID string, delta int, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE profiles
		 SET total_points = total_points + $2, last_activity = $3
		 WHERE id = $1`,
		userID,
		delta,
		at,
	)
	if err != nil {
		return fmt.Errorf("%w: add user points: %w", ErrPersistUnavailable, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: profile not found: %s", ErrPersistUnavailable, userID)
	}
	return nil
}
