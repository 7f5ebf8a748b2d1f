package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-quiz/internal/notify"
	"github.com/p-n-ai/pai-quiz/internal/quiz"
)

// Defaults for CommitterConfig.
const (
	DefaultTimeout  = 5 * time.Second
	DefaultClaimTTL = 24 * time.Hour
)

// Claimer reserves a key once. It returns false when the key was already taken.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// CommitterConfig holds the collaborators of a Committer.
type CommitterConfig struct {
	Sink     Sink            // nil makes every authenticated commit fail
	Notifier notify.Notifier // required
	Messages *notify.Messages
	Events   EventLogger   // default NopEventLogger
	Claimer  Claimer       // nil disables the cross-process guard
	ClaimTTL time.Duration // default 24h
	Timeout  time.Duration // default 5s
	Now      func() time.Time
}

// Outcome reports what a commit did.
type Outcome struct {
	Guest     bool
	Duplicate bool
	Points    int
	Progress  int
	Err       error
}

// Committer applies the completion policy: guests get a notice only,
// authenticated users get course progress and points written to the sink.
type Committer struct {
	sink     Sink
	notifier notify.Notifier
	messages *notify.Messages
	events   EventLogger
	claimer  Claimer
	claimTTL time.Duration
	timeout  time.Duration
	now      func() time.Time
}

// NewCommitter creates a Committer.
func NewCommitter(cfg CommitterConfig) (*Committer, error) {
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	c := &Committer{
		sink:     cfg.Sink,
		notifier: cfg.Notifier,
		messages: cfg.Messages,
		events:   cfg.Events,
		claimer:  cfg.Claimer,
		claimTTL: cfg.ClaimTTL,
		timeout:  cfg.Timeout,
		now:      cfg.Now,
	}
	if c.messages == nil {
		m, err := notify.NewMessages("en")
		if err != nil {
			return nil, err
		}
		c.messages = m
	}
	if c.events == nil {
		c.events = NopEventLogger{}
	}
	if c.claimTTL <= 0 {
		c.claimTTL = DefaultClaimTTL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Commit implements quiz.Committer.
func (c *Committer) Commit(ctx context.Context, r quiz.Result) {
	c.Apply(ctx, r)
}

// Apply commits r and reports the outcome. A failed write never changes the
// score carried by r.
func (c *Committer) Apply(ctx context.Context, r quiz.Result) Outcome {
	points := r.Score.Points
	sessionID := notify.SessionIDFrom(ctx)

	if r.Identity.IsGuest() {
		slog.Info("guest quiz completed",
			"course_id", r.Course.ID,
			"attempt_id", r.AttemptID,
			"score", r.Score.Percentage,
		)
		c.notify(ctx, notify.Notification{
			Level:     notify.LevelInfo,
			Key:       notify.KeyGuestCompleted,
			Text:      c.messages.Text(notify.KeyGuestCompleted, points),
			SessionID: sessionID,
			Data:      map[string]any{"points": points},
		})
		return Outcome{Guest: true, Points: points}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	if c.claimer != nil && r.AttemptID != "" {
		ok, err := c.claimer.Claim(ctx, ClaimKey(r.AttemptID), c.claimTTL)
		switch {
		case err != nil:
			slog.Warn("commit claim failed, continuing", "attempt_id", r.AttemptID, "error", err)
		case !ok:
			slog.Warn("attempt already committed", "attempt_id", r.AttemptID)
			return Outcome{Duplicate: true, Points: points}
		}
	}

	progress := max(r.Course.Progress, r.Score.Percentage)
	err := c.write(ctx, r, progress)
	out := Outcome{Points: points, Progress: progress, Err: err}

	if err != nil {
		slog.Error("failed to save progress",
			"course_id", r.Course.ID,
			"user_id", r.Identity.UserID,
			"attempt_id", r.AttemptID,
			"error", err,
		)
		c.notify(ctx, notify.Notification{
			Level:     notify.LevelError,
			Key:       notify.KeySaveFailed,
			Text:      c.messages.Text(notify.KeySaveFailed),
			UserID:    r.Identity.UserID,
			SessionID: sessionID,
		})
		return out
	}

	if err := c.events.LogEvent(ctx, Event{
		UserID:    r.Identity.UserID,
		CourseID:  r.Course.ID,
		EventType: EventQuizCompleted,
		Data: map[string]any{
			"attempt_id": r.AttemptID,
			"correct":    r.Score.Correct,
			"total":      r.Score.Total,
			"percentage": r.Score.Percentage,
			"points":     points,
		},
		CreatedAt: r.CompletedAt,
	}); err != nil {
		slog.Warn("failed to log quiz event", "attempt_id", r.AttemptID, "error", err)
	}

	slog.Info("quiz progress saved",
		"course_id", r.Course.ID,
		"user_id", r.Identity.UserID,
		"progress", progress,
		"points", points,
	)
	c.notify(ctx, notify.Notification{
		Level:     notify.LevelSuccess,
		Key:       notify.KeyCompleted,
		Text:      c.messages.Text(notify.KeyCompleted, points),
		UserID:    r.Identity.UserID,
		SessionID: sessionID,
		Data:      map[string]any{"points": points, "progress": progress},
	})
	return out
}

// write attempts both updates. Neither is retried or rolled back.
func (c *Committer) write(ctx context.Context, r quiz.Result, progress int) error {
	if c.sink == nil {
		return fmt.Errorf("%w: no sink configured", ErrPersistUnavailable)
	}
	at := r.CompletedAt
	if at.IsZero() {
		at = c.now().UTC()
	}

	var errs []error
	if err := c.sink.UpdateCourseProgress(ctx, r.Course.ID, progress); err != nil {
		errs = append(errs, fmt.Errorf("update course progress: %w", err))
	}
	if err := c.sink.AddUserPoints(ctx, r.Identity.UserID, r.Score.Points, at); err != nil {
		errs = append(errs, fmt.Errorf("add user points: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Committer) notify(ctx context.Context, n notify.Notification) {
	n.CreatedAt = c.now().UTC()
	c.notifier.Notify(ctx, n)
}

// ClaimKey is the cache key guarding a single attempt's commit.
func ClaimKey(attemptID string) string {
	return "quiz:commit:" + attemptID
}
