package course

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-quiz/internal/platform/cache"
)

// KV is the subset of the cache client used to memoise resolved question
// sets. Get reports a missing key with cache.ErrMiss.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedSource memoises successful resolves of another Source. Failures are
// never cached so an explicit retry always reaches the underlying source.
// Cache errors degrade to a pass-through.
type CachedSource struct {
	next Source
	kv   KV
	ttl  time.Duration
}

type cachedEntry struct {
	Course    Course     `json:"course"`
	Questions []Question `json:"questions"`
}

// NewCachedSource wraps next with a read-through cache.
func NewCachedSource(next Source, kv KV, ttl time.Duration) *CachedSource {
	return &CachedSource{next: next, kv: kv, ttl: ttl}
}

// CacheKey is scoped to the caller so cached data can never cross owners.
func CacheKey(courseID string, id Identity) string {
	return fmt.Sprintf("quiz:questions:%s:%s", id.UserID, courseID)
}

func (c *CachedSource) Resolve(ctx context.Context, courseID string, id Identity) (Course, []Question, error) {
	key := CacheKey(courseID, id)

	if data, err := c.kv.Get(ctx, key); err == nil {
		var entry cachedEntry
		if err := json.Unmarshal(data, &entry); err == nil && len(entry.Questions) > 0 {
			return entry.Course, entry.Questions, nil
		}
		slog.Warn("discarding unreadable cached question set", "key", key)
	} else if !errors.Is(err, cache.ErrMiss) {
		slog.Warn("question cache read failed", "key", key, "error", err)
	}

	course, questions, err := c.next.Resolve(ctx, courseID, id)
	if err != nil {
		return Course{}, nil, err
	}

	data, err := json.Marshal(cachedEntry{Course: course, Questions: questions})
	if err == nil {
		if err := c.kv.Set(ctx, key, data, c.ttl); err != nil {
			slog.Warn("question cache write failed", "key", key, "error", err)
		}
	}
	return course, questions, nil
}
