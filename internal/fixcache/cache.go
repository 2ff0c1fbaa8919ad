// Package fixcache memoizes generated draft content by work key and
// guarantees at most one in-flight generation per key.
package fixcache

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hpungsan/sightline/internal/errors"
)

// Payload is the generated content of a fix proposal.
type Payload struct {
	Suggestion      string            `json:"suggestion"`
	Model           string            `json:"model,omitempty"`
	TemplateVersion string            `json:"template_version,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Entry is an immutable cache record.
type Entry struct {
	WorkKey     string    `json:"work_key"`
	Result      Payload   `json:"result"`
	GeneratedAt time.Time `json:"generated_at"`
	Reuses      int64     `json:"reuses"`
}

// Store persists entries. Put must not overwrite an existing key.
type Store interface {
	Get(ctx context.Context, workKey string) (*Entry, error)
	Put(ctx context.Context, e *Entry) error
	MarkReused(ctx context.Context, workKey string) error
}

// GenerateFunc produces a payload on a cache miss.
type GenerateFunc func(ctx context.Context) (Payload, error)

// Cache is a reuse-first memoization layer in front of a generator. It never
// computes work keys and never touches live entities.
type Cache struct {
	store   Store
	group   singleflight.Group
	now     func() time.Time
	timeout time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithFlightTimeout bounds each shared generation. Zero means no bound
// beyond what the generator applies itself.
func WithFlightTimeout(d time.Duration) Option {
	return func(c *Cache) { c.timeout = d }
}

// New creates a cache backed by store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{store: store, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type flight struct {
	payload Payload
	hit     bool
}

// GetOrGenerate returns the payload for workKey, generating it on a miss.
//
// reused is false only for the caller whose generate ran; stored hits and
// callers that joined an in-flight generation get reused=true and must not
// be charged AI quota. The shared generation does not inherit cancellation
// from the caller that started it; a caller whose ctx ends stops waiting
// with GENERATION_FAILED while the others keep waiting. If generation fails
// nothing is stored and every joined caller receives the same error.
// Untyped generator errors are reported as GENERATION_FAILED.
func (c *Cache) GetOrGenerate(ctx context.Context, workKey string, generate GenerateFunc) (payload Payload, reused bool, err error) {
	if strings.TrimSpace(workKey) == "" {
		return Payload{}, false, errors.NewInvalidRequest("work key is required")
	}

	ran := false
	ch := c.group.DoChan(workKey, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		entry, err := c.store.Get(ctx, workKey)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return flight{payload: entry.Result, hit: true}, nil
		}

		ran = true
		p, err := generate(ctx)
		if err != nil {
			if errors.Code(err) == "" {
				err = errors.NewGenerationFailed(err)
			}
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.NewGenerationFailed(ctxErr)
		}

		if err := c.store.Put(ctx, &Entry{WorkKey: workKey, Result: p, GeneratedAt: c.now().UTC()}); err != nil {
			return nil, err
		}
		return flight{payload: p}, nil
	})

	select {
	case <-ctx.Done():
		return Payload{}, false, errors.NewGenerationFailed(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Payload{}, false, res.Err
		}
		f := res.Val.(flight)
		reused = f.hit || !ran
		if reused {
			// Reuse accounting is informational; a failure does not invalidate the hit.
			_ = c.store.MarkReused(ctx, workKey)
		}
		return f.payload, reused, nil
	}
}
