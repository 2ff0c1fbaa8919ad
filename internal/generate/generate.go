// Package generate produces fix suggestions for a field group. Generators are
// only reachable through the fix cache; nothing in apply calls them.
package generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hpungsan/sightline/internal/fixcache"
)

// Request is everything a generator may see. Every field is part of the work
// key, so the same key always means the same input.
type Request struct {
	ProjectID       string `json:"project_id"`
	EntityRef       string `json:"entity_ref"`
	FieldGroup      string `json:"field_group"`
	FixType         string `json:"fix_type"`
	LiveContent     string `json:"live_content"`
	TemplateVersion string `json:"template_version"`
}

// Validate checks the fields a prompt depends on.
func (r Request) Validate() error {
	if strings.TrimSpace(r.FieldGroup) == "" {
		return fmt.Errorf("field group is required")
	}
	if strings.TrimSpace(r.FixType) == "" {
		return fmt.Errorf("fix type is required")
	}
	return nil
}

// Generator produces a suggestion. Implementations must honor ctx.
type Generator interface {
	Generate(ctx context.Context, req Request) (fixcache.Payload, error)
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, req Request) (fixcache.Payload, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, req Request) (fixcache.Payload, error) {
	return f(ctx, req)
}

// Options configures the limits wrapped around a generator.
type Options struct {
	Timeout       time.Duration
	RatePerMinute int
	MaxConcurrent int
}

// Limited bounds a generator by a per-call timeout, a token-bucket rate and a
// concurrency cap. Zero values disable the corresponding limit.
type Limited struct {
	next    Generator
	timeout time.Duration
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

// WithLimits wraps next with the limits in opts.
func WithLimits(next Generator, opts Options) *Limited {
	l := &Limited{next: next, timeout: opts.Timeout}
	if opts.RatePerMinute > 0 {
		l.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), opts.RatePerMinute)
	}
	if opts.MaxConcurrent > 0 {
		l.sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return l
}

// Generate waits for rate and concurrency capacity, then calls the wrapped
// generator under the timeout. Waiting counts against the timeout.
func (l *Limited) Generate(ctx context.Context, req Request) (fixcache.Payload, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return fixcache.Payload{}, fmt.Errorf("waiting for rate limit: %w", err)
		}
	}
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return fixcache.Payload{}, fmt.Errorf("waiting for generation slot: %w", err)
		}
		defer l.sem.Release(1)
	}

	p, err := l.next.Generate(ctx, req)
	if err != nil {
		return fixcache.Payload{}, err
	}
	if err := ctx.Err(); err != nil {
		return fixcache.Payload{}, err
	}
	return p, nil
}
