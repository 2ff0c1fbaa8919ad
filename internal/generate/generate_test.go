package generate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/sightline/internal/fixcache"
)

func testRequest() Request {
	return Request{
		ProjectID:       "p1",
		EntityRef:       "page:home",
		FieldGroup:      "meta_description",
		FixType:         "missingMetaDescription",
		LiveContent:     "Old text",
		TemplateVersion: "v1",
	}
}

func TestStatic_Deterministic(t *testing.T) {
	ctx := context.Background()
	a, err := Static{}.Generate(ctx, testRequest())
	require.NoError(t, err)
	b, err := Static{}.Generate(ctx, testRequest())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "[missingMetaDescription] Old text", a.Suggestion)
	assert.Equal(t, "v1", a.TemplateVersion)

	req := testRequest()
	req.LiveContent = ""
	p, err := Static{}.Generate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "[missingMetaDescription] new meta_description", p.Suggestion)
}

func TestStatic_InvalidRequest(t *testing.T) {
	req := testRequest()
	req.FixType = ""
	_, err := Static{}.Generate(context.Background(), req)
	require.Error(t, err)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(testRequest())
	assert.Contains(t, p, `"meta_description"`)
	assert.Contains(t, p, "page:home")
	assert.Contains(t, p, "<current>\nOld text\n</current>")
	assert.Equal(t, p, BuildPrompt(testRequest()))

	req := testRequest()
	req.LiveContent = "  "
	assert.Contains(t, BuildPrompt(req), "currently empty")
}

func TestNewAnthropic_RequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewAnthropic("", "")
	require.Error(t, err)

	g, err := NewAnthropic("test-key", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, g.model)
}

func TestLimited_Timeout(t *testing.T) {
	slow := Func(func(ctx context.Context, req Request) (fixcache.Payload, error) {
		<-ctx.Done()
		return fixcache.Payload{}, ctx.Err()
	})
	g := WithLimits(slow, Options{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := g.Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestLimited_LateSuccessAfterDeadlineFails(t *testing.T) {
	// A generator that ignores ctx and returns after the deadline.
	late := Func(func(ctx context.Context, req Request) (fixcache.Payload, error) {
		time.Sleep(30 * time.Millisecond)
		return fixcache.Payload{Suggestion: "late"}, nil
	})
	g := WithLimits(late, Options{Timeout: 5 * time.Millisecond})

	_, err := g.Generate(context.Background(), testRequest())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestLimited_MaxConcurrent(t *testing.T) {
	var inFlight, peak int64
	gen := Func(func(ctx context.Context, req Request) (fixcache.Payload, error) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return fixcache.Payload{Suggestion: "ok"}, nil
	})
	g := WithLimits(gen, Options{MaxConcurrent: 2})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Generate(context.Background(), testRequest())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
}

func TestLimited_RateWaitRespectsContext(t *testing.T) {
	var calls int64
	gen := Func(func(ctx context.Context, req Request) (fixcache.Payload, error) {
		atomic.AddInt64(&calls, 1)
		return fixcache.Payload{Suggestion: "ok"}, nil
	})
	// Burst of one, then one token per minute.
	g := WithLimits(gen, Options{RatePerMinute: 1})

	_, err := g.Generate(context.Background(), testRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Generate(ctx, testRequest())
	require.Error(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestLimited_NoLimits(t *testing.T) {
	g := WithLimits(Static{}, Options{})
	p, err := g.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, p.Suggestion)
}
