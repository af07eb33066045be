package rewrite_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memlens/memlens-go/pkg/llm"
	"github.com/memlens/memlens-go/pkg/rewrite"
)

// fakeProvider is a scriptable llm.Provider for exercising the executor.
type fakeProvider struct {
	generateFn func(ctx context.Context, messages []llm.Message) (string, error)
	calls      int
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return f.GenerateWithMessages(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

func (f *fakeProvider) GenerateWithMessages(ctx context.Context, messages []llm.Message, _ ...llm.GenerateOption) (string, error) {
	f.calls++
	return f.generateFn(ctx, messages)
}

func (f *fakeProvider) Close() error { return nil }

func staticProvider(text string) *fakeProvider {
	return &fakeProvider{
		generateFn: func(context.Context, []llm.Message) (string, error) {
			return text, nil
		},
	}
}

func newTestEngine(t *testing.T, provider llm.Provider, cfg *rewrite.Config) *rewrite.Engine {
	t.Helper()
	engine, err := rewrite.NewEngine(provider, cfg)
	require.NoError(t, err)
	return engine
}

const beijingProfile = "My name is Li Si, I am a product manager. I live in Chaoyang District, Beijing."

func TestNewEngine_InvalidConfig(t *testing.T) {
	provider := staticProvider("ok")

	_, err := rewrite.NewEngine(provider, &rewrite.Config{Enabled: true, MinQueryLength: -1})
	require.Error(t, err)
	assert.ErrorIs(t, err, rewrite.ErrInvalidConfig)

	_, err = rewrite.NewEngine(provider, &rewrite.Config{Enabled: true, Timeout: -time.Second})
	assert.ErrorIs(t, err, rewrite.ErrInvalidConfig)

	_, err = rewrite.NewEngine(provider, &rewrite.Config{Enabled: true, MaxAttempts: -2})
	assert.ErrorIs(t, err, rewrite.ErrInvalidConfig)

	_, err = rewrite.NewEngine(nil, rewrite.DefaultConfig())
	assert.ErrorIs(t, err, rewrite.ErrNilProvider)
}

func TestNewEngine_AppliesDefaults(t *testing.T) {
	engine := newTestEngine(t, staticProvider("ok"), &rewrite.Config{Enabled: true})

	cfg := engine.Config()
	assert.Equal(t, rewrite.DefaultMinQueryLength, cfg.MinQueryLength)
	assert.Equal(t, rewrite.DefaultTimeout, cfg.Timeout)
	assert.Equal(t, rewrite.DefaultMaxAttempts, cfg.MaxAttempts)
}

func TestRewrite_GateSkipsMakeNoGenerationCall(t *testing.T) {
	provider := staticProvider("should never be called")
	engine := newTestEngine(t, provider, &rewrite.Config{Enabled: true, MinQueryLength: 3})

	tests := []struct {
		name    string
		query   string
		profile rewrite.ProfileLookup
		reason  rewrite.SkipReason
	}{
		{"no profile", "recommend nearby restaurants", rewrite.NoProfile(), rewrite.SkipNoProfile},
		{"short query", "hi", rewrite.FoundProfile(beijingProfile), rewrite.SkipTooShort},
		{"empty profile", "recommend nearby restaurants", rewrite.FoundProfile(""), rewrite.SkipEmptyProfile},
		{"empty query", "", rewrite.FoundProfile(beijingProfile), rewrite.SkipEmptyQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := engine.Rewrite(context.Background(), tt.query, tt.profile)
			assert.False(t, result.IsRewritten)
			assert.Equal(t, tt.reason, result.SkipReason)
			assert.Equal(t, tt.query, result.OriginalQuery)
			assert.Equal(t, tt.query, result.RewrittenQuery)
		})
	}

	assert.Zero(t, provider.calls, "gate skips must not reach the provider")
}

func TestRewrite_ShortCircuitPreservesUntrimmedOriginal(t *testing.T) {
	engine := newTestEngine(t, staticProvider("x"), &rewrite.Config{Enabled: true})

	// The untrimmed query counts 2 characters after trimming; the result
	// must carry it back byte-identical, whitespace included.
	query := "  hi \n"
	result := engine.Rewrite(context.Background(), query, rewrite.FoundProfile(beijingProfile))
	assert.False(t, result.IsRewritten)
	assert.Equal(t, rewrite.SkipTooShort, result.SkipReason)
	assert.Equal(t, query, result.RewrittenQuery)
}

func TestRewrite_Success(t *testing.T) {
	provider := staticProvider("recommend restaurants near Chaoyang District, Beijing")
	engine := newTestEngine(t, provider, &rewrite.Config{Enabled: true})

	result := engine.Rewrite(context.Background(), "recommend nearby restaurants", rewrite.FoundProfile(beijingProfile))

	assert.True(t, result.IsRewritten)
	assert.Equal(t, rewrite.SkipNone, result.SkipReason)
	assert.Equal(t, "recommend nearby restaurants", result.OriginalQuery)
	assert.Contains(t, result.RewrittenQuery, "Chaoyang")
	assert.Equal(t, 1, provider.calls)
}

func TestRewrite_PromptGroundsQueryInProfile(t *testing.T) {
	var captured []llm.Message
	provider := &fakeProvider{
		generateFn: func(_ context.Context, messages []llm.Message) (string, error) {
			captured = messages
			return "restaurants in Chaoyang District", nil
		},
	}
	engine := newTestEngine(t, provider, &rewrite.Config{Enabled: true})

	engine.Rewrite(context.Background(), "recommend nearby restaurants", rewrite.FoundProfile(beijingProfile))

	require.Len(t, captured, 2)
	assert.Equal(t, "system", captured[0].Role)
	assert.Equal(t, "user", captured[1].Role)
	assert.Contains(t, captured[1].Content, beijingProfile)
	assert.Contains(t, captured[1].Content, "recommend nearby restaurants")
}

func TestRewrite_CustomInstructions(t *testing.T) {
	var captured []llm.Message
	provider := &fakeProvider{
		generateFn: func(_ context.Context, messages []llm.Message) (string, error) {
			captured = messages
			return "something else", nil
		},
	}
	engine := newTestEngine(t, provider, &rewrite.Config{
		Enabled:            true,
		CustomInstructions: "Make queries more specific and technical.",
	})

	engine.Rewrite(context.Background(), "how is my project going", rewrite.FoundProfile(beijingProfile))

	require.Len(t, captured, 2)
	assert.Contains(t, captured[1].Content, "Make queries more specific and technical.")
	assert.NotContains(t, captured[1].Content, rewrite.DefaultRewriteInstructions)
}

func TestRewrite_FailOpenOnProviderError(t *testing.T) {
	provider := &fakeProvider{
		generateFn: func(context.Context, []llm.Message) (string, error) {
			return "", errors.New("upstream exploded")
		},
	}
	engine := newTestEngine(t, provider, &rewrite.Config{Enabled: true})

	query := "recommend nearby restaurants"
	result := engine.Rewrite(context.Background(), query, rewrite.FoundProfile(beijingProfile))

	assert.False(t, result.IsRewritten)
	assert.Equal(t, rewrite.SkipGenerationFailed, result.SkipReason)
	assert.Equal(t, query, result.RewrittenQuery)
}

func TestRewrite_FailOpenOnProviderPanic(t *testing.T) {
	provider := &fakeProvider{
		generateFn: func(context.Context, []llm.Message) (string, error) {
			panic("provider bug")
		},
	}
	engine := newTestEngine(t, provider, &rewrite.Config{Enabled: true})

	query := "recommend nearby restaurants"
	assert.NotPanics(t, func() {
		result := engine.Rewrite(context.Background(), query, rewrite.FoundProfile(beijingProfile))
		assert.False(t, result.IsRewritten)
		assert.Equal(t, rewrite.SkipGenerationFailed, result.SkipReason)
		assert.Equal(t, query, result.RewrittenQuery)
	})
}

func TestRewrite_TimeoutIsBounded(t *testing.T) {
	provider := &fakeProvider{
		generateFn: func(ctx context.Context, _ []llm.Message) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	engine := newTestEngine(t, provider, &rewrite.Config{Enabled: true, Timeout: 50 * time.Millisecond})

	start := time.Now()
	result := engine.Rewrite(context.Background(), "recommend nearby restaurants", rewrite.FoundProfile(beijingProfile))

	assert.False(t, result.IsRewritten)
	assert.Equal(t, rewrite.SkipGenerationFailed, result.SkipReason)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRewrite_CallerCancellationStopsRetries(t *testing.T) {
	provider := &fakeProvider{
		generateFn: func(ctx context.Context, _ []llm.Message) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	engine := newTestEngine(t, provider, &rewrite.Config{Enabled: true, MaxAttempts: 5, Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result := engine.Rewrite(ctx, "recommend nearby restaurants", rewrite.FoundProfile(beijingProfile))

	assert.False(t, result.IsRewritten)
	assert.Equal(t, rewrite.SkipGenerationFailed, result.SkipReason)
	assert.Equal(t, 1, provider.calls, "cancelled caller must not trigger further attempts")
}

func TestRewrite_RetriesUpToMaxAttempts(t *testing.T) {
	attempts := 0
	provider := &fakeProvider{
		generateFn: func(context.Context, []llm.Message) (string, error) {
			attempts++
			if attempts == 1 {
				return "", errors.New("transient")
			}
			return "restaurants near Chaoyang District", nil
		},
	}
	engine := newTestEngine(t, provider, &rewrite.Config{Enabled: true, MaxAttempts: 2})

	result := engine.Rewrite(context.Background(), "recommend nearby restaurants", rewrite.FoundProfile(beijingProfile))

	assert.True(t, result.IsRewritten)
	assert.Equal(t, 2, attempts)
}

func TestRewrite_NoChange(t *testing.T) {
	query := "list all my saved notes"

	t.Run("identical echo", func(t *testing.T) {
		engine := newTestEngine(t, staticProvider(query), &rewrite.Config{Enabled: true})
		result := engine.Rewrite(context.Background(), query, rewrite.FoundProfile(beijingProfile))

		assert.False(t, result.IsRewritten)
		assert.Equal(t, rewrite.SkipNoChange, result.SkipReason)
		assert.Equal(t, query, result.RewrittenQuery)
	})

	t.Run("case-folded echo", func(t *testing.T) {
		engine := newTestEngine(t, staticProvider("List All My Saved Notes"), &rewrite.Config{Enabled: true})
		result := engine.Rewrite(context.Background(), query, rewrite.FoundProfile(beijingProfile))

		assert.False(t, result.IsRewritten)
		assert.Equal(t, rewrite.SkipNoChange, result.SkipReason)
		// Round-trip law: the original comes back, not the echo.
		assert.Equal(t, query, result.RewrittenQuery)
	})

	t.Run("padded echo", func(t *testing.T) {
		engine := newTestEngine(t, staticProvider("  "+query+"\n"), &rewrite.Config{Enabled: true})
		result := engine.Rewrite(context.Background(), query, rewrite.FoundProfile(beijingProfile))

		assert.False(t, result.IsRewritten)
		assert.Equal(t, rewrite.SkipNoChange, result.SkipReason)
	})
}

func TestRewrite_EmptyResponseFailsOpen(t *testing.T) {
	for _, response := range []string{"", "   ", "\n\t"} {
		engine := newTestEngine(t, staticProvider(response), &rewrite.Config{Enabled: true})
		result := engine.Rewrite(context.Background(), "recommend nearby restaurants", rewrite.FoundProfile(beijingProfile))

		assert.False(t, result.IsRewritten)
		assert.Equal(t, rewrite.SkipGenerationFailed, result.SkipReason)
		assert.Equal(t, "recommend nearby restaurants", result.RewrittenQuery)
	}
}

func TestRewrite_OversizedQueryIsTruncatedNotRejected(t *testing.T) {
	var promptLen int
	provider := &fakeProvider{
		generateFn: func(_ context.Context, messages []llm.Message) (string, error) {
			promptLen = len(messages[1].Content)
			return "bounded answer", nil
		},
	}
	engine := newTestEngine(t, provider, &rewrite.Config{Enabled: true})

	long := strings.Repeat("recommend nearby restaurants ", 5000)
	result := engine.Rewrite(context.Background(), long, rewrite.FoundProfile(beijingProfile))

	assert.True(t, result.IsRewritten)
	// 8192 query runes + 4096 profile runes + template overhead.
	assert.Less(t, promptLen, 20000)
}

func TestRewrite_ResultRoundTripLaw(t *testing.T) {
	// Whenever IsRewritten is false, RewrittenQuery is byte-identical to
	// OriginalQuery, across every skip and fallback path.
	queries := []string{"", "  ", "hi", "  recommend nearby restaurants  ", "好"}
	providers := map[string]*fakeProvider{
		"error": {generateFn: func(context.Context, []llm.Message) (string, error) {
			return "", errors.New("boom")
		}},
		"echo": {generateFn: func(_ context.Context, m []llm.Message) (string, error) {
			return "  recommend nearby restaurants  ", nil
		}},
	}

	for name, provider := range providers {
		engine := newTestEngine(t, provider, &rewrite.Config{Enabled: true})
		for _, q := range queries {
			for _, p := range []rewrite.ProfileLookup{rewrite.NoProfile(), rewrite.FoundProfile(beijingProfile)} {
				result := engine.Rewrite(context.Background(), q, p)
				if !result.IsRewritten {
					assert.Equal(t, result.OriginalQuery, result.RewrittenQuery, "provider=%s query=%q", name, q)
					assert.Equal(t, q, result.OriginalQuery)
				}
			}
		}
	}
}
