// Package rewrite implements profile-aware query rewriting for
// personal-memory search.
//
// Given a raw query and a user's profile summary, the engine decides
// whether rewriting is warranted (the gate) and, if so, asks a generation
// collaborator to ground vague references — location, time, project — in
// facts from the profile (the executor). The engine is fail-open: any
// collaborator fault degrades to the original query, never to an error or
// a blocked search request.
package rewrite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/memlens/memlens-go/pkg/llm"
)

// Engine composes the rewrite gate and executor behind a single entry
// point. It holds no mutable state across requests and is safe for
// concurrent use.
type Engine struct {
	provider llm.Provider
	config   *Config
	logger   zerolog.Logger
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger sets the logger used for soft signals (lookup and generation
// degradations). The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a rewrite engine.
//
// The configuration is validated here; an invalid configuration is the
// only condition under which the engine reports an error to the
// integrator. cfg may be nil, in which case DefaultConfig is used.
func NewEngine(provider llm.Provider, cfg *Config, opts ...Option) (*Engine, error) {
	if provider == nil {
		return nil, newError("NewEngine", ErrNilProvider)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		provider: provider,
		config:   cfg.withDefaults(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine's resolved configuration.
func (e *Engine) Config() *Config {
	out := *e.config
	return &out
}

// Rewrite evaluates the gate and, on proceed, executes the rewrite.
//
// It never returns an error: every collaborator fault is absorbed into a
// Result with IsRewritten=false and the original query carried through,
// so the caller always has a usable query.
func (e *Engine) Rewrite(ctx context.Context, query string, profile ProfileLookup) *Result {
	decision := Decide(query, profile, e.config)
	if !decision.Proceed {
		return skipped(query, decision.Reason)
	}
	return e.execute(ctx, query, profile.Content)
}

// execute performs the generation step. Called only after the gate
// proceeds, so the profile content is known to be non-empty.
func (e *Engine) execute(ctx context.Context, query, profileContent string) *Result {
	trimmed := strings.TrimSpace(query)
	prompt := buildRewritePrompt(profileContent, trimmed, e.config.CustomInstructions)
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}

	start := time.Now()
	response, err := e.generate(ctx, messages)
	elapsed := time.Since(start)

	if err != nil {
		e.logger.Warn().
			Err(err).
			Dur("elapsed", elapsed).
			Msg("query rewrite generation failed, falling back to original query")
		result := skipped(query, SkipGenerationFailed)
		result.Elapsed = elapsed
		return result
	}

	rewritten := strings.TrimSpace(response)
	if rewritten == "" {
		result := skipped(query, SkipGenerationFailed)
		result.Elapsed = elapsed
		return result
	}
	if strings.EqualFold(rewritten, trimmed) {
		result := skipped(query, SkipNoChange)
		result.Elapsed = elapsed
		return result
	}

	e.logger.Debug().
		Str("original", trimmed).
		Str("rewritten", rewritten).
		Dur("elapsed", elapsed).
		Msg("query rewritten")

	return &Result{
		OriginalQuery:  query,
		RewrittenQuery: rewritten,
		IsRewritten:    true,
		Elapsed:        elapsed,
	}
}

// generate invokes the provider with the configured timeout, retrying up
// to MaxAttempts times. A cancelled caller context stops the attempt loop
// immediately; the outstanding call is abandoned via its derived context.
func (e *Engine) generate(ctx context.Context, messages []llm.Message) (response string, err error) {
	// A panicking provider is treated as a generation failure.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation provider panic: %v", r)
		}
	}()

	for attempt := 0; attempt < e.config.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		response, err = e.provider.GenerateWithMessages(callCtx, messages, llm.WithTemperature(0.2))
		cancel()

		if err == nil {
			return response, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", err
}
