// Package search composes the query-rewrite stage with a memory search
// backend.
//
// The Client sits where the search orchestrator meets the rewrite engine:
// it resolves the user's profile, runs the rewrite gate and executor, and
// always proceeds to search with whichever query the engine returns. The
// rewrite stage can only improve the query, never block the request.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/memlens/memlens-go/pkg/llm"
	"github.com/memlens/memlens-go/pkg/profile"
	"github.com/memlens/memlens-go/pkg/rewrite"
)

// Hit is a single search result from the underlying memory searcher.
type Hit struct {
	// ID is the memory identifier.
	ID int64 `json:"id"`

	// Content is the memory text.
	Content string `json:"content"`

	// Score is the relevance score assigned by the searcher.
	Score float64 `json:"score"`

	// Metadata contains additional structured information.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Searcher is the external vector/memory search collaborator. The rewrite
// stage neither knows nor cares how it ranks; it only hands over a query.
type Searcher interface {
	Search(ctx context.Context, query string, opts *SearchOptions) ([]Hit, error)
}

// SearchResult contains the outcome of a Search call.
type SearchResult struct {
	// Hits is the list of matching memories.
	Hits []Hit

	// Rewrite describes what the rewrite stage did with the query.
	// Nil when rewriting is disabled or no user ID was provided.
	Rewrite *rewrite.Result

	// ProfileContent is the user's profile (only with WithAddProfile).
	ProfileContent *string
}

// Config contains configuration for creating a search Client.
type Config struct {
	// Searcher is the memory search backend (required).
	Searcher Searcher

	// ProfileStore resolves users to profile summaries (required).
	ProfileStore profile.Store

	// ProfileCacheTTL enables a read-through TTL cache over ProfileStore
	// when positive (see profile.NewCachedStore).
	ProfileCacheTTL time.Duration

	// QueryRewrite configures the rewrite stage. When nil or disabled,
	// no engine is constructed and queries pass through untouched.
	QueryRewrite *rewrite.Config

	// LLM selects the generation backend for rewriting. Required only
	// when QueryRewrite is enabled and Provider is nil.
	LLM *ProviderConfig

	// Provider is a pre-built generation backend. When set it takes
	// precedence over LLM; the caller retains ownership and Close does
	// not release it.
	Provider llm.Provider

	// Logger receives soft signals; defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Client orchestrates profile lookup, query rewriting, and search.
//
// The rewriter reference is nil when rewriting is disabled: the engine is
// only constructed when configuration enables it, so the disabled path
// does no profile lookups and makes no generation calls.
type Client struct {
	searcher Searcher
	profiles profile.Store
	rewriter *rewrite.Engine
	provider llm.Provider
	logger   zerolog.Logger
}

// NewClient creates a search client.
//
// Configuration problems (missing collaborators, invalid rewrite config,
// unknown provider) are reported here; after construction, Search never
// fails because of the rewrite stage.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.Searcher == nil {
		return nil, fmt.Errorf("search: searcher is required")
	}
	if cfg.ProfileStore == nil {
		return nil, fmt.Errorf("search: profile store is required")
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	profiles := cfg.ProfileStore
	if cfg.ProfileCacheTTL > 0 {
		profiles = profile.NewCachedStore(profiles, 0, cfg.ProfileCacheTTL)
	}

	c := &Client{
		searcher: cfg.Searcher,
		profiles: profiles,
		logger:   logger,
	}

	if cfg.QueryRewrite != nil && cfg.QueryRewrite.Enabled {
		provider := cfg.Provider
		ownsProvider := false
		if provider == nil {
			p, err := NewProvider(cfg.LLM)
			if err != nil {
				return nil, fmt.Errorf("search: create rewrite provider: %w", err)
			}
			provider = p
			ownsProvider = true
		}
		engine, err := rewrite.NewEngine(provider, cfg.QueryRewrite, rewrite.WithLogger(logger))
		if err != nil {
			if ownsProvider {
				_ = provider.Close()
			}
			return nil, fmt.Errorf("search: create rewrite engine: %w", err)
		}
		if ownsProvider {
			c.provider = provider
		}
		c.rewriter = engine
	}

	return c, nil
}

// Search resolves the user's profile, rewrites the query when warranted,
// and delegates to the searcher.
//
// Search always executes: a missing profile, a failed lookup, or a failed
// generation call degrades to the original query, never to an error from
// the rewrite stage.
func (c *Client) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResult, error) {
	searchOpts := applySearchOptions(opts)

	effectiveQuery := query
	var rewriteResult *rewrite.Result

	if c.rewriter != nil && searchOpts.UserID != "" {
		lookup := c.lookupProfile(ctx, searchOpts.UserID)
		rewriteResult = c.rewriter.Rewrite(ctx, query, lookup)
		if rewriteResult.IsRewritten {
			effectiveQuery = rewriteResult.RewrittenQuery
		}
	}

	hits, err := c.searcher.Search(ctx, effectiveQuery, searchOpts)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	result := &SearchResult{
		Hits:    hits,
		Rewrite: rewriteResult,
	}

	if searchOpts.AddProfile && searchOpts.UserID != "" {
		if p, err := c.profiles.GetProfileByUserID(ctx, searchOpts.UserID); err == nil && p != nil && p.ProfileContent != "" {
			content := p.ProfileContent
			result.ProfileContent = &content
		}
	}

	return result, nil
}

// lookupProfile resolves a user to a gate input. Accessor failures are a
// soft signal and degrade to "no profile".
func (c *Client) lookupProfile(ctx context.Context, userID string) rewrite.ProfileLookup {
	p, err := c.profiles.GetProfileByUserID(ctx, userID)
	if err != nil {
		c.logger.Debug().
			Err(err).
			Str("user_id", userID).
			Msg("profile lookup failed, skipping query rewrite")
		return rewrite.NoProfile()
	}
	if p == nil {
		return rewrite.NoProfile()
	}
	return rewrite.FoundProfile(p.ProfileContent)
}

// GetProfile retrieves the profile for a user, or (nil, nil) when absent.
func (c *Client) GetProfile(ctx context.Context, userID string) (*profile.UserProfile, error) {
	return c.profiles.GetProfileByUserID(ctx, userID)
}

// SaveProfile creates or updates a user's profile summary.
func (c *Client) SaveProfile(ctx context.Context, userID string, profileContent string) (int64, error) {
	return c.profiles.SaveProfile(ctx, userID, &profileContent, nil)
}

// DeleteProfileByUserID removes a user's profile. Deleting a missing
// profile is not an error.
func (c *Client) DeleteProfileByUserID(ctx context.Context, userID string) error {
	p, err := c.profiles.GetProfileByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("search: get profile: %w", err)
	}
	if p == nil {
		return nil
	}
	return c.profiles.DeleteProfile(ctx, p.ID)
}

// Close releases the profile store and, when rewriting is enabled, the
// generation provider.
func (c *Client) Close() error {
	var firstErr error

	if c.profiles != nil {
		if err := c.profiles.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.provider != nil {
		if err := c.provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
