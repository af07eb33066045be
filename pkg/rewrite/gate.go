package rewrite

import (
	"strings"
	"unicode/utf8"
)

// SkipReason explains why a query was not rewritten.
type SkipReason string

const (
	// SkipNone means the query was rewritten (no skip occurred).
	SkipNone SkipReason = ""

	// SkipDisabled means the rewrite stage is disabled by configuration.
	SkipDisabled SkipReason = "disabled"

	// SkipEmptyQuery means the query is empty or whitespace-only.
	SkipEmptyQuery SkipReason = "empty_query"

	// SkipTooShort means the trimmed query is shorter than the configured
	// minimum length.
	SkipTooShort SkipReason = "too_short"

	// SkipNoProfile means no profile exists for the user.
	SkipNoProfile SkipReason = "no_profile"

	// SkipEmptyProfile means the profile exists but its content is empty
	// or whitespace-only.
	SkipEmptyProfile SkipReason = "empty_profile"

	// SkipGenerationFailed means the generation call failed, timed out,
	// or returned an empty response.
	SkipGenerationFailed SkipReason = "generation_failed"

	// SkipNoChange means the generated text matched the original query
	// under trim + case-fold comparison. This is a legitimate outcome for
	// queries that are already unambiguous, not an error.
	SkipNoChange SkipReason = "no_change"
)

// ProfileLookup is the outcome of resolving a user to a profile summary.
//
// A failed or empty lookup is expressed as NoProfile; the gate treats
// accessor failures the same as a missing profile.
type ProfileLookup struct {
	// Found reports whether a profile exists for the user.
	Found bool

	// Content is the profile summary text. May be empty or whitespace
	// even when Found is true.
	Content string
}

// FoundProfile returns a ProfileLookup for an existing profile.
func FoundProfile(content string) ProfileLookup {
	return ProfileLookup{Found: true, Content: content}
}

// NoProfile returns a ProfileLookup for a missing profile.
func NoProfile() ProfileLookup {
	return ProfileLookup{}
}

// Decision is the gate's verdict on a single query.
type Decision struct {
	// Proceed reports whether the executor should be invoked.
	Proceed bool

	// Reason is set when Proceed is false.
	Reason SkipReason
}

// Decide evaluates whether a rewrite should be attempted.
//
// It is a pure, total function: no side effects, no failure mode. Checks
// are applied in order and the first match wins:
//
//  1. rewriting disabled
//  2. empty or whitespace-only query
//  3. trimmed query shorter than MinQueryLength (Unicode codepoints, so
//     multi-byte scripts count one character per codepoint)
//  4. no profile for the user
//  5. profile content empty after trimming
//
// There is no upper length bound: arbitrarily long queries proceed, and
// the executor handles oversized input by truncation.
func Decide(query string, profile ProfileLookup, cfg *Config) Decision {
	if cfg == nil || !cfg.Enabled {
		return Decision{Reason: SkipDisabled}
	}

	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return Decision{Reason: SkipEmptyQuery}
	}
	if utf8.RuneCountInString(trimmed) < cfg.MinQueryLength {
		return Decision{Reason: SkipTooShort}
	}

	if !profile.Found {
		return Decision{Reason: SkipNoProfile}
	}
	if strings.TrimSpace(profile.Content) == "" {
		return Decision{Reason: SkipEmptyProfile}
	}

	return Decision{Proceed: true}
}
