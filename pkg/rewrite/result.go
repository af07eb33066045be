package rewrite

import "time"

// Result is the immutable outcome of a rewrite attempt.
//
// Invariants:
//   - IsRewritten == false implies RewrittenQuery == OriginalQuery,
//     byte-identical including whitespace and casing.
//   - IsRewritten == true only when a non-empty profile existed, the
//     query met the minimum length, and generation returned non-empty
//     text differing from the original under trim + case-fold comparison.
//
// A Result is created per search call, consumed immediately, and
// discarded; nothing is retained between invocations.
type Result struct {
	// OriginalQuery is the caller's query, untouched.
	OriginalQuery string `json:"original_query"`

	// RewrittenQuery is the query the search pipeline should use.
	RewrittenQuery string `json:"rewritten_query"`

	// IsRewritten reports whether a rewrite actually occurred.
	IsRewritten bool `json:"is_rewritten"`

	// SkipReason is set when IsRewritten is false.
	SkipReason SkipReason `json:"skip_reason,omitempty"`

	// Elapsed is the wall time spent in the executor (zero for gate skips).
	Elapsed time.Duration `json:"elapsed,omitempty"`
}

// skipped builds a fallback Result carrying the original query.
func skipped(query string, reason SkipReason) *Result {
	return &Result{
		OriginalQuery:  query,
		RewrittenQuery: query,
		IsRewritten:    false,
		SkipReason:     reason,
	}
}
