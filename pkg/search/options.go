package search

// SearchOptions contains per-call options for Client.Search.
type SearchOptions struct {
	// UserID identifies the user; required for profile-based rewriting.
	UserID string

	// Limit caps the number of hits returned by the searcher.
	Limit int

	// AddProfile includes the user's profile content in the result.
	AddProfile bool
}

// SearchOption configures a single Search call.
type SearchOption func(*SearchOptions)

// WithUserID sets the user ID.
func WithUserID(userID string) SearchOption {
	return func(opts *SearchOptions) {
		opts.UserID = userID
	}
}

// WithLimit caps the number of hits.
func WithLimit(limit int) SearchOption {
	return func(opts *SearchOptions) {
		opts.Limit = limit
	}
}

// WithAddProfile includes the user's profile in the search result.
func WithAddProfile(addProfile bool) SearchOption {
	return func(opts *SearchOptions) {
		opts.AddProfile = addProfile
	}
}

// applySearchOptions resolves a slice of SearchOption with defaults.
func applySearchOptions(opts []SearchOption) *SearchOptions {
	options := &SearchOptions{
		Limit: 10,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
