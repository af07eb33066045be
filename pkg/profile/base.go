// Package profile defines the profile accessor consumed by the rewrite
// stage: a read-mostly store of per-user profile summaries.
//
// The rewrite engine only ever reads profiles; the write operations exist
// for integrators that own the profile lifecycle. Implementations can use
// different backends (SQLite, PostgreSQL, OceanBase).
package profile

import (
	"context"
	"time"
)

// UserProfile is a synthesized natural-language summary of durable facts
// about a user (location, occupation, ongoing projects).
type UserProfile struct {
	// ID is the unique identifier of the profile row.
	ID int64 `json:"id"`

	// UserID identifies the user this profile belongs to.
	UserID string `json:"user_id"`

	// ProfileContent is the unstructured text summary. May be empty.
	ProfileContent string `json:"profile_content,omitempty"`

	// Topics contains structured user characteristics as key-value pairs.
	Topics map[string]interface{} `json:"topics,omitempty"`

	// CreatedAt is when the profile was first created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the profile was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the interface for storing and resolving user profiles.
type Store interface {
	// SaveProfile creates or updates the profile for a user and returns
	// the profile ID.
	SaveProfile(ctx context.Context, userID string, profileContent *string, topics map[string]interface{}) (int64, error)

	// GetProfileByUserID resolves a user to their profile. Returns
	// (nil, nil) when no profile exists.
	GetProfileByUserID(ctx context.Context, userID string) (*UserProfile, error)

	// GetProfiles lists profiles with optional filtering and pagination.
	GetProfiles(ctx context.Context, opts *GetProfilesOptions) ([]*UserProfile, error)

	// DeleteProfile deletes a profile by profile ID.
	DeleteProfile(ctx context.Context, profileID int64) error

	// Close releases backend resources.
	Close() error
}

// GetProfilesOptions contains options for listing profiles.
type GetProfilesOptions struct {
	// UserID filters to a single user.
	UserID string

	// Limit caps the number of results (0 = no limit).
	Limit int

	// Offset skips results for pagination.
	Offset int
}
