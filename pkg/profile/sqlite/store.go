// Package sqlite provides the SQLite implementation of the profile store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/mattn/go-sqlite3"

	"github.com/memlens/memlens-go/pkg/profile"
)

// Store implements profile.Store using SQLite as the backend.
type Store struct {
	db        *sql.DB
	tableName string
	node      *snowflake.Node
}

// Config contains configuration for creating a SQLite profile store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// TableName is the profiles table name (default: "user_profiles").
	TableName string
}

// NewStore creates a new SQLite profile store and initializes its schema.
func NewStore(cfg *Config) (*Store, error) {
	tableName := cfg.TableName
	if tableName == "" {
		tableName = "user_profiles"
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create snowflake node: %w", err)
	}

	store := &Store{
		db:        db,
		tableName: tableName,
		node:      node,
	}

	if err := store.initTable(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// initTable creates the profiles table and its user_id index.
func (s *Store) initTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE,
			profile_content TEXT,
			topics TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("sqlite: create table: %w", err)
	}

	indexQuery := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_%s_user_id ON %s(user_id)",
		s.tableName, s.tableName,
	)
	if _, err := s.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("sqlite: create index: %w", err)
	}

	return nil
}

// SaveProfile creates or updates the profile for a user.
func (s *Store) SaveProfile(ctx context.Context, userID string, profileContent *string, topics map[string]interface{}) (int64, error) {
	topicsJSON, err := marshalTopics(topics)
	if err != nil {
		return 0, err
	}

	now := time.Now()

	var existingID int64
	checkQuery := fmt.Sprintf("SELECT id FROM %s WHERE user_id = ?", s.tableName)
	err = s.db.QueryRowContext(ctx, checkQuery, userID).Scan(&existingID)

	switch {
	case err == nil:
		updateQuery := fmt.Sprintf(
			"UPDATE %s SET profile_content = ?, topics = ?, updated_at = ? WHERE user_id = ?",
			s.tableName,
		)
		if _, err := s.db.ExecContext(ctx, updateQuery, profileContent, topicsJSON, now, userID); err != nil {
			return 0, fmt.Errorf("sqlite: update profile: %w", err)
		}
		return existingID, nil
	case err == sql.ErrNoRows:
		id := s.node.Generate().Int64()
		insertQuery := fmt.Sprintf(
			"INSERT INTO %s (id, user_id, profile_content, topics, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			s.tableName,
		)
		if _, err := s.db.ExecContext(ctx, insertQuery, id, userID, profileContent, topicsJSON, now, now); err != nil {
			return 0, fmt.Errorf("sqlite: insert profile: %w", err)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("sqlite: check existing profile: %w", err)
	}
}

// GetProfileByUserID resolves a user to their profile, or (nil, nil) when
// no profile exists.
func (s *Store) GetProfileByUserID(ctx context.Context, userID string) (*profile.UserProfile, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, profile_content, topics, created_at, updated_at
		FROM %s WHERE user_id = ?
	`, s.tableName)

	p, err := scanProfile(s.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get profile: %w", err)
	}
	return p, nil
}

// GetProfiles lists profiles with optional filtering and pagination.
func (s *Store) GetProfiles(ctx context.Context, opts *GetProfilesOptions) ([]*profile.UserProfile, error) {
	if opts == nil {
		opts = &GetProfilesOptions{}
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, profile_content, topics, created_at, updated_at
		FROM %s
	`, s.tableName)

	var args []interface{}
	if opts.UserID != "" {
		query += " WHERE user_id = ?"
		args = append(args, opts.UserID)
	}
	query += " ORDER BY updated_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
		if opts.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var profiles []*profile.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate rows: %w", err)
	}

	return profiles, nil
}

// DeleteProfile deletes a profile by profile ID.
func (s *Store) DeleteProfile(ctx context.Context, profileID int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.tableName)
	result, err := s.db.ExecContext(ctx, query, profileID)
	if err != nil {
		return fmt.Errorf("sqlite: delete profile: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("sqlite: profile %d not found", profileID)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetProfilesOptions aliases the shared listing options.
type GetProfilesOptions = profile.GetProfilesOptions

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*profile.UserProfile, error) {
	var p profile.UserProfile
	var content sql.NullString
	var topicsJSON sql.NullString

	err := row.Scan(&p.ID, &p.UserID, &content, &topicsJSON, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.ProfileContent = content.String
	if topicsJSON.Valid && topicsJSON.String != "" {
		if err := json.Unmarshal([]byte(topicsJSON.String), &p.Topics); err != nil {
			return nil, fmt.Errorf("unmarshal topics: %w", err)
		}
	}
	return &p, nil
}

func marshalTopics(topics map[string]interface{}) (sql.NullString, error) {
	if topics == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(topics)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("sqlite: marshal topics: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
