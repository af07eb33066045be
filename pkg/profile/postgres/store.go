// Package postgres provides the PostgreSQL implementation of the profile
// store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/lib/pq"

	"github.com/memlens/memlens-go/pkg/profile"
)

// Store implements profile.Store using PostgreSQL as the backend.
type Store struct {
	db        *sql.DB
	tableName string
	node      *snowflake.Node
}

// Config contains PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string

	// TableName is the profiles table name (default: "user_profiles").
	TableName string

	// SSLMode is the libpq sslmode (default: "disable").
	SSLMode string
}

// NewStore creates a new PostgreSQL profile store and initializes its
// schema.
func NewStore(cfg *Config) (*Store, error) {
	tableName := cfg.TableName
	if tableName == "" {
		tableName = "user_profiles"
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: create snowflake node: %w", err)
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
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL UNIQUE,
			profile_content TEXT,
			topics JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("postgres: create table: %w", err)
	}

	indexQuery := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_%s_user_id ON %s(user_id)",
		s.tableName, s.tableName,
	)
	if _, err := s.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("postgres: create index: %w", err)
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
	id := s.node.Generate().Int64()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, profile_content, topics, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET profile_content = EXCLUDED.profile_content,
		    topics = EXCLUDED.topics,
		    updated_at = EXCLUDED.updated_at
		RETURNING id
	`, s.tableName)

	var savedID int64
	if err := s.db.QueryRowContext(ctx, query, id, userID, profileContent, topicsJSON, now).Scan(&savedID); err != nil {
		return 0, fmt.Errorf("postgres: save profile: %w", err)
	}
	return savedID, nil
}

// GetProfileByUserID resolves a user to their profile, or (nil, nil) when
// no profile exists.
func (s *Store) GetProfileByUserID(ctx context.Context, userID string) (*profile.UserProfile, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, profile_content, topics, created_at, updated_at
		FROM %s WHERE user_id = $1
	`, s.tableName)

	p, err := scanProfile(s.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get profile: %w", err)
	}
	return p, nil
}

// GetProfiles lists profiles with optional filtering and pagination.
func (s *Store) GetProfiles(ctx context.Context, opts *profile.GetProfilesOptions) ([]*profile.UserProfile, error) {
	if opts == nil {
		opts = &profile.GetProfilesOptions{}
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, profile_content, topics, created_at, updated_at
		FROM %s
	`, s.tableName)

	var args []interface{}
	if opts.UserID != "" {
		query += " WHERE user_id = $1"
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
		return nil, fmt.Errorf("postgres: query profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var profiles []*profile.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate rows: %w", err)
	}

	return profiles, nil
}

// DeleteProfile deletes a profile by profile ID.
func (s *Store) DeleteProfile(ctx context.Context, profileID int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	result, err := s.db.ExecContext(ctx, query, profileID)
	if err != nil {
		return fmt.Errorf("postgres: delete profile: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("postgres: profile %d not found", profileID)
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

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*profile.UserProfile, error) {
	var p profile.UserProfile
	var content sql.NullString
	var topicsJSON []byte

	err := row.Scan(&p.ID, &p.UserID, &content, &topicsJSON, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.ProfileContent = content.String
	if len(topicsJSON) > 0 {
		if err := json.Unmarshal(topicsJSON, &p.Topics); err != nil {
			return nil, fmt.Errorf("unmarshal topics: %w", err)
		}
	}
	return &p, nil
}

func marshalTopics(topics map[string]interface{}) ([]byte, error) {
	if topics == nil {
		return nil, nil
	}
	data, err := json.Marshal(topics)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal topics: %w", err)
	}
	return data, nil
}
