// Package oceanbase provides the OceanBase implementation of the profile
// store. OceanBase speaks the MySQL protocol, so the store also works
// against a plain MySQL server.
package oceanbase

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/go-sql-driver/mysql"

	"github.com/memlens/memlens-go/pkg/profile"
)

// Store implements profile.Store using OceanBase/MySQL as the backend.
type Store struct {
	db        *sql.DB
	tableName string
	node      *snowflake.Node
}

// Config contains OceanBase connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string

	// TableName is the profiles table name (default: "user_profiles").
	TableName string
}

// NewStore creates a new OceanBase profile store and initializes its
// schema.
func NewStore(cfg *Config) (*Store, error) {
	tableName := cfg.TableName
	if tableName == "" {
		tableName = "user_profiles"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("oceanbase: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("oceanbase: ping: %w", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("oceanbase: create snowflake node: %w", err)
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

// initTable creates the profiles table.
func (s *Store) initTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL UNIQUE,
			profile_content LONGTEXT,
			topics JSON,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_user_id (user_id)
		)
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("oceanbase: create table: %w", err)
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
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			profile_content = VALUES(profile_content),
			topics = VALUES(topics),
			updated_at = VALUES(updated_at)
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query, id, userID, profileContent, topicsJSON, now, now); err != nil {
		return 0, fmt.Errorf("oceanbase: save profile: %w", err)
	}

	// The upsert keeps the original row ID on conflict; read it back.
	var savedID int64
	selectQuery := fmt.Sprintf("SELECT id FROM %s WHERE user_id = ?", s.tableName)
	if err := s.db.QueryRowContext(ctx, selectQuery, userID).Scan(&savedID); err != nil {
		return 0, fmt.Errorf("oceanbase: read saved profile id: %w", err)
	}
	return savedID, nil
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
		return nil, fmt.Errorf("oceanbase: get profile: %w", err)
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
		return nil, fmt.Errorf("oceanbase: query profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var profiles []*profile.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("oceanbase: scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("oceanbase: iterate rows: %w", err)
	}

	return profiles, nil
}

// DeleteProfile deletes a profile by profile ID.
func (s *Store) DeleteProfile(ctx context.Context, profileID int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.tableName)
	result, err := s.db.ExecContext(ctx, query, profileID)
	if err != nil {
		return fmt.Errorf("oceanbase: delete profile: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("oceanbase: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("oceanbase: profile %d not found", profileID)
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
		return nil, fmt.Errorf("oceanbase: marshal topics: %w", err)
	}
	return data, nil
}
