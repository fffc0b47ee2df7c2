package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const createEntriesTable = `
	CREATE TABLE IF NOT EXISTS kv_entries (
		entry_key  TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)
`

// PostgresStore is a Store backed by a single kv_entries table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the database, verifies the connection and creates the table if needed
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, createEntriesTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create kv_entries table: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Get retrieves the value stored at key
func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM kv_entries WHERE entry_key = $1
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get kv entry %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts the value stored at key
func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (entry_key, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (entry_key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, key, value, now, now)
	if err != nil {
		return fmt.Errorf("set kv entry %s: %w", key, err)
	}
	return nil
}

// Ping verifies the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
