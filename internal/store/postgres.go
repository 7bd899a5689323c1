package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres keeps each collection as a single JSONB array row, so the
// whole-collection read/write contract maps onto one statement.
type Postgres struct {
	db *sql.DB
}

// NewPostgres connects with sane pool defaults and ensures the schema.
func NewPostgres(connString string) (*Postgres, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS collections (
			name       TEXT PRIMARY KEY,
			records    JSONB NOT NULL DEFAULT '[]',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Read returns the collection's records; a missing row reads as empty.
func (s *Postgres) Read(ctx context.Context, collection string) ([]json.RawMessage, error) {
	if !validCollection(collection) {
		return nil, fmt.Errorf("%w: %q", ErrBadCollection, collection)
	}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT records FROM collections WHERE name = $1`, collection).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read collection %s: %w", collection, err)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode collection %s: %w", collection, err)
	}
	return records, nil
}

// Write upserts the whole collection in one statement.
func (s *Postgres) Write(ctx context.Context, collection string, records []json.RawMessage) error {
	if !validCollection(collection) {
		return fmt.Errorf("%w: %q", ErrBadCollection, collection)
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", collection, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO collections (name, records)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET records = EXCLUDED.records, updated_at = NOW()
	`, collection, data)
	if err != nil {
		return fmt.Errorf("write collection %s: %w", collection, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Postgres) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
