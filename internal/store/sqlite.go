package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps revisions in a local database file
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore creates or opens the database at path and applies the schema
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store needs a path")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, changeID string) (string, bool, error) {
	var rev string
	err := s.db.QueryRowContext(ctx,
		`SELECT revision FROM change_revisions WHERE change_id = ?`, changeID,
	).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read revision for %s: %w", changeID, err)
	}
	return rev, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, changeID, revision string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO change_revisions (change_id, revision, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(change_id) DO UPDATE SET revision = excluded.revision, updated_at = excluded.updated_at`,
		changeID, revision, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store revision for %s: %w", changeID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
