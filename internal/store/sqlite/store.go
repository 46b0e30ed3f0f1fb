// Package sqlite keeps exchange API credentials in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/triarb/internal/domain"
)

const defaultPath = "triarb.db"

var _ domain.CredentialStore = (*Store)(nil)

// Store wraps a SQLite DB connection.
type Store struct {
	path string
	db   *sql.DB
}

// Open creates (if needed) and opens the SQLite database.
func Open(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: ensure data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if err := ensureWAL(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set WAL mode: %w", err)
	}
	return &Store{path: path, db: db}, nil
}

func ensureWAL(db *sql.DB) error {
	const (
		maxAttempts = 5
		delay       = 200 * time.Millisecond
	)
	for i := 0; i < maxAttempts; i++ {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			if strings.Contains(err.Error(), "database is locked") {
				time.Sleep(delay)
				continue
			}
			return err
		}
		return nil
	}
	return errors.New("database is locked after retries")
}

// Path returns the path backing the store.
func (s *Store) Path() string {
	return s.path
}

// Close closes the DB.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS exchanges (
	exchange_id TEXT PRIMARY KEY,
	api_key     TEXT NOT NULL,
	api_secret  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);`

// CreateTables ensures the credentials table exists.
func (s *Store) CreateTables(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("sqlite: create tables: %w", err)
	}
	return nil
}

// Get returns the credentials stored for an exchange, or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, exchangeID string) (domain.Credentials, error) {
	var c domain.Credentials
	err := s.db.QueryRowContext(ctx,
		`SELECT api_key, api_secret FROM exchanges WHERE exchange_id = ?`,
		normalize(exchangeID),
	).Scan(&c.APIKey, &c.APISecret)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Credentials{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("sqlite: get credentials %s: %w", exchangeID, err)
	}
	return c, nil
}

// Put inserts or replaces the credentials for an exchange.
func (s *Store) Put(ctx context.Context, exchangeID string, creds domain.Credentials) error {
	id := normalize(exchangeID)
	if id == "" {
		return errors.New("sqlite: put credentials: empty exchange id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchanges (exchange_id, api_key, api_secret, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(exchange_id) DO UPDATE SET
			api_key    = excluded.api_key,
			api_secret = excluded.api_secret,
			updated_at = excluded.updated_at`,
		id, creds.APIKey, creds.APISecret, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("sqlite: put credentials %s: %w", id, err)
	}
	return nil
}

// List returns the exchange ids that have stored credentials, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT exchange_id FROM exchanges ORDER BY exchange_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list credentials: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan exchange id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list credentials rows: %w", err)
	}
	return ids, nil
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
