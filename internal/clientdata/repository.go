// Package clientdata provides persistent caching for external API client responses.
// Responses are stored as msgpack blobs with expiration timestamps so the quote
// cache survives process restarts.
package clientdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/refinery/internal/database"
)

// Schema defines the quote cache table. Entries with a NULL expires_at are
// negative entries (a failed fetch); they are always considered stale and get
// retried on next access.
const Schema = `
CREATE TABLE IF NOT EXISTS market_quotes (
	key TEXT PRIMARY KEY,
	data BLOB,
	expires_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_market_quotes_expires ON market_quotes(expires_at);
`

// Entry is one cached response. Data is an opaque blob owned by the client that
// stored it; a nil Data together with a nil ExpiresAt marks a failed fetch.
type Entry struct {
	Key       string
	Data      []byte
	ExpiresAt *time.Time
}

// Fresh reports whether the entry can be served without a refetch.
func (e Entry) Fresh(now time.Time) bool {
	return e.ExpiresAt != nil && e.ExpiresAt.After(now)
}

// Repository provides cache operations for client data.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new client data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// StoreAll upserts a batch of entries in a single transaction.
// Used by the save-on-shutdown flush; atomicity means a crash mid-write
// leaves the previous snapshot intact rather than a corrupt one.
func (r *Repository) StoreAll(entries []Entry) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare("INSERT OR REPLACE INTO market_quotes (key, data, expires_at) VALUES (?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.Exec(e.Key, e.Data, expiresAtUnix(e.ExpiresAt)); err != nil {
				return fmt.Errorf("failed to store cache entry %s: %w", e.Key, err)
			}
		}
		return nil
	})
}

// LoadAll returns every cached entry. Used to warm the in-memory cache at startup.
func (r *Repository) LoadAll() ([]Entry, error) {
	rows, err := r.db.Query("SELECT key, data, expires_at FROM market_quotes")
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cache entries: %w", err)
	}

	return entries, nil
}

// GetIfFresh returns the entry only if its expiry is still in the future.
// Returns nil, nil when the key is missing or the entry is stale.
func (r *Repository) GetIfFresh(key string) (*Entry, error) {
	e, err := r.Get(key)
	if err != nil || e == nil {
		return e, err
	}
	if !e.Fresh(time.Now()) {
		return nil, nil
	}
	return e, nil
}

// Get returns the entry regardless of expiration status.
// Returns nil, nil if the key doesn't exist.
func (r *Repository) Get(key string) (*Entry, error) {
	row := r.db.QueryRow("SELECT key, data, expires_at FROM market_quotes WHERE key = ?", key)

	var (
		e       Entry
		data    []byte
		expires sql.NullInt64
	)
	err := row.Scan(&e.Key, &data, &expires)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}

	e.Data = data
	if expires.Valid {
		t := time.Unix(expires.Int64, 0)
		e.ExpiresAt = &t
	}
	return &e, nil
}

// Delete removes a specific entry.
func (r *Repository) Delete(key string) error {
	if _, err := r.db.Exec("DELETE FROM market_quotes WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

// DeleteExpired removes all rows whose expiry has passed. Negative entries
// (NULL expiry) are also removed; they carry no data worth keeping.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpired() (int64, error) {
	now := time.Now().Unix()

	result, err := r.db.Exec("DELETE FROM market_quotes WHERE expires_at < ? OR expires_at IS NULL", now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// Clear removes every entry. Exposed to the UI collaborator as the
// cache-clear capability.
func (r *Repository) Clear() error {
	if _, err := r.db.Exec("DELETE FROM market_quotes"); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// Count returns the number of cached entries.
func (r *Repository) Count() (int64, error) {
	var n int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM market_quotes").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e       Entry
		data    []byte
		expires sql.NullInt64
	)
	if err := row.Scan(&e.Key, &data, &expires); err != nil {
		return Entry{}, fmt.Errorf("failed to scan cache entry: %w", err)
	}
	e.Data = data
	if expires.Valid {
		t := time.Unix(expires.Int64, 0)
		e.ExpiresAt = &t
	}
	return e, nil
}

func expiresAtUnix(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
