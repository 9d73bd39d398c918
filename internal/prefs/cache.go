package prefs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Cache persists extracted tables keyed by provider, language and fingerprint,
// so an unchanged worker is not introspected again on restart.
type Cache struct {
	db *sql.DB
}

// NewCache returns a Cache over a database bootstrapped by storage.OpenSQLite.
func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db}
}

// Get returns the cached table if one exists for exactly this fingerprint.
func (c *Cache) Get(ctx context.Context, provider, lang, fingerprint string) (Table, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx, `
SELECT preferences FROM preference_cache
WHERE provider = ? AND language = ? AND fingerprint = ?;
`, provider, lang, fingerprint).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query preference cache: %w", err)
	}

	var table Table
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		return nil, false, fmt.Errorf("decode cached preferences: %w", err)
	}
	return table, true, nil
}

// Put stores table for the language, replacing any older fingerprint.
func (c *Cache) Put(ctx context.Context, provider, lang, fingerprint string, table Table) error {
	raw, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
INSERT INTO preference_cache(provider, language, fingerprint, preferences, created_at)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(provider, language) DO UPDATE SET
  fingerprint = excluded.fingerprint,
  preferences = excluded.preferences,
  created_at  = excluded.created_at;
`, provider, lang, fingerprint, string(raw), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store preferences: %w", err)
	}
	return nil
}
