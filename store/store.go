// Package store persists subscriptions and blocklists in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"subscription_watcher/subscriptions"
)

const schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
	id          TEXT PRIMARY KEY,
	destination TEXT NOT NULL,
	query       TEXT NOT NULL,
	paused      INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS subscriptions_destination ON subscriptions(destination);
CREATE TABLE IF NOT EXISTS blocklist (
	destination TEXT NOT NULL,
	query       TEXT NOT NULL,
	position    INTEGER NOT NULL,
	PRIMARY KEY (destination, query)
);
CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const cursorKey = "feed_cursor"

var log = logrus.WithField("component", "store")

// Store is a SQLite-backed subscriptions.Store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and makes sure the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)"
	} else {
		dsn += "&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode=WAL;")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSubscription inserts or updates a subscription.
func (s *Store) SaveSubscription(ctx context.Context, sub subscriptions.Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, destination, query, paused, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			destination = excluded.destination,
			query = excluded.query,
			paused = excluded.paused`,
		sub.ID, sub.Destination, sub.QueryText, sub.Paused, sub.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save subscription %s: %w", sub.ID, err)
	}
	return nil
}

// DeleteSubscription removes a subscription. Deleting a missing row is not an error.
func (s *Store) DeleteSubscription(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete subscription %s: %w", id, err)
	}
	return nil
}

// SaveBlock appends a blocklist entry for destination.
func (s *Store) SaveBlock(ctx context.Context, destination, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocklist (destination, query, position)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM blocklist WHERE destination = ?))
		ON CONFLICT(destination, query) DO NOTHING`,
		destination, text, destination)
	if err != nil {
		return fmt.Errorf("failed to save block for %s: %w", destination, err)
	}
	return nil
}

// DeleteBlock removes a blocklist entry.
func (s *Store) DeleteBlock(ctx context.Context, destination, text string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blocklist WHERE destination = ? AND query = ?`, destination, text)
	if err != nil {
		return fmt.Errorf("failed to delete block for %s: %w", destination, err)
	}
	return nil
}

// Load reads everything back as a snapshot for subscriptions.Registry.Restore.
func (s *Store) Load(ctx context.Context) (subscriptions.Snapshot, error) {
	snap := subscriptions.Snapshot{Blocks: make(map[string][]string)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, destination, query, paused, created_at
		FROM subscriptions ORDER BY created_at, id`)
	if err != nil {
		return snap, fmt.Errorf("failed to load subscriptions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sub     subscriptions.Subscription
			created string
		)
		if err := rows.Scan(&sub.ID, &sub.Destination, &sub.QueryText, &sub.Paused, &created); err != nil {
			return snap, fmt.Errorf("failed to read subscription: %w", err)
		}
		sub.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			log.WithError(err).WithField("subscription", sub.ID).Warn("Unparseable created_at, using zero time")
		}
		snap.Subscriptions = append(snap.Subscriptions, sub)
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("failed to load subscriptions: %w", err)
	}

	blockRows, err := s.db.QueryContext(ctx, `
		SELECT destination, query FROM blocklist ORDER BY destination, position`)
	if err != nil {
		return snap, fmt.Errorf("failed to load blocklists: %w", err)
	}
	defer blockRows.Close()

	for blockRows.Next() {
		var dest, text string
		if err := blockRows.Scan(&dest, &text); err != nil {
			return snap, fmt.Errorf("failed to read block: %w", err)
		}
		snap.Blocks[dest] = append(snap.Blocks[dest], text)
	}
	if err := blockRows.Err(); err != nil {
		return snap, fmt.Errorf("failed to load blocklists: %w", err)
	}

	log.WithField("subscriptions", len(snap.Subscriptions)).WithField("destinations", len(snap.Blocks)).Info("Loaded state")
	return snap, nil
}

// SaveCursor records the ID of the newest submission the watcher has processed.
func (s *Store) SaveCursor(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		cursorKey, id)
	if err != nil {
		return fmt.Errorf("failed to save feed cursor: %w", err)
	}
	return nil
}

// LoadCursor returns the saved feed position, or "" if none was saved yet.
func (s *Store) LoadCursor(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, cursorKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load feed cursor: %w", err)
	}
	return id, nil
}

var _ subscriptions.Store = (*Store)(nil)
