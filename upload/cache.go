package upload

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// CachedSegment is a segment parked in the durable cache after delivery
// retries were exhausted. It survives process restarts and is removed once
// successfully replayed or its session is discarded.
type CachedSegment struct {
	SessionID      string
	Sequence       uint64
	Payload        []byte
	FirstFailureAt time.Time
	RetryCount     int
}

// Cache is a durable local store for undelivered segments, keyed by
// (sessionId, sequence). It is shared across sessions and safe for
// concurrent use.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (creating if needed) the segment cache at path.
func OpenCache(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cached_segments (
			session_id       TEXT    NOT NULL,
			sequence         INTEGER NOT NULL,
			payload          BLOB    NOT NULL,
			first_failure_at INTEGER NOT NULL,
			retry_count      INTEGER NOT NULL,
			PRIMARY KEY (session_id, sequence)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Put inserts or replaces a cached segment. Replacing keeps the original
// first-failure time so backlog age stays meaningful across replays.
func (c *Cache) Put(cs CachedSegment) error {
	_, err := c.db.Exec(`
		INSERT INTO cached_segments (session_id, sequence, payload, first_failure_at, retry_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, sequence) DO UPDATE SET
			payload = excluded.payload,
			retry_count = excluded.retry_count
	`, cs.SessionID, cs.Sequence, cs.Payload, cs.FirstFailureAt.UnixMilli(), cs.RetryCount)
	if err != nil {
		return fmt.Errorf("cache segment %d: %w", cs.Sequence, err)
	}
	return nil
}

// ForSession returns all cached segments for a session, ordered by sequence.
func (c *Cache) ForSession(sessionID string) ([]CachedSegment, error) {
	rows, err := c.db.Query(`
		SELECT session_id, sequence, payload, first_failure_at, retry_count
		FROM cached_segments
		WHERE session_id = ?
		ORDER BY sequence ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query cached segments: %w", err)
	}
	defer rows.Close()

	var segs []CachedSegment
	for rows.Next() {
		var cs CachedSegment
		var failedAt int64
		if err := rows.Scan(&cs.SessionID, &cs.Sequence, &cs.Payload, &failedAt, &cs.RetryCount); err != nil {
			return nil, fmt.Errorf("scan cached segment: %w", err)
		}
		cs.FirstFailureAt = time.UnixMilli(failedAt)
		segs = append(segs, cs)
	}
	return segs, rows.Err()
}

// Count returns the number of cached segments for a session.
func (c *Cache) Count(sessionID string) (int, error) {
	var n int
	err := c.db.QueryRow(`
		SELECT COUNT(*) FROM cached_segments WHERE session_id = ?
	`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count cached segments: %w", err)
	}
	return n, nil
}

// Delete removes one cached segment after successful replay.
func (c *Cache) Delete(sessionID string, sequence uint64) error {
	_, err := c.db.Exec(`
		DELETE FROM cached_segments WHERE session_id = ? AND sequence = ?
	`, sessionID, sequence)
	if err != nil {
		return fmt.Errorf("delete cached segment %d: %w", sequence, err)
	}
	return nil
}

// PurgeSession removes every cached segment belonging to a session. Used
// when the session is explicitly discarded.
func (c *Cache) PurgeSession(sessionID string) error {
	_, err := c.db.Exec(`
		DELETE FROM cached_segments WHERE session_id = ?
	`, sessionID)
	if err != nil {
		return fmt.Errorf("purge session cache: %w", err)
	}
	return nil
}

// Sessions returns the distinct session ids present in the cache, useful
// for replaying backlogs from previous runs.
func (c *Cache) Sessions() ([]string, error) {
	rows, err := c.db.Query(`
		SELECT DISTINCT session_id FROM cached_segments ORDER BY session_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query cached sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
