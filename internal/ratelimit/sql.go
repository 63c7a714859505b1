package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const sqlTimeLayout = "2006-01-02T15:04:05.000Z"

// SQLStore keeps entries in the rate_limits table. Used when no Redis is
// configured; expired rows are overwritten rather than swept.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, `
		SELECT count, first_seen, last_seen, blocked_until FROM rate_limits WHERE key = ?
	`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// hitSQL counts an attempt in one statement. Timestamps are fixed-width UTC
// text, so they compare in time order. The insert row carries the values for
// a fresh window: excluded.last_seen is now and excluded.blocked_until is the
// block a first hit earns, if any.
const hitSQL = `
	INSERT INTO rate_limits (key, count, first_seen, last_seen, blocked_until)
	VALUES (?, 1, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		count = CASE
			WHEN rate_limits.first_seen < ? AND NOT COALESCE(rate_limits.blocked_until > excluded.last_seen, 0)
			THEN 1 ELSE rate_limits.count + 1 END,
		first_seen = CASE
			WHEN rate_limits.first_seen < ? AND NOT COALESCE(rate_limits.blocked_until > excluded.last_seen, 0)
			THEN excluded.first_seen ELSE rate_limits.first_seen END,
		last_seen = excluded.last_seen,
		blocked_until = CASE
			WHEN COALESCE(rate_limits.blocked_until > excluded.last_seen, 0) THEN rate_limits.blocked_until
			WHEN rate_limits.first_seen < ? THEN excluded.blocked_until
			WHEN ? > 0 AND rate_limits.count + 1 >= ? THEN ?
			ELSE rate_limits.blocked_until END
	RETURNING count, first_seen, last_seen, blocked_until`

func (s *SQLStore) Hit(ctx context.Context, key string, now, until time.Time, cfg Config) (Entry, error) {
	nowText := formatSQLTime(now)
	untilText := formatSQLTime(until)
	windowStart := formatSQLTime(now.Add(-cfg.window()))
	var fresh any
	if cfg.MaxAttempts > 0 && cfg.MaxAttempts <= 1 {
		fresh = untilText
	}
	return scanEntry(s.db.QueryRowContext(ctx, hitSQL,
		key, nowText, nowText, fresh,
		windowStart,
		windowStart,
		windowStart,
		cfg.MaxAttempts, cfg.MaxAttempts, untilText,
	))
}

func (s *SQLStore) Block(ctx context.Context, key string, until time.Time, _ time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rate_limits SET blocked_until = ? WHERE key = ?`, formatSQLTime(until), key)
	return err
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE key = ?`, key)
	return err
}

func formatSQLTime(t time.Time) string { return t.UTC().Format(sqlTimeLayout) }

func scanEntry(row *sql.Row) (Entry, error) {
	var e Entry
	var first, last string
	var blocked sql.NullString
	if err := row.Scan(&e.Count, &first, &last, &blocked); err != nil {
		return Entry{}, err
	}
	var err error
	if e.FirstSeen, err = time.Parse(sqlTimeLayout, first); err != nil {
		return Entry{}, err
	}
	if e.LastSeen, err = time.Parse(sqlTimeLayout, last); err != nil {
		return Entry{}, err
	}
	if blocked.Valid && blocked.String != "" {
		t, err := time.Parse(sqlTimeLayout, blocked.String)
		if err != nil {
			return Entry{}, err
		}
		e.BlockedUntil = &t
	}
	return e, nil
}
