package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// sqliteTimeFormat is fixed-width so timestamps compare correctly as text.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000Z"

// SQLiteSessionStore is the single-node SessionStore. A user's rows in the
// sessions table are the token index; SQLite has no key expiry, so readers
// filter on expires_at and PurgeExpired deletes dead rows.
//
// Revocation is a conditional DELETE ... RETURNING inside a transaction:
// only the caller whose DELETE removes the row reports success.
type SQLiteSessionStore struct {
	db     *sql.DB
	logger Logger
	now    func() time.Time
}

// NewSQLiteSessionStore creates a store over the migrated database.
func NewSQLiteSessionStore(db *sql.DB, logger Logger) *SQLiteSessionStore {
	return &SQLiteSessionStore{db: db, logger: logger, now: time.Now}
}

func (s *SQLiteSessionStore) nowText() string {
	return formatTime(s.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(sqliteTimeFormat, s) //nolint:errcheck // format is controlled
	return t
}

// Put implements SessionStore.
func (s *SQLiteSessionStore) Put(ctx context.Context, rec SessionRecord, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	expiresAt := s.now().Add(ttl)
	if !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(expiresAt) {
		expiresAt = rec.ExpiresAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, token_id, refresh_token, device_info, ip_address, created_at, last_used_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, token_id) DO UPDATE SET
		   refresh_token = excluded.refresh_token,
		   device_info = excluded.device_info,
		   ip_address = excluded.ip_address,
		   last_used_at = excluded.last_used_at,
		   expires_at = excluded.expires_at`,
		rec.UserID, rec.TokenID, rec.RefreshToken, rec.DeviceInfo, rec.IPAddress,
		formatTime(rec.CreatedAt), formatTime(rec.LastUsedAt), formatTime(expiresAt),
	)
	if err != nil {
		return storeError("put", err)
	}
	return nil
}

// Get implements SessionStore.
func (s *SQLiteSessionStore) Get(ctx context.Context, userID, tokenID string) (SessionRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, token_id, refresh_token, device_info, ip_address, created_at, last_used_at, expires_at
		 FROM sessions WHERE user_id = ? AND token_id = ? AND expires_at > ?`,
		userID, tokenID, s.nowText())

	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, false, nil
	}
	if err != nil {
		return SessionRecord{}, false, storeError("get", err)
	}
	return rec, true, nil
}

// IsValid implements SessionStore.
func (s *SQLiteSessionStore) IsValid(ctx context.Context, userID, tokenID string) (bool, error) {
	now := s.nowText()
	var valid int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE user_id = ? AND token_id = ? AND expires_at > ?)
		    AND NOT EXISTS (SELECT 1 FROM session_blacklist WHERE user_id = ? AND token_id = ? AND expires_at > ?)`,
		userID, tokenID, now, userID, tokenID, now,
	).Scan(&valid)
	if err != nil {
		return false, storeError("is_valid", err)
	}
	return valid == 1, nil
}

// Revoke implements SessionStore.
func (s *SQLiteSessionStore) Revoke(ctx context.Context, userID, tokenID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storeError("revoke", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	revoked, err := revokeInTx(ctx, tx, userID, tokenID, s.nowText())
	if err != nil {
		return false, storeError("revoke", err)
	}
	if err := tx.Commit(); err != nil {
		return false, storeError("revoke", err)
	}
	return revoked, nil
}

func revokeInTx(ctx context.Context, tx *sql.Tx, userID, tokenID, now string) (bool, error) {
	var expiresAt string
	err := tx.QueryRowContext(ctx,
		`DELETE FROM sessions WHERE user_id = ? AND token_id = ? AND expires_at > ? RETURNING expires_at`,
		userID, tokenID, now,
	).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting session: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO session_blacklist (user_id, token_id, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, token_id) DO UPDATE SET expires_at = excluded.expires_at`,
		userID, tokenID, expiresAt,
	); err != nil {
		return false, fmt.Errorf("blacklisting session: %w", err)
	}
	return true, nil
}

// RevokeAll implements SessionStore. The whole sweep is one transaction.
func (s *SQLiteSessionStore) RevokeAll(ctx context.Context, userID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeError("revoke_all", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	now := s.nowText()
	rows, err := tx.QueryContext(ctx,
		`SELECT token_id FROM sessions WHERE user_id = ? AND expires_at > ?`, userID, now)
	if err != nil {
		return 0, storeError("revoke_all", err)
	}
	var tokenIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, storeError("revoke_all", err)
		}
		tokenIDs = append(tokenIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, storeError("revoke_all", err)
	}

	count := 0
	for _, id := range tokenIDs {
		ok, err := revokeInTx(ctx, tx, userID, id, now)
		if err != nil {
			return 0, storeError("revoke_all", err)
		}
		if ok {
			count++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storeError("revoke_all", err)
	}
	return count, nil
}

// List implements SessionStore.
func (s *SQLiteSessionStore) List(ctx context.Context, userID string) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, token_id, refresh_token, device_info, ip_address, created_at, last_used_at, expires_at
		 FROM sessions WHERE user_id = ? AND expires_at > ?
		 ORDER BY created_at DESC`, userID, s.nowText())
	if err != nil {
		return nil, storeError("list", err)
	}
	defer rows.Close()

	records := []SessionRecord{}
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, storeError("list", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list", err)
	}
	return records, nil
}

// PurgeExpired deletes expired sessions and blacklist entries and returns
// the number of rows removed.
func (s *SQLiteSessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.nowText()
	var total int64
	for _, table := range []string{"sessions", "session_blacklist"} {
		result, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE expires_at <= ?", now) //nolint:gosec // table names are constants
		if err != nil {
			return total, storeError("purge", err)
		}
		n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
		total += n
	}
	return total, nil
}

// RunPurgeLoop calls PurgeExpired every interval until ctx is cancelled.
func (s *SQLiteSessionStore) RunPurgeLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("session purge failed", "error", err)
				}
				continue
			}
			if n > 0 {
				s.logger.Info("purged expired sessions", "rows", n)
			}
		}
	}
}

func scanSession(s scanner) (SessionRecord, error) {
	var rec SessionRecord
	var createdAt, lastUsedAt, expiresAt string
	if err := s.Scan(&rec.UserID, &rec.TokenID, &rec.RefreshToken, &rec.DeviceInfo, &rec.IPAddress,
		&createdAt, &lastUsedAt, &expiresAt); err != nil {
		return SessionRecord{}, err
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.LastUsedAt = parseTime(lastUsedAt)
	rec.ExpiresAt = parseTime(expiresAt)
	return rec, nil
}
