// Package audit stores the authentication audit trail: logins, failed
// logins, refreshes and revocations, one row per event.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the session event sink.
const (
	ActionLogin           = "login"
	ActionLoginFailed     = "login_failed"
	ActionRefresh         = "refresh"
	ActionRefreshRejected = "refresh_rejected"
	ActionLogout          = "logout"
	ActionRevokeAll       = "revoke_all"
)

// EntitySession is the entity type of every auth audit row. EntityID is the
// session's token id when known.
const EntitySession = "session"

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// timeFormat is fixed-width so created_at sorts correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000Z"

// AuditLog is one row of the audit trail.
type AuditLog struct { //nolint:revive // audit.AuditLog reads better than audit.Log at call sites
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter selects audit rows. Zero-valued fields match everything.
type Filter struct {
	Action     string
	EntityType string
	EntityID   string // session token id
	UserID     string
	Since      time.Time // inclusive
	Until      time.Time // exclusive
	Limit      int       // DefaultLimit when <= 0, capped at MaxLimit
	Offset     int
}

// ListResult is one page of audit rows, newest first.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository reads and writes the audit trail.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores the audit trail in the audit_logs table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts log, filling ID and CreatedAt when empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	var details sql.NullString
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("encoding audit details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, entity_type, entity_id, user_id, source, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Action, log.EntityType,
		nullIfEmpty(log.EntityID), nullIfEmpty(log.UserID),
		log.Source, details,
		log.CreatedAt.UTC().Format(timeFormat),
	); err != nil {
		return fmt.Errorf("inserting audit log %s: %w", log.Action, err)
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// whereClause collects parameterised conditions.
type whereClause struct {
	conds []string
	args  []any
}

func (w *whereClause) eq(col, v string) {
	if v != "" {
		w.conds = append(w.conds, col+" = ?")
		w.args = append(w.args, v)
	}
}

func (w *whereClause) cmpTime(col, op string, t time.Time) {
	if !t.IsZero() {
		w.conds = append(w.conds, col+" "+op+" ?")
		w.args = append(w.args, t.UTC().Format(timeFormat))
	}
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func buildWhere(f Filter) *whereClause {
	w := &whereClause{}
	w.eq("action", f.Action)
	w.eq("entity_type", f.EntityType)
	w.eq("entity_id", f.EntityID)
	w.eq("user_id", f.UserID)
	w.cmpTime("created_at", ">=", f.Since)
	w.cmpTime("created_at", "<", f.Until)
	return w
}

// List returns one page of rows matching filter, newest first, along with
// the total number of matches.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	filter.Limit = min(filter.Limit, MaxLimit)
	filter.Offset = max(filter.Offset, 0)

	where := buildWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+where.String(), where.args...).Scan(&total); err != nil { //nolint:gosec // columns are constants, values are bound
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, //nolint:gosec // columns are constants, values are bound
		`SELECT id, action, entity_type, entity_id, user_id, source, details, created_at
		 FROM audit_logs`+where.String()+`
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(where.args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []AuditLog{}
	for rows.Next() {
		entry, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}

	return &ListResult{Logs: logs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func scanAuditLog(rows *sql.Rows) (AuditLog, error) {
	var e AuditLog
	var entityID, userID, details sql.NullString
	var createdAt string
	if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &entityID, &userID, &e.Source, &details, &createdAt); err != nil {
		return e, fmt.Errorf("scanning audit log: %w", err)
	}
	e.EntityID = entityID.String
	e.UserID = userID.String
	if details.String != "" {
		// Malformed details are dropped rather than failing the page.
		if json.Unmarshal([]byte(details.String), &e.Details) != nil {
			e.Details = nil
		}
	}

	t, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return e, fmt.Errorf("parsing audit timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return e, nil
}
