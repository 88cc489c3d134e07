package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/sitereport-core/internal/audit"
)

// handleListAuditLogs returns a page of the session audit trail, newest
// first.
//
// Query parameters:
//   - action: login, login_failed, refresh, refresh_rejected, logout, revoke_all
//   - user_id, token_id: exact match
//   - since, until: RFC 3339 bounds on created_at
//   - limit (default 50, max 200), offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: audit.EntitySession,
		EntityID:   q.Get("token_id"),
		UserID:     q.Get("user_id"),
	}

	var err error
	if filter.Since, err = parseTimeParam(q.Get("since")); err != nil {
		writeBadRequest(w, "since must be an RFC 3339 timestamp")
		return
	}
	if filter.Until, err = parseTimeParam(q.Get("until")); err != nil {
		writeBadRequest(w, "until must be an RFC 3339 timestamp")
		return
	}
	if filter.Limit, err = parseIntParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, err = parseIntParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit logs failed", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

func parseIntParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
