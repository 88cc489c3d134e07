package api

import (
	"encoding/json"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/sitereport-core/internal/auth"
)

// maxDeviceInfoLen bounds the device string stored with a session.
const maxDeviceInfoLen = 255

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DeviceInfo string `json:"device_info,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	DeviceInfo   string `json:"device_info,omitempty"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
	LogoutAll    bool   `json:"logout_all,omitempty"`
}

// tokenResponse is the body of a successful login or refresh.
type tokenResponse struct {
	AccessToken      string     `json:"access_token"`
	RefreshToken     string     `json:"refresh_token"`
	TokenType        string     `json:"token_type"`
	ExpiresIn        int        `json:"expires_in"`
	AccessExpiresAt  time.Time  `json:"access_expires_at"`
	RefreshExpiresAt time.Time  `json:"refresh_expires_at"`
	User             *auth.User `json:"user,omitempty"`

	PermissionsDegraded bool `json:"permissions_degraded,omitempty"`
}

func newTokenResponse(access, refresh string, accessExp, refreshExp time.Time) tokenResponse {
	return tokenResponse{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresIn:        int(time.Until(accessExp).Round(time.Second).Seconds()),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}
}

// handleLogin authenticates a user and opens a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	res, err := s.auth.Login(r.Context(), req.Username, req.Password, clientInfo(r, req.DeviceInfo))
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	resp := newTokenResponse(res.AccessToken, res.RefreshToken, res.AccessExpiresAt, res.RefreshExpiresAt)
	resp.User = res.User
	resp.PermissionsDegraded = res.PermissionsDegraded
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh rotates a refresh token into a new pair.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken, clientInfo(r, req.DeviceInfo))
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newTokenResponse(pair.AccessToken, pair.RefreshToken, pair.AccessExpiresAt, pair.RefreshExpiresAt))
}

// handleLogout revokes one of the caller's sessions, or all of them.
// A token that was already revoked still answers 200 with success false.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	claims := claimsFrom(r.Context())
	res, err := s.auth.Logout(r.Context(), claims.UserID, req.RefreshToken, req.LogoutAll)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": res.Success,
		"revoked": res.Revoked,
	})
}

// handleMe returns the caller's identity and permission snapshot as carried
// in the access token.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":         claims.UserID,
		"username":        claims.Username,
		"email":           claims.Email,
		"full_name":       claims.FullName,
		"personnel_code":  claims.PersonnelCode,
		"roles":           claims.Roles,
		"all_permissions": claims.AllPermissions,
		"is_admin":        claims.IsAdmin,
		"is_board":        claims.IsBoard,
		"expires_at":      claims.ExpiresAt.Time,
	})
}

// handleListSessions returns the caller's live sessions, newest first.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	sessions, err := s.auth.ListSessions(r.Context(), claims.UserID)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleRevokeUserSessions revokes every session of the user in the path.
func (s *Server) handleRevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeBadRequest(w, "user id is required")
		return
	}

	n, err := s.auth.RevokeAllForUser(r.Context(), userID)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	s.logger.Info("sessions revoked by admin",
		"user_id", userID,
		"revoked", n,
		"admin_id", claimsFrom(r.Context()).UserID,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"revoked": n,
	})
}

// clientInfo derives the session's device and address from the request.
// An explicit device string from the body wins over the User-Agent.
func clientInfo(r *http.Request, device string) auth.ClientInfo {
	if device == "" {
		device = r.UserAgent()
	}
	if len(device) > maxDeviceInfoLen {
		n := maxDeviceInfoLen
		for n > 0 && !utf8.RuneStart(device[n]) {
			n--
		}
		device = device[:n]
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return auth.ClientInfo{DeviceInfo: device, IPAddress: ip}
}
