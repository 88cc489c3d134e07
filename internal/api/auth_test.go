package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/nerrad567/sitereport-core/internal/auth"
)

func TestLogin(t *testing.T) {
	api := testServer(t)

	tests := []struct {
		name     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"valid", loginRequest{Username: "tech", Password: testUserPassword}, http.StatusOK, ""},
		{"wrong password", loginRequest{Username: "tech", Password: "nope"}, http.StatusUnauthorized, ErrCodeInvalidCredentials},
		{"unknown user", loginRequest{Username: "ghost", Password: "nope"}, http.StatusUnauthorized, ErrCodeInvalidCredentials},
		{"missing password", loginRequest{Username: "tech"}, http.StatusBadRequest, ErrCodeBadRequest},
		{"not json", "{{", http.StatusBadRequest, ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/v1/auth/login", tt.body, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantErr != "" {
				if got := errorCode(t, rec); got != tt.wantErr {
					t.Errorf("code = %q, want %q", got, tt.wantErr)
				}
				return
			}

			var resp tokenResponse
			decode(t, rec, &resp)
			if resp.AccessToken == "" || resp.RefreshToken == "" {
				t.Error("login returned empty tokens")
			}
			if resp.TokenType != "Bearer" {
				t.Errorf("token_type = %q", resp.TokenType)
			}
			if resp.ExpiresIn <= 0 || resp.ExpiresIn > 15*60 {
				t.Errorf("expires_in = %d", resp.ExpiresIn)
			}
			if resp.User == nil || resp.User.ID != api.tech.ID {
				t.Errorf("user = %+v", resp.User)
			}
			if got := rec.Header().Get("Cache-Control"); got != "no-store" {
				t.Errorf("Cache-Control = %q, want no-store", got)
			}
		})
	}
}

func TestLogin_DisabledAccount(t *testing.T) {
	api := testServer(t)
	if err := auth.NewUserRepository(api.db).SetActive(context.Background(), api.tech.ID, false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}

	rec := api.do(t, http.MethodPost, "/api/v1/auth/login", loginRequest{Username: "tech", Password: testUserPassword}, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if got := errorCode(t, rec); got != ErrCodeAccountDisabled {
		t.Errorf("code = %q, want %q", got, ErrCodeAccountDisabled)
	}
}

func TestLogin_StoreDown(t *testing.T) {
	api := testServer(t)
	api.mr.SetError("connection refused")

	rec := api.do(t, http.MethodPost, "/api/v1/auth/login", loginRequest{Username: "tech", Password: testUserPassword}, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if got := errorCode(t, rec); got != ErrCodeStoreUnavailable {
		t.Errorf("code = %q, want %q", got, ErrCodeStoreUnavailable)
	}
}

func TestRefresh_RotatesAndRejectsReplay(t *testing.T) {
	api := testServer(t)
	first := api.login(t, "tech", testUserPassword)

	rec := api.do(t, http.MethodPost, "/api/v1/auth/refresh", refreshRequest{RefreshToken: first.RefreshToken}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var second tokenResponse
	decode(t, rec, &second)
	if second.RefreshToken == first.RefreshToken {
		t.Error("refresh returned the same refresh token")
	}
	if second.User != nil {
		t.Error("refresh response should not carry the user")
	}

	rec = api.do(t, http.MethodPost, "/api/v1/auth/refresh", refreshRequest{RefreshToken: first.RefreshToken}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replay status = %d, want 401", rec.Code)
	}
	if got := errorCode(t, rec); got != ErrCodeTokenRevoked {
		t.Errorf("replay code = %q, want %q", got, ErrCodeTokenRevoked)
	}
}

func TestRefresh_BadInput(t *testing.T) {
	api := testServer(t)
	tokens := api.login(t, "tech", testUserPassword)

	tests := []struct {
		name     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"missing token", refreshRequest{}, http.StatusBadRequest, ErrCodeBadRequest},
		{"garbage token", refreshRequest{RefreshToken: "abc.def.ghi"}, http.StatusUnauthorized, ErrCodeInvalidToken},
		{"access token", refreshRequest{RefreshToken: tokens.AccessToken}, http.StatusUnauthorized, ErrCodeInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/v1/auth/refresh", tt.body, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := errorCode(t, rec); got != tt.wantErr {
				t.Errorf("code = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestLogout(t *testing.T) {
	api := testServer(t)
	tokens := api.login(t, "tech", testUserPassword)

	rec := api.do(t, http.MethodPost, "/api/v1/auth/logout", logoutRequest{}, tokens.AccessToken)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("misuse status = %d, want 400", rec.Code)
	}

	rec = api.do(t, http.MethodPost, "/api/v1/auth/logout", logoutRequest{RefreshToken: tokens.RefreshToken}, tokens.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Success bool `json:"success"`
		Revoked int  `json:"revoked"`
	}
	decode(t, rec, &res)
	if !res.Success || res.Revoked != 1 {
		t.Errorf("logout = %+v, want success with 1 revoked", res)
	}

	// Second logout of the same token is not an error.
	rec = api.do(t, http.MethodPost, "/api/v1/auth/logout", logoutRequest{RefreshToken: tokens.RefreshToken}, tokens.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat logout status = %d", rec.Code)
	}
	decode(t, rec, &res)
	if res.Success {
		t.Error("repeat logout reported success")
	}

	rec = api.do(t, http.MethodPost, "/api/v1/auth/refresh", refreshRequest{RefreshToken: tokens.RefreshToken}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout status = %d, want 401", rec.Code)
	}
}

func TestLogout_OtherUsersToken(t *testing.T) {
	api := testServer(t)
	admin := api.login(t, "admin", api.adminPassword)
	tech := api.login(t, "tech", testUserPassword)

	rec := api.do(t, http.MethodPost, "/api/v1/auth/logout", logoutRequest{RefreshToken: admin.RefreshToken}, tech.AccessToken)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	// The admin's session is untouched.
	rec = api.do(t, http.MethodPost, "/api/v1/auth/refresh", refreshRequest{RefreshToken: admin.RefreshToken}, "")
	if rec.Code != http.StatusOK {
		t.Errorf("admin refresh status = %d, want 200", rec.Code)
	}
}

func TestLogoutAll(t *testing.T) {
	api := testServer(t)
	a := api.login(t, "tech", testUserPassword)
	b := api.login(t, "tech", testUserPassword)

	rec := api.do(t, http.MethodPost, "/api/v1/auth/logout", logoutRequest{LogoutAll: true}, a.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var res struct {
		Revoked int `json:"revoked"`
	}
	decode(t, rec, &res)
	if res.Revoked != 2 {
		t.Errorf("revoked = %d, want 2", res.Revoked)
	}

	for _, tok := range []string{a.RefreshToken, b.RefreshToken} {
		rec = api.do(t, http.MethodPost, "/api/v1/auth/refresh", refreshRequest{RefreshToken: tok}, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("refresh after logout_all status = %d, want 401", rec.Code)
		}
	}
}

func TestMe(t *testing.T) {
	api := testServer(t)
	tokens := api.login(t, "admin", api.adminPassword)

	rec := api.do(t, http.MethodGet, "/api/v1/auth/me", nil, tokens.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var me struct {
		Username       string   `json:"username"`
		IsAdmin        bool     `json:"is_admin"`
		AllPermissions []string `json:"all_permissions"`
	}
	decode(t, rec, &me)
	if me.Username != "admin" || !me.IsAdmin {
		t.Errorf("me = %+v", me)
	}
	if len(me.AllPermissions) != len(auth.PermissionCatalogue()) {
		t.Errorf("permissions = %d, want full catalogue of %d", len(me.AllPermissions), len(auth.PermissionCatalogue()))
	}
}

func TestListSessions(t *testing.T) {
	api := testServer(t)
	api.login(t, "tech", testUserPassword)
	tokens := api.login(t, "tech", testUserPassword)

	rec := api.do(t, http.MethodGet, "/api/v1/auth/sessions", nil, tokens.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Count    int                  `json:"count"`
		Sessions []auth.SessionRecord `json:"sessions"`
	}
	decode(t, rec, &body)
	if body.Count != 2 || len(body.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", body.Count)
	}
	for _, s := range body.Sessions {
		if s.RefreshToken != "" {
			t.Error("session listing leaked a refresh token")
		}
		if s.DeviceInfo != "sitereport-tablet/3.2" {
			t.Errorf("device_info = %q, want User-Agent", s.DeviceInfo)
		}
	}
}

func TestRevokeUserSessions(t *testing.T) {
	api := testServer(t)
	admin := api.login(t, "admin", api.adminPassword)
	tech := api.login(t, "tech", testUserPassword)
	path := "/api/v1/users/" + api.tech.ID + "/revoke-sessions"

	rec := api.do(t, http.MethodPost, path, nil, tech.AccessToken)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin status = %d, want 403", rec.Code)
	}

	rec = api.do(t, http.MethodPost, path, nil, admin.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Revoked int `json:"revoked"`
	}
	decode(t, rec, &res)
	if res.Revoked != 1 {
		t.Errorf("revoked = %d, want 1", res.Revoked)
	}

	rec = api.do(t, http.MethodPost, "/api/v1/auth/refresh", refreshRequest{RefreshToken: tech.RefreshToken}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("tech refresh after revoke status = %d, want 401", rec.Code)
	}

	// The tech's access token still verifies until it expires.
	rec = api.do(t, http.MethodGet, "/api/v1/auth/me", nil, tech.AccessToken)
	if rec.Code != http.StatusOK {
		t.Errorf("access token after revoke status = %d, want 200", rec.Code)
	}
}

func TestSessionAdmin_RequiresRevokePermission(t *testing.T) {
	api := testServer(t)
	ctx := context.Background()

	// "Badminton" contains "admin", which raises is_admin without granting
	// any permission.
	roles := auth.NewRoleRepository(api.db)
	club := &auth.Role{Name: "Badminton Club"}
	if err := roles.CreateRole(ctx, club); err != nil {
		t.Fatalf("CreateRole() error = %v", err)
	}
	if err := roles.AssignRole(ctx, api.tech.ID, club.ID, nil, false); err != nil {
		t.Fatalf("AssignRole() error = %v", err)
	}

	tech := api.login(t, "tech", testUserPassword)
	rec := api.do(t, http.MethodGet, "/api/v1/auth/me", nil, tech.AccessToken)
	var me struct {
		IsAdmin bool `json:"is_admin"`
	}
	decode(t, rec, &me)
	if !me.IsAdmin {
		t.Fatal("role name should still raise the is_admin claim")
	}

	for _, req := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/users/" + api.tech.ID + "/revoke-sessions"},
		{http.MethodGet, "/api/v1/audit/sessions"},
	} {
		if rec := api.do(t, req.method, req.path, nil, tech.AccessToken); rec.Code != http.StatusForbidden {
			t.Errorf("%s %s status = %d, want 403", req.method, req.path, rec.Code)
		}
	}
}

func TestClientInfo_TruncatesOnRuneBoundary(t *testing.T) {
	tests := []struct {
		name    string
		device  string
		wantLen int
	}{
		{"short", "tablet", 6},
		{"ascii over limit", strings.Repeat("a", 300), maxDeviceInfoLen},
		// 'a' + 3-byte runes puts the limit inside the 85th rune.
		{"multibyte over limit", "a" + strings.Repeat("€", 100), 253},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
			info := clientInfo(r, tt.device)
			if len(info.DeviceInfo) != tt.wantLen {
				t.Errorf("len(DeviceInfo) = %d, want %d", len(info.DeviceInfo), tt.wantLen)
			}
			if !utf8.ValidString(info.DeviceInfo) {
				t.Errorf("DeviceInfo %q is not valid UTF-8", info.DeviceInfo)
			}
		})
	}
}
