package auth

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
)

// Resilience tests verify that the auth subsystem handles failure scenarios
// gracefully. These tests use the TestResilience_ prefix for easy filtering:
//
//	go test -run TestResilience -race ./internal/auth/...

// TestResilience_LoginLogoutInterleaving runs logins and revoke-alls for one
// user concurrently. Afterwards every issued token is either listed and
// valid, or unlisted and invalid; none is left half-revoked.
func TestResilience_LoginLogoutInterleaving(t *testing.T) {
	serviceBackends(t, func(t *testing.T, env *testEnv) {
		user := seedTestUser(t, env.db, "busy")
		ctx := context.Background()

		const logins = 12
		var wg sync.WaitGroup
		var mu sync.Mutex
		var tokenIDs []string

		for i := range logins {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := env.svc.Login(ctx, "busy", testPassword, ClientInfo{})
				if err != nil {
					t.Errorf("Login() error = %v", err)
					return
				}
				mu.Lock()
				tokenIDs = append(tokenIDs, refreshID(t, env, res.RefreshToken))
				mu.Unlock()
			}()
			if i%4 == 3 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := env.svc.RevokeAllForUser(ctx, user.ID); err != nil && !errors.Is(err, ErrStoreUnavailable) {
						t.Errorf("RevokeAllForUser() error = %v", err)
					}
				}()
			}
		}
		wg.Wait()

		sessions, err := env.svc.ListSessions(ctx, user.ID)
		if err != nil {
			t.Fatalf("ListSessions() error = %v", err)
		}
		listed := make([]string, 0, len(sessions))
		for _, s := range sessions {
			listed = append(listed, s.TokenID)
		}

		for _, id := range tokenIDs {
			valid, err := env.store.IsValid(ctx, user.ID, id)
			if err != nil {
				t.Fatalf("IsValid() error = %v", err)
			}
			if valid != slices.Contains(listed, id) {
				t.Errorf("token %s: valid=%v but listed=%v", id, valid, !valid)
			}
		}

		// Whatever survived can still be swept in one call.
		n, err := env.svc.RevokeAllForUser(ctx, user.ID)
		if err != nil {
			t.Fatalf("RevokeAllForUser() error = %v", err)
		}
		if n != len(listed) {
			t.Errorf("final RevokeAllForUser() = %d, want %d", n, len(listed))
		}
	})
}

func refreshID(t *testing.T, env *testEnv, token string) string {
	t.Helper()
	claims, err := env.signer.Parse(token, TokenTypeRefresh)
	if err != nil {
		t.Errorf("Parse() error = %v", err)
		return ""
	}
	return claims.TokenID()
}

func TestResilience_ContextCancellation_RepositoryOps(t *testing.T) {
	db := testDB(t)
	userRepo := NewUserRepository(db)
	roleRepo := NewRoleRepository(db)
	sessions := NewSQLiteSessionStore(db, &recordLogger{})

	// Create a pre-cancelled context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// All operations should return a context error, not panic
	if _, err := userRepo.List(ctx); err == nil {
		t.Error("List with cancelled context should return error")
	}
	if _, err := userRepo.GetByUsername(ctx, "nonexistent"); err == nil {
		t.Error("GetByUsername with cancelled context should return error")
	}
	if _, err := userRepo.Count(ctx); err == nil {
		t.Error("Count with cancelled context should return error")
	}
	if err := userRepo.Create(ctx, &User{Username: "cancel-test", PasswordHash: "x", IsActive: true}); err == nil {
		t.Error("Create with cancelled context should return error")
	}
	if _, err := roleRepo.ListAssignments(ctx, "usr-1"); err == nil {
		t.Error("ListAssignments with cancelled context should return error")
	}
	if _, err := sessions.RevokeAll(ctx, "usr-1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("RevokeAll with cancelled context error = %v, want ErrStoreUnavailable", err)
	}
}

func TestResilience_UserDeletion_CascadesAssignments(t *testing.T) {
	db := testDB(t)
	user := seedTestUser(t, db, "leaver")
	seedRole(t, db, user.ID, "Site Engineer", PermReportView)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", user.ID); err != nil {
		t.Fatalf("deleting user: %v", err)
	}

	got, err := NewRoleRepository(db).ListAssignments(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListAssignments() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("assignments survived user deletion: %+v", got)
	}
}
