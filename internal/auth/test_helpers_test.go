package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/sitereport-core/internal/infrastructure/database"
	"github.com/nerrad567/sitereport-core/migrations"
)

const (
	testSecret   = "test-secret-key-at-least-32-chars!"
	testIssuer   = "sitereport-test"
	testPassword = "correct-horse-battery-staple"
)

// testDB creates a temporary SQLite database with every migration applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

// newRedisStore returns a Redis session store backed by an in-process
// miniredis server.
func newRedisStore(t testing.TB) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisSessionStore(rdb), mr
}

func newSQLiteStore(t *testing.T) *SQLiteSessionStore {
	t.Helper()
	return NewSQLiteSessionStore(testDB(t), &recordLogger{})
}

// seedTestUser inserts an active user with testPassword and returns it.
func seedTestUser(t *testing.T, db *sql.DB, username string) *User {
	t.Helper()

	hash, err := HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &User{
		Username:      username,
		Email:         username + "@example.com",
		FirstName:     "Test",
		LastName:      username,
		PersonnelCode: "P-" + username,
		PasswordHash:  hash,
		IsActive:      true,
	}
	if err := NewUserRepository(db).Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return user
}

// seedRole creates a role with perms and assigns it to userID unscoped.
func seedRole(t *testing.T, db *sql.DB, userID, name string, perms ...string) *Role {
	t.Helper()

	ctx := context.Background()
	repo := NewRoleRepository(db)
	role := &Role{Name: name}
	if err := repo.CreateRole(ctx, role); err != nil {
		t.Fatalf("creating role %s: %v", name, err)
	}
	if err := repo.GrantPermissions(ctx, role.ID, perms...); err != nil {
		t.Fatalf("granting permissions to %s: %v", name, err)
	}
	if err := repo.AssignRole(ctx, userID, role.ID, nil, false); err != nil {
		t.Fatalf("assigning role %s: %v", name, err)
	}
	return role
}

// testEnv is a fully wired Service over a real database and store.
type testEnv struct {
	db      *sql.DB
	store   SessionStore
	svc     *Service
	events  *recordSink
	logger  *recordLogger
	mr      *miniredis.Miniredis
	signer  *Signer
	refresh time.Duration
}

func newTestEnvWithStore(t *testing.T, db *sql.DB, store SessionStore) *testEnv {
	t.Helper()

	env := &testEnv{
		db:      db,
		store:   store,
		events:  &recordSink{},
		logger:  &recordLogger{},
		refresh: DefaultRefreshTTL,
	}
	svc, err := NewService(Config{
		Secret:     testSecret,
		Issuer:     testIssuer,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: env.refresh,
	}, Deps{
		Users:  NewUserRepository(db),
		Roles:  NewRoleRepository(db),
		Store:  store,
		Events: env.events,
		Logger: env.logger,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	env.svc = svc
	env.signer = svc.signer
	return env
}

// newTestEnv wires a Service over SQLite identity tables and a miniredis
// session store.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, mr := newRedisStore(t)
	env := newTestEnvWithStore(t, testDB(t), store)
	env.mr = mr
	return env
}

// recordLogger keeps log lines for assertions.
type recordLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+msg)
}

func (l *recordLogger) Info(msg string, _ ...any)  { l.record("INFO", msg) }
func (l *recordLogger) Warn(msg string, _ ...any)  { l.record("WARN", msg) }
func (l *recordLogger) Error(msg string, _ ...any) { l.record("ERROR", msg) }

func (l *recordLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.lines {
		if strings.HasPrefix(line, level+" ") {
			n++
		}
	}
	return n
}

// recordSink keeps emitted events.
type recordSink struct {
	mu     sync.Mutex
	events []SessionEvent
}

func (s *recordSink) Emit(_ context.Context, evt SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *recordSink) ofType(typ EventType) []SessionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SessionEvent
	for _, e := range s.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// countingStore counts calls into a SessionStore and can fail Put.
type countingStore struct {
	SessionStore
	mu      sync.Mutex
	calls   int
	failPut error
}

func (c *countingStore) hit() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingStore) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *countingStore) Put(ctx context.Context, rec SessionRecord, ttl time.Duration) error {
	c.hit()
	if c.failPut != nil {
		return c.failPut
	}
	return c.SessionStore.Put(ctx, rec, ttl)
}

func (c *countingStore) Get(ctx context.Context, userID, tokenID string) (SessionRecord, bool, error) {
	c.hit()
	return c.SessionStore.Get(ctx, userID, tokenID)
}

func (c *countingStore) IsValid(ctx context.Context, userID, tokenID string) (bool, error) {
	c.hit()
	return c.SessionStore.IsValid(ctx, userID, tokenID)
}

func (c *countingStore) Revoke(ctx context.Context, userID, tokenID string) (bool, error) {
	c.hit()
	return c.SessionStore.Revoke(ctx, userID, tokenID)
}

func (c *countingStore) RevokeAll(ctx context.Context, userID string) (int, error) {
	c.hit()
	return c.SessionStore.RevokeAll(ctx, userID)
}

func (c *countingStore) List(ctx context.Context, userID string) ([]SessionRecord, error) {
	c.hit()
	return c.SessionStore.List(ctx, userID)
}
