// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-iam/internal/platform/apperr"
	"github.com/taibuivan/yomira-iam/internal/platform/sec"
	"github.com/taibuivan/yomira-iam/internal/users/auth"
)

// # In-memory Store

// memState is the whole database; transactions snapshot and restore it.
type memState struct {
	users  map[int64]auth.User
	roles  map[int64]auth.Role
	grants map[int64][]int64
	tokens map[string]auth.RefreshToken
	seq    int64
}

func (state *memState) clone() *memState {
	copied := &memState{
		users:  make(map[int64]auth.User, len(state.users)),
		roles:  make(map[int64]auth.Role, len(state.roles)),
		grants: make(map[int64][]int64, len(state.grants)),
		tokens: make(map[string]auth.RefreshToken, len(state.tokens)),
		seq:    state.seq,
	}
	for id, user := range state.users {
		copied.users[id] = user
	}
	for id, role := range state.roles {
		copied.roles[id] = role
	}
	for id, roleIDs := range state.grants {
		copied.grants[id] = append([]int64(nil), roleIDs...)
	}
	for hash, token := range state.tokens {
		copied.tokens[hash] = token
	}
	return copied
}

func (state *memState) next() int64 {
	state.seq++
	return state.seq
}

// hydrate returns a detached copy of the user with roles attached.
func (state *memState) hydrate(user auth.User) *auth.User {
	clone := user
	clone.Roles = nil
	for _, roleID := range state.grants[user.ID] {
		clone.Roles = append(clone.Roles, state.roles[roleID])
	}
	if user.ResetTokenHash != nil {
		hash := *user.ResetTokenHash
		clone.ResetTokenHash = &hash
	}
	if user.ResetTokenExpiry != nil {
		expiry := *user.ResetTokenExpiry
		clone.ResetTokenExpiry = &expiry
	}
	return &clone
}

// memDB serialises transactions with txLock, which stands in for row locks.
type memDB struct {
	mu       sync.Mutex
	txLock   sync.Mutex
	state    *memState
	failures map[string]error
}

func newMemDB() *memDB {
	state := &memState{
		users:  map[int64]auth.User{},
		roles:  map[int64]auth.Role{},
		grants: map[int64][]int64{},
		tokens: map[string]auth.RefreshToken{},
	}

	profileRead := auth.Permission{ID: state.next(), Name: "profile.read", Resource: "profile", Action: "read"}
	usersManage := auth.Permission{ID: state.next(), Name: "users.manage", Resource: "users", Action: "manage"}

	userRole := auth.Role{ID: state.next(), Name: sec.RoleUser, Permissions: []auth.Permission{profileRead}}
	adminRole := auth.Role{ID: state.next(), Name: sec.RoleAdmin, Permissions: []auth.Permission{profileRead, usersManage}}
	state.roles[userRole.ID] = userRole
	state.roles[adminRole.ID] = adminRole

	return &memDB{state: state, failures: map[string]error{}}
}

// failOn makes the named repository operation return err.
func (db *memDB) failOn(operation string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failures[operation] = err
}

func (db *memDB) do(operation string, fn func(state *memState) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.failures[operation]; err != nil {
		return err
	}
	return fn(db.state)
}

func (db *memDB) tokenCount(userID int64) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	count := 0
	for _, token := range db.state.tokens {
		if token.UserID == userID {
			count++
		}
	}
	return count
}

func (db *memDB) user(id int64) auth.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.state.hydrate(db.state.users[id])
}

type memStore struct {
	db   *memDB
	inTx bool
}

func (store *memStore) Users() auth.UserRepository                  { return memUsers{db: store.db} }
func (store *memStore) Roles() auth.RoleRepository                  { return memRoles{db: store.db} }
func (store *memStore) RefreshTokens() auth.RefreshTokenRepository { return memTokens{db: store.db} }

func (store *memStore) WithinTx(ctx context.Context, fn func(tx auth.Store) error) error {
	if store.inTx {
		return fn(store)
	}

	store.db.txLock.Lock()
	defer store.db.txLock.Unlock()

	store.db.mu.Lock()
	saved := store.db.state.clone()
	store.db.mu.Unlock()

	if err := fn(&memStore{db: store.db, inTx: true}); err != nil {
		store.db.mu.Lock()
		store.db.state = saved
		store.db.mu.Unlock()
		return err
	}
	return nil
}

// # Users

type memUsers struct{ db *memDB }

func (repo memUsers) find(operation string, match func(auth.User) bool) (*auth.User, error) {
	var found *auth.User
	err := repo.db.do(operation, func(state *memState) error {
		for _, user := range state.users {
			if match(user) {
				found = state.hydrate(user)
				return nil
			}
		}
		return apperr.NotFound("User")
	})
	return found, err
}

func (repo memUsers) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	return repo.find("FindByID", func(user auth.User) bool { return user.ID == id })
}

func (repo memUsers) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	return repo.find("FindByUsername", func(user auth.User) bool { return user.Username == username })
}

func (repo memUsers) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return repo.find("FindByEmail", func(user auth.User) bool { return user.Email == email })
}

func (repo memUsers) FindByResetTokenHash(ctx context.Context, tokenHash string) (*auth.User, error) {
	return repo.find("FindByResetTokenHash", func(user auth.User) bool {
		return user.ResetTokenHash != nil && *user.ResetTokenHash == tokenHash
	})
}

func (repo memUsers) LockByID(ctx context.Context, id int64) (*auth.User, error) {
	return repo.find("LockByID", func(user auth.User) bool { return user.ID == id })
}

func (repo memUsers) LockByResetTokenHash(ctx context.Context, tokenHash string) (*auth.User, error) {
	return repo.find("LockByResetTokenHash", func(user auth.User) bool {
		return user.ResetTokenHash != nil && *user.ResetTokenHash == tokenHash
	})
}

func (repo memUsers) Create(ctx context.Context, user *auth.User) error {
	return repo.db.do("Create", func(state *memState) error {
		for _, existing := range state.users {
			if existing.Username == user.Username || existing.Email == user.Email {
				return apperr.Conflict("Username or email already exists")
			}
		}
		user.ID = state.next()
		user.CreatedAt = time.Now()
		user.UpdatedAt = user.CreatedAt
		stored := *user
		stored.Roles = nil
		state.users[user.ID] = stored
		return nil
	})
}

func (repo memUsers) update(operation string, userID int64, change func(user *auth.User)) error {
	return repo.db.do(operation, func(state *memState) error {
		user, ok := state.users[userID]
		if !ok {
			return apperr.NotFound("User")
		}
		change(&user)
		state.users[userID] = user
		return nil
	})
}

func (repo memUsers) UpdatePassword(ctx context.Context, userID int64, newHash string) error {
	return repo.update("UpdatePassword", userID, func(user *auth.User) { user.PasswordHash = newHash })
}

func (repo memUsers) SetResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	return repo.update("SetResetToken", userID, func(user *auth.User) {
		user.ResetTokenHash = &tokenHash
		user.ResetTokenExpiry = &expiresAt
	})
}

func (repo memUsers) ClearResetToken(ctx context.Context, userID int64) error {
	return repo.update("ClearResetToken", userID, func(user *auth.User) {
		user.ResetTokenHash = nil
		user.ResetTokenExpiry = nil
	})
}

func (repo memUsers) SetActive(ctx context.Context, userID int64, active bool) error {
	return repo.update("SetActive", userID, func(user *auth.User) { user.IsActive = active })
}

// # Roles

type memRoles struct{ db *memDB }

func (repo memRoles) FindOrCreate(ctx context.Context, name, description string) (*auth.Role, error) {
	var found *auth.Role
	err := repo.db.do("FindOrCreate", func(state *memState) error {
		for _, role := range state.roles {
			if role.Name == name {
				found = &role
				return nil
			}
		}
		role := auth.Role{ID: state.next(), Name: name, Description: description}
		state.roles[role.ID] = role
		found = &role
		return nil
	})
	return found, err
}

func (repo memRoles) Assign(ctx context.Context, userID, roleID int64) error {
	return repo.db.do("Assign", func(state *memState) error {
		for _, existing := range state.grants[userID] {
			if existing == roleID {
				return nil
			}
		}
		state.grants[userID] = append(state.grants[userID], roleID)
		return nil
	})
}

// # Refresh tokens

type memTokens struct{ db *memDB }

func (repo memTokens) Create(ctx context.Context, token *auth.RefreshToken) error {
	return repo.db.do("CreateToken", func(state *memState) error {
		token.ID = state.next()
		token.CreatedAt = time.Now()
		state.tokens[token.TokenHash] = *token
		return nil
	})
}

func (repo memTokens) FindActiveByHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	var found *auth.RefreshToken
	err := repo.db.do("FindActiveByHash", func(state *memState) error {
		token, ok := state.tokens[tokenHash]
		if !ok || token.IsRevoked {
			return apperr.NotFound("Refresh token")
		}
		found = &token
		return nil
	})
	return found, err
}

func (repo memTokens) Consume(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	var found *auth.RefreshToken
	err := repo.db.do("Consume", func(state *memState) error {
		token, ok := state.tokens[tokenHash]
		if !ok || token.IsRevoked {
			return apperr.NotFound("Refresh token")
		}
		delete(state.tokens, tokenHash)
		found = &token
		return nil
	})
	return found, err
}

func (repo memTokens) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	var deleted int64
	err := repo.db.do("DeleteByUser", func(state *memState) error {
		for hash, token := range state.tokens {
			if token.UserID == userID {
				delete(state.tokens, hash)
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}

func (repo memTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	err := repo.db.do("DeleteExpired", func(state *memState) error {
		for hash, token := range state.tokens {
			if token.ExpiresAt.Before(now) {
				delete(state.tokens, hash)
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}

// # Collaborators

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (clock *testClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

func (clock *testClock) Advance(d time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(d)
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []auth.ResetNotice
	err     error
}

func (notifier *fakeNotifier) NotifyPasswordReset(ctx context.Context, notice auth.ResetNotice) error {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.notices = append(notifier.notices, notice)
	return notifier.err
}

func (notifier *fakeNotifier) last(t *testing.T) auth.ResetNotice {
	t.Helper()
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.NotEmpty(t, notifier.notices, "no reset notice was sent")
	return notifier.notices[len(notifier.notices)-1]
}

type fakeReuseTracker struct {
	mu       sync.Mutex
	consumed map[string]int64
	lookups  []string
}

func (tracker *fakeReuseTracker) lookedUp() []string {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	return append([]string(nil), tracker.lookups...)
}

func (tracker *fakeReuseTracker) MarkConsumed(ctx context.Context, tokenHash string, userID int64, ttl time.Duration) error {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	tracker.consumed[tokenHash] = userID
	return nil
}

func (tracker *fakeReuseTracker) ConsumedBy(ctx context.Context, tokenHash string) (int64, bool, error) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	tracker.lookups = append(tracker.lookups, tokenHash)
	userID, ok := tracker.consumed[tokenHash]
	return userID, ok, nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (recorder *fakeRecorder) RecordAuthEvent(event, outcome string) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.counts[event+"/"+outcome]++
}

func (recorder *fakeRecorder) count(event, outcome string) int {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	return recorder.counts[event+"/"+outcome]
}

// # Fixture

var errBoom = errors.New("boom")

type fixture struct {
	db       *memDB
	store    *memStore
	clock    *testClock
	tokens   *sec.TokenService
	notifier *fakeNotifier
	reuse    *fakeReuseTracker
	recorder *fakeRecorder
	service  *auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tokens, err := sec.NewHMACTokenService("test-secret-0123456789abcdef0123456789abcdef", "yomira.test", sec.WithTokenClock(clock.Now))
	require.NoError(t, err)

	f := &fixture{
		db:       newMemDB(),
		clock:    clock,
		tokens:   tokens,
		notifier: &fakeNotifier{},
		reuse:    &fakeReuseTracker{consumed: map[string]int64{}},
		recorder: &fakeRecorder{counts: map[string]int{}},
	}
	f.store = &memStore{db: f.db}
	f.service = auth.NewService(f.store, tokens,
		auth.WithClock(clock.Now),
		auth.WithNotifier(f.notifier),
		auth.WithReuseTracker(f.reuse),
		auth.WithRecorder(f.recorder),
	)
	return f
}

// register creates an account through the service and returns its ID.
func (f *fixture) register(t *testing.T, username, email, password string) int64 {
	t.Helper()
	summary, err := f.service.Register(context.Background(), auth.RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return summary.ID
}

// grant attaches an existing role to a user.
func (f *fixture) grant(t *testing.T, userID int64, roleName string) {
	t.Helper()
	role, err := f.store.Roles().FindOrCreate(context.Background(), roleName, "")
	require.NoError(t, err)
	require.NoError(t, f.store.Roles().Assign(context.Background(), userID, role.ID))
}
