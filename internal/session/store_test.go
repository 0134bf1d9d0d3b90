package session

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/rampart/internal/clock"
	"grimm.is/rampart/internal/events"
	"grimm.is/rampart/internal/logging"
)

var alice = &User{ID: "1", Name: "alice", Role: RoleAdmin}

func newStore(t *testing.T, opts ...Option) (*Store, *MemoryStorage) {
	t.Helper()
	storage := NewMemoryStorage()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return New(storage, opts...), storage
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestStore_LoginPersists(t *testing.T) {
	ctx := context.Background()
	s, storage := newStore(t)

	require.NoError(t, s.Login(ctx, "tok-abc", alice))

	snap := s.Snapshot()
	assert.True(t, snap.IsAuthenticated())
	assert.Equal(t, Authenticated, snap.State)
	assert.Equal(t, "alice", snap.User.Name)
	assert.Equal(t, "tok-abc", s.Token())

	persisted, err := storage.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", persisted)
}

func TestStore_LoginTwiceReplaces(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	require.NoError(t, s.Login(ctx, "tok-1", alice))
	require.NoError(t, s.Login(ctx, "tok-2", &User{ID: "2", Name: "bob", Role: RoleUser}))

	snap := s.Snapshot()
	assert.Equal(t, "tok-2", snap.Token)
	assert.Equal(t, RoleUser, snap.Role())
}

func TestStore_LogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	hub := events.NewHub()
	ch := hub.Subscribe(10, events.EventSessionLogout)
	s, storage := newStore(t, WithHub(hub))

	require.NoError(t, s.Login(ctx, "tok-abc", alice))

	assert.True(t, s.Logout())
	assert.False(t, s.Logout())

	snap := s.Snapshot()
	assert.False(t, snap.IsAuthenticated())
	assert.Nil(t, snap.User)
	assert.Equal(t, LoggedOut, snap.State)
	assert.Equal(t, "", s.Token())

	_, err := storage.Load(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	assert.Len(t, ch, 1, "one logout event")
}

func TestStore_ConcurrentInvalidateSingleEffect(t *testing.T) {
	hub := events.NewHub()
	ch := hub.Subscribe(100, events.EventSessionInvalidated)
	s, _ := newStore(t, WithHub(hub))
	require.NoError(t, s.Login(context.Background(), "tok-abc", alice))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Invalidate("unauthorized") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Len(t, ch, 1)
	assert.Equal(t, Expired, s.Snapshot().State)
}

func TestStore_InvalidateWithoutTokenIsNoop(t *testing.T) {
	s, _ := newStore(t)
	s.BeginLogin()
	assert.False(t, s.Invalidate("unauthorized"))
	assert.Equal(t, Authenticating, s.Snapshot().State)

	s.AbortLogin()
	assert.Equal(t, Unauthenticated, s.Snapshot().State)
}

func TestStore_InvalidateForMatchesToken(t *testing.T) {
	s, storage := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Login(ctx, "old-token", alice))
	require.NoError(t, s.Login(ctx, "new-token", alice))

	assert.False(t, s.InvalidateFor("old-token", "unauthorized"))
	assert.False(t, s.InvalidateFor("", "unauthorized"), "an anonymous request cannot end a session")
	assert.Equal(t, Authenticated, s.Snapshot().State)

	assert.True(t, s.InvalidateFor("new-token", "unauthorized"))
	assert.False(t, s.InvalidateFor("new-token", "unauthorized"))
	assert.Equal(t, Expired, s.Snapshot().State)
	_, err := storage.Load(ctx)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestStore_Hydrate(t *testing.T) {
	ctx := context.Background()
	s, storage := newStore(t)
	require.NoError(t, storage.Save(ctx, "tok-abc"))

	require.NoError(t, s.Hydrate(ctx))

	snap := s.Snapshot()
	assert.Equal(t, Authenticated, snap.State)
	assert.True(t, snap.NeedsUser())

	s.SetUser(alice)
	assert.False(t, s.Snapshot().NeedsUser())
}

func TestStore_HydrateEmpty(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.Hydrate(context.Background()))
	assert.Equal(t, Unauthenticated, s.Snapshot().State)
}

func TestStore_HydrateExpiredJWT(t *testing.T) {
	ctx := context.Background()
	mc := clock.NewMockClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	s, storage := newStore(t, WithClock(mc))
	require.NoError(t, storage.Save(ctx, signedToken(t, mc.Now().Add(-time.Minute))))

	require.NoError(t, s.Hydrate(ctx))

	assert.Equal(t, Expired, s.Snapshot().State)
	_, err := storage.Load(ctx)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestStore_TokenExpiresWithClock(t *testing.T) {
	mc := clock.NewMockClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	s, _ := newStore(t, WithClock(mc))

	token := signedToken(t, mc.Now().Add(time.Hour))
	require.NoError(t, s.Login(context.Background(), token, alice))
	assert.Equal(t, token, s.Token())
	assert.Equal(t, mc.Now().Add(time.Hour).Unix(), s.Snapshot().ExpiresAt.Unix())

	mc.Advance(2 * time.Hour)

	assert.Equal(t, "", s.Token())
	assert.Equal(t, Expired, s.Snapshot().State)
}

func TestStore_SetUserIgnoredWhenUnauthenticated(t *testing.T) {
	s, _ := newStore(t)
	s.SetUser(alice)
	assert.Nil(t, s.Snapshot().User)
}

func TestStore_SetUserForStaleToken(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.Login(ctx, "tok-1", nil))
	s.Logout()
	require.NoError(t, s.Login(ctx, "tok-2", nil))

	assert.False(t, s.SetUserFor("tok-1", alice))
	assert.True(t, s.Snapshot().NeedsUser())
	assert.True(t, s.SetUserFor("tok-2", alice))
}

func TestStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	var states []State
	unsubscribe := s.Subscribe(func(snap Session) {
		states = append(states, snap.State)
	})

	s.BeginLogin()
	require.NoError(t, s.Login(ctx, "tok-abc", alice))
	s.Logout()
	unsubscribe()
	require.NoError(t, s.Login(ctx, "tok-abc", alice))

	assert.Equal(t, []State{Authenticating, Authenticated, LoggedOut}, states)
}

func TestStore_SeqOrdersSnapshots(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	var seqs []uint64
	unsubscribe := s.Subscribe(func(snap Session) { seqs = append(seqs, snap.Seq) })
	defer unsubscribe()

	require.NoError(t, s.Login(ctx, "tok-abc", alice))
	s.SetUser(alice)
	s.Logout()
	s.SetUser(alice)
	require.NoError(t, s.Login(ctx, "tok-def", alice))

	assert.Equal(t, []uint64{1, 2, 3}, seqs, "no-op transitions do not bump Seq")
	assert.Equal(t, uint64(3), s.Snapshot().Seq)
}

func TestFileStorage(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStorage(filepath.Join(t.TempDir(), "nested", "session.json"))

	_, err := fs.Load(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, fs.Save(ctx, "tok-abc"))
	token, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", token)

	require.NoError(t, fs.Clear(ctx))
	require.NoError(t, fs.Clear(ctx))
	_, err = fs.Load(ctx)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestUser_UnmarshalAcceptsNameAlias(t *testing.T) {
	var u User
	require.NoError(t, u.UnmarshalJSON([]byte(`{"id": 7, "name": "alice", "role": "admin"}`)))
	assert.Equal(t, User{ID: "7", Name: "alice", Role: RoleAdmin}, u)
}

func TestTokenExpiry_Opaque(t *testing.T) {
	assert.True(t, TokenExpiry("tok-abc").IsZero())
}
