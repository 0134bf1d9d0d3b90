package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"grimm.is/rampart/internal/clock"
	"grimm.is/rampart/internal/events"
	"grimm.is/rampart/internal/logging"
	"grimm.is/rampart/internal/metrics"
)

// Listener is invoked after every state change with the new snapshot.
type Listener func(Session)

// Store is the single owner of the session token and user.
type Store struct {
	storage Storage
	clock   clock.Clock
	logger  *logging.Logger
	hub     *events.Hub
	metrics *metrics.Registry

	mu        sync.Mutex
	token     string
	user      *User
	state     State
	expiresAt time.Time
	seq       uint64

	lmu       sync.Mutex
	listeners map[uint64]Listener
	nextID    uint64
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for token expiry.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithHub publishes session events on h.
func WithHub(h *events.Hub) Option {
	return func(s *Store) { s.hub = h }
}

// WithMetrics records state transitions.
func WithMetrics(m *metrics.Registry) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates an unauthenticated store. Call Hydrate to restore a persisted
// token.
func New(storage Storage, opts ...Option) *Store {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	s := &Store{
		storage:   storage,
		clock:     clock.Real,
		logger:    logging.WithComponent("session"),
		listeners: make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hydrate restores the persisted token. The user stays unknown until the
// caller fetches it and calls SetUser. An already expired JWT is discarded.
func (s *Store) Hydrate(ctx context.Context) error {
	token, err := s.storage.Load(ctx)
	if errors.Is(err, ErrNoToken) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	exp := TokenExpiry(token)
	if clock.Expired(s.clock, exp) {
		s.logger.Info("discarding expired session", "expired_at", exp)
		if err := s.storage.Clear(ctx); err != nil {
			s.logger.Warn("failed to clear expired session", "error", err)
		}
		s.transition(func() {
			s.state = Expired
		})
		return nil
	}

	s.transition(func() {
		s.token = token
		s.user = nil
		s.expiresAt = exp
		s.state = Authenticated
	})
	s.logger.Debug("session restored", "expires_at", exp)
	return nil
}

// BeginLogin marks credentials as in flight.
func (s *Store) BeginLogin() {
	s.transition(func() {
		if s.token == "" {
			s.state = Authenticating
		}
	})
}

// AbortLogin returns an in-flight login to Unauthenticated.
func (s *Store) AbortLogin() {
	s.transition(func() {
		if s.state == Authenticating {
			s.state = Unauthenticated
		}
	})
}

// Login stores the token and user. Calling it again replaces both.
// The in-memory session is established even when persisting fails; the
// returned error then only reports that the token will not survive a restart.
func (s *Store) Login(ctx context.Context, token string, user *User) error {
	if token == "" {
		return errors.New("empty token")
	}

	exp := TokenExpiry(token)
	s.transition(func() {
		s.token = token
		s.user = cloneUser(user)
		s.expiresAt = exp
		s.state = Authenticated
	})

	name := ""
	if user != nil {
		name = user.Name
	}
	s.hub.EmitSession(events.EventSessionLogin, name, "")
	s.logger.Info("logged in", "user", name)

	if err := s.storage.Save(ctx, token); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// Logout clears the session. It returns true only for the call that tore a
// live session down; later calls are no-ops.
func (s *Store) Logout() bool {
	return s.teardown(LoggedOut, events.EventSessionLogout, "logout", nil)
}

// Invalidate tears the session down after the server rejected the token or
// the token expired. Same single-effect semantics as Logout.
func (s *Store) Invalidate(reason string) bool {
	return s.teardown(Expired, events.EventSessionInvalidated, reason, nil)
}

// InvalidateFor is Invalidate guarded by the token the rejected request
// carried. A rejection of a previous session's token leaves the current
// session alone.
func (s *Store) InvalidateFor(token, reason string) bool {
	return s.teardown(Expired, events.EventSessionInvalidated, reason, &token)
}

// teardown ends the session when one is held and, if expect is non-nil,
// only when it still holds *expect.
func (s *Store) teardown(to State, ev events.EventType, reason string, expect *string) bool {
	var (
		name string
		did  bool
	)
	s.transition(func() {
		if s.token == "" || (expect != nil && s.token != *expect) {
			return
		}
		if s.user != nil {
			name = s.user.Name
		}
		s.token = ""
		s.user = nil
		s.expiresAt = time.Time{}
		s.state = to
		did = true
	})
	if !did {
		return false
	}

	if err := s.storage.Clear(context.Background()); err != nil {
		s.logger.Warn("failed to clear persisted session", "error", err)
	}
	s.hub.EmitSession(ev, name, reason)
	s.logger.Info("session ended", "user", name, "reason", reason, "state", to.String())
	return true
}

// SetUser records the user for the current token. Ignored when there is no
// token, so a late user fetch cannot resurrect a torn-down session.
func (s *Store) SetUser(user *User) {
	s.transition(func() {
		if s.token == "" {
			return
		}
		s.user = cloneUser(user)
	})
	if user != nil {
		s.hub.EmitSession(events.EventSessionUser, user.Name, "")
	}
}

// SetUserFor is SetUser guarded by the token the user was fetched with.
// A response for a previous session is dropped.
func (s *Store) SetUserFor(token string, user *User) bool {
	applied := false
	s.transition(func() {
		if s.token == "" || s.token != token {
			return
		}
		s.user = cloneUser(user)
		applied = true
	})
	return applied
}

// Snapshot returns a consistent copy of the session.
func (s *Store) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Session {
	return Session{
		Token:     s.token,
		User:      cloneUser(s.user),
		State:     s.state,
		ExpiresAt: s.expiresAt,
		Seq:       s.seq,
	}
}

// Token returns the current bearer token, or "" when there is none. A token
// whose JWT expiry has passed invalidates the session.
func (s *Store) Token() string {
	s.mu.Lock()
	token, exp := s.token, s.expiresAt
	s.mu.Unlock()

	if token != "" && clock.Expired(s.clock, exp) {
		s.Invalidate("expired")
		return ""
	}
	return token
}

// Subscribe registers fn for state changes and returns a function that
// removes it. fn may be called from several goroutines at once and may see
// snapshots out of order; listeners that act on the state should re-read
// Snapshot or compare Seq.
func (s *Store) Subscribe(fn Listener) func() {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			delete(s.listeners, id)
			s.lmu.Unlock()
		})
	}
}

// transition applies mutate under the lock and notifies listeners when the
// snapshot changed. Notification happens outside the lock, so concurrent
// transitions may reach a listener in either order; Seq tells them apart.
func (s *Store) transition(mutate func()) {
	s.mu.Lock()
	before := s.snapshotLocked()
	mutate()
	after := s.snapshotLocked()
	changed := !equal(before, after)
	if changed {
		s.seq++
		after.Seq = s.seq
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	if before.State != after.State {
		s.metrics.RecordSessionTransition(after.State.String())
	}

	s.lmu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()

	for _, fn := range fns {
		fn(after)
	}
}

func equal(a, b Session) bool {
	if a.Token != b.Token || a.State != b.State || !a.ExpiresAt.Equal(b.ExpiresAt) {
		return false
	}
	if (a.User == nil) != (b.User == nil) {
		return false
	}
	return a.User == nil || *a.User == *b.User
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
