package server

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"grimm.is/rampart/internal/session"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
)

// Account is a user known to the server.
type Account struct {
	ID       string
	Username string
	Hash     []byte // bcrypt hash
	Role     session.Role
}

func (a *Account) user() *session.User {
	return &session.User{ID: a.ID, Name: a.Username, Role: a.Role}
}

// UserStore holds accounts in memory.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*Account
	cost  int
}

// NewUserStore creates an empty store. cost is the bcrypt cost; tests use
// bcrypt.MinCost.
func NewUserStore(cost int) *UserStore {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &UserStore{users: make(map[string]*Account), cost: cost}
}

// Create adds an account.
func (s *UserStore) Create(id, username, password string, role session.Role) error {
	if username == "" || password == "" {
		return errors.New("username and password required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return ErrUserExists
	}
	s.users[username] = &Account{ID: id, Username: username, Hash: hash, Role: role}
	return nil
}

// Authenticate checks a password.
func (s *UserStore) Authenticate(username, password string) (*session.User, error) {
	s.mu.RLock()
	acct, ok := s.users[username]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.Hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return acct.user(), nil
}

// Lookup returns the user for username.
func (s *UserStore) Lookup(username string) (*session.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return acct.user(), nil
}

// ChangePassword replaces a password after verifying the current one.
func (s *UserStore) ChangePassword(username, current, next string) error {
	if _, err := s.Authenticate(username, current); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.users[username]
	if !ok {
		return ErrUserNotFound
	}
	acct.Hash = hash
	return nil
}
