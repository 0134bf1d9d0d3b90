package state

import (
	"context"
	"errors"

	"grimm.is/rampart/internal/brand"
	"grimm.is/rampart/internal/session"
)

// BucketSession holds the persisted session token.
const BucketSession = "session"

// SessionStorage persists the session token in a Store under
// brand.TokenStorageKey.
type SessionStorage struct {
	store Store
}

var _ session.Storage = (*SessionStorage)(nil)

// NewSessionStorage wraps store.
func NewSessionStorage(store Store) *SessionStorage {
	return &SessionStorage{store: store}
}

func (s *SessionStorage) Load(ctx context.Context) (string, error) {
	v, err := s.store.Get(ctx, BucketSession, brand.TokenStorageKey)
	if errors.Is(err, ErrNotFound) || (err == nil && len(v) == 0) {
		return "", session.ErrNoToken
	}
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (s *SessionStorage) Save(ctx context.Context, token string) error {
	return s.store.Set(ctx, BucketSession, brand.TokenStorageKey, []byte(token))
}

func (s *SessionStorage) Clear(ctx context.Context) error {
	return s.store.Delete(ctx, BucketSession, brand.TokenStorageKey)
}
