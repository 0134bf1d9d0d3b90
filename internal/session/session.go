// Package session holds the console's authentication state.
//
// A Store owns the bearer token and the current user. It persists exactly one
// token through a Storage, decodes JWT expiry when the token carries one, and
// performs logout and invalidation as guarded transitions: concurrent callers
// race to tear the session down, and only the winner's call has an effect.
package session

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNoToken is returned by Storage.Load when nothing is persisted.
var ErrNoToken = errors.New("no persisted token")

// State is a point in the session lifecycle.
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
	Expired
	LoggedOut
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	case LoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Role is a user's permission level.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is the authenticated principal as reported by the server.
type User struct {
	ID   string `json:"id"`
	Name string `json:"username"`
	Role Role   `json:"role"`
}

// UnmarshalJSON accepts either "username" or "name" for the display name.
func (u *User) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       json.RawMessage `json:"id"`
		Username string          `json:"username"`
		Name     string          `json:"name"`
		Role     Role            `json:"role"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	u.ID = rawID(raw.ID)
	u.Name = raw.Username
	if u.Name == "" {
		u.Name = raw.Name
	}
	u.Role = raw.Role
	return nil
}

// rawID accepts string or numeric ids.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Session is a consistent snapshot of the store.
type Session struct {
	Token     string
	User      *User
	State     State
	ExpiresAt time.Time

	// Seq increases with every change. Listeners can run concurrently, so a
	// snapshot with a lower Seq than one already seen is out of date.
	Seq uint64
}

// IsAuthenticated reports whether a token is held.
func (s Session) IsAuthenticated() bool {
	return s.Token != ""
}

// NeedsUser reports whether the token is held but the user is still unknown,
// as after hydrating from storage.
func (s Session) NeedsUser() bool {
	return s.Token != "" && s.User == nil
}

// Role returns the user's role, or "" when the user is unknown.
func (s Session) Role() Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}
