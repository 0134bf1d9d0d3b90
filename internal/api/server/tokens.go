package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"grimm.is/rampart/internal/clock"
)

var errTokenRejected = errors.New("token rejected")

// TokenIssuer mints and checks bearer tokens. Issued tokens are HS256 JWTs
// carrying the username as subject and an exp claim; a token is accepted
// only while it is both unexpired and not revoked.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock

	// Fixed maps usernames to predetermined opaque tokens.
	Fixed map[string]string

	mu     sync.Mutex
	active map[string]string // token -> username
}

// NewTokenIssuer creates an issuer signing with secret.
func NewTokenIssuer(secret []byte, ttl time.Duration, clk clock.Clock) *TokenIssuer {
	return &TokenIssuer{
		secret: secret,
		ttl:    ttl,
		clock:  clock.OrReal(clk),
		Fixed:  make(map[string]string),
		active: make(map[string]string),
	}
}

// Issue returns a new token for username.
func (t *TokenIssuer) Issue(username string) (string, error) {
	token, ok := t.Fixed[username]
	if !ok {
		now := t.clock.Now()
		claims := jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		}
		var err error
		token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
		if err != nil {
			return "", fmt.Errorf("failed to sign token: %w", err)
		}
	}

	t.mu.Lock()
	t.active[token] = username
	t.mu.Unlock()
	return token, nil
}

// Verify returns the username a token was issued to.
func (t *TokenIssuer) Verify(token string) (string, error) {
	t.mu.Lock()
	username, ok := t.active[token]
	t.mu.Unlock()
	if !ok {
		return "", errTokenRejected
	}

	if t.Fixed[username] == token {
		return username, nil
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errTokenRejected, err)
	}
	return username, nil
}

// Revoke invalidates one token.
func (t *TokenIssuer) Revoke(token string) {
	t.mu.Lock()
	delete(t.active, token)
	t.mu.Unlock()
}

// RevokeAll invalidates every issued token.
func (t *TokenIssuer) RevokeAll() {
	t.mu.Lock()
	t.active = make(map[string]string)
	t.mu.Unlock()
}
