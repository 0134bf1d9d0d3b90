// Package testutil provides shared fixtures for tests that need a running
// management API.
package testutil

import (
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"grimm.is/rampart/internal/api/server"
	"grimm.is/rampart/internal/logging"
	"grimm.is/rampart/internal/session"
)

// Default accounts created by NewAPIServer.
var (
	Admin    = server.SeedUser{Username: "alice", Password: "secret1", Role: session.RoleAdmin, Token: "tok-abc"}
	Operator = server.SeedUser{Username: "bob", Password: "secret2", Role: session.RoleUser}
)

// RequireIntegration skips the test unless RAMPART_INTEGRATION_URL points at
// a real management API.
func RequireIntegration(t *testing.T) string {
	t.Helper()
	u := os.Getenv("RAMPART_INTEGRATION_URL")
	if u == "" {
		t.Skip("Skipping test: requires RAMPART_INTEGRATION_URL")
	}
	return u
}

// NewAPIServer starts an in-memory API with the Admin and Operator accounts.
// The server is closed when the test ends.
func NewAPIServer(t *testing.T, opts ...func(*server.Options)) (*server.Server, *httptest.Server) {
	t.Helper()

	o := server.Options{
		Users:      []server.SeedUser{Admin, Operator},
		BcryptCost: bcrypt.MinCost,
		Logger:     logging.Discard(),
		Secret:     []byte("test-secret"),
	}
	for _, fn := range opts {
		fn(&o)
	}

	srv, err := server.New(o)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

// SignedToken returns an HS256 JWT for subject expiring at exp.
func SignedToken(t *testing.T, subject string, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}
