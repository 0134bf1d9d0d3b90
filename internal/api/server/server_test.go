package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/audit"
	"grimm.is/rampart/internal/clock"
	"grimm.is/rampart/internal/logging"
	"grimm.is/rampart/internal/session"
)

func newTestServer(t *testing.T, clk clock.Clock) *Server {
	t.Helper()
	s, err := New(Options{
		Users: []SeedUser{
			{Username: "alice", Password: "secret1", Role: session.RoleAdmin, Token: "tok-abc"},
			{Username: "bob", Password: "secret2", Role: session.RoleUser},
		},
		BcryptCost: bcrypt.MinCost,
		Logger:     logging.Discard(),
		Secret:     []byte("k"),
		TokenTTL:   time.Hour,
		Clock:      clk,
	})
	require.NoError(t, err)
	return s
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, h http.Handler, user, pass string) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/auth/login", "", api.LoginRequest{Username: user, Password: pass})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp api.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/auth/login", "", api.LoginRequest{Username: "alice", Password: "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "tok-abc", resp.Token)
	require.NotNil(t, resp.User)
	assert.Equal(t, "alice", resp.User.Name)
	assert.Equal(t, session.RoleAdmin, resp.User.Role)

	rec = do(t, h, http.MethodPost, "/auth/login", "", api.LoginRequest{Username: "alice", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var e api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, http.StatusUnauthorized, e.Status)
	assert.Equal(t, "Invalid username or password", e.Message)
}

func TestLogin_LocalizedError(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"username":"x","password":"y"}`))
	req.Header.Set("Accept-Language", "zh-CN")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var e api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, "用户名或密码错误", e.Message)
}

func TestAuthorization(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	bob := login(t, h, "bob", "secret2")

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"no token", "/rules", "", http.StatusUnauthorized},
		{"garbage token", "/rules", "nope", http.StatusUnauthorized},
		{"user reads rules", "/rules", bob, http.StatusOK},
		{"user reads sites", "/sites", bob, http.StatusForbidden},
		{"user reads certificates", "/certificates", bob, http.StatusForbidden},
		{"admin reads sites", "/sites", "tok-abc", http.StatusOK},
		{"user reads dashboard", "/dashboard", bob, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.path, tt.token, nil)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestTokenExpiry(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s := newTestServer(t, clk)
	h := s.Handler()

	token := login(t, h, "bob", "secret2")
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/auth/me", token, nil).Code)

	clk.Advance(2 * time.Hour)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/auth/me", token, nil).Code)
}

func TestSiteCRUD(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	const tok = "tok-abc"

	rec := do(t, h, http.MethodPost, "/sites", tok, api.Site{Name: "Shop", Domain: "https://shop.example"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created api.Site
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	created.Name = "Shop 2"
	rec = do(t, h, http.MethodPut, "/sites/"+created.ID, tok, created)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated api.Site
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Shop 2", updated.Name)
	assert.NotNil(t, updated.UpdatedAt)

	rec = do(t, h, http.MethodGet, "/sites", tok, nil)
	var sites []api.Site
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sites))
	require.Len(t, sites, 1)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/sites/"+created.ID, tok, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/sites/"+created.ID, tok, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/sites/"+created.ID, tok, nil).Code)
}

func TestValidationErrors(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := do(t, h, http.MethodPost, "/sites", "tok-abc", api.Site{Name: "Shop", Domain: "not-a-url"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var e api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, http.StatusBadRequest, e.Status)
	assert.Contains(t, e.Errors, "domain")
	assert.NotContains(t, e.Errors, "name")

	rec = do(t, h, http.MethodPost, "/rules", "tok-abc", api.Rule{Name: "r", Action: "explode", Status: api.RuleEnabled})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Contains(t, e.Errors, "action")
}

func TestResetPassword(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	bob := login(t, h, "bob", "secret2")

	rec := do(t, h, http.MethodPost, "/auth/reset-password", bob, api.ResetPasswordRequest{CurrentPassword: "wrong!", NewPassword: "secret3"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/auth/reset-password", bob, api.ResetPasswordRequest{CurrentPassword: "secret2", NewPassword: "secret3"})
	assert.Equal(t, http.StatusOK, rec.Code)

	login(t, h, "bob", "secret3")
}

func TestAttackLogsFilter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestServer(t, clock.NewMockClock(now))
	s.Data.AppendLog(api.AttackLog{Timestamp: now.Add(-2 * time.Hour), ClientIP: "10.0.0.1", RequestURI: "/a"})
	s.Data.AppendLog(api.AttackLog{Timestamp: now.Add(-time.Hour), ClientIP: "10.0.0.2", RequestURI: "/login"})
	s.Data.AppendLog(api.AttackLog{Timestamp: now.AddDate(0, 0, -2), ClientIP: "10.0.0.3", RequestURI: "/login"})
	h := s.Handler()

	q := api.Today(now)
	q.Search = "login"
	rec := do(t, h, http.MethodGet, "/logs/attack?"+q.Values().Encode(), "tok-abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var logs []api.AttackLog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "10.0.0.2", logs[0].ClientIP)

	rec = do(t, h, http.MethodGet, "/logs/attack?startDate=yesterday", "tok-abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardAndMonitor(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestServer(t, clock.NewMockClock(now))
	s.Data.CreateRule(api.Rule{Name: "on", Action: api.ActionBlock, Status: api.RuleEnabled})
	s.Data.CreateRule(api.Rule{Name: "off", Action: api.ActionBlock, Status: api.RuleDisabled})
	s.Data.AppendLog(api.AttackLog{Timestamp: now.Add(-5 * time.Minute), WafAction: api.ActionBlock, RuleID: "942100", Severity: 9, LatencyMs: 10})
	s.Data.AppendLog(api.AttackLog{Timestamp: now.Add(-50 * time.Minute), WafAction: api.ActionAllow, LatencyMs: 30})

	d := s.Data.Dashboard()
	assert.Equal(t, 1, d.ActiveRules)
	assert.Equal(t, 1, d.BlockedToday)
	assert.Equal(t, 1, d.ThreatStats.SQLInjection)

	m := s.Data.Monitor()
	assert.Equal(t, 2, m.TotalRequests)
	assert.Equal(t, 1, m.BlockedRequests)
	assert.Equal(t, 1, m.AttackRequests)
	assert.Equal(t, 1, m.SeverityCount.Critical)
	assert.InDelta(t, 20.0, m.AvgResponseTime, 0.001)
	require.Len(t, m.TrafficStats, 6)
	assert.Equal(t, 1, m.TrafficStats[5].Requests)
}

func TestFaultInjection(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	s.InjectFault(Fault{Method: http.MethodGet, Path: "/rules", Status: http.StatusInternalServerError, Message: "boom"})

	rec := do(t, h, http.MethodGet, "/rules", "tok-abc", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "boom")

	// One-shot.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/rules", "tok-abc", nil).Code)
}

func TestRequestRecording(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	do(t, h, http.MethodGet, "/rules", "tok-abc", nil)
	do(t, h, http.MethodGet, "/rules", "", nil)

	reqs := s.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "Bearer tok-abc", reqs[0].Authorization)
	assert.Empty(t, reqs[1].Authorization)
	assert.NotEmpty(t, reqs[0].RequestID)
}

func TestPrefix(t *testing.T) {
	s, err := New(Options{Prefix: "/api/", BcryptCost: bcrypt.MinCost, Logger: logging.Discard()})
	require.NoError(t, err)
	h := s.Handler()

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/rules", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/rules", "", nil).Code)
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/api/sites/{id}", routeLabel("/api/sites/123", "/api"))
	assert.Equal(t, "/api/sites", routeLabel("/api/sites", "/api"))
	assert.Equal(t, "/auth/login", routeLabel("/auth/login", ""))
}

func TestLogin_Throttled(t *testing.T) {
	clk := clock.NewMockClock(time.Now())
	s := newTestServer(t, clk)
	h := s.Handler()
	bad := api.LoginRequest{Username: "alice", Password: "nope"}

	for i := 0; i < 10; i++ {
		rec := do(t, h, http.MethodPost, "/auth/login", "", bad)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}

	rec := do(t, h, http.MethodPost, "/auth/login", "", api.LoginRequest{Username: "ALICE", Password: "secret1"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code, "correct password is refused while throttled")
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "Too many failed sign-in attempts")

	login(t, h, "bob", "secret2")

	clk.Advance(time.Minute)
	login(t, h, "alice", "secret1")

	rec = do(t, h, http.MethodPost, "/auth/login", "", bad)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "success resets the count")
}

func TestAuditTrail(t *testing.T) {
	trail, err := audit.Open(audit.Options{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { trail.Close() })

	s, err := New(Options{
		Users: []SeedUser{
			{Username: "alice", Password: "secret1", Role: session.RoleAdmin, Token: "tok-abc"},
			{Username: "bob", Password: "secret2", Role: session.RoleUser},
		},
		BcryptCost: bcrypt.MinCost,
		Logger:     logging.Discard(),
		Secret:     []byte("k"),
		Audit:      trail,
	})
	require.NoError(t, err)
	h := s.Handler()

	bobTok := login(t, h, "bob", "secret2")
	do(t, h, http.MethodPost, "/auth/login", "", api.LoginRequest{Username: "bob", Password: "wrong1"})

	rec := do(t, h, http.MethodPost, "/sites", "tok-abc", api.Site{Name: "Shop", Domain: "https://shop.example"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodDelete, "/sites/1", bobTok, nil).Code)
	do(t, h, http.MethodGet, "/rules", bobTok, nil)

	rec = do(t, h, http.MethodGet, "/audit", "tok-abc", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var events []audit.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 4, "reads are not recorded")

	assert.Equal(t, "delete", events[0].Action)
	assert.Equal(t, "bob", events[0].User)
	assert.Equal(t, http.StatusForbidden, events[0].Status)
	assert.Equal(t, "/sites/1", events[0].Resource)

	assert.Equal(t, "create", events[1].Action)
	assert.Equal(t, "alice", events[1].User)
	assert.Equal(t, http.StatusCreated, events[1].Status)

	assert.Equal(t, http.StatusUnauthorized, events[2].Status)
	assert.Equal(t, "user", events[3].Details["role"])

	rec = do(t, h, http.MethodGet, "/audit?user=bob&action=login", "tok-abc", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Len(t, events, 2)

	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/audit", bobTok, nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/audit?limit=x", "tok-abc", nil).Code)
}

func TestAuditDisabled(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/audit", "tok-abc", nil).Code)
}
