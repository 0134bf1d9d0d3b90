// Package server is an in-memory implementation of the WAF management API.
//
// It backs `rampart dev-server` for local iteration and the integration tests
// of the client core. Accounts use bcrypt hashes, tokens are HS256 JWTs, and
// the data lives in a DataStore seeded with sample sites, rules and traffic.
package server

import (
	"context"
	"crypto/rand"
	"errors"
	mrand "math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/audit"
	"grimm.is/rampart/internal/clock"
	"grimm.is/rampart/internal/i18n"
	"grimm.is/rampart/internal/logging"
	"grimm.is/rampart/internal/metrics"
	"grimm.is/rampart/internal/ratelimit"
	"grimm.is/rampart/internal/session"
)

// Config holds HTTP server timeouts.
type Config struct {
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64
}

// DefaultConfig returns conservative server timeouts.
func DefaultConfig() Config {
	return Config{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
		MaxBodyBytes:      1 << 20,
	}
}

// SeedUser is an account created at startup.
type SeedUser struct {
	Username string
	Password string
	Role     session.Role
	// Token, when set, is issued on login instead of a JWT.
	Token string
}

// DefaultUsers are the development accounts.
var DefaultUsers = []SeedUser{
	{Username: "admin", Password: "admin123", Role: session.RoleAdmin},
	{Username: "operator", Password: "operator123", Role: session.RoleUser},
}

// Options configure a Server.
type Options struct {
	Users      []SeedUser
	Seed       bool          // populate sample data
	TokenTTL   time.Duration // default 12h
	Secret     []byte        // JWT signing key; random when empty
	BcryptCost int
	Clock      clock.Clock
	Logger     *logging.Logger
	Metrics    *metrics.Registry
	Config     Config
	// Prefix is prepended to every route, e.g. "/api".
	Prefix string

	// LoginAttempts failed logins per client and username are allowed in
	// each LoginWindow before login answers 429. Negative disables it.
	LoginAttempts int
	LoginWindow   time.Duration // default 1m

	// Audit, when set, records sign-ins and every mutating request.
	Audit *audit.Store
}

// Fault makes the next matching request fail with Status.
type Fault struct {
	Method  string
	Path    string
	Status  int
	Message string
	Delay   time.Duration
}

// RequestRecord is one request as the server saw it.
type RequestRecord struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
}

// Server is the development API server.
type Server struct {
	opts    Options
	clock   clock.Clock
	logger  *logging.Logger
	metrics *metrics.Registry

	Users  *UserStore
	Tokens *TokenIssuer
	Data   *DataStore

	attempts *ratelimit.Limiter

	mu       sync.Mutex
	faults   []Fault
	requests []RequestRecord

	mux *http.ServeMux
}

// New creates a server.
func New(opts Options) (*Server, error) {
	if opts.Users == nil {
		opts.Users = DefaultUsers
	}
	if opts.TokenTTL == 0 {
		opts.TokenTTL = 12 * time.Hour
	}
	if len(opts.Secret) == 0 {
		opts.Secret = make([]byte, 32)
		if _, err := rand.Read(opts.Secret); err != nil {
			return nil, err
		}
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Config == (Config{}) {
		opts.Config = DefaultConfig()
	}
	opts.Prefix = strings.TrimRight(opts.Prefix, "/")
	if opts.LoginAttempts == 0 {
		opts.LoginAttempts = 10
	}
	if opts.LoginWindow == 0 {
		opts.LoginWindow = time.Minute
	}

	s := &Server{
		opts:    opts,
		clock:   clock.OrReal(opts.Clock),
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if s.logger == nil {
		s.logger = logging.WithComponent("devserver")
	}

	s.Users = NewUserStore(opts.BcryptCost)
	s.Tokens = NewTokenIssuer(opts.Secret, opts.TokenTTL, s.clock)
	s.Data = NewDataStore(s.clock)
	if opts.LoginAttempts > 0 {
		s.attempts = ratelimit.NewLimiter(opts.LoginAttempts, opts.LoginWindow, s.clock)
	}

	for _, u := range opts.Users {
		if err := s.Users.Create(uuid.NewString(), u.Username, u.Password, u.Role); err != nil {
			return nil, err
		}
		if u.Token != "" {
			s.Tokens.Fixed[u.Username] = u.Token
		}
	}

	if opts.Seed {
		s.Data.Seed(mrand.New(mrand.NewSource(s.clock.Now().UnixNano())))
	}

	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	mux := http.NewServeMux()
	s.mux = mux
	p := s.opts.Prefix

	mux.HandleFunc("POST "+p+"/auth/login", s.handleLogin)
	mux.Handle("GET "+p+"/auth/me", s.requireAuth(s.handleMe))
	mux.Handle("POST "+p+"/auth/reset-password", s.requireAuth(s.handleResetPassword))

	mux.Handle("GET "+p+"/sites", s.requireAdmin(s.handleListSites))
	mux.Handle("POST "+p+"/sites", s.requireAdmin(s.handleCreateSite))
	mux.Handle("GET "+p+"/sites/{id}", s.requireAdmin(s.handleGetSite))
	mux.Handle("PUT "+p+"/sites/{id}", s.requireAdmin(s.handleUpdateSite))
	mux.Handle("DELETE "+p+"/sites/{id}", s.requireAdmin(s.handleDeleteSite))

	mux.Handle("GET "+p+"/rules", s.requireAuth(s.handleListRules))
	mux.Handle("POST "+p+"/rules", s.requireAuth(s.handleCreateRule))
	mux.Handle("GET "+p+"/rules/{id}", s.requireAuth(s.handleGetRule))
	mux.Handle("PUT "+p+"/rules/{id}", s.requireAuth(s.handleUpdateRule))
	mux.Handle("DELETE "+p+"/rules/{id}", s.requireAuth(s.handleDeleteRule))

	mux.Handle("GET "+p+"/certificates", s.requireAdmin(s.handleListCertificates))
	mux.Handle("POST "+p+"/certificates", s.requireAdmin(s.handleCreateCertificate))
	mux.Handle("GET "+p+"/certificates/{id}", s.requireAdmin(s.handleGetCertificate))
	mux.Handle("PUT "+p+"/certificates/{id}", s.requireAdmin(s.handleUpdateCertificate))
	mux.Handle("DELETE "+p+"/certificates/{id}", s.requireAdmin(s.handleDeleteCertificate))

	mux.Handle("GET "+p+"/logs/attack", s.requireAuth(s.handleAttackLogs))
	mux.Handle("GET "+p+"/dashboard", s.requireAuth(s.handleDashboard))
	mux.Handle("GET "+p+"/monitor", s.requireAuth(s.handleMonitor))
	mux.Handle("GET "+p+"/audit", s.requireAdmin(s.handleAudit))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
}

// Handler returns the full middleware chain.
// Chain: access log -> CORS -> faults -> i18n -> body limit -> mux
func (s *Server) Handler() http.Handler {
	return s.accessLog(corsMiddleware(s.faultMiddleware(i18n.Middleware(s.maxBody(s.mux)))))
}

// InjectFault queues a one-shot failure for the next request matching
// method and path (path relative to Prefix; empty matches any).
func (s *Server) InjectFault(f Fault) {
	s.mu.Lock()
	s.faults = append(s.faults, f)
	s.mu.Unlock()
}

// Requests returns every request received so far.
func (s *Server) Requests() []RequestRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RequestRecord(nil), s.requests...)
}

// ResetRequests clears the request record.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	s.requests = nil
	s.mu.Unlock()
}

func (s *Server) takeFault(method, path string) (Fault, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel := strings.TrimPrefix(path, s.opts.Prefix)
	for i, f := range s.faults {
		if (f.Method == "" || f.Method == method) && (f.Path == "" || f.Path == rel) {
			s.faults = append(s.faults[:i], s.faults[i+1:]...)
			return f, true
		}
	}
	return Fault{}, false
}

func (s *Server) faultMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := s.takeFault(r.Method, r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if f.Delay > 0 {
			select {
			case <-time.After(f.Delay):
			case <-r.Context().Done():
				return
			}
		}
		if f.Status == 0 {
			next.ServeHTTP(w, r)
			return
		}
		msg := f.Message
		if msg == "" {
			msg = http.StatusText(f.Status)
		}
		writeError(w, f.Status, msg)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()

		rid := r.Header.Get(api.HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set(api.HeaderRequestID, rid)

		s.mu.Lock()
		s.requests = append(s.requests, RequestRecord{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     rid,
		})
		s.mu.Unlock()

		rw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		if rw.status == 0 {
			rw.status = http.StatusOK
		}

		duration := s.clock.Since(start)
		s.metrics.RecordAPIRequest(r.Method, routeLabel(r.URL.Path, s.opts.Prefix), rw.status, duration.Seconds())

		switch {
		case rw.status >= 500:
			s.logger.Error("request", "method", r.Method, "path", r.URL.Path, "status", rw.status, "duration", duration, "request_id", rid)
		case rw.status >= 400:
			s.logger.Warn("request", "method", r.Method, "path", r.URL.Path, "status", rw.status, "duration", duration, "request_id", rid)
		default:
			s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", rw.status, "duration", duration, "request_id", rid)
		}
	})
}

// routeLabel strips ids from a path for metrics.
func routeLabel(path, prefix string) string {
	rel := strings.TrimPrefix(path, prefix)
	parts := strings.Split(strings.Trim(rel, "/"), "/")
	if len(parts) == 2 {
		switch parts[0] {
		case "sites", "rules", "certificates":
			return prefix + "/" + parts[0] + "/{id}"
		}
	}
	return path
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept-Language, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) maxBody(next http.Handler) http.Handler {
	limit := s.opts.Config.MaxBodyBytes
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > limit {
			writeError(w, http.StatusRequestEntityTooLarge, "request entity too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

// Serve runs the server on l until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	cfg := s.opts.Config
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	if s.attempts != nil {
		go s.attempts.RunCleanup(ctx, s.opts.LoginWindow)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", l.Addr().String(), "prefix", s.opts.Prefix)
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}
