package server

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/i18n"
	"grimm.is/rampart/internal/session"
	"grimm.is/rampart/internal/validation"
)

type ctxKey string

const userKey ctxKey = "user"

// userFromContext returns the authenticated user set by requireAuth.
func userFromContext(ctx context.Context) *session.User {
	u, _ := ctx.Value(userKey).(*session.User)
	return u
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// requireAuth rejects requests without a live token with 401.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeErrorCtx(w, r, http.StatusUnauthorized, i18n.ErrAuth)
			return
		}
		username, err := s.Tokens.Verify(token)
		if err != nil {
			writeErrorCtx(w, r, http.StatusUnauthorized, i18n.ErrAuth)
			return
		}
		user, err := s.Users.Lookup(username)
		if err != nil {
			writeErrorCtx(w, r, http.StatusUnauthorized, i18n.ErrAuth)
			return
		}
		s.audited(next)(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

// requireAdmin additionally rejects non-admin users with 403.
func (s *Server) requireAdmin(next http.HandlerFunc) http.Handler {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if u := userFromContext(r.Context()); u == nil || u.Role != session.RoleAdmin {
			writeErrorCtx(w, r, http.StatusForbidden, i18n.ConsoleForbidden)
			return
		}
		next(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	key := attemptKey(r, req.Username)
	if s.attempts != nil && s.attempts.Exhausted(key) {
		retry := s.attempts.RetryAfter(key)
		s.logger.Warn("login throttled", "username", req.Username, "retry_after", retry)
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
		writeErrorCtx(w, r, http.StatusTooManyRequests, i18n.AuthTooManyAttempts)
		return
	}

	user, err := s.Users.Authenticate(req.Username, req.Password)
	if err != nil {
		s.logger.Warn("login failed", "username", req.Username)
		if s.attempts != nil {
			s.attempts.Allow(key)
		}
		s.record(r, req.Username, "login", http.StatusUnauthorized, nil)
		writeErrorCtx(w, r, http.StatusUnauthorized, i18n.AuthInvalidCredentials)
		return
	}
	if s.attempts != nil {
		s.attempts.Reset(key)
	}

	token, err := s.Tokens.Issue(user.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("login", "username", user.Name, "role", user.Role)
	s.record(r, user.Name, "login", http.StatusOK, map[string]any{"role": user.Role})
	writeJSON(w, http.StatusOK, api.LoginResponse{Token: token, User: user})
}

// attemptKey identifies a login source: the client address and the
// case-folded username.
func attemptKey(r *http.Request, username string) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host + "|" + strings.ToLower(strings.TrimSpace(username))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFromContext(r.Context()))
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req api.ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fe := validation.ResetPassword(req); len(fe) > 0 {
		writeFieldErrors(w, r, fe.Localize(i18n.GetPrinter(r.Context())))
		return
	}

	user := userFromContext(r.Context())
	err := s.Users.ChangePassword(user.Name, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		p := i18n.GetPrinter(r.Context())
		writeFieldErrors(w, r, map[string]string{"currentPassword": p.Sprintf(i18n.AuthInvalidCredentials)})
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// validated answers 400 when fe has problems.
func validated(w http.ResponseWriter, r *http.Request, fe validation.FieldErrors) bool {
	if len(fe) > 0 {
		writeFieldErrors(w, r, fe.Localize(i18n.GetPrinter(r.Context())))
		return false
	}
	return true
}

func notFound(w http.ResponseWriter, kind string) {
	writeError(w, http.StatusNotFound, kind+" not found")
}

// Sites

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Data.Sites())
}

func (s *Server) handleGetSite(w http.ResponseWriter, r *http.Request) {
	site, ok := s.Data.Site(r.PathValue("id"))
	if !ok {
		notFound(w, "site")
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (s *Server) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	var site api.Site
	if !decodeJSON(w, r, &site) || !validated(w, r, validation.Site(site)) {
		return
	}
	writeJSON(w, http.StatusCreated, s.Data.CreateSite(site))
}

func (s *Server) handleUpdateSite(w http.ResponseWriter, r *http.Request) {
	var site api.Site
	if !decodeJSON(w, r, &site) || !validated(w, r, validation.Site(site)) {
		return
	}
	site.ID = r.PathValue("id")
	updated, ok := s.Data.UpdateSite(site)
	if !ok {
		notFound(w, "site")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	if !s.Data.DeleteSite(r.PathValue("id")) {
		notFound(w, "site")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rules

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Data.Rules())
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := s.Data.Rule(r.PathValue("id"))
	if !ok {
		notFound(w, "rule")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule api.Rule
	if !decodeJSON(w, r, &rule) || !validated(w, r, validation.Rule(rule)) {
		return
	}
	writeJSON(w, http.StatusCreated, s.Data.CreateRule(rule))
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule api.Rule
	if !decodeJSON(w, r, &rule) || !validated(w, r, validation.Rule(rule)) {
		return
	}
	rule.ID = r.PathValue("id")
	updated, ok := s.Data.UpdateRule(rule)
	if !ok {
		notFound(w, "rule")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if !s.Data.DeleteRule(r.PathValue("id")) {
		notFound(w, "rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Certificates

func (s *Server) handleListCertificates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Data.Certificates())
}

func (s *Server) handleGetCertificate(w http.ResponseWriter, r *http.Request) {
	cert, ok := s.Data.Certificate(r.PathValue("id"))
	if !ok {
		notFound(w, "certificate")
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

// describeCertificate fills the fields the server derives from the PEM.
func (s *Server) describeCertificate(c *api.Certificate) error {
	info, err := validation.ParseCertificate(c.Certificate)
	if err != nil {
		return err
	}
	c.Issuer = info.Issuer
	c.ValidFrom = info.NotBefore
	c.ValidTo = info.NotAfter
	c.Status = info.Status(s.clock.Now())
	return nil
}

func (s *Server) handleCreateCertificate(w http.ResponseWriter, r *http.Request) {
	var cert api.Certificate
	if !decodeJSON(w, r, &cert) || !validated(w, r, validation.Certificate(cert)) {
		return
	}
	if err := s.describeCertificate(&cert); err != nil {
		p := i18n.GetPrinter(r.Context())
		writeFieldErrors(w, r, map[string]string{"certificate": p.Sprintf(i18n.ValidationPEM)})
		return
	}
	writeJSON(w, http.StatusCreated, s.Data.CreateCertificate(cert))
}

func (s *Server) handleUpdateCertificate(w http.ResponseWriter, r *http.Request) {
	var cert api.Certificate
	if !decodeJSON(w, r, &cert) || !validated(w, r, validation.Certificate(cert)) {
		return
	}
	if err := s.describeCertificate(&cert); err != nil {
		p := i18n.GetPrinter(r.Context())
		writeFieldErrors(w, r, map[string]string{"certificate": p.Sprintf(i18n.ValidationPEM)})
		return
	}
	cert.ID = r.PathValue("id")
	updated, ok := s.Data.UpdateCertificate(cert)
	if !ok {
		notFound(w, "certificate")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteCertificate(w http.ResponseWriter, r *http.Request) {
	if !s.Data.DeleteCertificate(r.PathValue("id")) {
		notFound(w, "certificate")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reporting

func (s *Server) handleAttackLogs(w http.ResponseWriter, r *http.Request) {
	q, err := api.ParseLogQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.Data.Logs(q))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Data.Dashboard())
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Data.Monitor())
}
