package server

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/audit"
)

// record writes an audit event when the server has an audit store.
func (s *Server) record(r *http.Request, user, action string, status int, details map[string]any) {
	if s.opts.Audit == nil {
		return
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	evt := audit.Event{
		User:      user,
		Action:    action,
		Resource:  strings.TrimPrefix(r.URL.Path, s.opts.Prefix),
		Status:    status,
		IP:        ip,
		RequestID: r.Header.Get(api.HeaderRequestID),
		Details:   details,
	}
	if err := s.opts.Audit.Write(r.Context(), evt); err != nil {
		s.logger.Warn("audit write failed", "action", action, "error", err)
	}
}

func auditAction(r *http.Request) string {
	if strings.HasSuffix(r.URL.Path, "/reset-password") {
		return "reset_password"
	}
	switch r.Method {
	case http.MethodPost:
		return "create"
	case http.MethodPut:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return ""
}

// audited records mutating requests made by the authenticated user.
func (s *Server) audited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action := auditAction(r)
		if s.opts.Audit == nil || action == "" {
			next(w, r)
			return
		}
		rw := &statusWriter{ResponseWriter: w}
		next(rw, r)
		if rw.status == 0 {
			rw.status = http.StatusOK
		}
		user := ""
		if u := userFromContext(r.Context()); u != nil {
			user = u.Name
		}
		s.record(r, user, action, rw.status, nil)
	}
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.opts.Audit == nil {
		writeError(w, http.StatusNotFound, "audit trail is disabled")
		return
	}
	v := r.URL.Query()
	q := audit.Query{User: v.Get("user"), Action: v.Get("action"), Limit: 100}
	if l := v.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		q.Limit = n
	}
	events, err := s.opts.Audit.Query(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}
