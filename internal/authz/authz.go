// Package authz decides whether a console route may render for the current
// session, and drives navigation when the session changes.
package authz

import (
	"slices"

	"grimm.is/rampart/internal/session"
)

// Requirement is what a route demands of the session.
type Requirement struct {
	RequireAuth bool
	Roles       []session.Role // empty means any authenticated user
}

// CanAccess reports whether user satisfies the role part of req.
func CanAccess(user *session.User, req Requirement) bool {
	if len(req.Roles) == 0 {
		return true
	}
	if user == nil {
		return false
	}
	return slices.Contains(req.Roles, user.Role)
}

// Action is the outcome of evaluating a route.
type Action int

const (
	Render Action = iota
	Loading
	RedirectLogin
	RedirectForbidden
	RedirectHome
)

func (a Action) String() string {
	switch a {
	case Render:
		return "render"
	case Loading:
		return "loading"
	case RedirectLogin:
		return "redirect-login"
	case RedirectForbidden:
		return "redirect-forbidden"
	case RedirectHome:
		return "redirect-home"
	default:
		return "unknown"
	}
}

// IsRedirect reports whether the action moves away from the current path.
func (a Action) IsRedirect() bool {
	return a == RedirectLogin || a == RedirectForbidden || a == RedirectHome
}

// Decision is the result of Evaluate. Target is set for redirects; From is
// the originally requested path, set only for RedirectLogin.
type Decision struct {
	Action Action
	Target string
	From   string
}

// Evaluate decides what to do with currentPath. Checks run in order: an
// outstanding user fetch, missing authentication, missing role, an
// authenticated user on a public page.
func Evaluate(s session.Session, req Requirement, currentPath string) Decision {
	authenticated := s.IsAuthenticated()

	if req.RequireAuth && s.NeedsUser() {
		return Decision{Action: Loading}
	}

	if req.RequireAuth && !authenticated {
		return Decision{Action: RedirectLogin, Target: LoginPath, From: currentPath}
	}

	if req.RequireAuth && !CanAccess(s.User, req) {
		return Decision{Action: RedirectForbidden, Target: ForbiddenPath}
	}

	if !req.RequireAuth && authenticated {
		return Decision{Action: RedirectHome, Target: HomePath}
	}

	return Decision{Action: Render}
}
