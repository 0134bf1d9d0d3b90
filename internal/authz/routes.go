package authz

import (
	"strings"

	"grimm.is/rampart/internal/session"
)

// Well-known paths.
const (
	LoginPath     = "/login"
	HomePath      = "/dashboard"
	ForbiddenPath = "/forbidden"
)

var adminOnly = []session.Role{session.RoleAdmin}

// Route is one console page.
type Route struct {
	Path        string
	Breadcrumb  string // short label used in breadcrumbs and menus
	Title       string
	Requirement Requirement
	Hidden      bool // not listed in menus
}

// Routes is the console route table.
var Routes = []Route{
	{Path: LoginPath, Breadcrumb: "login", Title: "Sign in", Hidden: true},
	{Path: HomePath, Breadcrumb: "dashboard", Title: "Dashboard", Requirement: Requirement{RequireAuth: true}},
	{Path: "/settings", Breadcrumb: "settings", Title: "Settings", Requirement: Requirement{RequireAuth: true, Roles: adminOnly}, Hidden: true},
	{Path: "/settings/site", Breadcrumb: "sites", Title: "Site management", Requirement: Requirement{RequireAuth: true, Roles: adminOnly}},
	{Path: "/settings/certificate", Breadcrumb: "certificates", Title: "Certificate management", Requirement: Requirement{RequireAuth: true, Roles: adminOnly}},
	{Path: "/rules", Breadcrumb: "rules", Title: "Rule management", Requirement: Requirement{RequireAuth: true}},
	{Path: "/logs", Breadcrumb: "logs", Title: "Attack logs", Requirement: Requirement{RequireAuth: true}},
	{Path: "/monitor", Breadcrumb: "monitor", Title: "Traffic monitor", Requirement: Requirement{RequireAuth: true}},
	{Path: ForbiddenPath, Breadcrumb: "forbidden", Title: "Forbidden", Requirement: Requirement{RequireAuth: true}, Hidden: true},
}

// Lookup finds the route for path. Trailing slashes are ignored.
func Lookup(path string) (Route, bool) {
	path = normalize(path)
	for _, r := range Routes {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// Menu returns the routes user may open, in table order.
func Menu(user *session.User) []Route {
	var out []Route
	for _, r := range Routes {
		if r.Hidden || !r.Requirement.RequireAuth {
			continue
		}
		if CanAccess(user, r.Requirement) {
			out = append(out, r)
		}
	}
	return out
}

// Breadcrumbs returns one label per path segment, prefixed by the dashboard.
// Segments without a route use the raw segment. The login page has none.
func Breadcrumbs(path string) []string {
	path = normalize(path)
	if path == LoginPath {
		return nil
	}

	crumbs := []string{"dashboard"}
	prefix := ""
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" {
			continue
		}
		prefix += "/" + seg
		if prefix == HomePath {
			continue
		}
		if r, ok := Lookup(prefix); ok {
			crumbs = append(crumbs, r.Breadcrumb)
		} else {
			crumbs = append(crumbs, seg)
		}
	}
	return crumbs
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
