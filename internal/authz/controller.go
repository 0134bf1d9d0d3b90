package authz

import (
	"sync"

	"grimm.is/rampart/internal/events"
	"grimm.is/rampart/internal/logging"
	"grimm.is/rampart/internal/session"
)

// Navigator moves the UI to a path.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// SessionSource is the part of *session.Store the controller reads.
type SessionSource interface {
	Snapshot() session.Session
	Subscribe(fn session.Listener) func()
}

// Controller tracks the current route and re-evaluates it on every session
// change. It is the only component that navigates.
type Controller struct {
	sessions SessionSource
	nav      Navigator
	hub      *events.Hub
	logger   *logging.Logger

	mu       sync.Mutex
	current  string
	returnTo string
	decision Decision

	unsubscribe func()
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithHub publishes navigation events.
func WithHub(h *events.Hub) ControllerOption {
	return func(c *Controller) { c.hub = h }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a controller. Call Start to follow session changes.
func NewController(sessions SessionSource, nav Navigator, opts ...ControllerOption) *Controller {
	c := &Controller{
		sessions: sessions,
		nav:      nav,
		logger:   logging.WithComponent("authz"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes to the session. The returned function unsubscribes.
func (c *Controller) Start() func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe == nil {
		c.unsubscribe = c.sessions.Subscribe(func(session.Session) { c.Refresh() })
	}
	return c.Stop
}

// Stop unsubscribes from the session.
func (c *Controller) Stop() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Current returns the path currently shown.
func (c *Controller) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Decision returns the decision for the current path.
func (c *Controller) Decision() Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decision
}

// ReturnTo returns the path saved by the last login redirect.
func (c *Controller) ReturnTo() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.returnTo
}

// Visit requests path and returns the decision for it. Redirects are
// followed; Current reports where they ended.
func (c *Controller) Visit(path string) Decision {
	return c.resolve(path)
}

// Refresh re-evaluates the current path against the latest session.
func (c *Controller) Refresh() Decision {
	c.mu.Lock()
	path := c.current
	c.mu.Unlock()
	if path == "" {
		return Decision{Action: Render}
	}
	return c.resolve(path)
}

// AfterLogin sends the user back to the page that required the login, or to
// the dashboard.
func (c *Controller) AfterLogin() Decision {
	c.mu.Lock()
	target := c.returnTo
	c.returnTo = ""
	c.mu.Unlock()

	if target == "" || target == LoginPath {
		target = HomePath
	}
	return c.resolve(target)
}

// resolve evaluates path, follows redirects and navigates when the final
// path differs from the current one. It returns the decision for path
// itself; Decision() then reports the decision for the page shown.
func (c *Controller) resolve(path string) Decision {
	c.mu.Lock()
	// Read the session under c.mu so evaluations never go backwards.
	snap := c.sessions.Snapshot()
	from := c.current
	final, first, last := c.follow(normalize(path), snap)
	c.decision = last
	changed := final != c.current
	c.current = final
	c.mu.Unlock()

	if changed {
		c.logger.Debug("navigate", "from", from, "to", final, "action", first.Action.String())
		c.hub.EmitNavigate(from, final)
		if c.nav != nil {
			c.nav.Navigate(final)
		}
	}
	return first
}

// follow evaluates path and chases redirects. Redirect targets are fixed
// pages, so the chain is short; maxHops only guards a broken route table.
// Unknown paths resolve to the dashboard. Must hold c.mu.
func (c *Controller) follow(path string, snap session.Session) (final string, first, last Decision) {
	const maxHops = 4
	for hop := 0; hop < maxHops; hop++ {
		route, ok := Lookup(path)
		if !ok {
			path = HomePath
			route, _ = Lookup(path)
		}

		d := Evaluate(snap, route.Requirement, path)
		if hop == 0 {
			first = d
		}
		last = d
		if !d.Action.IsRedirect() {
			return path, first, last
		}
		if d.Action == RedirectLogin && d.From != "" {
			c.returnTo = d.From
		}
		path = d.Target
	}
	return path, first, last
}
