package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/text/message"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/authz"
	"grimm.is/rampart/internal/cache"
	"grimm.is/rampart/internal/client"
	"grimm.is/rampart/internal/events"
	"grimm.is/rampart/internal/i18n"
	"grimm.is/rampart/internal/logging"
	"grimm.is/rampart/internal/resource"
	"grimm.is/rampart/internal/session"
)

// Backend is everything the console needs from the rest of the program.
type Backend struct {
	Ctx          context.Context
	Sessions     *session.Store
	API          *client.HTTPClient
	Cache        *cache.Cache
	Hub          *events.Hub
	Printer      *message.Printer
	Logger       *logging.Logger
	PollInterval time.Duration

	Sites        *resource.Controller[api.Site]
	Rules        *resource.Controller[api.Rule]
	Certificates *resource.Controller[api.Certificate]
	Reports      *resource.Reports

	Gate *authz.Controller
	nav  *chanNavigator
}

// NewBackend wires the resource controllers and the navigation controller
// around an authenticated-or-not session store.
func NewBackend(ctx context.Context, store *session.Store, apiClient *client.HTTPClient, c *cache.Cache, hub *events.Hub, p *message.Printer, logger *logging.Logger, poll time.Duration) *Backend {
	if p == nil {
		p = i18n.NewPrinter(i18n.DefaultLang)
	}
	if logger == nil {
		logger = logging.WithComponent("console")
	}
	if poll <= 0 {
		poll = 10 * time.Second
	}

	deps := resource.Deps{API: apiClient, Cache: c, Printer: p, Hub: hub, Logger: logger}
	nav := newChanNavigator(logger)

	return &Backend{
		Ctx:          ctx,
		Sessions:     store,
		API:          apiClient,
		Cache:        c,
		Hub:          hub,
		Printer:      p,
		Logger:       logger,
		PollInterval: poll,
		Sites:        resource.NewController(resource.Sites, deps),
		Rules:        resource.NewController(resource.Rules, deps),
		Certificates: resource.NewController(resource.Certificates, deps),
		Reports:      resource.NewReports(deps),
		Gate:         authz.NewController(store, nav, authz.WithHub(hub), authz.WithLogger(logger)),
		nav:          nav,
	}
}

// chanNavigator hands navigation requests from any goroutine to the
// bubbletea loop.
type chanNavigator struct {
	ch     chan string
	logger *logging.Logger
}

func newChanNavigator(logger *logging.Logger) *chanNavigator {
	return &chanNavigator{ch: make(chan string, 16), logger: logger}
}

// Navigate never blocks. The model reads the final path from the gate, so a
// dropped request only loses a redundant repaint.
func (n *chanNavigator) Navigate(path string) {
	select {
	case n.ch <- path:
	default:
		n.logger.Warn("navigation queue full", "path", path)
	}
}

// navigateMsg tells the model the gate moved to a new page.
type navigateMsg struct{ path string }

func (n *chanNavigator) wait() tea.Cmd {
	return func() tea.Msg {
		return navigateMsg{path: <-n.ch}
	}
}

// userMsg carries the result of resolving the hydrated token's user.
type userMsg struct {
	token string
	user  *session.User
	err   error
}

// fetchUser resolves the user behind a token restored from storage.
func (b *Backend) fetchUser(token string) tea.Cmd {
	return func() tea.Msg {
		user, err := b.API.Me(b.Ctx)
		return userMsg{token: token, user: user, err: err}
	}
}

// noticeMsg is shown as a toast until the next notice or keypress.
type noticeMsg struct {
	text string
	bad  bool
}

func notice(text string, bad bool) tea.Cmd {
	if text == "" {
		return nil
	}
	return func() tea.Msg { return noticeMsg{text: text, bad: bad} }
}

// resultNotice turns a controller result into a toast. Silent results
// produce nothing.
func resultNotice[T any](r resource.Result[T]) tea.Cmd {
	if r.Silent() {
		return nil
	}
	return notice(r.Notice, !r.OK())
}

// Start follows session changes: the gate re-evaluates the current page and
// cached data is dropped once the session ends. The returned function stops
// both.
func (b *Backend) Start() func() {
	stopGate := b.Gate.Start()
	unsubscribe := b.Sessions.Subscribe(func(session.Session) { b.sessionChanged() })
	return func() {
		unsubscribe()
		stopGate()
	}
}

// sessionChanged drops cached data when the session has ended. The current
// snapshot is read rather than the notified one, which can be stale when a
// logout and a new login race.
func (b *Backend) sessionChanged() {
	if !b.Sessions.Snapshot().IsAuthenticated() {
		b.Cache.Reset()
	}
}

// loginMsg reports the outcome of a sign-in attempt.
type loginMsg struct {
	user *session.User
	err  error
}

// login exchanges credentials for a session. Failures other than bad
// credentials leave the store Unauthenticated as well.
func (b *Backend) login(username, password string) tea.Cmd {
	return func() tea.Msg {
		b.Sessions.BeginLogin()
		resp, err := b.API.Login(b.Ctx, username, password)
		if err != nil {
			b.Sessions.AbortLogin()
			return loginMsg{err: err}
		}
		if err := b.Sessions.Login(b.Ctx, resp.Token, resp.User); err != nil {
			b.Logger.Warn("session not persisted", "error", err)
		}
		return loginMsg{user: resp.User}
	}
}
