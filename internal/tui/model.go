package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"grimm.is/rampart/internal/authz"
	"grimm.is/rampart/internal/brand"
	"grimm.is/rampart/internal/client"
	"grimm.is/rampart/internal/i18n"
	"grimm.is/rampart/internal/session"
)

// page is one screen of the console.
type page interface {
	Init() tea.Cmd
	Update(tea.Msg) (page, tea.Cmd)
	View() string
	// Capturing reports whether the page consumes every key (forms, search).
	Capturing() bool
	// Close releases what the page holds while shown.
	Close()
}

// Model is the main application state
type Model struct {
	b     *Backend
	start string

	pages  map[string]page
	Active string

	// pending is set when the active page was entered before the user was
	// known; it is initialized once the user arrives.
	pending bool

	Width   int
	Height  int
	toast   noticeMsg
	spinner spinner.Model
}

// NewModel creates the console opening at start (the dashboard when empty).
func NewModel(b *Backend, start string) Model {
	if start == "" {
		start = authz.HomePath
	}
	sites := NewSitesModel(b)
	return Model{
		b:     b,
		start: start,
		pages: map[string]page{
			authz.LoginPath:         NewLoginModel(b),
			authz.HomePath:          NewDashboardModel(b),
			"/settings":             sites,
			"/settings/site":        sites,
			"/settings/certificate": NewCertificatesModel(b),
			"/rules":                NewRulesModel(b),
			"/logs":                 NewLogsModel(b),
			"/monitor":              NewMonitorModel(b),
			authz.ForbiddenPath:     &forbiddenPage{b: b},
		},
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

// Init initializes the application
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.b.nav.wait(),
		m.spinner.Tick,
		func() tea.Msg {
			m.b.Gate.Visit(m.start)
			return nil
		},
	}
	if s := m.b.Sessions.Snapshot(); s.NeedsUser() {
		cmds = append(cmds, m.b.fetchUser(s.Token))
	}
	return tea.Batch(cmds...)
}

func (m Model) activePage() page {
	return m.pages[m.Active]
}

func (m Model) loading() bool {
	return m.b.Gate.Decision().Action == authz.Loading
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case navigateMsg:
		return m.navigate()

	case userMsg:
		return m.userArrived(msg)

	case noticeMsg:
		m.toast = msg
		return m, nil

	case spinner.TickMsg:
		if msg.ID == m.spinner.ID() {
			if !m.loading() {
				return m, nil
			}
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		var cmds []tea.Cmd
		for _, p := range m.distinctPages() {
			_, cmd := p.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		m.toast = noticeMsg{}
		if cmd, handled := m.globalKey(msg); handled {
			return m, cmd
		}
	}

	if _, ok := msg.(broadcast); ok {
		var cmds []tea.Cmd
		for _, p := range m.distinctPages() {
			_, cmd := p.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	if p := m.activePage(); p != nil && !m.loading() {
		_, cmd := p.Update(msg)
		return m, cmd
	}
	return m, nil
}

// distinctPages lists each page once; several paths may share one.
func (m Model) distinctPages() []page {
	seen := make(map[page]bool, len(m.pages))
	var out []page
	for _, p := range m.pages {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// globalKey handles menu shortcuts unless the page is capturing input.
func (m Model) globalKey(key tea.KeyMsg) (tea.Cmd, bool) {
	if p := m.activePage(); p != nil && p.Capturing() && !m.loading() {
		return nil, false
	}

	s := key.String()
	if s == "r" && m.loading() {
		if snap := m.b.Sessions.Snapshot(); snap.NeedsUser() {
			return m.b.fetchUser(snap.Token), true
		}
	}
	switch s {
	case "q":
		_, cmd := m.quit()
		return cmd, true
	case "L":
		if m.b.Sessions.Logout() {
			return notice(m.b.Printer.Sprintf(i18n.NoticeLoggedOut), false), true
		}
		return nil, true
	case "tab":
		menu := authz.Menu(m.b.Sessions.Snapshot().User)
		if len(menu) == 0 {
			return nil, true
		}
		next := 0
		for i, r := range menu {
			if r.Path == m.Active {
				next = (i + 1) % len(menu)
			}
		}
		path := menu[next].Path
		return func() tea.Msg { m.b.Gate.Visit(path); return nil }, true
	}

	if n, err := strconv.Atoi(s); err == nil && n >= 1 {
		menu := authz.Menu(m.b.Sessions.Snapshot().User)
		if n <= len(menu) {
			path := menu[n-1].Path
			return func() tea.Msg { m.b.Gate.Visit(path); return nil }, true
		}
	}
	return nil, false
}

// navigate switches to the page the gate settled on.
func (m Model) navigate() (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.b.nav.wait()}

	path := m.b.Gate.Current()
	if path == m.Active {
		return m, tea.Batch(cmds...)
	}

	if old := m.activePage(); old != nil {
		old.Close()
	}
	m.Active = path
	m.b.Logger.Debug("page", "path", path)

	p := m.activePage()
	if p == nil {
		return m, tea.Batch(cmds...)
	}

	if path == authz.LoginPath {
		if login, ok := p.(*LoginModel); ok && m.b.Sessions.Snapshot().State == session.Expired {
			login.err = m.b.Printer.Sprintf(i18n.ErrAuth)
		}
	}

	if m.loading() {
		m.pending = true
		cmds = append(cmds, m.spinner.Tick)
		return m, tea.Batch(cmds...)
	}
	m.pending = false
	cmds = append(cmds, p.Init())
	return m, tea.Batch(cmds...)
}

// userArrived completes a restored session. An auth failure has already
// torn the session down and the gate is on its way to the login page.
func (m Model) userArrived(msg userMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		if client.IsAuth(msg.err) {
			return m, nil
		}
		m.b.Logger.Warn("failed to resolve user", "error", msg.err)
		return m, notice(client.AsError(msg.err).Message, true)
	}

	m.b.Sessions.SetUserFor(msg.token, msg.user)
	m.b.Gate.Refresh()

	if m.pending && !m.loading() && m.b.Gate.Current() == m.Active {
		m.pending = false
		if p := m.activePage(); p != nil {
			return m, p.Init()
		}
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if p := m.activePage(); p != nil {
		p.Close()
	}
	return m, tea.Quit
}

// View renders the application
func (m Model) View() string {
	var body string
	switch {
	case m.loading():
		body = m.spinner.View() + " " + m.b.Printer.Sprintf(i18n.ConsoleLoading)
		if m.toast.text != "" {
			body += "\n" + StyleHelp.Render("r: retry")
		}
	case m.activePage() != nil:
		body = m.activePage().View()
	}

	doc := body
	if m.Active != authz.LoginPath {
		doc = m.ViewTopBar() + "\n" + body
	}

	if m.toast.text != "" {
		style := StyleToastGood
		if m.toast.bad {
			style = StyleToastBad
		}
		doc += "\n\n" + style.Render(m.toast.text)
	}

	return StyleApp.Render(doc)
}

// ViewTopBar renders the menu the user's role allows, the breadcrumbs and
// the signed-in user.
func (m Model) ViewTopBar() string {
	snap := m.b.Sessions.Snapshot()

	items := []string{StyleTitle.Render(strings.ToUpper(brand.Name) + " ")}
	for i, r := range authz.Menu(snap.User) {
		key := StyleMenuKey.Render("[" + strconv.Itoa(i+1) + "]")
		if r.Path == m.Active {
			items = append(items, StyleMenuItemActive.Render(key+" "+r.Title))
		} else {
			items = append(items, StyleMenuItem.Render(key+" "+r.Title))
		}
	}
	if snap.User != nil {
		items = append(items, StyleSubtitle.Render("  "+snap.User.Name+" ("+string(snap.User.Role)+")  L: sign out"))
	}

	bar := lipgloss.JoinHorizontal(lipgloss.Top, items...)
	crumbs := StyleBreadcrumb.Render(strings.Join(authz.Breadcrumbs(m.Active), " / "))
	return StyleTopBar.Render(lipgloss.JoinVertical(lipgloss.Left, bar, crumbs))
}

// forbiddenPage is shown when the user's role does not allow the page.
type forbiddenPage struct{ b *Backend }

func (f *forbiddenPage) Init() tea.Cmd                  { return nil }
func (f *forbiddenPage) Update(tea.Msg) (page, tea.Cmd) { return f, nil }
func (f *forbiddenPage) Capturing() bool                { return false }
func (f *forbiddenPage) Close()                         {}

func (f *forbiddenPage) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		StyleStatusBad.Render("403"),
		f.b.Printer.Sprintf(i18n.ConsoleForbidden),
		StyleHelp.Render("tab: next page"),
	)
}

// Run starts the console and blocks until the user quits or b.Ctx ends.
func Run(b *Backend, start string, opts ...tea.ProgramOption) error {
	stop := b.Start()
	defer stop()

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(b.Ctx)}, opts...)
	final, err := tea.NewProgram(NewModel(b, start), opts...).Run()
	if fm, ok := final.(Model); ok {
		if p := fm.activePage(); p != nil {
			p.Close()
		}
	}
	return err
}
