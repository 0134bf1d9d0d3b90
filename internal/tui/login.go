package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"grimm.is/rampart/internal/brand"
	"grimm.is/rampart/internal/client"
	"grimm.is/rampart/internal/i18n"
	"grimm.is/rampart/internal/validation"
)

// LoginModel is the sign-in page.
type LoginModel struct {
	b *Backend

	Username string
	Password string

	form       *huh.Form
	spinner    spinner.Model
	submitting bool
	err        string
}

func NewLoginModel(b *Backend) *LoginModel {
	m := &LoginModel{b: b, spinner: spinner.New(spinner.WithSpinner(spinner.Dot))}
	m.form = m.newForm()
	return m
}

func (m *LoginModel) newForm() *huh.Form {
	p := m.b.Printer
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(p.Sprintf(i18n.FieldLabel("username"))).
				Value(&m.Username),
			huh.NewInput().
				Title(p.Sprintf(i18n.FieldLabel("password"))).
				EchoMode(huh.EchoModePassword).
				Value(&m.Password),
		),
	).WithTheme(huh.ThemeBase16()).WithShowHelp(false)
}

// Init resets the form; the page is shown again after every sign-out.
func (m *LoginModel) Init() tea.Cmd {
	m.Password = ""
	m.submitting = false
	m.form = m.newForm()
	return m.form.Init()
}

func (m *LoginModel) Capturing() bool { return !m.submitting }

func (m *LoginModel) Close() {}

func (m *LoginModel) Update(msg tea.Msg) (page, tea.Cmd) {
	switch msg := msg.(type) {
	case loginMsg:
		m.submitting = false
		if msg.err != nil {
			m.err = client.AsError(msg.err).Message
			m.Password = ""
			m.form = m.newForm()
			return m, m.form.Init()
		}
		m.err = ""
		m.b.Gate.AfterLogin()
		name := ""
		if msg.user != nil {
			name = msg.user.Name
		}
		return m, notice(m.b.Printer.Sprintf(i18n.NoticeLoggedIn, name), false)

	case spinner.TickMsg:
		if !m.submitting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.submitting {
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m, m.submit()
	}
	return m, cmd
}

// submit validates locally and sends the credentials.
func (m *LoginModel) submit() tea.Cmd {
	if fe := validation.Login(m.Username, m.Password); len(fe) > 0 {
		m.err = joinFields(fe.Localize(m.b.Printer))
		m.form = m.newForm()
		return m.form.Init()
	}
	m.submitting = true
	m.err = ""
	return tea.Batch(m.spinner.Tick, m.b.login(m.Username, m.Password))
}

func (m *LoginModel) View() string {
	body := m.form.View()
	if m.submitting {
		body = m.spinner.View() + " " + m.b.Printer.Sprintf(i18n.ConsoleLoading)
	}
	parts := []string{
		StyleTitle.Render(brand.Name),
		StyleSubtitle.Render(brand.Tagline),
		"",
		body,
	}
	if m.err != "" {
		parts = append(parts, StyleFieldError.Render(m.err))
	}
	return StyleDialog.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
