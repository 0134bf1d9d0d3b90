package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/i18n"
	"grimm.is/rampart/internal/resource"
)

type dashboardMsg struct{ res resource.Result[api.DashboardSummary] }

func (dashboardMsg) broadcast() {}

// DashboardModel is the landing page overview.
type DashboardModel struct {
	b       *Backend
	Summary *api.DashboardSummary
	err     string
	spinner spinner.Model
	Width   int
}

func NewDashboardModel(b *Backend) *DashboardModel {
	return &DashboardModel{b: b, spinner: spinner.New(spinner.WithSpinner(spinner.Dot))}
}

func (m *DashboardModel) Init() tea.Cmd {
	ctx := m.b.Ctx
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		return dashboardMsg{res: m.b.Reports.Dashboard(ctx)}
	})
}

func (m *DashboardModel) Capturing() bool { return false }

func (m *DashboardModel) Close() {}

func (m *DashboardModel) Update(msg tea.Msg) (page, tea.Cmd) {
	switch msg := msg.(type) {
	case dashboardMsg:
		if !msg.res.OK() {
			if !msg.res.Silent() {
				m.err = msg.res.Notice
			}
			return m, nil
		}
		m.err = ""
		v := msg.res.Value
		m.Summary = &v
	case spinner.TickMsg:
		if m.Summary != nil || m.err != "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		m.Width = msg.Width
	case tea.KeyMsg:
		if msg.String() == "r" {
			m.b.Cache.Invalidate(resource.DashboardResource)
			return m, m.Init()
		}
	}
	return m, nil
}

func (m *DashboardModel) View() string {
	if m.err != "" {
		return StyleStatusBad.Render(m.err)
	}
	if m.Summary == nil {
		return m.spinner.View() + " " + m.b.Printer.Sprintf(i18n.ConsoleLoading)
	}
	s := m.Summary

	counters := StyleCard.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			StyleTitle.Render("Overview"),
			fmt.Sprintf("Sites:         %d", s.TotalSites),
			fmt.Sprintf("Active rules:  %d", s.ActiveRules),
			fmt.Sprintf("Certificates:  %d", s.Certificates),
			StyleStatusBad.Render(fmt.Sprintf("Blocked today: %d", s.BlockedToday)),
		),
	)

	t := s.ThreatStats
	total := t.XSS + t.SQLInjection + t.RCE + t.LFI
	threats := StyleCard.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			StyleTitle.Render("Threats"),
			fmt.Sprintf("XSS   %s", progressBar(share(t.XSS, total))),
			fmt.Sprintf("SQLi  %s", progressBar(share(t.SQLInjection, total))),
			fmt.Sprintf("RCE   %s", progressBar(share(t.RCE, total))),
			fmt.Sprintf("LFI   %s", progressBar(share(t.LFI, total))),
		),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, counters, threats),
		StyleHelp.Render("r: refresh"),
	)
}

func share(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// progressBar is a text gauge for a fraction in [0,1].
func progressBar(percent float64) string {
	w := 20
	filled := int(float64(w) * percent)
	if filled > w {
		filled = w
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", w-filled)
	return fmt.Sprintf("[%s] %.0f%%", bar, percent*100)
}
