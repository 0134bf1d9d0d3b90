package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/i18n"
	"grimm.is/rampart/internal/resource"
)

// monitorMsg carries one poll result. gen ties it to the visit that
// started the poller.
type monitorMsg struct {
	gen uint64
	res resource.Result[api.MonitorSummary]
}

// MonitorModel polls the live traffic summary while it is shown.
type MonitorModel struct {
	b      *Backend
	poller *resource.Poller[api.MonitorSummary]

	gen     uint64
	updates chan monitorMsg
	stop    chan struct{}

	Summary *api.MonitorSummary
	Updated time.Time
	err     string
}

func NewMonitorModel(b *Backend) *MonitorModel {
	return &MonitorModel{
		b:      b,
		poller: resource.NewPoller[api.MonitorSummary](b.Logger),
	}
}

// Init starts polling. Each poll lands in a one-slot mailbox; a slow
// reader only ever sees the newest summary.
func (m *MonitorModel) Init() tea.Cmd {
	m.Close()
	m.gen++
	gen := m.gen
	updates := make(chan monitorMsg, 1)
	m.updates = updates
	m.stop = make(chan struct{})

	m.poller.Start(m.b.Ctx, m.b.PollInterval,
		resource.ObserveKey(m.b.Cache, resource.MonitorKey),
		m.b.Reports.Monitor,
		func(r resource.Result[api.MonitorSummary]) {
			msg := monitorMsg{gen: gen, res: r}
			select {
			case updates <- msg:
			default:
				select {
				case <-updates:
				default:
				}
				updates <- msg
			}
		})
	return m.next()
}

func (m *MonitorModel) next() tea.Cmd {
	updates, stop := m.updates, m.stop
	return func() tea.Msg {
		select {
		case <-stop:
			return nil
		default:
		}
		select {
		case msg := <-updates:
			return msg
		case <-stop:
			return nil
		}
	}
}

// Close stops the poller and releases the cached summary for collection.
func (m *MonitorModel) Close() {
	m.poller.Stop()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}

func (m *MonitorModel) Capturing() bool { return false }

func (m *MonitorModel) Update(msg tea.Msg) (page, tea.Cmd) {
	switch msg := msg.(type) {
	case monitorMsg:
		if msg.gen != m.gen || m.stop == nil {
			return m, nil
		}
		if msg.res.OK() {
			v := msg.res.Value
			m.Summary = &v
			m.Updated = time.Now()
			m.err = ""
		} else if !msg.res.Silent() {
			m.err = msg.res.Notice
		}
		return m, m.next()
	}
	return m, nil
}

func (m *MonitorModel) View() string {
	if m.Summary == nil {
		if m.err != "" {
			return StyleStatusBad.Render(m.err)
		}
		return m.b.Printer.Sprintf(i18n.ConsoleLoading)
	}
	s := m.Summary

	totals := StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left,
		StyleTitle.Render("Traffic"),
		fmt.Sprintf("Requests:  %d", s.TotalRequests),
		StyleStatusBad.Render(fmt.Sprintf("Blocked:   %d", s.BlockedRequests)),
		StyleStatusWarn.Render(fmt.Sprintf("Attacks:   %d", s.AttackRequests)),
		fmt.Sprintf("Avg resp:  %.1f ms", s.AvgResponseTime),
	))

	sev := s.SeverityCount
	severity := StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left,
		StyleTitle.Render("Severity"),
		fmt.Sprintf("Critical  %d", sev.Critical),
		fmt.Sprintf("High      %d", sev.High),
		fmt.Sprintf("Medium    %d", sev.Medium),
		fmt.Sprintf("Low       %d", sev.Low),
	))

	series := StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left,
		StyleTitle.Render("Requests / blocked"),
		sparkline(s.TrafficStats, func(p api.TrafficPoint) int { return p.Requests }),
		StyleStatusBad.Render(sparkline(s.TrafficStats, func(p api.TrafficPoint) int { return p.Blocked })),
	))

	status := StyleSubtitle.Render(fmt.Sprintf("updated %s, every %s", m.Updated.Format("15:04:05"), m.b.PollInterval))
	if m.err != "" {
		status = StyleStatusBad.Render(m.err)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, totals, severity, series),
		status,
	)
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// sparkline scales values to the block glyphs.
func sparkline(points []api.TrafficPoint, value func(api.TrafficPoint) int) string {
	peak := 0
	for _, p := range points {
		peak = max(peak, value(p))
	}
	var sb strings.Builder
	for _, p := range points {
		i := 0
		if peak > 0 {
			i = value(p) * (len(sparkRunes) - 1) / peak
		}
		sb.WriteRune(sparkRunes[i])
	}
	return sb.String()
}
