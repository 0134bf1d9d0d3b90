package tui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/i18n"
	"grimm.is/rampart/internal/resource"
)

type logsMsg struct {
	query resource.LogQuery
	res   resource.Result[[]api.AttackLog]
}

func (logsMsg) broadcast() {}

// LogsModel lists attack logs for one day, filtered on the server.
type LogsModel struct {
	b *Backend

	Query     resource.LogQuery
	table     table.Model
	search    textinput.Model
	searching bool
	logs      []api.AttackLog
	loading   bool
	err       string
}

func NewLogsModel(b *Backend) *LogsModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Time", Width: 19},
			{Title: "Client", Width: 15},
			{Title: "Method", Width: 7},
			{Title: "Host", Width: 20},
			{Title: "URI", Width: 30},
			{Title: "Action", Width: 9},
			{Title: "Status", Width: 6},
		}),
		table.WithFocused(true),
		table.WithHeight(14),
	)
	t.SetStyles(tableStyles())

	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "ip, uri, host..."

	return &LogsModel{
		b:      b,
		Query:  api.Today(time.Now()),
		table:  t,
		search: search,
	}
}

func (m *LogsModel) Init() tea.Cmd {
	return m.fetch(false)
}

func (m *LogsModel) fetch(refresh bool) tea.Cmd {
	m.loading = true
	q, ctx := m.Query, m.b.Ctx
	return func() tea.Msg {
		if refresh {
			return logsMsg{query: q, res: m.b.Reports.RefreshAttackLogs(ctx, q)}
		}
		return logsMsg{query: q, res: m.b.Reports.AttackLogs(ctx, q)}
	}
}

func (m *LogsModel) Capturing() bool { return m.searching }

func (m *LogsModel) Close() {}

// shiftDay moves the query window by days, keeping the search.
func (m *LogsModel) shiftDay(days int) tea.Cmd {
	q := api.Today(m.Query.Start.AddDate(0, 0, days))
	q.Search = m.Query.Search
	m.Query = q
	return m.fetch(false)
}

func (m *LogsModel) Update(msg tea.Msg) (page, tea.Cmd) {
	switch msg := msg.(type) {
	case logsMsg:
		if msg.query != m.Query {
			return m, nil
		}
		m.loading = false
		if !msg.res.OK() {
			if !msg.res.Silent() {
				m.err = msg.res.Notice
			}
			return m, nil
		}
		m.err = ""
		m.logs = msg.res.Value
		rows := make([]table.Row, len(m.logs))
		for i, l := range m.logs {
			rows[i] = table.Row{
				l.Timestamp.Local().Format("2006-01-02 15:04:05"),
				l.ClientIP,
				l.RequestMethod,
				l.Host,
				l.RequestURI,
				actionStyle(l.WafAction).Render(l.WafAction),
				strconv.Itoa(l.ResponseStatus),
			}
		}
		m.table.SetRows(rows)
		return m, nil

	case tea.WindowSizeMsg:
		if h := msg.Height - 12; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			switch msg.String() {
			case "enter":
				m.searching = false
				m.search.Blur()
				m.table.Focus()
				m.Query.Search = m.search.Value()
				return m, m.fetch(false)
			case "esc":
				m.searching = false
				m.search.Blur()
				m.search.SetValue(m.Query.Search)
				m.table.Focus()
				return m, nil
			}
			var cmd tea.Cmd
			m.search, cmd = m.search.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "/":
			m.searching = true
			m.table.Blur()
			return m, m.search.Focus()
		case "[":
			return m, m.shiftDay(-1)
		case "]":
			return m, m.shiftDay(1)
		case "t":
			q := api.Today(time.Now())
			q.Search = m.Query.Search
			m.Query = q
			return m, m.fetch(false)
		case "r":
			return m, m.fetch(true)
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *LogsModel) View() string {
	day := m.Query.Start.Format("Mon 2006-01-02")
	header := StyleHeader.Render("ATTACK LOGS  " + day)

	var body string
	switch {
	case m.err != "":
		body = StyleStatusBad.Render(m.err)
	case m.loading && m.logs == nil:
		body = m.b.Printer.Sprintf(i18n.ConsoleLoading)
	default:
		body = StyleCard.Render(m.table.View())
	}

	footer := StyleSubtitle.Render(fmt.Sprintf("%d entries", len(m.logs)))
	if m.searching || m.Query.Search != "" {
		footer = m.search.View() + "  " + footer
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		body,
		footer,
		StyleHelp.Render("/: search  [ ]: previous/next day  t: today  r: refresh"),
	)
}
