package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/i18n"
	"grimm.is/rampart/internal/resource"
)

// Result messages are delivered to every page, not just the visible one,
// so a page left mid-request still settles.
type broadcast interface{ broadcast() }

type listLoadedMsg[T any] struct{ res resource.Result[[]T] }

type detailMsg[T any] struct{ res resource.Result[T] }

type savedMsg[T any] struct{ res resource.Result[T] }

type deletedMsg[T any] struct {
	id  string
	res resource.Result[struct{}]
}

func (listLoadedMsg[T]) broadcast() {}
func (detailMsg[T]) broadcast()     {}
func (savedMsg[T]) broadcast()      {}
func (deletedMsg[T]) broadcast()    {}

// dialog is an open create/edit form.
type dialog[T resource.Entity] struct {
	base       T
	draft      any
	form       *huh.Form
	fields     map[string]string
	submitting bool
}

// ListModel is the table view of one resource kind with a create/edit
// dialog, delete confirmation and local search.
type ListModel[T resource.Entity] struct {
	b        *Backend
	ctl      *resource.Controller[T]
	title    string
	newDraft func(T) any
	apply    func(T, any) T
	row      func(T) table.Row

	table     table.Model
	search    textinput.Model
	spinner   spinner.Model
	searching bool
	items     []T
	shown     []T
	loading   bool
	loadErr   string

	dialog  *dialog[T]
	confirm string
}

func newListModel[T resource.Entity](b *Backend, ctl *resource.Controller[T], title string, cols []table.Column, row func(T) table.Row, newDraft func(T) any, apply func(T, any) T) *ListModel[T] {
	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	t.SetStyles(tableStyles())

	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search"

	return &ListModel[T]{
		b:        b,
		ctl:      ctl,
		title:    title,
		row:      row,
		newDraft: newDraft,
		apply:    apply,
		table:    t,
		search:   search,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func (m *ListModel[T]) Init() tea.Cmd {
	m.loading = true
	return tea.Batch(m.spinner.Tick, m.load())
}

func (m *ListModel[T]) load() tea.Cmd {
	ctx := m.b.Ctx
	return func() tea.Msg {
		return listLoadedMsg[T]{res: m.ctl.List(ctx, nil)}
	}
}

func (m *ListModel[T]) Capturing() bool {
	return m.searching || m.dialog != nil || m.confirm != ""
}

func (m *ListModel[T]) Close() {}

func (m *ListModel[T]) selected() (T, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.shown) {
		var zero T
		return zero, false
	}
	return m.shown[i], true
}

func (m *ListModel[T]) applyFilter() {
	m.shown = resource.Filter(m.items, m.search.Value())
	rows := make([]table.Row, len(m.shown))
	for i, item := range m.shown {
		rows[i] = m.row(item)
	}
	m.table.SetRows(rows)
}

func (m *ListModel[T]) openDialog(base T, fields map[string]string) tea.Cmd {
	d := &dialog[T]{base: base, draft: m.newDraft(base), fields: fields}
	d.form = AutoForm(d.draft, m.b.Printer, fields)
	m.dialog = d
	return d.form.Init()
}

func (m *ListModel[T]) Update(msg tea.Msg) (page, tea.Cmd) {
	switch msg := msg.(type) {
	case listLoadedMsg[T]:
		m.loading = false
		if !msg.res.OK() {
			if !msg.res.Silent() {
				m.loadErr = msg.res.Notice
			}
			return m, nil
		}
		m.loadErr = ""
		m.items = msg.res.Value
		m.applyFilter()
		return m, nil

	case detailMsg[T]:
		if !msg.res.OK() {
			return m, resultNotice(msg.res)
		}
		return m, m.openDialog(msg.res.Value, nil)

	case savedMsg[T]:
		return m, m.settle(msg.res)

	case deletedMsg[T]:
		if !msg.res.OK() {
			return m, resultNotice(msg.res)
		}
		return m, tea.Batch(resultNotice(msg.res), m.load())

	case spinner.TickMsg:
		if !m.loading && (m.dialog == nil || !m.dialog.submitting) {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		if h := msg.Height - 12; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil
	}

	if m.dialog != nil {
		return m, m.updateDialog(msg)
	}

	key, isKey := msg.(tea.KeyMsg)
	if !isKey {
		return m, nil
	}

	if m.confirm != "" {
		id := m.confirm
		m.confirm = ""
		if key.String() == "y" {
			ctx := m.b.Ctx
			return m, func() tea.Msg {
				return deletedMsg[T]{id: id, res: m.ctl.Delete(ctx, id)}
			}
		}
		return m, nil
	}

	if m.searching {
		switch key.String() {
		case "enter", "esc":
			m.searching = false
			m.search.Blur()
			m.table.Focus()
			return m, nil
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		m.applyFilter()
		return m, cmd
	}

	switch key.String() {
	case "/":
		m.searching = true
		m.table.Blur()
		return m, m.search.Focus()
	case "r":
		m.b.Cache.Invalidate(m.ctl.Kind().Name)
		return m, m.Init()
	case "n":
		var zero T
		return m, m.openDialog(zero, nil)
	case "e", "enter":
		item, ok := m.selected()
		if !ok {
			return m, nil
		}
		ctx, id := m.b.Ctx, item.GetID()
		return m, func() tea.Msg {
			return detailMsg[T]{res: m.ctl.Get(ctx, id)}
		}
	case "d":
		if item, ok := m.selected(); ok {
			m.confirm = item.GetID()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *ListModel[T]) updateDialog(msg tea.Msg) tea.Cmd {
	d := m.dialog
	if d.submitting {
		return nil
	}
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		m.dialog = nil
		return nil
	}

	form, cmd := d.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		d.form = f
	}

	switch d.form.State {
	case huh.StateCompleted:
		d.submitting = true
		v := m.apply(d.base, d.draft)
		ctx := m.b.Ctx
		return tea.Batch(m.spinner.Tick, func() tea.Msg {
			return savedMsg[T]{res: m.ctl.Save(ctx, v)}
		})
	case huh.StateAborted:
		m.dialog = nil
		return nil
	}
	return cmd
}

// settle applies a save result: success closes the dialog and reloads,
// failures keep it open with the draft intact, and an auth failure closes
// it without a word.
func (m *ListModel[T]) settle(res resource.Result[T]) tea.Cmd {
	d := m.dialog
	if d == nil {
		if res.OK() {
			return tea.Batch(resultNotice(res), m.load())
		}
		return resultNotice(res)
	}
	d.submitting = false

	switch {
	case res.OK():
		m.dialog = nil
		return tea.Batch(resultNotice(res), m.load())
	case res.Silent():
		m.dialog = nil
		return nil
	case resource.IsSubmitting(res):
		return nil
	}

	d.fields = res.Fields
	d.form = AutoForm(d.draft, m.b.Printer, d.fields)
	return tea.Batch(d.form.Init(), resultNotice(res))
}

func (m *ListModel[T]) View() string {
	p := m.b.Printer

	if d := m.dialog; d != nil {
		title := fmt.Sprintf("New %s", p.Sprintf(m.ctl.Kind().Label))
		if d.base.GetID() != "" {
			title = fmt.Sprintf("Edit %s %s", p.Sprintf(m.ctl.Kind().Label), d.base.GetID())
		}
		body := d.form.View()
		if d.submitting {
			body = m.spinner.View() + " " + p.Sprintf(i18n.ConsoleLoading)
		}
		parts := []string{StyleTitle.Render(title), body}
		if len(d.fields) > 0 {
			parts = append(parts, StyleFieldError.Render(joinFields(d.fields)))
		}
		parts = append(parts, StyleHelp.Render("enter: next/submit  esc: cancel"))
		return StyleDialog.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
	}

	header := StyleHeader.Render(m.title)
	var body string
	switch {
	case m.loading && m.items == nil:
		body = m.spinner.View() + " " + p.Sprintf(i18n.ConsoleLoading)
	case m.loadErr != "":
		body = StyleStatusBad.Render(m.loadErr)
	default:
		body = StyleCard.Render(m.table.View())
	}

	footer := StyleSubtitle.Render(fmt.Sprintf("%d of %d", len(m.shown), len(m.items)))
	if m.searching || m.search.Value() != "" {
		footer = m.search.View() + "  " + footer
	}
	if m.confirm != "" {
		footer = StyleStatusWarn.Render(fmt.Sprintf("Delete %s? (y/N)", m.confirm))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		body,
		footer,
		StyleHelp.Render("n: new  e: edit  d: delete  /: search  r: refresh"),
	)
}

// NewSitesModel is the site management page.
func NewSitesModel(b *Backend) *ListModel[api.Site] {
	return newListModel(b, b.Sites, "SITES", siteColumns(), siteRow, newSiteDraft, applySiteDraft)
}

// NewRulesModel is the rule management page.
func NewRulesModel(b *Backend) *ListModel[api.Rule] {
	return newListModel(b, b.Rules, "RULES", ruleColumns(), ruleRow, newRuleDraft, applyRuleDraft)
}

// NewCertificatesModel is the certificate management page.
func NewCertificatesModel(b *Backend) *ListModel[api.Certificate] {
	return newListModel(b, b.Certificates, "CERTIFICATES", certificateColumns(), certificateRow, newCertificateDraft, applyCertificateDraft)
}
