package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"

	"grimm.is/rampart/internal/api"
)

// Dialog drafts. Field names match the server's error keys so field errors
// land on the right input.

type siteDraft struct {
	Name        string `tui:"field=name,validate=required"`
	Domain      string `tui:"field=domain,validate=url"`
	Description string `tui:"field=description"`
}

func newSiteDraft(s api.Site) any {
	return &siteDraft{Name: s.Name, Domain: s.Domain, Description: s.Description}
}

func applySiteDraft(s api.Site, d any) api.Site {
	draft := d.(*siteDraft)
	s.Name = strings.TrimSpace(draft.Name)
	s.Domain = strings.TrimSpace(draft.Domain)
	s.Description = draft.Description
	return s
}

func siteColumns() []table.Column {
	return []table.Column{
		{Title: "ID", Width: 10},
		{Title: "Name", Width: 20},
		{Title: "Domain", Width: 32},
		{Title: "Created", Width: 17},
	}
}

func siteRow(s api.Site) table.Row {
	return table.Row{s.ID, s.Name, s.Domain, s.CreatedAt.Local().Format("2006-01-02 15:04")}
}

type ruleDraft struct {
	Name        string `tui:"field=name,validate=required"`
	Description string `tui:"field=description"`
	Action      string `tui:"field=action,options=block|allow|challenge"`
	Status      string `tui:"field=status,options=enabled|disabled"`
	Conditions  string `tui:"field=conditions,type=text"`
}

func newRuleDraft(r api.Rule) any {
	d := &ruleDraft{
		Name:        r.Name,
		Description: r.Description,
		Action:      r.Action,
		Status:      r.Status,
		Conditions:  FormatConditions(r.Conditions),
	}
	if d.Action == "" {
		d.Action = api.ActionBlock
	}
	if d.Status == "" {
		d.Status = api.RuleEnabled
	}
	return d
}

func applyRuleDraft(r api.Rule, d any) api.Rule {
	draft := d.(*ruleDraft)
	r.Name = strings.TrimSpace(draft.Name)
	r.Description = draft.Description
	r.Action = draft.Action
	r.Status = draft.Status
	r.Conditions = ParseConditions(draft.Conditions)
	return r
}

// FormatConditions renders one "field operator value" line per condition.
func FormatConditions(conds []api.Condition) string {
	lines := make([]string, len(conds))
	for i, c := range conds {
		lines[i] = strings.TrimSpace(fmt.Sprintf("%s %s %s", c.Field, c.Operator, c.Value))
	}
	return strings.Join(lines, "\n")
}

// ParseConditions reverses FormatConditions. The value is the rest of the
// line and may contain spaces; blank lines are skipped.
func ParseConditions(s string) []api.Condition {
	var out []api.Condition
	for _, line := range strings.Split(s, "\n") {
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		c := api.Condition{Field: parts[0]}
		if len(parts) > 1 {
			c.Operator = parts[1]
		}
		if len(parts) > 2 {
			c.Value = strings.Join(parts[2:], " ")
		}
		out = append(out, c)
	}
	return out
}

func ruleColumns() []table.Column {
	return []table.Column{
		{Title: "ID", Width: 10},
		{Title: "Name", Width: 24},
		{Title: "Action", Width: 10},
		{Title: "Status", Width: 9},
		{Title: "Conditions", Width: 30},
	}
}

func ruleRow(r api.Rule) table.Row {
	return table.Row{r.ID, r.Name, r.Action, r.Status, strings.ReplaceAll(FormatConditions(r.Conditions), "\n", "; ")}
}

type certificateDraft struct {
	Domain      string `tui:"field=domain,validate=required"`
	Certificate string `tui:"field=certificate,type=text,validate=required"`
	PrivateKey  string `tui:"field=privateKey,type=text,validate=required"`
}

func newCertificateDraft(c api.Certificate) any {
	return &certificateDraft{Domain: c.Domain, Certificate: c.Certificate, PrivateKey: c.PrivateKey}
}

func applyCertificateDraft(c api.Certificate, d any) api.Certificate {
	draft := d.(*certificateDraft)
	c.Domain = strings.TrimSpace(draft.Domain)
	c.Certificate = draft.Certificate
	c.PrivateKey = draft.PrivateKey
	return c
}

func certificateColumns() []table.Column {
	return []table.Column{
		{Title: "ID", Width: 10},
		{Title: "Domain", Width: 28},
		{Title: "Issuer", Width: 22},
		{Title: "Valid to", Width: 11},
		{Title: "Status", Width: 8},
	}
}

func certificateRow(c api.Certificate) table.Row {
	validTo := ""
	if !c.ValidTo.IsZero() {
		validTo = c.ValidTo.Format("2006-01-02")
	}
	return table.Row{c.ID, c.Domain, c.Issuer, validTo, c.Status}
}
