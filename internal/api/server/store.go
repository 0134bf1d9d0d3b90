package server

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/clock"
)

// DataStore holds the WAF configuration and telemetry served by the API.
type DataStore struct {
	clock clock.Clock

	mu    sync.RWMutex
	sites map[string]api.Site
	rules map[string]api.Rule
	certs map[string]api.Certificate
	logs  []api.AttackLog
}

// NewDataStore creates an empty store.
func NewDataStore(clk clock.Clock) *DataStore {
	return &DataStore{
		clock: clock.OrReal(clk),
		sites: make(map[string]api.Site),
		rules: make(map[string]api.Rule),
		certs: make(map[string]api.Certificate),
	}
}

func newID() string {
	return uuid.NewString()
}

// Sites returns all sites ordered by creation.
func (d *DataStore) Sites() []api.Site {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]api.Site, 0, len(d.sites))
	for _, s := range d.sites {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Site returns one site.
func (d *DataStore) Site(id string) (api.Site, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sites[id]
	return s, ok
}

// CreateSite assigns an id and creation time.
func (d *DataStore) CreateSite(s api.Site) api.Site {
	d.mu.Lock()
	defer d.mu.Unlock()
	s.ID = newID()
	s.CreatedAt = d.clock.Now().UTC()
	s.UpdatedAt = nil
	d.sites[s.ID] = s
	return s
}

// UpdateSite replaces a site, keeping its creation time.
func (d *DataStore) UpdateSite(s api.Site) (api.Site, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	old, ok := d.sites[s.ID]
	if !ok {
		return api.Site{}, false
	}
	now := d.clock.Now().UTC()
	s.CreatedAt = old.CreatedAt
	s.UpdatedAt = &now
	d.sites[s.ID] = s
	return s, true
}

// DeleteSite removes a site.
func (d *DataStore) DeleteSite(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.sites[id]
	delete(d.sites, id)
	return ok
}

// Rules returns all rules ordered by name.
func (d *DataStore) Rules() []api.Rule {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]api.Rule, 0, len(d.rules))
	for _, r := range d.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *DataStore) Rule(id string) (api.Rule, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.rules[id]
	return r, ok
}

func (d *DataStore) CreateRule(r api.Rule) api.Rule {
	d.mu.Lock()
	defer d.mu.Unlock()
	r.ID = newID()
	if r.Conditions == nil {
		r.Conditions = []api.Condition{}
	}
	d.rules[r.ID] = r
	return r
}

func (d *DataStore) UpdateRule(r api.Rule) (api.Rule, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.rules[r.ID]; !ok {
		return api.Rule{}, false
	}
	if r.Conditions == nil {
		r.Conditions = []api.Condition{}
	}
	d.rules[r.ID] = r
	return r, true
}

func (d *DataStore) DeleteRule(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.rules[id]
	delete(d.rules, id)
	return ok
}

// Certificates returns all certificates ordered by domain.
func (d *DataStore) Certificates() []api.Certificate {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]api.Certificate, 0, len(d.certs))
	for _, c := range d.certs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

func (d *DataStore) Certificate(id string) (api.Certificate, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.certs[id]
	return c, ok
}

func (d *DataStore) CreateCertificate(c api.Certificate) api.Certificate {
	d.mu.Lock()
	defer d.mu.Unlock()
	c.ID = newID()
	d.certs[c.ID] = c
	return c
}

func (d *DataStore) UpdateCertificate(c api.Certificate) (api.Certificate, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.certs[c.ID]; !ok {
		return api.Certificate{}, false
	}
	d.certs[c.ID] = c
	return c, true
}

func (d *DataStore) DeleteCertificate(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.certs[id]
	delete(d.certs, id)
	return ok
}

// maxLogs bounds the attack log ring.
const maxLogs = 5000

// AppendLog records an attack log entry.
func (d *DataStore) AppendLog(l api.AttackLog) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logs = append(d.logs, l)
	if len(d.logs) > maxLogs {
		d.logs = d.logs[len(d.logs)-maxLogs:]
	}
}

// Logs returns entries matching q, newest first.
func (d *DataStore) Logs(q api.LogQuery) []api.AttackLog {
	d.mu.RLock()
	defer d.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(q.Search))
	out := []api.AttackLog{}
	for i := len(d.logs) - 1; i >= 0; i-- {
		l := d.logs[i]
		if !q.Start.IsZero() && l.Timestamp.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && l.Timestamp.After(q.End) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(l.SearchText()), needle) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Dashboard computes the overview counters.
func (d *DataStore) Dashboard() api.DashboardSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sum := api.DashboardSummary{
		TotalSites:   len(d.sites),
		Certificates: len(d.certs),
	}
	for _, r := range d.rules {
		if r.Status == api.RuleEnabled {
			sum.ActiveRules++
		}
	}

	today := api.Today(d.clock.Now())
	for _, l := range d.logs {
		if l.Timestamp.Before(today.Start) || l.Timestamp.After(today.End) {
			continue
		}
		if l.WafAction == api.ActionBlock {
			sum.BlockedToday++
		}
		switch attackClass(l.RuleID) {
		case "xss":
			sum.ThreatStats.XSS++
		case "sqli":
			sum.ThreatStats.SQLInjection++
		case "rce":
			sum.ThreatStats.RCE++
		case "lfi":
			sum.ThreatStats.LFI++
		}
	}
	return sum
}

// monitorWindow is the span covered by the monitor summary.
const monitorWindow = time.Hour

// Monitor computes the live traffic summary over the last hour in
// ten-minute buckets.
func (d *DataStore) Monitor() api.MonitorSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()

	now := d.clock.Now()
	since := now.Add(-monitorWindow)
	const buckets = 6
	width := monitorWindow / buckets

	sum := api.MonitorSummary{TrafficStats: make([]api.TrafficPoint, buckets)}
	for i := range sum.TrafficStats {
		sum.TrafficStats[i].Time = since.Add(time.Duration(i) * width).Format("15:04")
	}

	var totalLatency int64
	for _, l := range d.logs {
		if l.Timestamp.Before(since) || l.Timestamp.After(now) {
			continue
		}
		sum.TotalRequests++
		totalLatency += l.LatencyMs

		idx := int(l.Timestamp.Sub(since) / width)
		if idx >= buckets {
			idx = buckets - 1
		}
		sum.TrafficStats[idx].Requests++

		if l.WafAction == api.ActionBlock {
			sum.BlockedRequests++
			sum.TrafficStats[idx].Blocked++
		}
		if l.RuleID != "" {
			sum.AttackRequests++
			switch {
			case l.Severity >= 8:
				sum.SeverityCount.Critical++
			case l.Severity >= 5:
				sum.SeverityCount.High++
			case l.Severity >= 3:
				sum.SeverityCount.Medium++
			default:
				sum.SeverityCount.Low++
			}
		}
	}
	if sum.TotalRequests > 0 {
		sum.AvgResponseTime = float64(totalLatency) / float64(sum.TotalRequests)
	}
	return sum
}

// attackClass maps CRS-style rule ids to an attack class.
func attackClass(ruleID string) string {
	switch {
	case strings.HasPrefix(ruleID, "941"):
		return "xss"
	case strings.HasPrefix(ruleID, "942"):
		return "sqli"
	case strings.HasPrefix(ruleID, "932"):
		return "rce"
	case strings.HasPrefix(ruleID, "930"):
		return "lfi"
	default:
		return ""
	}
}
