package server

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"grimm.is/rampart/internal/api"
)

// Seed fills the store with a handful of sites and rules and an hour of
// attack traffic ending at the store clock's now.
func (d *DataStore) Seed(rng *rand.Rand) {
	d.CreateSite(api.Site{Name: "Shop", Domain: "https://shop.example", Description: "Storefront"})
	d.CreateSite(api.Site{Name: "Blog", Domain: "https://blog.example"})

	d.CreateRule(api.Rule{
		Name:        "block-sqli",
		Description: "Block SQL injection probes",
		Action:      api.ActionBlock,
		Status:      api.RuleEnabled,
		Conditions:  []api.Condition{{Field: "args", Operator: "detectSQLi", Value: ""}},
	})
	d.CreateRule(api.Rule{
		Name:       "challenge-scanners",
		Action:     api.ActionChallenge,
		Status:     api.RuleEnabled,
		Conditions: []api.Condition{{Field: "user_agent", Operator: "contains", Value: "sqlmap"}},
	})
	d.CreateRule(api.Rule{
		Name:       "allow-healthcheck",
		Action:     api.ActionAllow,
		Status:     api.RuleDisabled,
		Conditions: []api.Condition{{Field: "uri", Operator: "equals", Value: "/healthz"}},
	})

	now := d.clock.Now()
	for i := 0; i < 120; i++ {
		ts := now.Add(-time.Duration(rng.Int63n(int64(time.Hour))))
		d.AppendLog(generateAttackLog(rng, ts))
	}
	d.mu.Lock()
	sortLogs(d.logs)
	d.mu.Unlock()
}

// GenerateTraffic appends a synthetic entry every interval until ctx ends.
func (d *DataStore) GenerateTraffic(ctx context.Context, rng *rand.Rand, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.AppendLog(generateAttackLog(rng, d.clock.Now()))
		}
	}
}

type attackSample struct {
	ruleID   string
	uri      string
	severity int
}

var attackSamples = []attackSample{
	{"", "/", 0},
	{"", "/products?page=2", 0},
	{"", "/static/app.js", 0},
	{"941100", "/search?q=<script>alert(1)</script>", 7},
	{"942100", "/login?user=admin'--", 9},
	{"942190", "/items?id=1 UNION SELECT password FROM users", 9},
	{"932160", "/cgi-bin/run?cmd=cat%20/etc/passwd", 8},
	{"930120", "/download?file=../../../../etc/shadow", 6},
}

var (
	sampleHosts  = []string{"shop.example", "blog.example"}
	sampleAgents = []string{"Mozilla/5.0", "curl/8.5.0", "sqlmap/1.8", "python-requests/2.31"}
	sampleMethod = []string{"GET", "GET", "GET", "POST"}
)

func generateAttackLog(rng *rand.Rand, ts time.Time) api.AttackLog {
	s := attackSamples[rng.Intn(len(attackSamples))]
	l := api.AttackLog{
		Timestamp:      ts.UTC(),
		ClientIP:       fmt.Sprintf("203.0.113.%d", 1+rng.Intn(254)),
		RequestMethod:  sampleMethod[rng.Intn(len(sampleMethod))],
		RequestURI:     s.uri,
		Host:           sampleHosts[rng.Intn(len(sampleHosts))],
		UserAgent:      sampleAgents[rng.Intn(len(sampleAgents))],
		WafAction:      api.ActionAllow,
		ResponseStatus: 200,
		LatencyMs:      int64(5 + rng.Intn(120)),
		RuleID:         s.ruleID,
		Severity:       s.severity,
	}
	if s.ruleID != "" {
		l.WafAction = api.ActionBlock
		l.ResponseStatus = 403
	}
	return l
}

func sortLogs(logs []api.AttackLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Timestamp.Before(logs[j].Timestamp)
	})
}
