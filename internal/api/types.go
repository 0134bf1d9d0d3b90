// Package api defines the WAF management REST contract shared by the
// console client and the development server.
package api

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"grimm.is/rampart/internal/session"
)

// Site is a protected website.
type Site struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Domain      string     `json:"domain" yaml:"domain"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// GetID returns the server-assigned id, empty before creation.
func (s Site) GetID() string { return s.ID }

// SearchText is matched by local search.
func (s Site) SearchText() string {
	return strings.Join([]string{s.Name, s.Domain}, " ")
}

// Rule actions.
const (
	ActionBlock     = "block"
	ActionAllow     = "allow"
	ActionChallenge = "challenge"
)

// Rule statuses.
const (
	RuleEnabled  = "enabled"
	RuleDisabled = "disabled"
)

// RuleActions lists valid Rule.Action values.
var RuleActions = []string{ActionBlock, ActionAllow, ActionChallenge}

// RuleStatuses lists valid Rule.Status values.
var RuleStatuses = []string{RuleEnabled, RuleDisabled}

// Condition is one match clause of a rule.
type Condition struct {
	Field    string `json:"field" yaml:"field"`
	Operator string `json:"operator" yaml:"operator"`
	Value    string `json:"value" yaml:"value"`
}

// Rule is a firewall rule.
type Rule struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Action      string      `json:"action" yaml:"action"`
	Status      string      `json:"status" yaml:"status"`
	Conditions  []Condition `json:"conditions" yaml:"conditions"`
}

func (r Rule) GetID() string { return r.ID }

func (r Rule) SearchText() string {
	return strings.Join([]string{r.Name, r.Description, r.Action}, " ")
}

// Certificate statuses.
const (
	CertValid   = "valid"
	CertExpired = "expired"
	CertInvalid = "invalid"
)

// Certificate is a TLS certificate bound to a domain.
type Certificate struct {
	ID          string    `json:"id" yaml:"id"`
	Domain      string    `json:"domain" yaml:"domain"`
	Issuer      string    `json:"issuer" yaml:"issuer"`
	ValidFrom   time.Time `json:"validFrom" yaml:"validFrom"`
	ValidTo     time.Time `json:"validTo" yaml:"validTo"`
	Status      string    `json:"status" yaml:"status"`
	Certificate string    `json:"certificate" yaml:"certificate"`
	PrivateKey  string    `json:"privateKey" yaml:"-"`
}

func (c Certificate) GetID() string { return c.ID }

func (c Certificate) SearchText() string {
	return strings.Join([]string{c.Domain, c.Issuer}, " ")
}

// AttackLog is one request the WAF acted on.
type AttackLog struct {
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
	ClientIP       string    `json:"clientIp" yaml:"clientIp"`
	RequestMethod  string    `json:"requestMethod" yaml:"requestMethod"`
	RequestURI     string    `json:"requestUri" yaml:"requestUri"`
	Host           string    `json:"host" yaml:"host"`
	UserAgent      string    `json:"userAgent" yaml:"userAgent"`
	WafAction      string    `json:"wafAction" yaml:"wafAction"`
	ResponseStatus int       `json:"responseStatus" yaml:"responseStatus"`
	LatencyMs      int64     `json:"latencyMs" yaml:"latencyMs"`
	RuleID         string    `json:"ruleId,omitempty" yaml:"ruleId,omitempty"`
	Severity       int       `json:"severity,omitempty" yaml:"severity,omitempty"`
}

func (l AttackLog) SearchText() string {
	return strings.Join([]string{l.ClientIP, l.RequestMethod, l.RequestURI, l.Host, l.UserAgent, l.RuleID}, " ")
}

// ThreatStats counts detections by attack class.
type ThreatStats struct {
	XSS          int `json:"xss" yaml:"xss"`
	SQLInjection int `json:"sqlInjection" yaml:"sqlInjection"`
	RCE          int `json:"rce" yaml:"rce"`
	LFI          int `json:"lfi" yaml:"lfi"`
}

// DashboardSummary is the landing page overview.
type DashboardSummary struct {
	TotalSites   int         `json:"totalSites" yaml:"totalSites"`
	ActiveRules  int         `json:"activeRules" yaml:"activeRules"`
	BlockedToday int         `json:"blockedToday" yaml:"blockedToday"`
	Certificates int         `json:"certificates" yaml:"certificates"`
	ThreatStats  ThreatStats `json:"threatStats" yaml:"threatStats"`
}

// SeverityCount counts attacks by severity.
type SeverityCount struct {
	Low      int `json:"low" yaml:"low"`
	Medium   int `json:"medium" yaml:"medium"`
	High     int `json:"high" yaml:"high"`
	Critical int `json:"critical" yaml:"critical"`
}

// TrafficPoint is one bucket of the traffic series.
type TrafficPoint struct {
	Time     string `json:"time" yaml:"time"`
	Requests int    `json:"requests" yaml:"requests"`
	Blocked  int    `json:"blocked" yaml:"blocked"`
}

// MonitorSummary is the live traffic view.
type MonitorSummary struct {
	TotalRequests   int            `json:"totalRequests" yaml:"totalRequests"`
	BlockedRequests int            `json:"blockedRequests" yaml:"blockedRequests"`
	AttackRequests  int            `json:"attackRequests" yaml:"attackRequests"`
	AvgResponseTime float64        `json:"avgResponseTime" yaml:"avgResponseTime"`
	SeverityCount   SeverityCount  `json:"severityCount" yaml:"severityCount"`
	TrafficStats    []TrafficPoint `json:"trafficStats" yaml:"trafficStats"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by POST /auth/login.
type LoginResponse struct {
	Token string        `json:"token"`
	User  *session.User `json:"user"`
}

// ResetPasswordRequest is the body of POST /auth/reset-password.
type ResetPasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Status  int               `json:"status"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// HeaderRequestID correlates a request across client and server logs.
const HeaderRequestID = "X-Request-ID"

// Query parameters of GET /logs/attack.
const (
	ParamSearch    = "search"
	ParamStartDate = "startDate"
	ParamEndDate   = "endDate"
)

// DateLayout is the format of startDate/endDate.
const DateLayout = time.RFC3339

// LogQuery filters GET /logs/attack. Zero times are omitted.
type LogQuery struct {
	Search string
	Start  time.Time
	End    time.Time
}

// Values encodes the query string.
func (q LogQuery) Values() url.Values {
	v := url.Values{}
	if s := strings.TrimSpace(q.Search); s != "" {
		v.Set(ParamSearch, s)
	}
	if !q.Start.IsZero() {
		v.Set(ParamStartDate, q.Start.UTC().Format(DateLayout))
	}
	if !q.End.IsZero() {
		v.Set(ParamEndDate, q.End.UTC().Format(DateLayout))
	}
	return v
}

// ParseLogQuery decodes a query string produced by Values.
func ParseLogQuery(v url.Values) (LogQuery, error) {
	q := LogQuery{Search: v.Get(ParamSearch)}
	var err error
	if s := v.Get(ParamStartDate); s != "" {
		if q.Start, err = time.Parse(DateLayout, s); err != nil {
			return q, fmt.Errorf("invalid %s: %w", ParamStartDate, err)
		}
	}
	if s := v.Get(ParamEndDate); s != "" {
		if q.End, err = time.Parse(DateLayout, s); err != nil {
			return q, fmt.Errorf("invalid %s: %w", ParamEndDate, err)
		}
	}
	return q, nil
}

// Today returns the query covering the local calendar day containing now.
func Today(now time.Time) LogQuery {
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return LogQuery{Start: start, End: start.AddDate(0, 0, 1).Add(-time.Second)}
}
