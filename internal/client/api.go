package client

import (
	"context"
	"net/http"
	"net/url"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/i18n"
	"grimm.is/rampart/internal/session"
	"grimm.is/rampart/internal/validation"
)

// REST paths relative to the base URL.
const (
	PathLogin         = "/auth/login"
	PathMe            = "/auth/me"
	PathResetPassword = "/auth/reset-password"
	PathSites         = "/sites"
	PathRules         = "/rules"
	PathCertificates  = "/certificates"
	PathAttackLogs    = "/logs/attack"
	PathDashboard     = "/dashboard"
	PathMonitor       = "/monitor"
)

// Login exchanges credentials for a token. A 401 here means bad credentials,
// reported with a localized message when the server gives none.
func (c *HTTPClient) Login(ctx context.Context, username, password string) (*api.LoginResponse, error) {
	var resp api.LoginResponse
	err := c.Do(ctx, http.MethodPost, PathLogin, nil, api.LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		if e := AsError(err); e.Kind == KindAuth && e.Message == c.fallbackMessage(KindAuth) {
			e.Message = c.printer.Sprintf(i18n.AuthInvalidCredentials)
		}
		return nil, err
	}
	if resp.Token == "" {
		return nil, &Error{Kind: KindServer, Status: http.StatusOK, Message: "login response carried no token"}
	}
	return &resp, nil
}

// Me returns the user the current token belongs to.
func (c *HTTPClient) Me(ctx context.Context) (*session.User, error) {
	var user session.User
	if err := c.Do(ctx, http.MethodGet, PathMe, nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ResetPassword changes the current user's password.
func (c *HTTPClient) ResetPassword(ctx context.Context, req api.ResetPasswordRequest) error {
	return c.Do(ctx, http.MethodPost, PathResetPassword, nil, req, nil)
}

// itemPath joins a collection path and an id, rejecting ids that would
// change the path.
func itemPath(collection, id string) (string, error) {
	if err := validation.ValidateIdentifier(id); err != nil {
		return "", &Error{Kind: KindValidation, Message: err.Error(), Fields: map[string]string{"id": err.Error()}, Err: err}
	}
	return collection + "/" + id, nil
}

// List fetches a collection. query carries server-side filters.
func List[T any](ctx context.Context, c *HTTPClient, path string, query url.Values) ([]T, error) {
	var items []T
	if err := c.Do(ctx, http.MethodGet, path, query, nil, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Get fetches one item of a collection.
func Get[T any](ctx context.Context, c *HTTPClient, collection, id string) (*T, error) {
	path, err := itemPath(collection, id)
	if err != nil {
		return nil, err
	}
	var item T
	if err := c.Do(ctx, http.MethodGet, path, nil, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Create posts a new item to a collection.
func Create[T any](ctx context.Context, c *HTTPClient, collection string, in T) (*T, error) {
	var out T
	if err := c.Do(ctx, http.MethodPost, collection, nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update replaces one item of a collection.
func Update[T any](ctx context.Context, c *HTTPClient, collection, id string, in T) (*T, error) {
	path, err := itemPath(collection, id)
	if err != nil {
		return nil, err
	}
	out := in
	if err := c.Do(ctx, http.MethodPut, path, nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes one item of a collection.
func Delete(ctx context.Context, c *HTTPClient, collection, id string) error {
	path, err := itemPath(collection, id)
	if err != nil {
		return err
	}
	return c.Do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// ListSites returns every site.
func (c *HTTPClient) ListSites(ctx context.Context) ([]api.Site, error) {
	return List[api.Site](ctx, c, PathSites, nil)
}

// GetSite returns one site.
func (c *HTTPClient) GetSite(ctx context.Context, id string) (*api.Site, error) {
	return Get[api.Site](ctx, c, PathSites, id)
}

// CreateSite creates a site; the server assigns the id.
func (c *HTTPClient) CreateSite(ctx context.Context, s api.Site) (*api.Site, error) {
	s.ID = ""
	return Create(ctx, c, PathSites, s)
}

// UpdateSite replaces a site.
func (c *HTTPClient) UpdateSite(ctx context.Context, s api.Site) (*api.Site, error) {
	return Update(ctx, c, PathSites, s.ID, s)
}

// DeleteSite deletes a site.
func (c *HTTPClient) DeleteSite(ctx context.Context, id string) error {
	return Delete(ctx, c, PathSites, id)
}

// ListRules returns every rule.
func (c *HTTPClient) ListRules(ctx context.Context) ([]api.Rule, error) {
	return List[api.Rule](ctx, c, PathRules, nil)
}

// GetRule returns one rule.
func (c *HTTPClient) GetRule(ctx context.Context, id string) (*api.Rule, error) {
	return Get[api.Rule](ctx, c, PathRules, id)
}

// CreateRule creates a rule.
func (c *HTTPClient) CreateRule(ctx context.Context, r api.Rule) (*api.Rule, error) {
	r.ID = ""
	return Create(ctx, c, PathRules, r)
}

// UpdateRule replaces a rule.
func (c *HTTPClient) UpdateRule(ctx context.Context, r api.Rule) (*api.Rule, error) {
	return Update(ctx, c, PathRules, r.ID, r)
}

// DeleteRule deletes a rule.
func (c *HTTPClient) DeleteRule(ctx context.Context, id string) error {
	return Delete(ctx, c, PathRules, id)
}

// ListCertificates returns every certificate.
func (c *HTTPClient) ListCertificates(ctx context.Context) ([]api.Certificate, error) {
	return List[api.Certificate](ctx, c, PathCertificates, nil)
}

// GetCertificate returns one certificate.
func (c *HTTPClient) GetCertificate(ctx context.Context, id string) (*api.Certificate, error) {
	return Get[api.Certificate](ctx, c, PathCertificates, id)
}

// CreateCertificate uploads a certificate and its private key.
func (c *HTTPClient) CreateCertificate(ctx context.Context, cert api.Certificate) (*api.Certificate, error) {
	cert.ID = ""
	return Create(ctx, c, PathCertificates, cert)
}

// UpdateCertificate replaces a certificate.
func (c *HTTPClient) UpdateCertificate(ctx context.Context, cert api.Certificate) (*api.Certificate, error) {
	return Update(ctx, c, PathCertificates, cert.ID, cert)
}

// DeleteCertificate deletes a certificate.
func (c *HTTPClient) DeleteCertificate(ctx context.Context, id string) error {
	return Delete(ctx, c, PathCertificates, id)
}

// AttackLogs returns attack log entries matching q. Filtering happens on the
// server.
func (c *HTTPClient) AttackLogs(ctx context.Context, q api.LogQuery) ([]api.AttackLog, error) {
	var logs []api.AttackLog
	if err := c.Do(ctx, http.MethodGet, PathAttackLogs, q.Values(), nil, &logs); err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []api.AttackLog{}
	}
	return logs, nil
}

// Dashboard returns the overview counters.
func (c *HTTPClient) Dashboard(ctx context.Context) (*api.DashboardSummary, error) {
	var d api.DashboardSummary
	if err := c.Do(ctx, http.MethodGet, PathDashboard, nil, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Monitor returns the live traffic summary.
func (c *HTTPClient) Monitor(ctx context.Context) (*api.MonitorSummary, error) {
	var m api.MonitorSummary
	if err := c.Do(ctx, http.MethodGet, PathMonitor, nil, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
