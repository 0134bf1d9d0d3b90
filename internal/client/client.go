// Package client is the request pipeline between the console and the WAF
// management API.
//
// Every call attaches the current bearer token, carries a deadline, and
// returns failures as *Error with a Kind. A 401 tears the session down
// exactly once no matter how many requests observe it concurrently.
package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/message"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/brand"
	"grimm.is/rampart/internal/clock"
	"grimm.is/rampart/internal/i18n"
	"grimm.is/rampart/internal/logging"
	"grimm.is/rampart/internal/metrics"
)

// DefaultTimeout is the fixed per-request deadline.
const DefaultTimeout = 10 * time.Second

// HeaderRequestID is sent with every request and echoed by the server.
const HeaderRequestID = api.HeaderRequestID

// TokenSource supplies the bearer token and tears the session down when the
// server rejects it. InvalidateFor must only act while token is still the
// current one. *session.Store implements it.
type TokenSource interface {
	Token() string
	InvalidateFor(token, reason string) bool
}

// HTTPClient is the request pipeline.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	tokens     TokenSource
	logger     *logging.Logger
	metrics    *metrics.Registry
	printer    *message.Printer
	userAgent  string
	clock      clock.Clock

	insecure            bool
	expectedFingerprint string

	mu              sync.Mutex
	seenFingerprint string
}

// ClientOption configures the HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-request deadline.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client. Its Timeout is ignored;
// deadlines come from the request context.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *HTTPClient) {
		c.logger = l
	}
}

// WithMetrics records request counts and latency.
func WithMetrics(m *metrics.Registry) ClientOption {
	return func(c *HTTPClient) {
		c.metrics = m
	}
}

// WithPrinter localizes fallback error messages and sets Accept-Language.
func WithPrinter(p *message.Printer) ClientOption {
	return func(c *HTTPClient) {
		c.printer = p
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *HTTPClient) {
		c.userAgent = ua
	}
}

// WithClock sets the time source used for latency measurement.
func WithClock(clk clock.Clock) ClientOption {
	return func(c *HTTPClient) {
		c.clock = clk
	}
}

// WithInsecureTLS accepts self-signed server certificates. Combine with
// WithFingerprint to pin the certificate instead.
func WithInsecureTLS() ClientOption {
	return func(c *HTTPClient) {
		c.insecure = true
	}
}

// WithFingerprint pins the server certificate (SHA-256 hex of the leaf).
func WithFingerprint(fp string) ClientOption {
	return func(c *HTTPClient) {
		c.expectedFingerprint = strings.ToLower(strings.ReplaceAll(fp, ":", ""))
	}
}

// NewHTTPClient creates the pipeline for baseURL (e.g. "https://waf/api").
// tokens may be nil for unauthenticated use.
func NewHTTPClient(baseURL string, tokens TokenSource, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		timeout:   DefaultTimeout,
		tokens:    tokens,
		logger:    logging.WithComponent("client"),
		printer:   i18n.NewPrinter(i18n.DefaultLang),
		userAgent: brand.UserAgent(brand.Version),
		clock:     clock.Real,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{}
		if c.insecure || c.expectedFingerprint != "" {
			c.httpClient.Transport = c.pinnedTransport()
		}
	}

	return c
}

// pinnedTransport skips chain verification and checks the leaf fingerprint
// instead, when one is configured.
func (c *HTTPClient) pinnedTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true,
			VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
				if len(rawCerts) == 0 {
					return nil
				}
				hash := sha256.Sum256(rawCerts[0])
				fingerprint := hex.EncodeToString(hash[:])

				c.mu.Lock()
				c.seenFingerprint = fingerprint
				c.mu.Unlock()

				if c.expectedFingerprint != "" && c.expectedFingerprint != fingerprint {
					return fmt.Errorf("certificate fingerprint mismatch: expected %s, got %s", c.expectedFingerprint, fingerprint)
				}
				return nil
			},
		},
	}
}

// SeenFingerprint returns the leaf fingerprint of the last TLS handshake
// made through a pinned transport.
func (c *HTTPClient) SeenFingerprint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seenFingerprint
}

// BaseURL returns the API root.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Do performs one request. body is JSON-encoded when non-nil; a 2xx body is
// decoded into result when result is non-nil and the body is non-empty.
// Every error returned is an *Error.
func (c *HTTPClient) Do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	requestID := uuid.NewString()
	resource := resourceLabel(path)
	start := c.clock.Now()

	err := c.do(ctx, method, path, query, body, result, requestID)

	outcome := "ok"
	if err != nil {
		outcome = err.Kind.String()
	}
	c.metrics.RecordClientRequest(method, resource, outcome, c.clock.Since(start))

	if err != nil {
		c.logger.Debug("request failed",
			"method", method, "path", path, "status", err.Status,
			"kind", err.Kind.String(), "request_id", requestID)
		return err
	}
	c.logger.Debug("request ok", "method", method, "path", path, "request_id", requestID)
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body, result any, requestID string) *Error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindValidation, Message: "failed to encode request body", RequestID: requestID, Err: err}
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: c.printer.Sprintf(i18n.ErrNetwork), RequestID: requestID, Err: err}
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set("Accept-Language", i18n.Tag(c.printer))
	req.Header.Set("User-Agent", c.userAgent)

	// The token is read at send time so a logout between scheduling and
	// sending is honored.
	var sent string
	if c.tokens != nil {
		if sent = c.tokens.Token(); sent != "" {
			req.Header.Set("Authorization", "Bearer "+sent)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: c.printer.Sprintf(i18n.ErrNetwork), RequestID: requestID, Err: err}
	}
	defer resp.Body.Close()

	if id := resp.Header.Get(HeaderRequestID); id != "" {
		requestID = id
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: c.printer.Sprintf(i18n.ErrNetwork), RequestID: requestID, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if result != nil && len(bytes.TrimSpace(respBody)) > 0 {
			if err := json.Unmarshal(respBody, result); err != nil {
				return &Error{
					Kind:      KindServer,
					Status:    resp.StatusCode,
					Message:   c.printer.Sprintf(i18n.ErrServer),
					RequestID: requestID,
					Err:       fmt.Errorf("failed to decode response: %w", err),
				}
			}
		}
		return nil
	}

	e := c.normalize(resp.StatusCode, respBody)
	e.RequestID = requestID

	if e.Kind == KindAuth && c.tokens != nil {
		if c.tokens.InvalidateFor(sent, "unauthorized") {
			c.logger.Info("session rejected by server", "path", path, "request_id", requestID)
		}
	}
	return e
}

// errorBody accepts the server error shapes seen in practice.
type errorBody struct {
	Message string            `json:"message"`
	Error   string            `json:"error"`
	Errors  map[string]string `json:"errors"`
	Fields  map[string]string `json:"fields"`
}

func (c *HTTPClient) normalize(status int, body []byte) *Error {
	e := &Error{Status: status, Kind: kindForStatus(status)}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		e.Message = eb.Message
		if e.Message == "" {
			e.Message = eb.Error
		}
		if e.Kind == KindValidation {
			switch {
			case len(eb.Errors) > 0:
				e.Fields = eb.Errors
			case len(eb.Fields) > 0:
				e.Fields = eb.Fields
			}
		}
	}

	if e.Message == "" {
		e.Message = c.fallbackMessage(e.Kind)
	}
	e.Err = errors.New(http.StatusText(status))
	return e
}

func (c *HTTPClient) fallbackMessage(k Kind) string {
	switch k {
	case KindAuth:
		return c.printer.Sprintf(i18n.ErrAuth)
	case KindValidation:
		return c.printer.Sprintf(i18n.ErrValidation)
	case KindServer:
		return c.printer.Sprintf(i18n.ErrServer)
	default:
		return c.printer.Sprintf(i18n.ErrNetwork)
	}
}

// resourceLabel is the first path segment, used as a low-cardinality
// metrics label.
func resourceLabel(path string) string {
	p := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "root"
	}
	return p
}
