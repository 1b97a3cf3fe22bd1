// Package sessionclient talks to the session-chat API on behalf of the call
// page and the CLI.
package sessionclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/echodoc-ai/echodoc/pkg/core"
	"github.com/echodoc-ai/echodoc/pkg/doctors"
	"github.com/echodoc-ai/echodoc/pkg/sessions"
)

const (
	sessionChatPath   = "/api/session-chat"
	medicalReportPath = "/api/medical-report"
	doctorsPath       = "/api/doctors"

	defaultRequestTimeout = 30 * time.Second
	maxResponseBytes      = 4 << 20
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	timeout    time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBearerToken attaches the identity token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithTimeout bounds requests whose context carries no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSpace(baseURL),
		httpClient: newDefaultHTTPClient(),
		timeout:    defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newDefaultHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// Get loads one session by id.
func (c *Client) Get(ctx context.Context, sessionID string) (sessions.Record, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || sessionID == sessions.All {
		return sessions.Record{}, core.NewInvalidRequestErrorWithParam("a single session id is required", "sessionId")
	}
	var rec sessions.Record
	q := url.Values{"sessionId": {sessionID}}
	if err := c.do(ctx, http.MethodGet, sessionChatPath, q, nil, &rec); err != nil {
		return sessions.Record{}, err
	}
	return rec, nil
}

// List returns the caller's sessions, newest first.
func (c *Client) List(ctx context.Context) ([]sessions.Record, error) {
	var out []sessions.Record
	q := url.Values{"sessionId": {sessions.All}}
	if err := c.do(ctx, http.MethodGet, sessionChatPath, q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type createRequest struct {
	Notes          string        `json:"notes"`
	SelectedDoctor doctors.Agent `json:"selectedDoctor"`
}

// Create stores a new session for the caller and returns it.
func (c *Client) Create(ctx context.Context, notes string, doctor doctors.Agent) (sessions.Record, error) {
	var rec sessions.Record
	body := createRequest{Notes: notes, SelectedDoctor: doctor}
	if err := c.do(ctx, http.MethodPost, sessionChatPath, nil, body, &rec); err != nil {
		return sessions.Record{}, err
	}
	return rec, nil
}

type reportRequest struct {
	SessionID string               `json:"sessionId"`
	Messages  []sessions.Utterance `json:"messages"`
}

// GenerateReport sends the finished transcript and returns the enriched session.
func (c *Client) GenerateReport(ctx context.Context, sessionID string, transcript []sessions.Utterance) (sessions.Record, error) {
	if transcript == nil {
		transcript = []sessions.Utterance{}
	}
	var rec sessions.Record
	body := reportRequest{SessionID: sessionID, Messages: transcript}
	if err := c.do(ctx, http.MethodPost, medicalReportPath, nil, body, &rec); err != nil {
		return sessions.Record{}, err
	}
	return rec, nil
}

// Doctors returns the server's specialist catalog.
func (c *Client) Doctors(ctx context.Context) ([]doctors.Agent, error) {
	var out []doctors.Agent
	if err := c.do(ctx, http.MethodGet, doctorsPath, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any, out any) error {
	if c == nil {
		return core.NewInvalidRequestError("session client is nil")
	}
	endpoint, err := c.endpoint(path, query)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return core.NewInvalidRequestError("failed to marshal request body")
		}
		body = bytes.NewReader(raw)
	}

	ctx, cancel := c.withDefaultTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &TransportError{Op: method, URL: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: method, URL: endpoint, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeErrorResponse(resp, endpoint, method)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: method, URL: endpoint, Err: err}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return core.NewAPIError(fmt.Sprintf("failed to decode %s response", path)).WithCause(err)
	}
	return nil
}

func (c *Client) endpoint(path string, query url.Values) (string, error) {
	if c.baseURL == "" {
		return "", core.NewInvalidRequestError("session API base URL is not configured")
	}
	base, err := url.Parse(c.baseURL)
	if err != nil || strings.TrimSpace(base.Scheme) == "" || strings.TrimSpace(base.Host) == "" {
		return "", core.NewInvalidRequestError("invalid session API base URL")
	}
	if base.User != nil {
		return "", core.NewInvalidRequestError("session API base URL must not include credentials")
	}

	base.Fragment = ""
	base.Path = strings.TrimSuffix(base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	base.RawPath = ""
	base.RawQuery = ""
	if len(query) > 0 {
		base.RawQuery = query.Encode()
	}
	return base.String(), nil
}

func (c *Client) withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
