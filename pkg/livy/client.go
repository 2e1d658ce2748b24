package livy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// HeaderSource supplies the authorization headers for each request. The
// azure token cache satisfies this.
type HeaderSource interface {
	Headers(ctx context.Context) (map[string]string, error)
}

// Client is the raw HTTP channel to the Livy endpoint. It maps one method
// per remote operation and performs no retries; retry policy lives in the
// session and executor layers.
type Client struct {
	baseURL string
	httpc   *http.Client
	headers HeaderSource
	log     *slog.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying http client.
func WithHTTPClient(httpc *http.Client) ClientOption {
	return func(c *Client) { c.httpc = httpc }
}

// WithClientLogger sets the client logger.
func WithClientLogger(log *slog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client for the given lakehouse endpoint.
func NewClient(endpoint string, headers HeaderSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: endpoint,
		httpc:   &http.Client{Timeout: 2 * time.Minute},
		headers: headers,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession provisions a new session.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionInfo, error) {
	var info SessionInfo
	if err := c.do(ctx, http.MethodPost, "/sessions", req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetSession fetches the current state of a session.
func (c *Client) GetSession(ctx context.Context, id string) (*SessionInfo, error) {
	var info SessionInfo
	if err := c.do(ctx, http.MethodGet, "/sessions/"+id, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListSessions lists all sessions on the endpoint.
func (c *Client) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	var list sessionList
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

// DeleteSession deletes a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+id, nil, nil)
}

// SubmitStatement submits code to a session.
func (c *Client) SubmitStatement(ctx context.Context, sessionID string, req StatementRequest) (*StatementInfo, error) {
	var info StatementInfo
	if err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID+"/statements", req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetStatement fetches the current state of a statement.
func (c *Client) GetStatement(ctx context.Context, sessionID string, statementID int) (*StatementInfo, error) {
	var info StatementInfo
	path := "/sessions/" + sessionID + "/statements/" + strconv.Itoa(statementID)
	if err := c.do(ctx, http.MethodGet, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// do performs one round trip: marshal the body, attach auth and correlation
// headers, check the status, decode into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	headers, err := c.headers.Headers(ctx)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("x-ms-client-request-id", uuid.NewString())

	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer res.Body.Close() //nolint:errcheck // response body close

	if res.StatusCode < 200 || res.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPError{Method: method, URL: url, StatusCode: res.StatusCode, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrDecode, method, url, err)
	}
	return nil
}
