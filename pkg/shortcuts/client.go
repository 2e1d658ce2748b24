// Package shortcuts provisions OneLake shortcuts against the Fabric API.
// Shortcuts link external data sources into a lakehouse and are created
// once per new session, before the first statement runs.
package shortcuts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/txn2/fabric-livy/pkg/azure"
)

// defaultBaseURL is the Fabric REST API root.
const defaultBaseURL = "https://api.fabric.microsoft.com/v1"

// TokenSource yields the bearer token for Fabric API calls. The azure
// token cache satisfies this.
type TokenSource interface {
	Token(ctx context.Context) (azure.Token, error)
}

// Shortcut is one entry of the shortcut manifest.
type Shortcut struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Target Target `json:"target"`
}

// Target describes where a shortcut points.
type Target struct {
	OneLake *OneLakeTarget `json:"oneLake,omitempty"`
}

// OneLakeTarget points a shortcut at a path inside another OneLake item.
type OneLakeTarget struct {
	WorkspaceID string `json:"workspaceId"`
	ItemID      string `json:"itemId"`
	Path        string `json:"path"`
}

// manifest is the on-disk shortcut configuration file.
type manifest struct {
	Shortcuts []Shortcut `json:"shortcuts"`
}

// Client creates shortcuts in one lakehouse.
type Client struct {
	baseURL     string
	workspaceID string
	lakehouseID string
	tokens      TokenSource
	httpc       *http.Client
	log         *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithBaseURL overrides the Fabric API root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient sets the underlying http client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// NewClient creates a shortcut client for one workspace and lakehouse.
func NewClient(tokens TokenSource, workspaceID, lakehouseID string, opts ...Option) *Client {
	c := &Client{
		baseURL:     defaultBaseURL,
		workspaceID: workspaceID,
		lakehouseID: lakehouseID,
		tokens:      tokens,
		httpc:       &http.Client{Timeout: time.Minute},
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateShortcuts reads a shortcut manifest and creates every entry that
// does not already exist. The first failed creation aborts; already
// existing shortcuts are skipped, not errors.
func (c *Client) CreateShortcuts(ctx context.Context, manifestPath string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("reading shortcut manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parsing shortcut manifest: %w", err)
	}

	for _, shortcut := range m.Shortcuts {
		exists, err := c.exists(ctx, shortcut)
		if err != nil {
			return err
		}
		if exists {
			c.log.Debug("shortcut already exists", "name", shortcut.Name, "path", shortcut.Path)
			continue
		}
		if err := c.create(ctx, shortcut); err != nil {
			return err
		}
		c.log.Info("created shortcut", "name", shortcut.Name, "path", shortcut.Path)
	}
	return nil
}

// shortcutsURL is the collection endpoint for the bound lakehouse.
func (c *Client) shortcutsURL() string {
	return fmt.Sprintf("%s/workspaces/%s/items/%s/shortcuts", c.baseURL, c.workspaceID, c.lakehouseID)
}

// exists probes for a shortcut by path and name.
func (c *Client) exists(ctx context.Context, shortcut Shortcut) (bool, error) {
	probe := c.shortcutsURL() + "/" + url.PathEscape(shortcut.Path) + "/" + url.PathEscape(shortcut.Name)
	res, err := c.do(ctx, http.MethodGet, probe, nil)
	if err != nil {
		var httpErr *httpStatusError
		if errors.As(err, &httpErr) && httpErr.status == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	res.Body.Close() //nolint:errcheck // probe body unused
	return true, nil
}

// create posts one shortcut.
func (c *Client) create(ctx context.Context, shortcut Shortcut) error {
	body, err := json.Marshal(shortcut)
	if err != nil {
		return fmt.Errorf("encoding shortcut %s: %w", shortcut.Name, err)
	}
	res, err := c.do(ctx, http.MethodPost, c.shortcutsURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating shortcut %s: %w", shortcut.Name, err)
	}
	res.Body.Close() //nolint:errcheck // creation body unused
	return nil
}

// httpStatusError is a non-2xx Fabric API response.
type httpStatusError struct {
	status int
	body   string
}

// Error implements the error interface.
func (e *httpStatusError) Error() string {
	return fmt.Sprintf("fabric api returned status %d: %s", e.status, e.body)
}

// do performs one authorized round trip and rejects non-2xx statuses.
func (c *Client) do(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		res.Body.Close() //nolint:errcheck // error path
		return nil, &httpStatusError{status: res.StatusCode, body: string(data)}
	}
	return res, nil
}
