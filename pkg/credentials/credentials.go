// Package credentials holds the connection profile for a Fabric Spark
// lakehouse endpoint.
package credentials

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// AuthCLI authenticates with the locally cached Azure CLI credential.
	AuthCLI = "cli"

	// AuthServicePrincipal authenticates with a client-secret credential.
	AuthServicePrincipal = "spn"

	// defaultSessionPollInterval is the wait between session state checks.
	defaultSessionPollInterval = 45 * time.Second

	// defaultStatementPollInterval is the wait between statement state checks.
	defaultStatementPollInterval = 5 * time.Second

	// defaultMaxRetries bounds both the submit and execute retry loops.
	defaultMaxRetries = 5

	// defaultRetryBackoffUnit scales the linear retry backoff. Attempt n
	// sleeps n times this value.
	defaultRetryBackoffUnit = 10 * time.Second
)

// Credentials configures access to one lakehouse endpoint and the session
// the driver maintains against it.
type Credentials struct {
	LakehouseEndpoint string `yaml:"lakehouse_endpoint"`

	// Authentication selects the token source: "cli" or "spn".
	Authentication string `yaml:"authentication"`
	TenantID       string `yaml:"tenant_id"`
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`

	WorkspaceID string `yaml:"workspace_id"`
	LakehouseID string `yaml:"lakehouse_id"`

	// SessionName names the remote session so later runs can reuse it.
	SessionName       string         `yaml:"session_name"`
	SessionParameters map[string]any `yaml:"session_parameters"`
	KeepSession       bool           `yaml:"keep_session"`

	// ShortcutsJSONPath points at a OneLake shortcut manifest provisioned
	// once per new session.
	ShortcutsJSONPath string `yaml:"shortcuts_json_path"`

	SessionPollInterval   time.Duration `yaml:"session_poll_interval"`
	StatementPollInterval time.Duration `yaml:"statement_poll_interval"`
	MaxRetries            int           `yaml:"max_retries"`
	RetryBackoffUnit      time.Duration `yaml:"retry_backoff_unit"`
}

// Load reads a yaml credentials profile from disk.
func Load(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials file: %w", err)
	}

	creds.ApplyDefaults()
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &creds, nil
}

// ParseMap builds credentials from an untyped config map.
func ParseMap(cfg map[string]any) (*Credentials, error) {
	creds := Credentials{
		LakehouseEndpoint: getString(cfg, "lakehouse_endpoint"),
		Authentication:    getString(cfg, "authentication"),
		TenantID:          getString(cfg, "tenant_id"),
		ClientID:          getString(cfg, "client_id"),
		ClientSecret:      getString(cfg, "client_secret"),
		WorkspaceID:       getString(cfg, "workspace_id"),
		LakehouseID:       getString(cfg, "lakehouse_id"),
		SessionName:       getString(cfg, "session_name"),
		KeepSession:       getBool(cfg, "keep_session"),
		ShortcutsJSONPath: getString(cfg, "shortcuts_json_path"),
		MaxRetries:        getInt(cfg, "max_retries", 0),
	}

	if params, ok := cfg["session_parameters"].(map[string]any); ok {
		creds.SessionParameters = params
	}

	for key, dst := range map[string]*time.Duration{
		"session_poll_interval":   &creds.SessionPollInterval,
		"statement_poll_interval": &creds.StatementPollInterval,
		"retry_backoff_unit":      &creds.RetryBackoffUnit,
	} {
		d, err := getDuration(cfg, key)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
	}

	creds.ApplyDefaults()
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &creds, nil
}

// ApplyDefaults fills unset tuning fields with their defaults.
func (c *Credentials) ApplyDefaults() {
	if c.Authentication == "" {
		c.Authentication = AuthServicePrincipal
	}
	if c.SessionPollInterval == 0 {
		c.SessionPollInterval = defaultSessionPollInterval
	}
	if c.StatementPollInterval == 0 {
		c.StatementPollInterval = defaultStatementPollInterval
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryBackoffUnit == 0 {
		c.RetryBackoffUnit = defaultRetryBackoffUnit
	}
	c.LakehouseEndpoint = strings.TrimRight(c.LakehouseEndpoint, "/")
}

// Validate checks that the profile is usable.
func (c *Credentials) Validate() error {
	if c.LakehouseEndpoint == "" {
		return fmt.Errorf("lakehouse_endpoint is required")
	}
	switch c.Authentication {
	case AuthCLI:
	case AuthServicePrincipal:
		if c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "" {
			return fmt.Errorf("spn authentication requires tenant_id, client_id and client_secret")
		}
	default:
		return fmt.Errorf("unknown authentication method %q", c.Authentication)
	}
	if c.ShortcutsJSONPath != "" && (c.WorkspaceID == "" || c.LakehouseID == "") {
		return fmt.Errorf("shortcuts_json_path requires workspace_id and lakehouse_id")
	}
	return nil
}

// UsesCLI reports whether the profile selects the Azure CLI token source.
func (c *Credentials) UsesCLI() bool {
	return strings.EqualFold(c.Authentication, AuthCLI)
}

// getString extracts a string value from a config map.
func getString(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

// getBool extracts a bool value from a config map.
func getBool(cfg map[string]any, key string) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return false
}

// getInt extracts an int value from a config map with a default.
func getInt(cfg map[string]any, key string, defaultVal int) int {
	if v, ok := cfg[key].(int); ok {
		return v
	}
	if v, ok := cfg[key].(float64); ok {
		return int(v)
	}
	return defaultVal
}

// getDuration extracts a duration from a config map. Accepts duration
// strings ("45s") and integer seconds.
func getDuration(cfg map[string]any, key string) (time.Duration, error) {
	switch v := cfg[key].(type) {
	case nil:
		return 0, nil
	case string:
		return time.ParseDuration(v)
	case int:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v) * time.Second, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
