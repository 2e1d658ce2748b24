package livy

import (
	"context"
	"log/slog"
	"sync"

	"github.com/txn2/fabric-livy/pkg/credentials"
)

// ShortcutProvisioner links configured OneLake shortcuts once per new
// session. Provisioning is fire-and-forget from the manager's perspective.
type ShortcutProvisioner interface {
	CreateShortcuts(ctx context.Context, manifestPath string) error
}

// Manager owns the single shared session of the process and hands out
// connections over it. Construct one instance and pass it around; the
// one-session-per-process invariant follows from that single instance.
// Safe for concurrent use.
type Manager struct {
	creds  *credentials.Credentials
	client *Client
	log    *slog.Logger

	shortcuts ShortcutProvisioner

	mu      sync.Mutex
	session *Session
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithShortcutProvisioner installs the shortcut provisioning client.
func WithShortcutProvisioner(p ShortcutProvisioner) ManagerOption {
	return func(m *Manager) { m.shortcuts = p }
}

// WithManagerLogger sets the manager logger.
func WithManagerLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// NewManager creates a session manager over the given client.
func NewManager(client *Client, creds *credentials.Credentials, opts ...ManagerOption) *Manager {
	m := &Manager{
		creds:  creds,
		client: client,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// sessionRequest builds the create body for the configured profile.
func (m *Manager) sessionRequest() CreateSessionRequest {
	return CreateSessionRequest{
		Kind: LanguageSQL,
		Conf: m.creds.SessionParameters,
		Name: m.creds.SessionName,
	}
}

// Connect returns a connection over the shared session, establishing or
// replacing the session as needed. A session flagged stale after disconnect
// is recreated without a validity probe; an invalid session is deleted and
// recreated; a healthy session is reused silently.
func (m *Manager) Connect(ctx context.Context) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req := m.sessionRequest()
	switch {
	case m.session == nil:
		session := NewSession(m.client, m.creds, m.log)
		if _, err := session.GetOrCreate(ctx, req); err != nil {
			return nil, err
		}
		m.session = session
		m.provisionShortcuts(ctx)
	case m.session.NeedsNew():
		if _, err := m.session.Create(ctx, req); err != nil {
			return nil, err
		}
	case !m.session.IsValid(ctx):
		m.log.Warn("session no longer valid, replacing", "session_id", m.session.ID())
		m.session.Delete(ctx)
		if _, err := m.session.Create(ctx, req); err != nil {
			return nil, err
		}
	default:
		m.log.Debug("reusing session", "session_id", m.session.ID())
	}

	return newConnection(m, m.session, m.creds, m.log), nil
}

// Disconnect tears the shared session down unless the profile keeps it
// alive, and flags that the next connect must establish a fresh one.
func (m *Manager) Disconnect(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return
	}
	if m.creds.KeepSession {
		m.log.Debug("keeping session alive", "session_id", m.session.ID())
		return
	}
	if m.session.IsValid(ctx) {
		m.session.Delete(ctx)
	}
	m.session.markStale()
}

// provisionShortcuts runs the one-time shortcut setup for a new session.
// Failures are logged; the connection proceeds without the shortcuts.
func (m *Manager) provisionShortcuts(ctx context.Context) {
	if m.shortcuts == nil || m.creds.ShortcutsJSONPath == "" {
		return
	}
	if err := m.shortcuts.CreateShortcuts(ctx, m.creds.ShortcutsJSONPath); err != nil {
		m.log.Error("shortcut provisioning failed", "error", err)
	}
}
