package livy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/txn2/fabric-livy/pkg/credentials"
)

// Session wraps one remote Livy session: locate-or-create, validity check,
// teardown. Creation is expensive (it provisions real compute), so reuse by
// name takes priority over creating.
type Session struct {
	client *Client
	creds  *credentials.Credentials
	log    *slog.Logger

	pollInterval time.Duration
	sleep        func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	id       string
	needsNew bool
}

// NewSession creates a session wrapper. No remote call is made until
// GetOrCreate or Create.
func NewSession(client *Client, creds *credentials.Credentials, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		client:       client,
		creds:        creds,
		log:          log,
		pollInterval: creds.SessionPollInterval,
		sleep:        sleepCtx,
		needsNew:     true,
	}
}

// ID returns the current session id, empty when no session is bound.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// NeedsNew reports whether the next use must establish a fresh session.
func (s *Session) NeedsNew() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsNew
}

// markReady binds the session id and clears the needs-new flag.
func (s *Session) markReady(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.needsNew = false
}

// markStale flags that the next connect must establish a fresh session.
func (s *Session) markStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.needsNew = true
}

// FindExisting looks for a reusable session with the configured name and
// waits for it to become idle. Returns the empty string when no name is
// configured or no live candidate matches.
func (s *Session) FindExisting(ctx context.Context) (string, error) {
	if s.creds.SessionName == "" {
		return "", nil
	}
	s.log.Debug("looking for existing livy session", "name", s.creds.SessionName)

	items, err := s.client.ListSessions(ctx)
	if err != nil {
		return "", fmt.Errorf("listing sessions: %w", err)
	}

	for _, item := range items {
		if item.Name != s.creds.SessionName || !item.LivyState.Valid() {
			continue
		}
		id, err := s.waitIdle(ctx, string(item.ID))
		if err != nil {
			return "", err
		}
		if id != "" {
			s.log.Debug("reusing existing livy session", "session_id", id)
			s.markReady(id)
			return id, nil
		}
	}
	return "", nil
}

// waitIdle polls one session until it is idle. Returns the empty string if
// the session went invalid while starting, so the caller can move on to the
// next candidate.
func (s *Session) waitIdle(ctx context.Context, id string) (string, error) {
	for {
		info, err := s.client.GetSession(ctx, id)
		if err != nil {
			return "", fmt.Errorf("polling session %s: %w", id, err)
		}
		switch {
		case info.State.pending():
			if err := s.sleep(ctx, s.pollInterval); err != nil {
				return "", fmt.Errorf("%w: waiting for session %s: %w", ErrPollTimeout, id, err)
			}
		case info.LivyInfo.CurrentState == SessionIdle:
			return id, nil
		default:
			s.log.Debug("candidate session not reusable",
				"session_id", id, "state", info.LivyInfo.CurrentState)
			return "", nil
		}
	}
}

// Create provisions a new session and waits for it to reach idle. Any
// transport-level failure is logged and escalated as a connection error;
// a session that comes up dead is a connection error as well, not retried.
func (s *Session) Create(ctx context.Context, req CreateSessionRequest) (string, error) {
	s.log.Info("creating livy session, this may take a few minutes")

	info, err := s.client.CreateSession(ctx, req)
	if err != nil {
		s.log.Error("session create call failed", "error", err)
		return "", fmt.Errorf("%w: no response from livy server: %w", ErrConnect, err)
	}
	if info.ID == "" {
		return "", fmt.Errorf("%w: session create response carried no id", ErrDecode)
	}
	id := string(info.ID)

	for {
		cur, err := s.client.GetSession(ctx, id)
		if err != nil {
			return "", fmt.Errorf("polling session %s: %w", id, err)
		}
		switch {
		case cur.State.pending():
		case cur.LivyInfo.CurrentState == SessionIdle:
			s.log.Info("livy session created", "session_id", id)
			s.markReady(id)
			return id, nil
		case !cur.LivyInfo.CurrentState.Valid():
			return "", fmt.Errorf("%w: session %s reached state %s during startup",
				ErrConnect, id, cur.LivyInfo.CurrentState)
		}
		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return "", fmt.Errorf("%w: waiting for session %s: %w", ErrPollTimeout, id, err)
		}
	}
}

// GetOrCreate reuses an existing named session when possible and creates a
// fresh one otherwise.
func (s *Session) GetOrCreate(ctx context.Context, req CreateSessionRequest) (string, error) {
	id, err := s.FindExisting(ctx)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	return s.Create(ctx, req)
}

// IsValid reports whether the bound session can still be used. Lookup
// failures count as invalid so the caller replaces the session.
func (s *Session) IsValid(ctx context.Context) bool {
	id := s.ID()
	if id == "" {
		return false
	}
	info, err := s.client.GetSession(ctx, id)
	if err != nil {
		s.log.Warn("session validity check failed", "session_id", id, "error", err)
		return false
	}
	return info.LivyInfo.CurrentState.Valid()
}

// Delete tears the session down best-effort. Failures are logged, never
// returned; teardown must not block shutdown.
func (s *Session) Delete(ctx context.Context) {
	id := s.ID()
	if id == "" {
		return
	}
	s.log.Debug("closing livy session", "session_id", id)
	if err := s.client.DeleteSession(ctx, id); err != nil {
		s.log.Error("unable to close livy session", "session_id", id, "error", err)
		return
	}
	s.log.Debug("closed livy session", "session_id", id)
}

// sleepCtx blocks for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
