package livy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sessionStates serves GET /sessions/{id} from a scripted state sequence,
// holding the last state once the script runs out.
type sessionStates struct {
	states []string
	calls  atomic.Int64
}

func (s *sessionStates) next() string {
	n := int(s.calls.Add(1)) - 1
	if n >= len(s.states) {
		n = len(s.states) - 1
	}
	return s.states[n]
}

// stateBody renders a session response. Pending states leave livyInfo at
// not_started, mirroring the server's startup sequence.
func stateBody(id, state string) string {
	current := state
	if state == "starting" || state == "not_started" {
		current = "not_started"
	}
	return fmt.Sprintf(`{"id":%q,"state":%q,"livyInfo":{"currentState":%q}}`, id, state, current)
}

func TestSessionCreateWaitsForIdle(t *testing.T) {
	states := &sessionStates{states: []string{"not_started", "starting", "idle"}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			fmt.Fprint(w, stateBody("99", "not_started"))
		default:
			fmt.Fprint(w, stateBody("99", states.next()))
		}
	}))
	defer srv.Close()

	session := NewSession(NewClient(srv.URL, testHeaders), newTestCreds(srv.URL), nil)
	id, err := session.Create(context.Background(), CreateSessionRequest{Kind: LanguageSQL})
	require.NoError(t, err)
	assert.Equal(t, "99", id)
	assert.Equal(t, "99", session.ID())
	assert.False(t, session.NeedsNew())
	assert.Equal(t, int64(3), states.calls.Load())
}

func TestSessionCreateDeadIsConnectError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, stateBody("99", "not_started"))
			return
		}
		fmt.Fprint(w, stateBody("99", "dead"))
	}))
	defer srv.Close()

	session := NewSession(NewClient(srv.URL, testHeaders), newTestCreds(srv.URL), nil)
	_, err := session.Create(context.Background(), CreateSessionRequest{Kind: LanguageSQL})
	require.ErrorIs(t, err, ErrConnect)
}

func TestSessionCreateTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	session := NewSession(NewClient(srv.URL, testHeaders), newTestCreds(srv.URL), nil)
	_, err := session.Create(context.Background(), CreateSessionRequest{Kind: LanguageSQL})
	require.ErrorIs(t, err, ErrConnect)
}

func TestSessionCreateCancelledWhilePolling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, stateBody("99", "not_started"))
			return
		}
		fmt.Fprint(w, stateBody("99", "starting"))
	}))
	defer srv.Close()

	session := NewSession(NewClient(srv.URL, testHeaders), newTestCreds(srv.URL), nil)
	session.sleep = func(_ context.Context, _ time.Duration) error {
		return context.Canceled
	}

	_, err := session.Create(context.Background(), CreateSessionRequest{Kind: LanguageSQL})
	require.ErrorIs(t, err, ErrPollTimeout)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFindExistingNoNameConfigured(t *testing.T) {
	session := NewSession(NewClient("http://unused", testHeaders), newTestCreds("http://unused"), nil)
	id, err := session.FindExisting(context.Background())
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestFindExistingSkipsInvalidStates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sessions" {
			fmt.Fprint(w, `{"items":[
				{"id":"1","name":"nightly","livyState":"dead"},
				{"id":"2","name":"nightly","livyState":"killed"},
				{"id":"3","name":"other","livyState":"idle"},
				{"id":"4","name":"nightly","livyState":"idle"}
			]}`)
			return
		}
		fmt.Fprint(w, stateBody("4", "idle"))
	}))
	defer srv.Close()

	creds := newTestCreds(srv.URL)
	creds.SessionName = "nightly"
	session := NewSession(NewClient(srv.URL, testHeaders), creds, nil)

	id, err := session.FindExisting(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "4", id, "dead, killed and differently named sessions are never returned")
}

func TestFindExistingWaitsForStartingCandidate(t *testing.T) {
	states := &sessionStates{states: []string{"starting", "idle"}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sessions" {
			fmt.Fprint(w, `{"items":[{"id":"7","name":"nightly","livyState":"starting"}]}`)
			return
		}
		fmt.Fprint(w, stateBody("7", states.next()))
	}))
	defer srv.Close()

	creds := newTestCreds(srv.URL)
	creds.SessionName = "nightly"
	session := NewSession(NewClient(srv.URL, testHeaders), creds, nil)

	id, err := session.FindExisting(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "7", id)
}

func TestFindExistingCandidateDiesWhileStarting(t *testing.T) {
	states := &sessionStates{states: []string{"starting", "dead"}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sessions" {
			fmt.Fprint(w, `{"items":[{"id":"7","name":"nightly","livyState":"starting"}]}`)
			return
		}
		fmt.Fprint(w, stateBody("7", states.next()))
	}))
	defer srv.Close()

	creds := newTestCreds(srv.URL)
	creds.SessionName = "nightly"
	session := NewSession(NewClient(srv.URL, testHeaders), creds, nil)

	id, err := session.FindExisting(context.Background())
	require.NoError(t, err)
	assert.Empty(t, id, "a candidate that dies during startup is not reused")
}

func TestIsValid(t *testing.T) {
	state := "idle"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, stateBody("9", state))
	}))
	defer srv.Close()

	session := NewSession(NewClient(srv.URL, testHeaders), newTestCreds(srv.URL), nil)
	session.markReady("9")

	assert.True(t, session.IsValid(context.Background()))
	state = "shutting_down"
	assert.False(t, session.IsValid(context.Background()))
}

func TestIsValidWithoutSession(t *testing.T) {
	session := NewSession(NewClient("http://unused", testHeaders), newTestCreds("http://unused"), nil)
	assert.False(t, session.IsValid(context.Background()))
}

func TestDeleteSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	session := NewSession(NewClient(srv.URL, testHeaders), newTestCreds(srv.URL), nil)
	session.markReady("9")

	// Must not panic or propagate; teardown never blocks shutdown.
	session.Delete(context.Background())
}

func TestGetOrCreateFallsBackToCreate(t *testing.T) {
	var created atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			created.Store(true)
			fmt.Fprint(w, stateBody("11", "not_started"))
		case r.URL.Path == "/sessions":
			fmt.Fprint(w, `{"items":[]}`)
		default:
			fmt.Fprint(w, stateBody("11", "idle"))
		}
	}))
	defer srv.Close()

	creds := newTestCreds(srv.URL)
	creds.SessionName = "nightly"
	session := NewSession(NewClient(srv.URL, testHeaders), creds, nil)

	id, err := session.GetOrCreate(context.Background(), CreateSessionRequest{Kind: LanguageSQL})
	require.NoError(t, err)
	assert.Equal(t, "11", id)
	assert.True(t, created.Load())
}
