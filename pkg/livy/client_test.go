package livy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientAttachesHeaders(t *testing.T) {
	var gotAuth, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("x-ms-client-request-id")
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testHeaders)
	_, err := client.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.NotEmpty(t, gotRequestID, "every call carries a correlation id")
}

func TestClientSubmitStatement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sessions/42/statements", r.URL.Path)

		var req StatementRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "select 1", req.Code)
		assert.Equal(t, LanguageSQL, req.Kind)

		_, _ = w.Write([]byte(`{"id":7,"state":"waiting"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testHeaders)
	stmt, err := client.SubmitStatement(context.Background(), "42",
		StatementRequest{Code: "select 1", Kind: LanguageSQL})
	require.NoError(t, err)
	assert.Equal(t, 7, stmt.ID)
	assert.Equal(t, StatementWaiting, stmt.State)
}

func TestClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "capacity exhausted", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testHeaders)
	_, err := client.GetSession(context.Background(), "42")
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "capacity exhausted")
}

func TestClientDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>gateway error</html>"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testHeaders)
	_, err := client.GetSession(context.Background(), "42")
	require.ErrorIs(t, err, ErrDecode)
}

func TestClientDeleteSession(t *testing.T) {
	var deleted string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deleted = r.URL.Path
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testHeaders)
	require.NoError(t, client.DeleteSession(context.Background(), "42"))
	assert.Equal(t, "/sessions/42", deleted)
}

func TestClientHeaderSourceFailure(t *testing.T) {
	client := NewClient("http://unused", headerFailure{})
	_, err := client.ListSessions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token fetch failed")
}

type headerFailure struct{}

func (headerFailure) Headers(_ context.Context) (map[string]string, error) {
	return nil, errors.New("token fetch failed")
}

func TestSessionIDUnmarshal(t *testing.T) {
	var numeric SessionInfo
	require.NoError(t, json.Unmarshal([]byte(`{"id":42,"state":"idle"}`), &numeric))
	assert.Equal(t, SessionID("42"), numeric.ID)

	var stringy SessionInfo
	require.NoError(t, json.Unmarshal([]byte(`{"id":"abc-123","state":"idle"}`), &stringy))
	assert.Equal(t, SessionID("abc-123"), stringy.ID)
}
