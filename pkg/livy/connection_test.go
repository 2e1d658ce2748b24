package livy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixBinding(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{name: "int", in: 42, want: float64(42)},
		{name: "int64", in: int64(7), want: float64(7)},
		{name: "float64", in: 1.5, want: 1.5},
		{name: "float32", in: float32(2), want: float64(2)},
		{name: "nil", in: nil, want: "''"},
		{name: "string", in: "bob", want: "'bob'"},
		{name: "bool", in: true, want: "'true'"},
		{
			name: "datetime",
			in:   time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC),
			want: "'2026-03-14 09:26:53.589'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FixBinding(tt.in))
		})
	}
}

// submitCapture records each submitted statement request.
type submitCapture struct {
	requests []StatementRequest
}

func (c *submitCapture) server(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/sessions":
			fmt.Fprint(w, stateBody("42", "idle"))
		case r.Method == http.MethodPost:
			var req StatementRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			c.requests = append(c.requests, req)
			fmt.Fprint(w, `{"id":1,"state":"waiting"}`)
		case r.URL.Path == "/sessions":
			fmt.Fprint(w, `{"items":[]}`)
		case r.URL.Path == "/sessions/42":
			fmt.Fprint(w, stateBody("42", "idle"))
		default:
			fmt.Fprintf(w, `{"id":1,"state":"available","output":%s}`, okOutput)
		}
	}))
}

func newTestWrapper(t *testing.T, srv *httptest.Server) *ConnectionWrapper {
	t.Helper()
	manager := newTestManager(srv)
	conn, err := manager.Connect(context.Background())
	require.NoError(t, err)
	return NewConnectionWrapper(conn, nil).Cursor()
}

func TestWrapperExecuteDefaultsToSQL(t *testing.T) {
	capture := &submitCapture{}
	srv := capture.server(t)
	defer srv.Close()

	wrapper := newTestWrapper(t, srv)
	require.NoError(t, wrapper.Execute(context.Background(), "select 1", "scala", nil))
	require.Len(t, capture.requests, 1)
	assert.Equal(t, LanguageSQL, capture.requests[0].Kind, "unknown languages fall back to sql")
}

func TestWrapperExecuteDetectsPythonModel(t *testing.T) {
	capture := &submitCapture{}
	srv := capture.server(t)
	defer srv.Close()

	wrapper := newTestWrapper(t, srv)
	code := "def model(dbt, session):\n    return session.sql('select 1')"
	require.NoError(t, wrapper.Execute(context.Background(), code, LanguageSQL, nil))
	require.Len(t, capture.requests, 1)
	assert.Equal(t, LanguagePySpark, capture.requests[0].Kind)
}

func TestWrapperExecuteStripsTrailingSemicolon(t *testing.T) {
	capture := &submitCapture{}
	srv := capture.server(t)
	defer srv.Close()

	wrapper := newTestWrapper(t, srv)
	require.NoError(t, wrapper.Execute(context.Background(), "select 1;  ", LanguageSQL, nil))
	require.Len(t, capture.requests, 1)
	assert.Equal(t, "select 1", capture.requests[0].Code)
}

func TestWrapperExecuteInterpolatesBindings(t *testing.T) {
	capture := &submitCapture{}
	srv := capture.server(t)
	defer srv.Close()

	wrapper := newTestWrapper(t, srv)
	sql := "select * from t where id = %v and name = %v"
	require.NoError(t, wrapper.Execute(context.Background(), sql, LanguageSQL, []any{42, "bob"}))
	require.Len(t, capture.requests, 1)
	assert.Equal(t, "select * from t where id = 42 and name = 'bob'", capture.requests[0].Code)
}

func TestWrapperDescriptionAndFetchAll(t *testing.T) {
	capture := &submitCapture{}
	srv := capture.server(t)
	defer srv.Close()

	wrapper := newTestWrapper(t, srv)
	require.NoError(t, wrapper.Execute(context.Background(), "select 1", LanguageSQL, nil))

	description := wrapper.Description()
	require.Len(t, description, 1)
	assert.Equal(t, "a", description[0].Name)

	rows := wrapper.FetchAll()
	require.Len(t, rows, 1)
}

func TestWrapperNoOpsDoNotPanic(t *testing.T) {
	capture := &submitCapture{}
	srv := capture.server(t)
	defer srv.Close()

	wrapper := newTestWrapper(t, srv)
	wrapper.Cancel()
	wrapper.Rollback()
	wrapper.Close()
}
