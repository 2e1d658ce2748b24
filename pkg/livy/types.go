// Package livy drives a Livy-style Spark session on a Microsoft Fabric
// lakehouse endpoint: session lifecycle, statement submission with retry,
// and a synchronous cursor over the polled results.
package livy

import (
	"encoding/json"
	"fmt"
)

// Statement languages accepted by the remote engine.
const (
	LanguageSQL     = "sql"
	LanguagePySpark = "pyspark"
)

// SessionState is a session lifecycle state as reported by the server.
type SessionState string

// Session states.
const (
	SessionNotStarted   SessionState = "not_started"
	SessionStarting     SessionState = "starting"
	SessionIdle         SessionState = "idle"
	SessionBusy         SessionState = "busy"
	SessionDead         SessionState = "dead"
	SessionShuttingDown SessionState = "shutting_down"
	SessionKilled       SessionState = "killed"
)

// Valid reports whether a session in this state can still be used. A
// session is reusable so long as it is not dead, killed, or shutting down.
func (s SessionState) Valid() bool {
	switch s {
	case SessionDead, SessionShuttingDown, SessionKilled:
		return false
	default:
		return true
	}
}

// pending reports whether the session is still coming up.
func (s SessionState) pending() bool {
	return s == SessionStarting || s == SessionNotStarted
}

// StatementState is a statement lifecycle state.
type StatementState string

// Statement states.
const (
	StatementWaiting   StatementState = "waiting"
	StatementRunning   StatementState = "running"
	StatementAvailable StatementState = "available"
	StatementError     StatementState = "error"
	StatementCancelled StatementState = "cancelled"
)

// Statement output statuses.
const (
	OutputStatusOK    = "ok"
	OutputStatusError = "error"
)

// SessionID tolerates both numeric and string session ids in server
// responses.
type SessionID string

// UnmarshalJSON implements json.Unmarshaler.
func (s *SessionID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = SessionID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("session id is neither string nor number: %w", err)
	}
	*s = SessionID(n.String())
	return nil
}

// CreateSessionRequest is the body of a session create call.
type CreateSessionRequest struct {
	Kind string         `json:"kind"`
	Conf map[string]any `json:"conf,omitempty"`
	Name string         `json:"name,omitempty"`
}

// SessionInfo is the server's view of one session.
type SessionInfo struct {
	ID       SessionID    `json:"id"`
	Name     string       `json:"name"`
	State    SessionState `json:"state"`
	LivyInfo LivyInfo     `json:"livyInfo"`
}

// LivyInfo carries the authoritative engine-side session state.
type LivyInfo struct {
	CurrentState SessionState `json:"currentState"`
}

// SessionSummary is one entry of a session list response.
type SessionSummary struct {
	ID        SessionID    `json:"id"`
	Name      string       `json:"name"`
	LivyState SessionState `json:"livyState"`
}

// sessionList is the body of a session list response.
type sessionList struct {
	Items []SessionSummary `json:"items"`
}

// StatementRequest is the body of a statement submit call.
type StatementRequest struct {
	Code string `json:"code"`
	Kind string `json:"kind"`
}

// StatementInfo is the server's view of one statement.
type StatementInfo struct {
	ID     int             `json:"id"`
	State  StatementState  `json:"state"`
	Output StatementOutput `json:"output"`
}

// StatementOutput is the evaluated output of a finished statement.
type StatementOutput struct {
	Status     string     `json:"status"`
	ErrorName  string     `json:"ename,omitempty"`
	ErrorValue string     `json:"evalue,omitempty"`
	Data       OutputData `json:"data,omitempty"`
}

// OutputData holds the per-MIME-type result payloads.
type OutputData struct {
	ApplicationJSON *JSONPayload `json:"application/json,omitempty"`
}

// JSONPayload is the row data and schema of a successful statement.
type JSONPayload struct {
	Data   [][]any `json:"data"`
	Schema Schema  `json:"schema"`
}

// Schema describes the shape of a result set.
type Schema struct {
	Fields []SchemaField `json:"fields"`
}

// SchemaField describes one result column.
type SchemaField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Result is the materialized outcome of one executed statement. Schema and
// row shape are consistent for its lifetime; a new execution replaces it
// wholesale.
type Result struct {
	Rows   [][]any
	Schema []SchemaField
}
