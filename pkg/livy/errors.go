package livy

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes of the protocol.
var (
	// ErrConnect marks a fatal connection failure: no usable response from
	// the session create call, or a session that died during startup.
	ErrConnect = errors.New("failed to connect to livy session")

	// ErrDecode marks a response body that could not be parsed.
	ErrDecode = errors.New("decoding livy response")

	// ErrProtocol marks a response outside the documented protocol, such as
	// an unknown terminal output status.
	ErrProtocol = errors.New("unexpected livy response")

	// ErrSubmitRetriesExhausted is returned when statement submission kept
	// reporting an error state through every retry.
	ErrSubmitRetriesExhausted = errors.New("statement submit retries exhausted")

	// ErrPollTimeout is returned when a poll loop was cancelled or timed
	// out before the remote reached a terminal state.
	ErrPollTimeout = errors.New("gave up polling livy")

	// ErrParamsUnsupported is returned when execute is called with
	// parameters but literal interpolation was not explicitly enabled.
	ErrParamsUnsupported = errors.New("parameterized statements are not supported")
)

// HTTPError is a non-2xx response from the endpoint.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// QueryError carries the remote engine's error output for a statement that
// finished with a non-transient error.
type QueryError struct {
	Value string
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return "error while executing query: " + e.Value
}
