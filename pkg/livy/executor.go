package livy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/txn2/fabric-livy/pkg/credentials"
)

// executeRetryPatterns are error texts the remote reports for conditions
// known to clear on their own. A statement whose output matches one is
// resubmitted instead of surfaced.
var executeRetryPatterns = []string{
	"Request failed: HTTP/1.1 403 Forbidden ClientRequestId",
}

// Executor submits code to an active session and polls for completion. Two
// independent retry policies apply: submit responses with an error state
// are resubmitted, and available results matching a transient error pattern
// rerun the whole submit and poll cycle. Both use the same linear backoff.
type Executor struct {
	client  *Client
	session *Session
	log     *slog.Logger

	// reconnect re-establishes the session when it is flagged stale.
	// Installed by the session manager.
	reconnect func(ctx context.Context) error

	pollInterval time.Duration
	maxRetries   int
	backoffUnit  time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor bound to one session.
func NewExecutor(client *Client, session *Session, creds *credentials.Credentials, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		client:       client,
		session:      session,
		log:          log,
		pollInterval: creds.StatementPollInterval,
		maxRetries:   creds.MaxRetries,
		backoffUnit:  creds.RetryBackoffUnit,
		sleep:        sleepCtx,
	}
}

// Execute submits code and blocks until the remote produced a terminal
// result. A remote error output that does not match a transient pattern is
// returned as a *QueryError.
func (e *Executor) Execute(ctx context.Context, code, language string) (*Result, error) {
	if e.session.NeedsNew() && e.reconnect != nil {
		if err := e.reconnect(ctx); err != nil {
			return nil, err
		}
	}

	e.log.Info("executing livy statement", "language", language)
	retries := 0
	for {
		stmt, err := e.submit(ctx, code, language)
		if err != nil {
			return nil, err
		}

		final, err := e.waitAvailable(ctx, stmt.ID)
		if err != nil {
			return nil, err
		}

		if isTransientExecuteError(final.Output) && retries < e.maxRetries {
			retries++
			e.log.Warn("statement finished with transient error, retrying",
				"attempt", retries, "evalue", final.Output.ErrorValue)
			if err := e.sleep(ctx, e.backoff(retries)); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrPollTimeout, err)
			}
			continue
		}
		return resultFrom(final)
	}
}

// submit posts the statement, retrying while the immediate response reports
// an error state. The code is resubmitted verbatim on every retry.
func (e *Executor) submit(ctx context.Context, code, language string) (*StatementInfo, error) {
	req := StatementRequest{Code: code, Kind: language}
	for attempt := 0; ; attempt++ {
		stmt, err := e.client.SubmitStatement(ctx, e.session.ID(), req)
		if err != nil {
			return nil, err
		}
		if stmt.State != StatementError {
			return stmt, nil
		}
		if attempt >= e.maxRetries {
			return nil, fmt.Errorf("%w: state %q after %d attempts",
				ErrSubmitRetriesExhausted, stmt.State, attempt+1)
		}
		e.log.Warn("statement submit reported error state, retrying",
			"attempt", attempt+1, "statement_id", stmt.ID)
		if err := e.sleep(ctx, e.backoff(attempt+1)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPollTimeout, err)
		}
	}
}

// waitAvailable polls the statement until it reaches the available state.
func (e *Executor) waitAvailable(ctx context.Context, statementID int) (*StatementInfo, error) {
	for {
		stmt, err := e.client.GetStatement(ctx, e.session.ID(), statementID)
		if err != nil {
			return nil, err
		}
		if stmt.State == StatementAvailable {
			return stmt, nil
		}
		e.log.Debug("statement not ready", "statement_id", statementID, "state", stmt.State)
		if err := e.sleep(ctx, e.pollInterval); err != nil {
			return nil, fmt.Errorf("%w: waiting for statement %d: %w", ErrPollTimeout, statementID, err)
		}
	}
}

// backoff returns the linear backoff for the given attempt, counted from 1.
func (e *Executor) backoff(attempt int) time.Duration {
	return time.Duration(attempt) * e.backoffUnit
}

// resultFrom maps a terminal statement into a Result or an error.
func resultFrom(stmt *StatementInfo) (*Result, error) {
	switch stmt.Output.Status {
	case OutputStatusOK:
		payload := stmt.Output.Data.ApplicationJSON
		if payload == nil {
			return &Result{Rows: [][]any{}, Schema: []SchemaField{}}, nil
		}
		return &Result{Rows: payload.Data, Schema: payload.Schema.Fields}, nil
	case OutputStatusError:
		return nil, &QueryError{Value: stmt.Output.ErrorValue}
	default:
		return nil, fmt.Errorf("%w: statement %d finished with output status %q",
			ErrProtocol, stmt.ID, stmt.Output.Status)
	}
}

// isTransientExecuteError reports whether an error output matches a known
// transient failure signature.
func isTransientExecuteError(out StatementOutput) bool {
	if out.Status != OutputStatusError {
		return false
	}
	for _, pattern := range executeRetryPatterns {
		if strings.Contains(out.ErrorValue, pattern) {
			return true
		}
	}
	return false
}
