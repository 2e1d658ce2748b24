package livy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/txn2/fabric-livy/pkg/credentials"
)

// pythonModelMarker identifies submitted source that must run as pyspark
// regardless of the declared language.
const pythonModelMarker = "def model(dbt, session):"

// bindingTimeLayout renders datetime bindings as literal source text with
// millisecond precision.
const bindingTimeLayout = "2006-01-02 15:04:05.000"

// Connection is one logical connection over the shared session. Statement
// execution is serialized per connection; the remote session runs one
// statement at a time.
type Connection struct {
	manager *Manager
	session *Session
	log     *slog.Logger

	mu     sync.Mutex
	cursor *Cursor
}

// newConnection wires a connection and its cursor over the shared session.
func newConnection(m *Manager, session *Session, creds *credentials.Credentials, log *slog.Logger) *Connection {
	exec := NewExecutor(m.client, session, creds, log)
	exec.reconnect = func(ctx context.Context) error {
		_, err := m.Connect(ctx)
		return err
	}
	return &Connection{
		manager: m,
		session: session,
		log:     log,
		cursor:  NewCursor(exec, log),
	}
}

// SessionID returns the id of the underlying session.
func (c *Connection) SessionID() string {
	return c.session.ID()
}

// Cursor returns the connection's cursor.
func (c *Connection) Cursor() *Cursor {
	return c.cursor
}

// Close releases the connection's buffered state. The underlying session
// stays up; the manager owns its lifecycle.
func (c *Connection) Close() {
	c.log.Debug("connection close")
	c.cursor.Close()
}

// Execute runs a statement through the connection's cursor, serialized so
// concurrent callers cannot interleave statements on the shared session.
func (c *Connection) Execute(ctx context.Context, code, language string, params ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor.Execute(ctx, code, language, params...)
}

// ConnectionWrapper adapts a Connection to the handle contract the calling
// layer expects: cursor, execute with bindings, description, close, and the
// no-op transaction surface.
type ConnectionWrapper struct {
	handle *Connection
	log    *slog.Logger
	cursor *Cursor
}

// NewConnectionWrapper wraps a connection handle.
func NewConnectionWrapper(handle *Connection, log *slog.Logger) *ConnectionWrapper {
	if log == nil {
		log = slog.Default()
	}
	return &ConnectionWrapper{handle: handle, log: log}
}

// Cursor binds the wrapper to the handle's cursor and returns the wrapper.
// Wrapped cursors accept bindings; the calling layer interpolates them
// through formatting verbs in the statement text.
func (w *ConnectionWrapper) Cursor() *ConnectionWrapper {
	w.cursor = w.handle.Cursor()
	WithInterpolation()(w.cursor)
	return w
}

// Cancel is not supported by the remote engine.
func (w *ConnectionWrapper) Cancel() {
	w.log.Debug("NotImplemented: cancel")
}

// Rollback is a no-op; the remote engine has no transaction concept.
func (w *ConnectionWrapper) Rollback() {
	w.log.Debug("NotImplemented: rollback")
}

// Close closes the underlying handle.
func (w *ConnectionWrapper) Close() {
	w.handle.Close()
}

// FetchAll returns all buffered rows.
func (w *ConnectionWrapper) FetchAll() [][]any {
	return w.cursor.FetchAll()
}

// Execute normalizes the language and statement, converts bindings to
// literal source values, and executes through the cursor.
func (w *ConnectionWrapper) Execute(ctx context.Context, sql, language string, bindings []any) error {
	if w.cursor == nil {
		w.Cursor()
	}

	if language != LanguageSQL && language != LanguagePySpark {
		language = LanguageSQL
	}
	if strings.Contains(sql, pythonModelMarker) {
		language = LanguagePySpark
	}
	if trimmed := strings.TrimSpace(sql); strings.HasSuffix(trimmed, ";") {
		sql = strings.TrimSuffix(trimmed, ";")
	}

	if len(bindings) == 0 {
		return w.handle.Execute(ctx, sql, language)
	}
	converted := make([]any, len(bindings))
	for i, binding := range bindings {
		converted[i] = FixBinding(binding)
	}
	return w.handle.Execute(ctx, sql, language, converted...)
}

// Description returns the column descriptors of the last result.
func (w *ConnectionWrapper) Description() []Description {
	return w.cursor.Description()
}

// FixBinding converts a binding to a primitive the remote channel can take
// as literal source text: numerics become floats, datetimes and everything
// else quoted literals, nil the empty-string literal.
func FixBinding(value any) any {
	switch v := value.(type) {
	case nil:
		return "''"
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case time.Time:
		return "'" + v.Format(bindingTimeLayout) + "'"
	default:
		return fmt.Sprintf("'%v'", v)
	}
}
