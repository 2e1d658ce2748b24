package livy

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// blockCommentRe matches SQL block comments including surrounding
// whitespace.
var blockCommentRe = regexp.MustCompile(`(?s)\s*/\*.*?\*/\s*`)

// Description describes one result column in the fixed seven-field shape
// of the conventional cursor contract. The four size fields are always nil;
// they exist for positional compatibility only.
type Description struct {
	Name         string
	TypeCode     string
	DisplaySize  any
	InternalSize any
	Precision    any
	Scale        any
	Nullable     bool
}

// Cursor is a synchronous cursor over executed statements. One cursor holds
// at most one buffered result; each execution replaces it.
type Cursor struct {
	exec *Executor
	log  *slog.Logger

	// allowInterpolation enables literal parameter substitution. Off by
	// default: the remote channel takes source text only, and interpolated
	// values are not escaped. Not for production use.
	allowInterpolation bool

	rows   [][]any
	schema []SchemaField
}

// CursorOption configures a cursor.
type CursorOption func(*Cursor)

// WithInterpolation enables literal parameter substitution. Interpolated
// values are not escaped; callers own quoting. Not for production use.
func WithInterpolation() CursorOption {
	return func(c *Cursor) {
		c.allowInterpolation = true
	}
}

// NewCursor creates a cursor over the given executor.
func NewCursor(exec *Executor, log *slog.Logger, opts ...CursorOption) *Cursor {
	if log == nil {
		log = slog.Default()
	}
	c := &Cursor{exec: exec, log: log}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs a statement and buffers its result. SQL statements have
// block comments stripped before submission; pyspark code is dedented.
func (c *Cursor) Execute(ctx context.Context, code, language string, params ...any) error {
	if len(params) > 0 {
		if !c.allowInterpolation {
			return ErrParamsUnsupported
		}
		code = fmt.Sprintf(code, params...)
	}

	if language == LanguagePySpark {
		code = dedent(code)
	} else {
		code = stripBlockComments(code)
	}

	result, err := c.exec.Execute(ctx, code, language)
	if err != nil {
		c.rows = nil
		c.schema = nil
		return err
	}
	c.rows = result.Rows
	c.schema = result.Schema
	return nil
}

// FetchAll returns the buffered rows, nil when no execution succeeded.
func (c *Cursor) FetchAll() [][]any {
	return c.rows
}

// FetchOne pops the next buffered row in server order, nil when exhausted.
func (c *Cursor) FetchOne() []any {
	if len(c.rows) == 0 {
		return nil
	}
	row := c.rows[0]
	c.rows = c.rows[1:]
	return row
}

// Description returns the column descriptors of the buffered result, empty
// when no schema is set.
func (c *Cursor) Description() []Description {
	description := make([]Description, 0, len(c.schema))
	for _, field := range c.schema {
		description = append(description, Description{
			Name:     field.Name,
			TypeCode: field.Type,
			Nullable: field.Nullable,
		})
	}
	return description
}

// Close discards the buffered rows. Idempotent.
func (c *Cursor) Close() {
	c.rows = nil
}

// stripBlockComments removes SQL block comments and trims the statement.
func stripBlockComments(sql string) string {
	return strings.TrimSpace(blockCommentRe.ReplaceAllString(sql, "\n"))
}

// dedent removes the whitespace prefix common to all non-blank lines.
func dedent(code string) string {
	lines := strings.Split(code, "\n")

	prefix := ""
	found := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if !found {
			prefix = indent
			found = true
			continue
		}
		prefix = commonPrefix(prefix, indent)
	}
	if prefix == "" {
		return code
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(lines, "\n")
}

// commonPrefix returns the longest shared prefix of two strings.
func commonPrefix(a, b string) string {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:n]
}
