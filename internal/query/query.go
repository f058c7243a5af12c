// Package query compiles and runs JSON-encoded queries against a
// store. It owns the prepared-statement lifecycle around the SQL the
// queryparser emits.
package query

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/loftdb/loft/internal/queryparser"
	"github.com/loftdb/loft/internal/store"
	"github.com/loftdb/loft/internal/value"
)

var (
	// ErrInvalidParameter indicates an unsupported value in the
	// parameter bindings dict.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrInvalidQueryParam indicates a binding name with no matching
	// placeholder in the query.
	ErrInvalidQueryParam = errors.New("invalid query parameter")
)

// Query is a compiled query: the generated SQL, its derived artifacts,
// and one prepared statement reused across enumerations. At most one
// enumeration may be active at a time.
type Query struct {
	store         *store.Store
	sqlStr        string
	ftsProperties []string
	parameters    map[string]struct{}
	stmt          *sql.Stmt
}

// Compile translates a JSON query expression into a prepared
// statement over the store. Every full-text property the query matches
// must already have a full-text index.
func Compile(s *store.Store, expressionJSON []byte) (*Query, error) {
	expr, err := value.Parse(expressionJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", queryparser.ErrInvalidQuery, err)
	}

	p := queryparser.New(s.TableName(), store.BodyColumnName)
	clauses, err := p.ParseClauses(expr)
	if err != nil {
		return nil, err
	}

	var sqlBuf strings.Builder
	sqlBuf.WriteString("SELECT sequence, key, meta, length(body)")
	for _, prop := range p.FTSProperties() {
		indexed, err := s.HasFullTextIndex(prop)
		if err != nil {
			return nil, err
		}
		if !indexed {
			return nil, fmt.Errorf("%w: no full-text index on %q", store.ErrNoSuchIndex, prop)
		}
		fmt.Fprintf(&sqlBuf, ", offsets(\"%s::%s\")", s.TableName(), prop)
	}
	sqlBuf.WriteString(" FROM ")
	sqlBuf.WriteString(clauses.From)
	if clauses.Where != "" {
		sqlBuf.WriteString(" WHERE (")
		sqlBuf.WriteString(clauses.Where)
		sqlBuf.WriteString(")")
	}
	if clauses.OrderBy != "" {
		sqlBuf.WriteString(" ORDER BY ")
		sqlBuf.WriteString(clauses.OrderBy)
	}
	sqlBuf.WriteString(" LIMIT $limit OFFSET $offset")

	stmt, err := s.Compile(sqlBuf.String())
	if err != nil {
		return nil, err
	}

	params := make(map[string]struct{})
	for _, name := range p.Parameters() {
		params[name] = struct{}{}
	}
	return &Query{
		store:         s,
		sqlStr:        sqlBuf.String(),
		ftsProperties: p.FTSProperties(),
		parameters:    params,
		stmt:          stmt,
	}, nil
}

// SQL returns the generated statement text.
func (q *Query) SQL() string { return q.sqlStr }

// FTSProperties returns the full-text properties the query matches,
// in FTS-alias order.
func (q *Query) FTSProperties() []string {
	out := make([]string, len(q.ftsProperties))
	copy(out, q.ftsProperties)
	return out
}

// Close releases the prepared statement.
func (q *Query) Close() error {
	return q.stmt.Close()
}

// Options control one enumeration of a compiled query.
type Options struct {
	// Skip is the number of leading rows to skip.
	Skip int64
	// Limit caps the row count; negative means unlimited.
	Limit int64
	// ParamBindings is a JSON dict of user parameter values, keyed by
	// the names used in ["$", name] nodes.
	ParamBindings []byte
}

// bindParameters converts a JSON bindings dict into named SQL
// arguments. Null values are skipped; unknown names are rejected.
func (q *Query) bindParameters(bindings []byte) ([]any, error) {
	root, err := value.Parse(bindings)
	if err != nil || root.Kind() != value.KindDict {
		return nil, fmt.Errorf("%w: bindings must be a JSON object", ErrInvalidParameter)
	}

	var args []any
	for _, e := range root.Dict() {
		if _, known := q.parameters[e.Key]; !known {
			return nil, fmt.Errorf("%w: %q", ErrInvalidQueryParam, e.Key)
		}
		name := "_" + e.Key
		switch e.Value.Kind() {
		case value.KindNull:
			// unbound parameters compare as SQL NULL
		case value.KindBool:
			n := int64(0)
			if e.Value.Bool() {
				n = 1
			}
			args = append(args, sql.Named(name, n))
		case value.KindInt:
			args = append(args, sql.Named(name, e.Value.Int()))
		case value.KindFloat:
			args = append(args, sql.Named(name, e.Value.Float()))
		case value.KindString:
			s, _ := e.Value.Str()
			args = append(args, sql.Named(name, s))
		case value.KindData:
			args = append(args, sql.Named(name, e.Value.Data()))
		default:
			return nil, fmt.Errorf("%w: unsupported type for %q", ErrInvalidParameter, e.Key)
		}
	}
	return args, nil
}

// Run starts an enumeration. The caller must Close it before starting
// another on the same query.
func (q *Query) Run(opts *Options) (*Enumerator, error) {
	var offset, limit int64 = 0, -1
	var bindings []byte
	if opts != nil {
		offset = opts.Skip
		limit = opts.Limit
		bindings = opts.ParamBindings
	}

	args := []any{sql.Named("limit", limit), sql.Named("offset", offset)}
	if bindings != nil {
		userArgs, err := q.bindParameters(bindings)
		if err != nil {
			return nil, err
		}
		args = append(args, userArgs...)
	}

	rows, err := q.stmt.Query(args...)
	if err != nil {
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &Enumerator{query: q, rows: rows, ncols: len(cols)}, nil
}
