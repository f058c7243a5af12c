// Package queryparser compiles JSON-encoded query expressions into SQL
// against the document table and its full-text virtual tables.
//
// A query expression is a tree of nested JSON arrays: operation nodes
// like ["AND", a, b], property nodes [".", "field", ...], and parameter
// nodes ["$", "name"]. The compiler walks the tree once to collect
// full-text MATCH properties (they must be known before the FROM
// clause is emitted), then again to emit SQL, deciding parenthesization
// from a stack of operator precedences.
package queryparser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loftdb/loft/internal/value"
)

// Parser compiles one query expression. Instances are single-use and
// not safe for concurrent use; nested SELECTs run on a fresh instance.
type Parser struct {
	tableName      string
	bodyColumnName string

	// PropertyPath is an optional prefix prepended to every document
	// property path (used when compiling fragments scoped to a
	// sub-document).
	PropertyPath string

	// DefaultLimit and DefaultOffset are SQL fragments appended to a
	// compiled SELECT. They are only for fragment compilation; query
	// execution appends $limit/$offset placeholders instead.
	DefaultLimit  string
	DefaultOffset string

	// BaseResultColumns are emitted before any offsets() columns in
	// the SELECT list. When neither kind of column is present, the
	// list is "*".
	BaseResultColumns []string

	sql           strings.Builder
	context       []*operation
	ftsProperties []string
	parameters    map[string]struct{}
}

// New returns a parser targeting the given document table and body
// column.
func New(tableName, bodyColumnName string) *Parser {
	return &Parser{
		tableName:      tableName,
		bodyColumnName: bodyColumnName,
	}
}

func (p *Parser) reset() {
	p.sql.Reset()
	p.context = p.context[:0]
	p.context = append(p.context, &outerOperation)
	p.ftsProperties = nil
	p.parameters = nil
}

// ParseJSON decodes and compiles a JSON query expression.
func (p *Parser) ParseJSON(data []byte) error {
	v, err := value.Parse(data)
	if err != nil {
		return failf("%v", err)
	}
	return p.Parse(v)
}

// Parse compiles a query expression. The input may be a dict (the
// operands of a SELECT), a full ["SELECT", {...}] operation, or any
// other expression, which is treated as the WHERE clause of an
// implicit SELECT.
//
// On failure no partial SQL is retained.
func (p *Parser) Parse(expr *value.Value) error {
	p.reset()
	err := p.parse(expr)
	if err != nil {
		p.sql.Reset()
	}
	return err
}

func (p *Parser) parse(expr *value.Value) error {
	if expr.Kind() == value.KindDict {
		return p.writeSelect(expr.Get("WHERE"), expr)
	}
	if items := expr.Array(); len(items) > 0 {
		if s, ok := items[0].Str(); ok && s == "SELECT" {
			return p.parseNode(expr)
		}
	}
	return p.writeSelect(expr, nil)
}

// ParseJustExpression compiles a single expression node without the
// surrounding SELECT scaffolding.
func (p *Parser) ParseJustExpression(expr *value.Value) error {
	p.reset()
	if err := p.parseNode(expr); err != nil {
		p.sql.Reset()
		return err
	}
	return nil
}

// Clauses are the dissected parts of a compiled query, used by the
// query executor to assemble its own prepared-statement shape.
type Clauses struct {
	From    string // table plus FTS joins, without the FROM keyword
	Where   string // bare predicate, empty if none
	OrderBy string // bare ordering list, empty if none
}

// ParseClauses compiles a query into separate FROM/WHERE/ORDER BY
// fragments. The input forms are the same as Parse accepts.
func (p *Parser) ParseClauses(expr *value.Value) (Clauses, error) {
	p.reset()

	where, operands, err := splitSelect(expr)
	if err != nil {
		return Clauses{}, err
	}
	if operands != nil {
		if operands.Get("WHAT") != nil {
			return Clauses{}, failf("WHAT parameter to SELECT isn't supported yet, sorry")
		}
		if operands.Get("FROM") != nil {
			return Clauses{}, failf("FROM parameter to SELECT isn't supported yet, sorry")
		}
	}

	var c Clauses
	if where != nil {
		if err := p.findFTSProperties(where); err != nil {
			return Clauses{}, err
		}
	}

	var from strings.Builder
	from.WriteString(p.tableName)
	for i, prop := range p.ftsProperties {
		fmt.Fprintf(&from, ", \"%s::%s\" AS FTS%d", p.tableName, prop, i+1)
	}
	c.From = from.String()

	if where != nil {
		if err := p.parseNode(where); err != nil {
			return Clauses{}, err
		}
		c.Where = p.sql.String()
		p.sql.Reset()
	}

	if operands != nil {
		if order := operands.Get("ORDER BY"); order != nil {
			items := order.Array()
			if items == nil {
				return Clauses{}, failf("ORDER BY must be an array")
			}
			p.context = append(p.context, &orderByOperation)
			err := p.writeArgList(items)
			p.context = p.context[:len(p.context)-1]
			if err != nil {
				return Clauses{}, err
			}
			c.OrderBy = p.sql.String()
			p.sql.Reset()
		}
	}
	return c, nil
}

// splitSelect extracts the WHERE expression and SELECT operand dict
// from the three accepted input forms.
func splitSelect(expr *value.Value) (where, operands *value.Value, err error) {
	if expr.Kind() == value.KindDict {
		return expr.Get("WHERE"), expr, nil
	}
	if items := expr.Array(); len(items) > 0 {
		if s, ok := items[0].Str(); ok && s == "SELECT" {
			if len(items) < 2 || items[1].Kind() != value.KindDict {
				return nil, nil, failf("argument to SELECT must be an object")
			}
			return items[1].Get("WHERE"), items[1], nil
		}
	}
	return expr, nil, nil
}

// SQL returns the compiled statement. Only valid after a successful
// Parse or ParseJustExpression.
func (p *Parser) SQL() string { return p.sql.String() }

// FTSProperties returns the full-text properties referenced by MATCH,
// in discovery order. The 1-based position of a property is its FTS
// table alias number.
func (p *Parser) FTSProperties() []string {
	out := make([]string, len(p.ftsProperties))
	copy(out, p.ftsProperties)
	return out
}

// Parameters returns the names of user parameters referenced by the
// query, sorted.
func (p *Parser) Parameters() []string {
	out := make([]string, 0, len(p.parameters))
	for name := range p.parameters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// writeSelect emits a full SELECT statement. operands is the SELECT
// dict, or nil for an implicit SELECT around a bare WHERE expression.
func (p *Parser) writeSelect(where, operands *value.Value) error {
	// All MATCH properties must be known before the result columns and
	// FROM clause are written.
	if where != nil {
		if err := p.findFTSProperties(where); err != nil {
			return err
		}
	}

	p.sql.WriteString("SELECT")
	nCol := 0
	for _, col := range p.BaseResultColumns {
		p.writeColumnSep(&nCol)
		p.sql.WriteString(col)
	}
	for _, prop := range p.ftsProperties {
		p.writeColumnSep(&nCol)
		fmt.Fprintf(&p.sql, "offsets(\"%s::%s\")", p.tableName, prop)
	}

	if operands != nil && operands.Get("WHAT") != nil {
		return failf("WHAT parameter to SELECT isn't supported yet, sorry")
	}
	if nCol == 0 {
		p.sql.WriteString(" *")
	}

	p.sql.WriteString(" FROM ")
	if operands != nil && operands.Get("FROM") != nil {
		return failf("FROM parameter to SELECT isn't supported yet, sorry")
	}
	p.sql.WriteString(p.tableName)
	for i, prop := range p.ftsProperties {
		fmt.Fprintf(&p.sql, ", \"%s::%s\" AS FTS%d", p.tableName, prop, i+1)
	}

	if where != nil {
		p.sql.WriteString(" WHERE ")
		if err := p.parseNode(where); err != nil {
			return err
		}
	}

	if operands != nil {
		if order := operands.Get("ORDER BY"); order != nil {
			p.sql.WriteString(" ORDER BY ")
			items := order.Array()
			if items == nil {
				return failf("ORDER BY must be an array")
			}
			// Suppress parens around the ordering list.
			p.context = append(p.context, &orderByOperation)
			err := p.writeArgList(items)
			p.context = p.context[:len(p.context)-1]
			if err != nil {
				return err
			}
		}
	}

	if p.DefaultLimit != "" {
		p.sql.WriteString(" LIMIT ")
		p.sql.WriteString(p.DefaultLimit)
	}
	if p.DefaultOffset != "" {
		p.sql.WriteString(" OFFSET ")
		p.sql.WriteString(p.DefaultOffset)
	}
	return nil
}

func (p *Parser) writeColumnSep(nCol *int) {
	if *nCol > 0 {
		p.sql.WriteString(", ")
	} else {
		p.sql.WriteString(" ")
	}
	*nCol++
}

// parseNode emits SQL for one expression node.
func (p *Parser) parseNode(v *value.Value) error {
	switch v.Kind() {
	case value.KindNull:
		p.sql.WriteString("null")
	case value.KindInt, value.KindFloat:
		p.sql.WriteString(v.NumberString())
	case value.KindBool:
		// SQL has no true/false literals.
		if v.Bool() {
			p.sql.WriteByte('1')
		} else {
			p.sql.WriteByte('0')
		}
	case value.KindString:
		s, _ := v.Str()
		writeSQLString(&p.sql, s)
	case value.KindData:
		return failf("binary data not supported in query")
	case value.KindArray:
		return p.parseOpNode(v)
	case value.KindDict:
		return failf("dictionaries not supported in query")
	}
	return nil
}

// writeSQLString writes a SQL string literal: apostrophe-quoted, with
// embedded apostrophes doubled. No other escaping; UTF-8 passes
// through.
func writeSQLString(sb *strings.Builder, s string) {
	sb.WriteByte('\'')
	if strings.ContainsRune(s, '\'') {
		sb.WriteString(strings.ReplaceAll(s, "'", "''"))
	} else {
		sb.WriteString(s)
	}
	sb.WriteByte('\'')
}
