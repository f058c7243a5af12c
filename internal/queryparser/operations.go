package queryparser

import (
	"fmt"
	"strings"

	"github.com/loftdb/loft/internal/value"
)

// operation describes one operator: its symbol, accepted argument
// count range, precedence, and emission handler.
type operation struct {
	symbol     string
	minArgs    int
	maxArgs    int
	precedence int
	handler    func(*Parser, string, []*value.Value) error
}

// operations defines the recognized operators. Order matters: lookup
// scans top to bottom and takes the first entry whose symbol and arity
// both match, so an operator with several arities (like "-") lists one
// entry per form. The final empty-symbol entry is the fallback for
// function-call syntax; its precedence is the maximum so unknown
// operators always emit atomically.
//
// Precedences follow http://www.sqlite.org/lang_expr.html.
var (
	operations       []operation
	argListOperation operation
	orderByOperation operation
)

// These are populated from init rather than initialized directly because
// the handler functions (e.g. infixOp) call back into parseNode, which
// looks up entries in these same tables; a direct initializer would form
// an initialization cycle even though nothing is evaluated until a query
// is actually parsed.
func init() {
	operations = []operation{
		{".", 1, 9, 9, (*Parser).propertyOp},
		{"$", 1, 1, 9, (*Parser).parameterOp},

		{"||", 2, 9, 8, (*Parser).infixOp},

		{"*", 2, 9, 7, (*Parser).infixOp},
		{"/", 2, 2, 7, (*Parser).infixOp},
		{"%", 2, 2, 7, (*Parser).infixOp},

		{"+", 2, 9, 6, (*Parser).infixOp},
		{"-", 2, 2, 6, (*Parser).infixOp},
		{"-", 1, 1, 9, (*Parser).prefixOp},

		{"<", 2, 2, 4, (*Parser).infixOp},
		{"<=", 2, 2, 4, (*Parser).infixOp},
		{">", 2, 2, 4, (*Parser).infixOp},
		{">=", 2, 2, 4, (*Parser).infixOp},

		{"=", 2, 2, 3, (*Parser).infixOp},
		{"!=", 2, 2, 3, (*Parser).infixOp},
		{"IS", 2, 2, 3, (*Parser).infixOp},
		{"IS NOT", 2, 2, 3, (*Parser).infixOp},
		{"IN", 2, 9, 3, (*Parser).inOp},
		{"NOT IN", 2, 9, 3, (*Parser).inOp},
		{"LIKE", 2, 2, 3, (*Parser).infixOp},
		{"MATCH", 2, 2, 3, (*Parser).matchOp},
		{"BETWEEN", 3, 3, 3, (*Parser).betweenOp},
		{"EXISTS", 1, 1, 8, (*Parser).existsOp},

		{"NOT", 1, 1, 9, (*Parser).prefixOp},
		{"AND", 2, 9, 2, (*Parser).infixOp},
		{"OR", 2, 9, 2, (*Parser).infixOp},

		{"SELECT", 1, 1, 1, (*Parser).selectOp},

		{"DESC", 1, 1, 2, (*Parser).postfixOp},

		{"", 0, 9, 10, (*Parser).fallbackOp}, // fallback; must come last
	}

	argListOperation = operation{",", 0, 9, -2, (*Parser).infixOp}
	orderByOperation = operation{"ORDER BY", 1, 9, -3, (*Parser).infixOp}
}

var outerOperation = operation{"", 1, 1, -1, nil}

// parseOpNode compiles an operation node: an array whose first element
// names the operator.
func (p *Parser) parseOpNode(v *value.Value) error {
	items := v.Array()
	if len(items) == 0 {
		return failf("empty JSON array")
	}
	op, ok := items[0].Str()
	if !ok {
		return failf("operation must be a string")
	}
	operands := items[1:]

	// Arity beyond 9 is clamped for lookup; all operands still emit.
	nargs := len(operands)
	if nargs > 9 {
		nargs = 9
	}

	nameMatched := false
	var def *operation
	for i := range operations {
		d := &operations[i]
		if d.symbol == "" {
			def = d // fallback
			break
		}
		if d.symbol == op {
			nameMatched = true
			if nargs >= d.minArgs && nargs <= d.maxArgs {
				def = d
				break
			}
		}
	}
	if nameMatched && def.symbol == "" {
		return failf("wrong number of arguments to %s", op)
	}
	return p.handleOperation(def, op, operands)
}

// handleOperation invokes an operation's handler, pushing it on the
// context stack and parenthesizing when its precedence does not exceed
// the enclosing one. The <= comparison forces parens at equal
// precedence, keeping grouping explicit across left-associative
// chains.
func (p *Parser) handleOperation(def *operation, op string, operands []*value.Value) error {
	parenthesize := def.precedence <= p.context[len(p.context)-1].precedence
	p.context = append(p.context, def)
	if parenthesize {
		p.sql.WriteByte('(')
	}

	if err := def.handler(p, op, operands); err != nil {
		return err
	}

	if parenthesize {
		p.sql.WriteByte(')')
	}
	p.context = p.context[:len(p.context)-1]
	return nil
}

// prefixOp handles unary prefix operators.
func (p *Parser) prefixOp(op string, operands []*value.Value) error {
	p.sql.WriteString(op)
	if isAlpha(op[len(op)-1]) {
		p.sql.WriteByte(' ')
	}
	return p.parseNode(operands[0])
}

// postfixOp handles postfix operators.
func (p *Parser) postfixOp(op string, operands []*value.Value) error {
	if err := p.parseNode(operands[0]); err != nil {
		return err
	}
	p.sql.WriteByte(' ')
	p.sql.WriteString(op)
	return nil
}

// infixOp handles infix operators, including variadic chains.
func (p *Parser) infixOp(op string, operands []*value.Value) error {
	for n, operand := range operands {
		if n > 0 {
			if op != "," { // argument lists get no leading space
				p.sql.WriteByte(' ')
			}
			p.sql.WriteString(op)
			p.sql.WriteByte(' ')
		}
		if err := p.parseNode(operand); err != nil {
			return err
		}
	}
	return nil
}

// existsOp handles EXISTS. "EXISTS property" becomes fl_exists().
func (p *Parser) existsOp(op string, operands []*value.Value) error {
	if ok, err := p.writeNestedPropertyOpIfAny("fl_exists", operands); ok || err != nil {
		return err
	}
	p.sql.WriteString(op)
	if isAlpha(op[len(op)-1]) {
		p.sql.WriteByte(' ')
	}
	return p.parseNode(operands[0])
}

// betweenOp handles "x BETWEEN y AND z".
func (p *Parser) betweenOp(op string, operands []*value.Value) error {
	if err := p.parseNode(operands[0]); err != nil {
		return err
	}
	p.sql.WriteByte(' ')
	p.sql.WriteString(op)
	p.sql.WriteByte(' ')
	if err := p.parseNode(operands[1]); err != nil {
		return err
	}
	p.sql.WriteString(" AND ")
	return p.parseNode(operands[2])
}

// inOp handles "x IN (...)" and "x NOT IN (...)".
func (p *Parser) inOp(op string, operands []*value.Value) error {
	if err := p.parseNode(operands[0]); err != nil {
		return err
	}
	p.sql.WriteByte(' ')
	p.sql.WriteString(op)
	p.sql.WriteByte(' ')
	return p.writeArgList(operands[1:])
}

// matchOp handles "property MATCH pattern" (full-text search). The
// match joins the property's FTS virtual table against the document
// table by rowid.
func (p *Parser) matchOp(op string, operands []*value.Value) error {
	prop, ok, err := propertyFromNode(operands[0])
	if err != nil {
		return err
	}
	if !ok || prop == "" {
		return failf("source of MATCH must be a property")
	}
	ftsTableNo := p.addFTSPropertyIndex(prop)
	fmt.Fprintf(&p.sql, "(FTS%d.text MATCH ", ftsTableNo)
	if err := p.parseNode(operands[1]); err != nil {
		return err
	}
	fmt.Fprintf(&p.sql, " AND FTS%d.rowid = %s.sequence)", ftsTableNo, p.tableName)
	return nil
}

// propertyOp handles document property accessors:
// [".", "prop"] --> fl_value(body, 'prop')
func (p *Parser) propertyOp(op string, operands []*value.Value) error {
	return p.writePropertyOp("fl_value", operands)
}

// parameterOp handles substituted query parameters:
// ["$", "x"] --> $_x
func (p *Parser) parameterOp(op string, operands []*value.Value) error {
	operand := operands[0]
	switch operand.Kind() {
	case value.KindInt, value.KindFloat, value.KindString:
		name := operand.ToString()
		if p.parameters == nil {
			p.parameters = make(map[string]struct{})
		}
		p.parameters[name] = struct{}{}
		p.sql.WriteString("$_")
		p.sql.WriteString(name)
		return nil
	default:
		return failf("query parameter name must be number or string")
	}
}

// selectOp handles SELECT. Its operand is a dict of clauses. A nested
// SELECT compiles on a fresh parser and splices its SQL in verbatim.
func (p *Parser) selectOp(op string, operands []*value.Value) error {
	dict := operands[0]
	if dict.Kind() != value.KindDict {
		return failf("argument to SELECT must be an object")
	}
	if len(p.context) <= 2 {
		// Outer SELECT.
		return p.writeSelect(dict.Get("WHERE"), dict)
	}
	nested := New(p.tableName, p.bodyColumnName)
	if err := nested.Parse(dict); err != nil {
		return err
	}
	p.sql.WriteString(nested.SQL())
	return nil
}

// fallbackOp handles unrecognized operators. A symbol ending in "()"
// is a function call; anything else is an error.
func (p *Parser) fallbackOp(op string, operands []*value.Value) error {
	if len(op) <= 2 || !strings.HasSuffix(op, "()") {
		return failf("unknown operator: %s", op)
	}

	// Clone the fallback entry under the actual symbol so nested
	// operations see this call's precedence.
	clone := *p.context[len(p.context)-1]
	clone.symbol = op
	p.context[len(p.context)-1] = &clone

	name := op[:len(op)-2]

	// count(property) and rank(property) map onto runtime functions.
	if name == "count" {
		if ok, err := p.writeNestedPropertyOpIfAny("fl_count", operands); ok || err != nil {
			return err
		}
	} else if name == "rank" {
		if ok, err := p.writeNestedPropertyOpIfAny("rank", operands); ok || err != nil {
			return err
		}
	}

	p.sql.WriteString(name)
	return p.writeArgList(operands)
}

// writeArgList writes operands as a comma-separated list,
// parenthesized depending on the current precedence.
func (p *Parser) writeArgList(operands []*value.Value) error {
	return p.handleOperation(&argListOperation, argListOperation.symbol, operands)
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
