package queryparser

import (
	"fmt"
	"strings"

	"github.com/loftdb/loft/internal/value"
)

// propertyFromOperands builds the dotted/bracketed path string from
// the operands of a property node (the elements after the ".").
// String segments are field names; single-element integer arrays are
// array indexes. A path may not start with an index.
func propertyFromOperands(operands []*value.Value) (string, error) {
	var property strings.Builder
	for n, item := range operands {
		if item.Kind() == value.KindArray {
			if n == 0 {
				return "", failf("property path can't start with an array index")
			}
			elems := item.Array()
			if len(elems) != 1 {
				return "", failf("property array index must have exactly one item")
			}
			fmt.Fprintf(&property, "[%d]", elems[0].Int())
		} else {
			name, ok := item.Str()
			if !ok {
				return "", failf("invalid JSON value in property path")
			}
			if n > 0 {
				property.WriteByte('.')
			}
			property.WriteString(name)
		}
	}
	return property.String(), nil
}

// propertyFromNode returns the path encoded by a property node, with
// ok=false if the node is not a property node at all.
func propertyFromNode(node *value.Value) (string, bool, error) {
	items := node.Array()
	if len(items) < 2 {
		return "", false, nil
	}
	if s, sok := items[0].Str(); !sok || s != "." {
		return "", false, nil
	}
	prop, err := propertyFromOperands(items[1:])
	if err != nil {
		return "", false, err
	}
	return prop, true, nil
}

// writePropertyOp writes a property access through the given SQL
// function name.
func (p *Parser) writePropertyOp(fnName string, operands []*value.Value) error {
	prop, err := propertyFromOperands(operands)
	if err != nil {
		return err
	}
	return p.writePropertyGetter(fnName, prop)
}

// writeNestedPropertyOpIfAny checks whether the first operand is a
// property node; if so it writes the access through fnName and
// reports true.
func (p *Parser) writeNestedPropertyOpIfAny(fnName string, operands []*value.Value) (bool, error) {
	if len(operands) == 0 {
		return false, nil
	}
	items := operands[0].Array()
	if len(items) == 0 {
		return false, nil
	}
	if s, ok := items[0].Str(); !ok || s != "." {
		return false, nil
	}
	return true, p.writePropertyOp(fnName, items[1:])
}

// writePropertyGetter writes a call to a document-accessor SQL
// function. The reserved paths _id and _sequence read the key and
// sequence columns directly and are valid only in a bare property
// read.
func (p *Parser) writePropertyGetter(fn, property string) error {
	switch {
	case property == "_id":
		if fn != "fl_value" {
			return failf("can't use '_id' in this context")
		}
		p.sql.WriteString("key")
	case property == "_sequence":
		if fn != "fl_value" {
			return failf("can't use '_sequence' in this context")
		}
		p.sql.WriteString("sequence")
	case fn == "rank":
		// FTS rank() scores the match via matchinfo on the property's
		// virtual table.
		path := appendPaths(p.PropertyPath, property)
		if p.ftsPropertyIndex(path) == 0 {
			return failf("rank() can only be used with FTS properties")
		}
		fmt.Fprintf(&p.sql, "rank(matchinfo(\"%s::%s\"))", p.tableName, path)
	default:
		p.sql.WriteString(fn)
		p.sql.WriteByte('(')
		p.sql.WriteString(p.bodyColumnName)
		p.sql.WriteString(", ")
		writeSQLString(&p.sql, appendPaths(p.PropertyPath, property))
		p.sql.WriteByte(')')
	}
	return nil
}

// PropertyGetterSQL returns the SQL snippet reading a single document
// property, for callers compiling fragments (e.g. index expressions).
func PropertyGetterSQL(property, bodyColumnName string) (string, error) {
	p := New("XXX", bodyColumnName)
	p.reset()
	if err := p.writePropertyGetter("fl_value", property); err != nil {
		return "", err
	}
	return p.SQL(), nil
}

// appendPaths joins two property path strings. A leading "$" or "$."
// on child is stripped; an index child ("[0]...") concatenates without
// a separator.
func appendPaths(parent, child string) string {
	if strings.HasPrefix(child, "$") {
		if strings.HasPrefix(child, "$.") {
			child = child[2:]
		} else {
			child = child[1:]
		}
	}
	if parent == "" {
		return child
	}
	if strings.HasPrefix(child, "[") {
		return parent + child
	}
	return parent + "." + child
}

// findFTSProperties pre-walks a WHERE expression collecting every
// property that appears as the left operand of MATCH. SQL requires the
// FTS virtual tables to be named in the FROM clause, so they must all
// be known before any of it is emitted.
func (p *Parser) findFTSProperties(node *value.Value) error {
	items := node.Array()
	if len(items) == 0 {
		return nil
	}
	op, _ := items[0].Str()
	rest := items[1:]
	if op == "MATCH" && len(rest) > 0 {
		if prop, ok, err := propertyFromNode(rest[0]); err != nil {
			return err
		} else if ok && prop != "" {
			p.addFTSPropertyIndex(prop)
		}
		rest = rest[1:]
	}
	for _, operand := range rest {
		if err := p.findFTSProperties(operand); err != nil {
			return err
		}
	}
	return nil
}

// ftsPropertyIndex returns the 1-based position of a property path in
// the FTS list, or 0 if absent.
func (p *Parser) ftsPropertyIndex(propertyPath string) int {
	for i, existing := range p.ftsProperties {
		if existing == propertyPath {
			return i + 1
		}
	}
	return 0
}

// addFTSPropertyIndex returns the FTS table number for a property,
// registering it if new. Indexes are stable insertion-order positions.
func (p *Parser) addFTSPropertyIndex(property string) int {
	propertyPath := appendPaths(p.PropertyPath, property)
	if index := p.ftsPropertyIndex(propertyPath); index != 0 {
		return index
	}
	p.ftsProperties = append(p.ftsProperties, propertyPath)
	return len(p.ftsProperties)
}
