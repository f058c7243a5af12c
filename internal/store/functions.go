package store

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"

	sqlite "modernc.org/sqlite"

	"github.com/loftdb/loft/internal/value"
)

// The document-accessor functions the compiled queries call. They are
// registered process-wide with the driver; every store connection sees
// them.
func init() {
	sqlite.MustRegisterDeterministicScalarFunction("fl_value", 2, flValue)
	sqlite.MustRegisterDeterministicScalarFunction("fl_exists", 2, flExists)
	sqlite.MustRegisterDeterministicScalarFunction("fl_count", 2, flCount)
	sqlite.MustRegisterDeterministicScalarFunction("rank", 1, ftsRank)
}

// evalArgs decodes the (body, path) argument pair shared by the fl_*
// functions.
func evalArgs(args []driver.Value) ([]byte, string, error) {
	var body []byte
	switch b := args[0].(type) {
	case []byte:
		body = b
	case string:
		body = []byte(b)
	case nil:
		return nil, "", nil
	default:
		return nil, "", fmt.Errorf("fl function: body must be a blob")
	}
	path, ok := args[1].(string)
	if !ok {
		return nil, "", fmt.Errorf("fl function: path must be text")
	}
	return body, path, nil
}

// flValue implements fl_value(body, path): the property's value as a
// SQL scalar. Arrays and dicts surface as their JSON encoding; a
// missing property is NULL.
func flValue(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	body, path, err := evalArgs(args)
	if err != nil || body == nil {
		return nil, err
	}
	v, err := lookup(body, path)
	if err != nil || v == nil {
		return nil, nil
	}
	return scalar(v), nil
}

// flExists implements fl_exists(body, path): 1 if the property is
// present (even if null), else 0.
func flExists(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	body, path, err := evalArgs(args)
	if err != nil || body == nil {
		return int64(0), err
	}
	v, err := lookup(body, path)
	if err != nil || v == nil {
		return int64(0), nil
	}
	return int64(1), nil
}

// flCount implements fl_count(body, path): the element count of an
// array property, 0 for a missing or null property, 1 for any other
// scalar.
func flCount(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	body, path, err := evalArgs(args)
	if err != nil || body == nil {
		return int64(0), err
	}
	v, err := lookup(body, path)
	if err != nil || v == nil {
		return int64(0), nil
	}
	switch v.Kind() {
	case value.KindNull:
		return int64(0), nil
	case value.KindArray:
		return int64(len(v.Array())), nil
	case value.KindDict:
		return int64(len(v.Dict())), nil
	default:
		return int64(1), nil
	}
}

// lookup parses a document body and evaluates a property path.
func lookup(body []byte, path string) (*value.Value, error) {
	doc, err := value.Parse(body)
	if err != nil {
		return nil, err
	}
	return doc.Eval(path)
}

// scalar converts a value to the SQL scalar fl_value returns.
func scalar(v *value.Value) driver.Value {
	switch v.Kind() {
	case value.KindBool:
		if v.Bool() {
			return int64(1)
		}
		return int64(0)
	case value.KindInt:
		return v.Int()
	case value.KindFloat:
		return v.Float()
	case value.KindString:
		s, _ := v.Str()
		return s
	case value.KindData:
		return v.Data()
	case value.KindArray, value.KindDict:
		return v.Encode()
	default:
		return nil
	}
}

// ftsRank implements rank(matchinfo(...)): a relevance score over the
// matchinfo blob, which holds little-endian uint32s — phrase count,
// column count, then three counters per phrase/column pair of which
// the first is the hit count in this row.
func ftsRank(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	blob, ok := args[0].([]byte)
	if !ok || len(blob) < 8 {
		return float64(0), nil
	}
	words := make([]uint32, len(blob)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(blob[i*4:])
	}
	phrases := int(words[0])
	cols := int(words[1])
	score := 0.0
	for i := 0; i < phrases*cols; i++ {
		off := 2 + i*3
		if off >= len(words) {
			break
		}
		score += float64(words[off])
	}
	return score, nil
}
