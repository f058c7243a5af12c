package value

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Parse decodes JSON text into a value tree.
//
// It walks the token stream directly instead of unmarshalling into
// map[string]any, because Go maps would drop object key order and
// collapse integers into float64.
func Parse(data []byte) (*Value, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}

	// Trailing garbage after the top-level value is an error.
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (*Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return NewBool(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return NewInt(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid JSON number %q", t.String())
		}
		return NewFloat(f), nil
	case string:
		return NewString(t), nil
	case json.Delim:
		switch t {
		case '[':
			return decodeArray(dec)
		case '{':
			return decodeDict(dec)
		}
	}
	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}

func decodeArray(dec *json.Decoder) (*Value, error) {
	items := []*Value{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if d, ok := tok.(json.Delim); ok && d == ']' {
			return NewArray(items...), nil
		}
		item, err := decodeToken(dec, tok)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}

func decodeDict(dec *json.Decoder) (*Value, error) {
	entries := []DictEntry{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			return NewDict(entries...), nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected JSON object key %v", tok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		entries = append(entries, DictEntry{Key: key, Value: val})
	}
}
