package value

import (
	"fmt"
	"strconv"
	"strings"
)

// PathSegment is one step of a parsed property path: either a field
// name or an array index.
type PathSegment struct {
	Name    string
	Index   int
	IsIndex bool
}

// ParsePath parses a dotted/bracketed property path such as
// "user.tags[0].name" into its segments. A leading "$." or "$" is
// stripped. An empty path yields no segments (the root).
func ParsePath(path string) ([]PathSegment, error) {
	path = strings.TrimPrefix(path, "$.")
	path = strings.TrimPrefix(path, "$")

	var segs []PathSegment
	i := 0
	for i < len(path) {
		switch path[i] {
		case '.':
			if i == 0 {
				return nil, fmt.Errorf("property path %q starts with '.'", path)
			}
			i++
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated index in property path %q", path)
			}
			n, err := strconv.Atoi(path[i+1 : i+end])
			if err != nil {
				return nil, fmt.Errorf("bad array index in property path %q", path)
			}
			segs = append(segs, PathSegment{Index: n, IsIndex: true})
			i += end + 1
		default:
			start := i
			for i < len(path) && path[i] != '.' && path[i] != '[' {
				i++
			}
			segs = append(segs, PathSegment{Name: path[start:i]})
		}
	}
	return segs, nil
}

// Eval evaluates a property path against the value and returns the
// addressed sub-value, or nil if any step is missing. Negative array
// indexes count back from the end.
func (v *Value) Eval(path string) (*Value, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	cur := v
	for _, seg := range segs {
		if cur == nil {
			return nil, nil
		}
		if seg.IsIndex {
			items := cur.Array()
			idx := seg.Index
			if idx < 0 {
				idx += len(items)
			}
			if idx < 0 || idx >= len(items) {
				return nil, nil
			}
			cur = items[idx]
		} else {
			cur = cur.Get(seg.Name)
		}
	}
	return cur, nil
}
