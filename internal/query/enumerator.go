package query

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/loftdb/loft/internal/store"
	"github.com/loftdb/loft/internal/value"
)

// FullTextTerm locates one matched search term inside the indexed
// text of the current row.
type FullTextTerm struct {
	TermIndex  uint32 // which term of the MATCH pattern
	ByteOffset uint32
	ByteLength uint32
}

// Enumerator steps through the rows of one query run. It is a scoped
// resource: Close resets the underlying cursor and must be called
// before the query is run again.
type Enumerator struct {
	query *Query
	rows  *sql.Rows
	ncols int
	err   error

	sequence   int64
	recordID   []byte
	meta       []byte
	bodyLength int64
	offsets    []sql.NullString
}

// Next advances to the next row. It returns false at the end of the
// result set or on error; check Err afterwards.
func (e *Enumerator) Next() bool {
	if e.err != nil || !e.rows.Next() {
		return false
	}
	dest := []any{&e.sequence, &e.recordID, &e.meta, &e.bodyLength}
	nFTS := e.ncols - 4
	if len(e.offsets) != nFTS {
		e.offsets = make([]sql.NullString, nFTS)
	}
	for i := range e.offsets {
		dest = append(dest, &e.offsets[i])
	}
	if err := e.rows.Scan(dest...); err != nil {
		e.err = err
		return false
	}
	return true
}

// Err returns the first error hit while stepping or scanning.
func (e *Enumerator) Err() error {
	if e.err != nil {
		return e.err
	}
	return e.rows.Err()
}

// Sequence returns the current row's sequence.
func (e *Enumerator) Sequence() int64 { return e.sequence }

// RecordID returns the current row's record ID.
func (e *Enumerator) RecordID() []byte { return e.recordID }

// Meta returns the current row's metadata blob.
func (e *Enumerator) Meta() []byte { return e.meta }

// BodyLength returns the byte length of the current row's body.
func (e *Enumerator) BodyLength() int64 { return e.bodyLength }

// HasFullText reports whether the query carries full-text match
// details (an offsets() column).
func (e *Enumerator) HasFullText() bool { return e.ncols >= 5 }

// FullTextTerms decodes the current row's offsets() column: groups of
// four space-separated integers, of which the trailing three are term
// index, byte offset, and byte length.
func (e *Enumerator) FullTextTerms() ([]FullTextTerm, error) {
	if !e.HasFullText() || len(e.offsets) == 0 || !e.offsets[0].Valid {
		return nil, nil
	}
	fields := strings.Fields(e.offsets[0].String)
	if len(fields)%4 != 0 {
		return nil, errors.New("malformed offsets() result")
	}
	var terms []FullTextTerm
	for i := 0; i < len(fields); i += 4 {
		var quad [4]uint32
		for j := 0; j < 4; j++ {
			n, err := strconv.ParseUint(fields[i+j], 10, 32)
			if err != nil {
				return nil, errors.New("malformed offsets() result")
			}
			quad[j] = uint32(n)
		}
		terms = append(terms, FullTextTerm{
			TermIndex:  quad[1],
			ByteOffset: quad[2],
			ByteLength: quad[3],
		})
	}
	return terms, nil
}

// MatchedText re-reads the current row's document and returns the text
// of the first matched full-text property. It returns empty if the
// document has been updated since this row was produced.
func (e *Enumerator) MatchedText() (string, error) {
	if len(e.query.ftsProperties) == 0 {
		return "", nil
	}
	rec, err := e.query.store.Get(string(e.recordID))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if rec.Sequence != e.sequence || len(rec.Body) == 0 {
		return "", nil
	}
	doc, err := value.Parse(rec.Body)
	if err != nil {
		return "", err
	}
	v, err := doc.Eval(e.query.ftsProperties[0])
	if err != nil || v == nil {
		return "", nil
	}
	s, _ := v.Str()
	return s, nil
}

// Close ends the enumeration and resets the statement. Errors are
// swallowed; an abandoned enumeration must not fail its owner.
func (e *Enumerator) Close() {
	_ = e.rows.Close()
}
