package query

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loftdb/loft/internal/queryparser"
	"github.com/loftdb/loft/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "loft.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedNotes(t *testing.T, s *store.Store) {
	t.Helper()
	docs := map[string]string{
		"doc1": `{"type": "note", "n": 1, "text": "the quick brown fox"}`,
		"doc2": `{"type": "note", "n": 2, "text": "jumps over the lazy dog"}`,
		"doc3": `{"type": "task", "n": 3, "text": "quick task"}`,
	}
	for _, key := range []string{"doc1", "doc2", "doc3"} {
		_, err := s.Put(key, nil, []byte(docs[key]))
		require.NoError(t, err)
	}
}

func mustFullTextIndex(t *testing.T, s *store.Store, path string) {
	t.Helper()
	err := s.CreateFullTextIndex(path)
	if err != nil && strings.Contains(err.Error(), "no such module") {
		t.Skipf("FTS4 not available: %v", err)
	}
	require.NoError(t, err)
}

func TestCompileSQLShape(t *testing.T) {
	s := openTestStore(t)

	q, err := Compile(s, []byte(`["=", [".", "type"], "note"]`))
	require.NoError(t, err)
	defer q.Close()

	want := `SELECT sequence, key, meta, length(body)` +
		` FROM kv_default WHERE (fl_value(body, 'type') = 'note')` +
		` LIMIT $limit OFFSET $offset`
	require.Equal(t, want, q.SQL())
}

func TestCompileFullTextSQLShape(t *testing.T) {
	s := openTestStore(t)
	mustFullTextIndex(t, s, "text")

	q, err := Compile(s, []byte(`["MATCH", [".", "text"], "hello"]`))
	require.NoError(t, err)
	defer q.Close()

	want := `SELECT sequence, key, meta, length(body), offsets("kv_default::text")` +
		` FROM kv_default, "kv_default::text" AS FTS1` +
		` WHERE ((FTS1.text MATCH 'hello' AND FTS1.rowid = kv_default.sequence))` +
		` LIMIT $limit OFFSET $offset`
	require.Equal(t, want, q.SQL())
	require.Equal(t, []string{"text"}, q.FTSProperties())
}

func TestCompileRequiresFullTextIndex(t *testing.T) {
	s := openTestStore(t)
	_, err := Compile(s, []byte(`["MATCH", [".", "text"], "hello"]`))
	require.ErrorIs(t, err, store.ErrNoSuchIndex)
}

func TestCompileRejectsInvalidQuery(t *testing.T) {
	s := openTestStore(t)
	for _, input := range []string{`[]`, `["FOO", 1]`, `not json`} {
		_, err := Compile(s, []byte(input))
		require.ErrorIs(t, err, queryparser.ErrInvalidQuery, "input %s", input)
	}
}

func TestRunSimpleQuery(t *testing.T) {
	s := openTestStore(t)
	seedNotes(t, s)

	q, err := Compile(s, []byte(`["=", [".", "type"], "note"]`))
	require.NoError(t, err)
	defer q.Close()

	e, err := q.Run(nil)
	require.NoError(t, err)
	defer e.Close()

	var keys []string
	for e.Next() {
		keys = append(keys, string(e.RecordID()))
		require.Positive(t, e.Sequence())
		require.Positive(t, e.BodyLength())
		require.False(t, e.HasFullText())
	}
	require.NoError(t, e.Err())
	require.ElementsMatch(t, []string{"doc1", "doc2"}, keys)
}

func TestRunSkipAndLimit(t *testing.T) {
	s := openTestStore(t)
	seedNotes(t, s)

	q, err := Compile(s, []byte(`{"WHERE": [">", [".", "n"], 0], "ORDER BY": [[".", "n"]]}`))
	require.NoError(t, err)
	defer q.Close()

	e, err := q.Run(&Options{Skip: 1, Limit: 1})
	require.NoError(t, err)
	defer e.Close()

	require.True(t, e.Next())
	require.Equal(t, "doc2", string(e.RecordID()))
	require.False(t, e.Next())
	require.NoError(t, e.Err())
}

func TestRunBindsParameters(t *testing.T) {
	s := openTestStore(t)
	seedNotes(t, s)

	q, err := Compile(s, []byte(`["=", [".", "n"], ["$", "n"]]`))
	require.NoError(t, err)
	defer q.Close()

	e, err := q.Run(&Options{Limit: -1, ParamBindings: []byte(`{"n": 2}`)})
	require.NoError(t, err)
	defer e.Close()

	require.True(t, e.Next())
	require.Equal(t, "doc2", string(e.RecordID()))
	require.False(t, e.Next())
	require.NoError(t, e.Err())
}

func TestRunRebindsAcrossEnumerations(t *testing.T) {
	s := openTestStore(t)
	seedNotes(t, s)

	q, err := Compile(s, []byte(`["=", [".", "n"], ["$", "n"]]`))
	require.NoError(t, err)
	defer q.Close()

	for want, binding := range map[string]string{
		"doc1": `{"n": 1}`,
		"doc3": `{"n": 3}`,
	} {
		e, err := q.Run(&Options{Limit: -1, ParamBindings: []byte(binding)})
		require.NoError(t, err)
		require.True(t, e.Next())
		require.Equal(t, want, string(e.RecordID()))
		e.Close()
	}
}

func TestRunParameterErrors(t *testing.T) {
	s := openTestStore(t)
	seedNotes(t, s)

	q, err := Compile(s, []byte(`["=", [".", "n"], ["$", "n"]]`))
	require.NoError(t, err)
	defer q.Close()

	_, err = q.Run(&Options{ParamBindings: []byte(`{"unknown": 1}`)})
	require.ErrorIs(t, err, ErrInvalidQueryParam)

	_, err = q.Run(&Options{ParamBindings: []byte(`{"n": [1, 2]}`)})
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = q.Run(&Options{ParamBindings: []byte(`[1]`)})
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestRunFullTextSearch(t *testing.T) {
	s := openTestStore(t)
	mustFullTextIndex(t, s, "text")
	seedNotes(t, s)

	q, err := Compile(s, []byte(`["MATCH", [".", "text"], "quick"]`))
	require.NoError(t, err)
	defer q.Close()

	e, err := q.Run(nil)
	require.NoError(t, err)
	defer e.Close()

	var keys []string
	for e.Next() {
		require.True(t, e.HasFullText())

		terms, err := e.FullTextTerms()
		require.NoError(t, err)
		require.NotEmpty(t, terms)

		text, err := e.MatchedText()
		require.NoError(t, err)
		require.Contains(t, text, "quick")

		// The offsets point at the matched word inside the text.
		term := terms[0]
		require.Equal(t, "quick", text[term.ByteOffset:term.ByteOffset+term.ByteLength])

		keys = append(keys, string(e.RecordID()))
	}
	require.NoError(t, e.Err())
	require.ElementsMatch(t, []string{"doc1", "doc3"}, keys)
}

func TestMatchedTextEmptyAfterUpdate(t *testing.T) {
	s := openTestStore(t)
	mustFullTextIndex(t, s, "text")

	_, err := s.Put("doc1", nil, []byte(`{"text": "hello world"}`))
	require.NoError(t, err)

	q, err := Compile(s, []byte(`["MATCH", [".", "text"], "hello"]`))
	require.NoError(t, err)
	defer q.Close()

	e, err := q.Run(nil)
	require.NoError(t, err)
	defer e.Close()
	require.True(t, e.Next())

	// Update the document mid-enumeration: the row's sequence is stale.
	_, err = s.Put("doc1", nil, []byte(`{"text": "hello again"}`))
	require.NoError(t, err)

	text, err := e.MatchedText()
	require.NoError(t, err)
	require.Empty(t, text)
}
