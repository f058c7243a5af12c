package store

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "loft.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// mustFullTextIndex creates an index, skipping the test on SQLite
// builds without the FTS4 module.
func mustFullTextIndex(t *testing.T, s *Store, path string) {
	t.Helper()
	err := s.CreateFullTextIndex(path)
	if err != nil && strings.Contains(err.Error(), "no such module") {
		t.Skipf("FTS4 not available: %v", err)
	}
	require.NoError(t, err)
}

func TestPutGet(t *testing.T) {
	s := openTestStore(t)

	rec, err := s.Put("doc1", []byte("m"), []byte(`{"type": "note", "n": 1}`))
	require.NoError(t, err)
	require.Equal(t, "doc1", rec.Key)
	require.Equal(t, int64(1), rec.Sequence)

	got, err := s.Get("doc1")
	require.NoError(t, err)
	require.Equal(t, rec.Sequence, got.Sequence)
	require.Equal(t, []byte(`{"type": "note", "n": 1}`), got.Body)

	bySeq, err := s.GetBySequence(rec.Sequence)
	require.NoError(t, err)
	require.Equal(t, "doc1", bySeq.Key)
}

func TestPutGeneratesKey(t *testing.T) {
	s := openTestStore(t)
	rec, err := s.Put("", nil, []byte(`{}`))
	require.NoError(t, err)
	require.NotEmpty(t, rec.Key)
}

func TestPutRejectsInvalidJSON(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Put("bad", nil, []byte(`{not json`))
	require.Error(t, err)
}

func TestPutBumpsSequenceOnUpdate(t *testing.T) {
	s := openTestStore(t)

	first, err := s.Put("doc1", nil, []byte(`{"v": 1}`))
	require.NoError(t, err)
	second, err := s.Put("doc1", nil, []byte(`{"v": 2}`))
	require.NoError(t, err)
	require.Greater(t, second.Sequence, first.Sequence)

	got, err := s.Get("doc1")
	require.NoError(t, err)
	require.Equal(t, second.Sequence, got.Sequence)

	// The old revision is gone.
	_, err = s.GetBySequence(first.Sequence)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Put("doc1", nil, []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, s.Delete("doc1"))

	_, err = s.Get("doc1")
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, s.Delete("doc1"), ErrNotFound)
}

func TestRegisteredFunctions(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Put("doc1", nil, []byte(`{"name": "jens", "n": 3, "ok": true, "tags": ["a", "b"]}`))
	require.NoError(t, err)

	var name string
	err = s.DB().QueryRow(`SELECT fl_value(body, 'name') FROM kv_default`).Scan(&name)
	require.NoError(t, err)
	require.Equal(t, "jens", name)

	var n int64
	err = s.DB().QueryRow(`SELECT fl_value(body, 'n') FROM kv_default`).Scan(&n)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	var ok int64
	err = s.DB().QueryRow(`SELECT fl_value(body, 'ok') FROM kv_default`).Scan(&ok)
	require.NoError(t, err)
	require.Equal(t, int64(1), ok)

	var exists, missing int64
	err = s.DB().QueryRow(`SELECT fl_exists(body, 'name'), fl_exists(body, 'zzz') FROM kv_default`).Scan(&exists, &missing)
	require.NoError(t, err)
	require.Equal(t, int64(1), exists)
	require.Equal(t, int64(0), missing)

	var count int64
	err = s.DB().QueryRow(`SELECT fl_count(body, 'tags') FROM kv_default`).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	var indexed sql.NullString
	err = s.DB().QueryRow(`SELECT fl_value(body, 'tags[1]') FROM kv_default`).Scan(&indexed)
	require.NoError(t, err)
	require.Equal(t, "b", indexed.String)
}

func TestFullTextIndexLifecycle(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Put("doc1", nil, []byte(`{"text": "hello world"}`))
	require.NoError(t, err)

	has, err := s.HasFullTextIndex("text")
	require.NoError(t, err)
	require.False(t, has)

	mustFullTextIndex(t, s, "text")

	has, err = s.HasFullTextIndex("text")
	require.NoError(t, err)
	require.True(t, has)

	paths, err := s.FullTextIndexes()
	require.NoError(t, err)
	require.Equal(t, []string{"text"}, paths)

	// Creating again is a no-op.
	require.NoError(t, s.CreateFullTextIndex("text"))

	// Backfilled rows are keyed by sequence.
	var seq int64
	err = s.DB().QueryRow(`SELECT rowid FROM "kv_default::text" WHERE text MATCH 'hello'`).Scan(&seq)
	require.NoError(t, err)
	require.Equal(t, int64(1), seq)

	require.NoError(t, s.DropFullTextIndex("text"))
	require.ErrorIs(t, s.DropFullTextIndex("text"), ErrNoSuchIndex)
}

func TestFullTextIndexTracksRevisions(t *testing.T) {
	s := openTestStore(t)
	mustFullTextIndex(t, s, "text")

	rec, err := s.Put("doc1", nil, []byte(`{"text": "first words"}`))
	require.NoError(t, err)

	var n int
	err = s.DB().QueryRow(`SELECT count(*) FROM "kv_default::text" WHERE rowid = ?`, rec.Sequence).Scan(&n)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	updated, err := s.Put("doc1", nil, []byte(`{"text": "second words"}`))
	require.NoError(t, err)

	err = s.DB().QueryRow(`SELECT count(*) FROM "kv_default::text" WHERE rowid = ?`, rec.Sequence).Scan(&n)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	err = s.DB().QueryRow(`SELECT count(*) FROM "kv_default::text" WHERE rowid = ?`, updated.Sequence).Scan(&n)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, s.Delete("doc1"))
	err = s.DB().QueryRow(`SELECT count(*) FROM "kv_default::text"`).Scan(&n)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
