package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/loftdb/loft/internal/sqlutil"
	"github.com/loftdb/loft/internal/value"
)

// ftsTableName returns the virtual table backing a property's
// full-text index. The name embeds the property path, so it is always
// double-quoted in SQL.
func (s *Store) ftsTableName(propertyPath string) string {
	return s.tableName + "::" + propertyPath
}

// CreateFullTextIndex creates a full-text index on a document property
// and backfills it from the existing documents. Creating an index that
// already exists is a no-op.
func (s *Store) CreateFullTextIndex(propertyPath string) error {
	exists, err := s.HasFullTextIndex(propertyPath)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ftsTable := s.ftsTableName(propertyPath)
	if _, err := tx.Exec(fmt.Sprintf(`CREATE VIRTUAL TABLE "%s" USING fts4(text)`, ftsTable)); err != nil {
		return fmt.Errorf("failed to create full-text index on %s: %w", propertyPath, err)
	}

	rows, err := tx.Query(fmt.Sprintf("SELECT sequence, body FROM %s", s.tableName))
	if err != nil {
		return err
	}
	type docRow struct {
		seq  int64
		body []byte
	}
	docs, err := sqlutil.ScanRows(rows, func(rows *sql.Rows) (docRow, error) {
		var d docRow
		err := rows.Scan(&d.seq, &d.body)
		return d, err
	})
	if err != nil {
		return err
	}
	for _, d := range docs {
		text, ok := indexableText(d.body, propertyPath)
		if !ok {
			continue
		}
		if _, err := tx.Exec(
			fmt.Sprintf(`INSERT INTO "%s" (rowid, text) VALUES (?, ?)`, ftsTable),
			d.seq, text); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	log.Infof("created full-text index on %s.%s", s.tableName, propertyPath)
	return nil
}

// DropFullTextIndex removes a property's full-text index.
func (s *Store) DropFullTextIndex(propertyPath string) error {
	exists, err := s.HasFullTextIndex(propertyPath)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNoSuchIndex
	}
	_, err = s.db.Exec(fmt.Sprintf(`DROP TABLE "%s"`, s.ftsTableName(propertyPath)))
	return err
}

// HasFullTextIndex reports whether a property has a full-text index.
func (s *Store) HasFullTextIndex(propertyPath string) (bool, error) {
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name = ?",
		s.ftsTableName(propertyPath)).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FullTextIndexes returns the indexed property paths, in name order.
func (s *Store) FullTextIndexes() ([]string, error) {
	// FTS4 creates shadow tables ("t::p_content" etc.); only the
	// virtual table itself names an index.
	rows, err := s.db.Query(
		"SELECT name FROM sqlite_master WHERE type='table' AND name LIKE ? AND sql LIKE 'CREATE VIRTUAL TABLE%' ORDER BY name",
		s.tableName+"::%")
	if err != nil {
		return nil, err
	}
	names, err := sqlutil.ScanRows(rows, func(rows *sql.Rows) (string, error) {
		var name string
		err := rows.Scan(&name)
		return name, err
	})
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(names))
	for _, name := range names {
		paths = append(paths, strings.TrimPrefix(name, s.tableName+"::"))
	}
	return paths, nil
}

// ftsIndexPathsTx lists indexed property paths on the transaction's
// connection, so write transactions see indexes they created
// themselves.
func (s *Store) ftsIndexPathsTx(tx *sql.Tx) ([]string, error) {
	rows, err := tx.Query(
		"SELECT name FROM sqlite_master WHERE type='table' AND name LIKE ? AND sql LIKE 'CREATE VIRTUAL TABLE%'",
		s.tableName+"::%")
	if err != nil {
		return nil, err
	}
	names, err := sqlutil.ScanRows(rows, func(rows *sql.Rows) (string, error) {
		var name string
		err := rows.Scan(&name)
		return name, err
	})
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(names))
	for _, name := range names {
		paths = append(paths, strings.TrimPrefix(name, s.tableName+"::"))
	}
	return paths, nil
}

// addFTSRows indexes a new revision's text under each full-text index.
func (s *Store) addFTSRows(tx *sql.Tx, seq int64, doc *value.Value) error {
	paths, err := s.ftsIndexPathsTx(tx)
	if err != nil {
		return err
	}
	for _, path := range paths {
		v, err := doc.Eval(path)
		if err != nil || v == nil {
			continue
		}
		text, ok := v.Str()
		if !ok {
			continue
		}
		if _, err := tx.Exec(
			fmt.Sprintf(`INSERT INTO "%s" (rowid, text) VALUES (?, ?)`, s.ftsTableName(path)),
			seq, text); err != nil {
			return err
		}
	}
	return nil
}

// removeFTSRows drops a revision's rows from every full-text index.
func (s *Store) removeFTSRows(tx *sql.Tx, seq int64) error {
	paths, err := s.ftsIndexPathsTx(tx)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if _, err := tx.Exec(
			fmt.Sprintf(`DELETE FROM "%s" WHERE rowid = ?`, s.ftsTableName(path)),
			seq); err != nil {
			return err
		}
	}
	return nil
}

// indexableText extracts the text a full-text index stores for a
// document body, if any.
func indexableText(body []byte, propertyPath string) (string, bool) {
	doc, err := value.Parse(body)
	if err != nil {
		return "", false
	}
	v, err := doc.Eval(propertyPath)
	if err != nil || v == nil {
		return "", false
	}
	return v.Str()
}
