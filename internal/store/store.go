// Package store implements the SQLite row store beneath the query
// engine: one documents table per store, full-text virtual tables for
// indexed properties, and the document-accessor SQL functions the
// compiled queries call.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/op/go-logging"
	_ "modernc.org/sqlite"

	"github.com/loftdb/loft/internal/value"
)

var log = logging.MustGetLogger("loft.store")

// DefaultTableName is the documents table used when none is
// configured.
const DefaultTableName = "kv_default"

// BodyColumnName is the column holding the encoded document body.
const BodyColumnName = "body"

var (
	// ErrNotFound indicates the requested record is not in the store.
	ErrNotFound = errors.New("record not found")
	// ErrNoSuchIndex indicates a query references a full-text property
	// that has no full-text index.
	ErrNoSuchIndex = errors.New("no such index")
)

// Record is one stored document revision.
type Record struct {
	Sequence int64
	Key      string
	Meta     []byte
	Body     []byte
}

// Store is a handle to one documents table in a SQLite file.
type Store struct {
	db        *sql.DB
	tableName string
}

// DB returns the underlying sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// TableName returns the backing documents table name.
func (s *Store) TableName() string {
	return s.tableName
}

// Open opens or creates a store at the given path using the default
// table name.
func Open(path string) (*Store, error) {
	return OpenTable(path, DefaultTableName)
}

// OpenTable opens or creates a store backed by the named table.
func OpenTable(path, tableName string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{db: db, tableName: tableName}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := fmt.Sprintf(`
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;

		CREATE TABLE IF NOT EXISTS %s (
			sequence INTEGER PRIMARY KEY AUTOINCREMENT,
			key      TEXT UNIQUE NOT NULL,
			meta     BLOB,
			body     BLOB
		);`, s.tableName)
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores a document body under a key, assigning the next sequence.
// An empty key gets a generated record ID. Returns the stored record.
func (s *Store) Put(key string, meta, body []byte) (Record, error) {
	if key == "" {
		key = uuid.NewString()
	}

	// Bodies must be valid JSON; the query runtime parses them.
	doc, err := value.Parse(body)
	if err != nil {
		return Record{}, fmt.Errorf("document body is not valid JSON: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Record{}, err
	}
	defer tx.Rollback()

	// A replaced revision leaves stale FTS rows behind; drop them
	// before the old sequence disappears.
	var oldSeq int64
	err = tx.QueryRow(fmt.Sprintf("SELECT sequence FROM %s WHERE key = ?", s.tableName), key).Scan(&oldSeq)
	switch {
	case err == nil:
		if err := s.removeFTSRows(tx, oldSeq); err != nil {
			return Record{}, err
		}
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE key = ?", s.tableName), key); err != nil {
			return Record{}, err
		}
	case errors.Is(err, sql.ErrNoRows):
		// new record
	default:
		return Record{}, err
	}

	res, err := tx.Exec(
		fmt.Sprintf("INSERT INTO %s (key, meta, body) VALUES (?, ?, ?)", s.tableName),
		key, meta, body)
	if err != nil {
		return Record{}, fmt.Errorf("failed to store document: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Record{}, err
	}

	if err := s.addFTSRows(tx, seq, doc); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(); err != nil {
		return Record{}, err
	}
	log.Debugf("put %s @%d (%d bytes)", key, seq, len(body))
	return Record{Sequence: seq, Key: key, Meta: meta, Body: body}, nil
}

// Get reads the current revision of a document by key.
func (s *Store) Get(key string) (Record, error) {
	return s.getWhere("key = ?", key)
}

// GetBySequence reads a document revision by its sequence.
func (s *Store) GetBySequence(seq int64) (Record, error) {
	return s.getWhere("sequence = ?", seq)
}

func (s *Store) getWhere(cond string, arg any) (Record, error) {
	var rec Record
	err := s.db.QueryRow(
		fmt.Sprintf("SELECT sequence, key, meta, body FROM %s WHERE %s", s.tableName, cond),
		arg).Scan(&rec.Sequence, &rec.Key, &rec.Meta, &rec.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Delete removes a document and its full-text rows.
func (s *Store) Delete(key string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRow(fmt.Sprintf("SELECT sequence FROM %s WHERE key = ?", s.tableName), key).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := s.removeFTSRows(tx, seq); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE key = ?", s.tableName), key); err != nil {
		return err
	}
	return tx.Commit()
}

// Compile prepares a SQL statement against the store, logging it the
// way the query engine expects.
func (s *Store) Compile(sqlStr string) (*sql.Stmt, error) {
	log.Debugf("compiled query: %s", sqlStr)
	stmt, err := s.db.Prepare(sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w (SQL: %s)", err, sqlStr)
	}
	return stmt, nil
}
