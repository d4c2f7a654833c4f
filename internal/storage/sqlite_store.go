package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/skypro1111/form-relay-service/internal/form"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps the submission log in a SQLite table. It follows the
// JSON store's semantics: the first entry stored under a timestamp wins and
// Load returns the newest entry first.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite creates or opens the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &Error{Kind: KindOpen, Path: path, Err: err}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &Error{Kind: KindOpen, Path: path, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &Error{Kind: KindOpen, Path: path, Err: fmt.Errorf("failed to connect to database: %w", err)}
	}

	// The relay listener is the only writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, &Error{Kind: KindOpen, Path: path, Err: fmt.Errorf("failed to execute %q: %w", pragma, err)}
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, &Error{Kind: KindOpen, Path: path, Err: fmt.Errorf("failed to execute schema: %w", err)}
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Append inserts entry unless its timestamp is already stored
func (s *SQLiteStore) Append(ctx context.Context, entry Entry) error {
	fields, err := entry.Fields.MarshalJSON()
	if err != nil {
		return &Error{Kind: KindEncode, Path: s.path, Err: err}
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO submissions (ts, fields) VALUES (?, ?)",
		entry.Timestamp, string(fields),
	)
	if err != nil {
		return &Error{Kind: KindWrite, Path: s.path, Err: err}
	}

	return nil
}

// Load returns every stored entry, newest first
func (s *SQLiteStore) Load(ctx context.Context) (*Log, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT ts, fields FROM submissions ORDER BY seq DESC")
	if err != nil {
		return nil, &Error{Kind: KindRead, Path: s.path, Err: err}
	}
	defer rows.Close()

	log := NewLog()
	for rows.Next() {
		var (
			timestamp string
			raw       string
		)
		if err := rows.Scan(&timestamp, &raw); err != nil {
			return nil, &Error{Kind: KindRead, Path: s.path, Err: err}
		}

		var fields form.Fields
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, &Error{Kind: KindDecode, Path: s.path, Err: fmt.Errorf("entry %s: %w", timestamp, err)}
		}
		log.put(Entry{Timestamp: timestamp, Fields: fields})
	}

	if err := rows.Err(); err != nil {
		return nil, &Error{Kind: KindRead, Path: s.path, Err: err}
	}

	return log, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
