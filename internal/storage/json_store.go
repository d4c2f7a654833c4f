package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// JSONStore keeps the submission log in a single JSON file. Every Append
// reads the whole file, merges the new entry and rewrites the file in place.
// It does no locking: callers must serialize writers.
type JSONStore struct {
	path string
}

// NewJSONStore creates a store backed by the file at path. The file and its
// parent directory are created on the first Append.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the backing file path
func (s *JSONStore) Path() string {
	return s.path
}

// Append reads the log, merges entry in front of it and writes it back
func (s *JSONStore) Append(ctx context.Context, entry Entry) error {
	existing, err := s.Load(ctx)
	if err != nil {
		return err
	}

	data, err := Merge(entry, existing).Encode()
	if err != nil {
		return &Error{Kind: KindEncode, Path: s.path, Err: err}
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &Error{Kind: KindWrite, Path: s.path, Err: err}
		}
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return &Error{Kind: KindWrite, Path: s.path, Err: err}
	}

	return nil
}

// Load parses the file. A missing file is an empty log.
func (s *JSONStore) Load(ctx context.Context) (*Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewLog(), nil
	}
	if err != nil {
		return nil, &Error{Kind: KindRead, Path: s.path, Err: err}
	}

	log := NewLog()
	if err := json.Unmarshal(data, log); err != nil {
		return nil, &Error{Kind: KindDecode, Path: s.path, Err: err}
	}

	return log, nil
}

// Close is a no-op; the file is only held open during Append
func (s *JSONStore) Close() error {
	return nil
}
