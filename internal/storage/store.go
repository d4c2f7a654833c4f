package storage

import (
	"context"
	"fmt"

	"github.com/skypro1111/form-relay-service/internal/config"
)

// Store persists submission entries
type Store interface {
	// Append merges entry into the persisted log. An entry whose timestamp is
	// already present is discarded in favour of the stored one.
	Append(ctx context.Context, entry Entry) error

	// Load returns the persisted log, newest entry first. A store that has
	// never been written yields an empty log.
	Load(ctx context.Context) (*Log, error)

	Close() error
}

// Open creates the backend selected by cfg
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendJSON, "":
		return NewJSONStore(cfg.Path), nil
	case config.BackendSQLite:
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
