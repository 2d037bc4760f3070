package kvstore

import (
	"fmt"
	"io"

	"github.com/damacus/iron-explorer/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the store described by cfg. The returned closer releases
// any underlying database.
func Open(cfg config.StoreConfig) (Store, io.Closer, error) {
	var (
		store  Store
		closer io.Closer = nopCloser{}
	)

	switch cfg.Type {
	case "memory":
		store = NewMemoryStore()
	case "sqlite":
		db, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		store, closer = db, db
	default:
		return nil, nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}

	if cfg.SealKey != "" {
		sealer, err := NewSealer([]byte(cfg.SealKey))
		if err != nil {
			closer.Close()
			return nil, nil, err
		}
		store = NewSealedStore(store, sealer)
	}
	return store, closer, nil
}
