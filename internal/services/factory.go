package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/damacus/iron-explorer/internal/credentials"
	"github.com/damacus/iron-explorer/internal/errs"
)

// Provider names accepted in Credentials.Provider.
const (
	ProviderMinio  = "minio"
	ProviderS3     = "s3"
	ProviderR2     = "r2"
	ProviderMemory = "memory"
)

// StorageFactory creates authenticated storage clients.
type StorageFactory interface {
	New(ctx context.Context, creds credentials.Credentials) (Storage, error)
}

// Factory is the production StorageFactory. Credentials without a
// provider use DefaultProvider. Every "memory" connection shares one
// in-process store.
type Factory struct {
	DefaultProvider string

	once   sync.Once
	memory *MemoryStorage
}

var _ StorageFactory = (*Factory)(nil)

// NewFactory creates a Factory with the given default provider.
func NewFactory(defaultProvider string) *Factory {
	return &Factory{DefaultProvider: defaultProvider}
}

// Memory returns the shared in-process store.
func (f *Factory) Memory() *MemoryStorage {
	f.once.Do(func() { f.memory = NewMemoryStorage() })
	return f.memory
}

// Provider resolves which driver serves creds.
func (f *Factory) Provider(creds credentials.Credentials) string {
	if p := strings.ToLower(creds.Provider); p != "" {
		return p
	}
	if strings.Contains(creds.Endpoint, ".r2.cloudflarestorage.com") {
		return ProviderR2
	}
	if f.DefaultProvider != "" {
		return f.DefaultProvider
	}
	return ProviderMinio
}

func (f *Factory) New(ctx context.Context, creds credentials.Credentials) (Storage, error) {
	switch p := f.Provider(creds); p {
	case ProviderMinio:
		return NewMinioStorage(creds)
	case ProviderS3, ProviderR2:
		creds.Provider = p
		return NewS3Storage(ctx, creds)
	case ProviderMemory:
		mem := f.Memory()
		mem.CreateBucket(creds.Bucket)
		return mem, nil
	default:
		return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown storage provider %q", p))
	}
}
