// Package mocks provides testify mocks of the storage contracts.
package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/damacus/iron-explorer/internal/credentials"
	"github.com/damacus/iron-explorer/internal/services"
	"github.com/damacus/iron-explorer/internal/vfs"
)

// MockStorage implements services.Storage.
type MockStorage struct {
	mock.Mock
}

var _ services.Storage = (*MockStorage)(nil)

func (m *MockStorage) List(ctx context.Context, bucket string, opts services.ListOptions) (services.ListResult, error) {
	args := m.Called(ctx, bucket, opts)
	return args.Get(0).(services.ListResult), args.Error(1)
}

func (m *MockStorage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, vfs.FileEntry, error) {
	args := m.Called(ctx, bucket, key)
	var rc io.ReadCloser
	if v := args.Get(0); v != nil {
		rc = v.(io.ReadCloser)
	}
	return rc, args.Get(1).(vfs.FileEntry), args.Error(2)
}

func (m *MockStorage) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (services.PutResult, error) {
	args := m.Called(ctx, bucket, key, r, size, contentType)
	return args.Get(0).(services.PutResult), args.Error(1)
}

func (m *MockStorage) Delete(ctx context.Context, bucket, key string) error {
	args := m.Called(ctx, bucket, key)
	return args.Error(0)
}

func (m *MockStorage) DeleteMany(ctx context.Context, bucket string, keys []string) (map[string]error, error) {
	args := m.Called(ctx, bucket, keys)
	var failures map[string]error
	if v := args.Get(0); v != nil {
		failures = v.(map[string]error)
	}
	return failures, args.Error(1)
}

func (m *MockStorage) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	args := m.Called(ctx, srcBucket, srcKey, dstBucket, dstKey)
	return args.Error(0)
}

func (m *MockStorage) Head(ctx context.Context, bucket, key string) (vfs.FileEntry, error) {
	args := m.Called(ctx, bucket, key)
	return args.Get(0).(vfs.FileEntry), args.Error(1)
}

func (m *MockStorage) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, bucket, key, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, bucket, key, contentType, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) TestConnection(ctx context.Context, bucket string) error {
	args := m.Called(ctx, bucket)
	return args.Error(0)
}

// MockFactory implements services.StorageFactory.
type MockFactory struct {
	mock.Mock
}

var _ services.StorageFactory = (*MockFactory)(nil)

func (m *MockFactory) New(ctx context.Context, creds credentials.Credentials) (services.Storage, error) {
	args := m.Called(ctx, creds)
	var st services.Storage
	if v := args.Get(0); v != nil {
		st = v.(services.Storage)
	}
	return st, args.Error(1)
}
