package services

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/damacus/iron-explorer/internal/errs"
	"github.com/damacus/iron-explorer/internal/vfs"
)

type memoryObject struct {
	data []byte
	info vfs.FileEntry
}

// MemoryStorage is an in-process Storage for development and tests.
// Buckets must be created before use.
type MemoryStorage struct {
	mu      sync.RWMutex
	buckets map[string]map[string]memoryObject
	now     func() time.Time
}

var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage returns an empty MemoryStorage with the given buckets.
func NewMemoryStorage(buckets ...string) *MemoryStorage {
	m := &MemoryStorage{
		buckets: make(map[string]map[string]memoryObject),
		now:     time.Now,
	}
	for _, b := range buckets {
		m.CreateBucket(b)
	}
	return m
}

// CreateBucket adds an empty bucket if it does not exist.
func (m *MemoryStorage) CreateBucket(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[name]; !ok {
		m.buckets[name] = make(map[string]memoryObject)
	}
}

// Keys returns every key in bucket, sorted.
func (m *MemoryStorage) Keys(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.buckets[bucket]))
	for k := range m.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *MemoryStorage) bucket(name string) (map[string]memoryObject, error) {
	b, ok := m.buckets[name]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, fmt.Sprintf("bucket %q not found", name))
	}
	return b, nil
}

func notFoundKey(key string) error {
	return errs.New(errs.ErrKindNotFound, fmt.Sprintf("object %q not found", key))
}

func (m *MemoryStorage) List(ctx context.Context, bucket string, opts ListOptions) (ListResult, error) {
	if err := ctx.Err(); err != nil {
		return ListResult{}, mapContextError(err, "list interrupted")
	}
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultPageSize
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.bucket(bucket)
	if err != nil {
		return ListResult{}, err
	}
	keys := make([]string, 0, len(b))
	for k := range b {
		if strings.HasPrefix(k, opts.Prefix) && k > opts.ContinuationToken {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	res := ListResult{Entries: make([]vfs.FileEntry, 0)}
	if len(keys) > maxKeys {
		keys = keys[:maxKeys]
		res.Truncated = true
		res.ContinuationToken = keys[len(keys)-1]
	}
	for _, k := range keys {
		res.Entries = append(res.Entries, b[k].info)
	}
	return res, nil
}

func (m *MemoryStorage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, vfs.FileEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.bucket(bucket)
	if err != nil {
		return nil, vfs.FileEntry{}, err
	}
	obj, ok := b[key]
	if !ok {
		return nil, vfs.FileEntry{}, notFoundKey(key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.info, nil
}

// Put reads r fully. A read error, including cancellation of the context
// feeding r, leaves the bucket untouched.
func (m *MemoryStorage) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (PutResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		if mapped := mapContextError(err, "upload interrupted"); mapped != nil {
			return PutResult{}, mapped
		}
		return PutResult{}, errs.Wrap(errs.ErrKindOperationFailed, "failed to read upload", err)
	}
	if err := ctx.Err(); err != nil {
		return PutResult{}, mapContextError(err, "upload interrupted")
	}
	if contentType == "" {
		contentType = vfs.MimeType(key)
	}
	sum := md5.Sum(data)
	etag := hex.EncodeToString(sum[:])

	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.bucket(bucket)
	if err != nil {
		return PutResult{}, err
	}
	b[key] = memoryObject{
		data: data,
		info: vfs.FileEntry{
			Key:          key,
			Size:         int64(len(data)),
			LastModified: m.now().UTC(),
			ContentType:  contentType,
			ETag:         etag,
		},
	}
	return PutResult{ETag: etag}, nil
}

// Delete of a missing key succeeds, as it does on S3.
func (m *MemoryStorage) Delete(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.bucket(bucket)
	if err != nil {
		return err
	}
	delete(b, key)
	return nil
}

func (m *MemoryStorage) DeleteMany(ctx context.Context, bucket string, keys []string) (map[string]error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.bucket(bucket)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		delete(b, k)
	}
	return map[string]error{}, nil
}

func (m *MemoryStorage) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.bucket(srcBucket)
	if err != nil {
		return err
	}
	dst, err := m.bucket(dstBucket)
	if err != nil {
		return err
	}
	obj, ok := src[srcKey]
	if !ok {
		return notFoundKey(srcKey)
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	info := obj.info
	info.Key = dstKey
	info.LastModified = m.now().UTC()
	dst[dstKey] = memoryObject{data: data, info: info}
	return nil
}

func (m *MemoryStorage) Head(ctx context.Context, bucket, key string) (vfs.FileEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.bucket(bucket)
	if err != nil {
		return vfs.FileEntry{}, err
	}
	obj, ok := b[key]
	if !ok {
		return vfs.FileEntry{}, notFoundKey(key)
	}
	return obj.info, nil
}

func (m *MemoryStorage) presign(method, bucket, key string, ttl time.Duration) string {
	q := url.Values{}
	q.Set("method", method)
	q.Set("expires", m.now().Add(ttl).UTC().Format(time.RFC3339))
	u := url.URL{Scheme: "memory", Host: bucket, Path: "/" + key, RawQuery: q.Encode()}
	return u.String()
}

func (m *MemoryStorage) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return m.presign("GET", bucket, key, ttl), nil
}

func (m *MemoryStorage) PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error) {
	return m.presign("PUT", bucket, key, ttl), nil
}

func (m *MemoryStorage) TestConnection(ctx context.Context, bucket string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.bucket(bucket)
	if err != nil {
		return errs.Wrap(errs.ErrKindConnectionFailed, "connection test failed", err)
	}
	return nil
}
