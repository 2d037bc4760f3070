package services

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/damacus/iron-explorer/internal/credentials"
	"github.com/damacus/iron-explorer/internal/errs"
	"github.com/damacus/iron-explorer/internal/vfs"
)

// MinioStorage implements Storage with minio-go. It is safe for
// concurrent use.
type MinioStorage struct {
	client *minio.Client
}

var _ Storage = (*MinioStorage)(nil)

// shouldUseSSL determines if SSL should be used based on the endpoint.
// Returns false for localhost, 127.0.0.1, and docker service names.
func shouldUseSSL(endpoint string) bool {
	if endpoint == "localhost:9000" || endpoint == "127.0.0.1:9000" {
		return false
	}
	// Docker service names (minio:9000, minio1:9000, ...) but not domains
	// like minio.example.com.
	if strings.HasPrefix(endpoint, "minio") && !strings.Contains(strings.Split(endpoint, ":")[0], ".") && strings.Contains(endpoint, ":9000") {
		return false
	}
	return true
}

// splitEndpoint turns a user-supplied endpoint into host[:port] and a TLS
// flag. An explicit scheme wins over the local-endpoint heuristic.
func splitEndpoint(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		host := strings.TrimSuffix(endpoint, "/")
		return host, shouldUseSSL(host), nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, errs.Wrap(errs.ErrKindInvalidInput, "invalid endpoint", err)
	}
	switch u.Scheme {
	case "http":
		return u.Host, false, nil
	case "https":
		return u.Host, true, nil
	}
	return "", false, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unsupported endpoint scheme %q", u.Scheme))
}

// NewMinioStorage creates a client for creds. No request is made.
func NewMinioStorage(creds credentials.Credentials) (*MinioStorage, error) {
	host, secure, err := splitEndpoint(creds.Endpoint)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  miniocreds.NewStaticV4(creds.AccessKeyID, creds.SecretAccessKey, ""),
		Secure: secure,
		Region: creds.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}
	return &MinioStorage{client: client}, nil
}

func fromMinio(obj minio.ObjectInfo) vfs.FileEntry {
	return vfs.FileEntry{
		Key:          obj.Key,
		Size:         obj.Size,
		LastModified: obj.LastModified,
		ContentType:  obj.ContentType,
		ETag:         strings.Trim(obj.ETag, `"`),
	}
}

// List pages with StartAfter: the continuation token is the last key of
// the previous page.
func (s *MinioStorage) List(ctx context.Context, bucket string, opts ListOptions) (ListResult, error) {
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultPageSize
	}

	// Stops the listing goroutine when we break early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make([]vfs.FileEntry, 0)
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:     opts.Prefix,
		Recursive:  true,
		StartAfter: opts.ContinuationToken,
	}) {
		if obj.Err != nil {
			return ListResult{}, mapMinioError(obj.Err, "failed to list objects")
		}
		entries = append(entries, fromMinio(obj))
		if len(entries) >= maxKeys {
			break
		}
	}

	res := ListResult{Entries: entries, Truncated: len(entries) >= maxKeys}
	if res.Truncated {
		res.ContinuationToken = entries[len(entries)-1].Key
	}
	return res, nil
}

func (s *MinioStorage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, vfs.FileEntry, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, vfs.FileEntry{}, mapMinioError(err, "failed to get object")
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, vfs.FileEntry{}, mapMinioError(err, "failed to stat object after get")
	}
	return obj, fromMinio(info), nil
}

func (s *MinioStorage) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (PutResult, error) {
	if contentType == "" {
		contentType = vfs.MimeType(key)
	}
	info, err := s.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return PutResult{}, mapMinioError(err, "failed to put object")
	}
	return PutResult{ETag: info.ETag}, nil
}

func (s *MinioStorage) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return mapMinioError(err, "failed to delete object")
	}
	return nil
}

func (s *MinioStorage) DeleteMany(ctx context.Context, bucket string, keys []string) (map[string]error, error) {
	objects := make(chan minio.ObjectInfo)
	go func() {
		defer close(objects)
		for _, k := range keys {
			select {
			case objects <- minio.ObjectInfo{Key: k}:
			case <-ctx.Done():
				return
			}
		}
	}()

	failed := make(map[string]error)
	for rerr := range s.client.RemoveObjects(ctx, bucket, objects, minio.RemoveObjectsOptions{}) {
		failed[rerr.ObjectName] = mapMinioError(rerr.Err, "failed to delete object")
	}
	if err := ctx.Err(); err != nil {
		return failed, mapContextError(err, "delete interrupted")
	}
	return failed, nil
}

func (s *MinioStorage) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dstBucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: srcBucket, Object: srcKey},
	)
	if err != nil {
		return mapMinioError(err, "failed to copy object")
	}
	return nil
}

func (s *MinioStorage) Head(ctx context.Context, bucket, key string) (vfs.FileEntry, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return vfs.FileEntry{}, mapMinioError(err, "failed to stat object")
	}
	return fromMinio(info), nil
}

func (s *MinioStorage) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, bucket, key, ttl, nil)
	if err != nil {
		return "", mapMinioError(err, "failed to generate presigned URL")
	}
	return u.String(), nil
}

func (s *MinioStorage) PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, bucket, key, ttl)
	if err != nil {
		return "", mapMinioError(err, "failed to generate presigned upload URL")
	}
	return u.String(), nil
}

// TestConnection lists at most one key to prove the credentials work.
func (s *MinioStorage) TestConnection(ctx context.Context, bucket string) error {
	_, err := s.List(ctx, bucket, ListOptions{MaxKeys: 1})
	return err
}
