// Package services binds the object-storage capability used by the
// explorer to concrete S3-compatible backends.
package services

import (
	"context"
	"io"
	"time"

	"github.com/damacus/iron-explorer/internal/vfs"
)

// DefaultPageSize is the number of keys requested per listing call.
const DefaultPageSize = 1000

// ListOptions selects a page of a flat, recursive listing.
type ListOptions struct {
	Prefix            string
	MaxKeys           int
	ContinuationToken string
}

// ListResult is one page of a listing.
type ListResult struct {
	Entries           []vfs.FileEntry
	ContinuationToken string
	Truncated         bool
}

// PutResult describes a stored object.
type PutResult struct {
	ETag string
}

// Storage is the set of object operations the explorer needs. Every
// driver maps backend errors onto errs kinds; a missing key is always
// errs.ErrKindNotFound.
type Storage interface {
	List(ctx context.Context, bucket string, opts ListOptions) (ListResult, error)
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, vfs.FileEntry, error)
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (PutResult, error)
	Delete(ctx context.Context, bucket, key string) error
	// DeleteMany removes keys and reports failures per key. The returned
	// error is set only when the request as a whole could not be made.
	DeleteMany(ctx context.Context, bucket string, keys []string) (map[string]error, error)
	Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
	Head(ctx context.Context, bucket, key string) (vfs.FileEntry, error)
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error)
	TestConnection(ctx context.Context, bucket string) error
}

// ListAll follows continuation tokens until the listing ends or limit
// entries have been read. truncated reports that limit was hit.
func ListAll(ctx context.Context, st Storage, bucket, prefix string, pageSize, limit int) ([]vfs.FileEntry, bool, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	entries := make([]vfs.FileEntry, 0)
	token := ""
	for {
		want := pageSize
		if limit > 0 && limit-len(entries) < want {
			want = limit - len(entries)
		}
		page, err := st.List(ctx, bucket, ListOptions{
			Prefix:            prefix,
			MaxKeys:           want,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, false, err
		}
		entries = append(entries, page.Entries...)

		if !page.Truncated || page.ContinuationToken == "" {
			return entries, false, nil
		}
		if limit > 0 && len(entries) >= limit {
			return entries, true, nil
		}
		token = page.ContinuationToken
	}
}

const deleteBatchSize = 1000

func chunk(keys []string, size int) [][]string {
	var out [][]string
	for len(keys) > size {
		out = append(out, keys[:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}
