package services

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/damacus/iron-explorer/internal/credentials"
	"github.com/damacus/iron-explorer/internal/errs"
	"github.com/damacus/iron-explorer/internal/vfs"
)

// S3Storage implements Storage with the AWS SDK. It serves AWS itself,
// Cloudflare R2 and any S3-compatible endpoint that accepts path-style
// requests.
type S3Storage struct {
	client   *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
}

var _ Storage = (*S3Storage)(nil)

const defaultRegion = "us-east-1"

// NewS3Storage builds a client for creds.
func NewS3Storage(ctx context.Context, creds credentials.Credentials) (*S3Storage, error) {
	region := creds.Region
	if region == "" {
		region = defaultRegion
		if creds.Provider == ProviderR2 {
			region = "auto"
		}
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			creds.AccessKeyID,
			creds.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to load AWS config", err)
	}

	endpoint := creds.Endpoint
	if endpoint != "" && !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client:   client,
		presign:  s3.NewPresignClient(client),
		uploader: manager.NewUploader(client),
	}, nil
}

func (s *S3Storage) List(ctx context.Context, bucket string, opts ListOptions) (ListResult, error) {
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultPageSize
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(int32(maxKeys)),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return ListResult{}, mapS3Error(err, "failed to list objects")
	}

	entries := make([]vfs.FileEntry, 0, len(out.Contents))
	for _, obj := range out.Contents {
		entries = append(entries, vfs.FileEntry{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
			ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
		})
	}
	return ListResult{
		Entries:           entries,
		ContinuationToken: aws.ToString(out.NextContinuationToken),
		Truncated:         aws.ToBool(out.IsTruncated),
	}, nil
}

func (s *S3Storage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, vfs.FileEntry, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, vfs.FileEntry{}, mapS3Error(err, "failed to get object")
	}
	return out.Body, vfs.FileEntry{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
	}, nil
}

// Put streams through the upload manager, which switches to multipart
// for large bodies.
func (s *S3Storage) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (PutResult, error) {
	if contentType == "" {
		contentType = vfs.MimeType(key)
	}
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return PutResult{}, mapS3Error(err, "failed to put object")
	}
	return PutResult{ETag: strings.Trim(aws.ToString(out.ETag), `"`)}, nil
}

func (s *S3Storage) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapS3Error(err, "failed to delete object")
	}
	return nil
}

// DeleteMany issues DeleteObjects in batches of at most 1000 keys.
func (s *S3Storage) DeleteMany(ctx context.Context, bucket string, keys []string) (map[string]error, error) {
	failed := make(map[string]error)
	for _, batch := range chunk(keys, deleteBatchSize) {
		ids := make([]types.ObjectIdentifier, len(batch))
		for i, k := range batch {
			ids[i] = types.ObjectIdentifier{Key: aws.String(k)}
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			mapped := mapS3Error(err, "failed to delete objects")
			for _, k := range batch {
				failed[k] = mapped
			}
			continue
		}
		for _, e := range out.Errors {
			code := aws.ToString(e.Code)
			kind, ok := kindForCode(code)
			if !ok {
				kind = errs.ErrKindOperationFailed
			}
			failed[aws.ToString(e.Key)] = errs.New(kind, fmt.Sprintf("%s: %s", code, aws.ToString(e.Message)))
		}
	}
	return failed, nil
}

func copySource(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return bucket + "/" + strings.Join(parts, "/")
}

func (s *S3Storage) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource(srcBucket, srcKey)),
	})
	if err != nil {
		return mapS3Error(err, "failed to copy object")
	}
	return nil
}

func (s *S3Storage) Head(ctx context.Context, bucket, key string) (vfs.FileEntry, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return vfs.FileEntry{}, mapS3Error(err, "failed to stat object")
	}
	return vfs.FileEntry{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
	}, nil
}

func (s *S3Storage) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", mapS3Error(err, "failed to generate presigned URL")
	}
	return req.URL, nil
}

func (s *S3Storage) PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	req, err := s.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", mapS3Error(err, "failed to generate presigned upload URL")
	}
	return req.URL, nil
}

func (s *S3Storage) TestConnection(ctx context.Context, bucket string) error {
	_, err := s.List(ctx, bucket, ListOptions{MaxKeys: 1})
	return err
}
