package services

import (
	"context"
	"errors"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/minio/minio-go/v7"

	"github.com/damacus/iron-explorer/internal/errs"
)

func mapContextError(err error, msg string) error {
	switch {
	case errors.Is(err, context.Canceled):
		return errs.Wrap(errs.ErrKindCancelled, msg, err)
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	return nil
}

func kindForStatus(status int) (errs.ErrKind, bool) {
	switch status {
	case http.StatusNotFound:
		return errs.ErrKindNotFound, true
	case http.StatusForbidden, http.StatusUnauthorized:
		return errs.ErrKindPermissionDenied, true
	case http.StatusBadRequest:
		return errs.ErrKindInvalidInput, true
	}
	return errs.ErrKindUnknown, false
}

func kindForCode(code string) (errs.ErrKind, bool) {
	switch code {
	case "NoSuchBucket", "NoSuchKey", "NoSuchUpload", "NotFound":
		return errs.ErrKindNotFound, true
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return errs.ErrKindPermissionDenied, true
	case "InvalidBucketName", "InvalidObjectName", "KeyTooLongError":
		return errs.ErrKindInvalidInput, true
	case "RequestTimeout", "SlowDown":
		return errs.ErrKindTimeout, true
	}
	return errs.ErrKindUnknown, false
}

// mapMinioError translates a minio-go error into an *errs.Error.
func mapMinioError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if mapped := mapContextError(err, msg); mapped != nil {
		return mapped
	}

	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		if kind, ok := kindForStatus(resp.StatusCode); ok {
			return errs.Wrap(kind, msg, err)
		}
		if kind, ok := kindForCode(resp.Code); ok {
			return errs.Wrap(kind, msg, err)
		}
		return errs.Wrap(errs.ErrKindOperationFailed, msg, err)
	}
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// mapS3Error translates an AWS SDK error into an *errs.Error.
func mapS3Error(err error, msg string) error {
	if err == nil {
		return nil
	}
	if mapped := mapContextError(err, msg); mapped != nil {
		return mapped
	}

	var (
		noKey    *types.NoSuchKey
		noBucket *types.NoSuchBucket
		notFound *types.NotFound
	)
	if errors.As(err, &noKey) || errors.As(err, &noBucket) || errors.As(err, &notFound) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		if kind, ok := kindForStatus(respErr.HTTPStatusCode()); ok {
			return errs.Wrap(kind, msg, err)
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := kindForCode(apiErr.ErrorCode()); ok {
			return errs.Wrap(kind, msg, err)
		}
		return errs.Wrap(errs.ErrKindOperationFailed, msg, err)
	}
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
