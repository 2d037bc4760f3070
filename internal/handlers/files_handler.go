package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/damacus/iron-explorer/internal/batch"
	"github.com/damacus/iron-explorer/internal/config"
	"github.com/damacus/iron-explorer/internal/credentials"
	"github.com/damacus/iron-explorer/internal/explorer"
	"github.com/damacus/iron-explorer/internal/logger"
	"github.com/damacus/iron-explorer/internal/models"
	"github.com/damacus/iron-explorer/internal/services"
	"github.com/damacus/iron-explorer/internal/utils"
	"github.com/damacus/iron-explorer/internal/vfs"
	"github.com/labstack/echo/v4"
)

// FilesHandler relays object operations for credentials supplied per
// request.
type FilesHandler struct {
	factory     services.StorageFactory
	coordinator *batch.Coordinator
	env         config.EnvCredentials
	storage     config.StorageConfig
	log         *logger.Logger
}

func NewFilesHandler(factory services.StorageFactory, coordinator *batch.Coordinator, env config.EnvCredentials, storage config.StorageConfig, log *logger.Logger) *FilesHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &FilesHandler{factory: factory, coordinator: coordinator, env: env, storage: storage, log: log}
}

func (h *FilesHandler) client(c echo.Context) (services.Storage, string, error) {
	creds, err := GetCredentials(c)
	if err != nil {
		return nil, "", err
	}
	st, err := h.factory.New(c.Request().Context(), *creds)
	if err != nil {
		return nil, "", echo.NewHTTPError(StatusFor(err), errorResponse{Error: "Invalid storage configuration", Message: err.Error()})
	}
	return st, creds.Bucket, nil
}

type listResponse struct {
	Files             []models.FileMetadata `json:"files"`
	ContinuationToken string                `json:"continuationToken,omitempty"`
	IsTruncated       bool                  `json:"isTruncated"`
}

// ListFiles returns one page of the bucket listing
func (h *FilesHandler) ListFiles(c echo.Context) error {
	st, bucket, err := h.client(c)
	if err != nil {
		return err
	}

	maxKeys := services.DefaultPageSize
	if raw := c.QueryParam("maxKeys"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return badRequest(c, "Invalid maxKeys")
		}
		maxKeys = n
	}
	if h.storage.MaxKeys > 0 && maxKeys > h.storage.MaxKeys {
		maxKeys = h.storage.MaxKeys
	}

	res, err := st.List(c.Request().Context(), bucket, services.ListOptions{
		Prefix:            c.QueryParam("prefix"),
		MaxKeys:           maxKeys,
		ContinuationToken: c.QueryParam("continuationToken"),
	})
	if err != nil {
		return respondError(c, err, "Failed to list files", "Bucket not found")
	}
	return c.JSON(http.StatusOK, listResponse{
		Files:             models.NewFileMetadatas(res.Entries),
		ContinuationToken: res.ContinuationToken,
		IsTruncated:       res.Truncated,
	})
}

// UploadFile stores the multipart "file" under "key"
func (h *FilesHandler) UploadFile(c echo.Context) error {
	st, bucket, err := h.client(c)
	if err != nil {
		return err
	}

	file, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "No file provided")
	}
	key := c.FormValue("key")
	if key == "" {
		return badRequest(c, "No key provided")
	}

	src, err := file.Open()
	if err != nil {
		return respondError(c, err, "Failed to upload file", "")
	}
	defer func() { _ = src.Close() }()

	contentType := file.Header.Get(echo.HeaderContentType)
	res, err := st.Put(c.Request().Context(), bucket, key, src, file.Size, contentType)
	if err != nil {
		return respondError(c, err, "Failed to upload file", "Bucket not found")
	}
	if contentType == "" {
		contentType = vfs.MimeType(key)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "File uploaded successfully",
		"file": models.FileMetadata{
			Key:          key,
			Size:         file.Size,
			LastModified: time.Now().UTC(),
			ContentType:  contentType,
			ETag:         res.ETag,
		},
	})
}

// DeleteFile removes ?key=
func (h *FilesHandler) DeleteFile(c echo.Context) error {
	st, bucket, err := h.client(c)
	if err != nil {
		return err
	}
	key := c.QueryParam("key")
	if key == "" {
		return badRequest(c, "No key provided")
	}
	if err := st.Delete(c.Request().Context(), bucket, key); err != nil {
		return respondError(c, err, "Failed to delete file", "File not found")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "File deleted successfully"})
}

// DownloadFile streams ?key= as an attachment
func (h *FilesHandler) DownloadFile(c echo.Context) error {
	st, bucket, err := h.client(c)
	if err != nil {
		return err
	}
	key := c.QueryParam("key")
	if key == "" {
		return badRequest(c, "No key provided")
	}

	rc, info, err := st.Get(c.Request().Context(), bucket, key)
	if err != nil {
		return respondError(c, err, "Failed to download file", "File not found")
	}
	defer func() { _ = rc.Close() }()
	return streamAttachment(c, key, info, rc)
}

// FileMetadata returns the head of ?key=
func (h *FilesHandler) FileMetadata(c echo.Context) error {
	st, bucket, err := h.client(c)
	if err != nil {
		return err
	}
	key := c.QueryParam("key")
	if key == "" {
		return badRequest(c, "No key provided")
	}
	info, err := st.Head(c.Request().Context(), bucket, key)
	if err != nil {
		return respondError(c, err, "Failed to get file metadata", "File not found")
	}
	return c.JSON(http.StatusOK, models.NewFileMetadata(info))
}

type presignResponse struct {
	URL          string      `json:"url"`
	Key          string      `json:"key"`
	ContentType  string      `json:"contentType,omitempty"`
	ExpiresIn    int64       `json:"expiresIn"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	Instructions interface{} `json:"instructions,omitempty"`
}

func (h *FilesHandler) ttl(d time.Duration) time.Duration {
	return explorer.ClampTTL(d, h.storage.PresignMaxTTL)
}

// PresignedDownload presigns ?key= after checking that it exists
func (h *FilesHandler) PresignedDownload(c echo.Context) error {
	st, bucket, err := h.client(c)
	if err != nil {
		return err
	}
	key := c.QueryParam("key")
	if key == "" {
		return badRequest(c, "No key provided")
	}
	ctx := c.Request().Context()
	if _, err := st.Head(ctx, bucket, key); err != nil {
		return respondError(c, err, "Failed to generate presigned URL", "File not found")
	}

	ttl := h.ttl(expiresIn(c.QueryParam("expiresIn"), h.storage.PresignTTL))
	url, err := st.PresignGet(ctx, bucket, key, ttl)
	if err != nil {
		return respondError(c, err, "Failed to generate presigned URL", "")
	}
	return c.JSON(http.StatusOK, presignResponse{
		URL:       url,
		Key:       key,
		ExpiresIn: int64(ttl / time.Second),
		ExpiresAt: time.Now().Add(ttl).UTC(),
	})
}

type presignUploadRequest struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// PresignedUpload presigns a PUT of body.key
func (h *FilesHandler) PresignedUpload(c echo.Context) error {
	st, bucket, err := h.client(c)
	if err != nil {
		return err
	}
	var req presignUploadRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Key == "" {
		return badRequest(c, "No key provided")
	}

	ttl := h.storage.PresignTTL
	if req.ExpiresIn > 0 {
		ttl = time.Duration(req.ExpiresIn) * time.Second
	}
	ttl = h.ttl(ttl)
	url, err := st.PresignPut(c.Request().Context(), bucket, req.Key, req.ContentType, ttl)
	if err != nil {
		return respondError(c, err, "Failed to generate presigned upload URL", "")
	}

	headers := map[string]string{}
	if req.ContentType != "" {
		headers[echo.HeaderContentType] = req.ContentType
	}
	return c.JSON(http.StatusOK, presignResponse{
		URL:         url,
		Key:         req.Key,
		ContentType: req.ContentType,
		ExpiresIn:   int64(ttl / time.Second),
		ExpiresAt:   time.Now().Add(ttl).UTC(),
		Instructions: map[string]interface{}{
			"method":  http.MethodPut,
			"headers": headers,
			"note":    "Upload file directly to this URL using PUT method",
		},
	})
}

type batchRequest struct {
	Operation string            `json:"operation"`
	Files     []json.RawMessage `json:"files"`
}

type batchFile struct {
	Key               string `json:"key"`
	Source            string `json:"source"`
	Destination       string `json:"destination"`
	SourceBucket      string `json:"sourceBucket"`
	DestinationBucket string `json:"destinationBucket"`
}

// descriptors accepts bare key strings, {key} objects and
// {source, destination} objects.
func (r batchRequest) descriptors() ([]batch.Descriptor, error) {
	out := make([]batch.Descriptor, len(r.Files))
	for i, raw := range r.Files {
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '"' {
			if err := json.Unmarshal(raw, &out[i].Source); err != nil {
				return nil, err
			}
			continue
		}
		var f batchFile
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, err
		}
		src := f.Source
		if src == "" {
			src = f.Key
		}
		out[i] = batch.Descriptor{
			Source:            src,
			Destination:       f.Destination,
			SourceBucket:      f.SourceBucket,
			DestinationBucket: f.DestinationBucket,
		}
	}
	return out, nil
}

// Batch runs delete, copy or move over many keys
func (h *FilesHandler) Batch(c echo.Context) error {
	st, bucket, err := h.client(c)
	if err != nil {
		return err
	}

	var req batchRequest
	if err := c.Bind(&req); err != nil || req.Operation == "" || req.Files == nil {
		return badRequest(c, "Invalid request body. Expected { operation, files }")
	}
	op, err := batch.ParseOperation(req.Operation)
	if err != nil {
		return badRequest(c, err.Error())
	}
	ds, err := req.descriptors()
	if err != nil {
		return badRequest(c, "Invalid request body. Expected { operation, files }")
	}

	summary, err := h.coordinator.Run(c.Request().Context(), st, bucket, op, ds)
	if err != nil {
		return respondError(c, err, "Failed to perform batch operation", "")
	}
	return c.JSON(http.StatusOK, batch.NewResponse(summary))
}

// TestConnection lists one key with the header credentials
func (h *FilesHandler) TestConnection(c echo.Context) error {
	hd := c.Request().Header
	creds := credentials.Credentials{
		Endpoint:        hd.Get(utils.HeaderEndpoint),
		AccessKeyID:     hd.Get(utils.HeaderAccessKeyID),
		SecretAccessKey: hd.Get(utils.HeaderSecretAccessKey),
		Bucket:          hd.Get(utils.HeaderBucket),
		Provider:        hd.Get(utils.HeaderProvider),
		Region:          hd.Get(utils.HeaderRegion),
	}
	if creds.Validate() != nil {
		return badRequest(c, "Missing credentials")
	}

	ctx := c.Request().Context()
	st, err := h.factory.New(ctx, creds)
	if err == nil {
		err = st.TestConnection(ctx, creds.Bucket)
	}
	if err != nil {
		h.log.WarnWith("connection test failed", err, map[string]interface{}{"bucket": creds.Bucket})
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "Connection failed", Message: err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// EnvCredentials exposes the server's configured credentials when every
// field is set
func (h *FilesHandler) EnvCredentials(c echo.Context) error {
	if !h.env.Complete() {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "Environment credentials not configured"})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"endpoint":        h.env.Endpoint,
		"accessKeyId":     h.env.AccessKeyID,
		"secretAccessKey": h.env.SecretAccessKey,
		"bucket":          h.env.Bucket,
	})
}

func streamAttachment(c echo.Context, key string, info vfs.FileEntry, rc io.Reader) error {
	name := vfs.Basename(key)
	if name == "" {
		name = "download"
	}
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if info.Size > 0 {
		header.Set(echo.HeaderContentLength, strconv.FormatInt(info.Size, 10))
	}
	return c.Stream(http.StatusOK, contentType, rc)
}
