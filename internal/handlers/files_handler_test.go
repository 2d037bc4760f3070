package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/damacus/iron-explorer/internal/batch"
	"github.com/damacus/iron-explorer/internal/config"
	"github.com/damacus/iron-explorer/internal/credentials"
	"github.com/damacus/iron-explorer/internal/errs"
	"github.com/damacus/iron-explorer/internal/services"
	"github.com/damacus/iron-explorer/internal/services/mocks"
	"github.com/damacus/iron-explorer/internal/utils"
)

var relayCreds = credentials.Credentials{
	Endpoint:        "memory://local",
	AccessKeyID:     "key",
	SecretAccessKey: "secret",
	Bucket:          "docs",
	Provider:        services.ProviderMemory,
}

type filesFixture struct {
	e   *echo.Echo
	h   *FilesHandler
	mem *services.MemoryStorage
}

func newFilesFixture(t *testing.T, keys ...string) *filesFixture {
	t.Helper()
	factory := services.NewFactory(services.ProviderMemory)
	mem := factory.Memory()
	mem.CreateBucket(relayCreds.Bucket)
	for _, k := range keys {
		_, err := mem.Put(context.Background(), relayCreds.Bucket, k, strings.NewReader("content of "+k), int64(len("content of "+k)), "text/plain")
		require.NoError(t, err)
	}
	h := NewFilesHandler(factory, batch.NewCoordinator(2, nil), config.EnvCredentials{}, config.Default().Storage, nil)
	return &filesFixture{e: echo.New(), h: h, mem: mem}
}

func (f *filesFixture) do(req *http.Request, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	creds := relayCreds
	c.Set(utils.ContextKeyCreds, &creds)
	if err := handler(c); err != nil {
		f.e.HTTPErrorHandler(err, c)
	}
	return rec
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestFilesHandler_ListFiles(t *testing.T) {
	f := newFilesFixture(t, "a.txt", "dir/b.txt", "other/c.txt")

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/files?prefix=dir/", nil), f.h.ListFiles)
	require.Equal(t, http.StatusOK, rec.Code)

	var body listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Files, 1)
	assert.Equal(t, "dir/b.txt", body.Files[0].Key)
	assert.False(t, body.IsTruncated)
}

func TestFilesHandler_ListFiles_Pages(t *testing.T) {
	f := newFilesFixture(t, "a", "b", "c")

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/files?maxKeys=2", nil), f.h.ListFiles)
	require.Equal(t, http.StatusOK, rec.Code)
	var first listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Len(t, first.Files, 2)
	assert.True(t, first.IsTruncated)
	require.NotEmpty(t, first.ContinuationToken)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/files?maxKeys=2&continuationToken="+first.ContinuationToken, nil), f.h.ListFiles)
	var second listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.Len(t, second.Files, 1)
	assert.Equal(t, "c", second.Files[0].Key)
}

func TestFilesHandler_ListFiles_RejectsBadMaxKeys(t *testing.T) {
	f := newFilesFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/files?maxKeys=lots", nil), f.h.ListFiles)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func multipartRequest(t *testing.T, target string, fields map[string]string, filename, content string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.WriteString(part, content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestFilesHandler_UploadFile(t *testing.T) {
	f := newFilesFixture(t)

	req := multipartRequest(t, "/api/files", map[string]string{"key": "reports/q1.txt"}, "q1.txt", "quarterly")
	rec := f.do(req, f.h.UploadFile)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "File uploaded successfully", body["message"])
	assert.Equal(t, []string{"reports/q1.txt"}, f.mem.Keys(relayCreds.Bucket))
}

func TestFilesHandler_UploadFile_MissingParts(t *testing.T) {
	f := newFilesFixture(t)

	rec := f.do(multipartRequest(t, "/api/files", map[string]string{"key": "x"}, "", ""), f.h.UploadFile)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file provided", decode(t, rec)["error"])

	rec = f.do(multipartRequest(t, "/api/files", nil, "x.txt", "x"), f.h.UploadFile)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No key provided", decode(t, rec)["error"])
}

func TestFilesHandler_DeleteFile(t *testing.T) {
	f := newFilesFixture(t, "a.txt", "b.txt")

	rec := f.do(httptest.NewRequest(http.MethodDelete, "/api/files", nil), f.h.DeleteFile)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodDelete, "/api/files?key=a.txt", nil), f.h.DeleteFile)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "File deleted successfully", decode(t, rec)["message"])
	assert.Equal(t, []string{"b.txt"}, f.mem.Keys(relayCreds.Bucket))
}

func TestFilesHandler_DownloadFile(t *testing.T) {
	f := newFilesFixture(t, "dir/notes.txt")

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/files/download?key=dir/notes.txt", nil), f.h.DownloadFile)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "content of dir/notes.txt", rec.Body.String())
	assert.Equal(t, `attachment; filename=notes.txt`, rec.Header().Get(echo.HeaderContentDisposition))

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/files/download?key=missing", nil), f.h.DownloadFile)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "File not found", decode(t, rec)["error"])
}

func TestFilesHandler_FileMetadata(t *testing.T) {
	f := newFilesFixture(t, "a.txt")

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/files/metadata?key=a.txt", nil), f.h.FileMetadata)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "a.txt", body["key"])
	assert.Equal(t, float64(len("content of a.txt")), body["size"])
}

func TestFilesHandler_PresignedDownload(t *testing.T) {
	f := newFilesFixture(t, "a.txt")

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/files/presigned?key=missing", nil), f.h.PresignedDownload)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "File not found", decode(t, rec)["error"])

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/files/presigned?key=a.txt", nil), f.h.PresignedDownload)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(3600), body["expiresIn"])
	assert.Contains(t, body["url"], "memory://docs/a.txt")

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/files/presigned?key=a.txt&expiresIn=99999999", nil), f.h.PresignedDownload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(7*24*3600), decode(t, rec)["expiresIn"])
}

func TestFilesHandler_PresignedUpload(t *testing.T) {
	f := newFilesFixture(t)

	rec := f.do(jsonRequest(http.MethodPost, "/api/files/presigned", map[string]interface{}{
		"key":         "up.bin",
		"contentType": "application/octet-stream",
		"expiresIn":   600,
	}), f.h.PresignedUpload)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Contains(t, body["url"], "method=PUT")
	assert.Equal(t, float64(600), body["expiresIn"])
	instructions := body["instructions"].(map[string]interface{})
	assert.Equal(t, http.MethodPut, instructions["method"])

	rec = f.do(jsonRequest(http.MethodPost, "/api/files/presigned", map[string]interface{}{}), f.h.PresignedUpload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFilesHandler_PresignedUpload_DefaultTTLFromConfig(t *testing.T) {
	factory := services.NewFactory(services.ProviderMemory)
	factory.Memory().CreateBucket(relayCreds.Bucket)
	storage := config.Default().Storage
	storage.PresignTTL = 15 * time.Minute
	f := &filesFixture{
		e:   echo.New(),
		h:   NewFilesHandler(factory, batch.NewCoordinator(1, nil), config.EnvCredentials{}, storage, nil),
		mem: factory.Memory(),
	}

	rec := f.do(jsonRequest(http.MethodPost, "/api/files/presigned", map[string]interface{}{"key": "up.bin"}), f.h.PresignedUpload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(900), decode(t, rec)["expiresIn"])
}

func TestFilesHandler_FactoryErrorUsesKindStatus(t *testing.T) {
	factory := new(mocks.MockFactory)
	factory.On("New", mock.Anything, mock.Anything).
		Return(nil, errs.New(errs.ErrKindInvalidInput, "endpoint must use http or https"))
	f := &filesFixture{
		e: echo.New(),
		h: NewFilesHandler(factory, batch.NewCoordinator(1, nil), config.EnvCredentials{}, config.Default().Storage, nil),
	}

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/files", nil), f.h.ListFiles)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Invalid storage configuration", body["error"])
	assert.Contains(t, body["message"], "endpoint must use http or https")
}

func TestFilesHandler_Batch_AcceptsKeyFormats(t *testing.T) {
	f := newFilesFixture(t, "a", "b", "c")

	rec := f.do(jsonRequest(http.MethodPost, "/api/files/batch", map[string]interface{}{
		"operation": "delete",
		"files":     []interface{}{"a", map[string]string{"key": "b"}},
	}), f.h.Batch)
	require.Equal(t, http.StatusOK, rec.Code)

	var body batch.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Success)
	assert.Equal(t, "Batch delete completed", body.Message)
	assert.Equal(t, []string{"c"}, f.mem.Keys(relayCreds.Bucket))
}

func TestFilesHandler_Batch_Move(t *testing.T) {
	f := newFilesFixture(t, "a")

	rec := f.do(jsonRequest(http.MethodPost, "/api/files/batch", map[string]interface{}{
		"operation": "move",
		"files":     []map[string]string{{"source": "a", "destination": "archive/a"}},
	}), f.h.Batch)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"archive/a"}, f.mem.Keys(relayCreds.Bucket))
}

func TestFilesHandler_Batch_RejectsBadRequests(t *testing.T) {
	f := newFilesFixture(t)

	rec := f.do(jsonRequest(http.MethodPost, "/api/files/batch", map[string]interface{}{"operation": "delete"}), f.h.Batch)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(jsonRequest(http.MethodPost, "/api/files/batch", map[string]interface{}{
		"operation": "shred",
		"files":     []string{"a"},
	}), f.h.Batch)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "shred")
}

func connectionRequest(withBucket bool) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/files/test-connection", nil)
	req.Header.Set(utils.HeaderEndpoint, "https://acct.r2.cloudflarestorage.com")
	req.Header.Set(utils.HeaderAccessKeyID, "key")
	req.Header.Set(utils.HeaderSecretAccessKey, "secret")
	if withBucket {
		req.Header.Set(utils.HeaderBucket, "docs")
	}
	return req
}

func TestFilesHandler_TestConnection(t *testing.T) {
	st := new(mocks.MockStorage)
	factory := new(mocks.MockFactory)
	factory.On("New", mock.Anything, mock.Anything).Return(st, nil)
	st.On("TestConnection", mock.Anything, "docs").Return(nil).Once()
	st.On("TestConnection", mock.Anything, "docs").Return(errs.New(errs.ErrKindPermissionDenied, "access denied")).Once()

	h := NewFilesHandler(factory, batch.NewCoordinator(1, nil), config.EnvCredentials{}, config.Default().Storage, nil)
	e := echo.New()
	run := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		require.NoError(t, h.TestConnection(e.NewContext(req, rec)))
		return rec
	}

	rec := run(connectionRequest(false))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing credentials", decode(t, rec)["error"])

	rec = run(connectionRequest(true))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	rec = run(connectionRequest(true))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Connection failed", body["error"])
	assert.Contains(t, body["message"], "access denied")

	factory.AssertExpectations(t)
	st.AssertExpectations(t)
}

func TestFilesHandler_TestConnection_FactoryError(t *testing.T) {
	factory := new(mocks.MockFactory)
	factory.On("New", mock.Anything, mock.Anything).Return(nil, errors.New("bad endpoint"))
	h := NewFilesHandler(factory, batch.NewCoordinator(1, nil), config.EnvCredentials{}, config.Default().Storage, nil)

	e := echo.New()
	rec := httptest.NewRecorder()
	require.NoError(t, h.TestConnection(e.NewContext(connectionRequest(true), rec)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFilesHandler_EnvCredentials(t *testing.T) {
	e := echo.New()

	h := NewFilesHandler(services.NewFactory(services.ProviderMemory), nil, config.EnvCredentials{Endpoint: "x"}, config.Default().Storage, nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.EnvCredentials(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Environment credentials not configured", decode(t, rec)["error"])

	env := config.EnvCredentials{Endpoint: "https://e", AccessKeyID: "k", SecretAccessKey: "s", Bucket: "b"}
	h = NewFilesHandler(services.NewFactory(services.ProviderMemory), nil, env, config.Default().Storage, nil)
	rec = httptest.NewRecorder()
	require.NoError(t, h.EnvCredentials(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "b", decode(t, rec)["bucket"])
}

func TestFilesHandler_RequiresCredentials(t *testing.T) {
	f := newFilesFixture(t)
	rec := httptest.NewRecorder()
	c := f.e.NewContext(httptest.NewRequest(http.MethodGet, "/api/files", nil), rec)

	err := f.h.ListFiles(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}
