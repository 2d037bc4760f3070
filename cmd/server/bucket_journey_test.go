package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damacus/iron-explorer/internal/config"
	"github.com/damacus/iron-explorer/internal/explorer"
	"github.com/damacus/iron-explorer/internal/kvstore"
	"github.com/damacus/iron-explorer/internal/logger"
	"github.com/damacus/iron-explorer/internal/services"
	"github.com/damacus/iron-explorer/internal/utils"
)

func newTestServer(t *testing.T) (*echo.Echo, *services.MemoryStorage) {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Type = "memory"
	cfg.Storage.DefaultProvider = services.ProviderMemory

	factory := services.NewFactory(services.ProviderMemory)
	d := deps{
		factory:   factory,
		workspace: explorer.New(kvstore.NewMemoryStore(), factory, cfg.Storage, logger.Nop()),
		log:       logger.Nop(),
	}
	return newServer(cfg, d), factory.Memory()
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func body(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func relayRequest(method, target string, r io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, r)
	req.Header.Set(utils.HeaderEndpoint, "memory://local")
	req.Header.Set(utils.HeaderAccessKeyID, "key")
	req.Header.Set(utils.HeaderSecretAccessKey, "secret")
	req.Header.Set(utils.HeaderBucket, "docs")
	req.Header.Set(utils.HeaderProvider, services.ProviderMemory)
	return req
}

func multipartBody(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestRelayJourney(t *testing.T) {
	e, mem := newTestServer(t)

	// Step A: upload
	buf, contentType := multipartBody(t, map[string]string{"key": "inbox/report.txt"}, "report.txt", "quarterly numbers")
	req := relayRequest(http.MethodPost, "/api/files", buf)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := serve(e, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "File uploaded successfully", body(t, rec)["message"])

	// Step B: list
	rec = serve(e, relayRequest(http.MethodGet, "/api/files?prefix=inbox/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	files := body(t, rec)["files"].([]interface{})
	require.Len(t, files, 1)
	assert.Equal(t, "inbox/report.txt", files[0].(map[string]interface{})["key"])

	// Step C: batch copy
	batchBody := `{"operation":"copy","files":[{"source":"inbox/report.txt","destination":"archive/report.txt"}]}`
	req = relayRequest(http.MethodPost, "/api/files/batch", strings.NewReader(batchBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = serve(e, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), body(t, rec)["success"])
	assert.Equal(t, []string{"archive/report.txt", "inbox/report.txt"}, mem.Keys("docs"))

	// Step D: presign and download
	rec = serve(e, relayRequest(http.MethodGet, "/api/files/presigned?key=archive/report.txt&expiresIn=120", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(120), body(t, rec)["expiresIn"])

	rec = serve(e, relayRequest(http.MethodGet, "/api/files/download?key=archive/report.txt", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "quarterly numbers", rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "report.txt")

	// Step E: delete
	rec = serve(e, relayRequest(http.MethodDelete, "/api/files?key=inbox/report.txt", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"archive/report.txt"}, mem.Keys("docs"))

	rec = serve(e, relayRequest(http.MethodGet, "/api/files/metadata?key=inbox/report.txt", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// csrfSession fetches a token and returns a request decorator carrying it.
func csrfSession(t *testing.T, e *echo.Echo) func(*http.Request) *http.Request {
	t.Helper()
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/workspace/csrf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	token, _ := body(t, rec)["csrfToken"].(string)
	require.NotEmpty(t, token)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == utils.CSRFCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	return func(req *http.Request) *http.Request {
		req.Header.Set(utils.HeaderCSRFToken, token)
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
		return req
	}
}

func jsonBody(method, target string, v interface{}) *http.Request {
	raw, _ := json.Marshal(v)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestWorkspaceJourney(t *testing.T) {
	e, mem := newTestServer(t)
	withToken := csrfSession(t, e)

	// Step A: connect
	rec := serve(e, withToken(jsonBody(http.MethodPost, "/api/workspace/buckets", map[string]string{
		"name":            "Media",
		"endpoint":        "memory://local",
		"accessKeyId":     "key",
		"secretAccessKey": "secret",
		"bucket":          "media",
		"provider":        services.ProviderMemory,
	})))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := body(t, rec)["id"].(string)

	_, err := mem.Put(context.Background(), "media", "cat.jpg", strings.NewReader("meow"), 4, "image/jpeg")
	require.NoError(t, err)

	// Step B: create a folder and upload into it
	rec = serve(e, withToken(jsonBody(http.MethodPost, "/api/workspace/folders", map[string]string{"name": "albums"})))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(e, withToken(jsonBody(http.MethodPost, "/api/workspace/open", map[string]string{"name": "albums"})))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "albums", body(t, rec)["path"])

	buf, contentType := multipartBody(t, nil, "dog.jpg", "woof")
	req := withToken(httptest.NewRequest(http.MethodPost, "/api/workspace/uploads", buf))
	req.Header.Set(echo.HeaderContentType, contentType)
	rec = serve(e, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, mem.Keys("media"), "albums/dog.jpg")

	// Step C: copy cat.jpg into albums
	rec = serve(e, withToken(jsonBody(http.MethodPost, "/api/workspace/clipboard/copy", map[string][]string{"keys": {"cat.jpg"}})))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = serve(e, withToken(httptest.NewRequest(http.MethodPost, "/api/workspace/clipboard/paste", nil)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/workspace/view?sort=name", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	view := body(t, rec)
	assert.Equal(t, "albums", view["path"])
	files := view["files"].([]interface{})
	require.Len(t, files, 2)
	assert.Equal(t, "albums/cat.jpg", files[0].(map[string]interface{})["key"])

	// Step D: back to the root
	rec = serve(e, withToken(httptest.NewRequest(http.MethodPost, "/api/workspace/back", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", body(t, rec)["path"])

	// Step E: eject the only bucket
	rec = serve(e, withToken(httptest.NewRequest(http.MethodDelete, "/api/workspace/buckets/"+id, nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body(t, rec)["loggedOut"])

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/workspace/view", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
