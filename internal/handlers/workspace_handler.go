package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/damacus/iron-explorer/internal/batch"
	"github.com/damacus/iron-explorer/internal/credentials"
	"github.com/damacus/iron-explorer/internal/explorer"
	"github.com/damacus/iron-explorer/internal/logger"
	"github.com/damacus/iron-explorer/internal/models"
	"github.com/damacus/iron-explorer/internal/theme"
	"github.com/damacus/iron-explorer/internal/utils"
	"github.com/damacus/iron-explorer/internal/vfs"
	"github.com/labstack/echo/v4"
)

// csrfContextKey is where echo's CSRF middleware stores the token
const csrfContextKey = "csrf"

// WorkspaceHandler serves the stored-bucket explorer
type WorkspaceHandler struct {
	ws  *explorer.Workspace
	log *logger.Logger
}

func NewWorkspaceHandler(ws *explorer.Workspace, log *logger.Logger) *WorkspaceHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WorkspaceHandler{ws: ws, log: log}
}

// CSRFToken hands the double-submit token to the client
func (h *WorkspaceHandler) CSRFToken(c echo.Context) error {
	token, _ := c.Get(csrfContextKey).(string)
	return c.JSON(http.StatusOK, map[string]string{"csrfToken": token})
}

// --- registry ---

func (h *WorkspaceHandler) sidebar() (models.Sidebar, error) {
	reg := h.ws.Registry()
	current, err := reg.CurrentBucketID()
	if err != nil {
		return models.Sidebar{}, err
	}
	layout, err := reg.Grouped()
	if err != nil {
		return models.Sidebar{}, err
	}
	return models.NewSidebar(layout, current), nil
}

// ListBuckets returns the grouped registry
func (h *WorkspaceHandler) ListBuckets(c echo.Context) error {
	s, err := h.sidebar()
	if err != nil {
		return respondError(c, err, "Failed to list buckets", "")
	}
	return c.JSON(http.StatusOK, s)
}

type connectRequest struct {
	Name            string `json:"name"`
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	Bucket          string `json:"bucket"`
	Region          string `json:"region"`
	Provider        string `json:"provider"`
	Color           string `json:"color"`
	GroupID         string `json:"groupId"`
}

// Connect tests and stores a bucket connection, making it current
func (h *WorkspaceHandler) Connect(c echo.Context) error {
	var req connectRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	b := credentials.BucketConfig{
		Name:    req.Name,
		Color:   req.Color,
		GroupID: req.GroupID,
		Credentials: credentials.Credentials{
			Endpoint:        req.Endpoint,
			AccessKeyID:     req.AccessKeyID,
			SecretAccessKey: req.SecretAccessKey,
			Bucket:          req.Bucket,
			Region:          req.Region,
			Provider:        req.Provider,
		},
	}
	saved, err := h.ws.Connect(c.Request().Context(), b)
	if err != nil {
		return respondError(c, err, "Connection failed", "")
	}
	return c.JSON(http.StatusCreated, models.NewBucketInfo(saved, saved.ID))
}

// SelectBucket switches the current bucket
func (h *WorkspaceHandler) SelectBucket(c echo.Context) error {
	b, err := h.ws.Switch(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err, "Failed to select bucket", "Bucket not found")
	}
	return c.JSON(http.StatusOK, models.NewBucketInfo(b, b.ID))
}

// DuplicateBucket copies a connection under a new id
func (h *WorkspaceHandler) DuplicateBucket(c echo.Context) error {
	reg := h.ws.Registry()
	b, err := reg.DuplicateBucket(c.Param("id"))
	if err != nil {
		return respondError(c, err, "Failed to duplicate bucket", "Bucket not found")
	}
	current, _ := reg.CurrentBucketID()
	return c.JSON(http.StatusCreated, models.NewBucketInfo(b, current))
}

type bucketPatch struct {
	Title   *string `json:"title"`
	Color   *string `json:"color"`
	GroupID *string `json:"groupId"`
}

// UpdateBucket changes the title, color or group of a bucket
func (h *WorkspaceHandler) UpdateBucket(c echo.Context) error {
	var req bucketPatch
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	id := c.Param("id")
	reg := h.ws.Registry()

	if req.Title != nil {
		if err := reg.UpdateBucketTitle(id, *req.Title); err != nil {
			return respondError(c, err, "Failed to update bucket", "Bucket not found")
		}
	}
	if req.Color != nil {
		if err := reg.UpdateBucketColor(id, *req.Color); err != nil {
			return respondError(c, err, "Failed to update bucket", "Bucket not found")
		}
	}
	if req.GroupID != nil {
		if err := reg.UpdateBucketGroup(id, *req.GroupID); err != nil {
			return respondError(c, err, "Failed to update bucket", "Bucket not found")
		}
	}

	b, err := reg.Bucket(id)
	if err != nil {
		return respondError(c, err, "Failed to update bucket", "Bucket not found")
	}
	current, _ := reg.CurrentBucketID()
	return c.JSON(http.StatusOK, models.NewBucketInfo(b, current))
}

// EjectBucket removes a bucket. Removing the last one logs the client out.
func (h *WorkspaceHandler) EjectBucket(c echo.Context) error {
	ej, err := h.ws.Eject(c.Param("id"))
	if errors.Is(err, credentials.ErrNoBuckets) {
		return c.JSON(http.StatusOK, map[string]interface{}{"loggedOut": true, "currentId": ""})
	}
	if err != nil {
		return respondError(c, err, "Failed to eject bucket", "Bucket not found")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"loggedOut":  false,
		"wasCurrent": ej.WasCurrent,
		"currentId":  ej.CurrentID,
	})
}

// CreateGroup adds or updates a sidebar group
func (h *WorkspaceHandler) CreateGroup(c echo.Context) error {
	var g credentials.BucketGroup
	if err := c.Bind(&g); err != nil {
		return badRequest(c, "Invalid request body")
	}
	saved, err := h.ws.Registry().AddGroup(g)
	if err != nil {
		return respondError(c, err, "Failed to save group", "")
	}
	return c.JSON(http.StatusCreated, saved)
}

// UpdateGroup upserts the group named by the path
func (h *WorkspaceHandler) UpdateGroup(c echo.Context) error {
	var g credentials.BucketGroup
	if err := c.Bind(&g); err != nil {
		return badRequest(c, "Invalid request body")
	}
	g.ID = c.Param("id")
	saved, err := h.ws.Registry().AddGroup(g)
	if err != nil {
		return respondError(c, err, "Failed to save group", "")
	}
	return c.JSON(http.StatusOK, saved)
}

// DeleteGroup removes a group, leaving its buckets ungrouped
func (h *WorkspaceHandler) DeleteGroup(c echo.Context) error {
	if err := h.ws.Registry().RemoveGroup(c.Param("id")); err != nil {
		return respondError(c, err, "Failed to delete group", "Group not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// Export writes the registry as YAML. Secrets are included only with
// ?secrets=true.
func (h *WorkspaceHandler) Export(c echo.Context) error {
	var buf bytes.Buffer
	if err := h.ws.Registry().Export(&buf, c.QueryParam("secrets") == "true"); err != nil {
		return respondError(c, err, "Failed to export buckets", "")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="buckets.yaml"`)
	return c.Blob(http.StatusOK, "application/yaml", buf.Bytes())
}

// Import merges a YAML registry document from the request body
func (h *WorkspaceHandler) Import(c echo.Context) error {
	n, err := h.ws.Registry().Import(c.Request().Body)
	if err != nil {
		return respondError(c, err, "Failed to import buckets", "")
	}
	return c.JSON(http.StatusOK, map[string]int{"imported": n})
}

// --- browsing ---

func directoryView(v explorer.View) models.DirectoryView {
	folders := make([]models.FolderInfo, len(v.Folders))
	for i, f := range v.Folders {
		folders[i] = models.Folder(f.Name, f.Path, f.Files, f.Size)
	}
	selection := v.Selection
	if selection == nil {
		selection = []string{}
	}
	return models.DirectoryView{
		Bucket:       models.NewBucketInfo(v.Bucket, v.Bucket.ID),
		Path:         v.Path,
		Breadcrumbs:  models.NewBreadcrumbs(v.Bucket.Title(), v.Breadcrumbs),
		Folders:      folders,
		Files:        models.NewObjectInfos(v.Files),
		Selection:    selection,
		Clipboard:    v.Clipboard,
		CanGoBack:    v.CanGoBack,
		CanGoForward: v.CanGoForward,
		Truncated:    v.Truncated,
		FetchedAt:    v.FetchedAt,
	}
}

func (h *WorkspaceHandler) respondView(c echo.Context, v explorer.View, err error) error {
	if err != nil {
		return respondError(c, err, "Failed to load directory", "Not found")
	}
	return c.JSON(http.StatusOK, directoryView(v))
}

func viewOptions(c echo.Context) (explorer.ViewOptions, error) {
	opts := explorer.ViewOptions{
		Query: c.QueryParam("q"),
		Sort:  vfs.SortByName,
		Order: vfs.Ascending,
	}
	switch s := vfs.SortField(c.QueryParam("sort")); s {
	case "":
	case vfs.SortByName, vfs.SortByDate, vfs.SortBySize:
		opts.Sort = s
	default:
		return opts, echo.NewHTTPError(http.StatusBadRequest, "Invalid sort field")
	}
	switch o := vfs.SortOrder(c.QueryParam("order")); o {
	case "":
	case vfs.Ascending, vfs.Descending:
		opts.Order = o
	default:
		return opts, echo.NewHTTPError(http.StatusBadRequest, "Invalid sort order")
	}
	return opts, nil
}

// View renders the current directory of the current bucket
func (h *WorkspaceHandler) View(c echo.Context) error {
	opts, err := viewOptions(c)
	if err != nil {
		return err
	}
	v, err := h.ws.View(c.Request().Context(), opts)
	return h.respondView(c, v, err)
}

// Refresh relists the current bucket
func (h *WorkspaceHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := h.ws.Refresh(ctx); err != nil {
		return respondError(c, err, "Failed to refresh bucket", "Bucket not found")
	}
	v, err := h.ws.View(ctx, explorer.ViewOptions{Sort: vfs.SortByName, Order: vfs.Ascending})
	return h.respondView(c, v, err)
}

type pathRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// Navigate jumps to body.path
func (h *WorkspaceHandler) Navigate(c echo.Context) error {
	var req pathRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	v, err := h.ws.Navigate(c.Request().Context(), req.Path)
	return h.respondView(c, v, err)
}

// Open enters the child folder body.name
func (h *WorkspaceHandler) Open(c echo.Context) error {
	var req pathRequest
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return badRequest(c, "No folder name provided")
	}
	v, err := h.ws.Open(c.Request().Context(), req.Name)
	return h.respondView(c, v, err)
}

func (h *WorkspaceHandler) Up(c echo.Context) error {
	v, err := h.ws.Up(c.Request().Context())
	return h.respondView(c, v, err)
}

func (h *WorkspaceHandler) Back(c echo.Context) error {
	v, err := h.ws.Back(c.Request().Context())
	return h.respondView(c, v, err)
}

func (h *WorkspaceHandler) Forward(c echo.Context) error {
	v, err := h.ws.Forward(c.Request().Context())
	return h.respondView(c, v, err)
}

// FolderList returns every folder of the bucket for destination pickers
func (h *WorkspaceHandler) FolderList(c echo.Context) error {
	folders, err := h.ws.Folders(c.Request().Context())
	if err != nil {
		return respondError(c, err, "Failed to list folders", "Bucket not found")
	}
	return c.JSON(http.StatusOK, map[string][]string{"folders": folders})
}

// Tree returns the bucket as nested folders
func (h *WorkspaceHandler) Tree(c echo.Context) error {
	tree, err := h.ws.Tree(c.Request().Context())
	if err != nil {
		return respondError(c, err, "Failed to build tree", "Bucket not found")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"tree": tree})
}

// --- selection and clipboard ---

type keysRequest struct {
	Keys []string `json:"keys"`
	Key  string   `json:"key"`
}

func selectionResponse(keys []string) map[string][]string {
	if keys == nil {
		keys = []string{}
	}
	return map[string][]string{"selection": keys}
}

// Selection returns the selected keys
func (h *WorkspaceHandler) Selection(c echo.Context) error {
	return c.JSON(http.StatusOK, selectionResponse(h.ws.Selection()))
}

// Select replaces the selection
func (h *WorkspaceHandler) Select(c echo.Context) error {
	var req keysRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	return c.JSON(http.StatusOK, selectionResponse(h.ws.Select(req.Keys)))
}

// ToggleSelection flips body.key in the selection
func (h *WorkspaceHandler) ToggleSelection(c echo.Context) error {
	var req keysRequest
	if err := c.Bind(&req); err != nil || req.Key == "" {
		return badRequest(c, "No key provided")
	}
	return c.JSON(http.StatusOK, selectionResponse(h.ws.ToggleSelection(req.Key)))
}

func (h *WorkspaceHandler) ClearSelection(c echo.Context) error {
	h.ws.ResetSelection()
	return c.JSON(http.StatusOK, selectionResponse(nil))
}

// Clipboard returns the pending copy or cut
func (h *WorkspaceHandler) Clipboard(c echo.Context) error {
	return c.JSON(http.StatusOK, h.ws.Clipboard())
}

// Copy puts body.keys, or the selection, on the clipboard
func (h *WorkspaceHandler) Copy(c echo.Context) error {
	var req keysRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	return c.JSON(http.StatusOK, h.ws.Copy(req.Keys))
}

// Cut marks body.keys, or the selection, for a move
func (h *WorkspaceHandler) Cut(c echo.Context) error {
	var req keysRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	return c.JSON(http.StatusOK, h.ws.Cut(req.Keys))
}

func (h *WorkspaceHandler) ClearClipboard(c echo.Context) error {
	h.ws.ClearClipboard()
	return c.JSON(http.StatusOK, h.ws.Clipboard())
}

// Paste applies the clipboard to the current directory
func (h *WorkspaceHandler) Paste(c echo.Context) error {
	summary, err := h.ws.Paste(c.Request().Context())
	if err != nil {
		return respondError(c, err, "Failed to paste", "")
	}
	return c.JSON(http.StatusOK, batch.NewResponse(summary))
}

// --- mutations ---

// Delete removes body.keys, or the selection. Folders are removed with
// everything under them.
func (h *WorkspaceHandler) Delete(c echo.Context) error {
	var req keysRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	summary, err := h.ws.Delete(c.Request().Context(), req.Keys)
	if err != nil {
		return respondError(c, err, "Failed to delete files", "")
	}
	return c.JSON(http.StatusOK, batch.NewResponse(summary))
}

type renameRequest struct {
	Key     string `json:"key"`
	NewName string `json:"newName"`
}

// Rename gives body.key the name body.newName in the same folder
func (h *WorkspaceHandler) Rename(c echo.Context) error {
	var req renameRequest
	if err := c.Bind(&req); err != nil || req.Key == "" {
		return badRequest(c, "No key provided")
	}
	summary, err := h.ws.Rename(c.Request().Context(), req.Key, req.NewName)
	if err != nil {
		return respondError(c, err, "Failed to rename", "File not found")
	}
	return c.JSON(http.StatusOK, batch.NewResponse(summary))
}

// CreateFolder adds body.name under the current directory
func (h *WorkspaceHandler) CreateFolder(c echo.Context) error {
	var req pathRequest
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return badRequest(c, "No folder name provided")
	}
	path, err := h.ws.CreateFolder(c.Request().Context(), req.Name)
	if err != nil {
		return respondError(c, err, "Failed to create folder", "")
	}
	return c.JSON(http.StatusCreated, map[string]string{"message": "Folder created successfully", "path": path})
}

// --- transfers ---

// Upload stores every multipart "file" part in the current directory
func (h *WorkspaceHandler) Upload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["file"]) == 0 {
		return badRequest(c, "No file provided")
	}

	ctx := c.Request().Context()
	results := make([]interface{}, 0, len(form.File["file"]))
	failed := 0
	for _, fh := range form.File["file"] {
		src, err := fh.Open()
		if err != nil {
			return respondError(c, err, "Failed to upload file", "")
		}
		t, err := h.ws.Upload(ctx, fh.Filename, src, fh.Size, fh.Header.Get(echo.HeaderContentType))
		_ = src.Close()
		if err != nil {
			failed++
			h.log.WarnWith("upload failed", err, map[string]interface{}{"file": fh.Filename})
			results = append(results, map[string]interface{}{"name": fh.Filename, "error": err.Error()})
			continue
		}
		results = append(results, t)
	}

	status := http.StatusOK
	if failed == len(results) {
		status = http.StatusBadGateway
	}
	return c.JSON(status, map[string]interface{}{
		"total":   len(results),
		"failed":  failed,
		"uploads": results,
	})
}

// Transfers lists tracked uploads and downloads
func (h *WorkspaceHandler) Transfers(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"transfers": h.ws.Transfers().List()})
}

// CancelTransfer aborts one transfer
func (h *WorkspaceHandler) CancelTransfer(c echo.Context) error {
	if !h.ws.CancelTransfer(c.Param("id")) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "Transfer not found"})
	}
	return c.NoContent(http.StatusNoContent)
}

// ClearTransfers forgets finished transfers
func (h *WorkspaceHandler) ClearTransfers(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]int{"cleared": h.ws.Transfers().ClearFinished()})
}

// Download streams ?key= from the current bucket
func (h *WorkspaceHandler) Download(c echo.Context) error {
	key := c.QueryParam("key")
	rc, info, _, err := h.ws.Download(c.Request().Context(), key)
	if err != nil {
		return respondError(c, err, "Failed to download file", "File not found")
	}
	defer func() { _ = rc.Close() }()
	return streamAttachment(c, key, info, rc)
}

type shareRequest struct {
	Key       string `json:"key"`
	ExpiresIn int64  `json:"expiresIn"`
}

// Share presigns a download link for body.key
func (h *WorkspaceHandler) Share(c echo.Context) error {
	var req shareRequest
	if err := c.Bind(&req); err != nil || req.Key == "" {
		return badRequest(c, "No key provided")
	}
	link, err := h.ws.Share(c.Request().Context(), req.Key, time.Duration(req.ExpiresIn)*time.Second)
	if err != nil {
		return respondError(c, err, "Failed to generate share link", "File not found")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"url":           link.URL,
		"key":           link.Key,
		"expiresIn":     int64(link.ExpiresIn.Seconds()),
		"expiresAt":     link.ExpiresAt,
		"expiresInText": utils.FormatExpiration(link.ExpiresIn),
	})
}

// --- theme ---

func (h *WorkspaceHandler) Theme(c echo.Context) error {
	t, err := h.ws.Theme()
	if err != nil {
		return respondError(c, err, "Failed to read theme", "")
	}
	return c.JSON(http.StatusOK, map[string]theme.Theme{"theme": t})
}

// SetTheme stores body.theme
func (h *WorkspaceHandler) SetTheme(c echo.Context) error {
	var req struct {
		Theme string `json:"theme"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	t, err := theme.Parse(req.Theme)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.ws.SetTheme(t); err != nil {
		return respondError(c, err, "Failed to save theme", "")
	}
	return c.JSON(http.StatusOK, map[string]theme.Theme{"theme": t})
}

func (h *WorkspaceHandler) ToggleTheme(c echo.Context) error {
	t, err := h.ws.ToggleTheme()
	if err != nil {
		return respondError(c, err, "Failed to save theme", "")
	}
	return c.JSON(http.StatusOK, map[string]theme.Theme{"theme": t})
}
