// Package models contains data structures used across handlers
package models

import (
	"strings"
	"time"

	"github.com/damacus/iron-explorer/internal/utils"
	"github.com/damacus/iron-explorer/internal/vfs"
)

// previewLimit caps the size of objects offered for inline preview
const previewLimit = 10 * 1024 * 1024

// ObjectInfo represents an object with display metadata
type ObjectInfo struct {
	Key           string    `json:"key"`
	DisplayName   string    `json:"displayName"`
	Size          int64     `json:"size"`
	FormattedSize string    `json:"formattedSize"`
	LastModified  time.Time `json:"lastModified"`
	ContentType   string    `json:"contentType"`
	ETag          string    `json:"etag,omitempty"`
	Category      string    `json:"category"`
	IsImage       bool      `json:"isImage"`
	IsText        bool      `json:"isText"`
	IsVideo       bool      `json:"isVideo"`
	IsArchive     bool      `json:"isArchive"`
	IsPreviewable bool      `json:"isPreviewable"`
}

// NewObjectInfo decorates a listing entry. A missing content type is
// guessed from the key.
func NewObjectInfo(e vfs.FileEntry) ObjectInfo {
	contentType := e.ContentType
	if contentType == "" {
		contentType = vfs.MimeType(e.Key)
	}
	return ObjectInfo{
		Key:           e.Key,
		DisplayName:   e.Name(),
		Size:          e.Size,
		FormattedSize: utils.FormatFileSize(e.Size),
		LastModified:  e.LastModified,
		ContentType:   contentType,
		ETag:          e.ETag,
		Category:      vfs.Category(e.Key),
		IsImage:       isImageType(contentType),
		IsText:        isTextType(contentType),
		IsVideo:       isVideoType(contentType),
		IsArchive:     isArchiveType(contentType, e.Key),
		IsPreviewable: isPreviewable(contentType, e.Size),
	}
}

// NewObjectInfos converts a slice of entries
func NewObjectInfos(entries []vfs.FileEntry) []ObjectInfo {
	out := make([]ObjectInfo, len(entries))
	for i, e := range entries {
		out[i] = NewObjectInfo(e)
	}
	return out
}

// FolderInfo represents a folder with recursive totals
type FolderInfo struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	Files         int    `json:"files"`
	Size          int64  `json:"size"`
	FormattedSize string `json:"formattedSize"`
}

// Breadcrumb for navigation
type Breadcrumb struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// NewBreadcrumbs converts path crumbs, prefixing the bucket root
func NewBreadcrumbs(root string, crumbs []vfs.Breadcrumb) []Breadcrumb {
	out := make([]Breadcrumb, 0, len(crumbs)+1)
	out = append(out, Breadcrumb{Name: root, Path: ""})
	for _, c := range crumbs {
		out = append(out, Breadcrumb{Name: c.Name, Path: c.Path})
	}
	return out
}

func isImageType(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}

func isTextType(contentType string) bool {
	return strings.HasPrefix(contentType, "text/") ||
		contentType == "application/json" ||
		contentType == "application/xml" ||
		contentType == "application/javascript"
}

func isVideoType(contentType string) bool {
	return strings.HasPrefix(contentType, "video/")
}

func isArchiveType(contentType string, key string) bool {
	switch vfs.Extension(key) {
	case "zip", "tar", "gz", "rar", "7z":
		return true
	}
	return contentType == "application/zip" ||
		contentType == "application/x-tar" ||
		contentType == "application/gzip"
}

func isPreviewable(contentType string, size int64) bool {
	if size > previewLimit {
		return false
	}
	return isImageType(contentType) || isTextType(contentType) || isVideoType(contentType)
}
