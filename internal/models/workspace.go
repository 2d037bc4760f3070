package models

import (
	"time"

	"github.com/damacus/iron-explorer/internal/clipboard"
	"github.com/damacus/iron-explorer/internal/credentials"
	"github.com/damacus/iron-explorer/internal/utils"
	"github.com/damacus/iron-explorer/internal/vfs"
)

// BucketInfo is a registry entry without its secret
type BucketInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	Color    string `json:"color,omitempty"`
	GroupID  string `json:"groupId,omitempty"`
	Bucket   string `json:"bucket"`
	Endpoint string `json:"endpoint"`
	Provider string `json:"provider,omitempty"`
	Current  bool   `json:"current"`
}

// NewBucketInfo strips credentials from b
func NewBucketInfo(b credentials.BucketConfig, currentID string) BucketInfo {
	return BucketInfo{
		ID:       b.ID,
		Name:     b.Name,
		Title:    b.Title(),
		Color:    b.Color,
		GroupID:  b.GroupID,
		Bucket:   b.Credentials.Bucket,
		Endpoint: b.Credentials.Endpoint,
		Provider: b.Credentials.Provider,
		Current:  b.ID != "" && b.ID == currentID,
	}
}

func newBucketInfos(buckets []credentials.BucketConfig, currentID string) []BucketInfo {
	out := make([]BucketInfo, len(buckets))
	for i, b := range buckets {
		out[i] = NewBucketInfo(b, currentID)
	}
	return out
}

// GroupInfo is a group with its member buckets
type GroupInfo struct {
	credentials.BucketGroup
	Buckets []BucketInfo `json:"buckets"`
}

// Sidebar is the grouped registry
type Sidebar struct {
	CurrentID string       `json:"currentId"`
	Groups    []GroupInfo  `json:"groups"`
	Ungrouped []BucketInfo `json:"ungrouped"`
}

// NewSidebar converts a registry layout
func NewSidebar(layout credentials.Layout, currentID string) Sidebar {
	s := Sidebar{
		CurrentID: currentID,
		Groups:    make([]GroupInfo, len(layout.Groups)),
		Ungrouped: newBucketInfos(layout.Ungrouped, currentID),
	}
	for i, g := range layout.Groups {
		s.Groups[i] = GroupInfo{BucketGroup: g.Group, Buckets: newBucketInfos(g.Buckets, currentID)}
	}
	return s
}

// DirectoryView is the rendered current directory
type DirectoryView struct {
	Bucket       BucketInfo      `json:"bucket"`
	Path         string          `json:"path"`
	Breadcrumbs  []Breadcrumb    `json:"breadcrumbs"`
	Folders      []FolderInfo    `json:"folders"`
	Files        []ObjectInfo    `json:"files"`
	Selection    []string        `json:"selection"`
	Clipboard    clipboard.State `json:"clipboard"`
	CanGoBack    bool            `json:"canGoBack"`
	CanGoForward bool            `json:"canGoForward"`
	Truncated    bool            `json:"truncated"`
	FetchedAt    time.Time       `json:"fetchedAt"`
}

// Folder converts one folder with its totals
func Folder(name, path string, files int, size int64) FolderInfo {
	return FolderInfo{Name: name, Path: path, Files: files, Size: size, FormattedSize: utils.FormatFileSize(size)}
}

// FileMetadata is the relay metadata payload
type FileMetadata struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	ContentType  string    `json:"contentType,omitempty"`
	ETag         string    `json:"etag,omitempty"`
}

// NewFileMetadata converts a listing entry
func NewFileMetadata(e vfs.FileEntry) FileMetadata {
	return FileMetadata{Key: e.Key, Size: e.Size, LastModified: e.LastModified, ContentType: e.ContentType, ETag: e.ETag}
}

// NewFileMetadatas converts a slice of entries
func NewFileMetadatas(entries []vfs.FileEntry) []FileMetadata {
	out := make([]FileMetadata, len(entries))
	for i, e := range entries {
		out[i] = NewFileMetadata(e)
	}
	return out
}
