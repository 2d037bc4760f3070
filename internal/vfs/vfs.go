// Package vfs projects a flat object-key listing onto a folder hierarchy.
//
// Object stores have no directories; a folder here is any key prefix that
// ends in "/". Everything in this package is pure: the same inputs always
// yield the same view.
package vfs

import (
	"sort"
	"strings"
	"time"
)

// KeepName is the placeholder object written to materialise an empty folder.
const KeepName = ".keep"

// FileEntry is one object from a listing call.
type FileEntry struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	ContentType  string    `json:"contentType,omitempty"`
	ETag         string    `json:"etag,omitempty"`
}

// Name returns the last path segment of the key.
func (f FileEntry) Name() string {
	return Basename(f.Key)
}

// DirEntry is either a Folder or a File.
type DirEntry interface {
	EntryName() string
	isDirEntry()
}

// Folder is a derived directory with no object of its own.
type Folder struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// File is a direct child object of the viewed directory.
type File struct {
	FileEntry
}

func (f Folder) EntryName() string { return f.Name }
func (f File) EntryName() string   { return f.Name() }

func (Folder) isDirEntry() {}
func (File) isDirEntry()   {}

// DirectoryView is the content of one directory.
type DirectoryView struct {
	Path    string      `json:"path"`
	Folders []string    `json:"folders"`
	Files   []FileEntry `json:"files"`
}

// Entries returns folders first, then files, as tagged entries.
func (v DirectoryView) Entries() []DirEntry {
	out := make([]DirEntry, 0, len(v.Folders)+len(v.Files))
	for _, name := range v.Folders {
		out = append(out, Folder{Name: name, Path: Join(v.Path, name)})
	}
	for _, f := range v.Files {
		out = append(out, File{FileEntry: f})
	}
	return out
}

// Derive builds the view of path from a flat listing. Keys nested below
// path contribute their first segment as a folder; folders need no
// placeholder object. Keys outside path are ignored.
func Derive(entries []FileEntry, path string) DirectoryView {
	path = Clean(path)
	prefix := Prefix(path)

	seen := make(map[string]struct{})
	files := make([]FileEntry, 0)

	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		if prefix != "" && !strings.HasPrefix(e.Key, prefix) {
			continue
		}
		rel := strings.TrimPrefix(e.Key, prefix)
		if rel == "" {
			continue
		}
		if i := strings.IndexByte(rel, '/'); i >= 0 {
			if name := rel[:i]; name != "" {
				seen[name] = struct{}{}
			}
			continue
		}
		if rel == KeepName {
			continue
		}
		files = append(files, e)
	}

	folders := make([]string, 0, len(seen))
	for name := range seen {
		folders = append(folders, name)
	}
	sort.Strings(folders)

	return DirectoryView{Path: path, Folders: folders, Files: files}
}
