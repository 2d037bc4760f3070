package vfs

import (
	"regexp"
	"strings"
)

// Clean trims surrounding slashes. The root is "".
func Clean(path string) string {
	return strings.Trim(path, "/")
}

// Prefix turns a directory path into a listing prefix: "" for the root,
// otherwise the path with a single trailing slash.
func Prefix(path string) string {
	path = Clean(path)
	if path == "" {
		return ""
	}
	return path + "/"
}

// Join appends name to a directory path.
func Join(dir, name string) string {
	return Prefix(dir) + name
}

// Basename returns the final segment of key. A folder key ending in "/"
// yields the folder's own name.
func Basename(key string) string {
	key = strings.TrimSuffix(key, "/")
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[i+1:]
	}
	return key
}

// Parent returns the directory containing key, "" at the root.
func Parent(key string) string {
	key = strings.TrimSuffix(key, "/")
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[:i]
	}
	return ""
}

// IsFolderKey reports whether key names a folder rather than an object.
func IsFolderKey(key string) bool {
	return strings.HasSuffix(key, "/")
}

// KeepKey returns the placeholder key that materialises folder.
func KeepKey(folder string) string {
	return Join(folder, KeepName)
}

// Breadcrumb is one step of the path from the root to a directory.
type Breadcrumb struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Breadcrumbs lists every ancestor of path, root excluded, outermost first.
func Breadcrumbs(path string) []Breadcrumb {
	path = Clean(path)
	if path == "" {
		return []Breadcrumb{}
	}
	parts := strings.Split(path, "/")
	crumbs := make([]Breadcrumb, 0, len(parts))
	current := ""
	for _, part := range parts {
		if part == "" {
			continue
		}
		current = Join(current, part)
		crumbs = append(crumbs, Breadcrumb{Name: part, Path: current})
	}
	return crumbs
}

var (
	multiSlash   = regexp.MustCompile(`/+`)
	invalidChars = regexp.MustCompile(`[<>:"|?*]`)
)

// Sanitize normalises a user-supplied key.
func Sanitize(key string) string {
	key = strings.ReplaceAll(key, `\`, "/")
	key = multiSlash.ReplaceAllString(key, "/")
	key = strings.TrimLeft(key, "/")
	return invalidChars.ReplaceAllString(key, "_")
}

// ValidName reports whether name can be used as a single path segment.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
