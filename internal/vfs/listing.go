package vfs

import (
	"sort"
	"strings"
)

// AllFolders returns every folder path implied by entries, including the
// root "", sorted. Used to offer copy and move destinations.
func AllFolders(entries []FileEntry) []string {
	seen := map[string]struct{}{"": {}}
	for _, e := range entries {
		dir := e.Key
		if !IsFolderKey(dir) {
			dir = Parent(dir)
		}
		for dir = Clean(dir); dir != ""; dir = Parent(dir) {
			if _, ok := seen[dir]; ok {
				break
			}
			seen[dir] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for dir := range seen {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}

// FolderStat aggregates the objects below one folder.
type FolderStat struct {
	Files int   `json:"files"`
	Size  int64 `json:"size"`
}

// FolderStats summarises each direct child folder of path. Placeholders
// keep a folder listed but are not counted as files.
func FolderStats(entries []FileEntry, path string) map[string]FolderStat {
	prefix := Prefix(path)
	stats := make(map[string]FolderStat)
	for _, e := range entries {
		if !strings.HasPrefix(e.Key, prefix) {
			continue
		}
		rel := strings.TrimPrefix(e.Key, prefix)
		i := strings.IndexByte(rel, '/')
		if i <= 0 {
			continue
		}
		name := rel[:i]
		st := stats[name]
		rest := rel[i+1:]
		if rest != "" && !IsFolderKey(rest) && Basename(rest) != KeepName {
			st.Files++
			st.Size += e.Size
		}
		stats[name] = st
	}
	return stats
}

// Descendants returns entries at or below folder: the folder's own marker
// object, placeholders and every nested key.
func Descendants(entries []FileEntry, folder string) []FileEntry {
	prefix := Prefix(folder)
	out := make([]FileEntry, 0)
	for _, e := range entries {
		if strings.HasPrefix(e.Key, prefix) {
			out = append(out, e)
		}
	}
	return out
}

// Filter keeps entries whose key contains query, ignoring case. An empty
// query keeps everything.
func Filter(entries []FileEntry, query string) []FileEntry {
	if query == "" {
		return entries
	}
	q := strings.ToLower(query)
	out := make([]FileEntry, 0)
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Key), q) {
			out = append(out, e)
		}
	}
	return out
}

// SortField selects the sort key.
type SortField string

const (
	SortByName SortField = "name"
	SortByDate SortField = "date"
	SortBySize SortField = "size"
)

// SortOrder is asc or desc.
type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

// Sort returns a sorted copy of files. Unknown fields sort by name.
func Sort(files []FileEntry, by SortField, order SortOrder) []FileEntry {
	out := make([]FileEntry, len(files))
	copy(out, files)

	less := func(a, b FileEntry) int {
		switch by {
		case SortByDate:
			return a.LastModified.Compare(b.LastModified)
		case SortBySize:
			switch {
			case a.Size < b.Size:
				return -1
			case a.Size > b.Size:
				return 1
			}
			return 0
		default:
			return strings.Compare(strings.ToLower(a.Key), strings.ToLower(b.Key))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		c := less(out[i], out[j])
		if order == Descending {
			return c > 0
		}
		return c < 0
	})
	return out
}

// Node is one element of a folder tree.
type Node struct {
	Name     string  `json:"name"`
	Key      string  `json:"key,omitempty"`
	Folder   bool    `json:"folder"`
	Children []*Node `json:"children,omitempty"`
}

// Tree nests entries into folders, preserving first-seen order.
func Tree(entries []FileEntry) []*Node {
	root := &Node{Folder: true}
	for _, e := range entries {
		parts := strings.Split(e.Key, "/")
		level := root
		for i, part := range parts {
			if part == "" {
				continue
			}
			isFile := i == len(parts)-1
			child := level.child(part, !isFile)
			if child == nil {
				child = &Node{Name: part, Folder: !isFile}
				if isFile {
					child.Key = e.Key
				}
				level.Children = append(level.Children, child)
			}
			level = child
		}
	}
	return root.Children
}

func (n *Node) child(name string, folder bool) *Node {
	for _, c := range n.Children {
		if c.Name == name && c.Folder == folder {
			return c
		}
	}
	return nil
}
