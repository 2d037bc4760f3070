package vfs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(ks ...string) []FileEntry {
	out := make([]FileEntry, len(ks))
	for i, k := range ks {
		out[i] = FileEntry{Key: k, Size: int64(i + 1)}
	}
	return out
}

func fileKeys(v DirectoryView) []string {
	out := make([]string, len(v.Files))
	for i, f := range v.Files {
		out[i] = f.Key
	}
	return out
}

func TestDerive_InfersFoldersWithoutPlaceholders(t *testing.T) {
	entries := keys("a/b/c.txt")

	root := Derive(entries, "")
	assert.Equal(t, []string{"a"}, root.Folders)
	assert.Empty(t, root.Files)

	a := Derive(entries, "a")
	assert.Equal(t, []string{"b"}, a.Folders)
	assert.Empty(t, a.Files)

	ab := Derive(entries, "a/b")
	assert.Empty(t, ab.Folders)
	require.Len(t, ab.Files, 1)
	assert.Equal(t, "c.txt", ab.Files[0].Name())
}

func TestDerive_IsIdempotent(t *testing.T) {
	entries := keys("docs/a.txt", "docs/b/c.txt", "root.txt", "photos/", "docs/z/.keep")

	first := Derive(entries, "docs")
	second := Derive(entries, "docs")

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"b", "z"}, first.Folders)
	assert.Equal(t, []string{"docs/a.txt"}, fileKeys(first))
}

func TestDerive_EdgeCases(t *testing.T) {
	tests := []struct {
		name        string
		entries     []FileEntry
		path        string
		wantFolders []string
		wantFiles   []string
	}{
		{
			name:        "trailing slash key is folder only",
			entries:     keys("photos/"),
			path:        "",
			wantFolders: []string{"photos"},
			wantFiles:   []string{},
		},
		{
			name:        "prefix object itself is not listed",
			entries:     keys("photos/", "photos/cat.png"),
			path:        "photos",
			wantFolders: []string{},
			wantFiles:   []string{"photos/cat.png"},
		},
		{
			name:        "placeholder-only folder still appears",
			entries:     keys("empty/.keep"),
			path:        "",
			wantFolders: []string{"empty"},
			wantFiles:   []string{},
		},
		{
			name:        "placeholder hidden inside its folder",
			entries:     keys("empty/.keep"),
			path:        "empty",
			wantFolders: []string{},
			wantFiles:   []string{},
		},
		{
			name:        "folders deduplicated",
			entries:     keys("a/1.txt", "a/2.txt", "a/b/3.txt"),
			path:        "",
			wantFolders: []string{"a"},
			wantFiles:   []string{},
		},
		{
			name:        "trailing slash on path tolerated",
			entries:     keys("a/1.txt"),
			path:        "a/",
			wantFolders: []string{},
			wantFiles:   []string{"a/1.txt"},
		},
		{
			name:        "sibling with shared name prefix excluded",
			entries:     keys("ab/1.txt", "a/2.txt"),
			path:        "a",
			wantFolders: []string{},
			wantFiles:   []string{"a/2.txt"},
		},
		{
			name:        "root files and folders sorted",
			entries:     keys("z/1", "b.txt", "a/2", "c.txt"),
			path:        "",
			wantFolders: []string{"a", "z"},
			wantFiles:   []string{"b.txt", "c.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Derive(tt.entries, tt.path)
			assert.Equal(t, tt.wantFolders, v.Folders)
			assert.Equal(t, tt.wantFiles, fileKeys(v))
		})
	}
}

func TestDirectoryView_Entries(t *testing.T) {
	v := Derive(keys("docs/a.txt", "docs/sub/b.txt"), "docs")
	entries := v.Entries()
	require.Len(t, entries, 2)

	folder, ok := entries[0].(Folder)
	require.True(t, ok)
	assert.Equal(t, Folder{Name: "sub", Path: "docs/sub"}, folder)

	file, ok := entries[1].(File)
	require.True(t, ok)
	assert.Equal(t, "a.txt", file.EntryName())
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "", Prefix(""))
	assert.Equal(t, "a/b/", Prefix("a/b"))
	assert.Equal(t, "a/b/", Prefix("/a/b/"))
	assert.Equal(t, "x.txt", Join("", "x.txt"))
	assert.Equal(t, "a/x.txt", Join("a", "x.txt"))
	assert.Equal(t, "c.txt", Basename("a/b/c.txt"))
	assert.Equal(t, "b", Basename("a/b/"))
	assert.Equal(t, "a/b", Parent("a/b/c.txt"))
	assert.Equal(t, "", Parent("c.txt"))
	assert.Equal(t, "a", Parent("a/b/"))
	assert.Equal(t, "docs/.keep", KeepKey("docs"))
	assert.Equal(t, ".keep", KeepKey(""))
}

func TestBreadcrumbs(t *testing.T) {
	assert.Empty(t, Breadcrumbs(""))
	assert.Equal(t, []Breadcrumb{
		{Name: "a", Path: "a"},
		{Name: "b", Path: "a/b"},
	}, Breadcrumbs("a/b/"))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a/b/c.txt", Sanitize(`\a\\b//c.txt`))
	assert.Equal(t, "what_is_this_.txt", Sanitize(`what<is>this?.txt`))
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("report.pdf"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName(".."))
	assert.False(t, ValidName("a/b"))
}

func TestAllFolders(t *testing.T) {
	got := AllFolders(keys("a/b/c.txt", "x.txt", "d/", "a/e/.keep"))
	assert.Equal(t, []string{"", "a", "a/b", "a/e", "d"}, got)
}

func TestFolderStats(t *testing.T) {
	entries := []FileEntry{
		{Key: "a/1.txt", Size: 10},
		{Key: "a/b/2.txt", Size: 5},
		{Key: "empty/.keep"},
		{Key: "top.txt", Size: 99},
	}
	stats := FolderStats(entries, "")
	assert.Equal(t, FolderStat{Files: 2, Size: 15}, stats["a"])
	assert.Equal(t, FolderStat{}, stats["empty"])
	_, ok := stats["top.txt"]
	assert.False(t, ok)
}

func TestDescendants(t *testing.T) {
	got := Descendants(keys("a/", "a/1", "a/b/2", "ab/3"), "a")
	require.Len(t, got, 3)
	assert.Equal(t, "a/", got[0].Key, "the folder marker moves with its folder")
	assert.Equal(t, "a/1", got[1].Key)
	assert.Equal(t, "a/b/2", got[2].Key)

	assert.Len(t, Descendants(keys("a/", "b"), ""), 2)
}

func TestFilter(t *testing.T) {
	entries := keys("Docs/Report.PDF", "img/cat.png")
	assert.Len(t, Filter(entries, ""), 2)
	got := Filter(entries, "report")
	require.Len(t, got, 1)
	assert.Equal(t, "Docs/Report.PDF", got[0].Key)
}

func TestSort(t *testing.T) {
	now := time.Now()
	files := []FileEntry{
		{Key: "b", Size: 3, LastModified: now},
		{Key: "A", Size: 1, LastModified: now.Add(time.Hour)},
		{Key: "c", Size: 2, LastModified: now.Add(-time.Hour)},
	}

	byName := Sort(files, SortByName, Ascending)
	assert.Equal(t, []string{"A", "b", "c"}, []string{byName[0].Key, byName[1].Key, byName[2].Key})

	bySize := Sort(files, SortBySize, Descending)
	assert.Equal(t, []string{"b", "c", "A"}, []string{bySize[0].Key, bySize[1].Key, bySize[2].Key})

	byDate := Sort(files, SortByDate, Ascending)
	assert.Equal(t, []string{"c", "b", "A"}, []string{byDate[0].Key, byDate[1].Key, byDate[2].Key})

	assert.Equal(t, "b", files[0].Key, "input is not modified")
}

func TestTree(t *testing.T) {
	nodes := Tree(keys("a/b.txt", "a/c/d.txt", "e.txt", "f/"))
	require.Len(t, nodes, 3)

	assert.Equal(t, "a", nodes[0].Name)
	assert.True(t, nodes[0].Folder)
	require.Len(t, nodes[0].Children, 2)
	assert.Equal(t, "a/b.txt", nodes[0].Children[0].Key)
	assert.Equal(t, "c", nodes[0].Children[1].Name)

	assert.Equal(t, "e.txt", nodes[1].Name)
	assert.False(t, nodes[1].Folder)

	assert.Equal(t, "f", nodes[2].Name)
	assert.True(t, nodes[2].Folder)
}

func TestMimeType(t *testing.T) {
	assert.Equal(t, "image/png", MimeType("a/b/Cat.PNG"))
	assert.Equal(t, "text/x-go", MimeType("main.go"))
	assert.Equal(t, "application/octet-stream", MimeType("README"))
	assert.Equal(t, "image", Category("x.jpeg"))
	assert.Equal(t, "other", Category("x.bin"))
}
