package clipboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damacus/iron-explorer/internal/batch"
	"github.com/damacus/iron-explorer/internal/vfs"
)

func TestCopyAndCutReplaceWholesale(t *testing.T) {
	c := New()
	_, ok := c.Pending()
	assert.False(t, ok)

	c.Copy([]string{"a.txt", "b.txt"})
	c.Cut([]string{"c.txt"})

	st, ok := c.Pending()
	require.True(t, ok)
	assert.Equal(t, OpCut, st.Operation)
	assert.Equal(t, []string{"c.txt"}, st.Items)
	assert.Equal(t, batch.OpMove, st.BatchOperation())

	c.Copy(nil)
	_, ok = c.Pending()
	assert.False(t, ok, "an empty selection clears the clipboard")
}

func TestPendingReturnsCopy(t *testing.T) {
	c := New()
	items := []string{"a"}
	c.Copy(items)
	items[0] = "mutated"

	st, _ := c.Pending()
	st.Items[0] = "also mutated"

	again, _ := c.Pending()
	assert.Equal(t, []string{"a"}, again.Items)
}

func TestComputeDestinations(t *testing.T) {
	ds := ComputeDestinations([]string{"docs/a.txt", "b.txt", "docs/sub/"}, "archive/2024")
	assert.Equal(t, []batch.Descriptor{
		{Source: "docs/a.txt", Destination: "archive/2024/a.txt"},
		{Source: "b.txt", Destination: "archive/2024/b.txt"},
		{Source: "docs/sub/", Destination: "archive/2024/sub/"},
	}, ds)

	root := ComputeDestinations([]string{"docs/a.txt"}, "")
	assert.Equal(t, "a.txt", root[0].Destination)
}

func TestSettle(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(*Clipboard)
		summary *batch.Summary
		cleared bool
	}{
		{
			name:    "cut with zero failures clears",
			prepare: func(c *Clipboard) { c.Cut([]string{"a"}) },
			summary: &batch.Summary{Total: 1, Succeeded: 1},
			cleared: true,
		},
		{
			name:    "cut with a failure is retained",
			prepare: func(c *Clipboard) { c.Cut([]string{"a", "b"}) },
			summary: &batch.Summary{Total: 2, Succeeded: 1, Failed: 1},
			cleared: false,
		},
		{
			name:    "copy is never cleared",
			prepare: func(c *Clipboard) { c.Copy([]string{"a"}) },
			summary: &batch.Summary{Total: 1, Succeeded: 1},
			cleared: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			tt.prepare(c)
			assert.Equal(t, tt.cleared, c.Settle(tt.summary))
			_, pending := c.Pending()
			assert.Equal(t, !tt.cleared, pending)
		})
	}
}

func TestPlan_ExpandsFolders(t *testing.T) {
	entries := []vfs.FileEntry{
		{Key: "docs/a.txt"},
		{Key: "docs/sub/.keep"},
		{Key: "docs/sub/deep/b.txt"},
		{Key: "docsx/other.txt"},
		{Key: "top.txt"},
	}
	st := State{Operation: OpCopy, Items: []string{"docs/", "top.txt"}}

	ds, err := Plan(st, "backup", entries)
	require.NoError(t, err)
	assert.Equal(t, []batch.Descriptor{
		{Source: "docs/a.txt", Destination: "backup/docs/a.txt"},
		{Source: "docs/sub/.keep", Destination: "backup/docs/sub/.keep"},
		{Source: "docs/sub/deep/b.txt", Destination: "backup/docs/sub/deep/b.txt"},
		{Source: "top.txt", Destination: "backup/top.txt"},
	}, ds)
}

func TestPlan_IncludesFolderMarker(t *testing.T) {
	entries := []vfs.FileEntry{{Key: "src/"}, {Key: "src/one.txt"}, {Key: "dst/.keep"}}
	ds, err := Plan(State{Operation: OpCut, Items: []string{"src/"}}, "dst", entries)
	require.NoError(t, err)
	assert.Equal(t, []batch.Descriptor{
		{Source: "src/", Destination: "dst/src/"},
		{Source: "src/one.txt", Destination: "dst/src/one.txt"},
	}, ds)

	ds, err = Plan(State{Operation: OpCut, Items: []string{"marker/"}}, "", []vfs.FileEntry{{Key: "marker/"}})
	require.NoError(t, err)
	assert.Equal(t, []batch.Descriptor{{Source: "marker/", Destination: "marker/"}}, ds)
}

func TestPlan_DeduplicatesOverlappingItems(t *testing.T) {
	entries := []vfs.FileEntry{{Key: "docs/a.txt"}}
	ds, err := Plan(State{Operation: OpCut, Items: []string{"docs/", "docs/a.txt"}}, "", entries)
	require.NoError(t, err)
	assert.Len(t, ds, 1)
	assert.Equal(t, "docs/a.txt", ds[0].Destination)
}

func TestPlan_Empty(t *testing.T) {
	_, err := Plan(State{}, "x", nil)
	assert.Error(t, err)
}
