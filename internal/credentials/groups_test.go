package credentials

import (
	"sync"
	"testing"

	"github.com/damacus/iron-explorer/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddGroup_DefaultsAndUpsert(t *testing.T) {
	r, _ := newRegistry(t)

	first, err := r.AddGroup(BucketGroup{Name: "Work"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, DefaultGroupColor, first.Color)
	assert.Equal(t, 0, first.Order)

	second, err := r.AddGroup(BucketGroup{Name: "Home"})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Order)

	first.Name = "Office"
	_, err = r.AddGroup(first)
	require.NoError(t, err)

	groups, err := r.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Office", groups[0].Name)
	assert.Equal(t, "Home", groups[1].Name)

	_, err = r.AddGroup(BucketGroup{})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestRemoveGroup_CascadesToBuckets(t *testing.T) {
	r, _ := newRegistry(t)
	addBuckets(t, r, "b", "other")
	g, err := r.AddGroup(BucketGroup{Name: "G"})
	require.NoError(t, err)

	require.NoError(t, r.UpdateBucketColor("b", "#00ff00"))
	require.NoError(t, r.UpdateBucketGroup("b", g.ID))
	before, _ := r.Bucket("b")
	require.Equal(t, g.ID, before.GroupID)

	require.NoError(t, r.RemoveGroup(g.ID))

	after, err := r.Bucket("b")
	require.NoError(t, err, "bucket must survive group deletion")
	assert.Empty(t, after.GroupID)

	before.GroupID = ""
	assert.Equal(t, before, after, "other fields unchanged")

	groups, _ := r.Groups()
	assert.Empty(t, groups)

	assert.True(t, errs.IsNotFound(r.RemoveGroup(g.ID)))
}

func TestUpdateBucketGroup(t *testing.T) {
	r, _ := newRegistry(t)
	addBuckets(t, r, "b")

	assert.True(t, errs.IsNotFound(r.UpdateBucketGroup("b", "group-nope")))

	g, _ := r.AddGroup(BucketGroup{Name: "G"})
	require.NoError(t, r.UpdateBucketGroup("b", g.ID))
	require.NoError(t, r.UpdateBucketGroup("b", ""))

	b, _ := r.Bucket("b")
	assert.Empty(t, b.GroupID)
}

func TestUpdateBucketGroup_ConcurrentRemoveNeverDangles(t *testing.T) {
	r, _ := newRegistry(t)
	addBuckets(t, r, "b")

	for i := 0; i < 25; i++ {
		g, err := r.AddGroup(BucketGroup{Name: "G"})
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.UpdateBucketGroup("b", g.ID)
		}()
		go func() {
			defer wg.Done()
			_ = r.RemoveGroup(g.ID)
		}()
		wg.Wait()

		b, err := r.Bucket("b")
		require.NoError(t, err)
		assert.Empty(t, b.GroupID, "bucket must not reference a removed group")
	}
}

func TestGrouped(t *testing.T) {
	r, _ := newRegistry(t)
	addBuckets(t, r, "a", "b", "c")
	work, _ := r.AddGroup(BucketGroup{Name: "Work"})
	home, _ := r.AddGroup(BucketGroup{Name: "Home"})
	require.NoError(t, r.UpdateBucketGroup("a", home.ID))
	require.NoError(t, r.UpdateBucketGroup("c", home.ID))

	layout, err := r.Grouped()
	require.NoError(t, err)
	require.Len(t, layout.Groups, 2)

	assert.Equal(t, work.ID, layout.Groups[0].Group.ID)
	assert.Empty(t, layout.Groups[0].Buckets)
	assert.Equal(t, home.ID, layout.Groups[1].Group.ID)
	require.Len(t, layout.Groups[1].Buckets, 2)
	assert.Equal(t, "a", layout.Groups[1].Buckets[0].ID)
	assert.Equal(t, "c", layout.Groups[1].Buckets[1].ID)

	require.Len(t, layout.Ungrouped, 1)
	assert.Equal(t, "b", layout.Ungrouped[0].ID)
}
