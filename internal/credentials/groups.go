package credentials

import (
	"fmt"

	"github.com/damacus/iron-explorer/internal/errs"
	"github.com/damacus/iron-explorer/internal/kvstore"
)

// Groups returns every group ordered by Order.
func (r *Registry) Groups() ([]BucketGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadGroups()
}

// AddGroup inserts g or replaces the group with the same id. New groups
// get an id, the default color and the next order slot.
func (r *Registry) AddGroup(g BucketGroup) (BucketGroup, error) {
	if g.Name == "" {
		return BucketGroup{}, errs.New(errs.ErrKindInvalidInput, "group name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	groups, err := r.loadGroups()
	if err != nil {
		return BucketGroup{}, err
	}
	if g.Color == "" {
		g.Color = DefaultGroupColor
	}
	if i := groupIndex(groups, g.ID); i >= 0 {
		groups[i] = g
	} else {
		if g.ID == "" {
			g.ID = NewGroupID()
			g.Order = len(groups)
		}
		groups = append(groups, g)
	}
	if err := r.saveGroups(groups); err != nil {
		return BucketGroup{}, err
	}
	return g, nil
}

// RemoveGroup deletes group id and ungroups its members. Buckets are
// never removed.
func (r *Registry) RemoveGroup(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	groups, err := r.loadGroups()
	if err != nil {
		return err
	}
	i := groupIndex(groups, id)
	if i < 0 {
		return errs.New(errs.ErrKindNotFound, fmt.Sprintf("group %q not found", id))
	}
	groups = append(groups[:i], groups[i+1:]...)

	buckets, err := r.loadBuckets()
	if err != nil {
		return err
	}
	changed := false
	for j := range buckets {
		if buckets[j].GroupID == id {
			buckets[j].GroupID = ""
			changed = true
		}
	}
	if changed {
		if err := r.saveBuckets(buckets); err != nil {
			return err
		}
	}
	return r.saveGroups(groups)
}

// GroupView is a group with its member buckets.
type GroupView struct {
	Group   BucketGroup    `json:"group"`
	Buckets []BucketConfig `json:"buckets"`
}

// Layout is the sidebar arrangement of the registry.
type Layout struct {
	Groups    []GroupView    `json:"groups"`
	Ungrouped []BucketConfig `json:"ungrouped"`
}

// Grouped arranges buckets under their groups. Buckets referencing an
// unknown group are listed as ungrouped.
func (r *Registry) Grouped() (Layout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	groups, err := r.loadGroups()
	if err != nil {
		return Layout{}, err
	}
	buckets, err := r.loadBuckets()
	if err != nil {
		return Layout{}, err
	}

	layout := Layout{Groups: make([]GroupView, len(groups)), Ungrouped: []BucketConfig{}}
	index := make(map[string]int, len(groups))
	for i, g := range groups {
		layout.Groups[i] = GroupView{Group: g, Buckets: []BucketConfig{}}
		index[g.ID] = i
	}
	for _, b := range buckets {
		if i, ok := index[b.GroupID]; ok && b.GroupID != "" {
			layout.Groups[i].Buckets = append(layout.Groups[i].Buckets, b)
			continue
		}
		layout.Ungrouped = append(layout.Ungrouped, b)
	}
	return layout, nil
}

func (r *Registry) loadGroups() ([]BucketGroup, error) {
	var groups []BucketGroup
	found, err := kvstore.GetJSON(r.store, kvstore.KeyGroups, &groups)
	if err != nil {
		if !found {
			return nil, fmt.Errorf("loading groups: %w", err)
		}
		r.log.WarnWith("discarding malformed group list", err, nil)
		return []BucketGroup{}, nil
	}
	if groups == nil {
		groups = []BucketGroup{}
	}
	sortGroups(groups)
	return groups, nil
}

func (r *Registry) saveGroups(groups []BucketGroup) error {
	if err := kvstore.SetJSON(r.store, kvstore.KeyGroups, groups); err != nil {
		return fmt.Errorf("saving groups: %w", err)
	}
	return nil
}

func groupIndex(groups []BucketGroup, id string) int {
	if id == "" {
		return -1
	}
	for i, g := range groups {
		if g.ID == id {
			return i
		}
	}
	return -1
}
