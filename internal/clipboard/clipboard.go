// Package clipboard holds copy/cut selections and turns a paste into batch
// descriptors.
package clipboard

import (
	"strings"
	"sync"

	"github.com/damacus/iron-explorer/internal/batch"
	"github.com/damacus/iron-explorer/internal/errs"
	"github.com/damacus/iron-explorer/internal/vfs"
)

// Operation is the pending clipboard action.
type Operation string

const (
	OpCopy Operation = "copy"
	OpCut  Operation = "cut"
)

// State is a pending clipboard. Items are full object keys; folder items
// end in "/".
type State struct {
	Operation Operation `json:"operation"`
	Items     []string  `json:"items"`
}

// Empty reports whether nothing is pending.
func (s State) Empty() bool { return len(s.Items) == 0 }

// BatchOperation is the batch kind a paste of s runs.
func (s State) BatchOperation() batch.Operation {
	if s.Operation == OpCut {
		return batch.OpMove
	}
	return batch.OpCopy
}

// Clipboard is safe for concurrent use.
type Clipboard struct {
	mu    sync.Mutex
	state State
}

// New returns an empty Clipboard.
func New() *Clipboard {
	return &Clipboard{}
}

// Copy replaces the clipboard with a copy of items.
func (c *Clipboard) Copy(items []string) {
	c.set(OpCopy, items)
}

// Cut replaces the clipboard with items marked for moving.
func (c *Clipboard) Cut(items []string) {
	c.set(OpCut, items)
}

func (c *Clipboard) set(op Operation, items []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(items) == 0 {
		c.state = State{}
		return
	}
	c.state = State{Operation: op, Items: append([]string(nil), items...)}
}

// Clear drops any pending items.
func (c *Clipboard) Clear() {
	c.mu.Lock()
	c.state = State{}
	c.mu.Unlock()
}

// Pending returns the current state and whether it holds anything.
func (c *Clipboard) Pending() (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{Operation: c.state.Operation, Items: append([]string(nil), c.state.Items...)}
	return st, !st.Empty()
}

// Settle applies a finished paste. A cut is cleared only after a batch with
// no failures; a copy stays pending for repeated pastes.
func (c *Clipboard) Settle(s *batch.Summary) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Operation != OpCut || s == nil || s.Failed > 0 {
		return false
	}
	c.state = State{}
	return true
}

// Destination is where item lands when pasted into targetPath.
func Destination(item, targetPath string) string {
	dst := vfs.Join(targetPath, vfs.Basename(item))
	if vfs.IsFolderKey(item) {
		dst += "/"
	}
	return dst
}

// ComputeDestinations maps each item to target prefix + basename. Existing
// objects at a destination are not checked.
func ComputeDestinations(items []string, targetPath string) []batch.Descriptor {
	out := make([]batch.Descriptor, len(items))
	for i, item := range items {
		out[i] = batch.Descriptor{Source: item, Destination: Destination(item, targetPath)}
	}
	return out
}

// Plan builds the descriptors for pasting st into targetPath. Folder items
// expand into every entry at or below them, keeping their relative layout;
// an explicit folder marker maps onto the destination folder itself.
// A folder with no entries contributes nothing.
func Plan(st State, targetPath string, entries []vfs.FileEntry) ([]batch.Descriptor, error) {
	if st.Empty() {
		return nil, errs.New(errs.ErrKindInvalidInput, "clipboard is empty")
	}

	out := make([]batch.Descriptor, 0, len(st.Items))
	seen := make(map[string]bool)
	add := func(d batch.Descriptor) {
		if seen[d.Source] {
			return
		}
		seen[d.Source] = true
		out = append(out, d)
	}

	for _, item := range st.Items {
		if !vfs.IsFolderKey(item) {
			add(batch.Descriptor{Source: item, Destination: Destination(item, targetPath)})
			continue
		}
		base := Destination(item, targetPath)
		for _, e := range vfs.Descendants(entries, item) {
			add(batch.Descriptor{Source: e.Key, Destination: base + strings.TrimPrefix(e.Key, item)})
		}
	}
	return out, nil
}
