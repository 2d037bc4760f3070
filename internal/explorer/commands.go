package explorer

import (
	"bytes"
	"context"
	"strings"

	"github.com/damacus/iron-explorer/internal/batch"
	"github.com/damacus/iron-explorer/internal/clipboard"
	"github.com/damacus/iron-explorer/internal/errs"
	"github.com/damacus/iron-explorer/internal/vfs"
)

// FolderContentType marks folder placeholder objects.
const FolderContentType = "application/x-directory"

func (w *Workspace) keysOrSelection(keys []string) []string {
	if len(keys) > 0 {
		return keys
	}
	return w.Selection()
}

// Copy puts keys, or the selection when keys is empty, on the clipboard.
func (w *Workspace) Copy(keys []string) clipboard.State {
	w.clipboard.Copy(w.keysOrSelection(keys))
	st, _ := w.clipboard.Pending()
	return st
}

// Cut marks keys, or the selection when keys is empty, for moving.
func (w *Workspace) Cut(keys []string) clipboard.State {
	w.clipboard.Cut(w.keysOrSelection(keys))
	st, _ := w.clipboard.Pending()
	return st
}

// Clipboard returns the pending clipboard.
func (w *Workspace) Clipboard() clipboard.State {
	st, _ := w.clipboard.Pending()
	return st
}

// ClearClipboard drops the pending clipboard.
func (w *Workspace) ClearClipboard() { w.clipboard.Clear() }

// Paste runs the pending clipboard into the current directory and
// refreshes the listing. A cut is cleared only if every item succeeded.
func (w *Workspace) Paste(ctx context.Context) (*batch.Summary, error) {
	clip, ok := w.clipboard.Pending()
	if !ok {
		return nil, errs.New(errs.ErrKindInvalidInput, "clipboard is empty")
	}
	b, st, err := w.Current(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := w.snapshot(ctx, b, st)
	if err != nil {
		return nil, err
	}
	hist, err := w.history.Initialize(b.ID, "")
	if err != nil {
		return nil, err
	}

	ds, err := clipboard.Plan(clip, hist.Current(), snap.Entries)
	if err != nil {
		return nil, err
	}
	summary, err := w.coordinator.Run(ctx, st, b.Credentials.Bucket, clip.BatchOperation(), ds)
	if err != nil {
		return nil, err
	}
	w.clipboard.Settle(summary)
	w.afterMutation(ctx, b, st)
	return summary, nil
}

// expand resolves folder keys to every object at or below them.
func expand(keys []string, entries []vfs.FileEntry) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool)
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, k := range keys {
		if !vfs.IsFolderKey(k) {
			add(k)
			continue
		}
		for _, e := range vfs.Descendants(entries, k) {
			add(e.Key)
		}
	}
	return out
}

// Delete removes keys, or the selection when keys is empty. Folder keys
// remove everything below them.
func (w *Workspace) Delete(ctx context.Context, keys []string) (*batch.Summary, error) {
	keys = w.keysOrSelection(keys)
	if len(keys) == 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, "nothing to delete")
	}
	b, st, err := w.Current(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := w.snapshot(ctx, b, st)
	if err != nil {
		return nil, err
	}

	targets := expand(keys, snap.Entries)
	if len(targets) == 0 {
		return &batch.Summary{Operation: batch.OpDelete}, nil
	}
	ds := make([]batch.Descriptor, len(targets))
	for i, k := range targets {
		ds[i] = batch.Descriptor{Source: k}
	}
	summary, err := w.coordinator.Run(ctx, st, b.Credentials.Bucket, batch.OpDelete, ds)
	if err != nil {
		return nil, err
	}
	w.ResetSelection()
	w.afterMutation(ctx, b, st)
	return summary, nil
}

// Rename moves key to newName within its directory. Renaming a folder
// moves every object below it.
func (w *Workspace) Rename(ctx context.Context, key, newName string) (*batch.Summary, error) {
	d, err := batch.Rename(key, newName)
	if err != nil {
		return nil, err
	}
	b, st, err := w.Current(ctx)
	if err != nil {
		return nil, err
	}

	ds := []batch.Descriptor{d}
	if vfs.IsFolderKey(key) {
		snap, err := w.snapshot(ctx, b, st)
		if err != nil {
			return nil, err
		}
		ds = ds[:0]
		for _, k := range expand([]string{key}, snap.Entries) {
			ds = append(ds, batch.Descriptor{Source: k, Destination: d.Destination + strings.TrimPrefix(k, key)})
		}
		if len(ds) == 0 {
			return nil, errs.New(errs.ErrKindNotFound, "folder is empty or missing: "+key)
		}
	}

	summary, err := w.coordinator.Run(ctx, st, b.Credentials.Bucket, batch.OpMove, ds)
	if err != nil {
		return nil, err
	}
	w.afterMutation(ctx, b, st)
	return summary, nil
}

// CreateFolder materialises name below the current directory with an
// empty placeholder object and returns the folder path.
func (w *Workspace) CreateFolder(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if !vfs.ValidName(name) {
		return "", errs.New(errs.ErrKindInvalidInput, "invalid folder name")
	}
	b, st, err := w.Current(ctx)
	if err != nil {
		return "", err
	}
	hist, err := w.history.Initialize(b.ID, "")
	if err != nil {
		return "", err
	}

	folder := vfs.Join(hist.Current(), name)
	if _, err := st.Put(ctx, b.Credentials.Bucket, vfs.KeepKey(folder), bytes.NewReader(nil), 0, FolderContentType); err != nil {
		return "", err
	}
	w.afterMutation(ctx, b, st)
	return folder, nil
}
