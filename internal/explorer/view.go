package explorer

import (
	"context"
	"sort"
	"time"

	"github.com/damacus/iron-explorer/internal/clipboard"
	"github.com/damacus/iron-explorer/internal/credentials"
	"github.com/damacus/iron-explorer/internal/services"
	"github.com/damacus/iron-explorer/internal/vfs"
)

// ViewOptions filter and order the files of a directory view.
type ViewOptions struct {
	Query string
	Sort  vfs.SortField
	Order vfs.SortOrder
}

// FolderItem is a folder in a view with its recursive totals.
type FolderItem struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Files int    `json:"files"`
	Size  int64  `json:"size"`
}

// View is everything needed to render the current directory.
type View struct {
	Bucket       credentials.BucketConfig `json:"bucket"`
	Path         string                   `json:"path"`
	Breadcrumbs  []vfs.Breadcrumb         `json:"breadcrumbs"`
	Folders      []FolderItem             `json:"folders"`
	Files        []vfs.FileEntry          `json:"files"`
	Selection    []string                 `json:"selection"`
	Clipboard    clipboard.State          `json:"clipboard"`
	CanGoBack    bool                     `json:"canGoBack"`
	CanGoForward bool                     `json:"canGoForward"`
	Truncated    bool                     `json:"truncated"`
	FetchedAt    time.Time                `json:"fetchedAt"`
}

// View derives the current directory from the cached snapshot, listing
// the bucket first when no snapshot exists.
func (w *Workspace) View(ctx context.Context, opts ViewOptions) (View, error) {
	b, st, err := w.Current(ctx)
	if err != nil {
		return View{}, err
	}
	return w.view(ctx, b, st, opts)
}

func (w *Workspace) view(ctx context.Context, b credentials.BucketConfig, st services.Storage, opts ViewOptions) (View, error) {
	hist, err := w.history.Initialize(b.ID, "")
	if err != nil {
		return View{}, err
	}
	snap, err := w.snapshot(ctx, b, st)
	if err != nil {
		return View{}, err
	}

	path := hist.Current()
	dv := vfs.Derive(snap.Entries, path)
	stats := vfs.FolderStats(snap.Entries, path)

	folders := make([]FolderItem, len(dv.Folders))
	for i, name := range dv.Folders {
		s := stats[name]
		folders[i] = FolderItem{Name: name, Path: vfs.Join(path, name), Files: s.Files, Size: s.Size}
	}

	files := dv.Files
	if opts.Query != "" {
		files = vfs.Filter(files, opts.Query)
	}
	if opts.Sort != "" {
		files = vfs.Sort(files, opts.Sort, opts.Order)
	}

	clip, _ := w.clipboard.Pending()
	return View{
		Bucket:       b,
		Path:         dv.Path,
		Breadcrumbs:  vfs.Breadcrumbs(path),
		Folders:      folders,
		Files:        files,
		Selection:    w.Selection(),
		Clipboard:    clip,
		CanGoBack:    hist.CanGoBack(),
		CanGoForward: hist.CanGoForward(),
		Truncated:    snap.Truncated,
		FetchedAt:    snap.FetchedAt,
	}, nil
}

// CurrentPath returns the current directory of the active bucket.
func (w *Workspace) CurrentPath(ctx context.Context) (string, error) {
	b, err := w.registry.Reconcile()
	if err != nil {
		return "", err
	}
	st, err := w.history.Initialize(b.ID, "")
	if err != nil {
		return "", err
	}
	return st.Current(), nil
}

// Navigate records a visit to path and returns its view.
func (w *Workspace) Navigate(ctx context.Context, path string) (View, error) {
	b, st, err := w.Current(ctx)
	if err != nil {
		return View{}, err
	}
	before, _, err := w.history.CurrentPath(b.ID)
	if err != nil {
		return View{}, err
	}
	after, err := w.history.Push(b.ID, path)
	if err != nil {
		return View{}, err
	}
	if after.Current() != before {
		w.ResetSelection()
	}
	return w.view(ctx, b, st, ViewOptions{})
}

// Open descends into the folder name below the current directory.
func (w *Workspace) Open(ctx context.Context, name string) (View, error) {
	cur, err := w.CurrentPath(ctx)
	if err != nil {
		return View{}, err
	}
	return w.Navigate(ctx, vfs.Join(cur, name))
}

// Up navigates to the parent of the current directory. At the root it is
// a no-op.
func (w *Workspace) Up(ctx context.Context) (View, error) {
	cur, err := w.CurrentPath(ctx)
	if err != nil {
		return View{}, err
	}
	return w.Navigate(ctx, vfs.Parent(cur))
}

// Back steps back through history.
func (w *Workspace) Back(ctx context.Context) (View, error) {
	return w.step(ctx, w.history.Back)
}

// Forward steps forward through history.
func (w *Workspace) Forward(ctx context.Context) (View, error) {
	return w.step(ctx, w.history.Forward)
}

func (w *Workspace) step(ctx context.Context, move func(string) (string, bool, error)) (View, error) {
	b, st, err := w.Current(ctx)
	if err != nil {
		return View{}, err
	}
	if _, err := w.history.Initialize(b.ID, ""); err != nil {
		return View{}, err
	}
	_, moved, err := move(b.ID)
	if err != nil {
		return View{}, err
	}
	if moved {
		w.ResetSelection()
	}
	return w.view(ctx, b, st, ViewOptions{})
}

// Select replaces the selection with keys.
func (w *Workspace) Select(keys []string) []string {
	w.mu.Lock()
	w.selection = make(map[string]struct{}, len(keys))
	for _, k := range keys {
		w.selection[k] = struct{}{}
	}
	w.mu.Unlock()
	return w.Selection()
}

// ToggleSelection adds key to the selection or removes it.
func (w *Workspace) ToggleSelection(key string) []string {
	w.mu.Lock()
	if _, ok := w.selection[key]; ok {
		delete(w.selection, key)
	} else {
		w.selection[key] = struct{}{}
	}
	w.mu.Unlock()
	return w.Selection()
}

// Selection returns the selected keys in order.
func (w *Workspace) Selection() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.selection))
	for k := range w.selection {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ResetSelection empties the selection.
func (w *Workspace) ResetSelection() {
	w.mu.Lock()
	w.resetSelectionLocked()
	w.mu.Unlock()
}

func (w *Workspace) resetSelectionLocked() {
	w.selection = make(map[string]struct{})
}

// pruneSelectionLocked drops selected objects that no longer exist. Folder
// keys are kept while anything remains below them.
func (w *Workspace) pruneSelectionLocked(entries []vfs.FileEntry) {
	if len(w.selection) == 0 {
		return
	}
	live := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		live[e.Key] = struct{}{}
		for p := vfs.Parent(e.Key); p != ""; p = vfs.Parent(p) {
			live[vfs.Prefix(p)] = struct{}{}
		}
	}
	for k := range w.selection {
		if _, ok := live[k]; !ok {
			delete(w.selection, k)
		}
	}
}

// Folders lists every folder of the current bucket, root included, for
// choosing a copy or move destination.
func (w *Workspace) Folders(ctx context.Context) ([]string, error) {
	b, st, err := w.Current(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := w.snapshot(ctx, b, st)
	if err != nil {
		return nil, err
	}
	return vfs.AllFolders(snap.Entries), nil
}

// Tree nests the current bucket's listing into folders. Placeholders are
// left out; the folders they create remain.
func (w *Workspace) Tree(ctx context.Context) ([]*vfs.Node, error) {
	b, st, err := w.Current(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := w.snapshot(ctx, b, st)
	if err != nil {
		return nil, err
	}
	entries := make([]vfs.FileEntry, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		if vfs.Basename(e.Key) == vfs.KeepName {
			e.Key = vfs.Prefix(vfs.Parent(e.Key))
		}
		entries = append(entries, e)
	}
	return vfs.Tree(entries), nil
}
