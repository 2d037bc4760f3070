// Package explorer composes bucket registry, navigation, clipboard, batch
// and transfer state into one browsing session per store.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/damacus/iron-explorer/internal/batch"
	"github.com/damacus/iron-explorer/internal/clipboard"
	"github.com/damacus/iron-explorer/internal/config"
	"github.com/damacus/iron-explorer/internal/credentials"
	"github.com/damacus/iron-explorer/internal/errs"
	"github.com/damacus/iron-explorer/internal/history"
	"github.com/damacus/iron-explorer/internal/kvstore"
	"github.com/damacus/iron-explorer/internal/logger"
	"github.com/damacus/iron-explorer/internal/services"
	"github.com/damacus/iron-explorer/internal/theme"
	"github.com/damacus/iron-explorer/internal/transfers"
	"github.com/damacus/iron-explorer/internal/vfs"
)

// Snapshot is one bucket's full listing. A Snapshot is never mutated after
// it is published; refreshes replace it.
type Snapshot struct {
	BucketID  string
	Entries   []vfs.FileEntry
	Truncated bool
	FetchedAt time.Time
}

// Workspace is safe for concurrent use. Storage calls run outside the lock.
type Workspace struct {
	registry    *credentials.Registry
	history     *history.Manager
	clipboard   *clipboard.Clipboard
	coordinator *batch.Coordinator
	transfers   *transfers.Tracker
	theme       *theme.Preference
	factory     services.StorageFactory
	cfg         config.StorageConfig
	log         *logger.Logger

	mu        sync.RWMutex
	clients   map[string]services.Storage
	snapshots map[string]*Snapshot
	selection map[string]struct{}
}

// New builds a Workspace persisting to store.
func New(store kvstore.Store, factory services.StorageFactory, cfg config.StorageConfig, log *logger.Logger) *Workspace {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = services.DefaultPageSize
	}
	return &Workspace{
		registry:    credentials.NewRegistry(store, log),
		history:     history.NewManager(store, log),
		clipboard:   clipboard.New(),
		coordinator: batch.NewCoordinator(cfg.Concurrency, log),
		transfers:   transfers.NewTracker(log),
		theme:       theme.NewPreference(store),
		factory:     factory,
		cfg:         cfg,
		log:         log,
		clients:     make(map[string]services.Storage),
		snapshots:   make(map[string]*Snapshot),
		selection:   make(map[string]struct{}),
	}
}

// Registry exposes bucket and group management.
func (w *Workspace) Registry() *credentials.Registry { return w.registry }

// Transfers exposes the transfer tracker.
func (w *Workspace) Transfers() *transfers.Tracker { return w.transfers }

// Connect verifies creds against the backend and registers the bucket as
// current. Nothing is stored when the connection test fails.
func (w *Workspace) Connect(ctx context.Context, b credentials.BucketConfig) (credentials.BucketConfig, error) {
	if err := b.Credentials.Validate(); err != nil {
		return credentials.BucketConfig{}, err
	}
	st, err := w.factory.New(ctx, b.Credentials)
	if err != nil {
		return credentials.BucketConfig{}, err
	}
	if err := st.TestConnection(ctx, b.Credentials.Bucket); err != nil {
		w.log.WarnWith("connection test failed", err, map[string]interface{}{"bucket": b.Credentials.Bucket})
		if !errs.IsPermissionDenied(err) && !errs.IsCancelled(err) && !errs.IsTimeout(err) {
			err = errs.Wrap(errs.ErrKindConnectionFailed, "connection test failed", err)
		}
		return credentials.BucketConfig{}, err
	}

	saved, err := w.registry.AddBucket(b)
	if err != nil {
		return credentials.BucketConfig{}, err
	}
	if err := w.registry.SetCurrentBucket(saved.ID); err != nil {
		return credentials.BucketConfig{}, err
	}
	if _, err := w.history.Initialize(saved.ID, ""); err != nil {
		return credentials.BucketConfig{}, err
	}

	w.mu.Lock()
	w.clients[saved.ID] = st
	delete(w.snapshots, saved.ID)
	w.resetSelectionLocked()
	w.mu.Unlock()

	w.log.InfoWith("bucket connected", map[string]interface{}{"id": saved.ID, "bucket": saved.Credentials.Bucket})
	return saved, nil
}

// Switch makes id the current bucket.
func (w *Workspace) Switch(ctx context.Context, id string) (credentials.BucketConfig, error) {
	b, err := w.registry.Bucket(id)
	if err != nil {
		return credentials.BucketConfig{}, err
	}
	if err := w.registry.SetCurrentBucket(id); err != nil {
		return credentials.BucketConfig{}, err
	}
	if _, err := w.history.Initialize(id, ""); err != nil {
		return credentials.BucketConfig{}, err
	}
	w.mu.Lock()
	w.resetSelectionLocked()
	w.mu.Unlock()
	return b, nil
}

// Eject removes a bucket along with its history and cached listing. When
// the registry becomes empty the Ejection is returned with ErrNoBuckets.
func (w *Workspace) Eject(id string) (credentials.Ejection, error) {
	ej, err := w.registry.RemoveBucket(id)
	if err != nil {
		return ej, err
	}
	if err := w.history.Clear(id); err != nil {
		w.log.WarnWith("failed to clear history", err, map[string]interface{}{"id": id})
	}

	w.mu.Lock()
	delete(w.clients, id)
	delete(w.snapshots, id)
	if ej.WasCurrent {
		w.resetSelectionLocked()
	}
	w.mu.Unlock()

	if ej.Empty {
		w.clipboard.Clear()
		return ej, credentials.ErrNoBuckets
	}
	return ej, nil
}

// Current reconciles the active pointer and returns the bucket with a
// storage client for it.
func (w *Workspace) Current(ctx context.Context) (credentials.BucketConfig, services.Storage, error) {
	b, err := w.registry.Reconcile()
	if err != nil {
		return credentials.BucketConfig{}, nil, err
	}

	w.mu.RLock()
	st, ok := w.clients[b.ID]
	w.mu.RUnlock()
	if ok {
		return b, st, nil
	}

	st, err = w.factory.New(ctx, b.Credentials)
	if err != nil {
		return credentials.BucketConfig{}, nil, err
	}
	w.mu.Lock()
	if existing, ok := w.clients[b.ID]; ok {
		st = existing
	} else {
		w.clients[b.ID] = st
	}
	w.mu.Unlock()
	return b, st, nil
}

// Refresh replaces the current bucket's snapshot with an authoritative
// listing. On failure the old snapshot is dropped so it cannot be shown
// as current.
func (w *Workspace) Refresh(ctx context.Context) (*Snapshot, error) {
	b, st, err := w.Current(ctx)
	if err != nil {
		return nil, err
	}
	return w.refresh(ctx, b, st)
}

func (w *Workspace) refresh(ctx context.Context, b credentials.BucketConfig, st services.Storage) (*Snapshot, error) {
	entries, truncated, err := services.ListAll(ctx, st, b.Credentials.Bucket, "", w.cfg.PageSize, w.cfg.MaxKeys)
	if err != nil {
		w.mu.Lock()
		delete(w.snapshots, b.ID)
		w.mu.Unlock()
		w.log.ErrorWith("listing failed", err, map[string]interface{}{"id": b.ID, "bucket": b.Credentials.Bucket})
		return nil, fmt.Errorf("list %s: %w", b.Credentials.Bucket, err)
	}

	snap := &Snapshot{BucketID: b.ID, Entries: entries, Truncated: truncated, FetchedAt: time.Now().UTC()}
	w.mu.Lock()
	w.snapshots[b.ID] = snap
	w.pruneSelectionLocked(entries)
	w.mu.Unlock()
	return snap, nil
}

// snapshot returns the cached listing for b, fetching one if needed.
func (w *Workspace) snapshot(ctx context.Context, b credentials.BucketConfig, st services.Storage) (*Snapshot, error) {
	w.mu.RLock()
	snap, ok := w.snapshots[b.ID]
	w.mu.RUnlock()
	if ok {
		return snap, nil
	}
	return w.refresh(ctx, b, st)
}

// afterMutation refreshes following a batch. A failed refresh has already
// invalidated the snapshot, so it is logged rather than returned.
func (w *Workspace) afterMutation(ctx context.Context, b credentials.BucketConfig, st services.Storage) {
	if _, err := w.refresh(ctx, b, st); err != nil && !errors.Is(err, context.Canceled) {
		w.log.WarnWith("refresh after mutation failed", err, map[string]interface{}{"id": b.ID})
	}
}

// Theme returns the stored display theme.
func (w *Workspace) Theme() (theme.Theme, error) { return w.theme.Get() }

// SetTheme stores t.
func (w *Workspace) SetTheme(t theme.Theme) error { return w.theme.Set(t) }

// ToggleTheme flips the display theme.
func (w *Workspace) ToggleTheme() (theme.Theme, error) { return w.theme.Toggle() }
