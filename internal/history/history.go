// Package history keeps browser-style back/forward navigation per bucket.
package history

import (
	"fmt"
	"sync"

	"github.com/damacus/iron-explorer/internal/kvstore"
	"github.com/damacus/iron-explorer/internal/logger"
	"github.com/damacus/iron-explorer/internal/vfs"
)

// State is one bucket's history. 0 <= CurrentIndex < len(Stack) always
// holds for a tracked bucket; the root path is "".
type State struct {
	Stack        []string `json:"stack"`
	CurrentIndex int      `json:"currentIndex"`
}

// Current returns the path at CurrentIndex.
func (s State) Current() string {
	return s.Stack[s.CurrentIndex]
}

// CanGoBack reports whether an earlier entry exists.
func (s State) CanGoBack() bool { return s.CurrentIndex > 0 }

// CanGoForward reports whether a later entry exists.
func (s State) CanGoForward() bool { return s.CurrentIndex < len(s.Stack)-1 }

func (s State) valid() bool {
	return len(s.Stack) > 0 && s.CurrentIndex >= 0 && s.CurrentIndex < len(s.Stack)
}

func (s State) clone() State {
	stack := make([]string, len(s.Stack))
	copy(stack, s.Stack)
	return State{Stack: stack, CurrentIndex: s.CurrentIndex}
}

func fresh(path string) State {
	return State{Stack: []string{path}, CurrentIndex: 0}
}

// Manager applies navigation events. Events are serialised by a single
// mutex and each is persisted before the next is accepted.
type Manager struct {
	mu    sync.Mutex
	store kvstore.Store
	log   *logger.Logger
}

// NewManager creates a Manager over store.
func NewManager(store kvstore.Store, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{store: store, log: log}
}

// Initialize starts tracking bucket at initialPath. Existing history is
// left untouched.
func (m *Manager) Initialize(bucket, initialPath string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load()
	if err != nil {
		return State{}, err
	}
	if st, ok := all[bucket]; ok {
		return st.clone(), nil
	}
	st := fresh(vfs.Clean(initialPath))
	all[bucket] = st
	return st.clone(), m.save(all)
}

// Push records a visit to path. Visiting the current path is a no-op;
// otherwise forward entries are discarded. An untracked bucket starts
// from the root.
func (m *Manager) Push(bucket, path string) (State, error) {
	path = vfs.Clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load()
	if err != nil {
		return State{}, err
	}
	st, ok := all[bucket]
	if !ok {
		st = fresh("")
	}
	if ok && st.Current() == path {
		return st.clone(), nil
	}
	if !ok && path == "" {
		all[bucket] = st
		return st.clone(), m.save(all)
	}

	stack := make([]string, st.CurrentIndex+1, st.CurrentIndex+2)
	copy(stack, st.Stack[:st.CurrentIndex+1])
	st = State{Stack: append(stack, path), CurrentIndex: st.CurrentIndex + 1}

	all[bucket] = st
	return st.clone(), m.save(all)
}

// Back moves one entry back and returns the path now current. ok is false
// when there is nothing to go back to.
func (m *Manager) Back(bucket string) (string, bool, error) {
	return m.step(bucket, -1)
}

// Forward moves one entry forward. ok is false at the newest entry.
func (m *Manager) Forward(bucket string) (string, bool, error) {
	return m.step(bucket, 1)
}

func (m *Manager) step(bucket string, delta int) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load()
	if err != nil {
		return "", false, err
	}
	st, ok := all[bucket]
	if !ok {
		return "", false, nil
	}
	next := st.CurrentIndex + delta
	if next < 0 || next >= len(st.Stack) {
		return "", false, nil
	}
	st.CurrentIndex = next
	all[bucket] = st
	if err := m.save(all); err != nil {
		return "", false, err
	}
	return st.Current(), true, nil
}

// CanGoBack reports whether Back would move.
func (m *Manager) CanGoBack(bucket string) (bool, error) {
	st, ok, err := m.State(bucket)
	return ok && st.CanGoBack(), err
}

// CanGoForward reports whether Forward would move.
func (m *Manager) CanGoForward(bucket string) (bool, error) {
	st, ok, err := m.State(bucket)
	return ok && st.CanGoForward(), err
}

// CurrentPath returns the bucket's current path; ok is false for an
// untracked bucket.
func (m *Manager) CurrentPath(bucket string) (string, bool, error) {
	st, ok, err := m.State(bucket)
	if err != nil || !ok {
		return "", false, err
	}
	return st.Current(), true, nil
}

// State returns a copy of the bucket's history.
func (m *Manager) State(bucket string) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load()
	if err != nil {
		return State{}, false, err
	}
	st, ok := all[bucket]
	if !ok {
		return State{}, false, nil
	}
	return st.clone(), true, nil
}

// Clear forgets one bucket.
func (m *Manager) Clear(bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load()
	if err != nil {
		return err
	}
	if _, ok := all[bucket]; !ok {
		return nil
	}
	delete(all, bucket)
	return m.save(all)
}

// ClearAll forgets every bucket.
func (m *Manager) ClearAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Delete(kvstore.KeyNavigationHistory); err != nil {
		return fmt.Errorf("clearing navigation history: %w", err)
	}
	return nil
}

// load reads every bucket's history. Corrupt data is discarded and
// entries violating the index invariant are dropped.
func (m *Manager) load() (map[string]State, error) {
	all := make(map[string]State)
	found, err := kvstore.GetJSON(m.store, kvstore.KeyNavigationHistory, &all)
	if err != nil {
		if !found {
			return nil, fmt.Errorf("loading navigation history: %w", err)
		}
		m.log.WarnWith("discarding malformed navigation history", err, nil)
		return make(map[string]State), nil
	}
	if all == nil {
		return make(map[string]State), nil
	}
	for bucket, st := range all {
		if !st.valid() {
			m.log.With().Str("bucket_id", bucket).Logger().Warn("resetting out-of-bounds history")
			delete(all, bucket)
		}
	}
	return all, nil
}

func (m *Manager) save(all map[string]State) error {
	if err := kvstore.SetJSON(m.store, kvstore.KeyNavigationHistory, all); err != nil {
		return fmt.Errorf("saving navigation history: %w", err)
	}
	return nil
}
