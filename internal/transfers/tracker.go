// Package transfers tracks in-flight uploads and downloads.
package transfers

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/damacus/iron-explorer/internal/logger"
)

// Kind is the transfer direction.
type Kind string

const (
	KindUpload   Kind = "upload"
	KindDownload Kind = "download"
)

// Status of a transfer.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Transfer is a snapshot of one tracked transfer.
type Transfer struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	Transferred int64     `json:"transferred"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt,omitempty"`
}

// Progress is the completed percentage, 0 when the size is unknown.
func (t Transfer) Progress() int {
	if t.Status == StatusCompleted {
		return 100
	}
	if t.Size <= 0 {
		return 0
	}
	p := int(t.Transferred * 100 / t.Size)
	if p > 100 {
		p = 100
	}
	return p
}

// Done reports whether the transfer reached a terminal status.
func (t Transfer) Done() bool {
	return t.Status == StatusCompleted || t.Status == StatusError
}

type entry struct {
	Transfer
	cancel context.CancelFunc
}

// Tracker is safe for concurrent use. Each transfer owns its own context,
// so cancelling one never touches another.
type Tracker struct {
	mu    sync.Mutex
	items map[string]*entry
	order []string
	now   func() time.Time
	log   *logger.Logger
}

// NewTracker returns an empty Tracker.
func NewTracker(log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{items: make(map[string]*entry), now: time.Now, log: log}
}

// Start registers a transfer and returns the context it must run under.
func (t *Tracker) Start(parent context.Context, kind Kind, key string, size int64) (context.Context, string) {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.NewString()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[id] = &entry{
		Transfer: Transfer{ID: id, Kind: kind, Key: key, Size: size, Status: StatusPending, StartedAt: t.now()},
		cancel:   cancel,
	}
	t.order = append(t.order, id)
	return ctx, id
}

// Reader wraps r so bytes read through it count towards id's progress.
func (t *Tracker) Reader(id string, r io.Reader) io.Reader {
	return &countingReader{r: r, add: func(n int) { t.advance(id, n) }}
}

func (t *Tracker) advance(id string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.items[id]; ok && !e.Done() {
		e.Transferred += int64(n)
		e.Status = StatusUploading
	}
}

// Finish records the outcome of id. A cancelled transfer is already gone
// and is ignored.
func (t *Tracker) Finish(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.items[id]
	if !ok {
		return
	}
	e.FinishedAt = t.now()
	e.cancel()
	if err != nil {
		e.Status = StatusError
		e.Error = err.Error()
		t.log.WarnWith("transfer failed", err, map[string]interface{}{"id": id, "key": e.Key, "kind": string(e.Kind)})
		return
	}
	e.Status = StatusCompleted
	if e.Size > 0 {
		e.Transferred = e.Size
	}
}

// Cancel aborts id and forgets it. It reports whether id was tracked.
func (t *Tracker) Cancel(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.items[id]
	if !ok {
		return false
	}
	e.cancel()
	t.remove(id)
	t.log.InfoWith("transfer cancelled", map[string]interface{}{"id": id, "key": e.Key})
	return true
}

// Get returns a snapshot of id.
func (t *Tracker) Get(id string) (Transfer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.items[id]
	if !ok {
		return Transfer{}, false
	}
	return e.Transfer, true
}

// List returns snapshots in start order.
func (t *Tracker) List() []Transfer {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Transfer, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.items[id].Transfer)
	}
	return out
}

// ClearFinished drops completed and failed transfers and returns how many
// were removed.
func (t *Tracker) ClearFinished() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, id := range append([]string(nil), t.order...) {
		if t.items[id].Done() {
			t.remove(id)
			n++
		}
	}
	return n
}

func (t *Tracker) remove(id string) {
	delete(t.items, id)
	for i, o := range t.order {
		if o == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

type countingReader struct {
	r   io.Reader
	add func(int)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.add(n)
	}
	return n, err
}
