package explorer

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/damacus/iron-explorer/internal/errs"
	"github.com/damacus/iron-explorer/internal/transfers"
	"github.com/damacus/iron-explorer/internal/vfs"
)

// DefaultShareTTL applies when a share request names no expiry.
const DefaultShareTTL = time.Hour

// MaxShareTTL is the longest expiry a presigned URL supports.
const MaxShareTTL = 7 * 24 * time.Hour

// Upload stores r under name in the current directory. name may contain
// slashes to upload into subfolders. The returned Transfer is the terminal
// snapshot; a cancelled upload returns a cancelled error and no entry.
func (w *Workspace) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) (transfers.Transfer, error) {
	name = vfs.Sanitize(name)
	if name == "" || vfs.IsFolderKey(name) {
		return transfers.Transfer{}, errs.New(errs.ErrKindInvalidInput, "no key provided")
	}
	b, st, err := w.Current(ctx)
	if err != nil {
		return transfers.Transfer{}, err
	}
	cur, err := w.CurrentPath(ctx)
	if err != nil {
		return transfers.Transfer{}, err
	}
	key := vfs.Join(cur, name)

	tctx, id := w.transfers.Start(ctx, transfers.KindUpload, key, size)
	_, err = st.Put(tctx, b.Credentials.Bucket, key, w.transfers.Reader(id, contextReader{ctx: tctx, r: r}), size, contentType)
	if _, tracked := w.transfers.Get(id); !tracked {
		if err != nil {
			return transfers.Transfer{}, errs.New(errs.ErrKindCancelled, "upload cancelled: "+key)
		}
		// The cancel lost the race with a completed Put; the object exists.
		w.afterMutation(ctx, b, st)
		return transfers.Transfer{
			ID: id, Kind: transfers.KindUpload, Key: key, Size: size, Transferred: size,
			Status: transfers.StatusCompleted, FinishedAt: time.Now(),
		}, nil
	}
	w.transfers.Finish(id, err)
	t, _ := w.transfers.Get(id)
	if err != nil {
		return t, err
	}
	w.afterMutation(ctx, b, st)
	return t, nil
}

// CancelTransfer aborts an in-flight transfer. It reports whether id was
// known.
func (w *Workspace) CancelTransfer(id string) bool {
	return w.transfers.Cancel(id)
}

// Download opens key for reading. The transfer stays tracked until the
// returned reader is closed.
func (w *Workspace) Download(ctx context.Context, key string) (io.ReadCloser, vfs.FileEntry, string, error) {
	if key == "" || vfs.IsFolderKey(key) {
		return nil, vfs.FileEntry{}, "", errs.New(errs.ErrKindInvalidInput, "no key provided")
	}
	b, st, err := w.Current(ctx)
	if err != nil {
		return nil, vfs.FileEntry{}, "", err
	}
	tctx, id := w.transfers.Start(ctx, transfers.KindDownload, key, 0)
	rc, info, err := st.Get(tctx, b.Credentials.Bucket, key)
	if err != nil {
		w.transfers.Finish(id, err)
		return nil, vfs.FileEntry{}, id, err
	}
	return &trackedReader{rc: rc, r: w.transfers.Reader(id, rc), tracker: w.transfers, id: id}, info, id, nil
}

// ShareLink is a presigned download URL.
type ShareLink struct {
	URL       string        `json:"url"`
	Key       string        `json:"key"`
	ExpiresIn time.Duration `json:"-"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

// ClampTTL applies the default and maximum share expiry.
func ClampTTL(ttl, max time.Duration) time.Duration {
	if max <= 0 || max > MaxShareTTL {
		max = MaxShareTTL
	}
	if ttl <= 0 {
		ttl = DefaultShareTTL
	}
	if ttl > max {
		ttl = max
	}
	return ttl
}

// Share presigns a download of key after checking that it exists.
func (w *Workspace) Share(ctx context.Context, key string, ttl time.Duration) (ShareLink, error) {
	if key == "" {
		return ShareLink{}, errs.New(errs.ErrKindInvalidInput, "no key provided")
	}
	b, st, err := w.Current(ctx)
	if err != nil {
		return ShareLink{}, err
	}
	if _, err := st.Head(ctx, b.Credentials.Bucket, key); err != nil {
		return ShareLink{}, err
	}

	if ttl <= 0 {
		ttl = w.cfg.PresignTTL
	}
	ttl = ClampTTL(ttl, w.cfg.PresignMaxTTL)
	url, err := st.PresignGet(ctx, b.Credentials.Bucket, key, ttl)
	if err != nil {
		return ShareLink{}, err
	}
	return ShareLink{URL: url, Key: key, ExpiresIn: ttl, ExpiresAt: time.Now().Add(ttl).UTC()}, nil
}

// contextReader fails reads once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

type trackedReader struct {
	rc      io.ReadCloser
	r       io.Reader
	tracker *transfers.Tracker
	id      string
	err     error
}

func (t *trackedReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		t.err = err
	}
	return n, err
}

func (t *trackedReader) Close() error {
	cerr := t.rc.Close()
	t.tracker.Finish(t.id, t.err)
	return cerr
}
