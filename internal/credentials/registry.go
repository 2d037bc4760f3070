// Package credentials is the durable registry of bucket connections,
// bucket groups and the active-bucket pointer.
package credentials

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/damacus/iron-explorer/internal/errs"
	"github.com/damacus/iron-explorer/internal/kvstore"
	"github.com/damacus/iron-explorer/internal/logger"
)

// ErrNoBuckets signals that the registry is empty and the caller must
// return to the connect screen.
var ErrNoBuckets = errors.New("no buckets configured")

// DefaultGroupColor is applied to groups created without a color.
const DefaultGroupColor = "#3498db"

// Credentials is one S3-compatible connection.
type Credentials struct {
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `json:"accessKeyId" yaml:"access_key_id"`
	SecretAccessKey string `json:"secretAccessKey" yaml:"secret_access_key"`
	Bucket          string `json:"bucket" yaml:"bucket"`
	Region          string `json:"region,omitempty" yaml:"region,omitempty"`
	Provider        string `json:"provider,omitempty" yaml:"provider,omitempty"`
}

// Validate checks that every required field is present.
func (c Credentials) Validate() error {
	switch {
	case c.Endpoint == "":
		return errs.New(errs.ErrKindInvalidInput, "endpoint is required")
	case c.AccessKeyID == "":
		return errs.New(errs.ErrKindInvalidInput, "access key id is required")
	case c.SecretAccessKey == "":
		return errs.New(errs.ErrKindInvalidInput, "secret access key is required")
	case c.Bucket == "":
		return errs.New(errs.ErrKindInvalidInput, "bucket is required")
	}
	return nil
}

// BucketConfig is a named connection in the registry.
type BucketConfig struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Credentials Credentials `json:"credentials" yaml:"credentials"`
	CustomTitle string      `json:"customTitle,omitempty" yaml:"custom_title,omitempty"`
	Color       string      `json:"color,omitempty" yaml:"color,omitempty"`
	GroupID     string      `json:"groupId,omitempty" yaml:"group_id,omitempty"`
}

// Title is the label shown for the bucket.
func (b BucketConfig) Title() string {
	if b.CustomTitle != "" {
		return b.CustomTitle
	}
	return b.Name
}

// BucketGroup organises buckets in the sidebar.
type BucketGroup struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color,omitempty" yaml:"color,omitempty"`
	Order int    `json:"order" yaml:"order"`
}

// Ejection describes the registry after a bucket was removed.
type Ejection struct {
	// WasCurrent is true when the removed bucket was active.
	WasCurrent bool `json:"wasCurrent"`
	// CurrentID is the active bucket afterwards, "" when none remain.
	CurrentID string `json:"currentId"`
	// Empty is true when no buckets remain.
	Empty bool `json:"empty"`
}

// NewBucketID returns a fresh bucket identifier.
func NewBucketID() string { return "bucket-" + uuid.NewString() }

// NewGroupID returns a fresh group identifier.
func NewGroupID() string { return "group-" + uuid.NewString() }

// Registry reads and writes the registry through a kvstore.Store. State
// is re-read on every call so changes from other processes are seen;
// concurrent writers are last-writer-wins.
type Registry struct {
	mu    sync.Mutex
	store kvstore.Store
	log   *logger.Logger
}

// NewRegistry creates a Registry over store.
func NewRegistry(store kvstore.Store, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{store: store, log: log}
}

// Buckets returns every configured bucket in insertion order.
func (r *Registry) Buckets() ([]BucketConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadBuckets()
}

// Bucket returns a single bucket by id.
func (r *Registry) Bucket(id string) (BucketConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buckets, err := r.loadBuckets()
	if err != nil {
		return BucketConfig{}, err
	}
	if i := indexOf(buckets, id); i >= 0 {
		return buckets[i], nil
	}
	return BucketConfig{}, errs.New(errs.ErrKindNotFound, fmt.Sprintf("bucket %q not found", id))
}

// AddBucket inserts b, or replaces the bucket with the same id. An empty
// id is assigned. The stored config is returned.
func (r *Registry) AddBucket(b BucketConfig) (BucketConfig, error) {
	if err := b.Credentials.Validate(); err != nil {
		return BucketConfig{}, err
	}
	if b.ID == "" {
		b.ID = NewBucketID()
	}
	if b.Name == "" {
		b.Name = b.Credentials.Bucket
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	buckets, err := r.loadBuckets()
	if err != nil {
		return BucketConfig{}, err
	}
	if i := indexOf(buckets, b.ID); i >= 0 {
		buckets[i] = b
	} else {
		buckets = append(buckets, b)
	}
	if err := r.saveBuckets(buckets); err != nil {
		return BucketConfig{}, err
	}
	r.log.With().Str("bucket_id", b.ID).Logger().Debug("bucket saved")
	return b, nil
}

// DuplicateBucket stores a copy of bucket id under a new id.
func (r *Registry) DuplicateBucket(id string) (BucketConfig, error) {
	src, err := r.Bucket(id)
	if err != nil {
		return BucketConfig{}, err
	}
	dup := src
	dup.ID = NewBucketID()
	dup.Name = src.Name + " (copy)"
	if dup.CustomTitle != "" {
		dup.CustomTitle = src.CustomTitle + " (copy)"
	}
	return r.AddBucket(dup)
}

// RemoveBucket deletes bucket id. When it was active, the first remaining
// bucket becomes active; when none remain the pointer is cleared and the
// result reports Empty.
func (r *Registry) RemoveBucket(id string) (Ejection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buckets, err := r.loadBuckets()
	if err != nil {
		return Ejection{}, err
	}
	i := indexOf(buckets, id)
	if i < 0 {
		return Ejection{}, errs.New(errs.ErrKindNotFound, fmt.Sprintf("bucket %q not found", id))
	}
	buckets = append(buckets[:i], buckets[i+1:]...)
	if err := r.saveBuckets(buckets); err != nil {
		return Ejection{}, err
	}

	current, err := r.loadCurrent()
	if err != nil {
		return Ejection{}, err
	}

	ej := Ejection{WasCurrent: current == id, CurrentID: current, Empty: len(buckets) == 0}
	if ej.WasCurrent {
		ej.CurrentID = ""
		if len(buckets) > 0 {
			ej.CurrentID = buckets[0].ID
		}
		if err := r.saveCurrent(ej.CurrentID); err != nil {
			return Ejection{}, err
		}
	}
	r.log.InfoWith("bucket removed", map[string]interface{}{
		"bucket_id": id,
		"current":   ej.CurrentID,
		"empty":     ej.Empty,
	})
	return ej, nil
}

// CurrentBucketID returns the active pointer without validating it.
func (r *Registry) CurrentBucketID() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadCurrent()
}

// SetCurrentBucket moves the active pointer. The id is not validated;
// Reconcile repairs a dangling pointer.
func (r *Registry) SetCurrentBucket(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveCurrent(id)
}

// Reconcile makes the active pointer reference an existing bucket. It
// falls back to the first bucket, or clears the pointer and returns
// ErrNoBuckets when the registry is empty.
func (r *Registry) Reconcile() (BucketConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buckets, err := r.loadBuckets()
	if err != nil {
		return BucketConfig{}, err
	}
	current, err := r.loadCurrent()
	if err != nil {
		return BucketConfig{}, err
	}

	if i := indexOf(buckets, current); i >= 0 {
		return buckets[i], nil
	}

	if len(buckets) == 0 {
		if current != "" {
			if err := r.saveCurrent(""); err != nil {
				return BucketConfig{}, err
			}
		}
		return BucketConfig{}, ErrNoBuckets
	}

	if current != "" {
		r.log.WarnWith("active bucket missing from registry", nil, map[string]interface{}{
			"bucket_id": current,
			"fallback":  buckets[0].ID,
		})
	}
	if err := r.saveCurrent(buckets[0].ID); err != nil {
		return BucketConfig{}, err
	}
	return buckets[0], nil
}

// UpdateBucketTitle sets the display title. An empty title reverts to
// the bucket name.
func (r *Registry) UpdateBucketTitle(id, title string) error {
	return r.updateBucket(id, func(b *BucketConfig) { b.CustomTitle = title })
}

// UpdateBucketColor sets the bucket's color tag.
func (r *Registry) UpdateBucketColor(id, color string) error {
	return r.updateBucket(id, func(b *BucketConfig) { b.Color = color })
}

// UpdateBucketGroup assigns the bucket to groupID, or ungroups it when
// groupID is empty.
func (r *Registry) UpdateBucketGroup(id, groupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if groupID != "" {
		groups, err := r.loadGroups()
		if err != nil {
			return err
		}
		if groupIndex(groups, groupID) < 0 {
			return errs.New(errs.ErrKindNotFound, fmt.Sprintf("group %q not found", groupID))
		}
	}
	return r.mutateBucket(id, func(b *BucketConfig) { b.GroupID = groupID })
}

func (r *Registry) updateBucket(id string, mutate func(*BucketConfig)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mutateBucket(id, mutate)
}

// mutateBucket applies mutate to bucket id and saves. r.mu must be held.
func (r *Registry) mutateBucket(id string, mutate func(*BucketConfig)) error {
	buckets, err := r.loadBuckets()
	if err != nil {
		return err
	}
	i := indexOf(buckets, id)
	if i < 0 {
		return errs.New(errs.ErrKindNotFound, fmt.Sprintf("bucket %q not found", id))
	}
	mutate(&buckets[i])
	return r.saveBuckets(buckets)
}

// loadBuckets reads the bucket list, migrating the legacy single-bucket
// record on first sight. Corrupt data yields an empty list.
func (r *Registry) loadBuckets() ([]BucketConfig, error) {
	var buckets []BucketConfig
	found, err := kvstore.GetJSON(r.store, kvstore.KeyBuckets, &buckets)
	if err != nil {
		if !found {
			return nil, fmt.Errorf("loading buckets: %w", err)
		}
		r.log.WarnWith("discarding malformed bucket registry", err, nil)
		return []BucketConfig{}, nil
	}
	if !found {
		return r.migrateLegacy()
	}
	if buckets == nil {
		buckets = []BucketConfig{}
	}
	return buckets, nil
}

func (r *Registry) migrateLegacy() ([]BucketConfig, error) {
	var legacy Credentials
	found, err := kvstore.GetJSON(r.store, kvstore.KeyLegacyCredentials, &legacy)
	if err != nil && !found {
		return nil, fmt.Errorf("loading legacy credentials: %w", err)
	}
	if !found || err != nil || legacy.Validate() != nil {
		return []BucketConfig{}, nil
	}

	b := BucketConfig{ID: NewBucketID(), Name: legacy.Bucket, Credentials: legacy}
	buckets := []BucketConfig{b}
	if err := r.saveBuckets(buckets); err != nil {
		return nil, err
	}
	if err := r.saveCurrent(b.ID); err != nil {
		return nil, err
	}
	if err := r.store.Delete(kvstore.KeyLegacyCredentials); err != nil {
		return nil, fmt.Errorf("removing legacy credentials: %w", err)
	}
	r.log.With().Str("bucket_id", b.ID).Logger().Info("migrated legacy credentials")
	return buckets, nil
}

func (r *Registry) saveBuckets(buckets []BucketConfig) error {
	if err := kvstore.SetJSON(r.store, kvstore.KeyBuckets, buckets); err != nil {
		return fmt.Errorf("saving buckets: %w", err)
	}
	return nil
}

func (r *Registry) loadCurrent() (string, error) {
	id, _, err := r.store.Get(kvstore.KeyCurrentBucket)
	if errors.Is(err, kvstore.ErrUnreadable) {
		r.log.WarnWith("discarding unreadable current bucket", err, nil)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading current bucket: %w", err)
	}
	return id, nil
}

func (r *Registry) saveCurrent(id string) error {
	var err error
	if id == "" {
		err = r.store.Delete(kvstore.KeyCurrentBucket)
	} else {
		err = r.store.Set(kvstore.KeyCurrentBucket, id)
	}
	if err != nil {
		return fmt.Errorf("saving current bucket: %w", err)
	}
	return nil
}

func indexOf(buckets []BucketConfig, id string) int {
	if id == "" {
		return -1
	}
	for i, b := range buckets {
		if b.ID == id {
			return i
		}
	}
	return -1
}

func sortGroups(groups []BucketGroup) {
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Order < groups[j].Order })
}
