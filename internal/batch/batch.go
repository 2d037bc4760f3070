// Package batch dispatches delete, copy and move requests over many keys
// and reports a per-item outcome.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/damacus/iron-explorer/internal/errs"
	"github.com/damacus/iron-explorer/internal/logger"
	"github.com/damacus/iron-explorer/internal/services"
	"github.com/damacus/iron-explorer/internal/vfs"
)

// Operation names a batch kind.
type Operation string

const (
	OpDelete Operation = "delete"
	OpCopy   Operation = "copy"
	OpMove   Operation = "move"
)

// ParseOperation validates a wire value.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpDelete, OpCopy, OpMove:
		return op, nil
	}
	return "", errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown operation: %s. Supported: delete, copy, move", s))
}

// Descriptor is one item of a batch. Delete uses only Source. Empty bucket
// fields fall back to the batch's bucket.
type Descriptor struct {
	Source            string `json:"source"`
	Destination       string `json:"destination,omitempty"`
	SourceBucket      string `json:"sourceBucket,omitempty"`
	DestinationBucket string `json:"destinationBucket,omitempty"`
}

// ItemResult is the outcome of one descriptor.
type ItemResult struct {
	Source      string
	Destination string
	OK          bool
	Err         error
}

// Summary aggregates a batch. Total == Succeeded + Failed == len(Results)
// and Results are in submission order.
type Summary struct {
	Operation Operation
	Total     int
	Succeeded int
	Failed    int
	Results   []ItemResult
}

// Message is the human summary line.
func (s *Summary) Message() string {
	return fmt.Sprintf("Batch %s completed", s.Operation)
}

// FailedItems returns the results that did not succeed.
func (s *Summary) FailedItems() []ItemResult {
	out := make([]ItemResult, 0, s.Failed)
	for _, r := range s.Results {
		if !r.OK {
			out = append(out, r)
		}
	}
	return out
}

func summarize(op Operation, results []ItemResult) *Summary {
	s := &Summary{Operation: op, Total: len(results), Results: results}
	for _, r := range results {
		if r.OK {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

// DefaultConcurrency bounds in-flight copy requests when none is configured.
const DefaultConcurrency = 4

// Coordinator runs batches against a Storage.
type Coordinator struct {
	concurrency int
	log         *logger.Logger
}

// NewCoordinator creates a Coordinator issuing at most concurrency requests
// at a time.
func NewCoordinator(concurrency int, log *logger.Logger) *Coordinator {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Coordinator{concurrency: concurrency, log: log}
}

// Run executes op over ds. Item failures land in the summary; the returned
// error is reserved for requests that cannot be dispatched at all.
func (c *Coordinator) Run(ctx context.Context, st services.Storage, bucket string, op Operation, ds []Descriptor) (*Summary, error) {
	if err := validate(op, ds); err != nil {
		return nil, err
	}

	start := time.Now()
	var results []ItemResult
	switch op {
	case OpDelete:
		results = c.deleteAll(ctx, st, bucket, ds)
	default:
		results = c.transferAll(ctx, st, bucket, op, ds)
	}

	s := summarize(op, results)
	c.log.InfoWith("batch completed", map[string]interface{}{
		"operation": string(op),
		"bucket":    bucket,
		"total":     s.Total,
		"failed":    s.Failed,
		"duration":  time.Since(start).String(),
	})
	return s, nil
}

func validate(op Operation, ds []Descriptor) error {
	if _, err := ParseOperation(string(op)); err != nil {
		return err
	}
	for i, d := range ds {
		if d.Source == "" {
			return errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("item %d: source is required", i))
		}
		if op != OpDelete && d.Destination == "" {
			return errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("item %d: destination is required", i))
		}
	}
	return nil
}

func (c *Coordinator) deleteAll(ctx context.Context, st services.Storage, bucket string, ds []Descriptor) []ItemResult {
	keys := make([]string, len(ds))
	for i, d := range ds {
		keys[i] = d.Source
	}

	failures, err := st.DeleteMany(ctx, bucket, keys)
	results := make([]ItemResult, len(ds))
	for i, key := range keys {
		results[i] = ItemResult{Source: key, OK: true}
		if ferr, ok := failures[key]; ok {
			results[i].OK = false
			results[i].Err = ferr
		} else if err != nil {
			results[i].OK = false
			results[i].Err = err
		}
	}
	if err != nil {
		c.log.WarnWith("batch delete dispatch failed", err, map[string]interface{}{"bucket": bucket, "keys": len(keys)})
	}
	return results
}

func (c *Coordinator) transferAll(ctx context.Context, st services.Storage, bucket string, op Operation, ds []Descriptor) []ItemResult {
	results := make([]ItemResult, len(ds))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, d := range ds {
		g.Go(func() error {
			err := c.transfer(gctx, st, bucket, op, d)
			mu.Lock()
			results[i] = ItemResult{Source: d.Source, Destination: d.Destination, OK: err == nil, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Coordinator) transfer(ctx context.Context, st services.Storage, bucket string, op Operation, d Descriptor) error {
	src, dst := bucketOr(d.SourceBucket, bucket), bucketOr(d.DestinationBucket, bucket)
	if op == OpMove && src == dst && d.Source == d.Destination {
		return nil
	}
	if err := st.Copy(ctx, src, d.Source, dst, d.Destination); err != nil {
		return err
	}
	if op == OpCopy {
		return nil
	}
	if err := st.Delete(ctx, src, d.Source); err != nil {
		return fmt.Errorf("copied but source not removed: %w", err)
	}
	return nil
}

func bucketOr(b, fallback string) string {
	if b == "" {
		return fallback
	}
	return b
}

// Rename builds the move descriptor that renames key in place.
func Rename(key, newName string) (Descriptor, error) {
	if key == "" || !vfs.ValidName(newName) {
		return Descriptor{}, errs.New(errs.ErrKindInvalidInput, "invalid rename target")
	}
	dst := vfs.Join(vfs.Parent(key), newName)
	if vfs.IsFolderKey(key) {
		dst += "/"
	}
	return Descriptor{Source: key, Destination: dst}, nil
}
