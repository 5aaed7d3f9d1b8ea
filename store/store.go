// Package store holds the process-wide job registry. Writes for a given job
// come from the single goroutine running it; reads come from arbitrary
// concurrent pollers, so every read returns an isolated snapshot.
package store

import (
	"context"

	"github.com/pkg/errors"

	"shortgen/types"
)

var (
	ErrNotFound  = errors.New("job not found")
	ErrDuplicate = errors.New("job id already exists")
)

type Store interface {
	// Create registers a new job. The id must be unused.
	Create(ctx context.Context, job *types.Job) error
	// Get returns a snapshot of the job.
	Get(ctx context.Context, id string) (*types.Job, error)
	// Update applies fn to the job atomically. Readers observe either the
	// state before fn or the state after it, never a partial write.
	Update(ctx context.Context, id string, fn func(*types.Job) error) error
	// List returns snapshots of all jobs, newest first by creation time.
	List(ctx context.Context) ([]*types.Job, error)
}
