package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortgen/types"
)

func newTestJob(id string, created time.Time) *types.Job {
	return &types.Job{
		ID:                id,
		Topic:             "test topic",
		TargetDurationSec: 30,
		Status:            types.StatusQueued,
		Artifacts:         make(map[types.Stage]types.Artifact),
		CreatedAt:         created,
	}
}

func TestMemoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	job := newTestJob("a", time.Now().UTC())
	require.NoError(t, m.Create(ctx, job))

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, types.StatusQueued, got.Status)
}

func TestMemoryCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	job := newTestJob("a", time.Now().UTC())
	require.NoError(t, m.Create(ctx, job))
	assert.ErrorIs(t, m.Create(ctx, newTestJob("a", time.Now().UTC())), ErrDuplicate)
}

func TestMemoryGetNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Create(ctx, newTestJob("a", time.Now().UTC())))

	before, err := m.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, m.Update(ctx, "a", func(j *types.Job) error {
		j.Status = types.StatusProcessing
		j.Progress = 25
		j.Artifacts[types.StageScript] = types.Artifact{Kind: types.KindText, Path: "script.txt"}
		return nil
	}))

	// The earlier snapshot must not observe the update.
	assert.Equal(t, types.StatusQueued, before.Status)
	assert.Empty(t, before.Artifacts)

	after, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessing, after.Status)
	assert.Equal(t, 25, after.Progress)
	assert.Contains(t, after.Artifacts, types.StageScript)
}

func TestMemoryUpdateNotFound(t *testing.T) {
	m := NewMemory()
	err := m.Update(context.Background(), "missing", func(j *types.Job) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryListNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	base := time.Now().UTC()
	require.NoError(t, m.Create(ctx, newTestJob("old", base.Add(-2*time.Minute))))
	require.NoError(t, m.Create(ctx, newTestJob("mid", base.Add(-time.Minute))))
	require.NoError(t, m.Create(ctx, newTestJob("new", base)))

	jobs, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "new", jobs[0].ID)
	assert.Equal(t, "mid", jobs[1].ID)
	assert.Equal(t, "old", jobs[2].ID)
}
