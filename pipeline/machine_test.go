package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortgen/store"
	"shortgen/types"
)

func newMachineFixture(t *testing.T) (*machine, store.Store) {
	t.Helper()
	s := store.NewMemory()
	job := &types.Job{
		ID:        "job-1",
		Topic:     "test",
		Status:    types.StatusQueued,
		Artifacts: make(map[types.Stage]types.Artifact),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Create(context.Background(), job))
	return newMachine(s, "job-1", testLogger().WithField("job_id", "job-1")), s
}

func TestMachineBegin(t *testing.T) {
	ctx := context.Background()
	m, s := newMachineFixture(t)

	require.NoError(t, m.begin(ctx))
	job, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessing, job.Status)

	// A second begin is rejected.
	assert.Error(t, m.begin(ctx))
}

func TestMachineProgressNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	m, s := newMachineFixture(t)
	require.NoError(t, m.begin(ctx))

	art := types.Artifact{Kind: types.KindAudio}
	require.NoError(t, m.stageDone(ctx, types.StageVideo, art, progressVideo))
	// Music finishing after video must not lower progress.
	require.NoError(t, m.stageDone(ctx, types.StageMusic, art, progressMusic))

	job, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, progressVideo, job.Progress)
	assert.Contains(t, job.Artifacts, types.StageMusic)
	assert.Contains(t, job.Artifacts, types.StageVideo)
}

func TestMachineTerminalStatesAreImmutable(t *testing.T) {
	ctx := context.Background()
	m, s := newMachineFixture(t)
	require.NoError(t, m.begin(ctx))

	m.fail(ctx, types.StageVoice, assert.AnError)

	failed, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, failed.Status)
	firstCompleted := *failed.CompletedAt

	// Further transitions are rejected or ignored.
	assert.Error(t, m.stageDone(ctx, types.StageMusic, types.Artifact{}, progressMusic))
	assert.Error(t, m.complete(ctx, types.Artifact{}))
	m.fail(ctx, types.StageVideo, assert.AnError)

	after, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, after.Status)
	assert.Equal(t, types.StageVoice, after.Error.Stage)
	assert.Equal(t, firstCompleted, *after.CompletedAt)
}

func TestMachineComplete(t *testing.T) {
	ctx := context.Background()
	m, s := newMachineFixture(t)
	require.NoError(t, m.begin(ctx))

	final := types.Artifact{Kind: types.KindVideo, Path: "final.mp4", DurationSec: 20}
	require.NoError(t, m.complete(ctx, final))

	job, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, final, job.Artifacts[types.StageFinal])
	assert.NotNil(t, job.CompletedAt)
	assert.Nil(t, job.Error)
}

func TestMachineFailWithCancelledContext(t *testing.T) {
	m, s := newMachineFixture(t)
	require.NoError(t, m.begin(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.fail(ctx, types.StageMusic, context.Canceled)

	job, err := s.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, job.Status)
}
