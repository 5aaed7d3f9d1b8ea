package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortgen/store"
	"shortgen/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	job := &types.Job{
		ID:                "job-1",
		Topic:             "ocean facts",
		TargetDurationSec: 30,
		AddCaptions:       true,
		Status:            types.StatusQueued,
		Artifacts:         make(map[types.Stage]types.Artifact),
		CreatedAt:         now,
	}
	require.NoError(t, s.Create(ctx, job))

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "ocean facts", got.Topic)
	assert.Equal(t, types.StatusQueued, got.Status)
	assert.True(t, got.AddCaptions)
	assert.Empty(t, got.Artifacts)
}

func TestSQLiteUpdatePersistsArtifactsAndError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	job := &types.Job{
		ID:        "job-2",
		Topic:     "space",
		Status:    types.StatusQueued,
		Artifacts: make(map[types.Stage]types.Artifact),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Create(ctx, job))

	require.NoError(t, s.Update(ctx, "job-2", func(j *types.Job) error {
		j.Status = types.StatusProcessing
		j.Progress = 25
		j.Artifacts[types.StageScript] = types.Artifact{
			Kind: types.KindText, Path: "script.txt", Provider: "rytr",
		}
		return nil
	}))

	require.NoError(t, s.Update(ctx, "job-2", func(j *types.Job) error {
		j.Status = types.StatusFailed
		j.Error = &types.JobError{Stage: types.StageVoice, Message: "provider down"}
		now := time.Now().UTC()
		j.CompletedAt = &now
		return nil
	}))

	got, err := s.Get(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, 25, got.Progress)
	require.NotNil(t, got.Error)
	assert.Equal(t, types.StageVoice, got.Error.Stage)
	assert.Equal(t, "provider down", got.Error.Message)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, "rytr", got.Artifacts[types.StageScript].Provider)
}

func TestSQLiteDuplicateAndNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	job := &types.Job{
		ID:        "job-3",
		Topic:     "x",
		Status:    types.StatusQueued,
		Artifacts: make(map[types.Stage]types.Artifact),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Create(ctx, job))
	assert.ErrorIs(t, s.Create(ctx, job), store.ErrDuplicate)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.Update(ctx, "missing", func(j *types.Job) error { return nil })
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLiteListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"old", "mid", "new"} {
		job := &types.Job{
			ID:        id,
			Topic:     "t",
			Status:    types.StatusQueued,
			Artifacts: make(map[types.Stage]types.Artifact),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.Create(ctx, job))
	}

	jobs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "new", jobs[0].ID)
	assert.Equal(t, "old", jobs[2].ID)
}
