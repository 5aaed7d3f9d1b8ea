package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"shortgen/store"
	"shortgen/types"
)

// Progress checkpoints after each stage completes.
const (
	progressScript = 25
	progressVoice  = 50
	progressMusic  = 75
	progressVideo  = 90
	progressDone   = 100
)

// machine owns one job's lifecycle. Every mutation goes through the store's
// Update so stage completions become visible to pollers atomically and in
// order. Exactly one terminal transition happens per job; terminal states
// are immutable.
type machine struct {
	store store.Store
	id    string
	log   *logrus.Entry
}

func newMachine(s store.Store, id string, log *logrus.Entry) *machine {
	return &machine{store: s, id: id, log: log}
}

// begin moves Queued -> Processing and zeroes progress.
func (m *machine) begin(ctx context.Context) error {
	return m.store.Update(ctx, m.id, func(job *types.Job) error {
		if job.Status != types.StatusQueued {
			return fmt.Errorf("cannot begin job in state %q", job.Status)
		}
		job.Status = types.StatusProcessing
		job.Progress = 0
		return nil
	})
}

// stageDone records the stage artifact and advances progress to the stage's
// checkpoint. Progress never moves backwards: music and video may finish in
// either order when generated concurrently.
func (m *machine) stageDone(ctx context.Context, stage types.Stage, artifact types.Artifact, checkpoint int) error {
	return m.store.Update(ctx, m.id, func(job *types.Job) error {
		if job.Status != types.StatusProcessing {
			return fmt.Errorf("stage %s completed while job is %q", stage, job.Status)
		}
		job.Artifacts[stage] = artifact
		if checkpoint > job.Progress {
			job.Progress = checkpoint
		}
		return nil
	})
}

// fail is the terminal transition for any stage, reconciliation, or
// composition error. Artifacts from earlier stages stay recorded for
// diagnostics.
func (m *machine) fail(ctx context.Context, stage types.Stage, cause error) {
	// The job context may already be cancelled when a stage fails; the
	// terminal write must still land.
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	err := m.store.Update(ctx, m.id, func(job *types.Job) error {
		if job.Status.Terminal() {
			return nil
		}
		job.Status = types.StatusFailed
		job.Error = &types.JobError{Stage: stage, Message: cause.Error()}
		now := time.Now().UTC()
		job.CompletedAt = &now
		return nil
	})
	if err != nil {
		m.log.WithError(err).Error("Failed to record job failure")
	}
	m.log.WithFields(logrus.Fields{
		"stage": stage,
	}).WithError(cause).Error("Job failed")
}

// complete is the terminal transition on composition success.
func (m *machine) complete(ctx context.Context, final types.Artifact) error {
	return m.store.Update(ctx, m.id, func(job *types.Job) error {
		if job.Status != types.StatusProcessing {
			return fmt.Errorf("cannot complete job in state %q", job.Status)
		}
		job.Artifacts[types.StageFinal] = final
		job.Status = types.StatusCompleted
		job.Progress = progressDone
		now := time.Now().UTC()
		job.CompletedAt = &now
		return nil
	})
}
