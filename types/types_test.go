package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestJobClone(t *testing.T) {
	now := time.Now().UTC()
	job := &Job{
		ID:        "a",
		Status:    StatusFailed,
		Artifacts: map[Stage]Artifact{StageScript: {Kind: KindText, Path: "s.txt"}},
		Error:     &JobError{Stage: StageVoice, Message: "boom"},
		CreatedAt: now,
	}

	clone := job.Clone()
	clone.Artifacts[StageVoice] = Artifact{Kind: KindAudio}
	clone.Error.Message = "changed"

	assert.NotContains(t, job.Artifacts, StageVoice)
	assert.Equal(t, "boom", job.Error.Message)
}

func TestNewJobResponseStageOrder(t *testing.T) {
	job := &Job{
		ID:     "a",
		Status: StatusProcessing,
		Artifacts: map[Stage]Artifact{
			StageVideo:  {Kind: KindVideo},
			StageScript: {Kind: KindText},
			StageVoice:  {Kind: KindAudio},
		},
	}

	resp := NewJobResponse(job)
	assert.Equal(t, []Stage{StageScript, StageVoice, StageVideo}, resp.Stages)
}
