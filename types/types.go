package types

import "time"

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions can occur.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage identifies one step of the pipeline. StageFinal is the artifact key
// for the composed output, not an executable stage.
type Stage string

const (
	StageScript  Stage = "script"
	StageVoice   Stage = "voice"
	StageMusic   Stage = "music"
	StageVideo   Stage = "video"
	StageCompose Stage = "compose"
	StageFinal   Stage = "final"
)

// ArtifactKind is the media type of a generated artifact.
type ArtifactKind string

const (
	KindText  ArtifactKind = "text"
	KindAudio ArtifactKind = "audio"
	KindVideo ArtifactKind = "video"
)

// Artifact is a handle to one generated media unit. Immutable once created.
type Artifact struct {
	Kind        ArtifactKind `json:"kind"`
	Path        string       `json:"path"`
	DurationSec float64      `json:"duration_sec,omitempty"`
	Provider    string       `json:"provider,omitempty"`
	Prompt      string       `json:"prompt,omitempty"`
}

// JobError records which stage failed and why.
type JobError struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// Job tracks one request's full lifecycle.
type Job struct {
	ID                string             `json:"id"`
	Topic             string             `json:"topic"`
	TargetDurationSec int                `json:"target_duration_sec"`
	AddCaptions       bool               `json:"add_captions"`
	VoicePreference   string             `json:"voice_preference,omitempty"`
	Status            Status             `json:"status"`
	Progress          int                `json:"progress"`
	Artifacts         map[Stage]Artifact `json:"artifacts"`
	Error             *JobError          `json:"error,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
}

func (j *Job) IsProcessing() bool { return j.Status == StatusProcessing }
func (j *Job) IsCompleted() bool  { return j.Status == StatusCompleted }
func (j *Job) IsFailed() bool     { return j.Status == StatusFailed }

// Clone returns a deep copy safe to hand to concurrent readers.
func (j *Job) Clone() *Job {
	out := *j
	out.Artifacts = make(map[Stage]Artifact, len(j.Artifacts))
	for k, v := range j.Artifacts {
		out.Artifacts[k] = v
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// JobResponse is the client-visible snapshot of a job. Internal artifact
// paths are deliberately excluded.
type JobResponse struct {
	ID                string     `json:"id"`
	Topic             string     `json:"topic"`
	TargetDurationSec int        `json:"target_duration_sec"`
	Status            Status     `json:"status"`
	Progress          int        `json:"progress"`
	Stages            []Stage    `json:"stages,omitempty"`
	Error             *JobError  `json:"error,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// NewJobResponse builds a response from a job snapshot. Stages lists the
// artifact keys recorded so far, in pipeline order.
func NewJobResponse(j *Job) *JobResponse {
	resp := &JobResponse{
		ID:                j.ID,
		Topic:             j.Topic,
		TargetDurationSec: j.TargetDurationSec,
		Status:            j.Status,
		Progress:          j.Progress,
		Error:             j.Error,
		CreatedAt:         j.CreatedAt,
		CompletedAt:       j.CompletedAt,
	}
	for _, s := range []Stage{StageScript, StageVoice, StageMusic, StageVideo, StageFinal} {
		if _, ok := j.Artifacts[s]; ok {
			resp.Stages = append(resp.Stages, s)
		}
	}
	return resp
}
