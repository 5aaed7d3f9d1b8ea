// Package pipeline is the orchestration core: it accepts creation requests,
// allocates jobs, and drives the stage sequence
// script -> voice -> music/video -> compose for each one.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"shortgen/config"
	apperrors "shortgen/errors"
	"shortgen/generators"
	"shortgen/media"
	"shortgen/store"
	"shortgen/types"
)

// Adapters groups the four generation stages the orchestrator drives.
type Adapters struct {
	Script generators.Generator
	Voice  generators.Generator
	Music  generators.Generator
	Video  generators.Generator
}

type Orchestrator struct {
	store      store.Store
	adapters   Adapters
	reconciler media.Reconciler
	composer   media.Composer
	cfg        config.PipelineConfig
	audio      config.AudioConfig
	outputDir  string
	log        *logrus.Logger

	cancels sync.Map // job id -> context.CancelFunc
	wg      sync.WaitGroup
}

func New(
	s store.Store,
	adapters Adapters,
	reconciler media.Reconciler,
	composer media.Composer,
	cfg config.PipelineConfig,
	audio config.AudioConfig,
	outputDir string,
	log *logrus.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:      s,
		adapters:   adapters,
		reconciler: reconciler,
		composer:   composer,
		cfg:        cfg,
		audio:      audio,
		outputDir:  outputDir,
		log:        log,
	}
}

// SubmitRequest is the creation request for one short.
type SubmitRequest struct {
	Topic             string
	TargetDurationSec int
	AddCaptions       *bool // nil: default true
	VoicePreference   string
}

// Submit validates the request, registers a Queued job, and starts its
// runner. It never blocks on generation.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*types.Job, error) {
	const op = "Orchestrator.Submit"

	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, apperrors.InvalidInput(op, nil, "topic is required")
	}
	duration := req.TargetDurationSec
	if duration == 0 {
		duration = o.cfg.DefaultDurationSec
	}
	if duration < 0 {
		return nil, apperrors.InvalidInput(op, nil, "target duration must be positive")
	}
	if duration > o.cfg.MaxDurationSec {
		return nil, apperrors.InvalidInput(op, nil,
			fmt.Sprintf("target duration exceeds maximum of %d seconds", o.cfg.MaxDurationSec))
	}
	addCaptions := true
	if req.AddCaptions != nil {
		addCaptions = *req.AddCaptions
	}

	job := &types.Job{
		ID:                uuid.NewString(),
		Topic:             topic,
		TargetDurationSec: duration,
		AddCaptions:       addCaptions,
		VoicePreference:   req.VoicePreference,
		Status:            types.StatusQueued,
		Artifacts:         make(map[types.Stage]types.Artifact),
		CreatedAt:         time.Now().UTC(),
	}

	if err := o.store.Create(ctx, job); err != nil {
		return nil, apperrors.Internal(op, err, "failed to create job")
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	o.cancels.Store(job.ID, cancel)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		defer o.cancels.Delete(job.ID)
		o.run(jobCtx, job.Clone())
	}()

	o.log.WithFields(logrus.Fields{
		"job_id": job.ID,
		"topic":  topic,
	}).Info("Job submitted")
	return job.Clone(), nil
}

// GetStatus returns a snapshot of the job.
func (o *Orchestrator) GetStatus(ctx context.Context, id string) (*types.Job, error) {
	const op = "Orchestrator.GetStatus"
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, apperrors.NotFound(op, err, "job not found")
	}
	return job, nil
}

// ListJobs returns snapshots of all jobs, newest first.
func (o *Orchestrator) ListJobs(ctx context.Context) ([]*types.Job, error) {
	const op = "Orchestrator.ListJobs"
	jobs, err := o.store.List(ctx)
	if err != nil {
		return nil, apperrors.Internal(op, err, "failed to list jobs")
	}
	return jobs, nil
}

// FetchFinalArtifact returns the final artifact's path. NotReady unless the
// job completed.
func (o *Orchestrator) FetchFinalArtifact(ctx context.Context, id string) (string, error) {
	const op = "Orchestrator.FetchFinalArtifact"
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return "", apperrors.NotFound(op, err, "job not found")
	}
	if job.Status != types.StatusCompleted {
		return "", apperrors.NotReady(op, nil,
			fmt.Sprintf("job is %s, final artifact not available", job.Status))
	}
	final, ok := job.Artifacts[types.StageFinal]
	if !ok {
		return "", apperrors.Internal(op, nil, "completed job has no final artifact")
	}
	return final.Path, nil
}

// Cancel signals the job's runner; the runner honors it between stages.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	const op = "Orchestrator.Cancel"
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return apperrors.NotFound(op, err, "job not found")
	}
	if job.Status.Terminal() {
		return apperrors.InvalidInput(op, nil, "job already finished")
	}
	if cancel, ok := o.cancels.Load(id); ok {
		cancel.(context.CancelFunc)()
	}
	return nil
}

// Shutdown waits for in-flight jobs to settle. Callers cancel jobs first if
// they do not want to wait out running stages.
func (o *Orchestrator) Shutdown() {
	o.wg.Wait()
}

// stageContext threads derived parameters from stage to stage. Each stage
// reads what it needs and writes its own outputs back.
type stageContext struct {
	dir          string
	scriptText   string
	referenceSec float64
	voicePath    string
	musicPath    string
	videoPath    string
}

// run executes the full stage sequence for one job. Any error is caught
// here, classified, and recorded; nothing escapes to take the process down.
func (o *Orchestrator) run(ctx context.Context, job *types.Job) {
	log := o.log.WithField("job_id", job.ID)
	m := newMachine(o.store, job.ID, log)

	if err := m.begin(ctx); err != nil {
		log.WithError(err).Error("Failed to start job")
		// A job must never sit non-terminal forever because a store write
		// failed; the fail transition is a no-op if the job is already done.
		m.fail(context.Background(), types.StageScript, fmt.Errorf("start job: %w", err))
		return
	}

	sc := &stageContext{dir: filepath.Join(o.outputDir, job.ID)}
	if err := os.MkdirAll(sc.dir, 0755); err != nil {
		m.fail(ctx, types.StageScript, fmt.Errorf("create job dir: %w", err))
		return
	}

	if !o.runGeneration(ctx, m, job, sc) {
		return
	}
	if !o.runComposition(ctx, m, job, sc) {
		return
	}
	log.Info("Job completed")
}

// stageCtx bounds a single stage. A stage that outlives the timeout fails
// like any other provider error.
func (o *Orchestrator) stageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.StageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.cfg.StageTimeout)
}

// runGeneration covers script, voice, and the concurrent music/video pair.
// Returns false if the job reached a terminal failure.
func (o *Orchestrator) runGeneration(ctx context.Context, m *machine, job *types.Job, sc *stageContext) bool {
	// Script.
	if cancelled(ctx) {
		m.fail(ctx, types.StageScript, errCancelled)
		return false
	}
	scriptCtx, cancelScript := o.stageCtx(ctx)
	scriptArt, err := o.adapters.Script.Generate(scriptCtx, generators.Request{
		Topic:             job.Topic,
		TargetDurationSec: job.TargetDurationSec,
		OutputPath:        filepath.Join(sc.dir, "script.txt"),
	})
	cancelScript()
	if err != nil {
		m.fail(ctx, types.StageScript, err)
		return false
	}
	text, err := os.ReadFile(scriptArt.Path)
	if err != nil {
		m.fail(ctx, types.StageScript, fmt.Errorf("read script artifact: %w", err))
		return false
	}
	sc.scriptText = string(text)
	if err := m.stageDone(ctx, types.StageScript, *scriptArt, progressScript); err != nil {
		m.fail(ctx, types.StageScript, fmt.Errorf("record script stage: %w", err))
		return false
	}

	// Voice. Its measured duration becomes the reference every later stage
	// is reconciled against.
	if cancelled(ctx) {
		m.fail(ctx, types.StageVoice, errCancelled)
		return false
	}
	voiceCtx, cancelVoice := o.stageCtx(ctx)
	voiceArt, err := o.adapters.Voice.Generate(voiceCtx, generators.Request{
		Topic:      job.Topic,
		ScriptText: sc.scriptText,
		VoiceID:    job.VoicePreference,
		OutputPath: filepath.Join(sc.dir, "voiceover.mp3"),
	})
	cancelVoice()
	if err != nil {
		m.fail(ctx, types.StageVoice, err)
		return false
	}
	sc.referenceSec = voiceArt.DurationSec
	sc.voicePath = voiceArt.Path
	if err := m.stageDone(ctx, types.StageVoice, *voiceArt, progressVoice); err != nil {
		m.fail(ctx, types.StageVoice, fmt.Errorf("record voice stage: %w", err))
		return false
	}

	// Music and video hit independent providers; both are generated against
	// the same captured reference duration, so they can run concurrently.
	if cancelled(ctx) {
		m.fail(ctx, types.StageMusic, errCancelled)
		return false
	}
	hintSec := int(math.Ceil(sc.referenceSec))

	g, gctx := errgroup.WithContext(ctx)

	// The sibling stage errors too once the group context is cancelled, so
	// stage and cause are recorded together and a real failure is never
	// displaced by the cancellation it triggered.
	var mu sync.Mutex
	var failedStage types.Stage
	var failedErr error
	record := func(stage types.Stage, err error) {
		mu.Lock()
		defer mu.Unlock()
		if failedErr == nil || (errors.Is(failedErr, context.Canceled) && !errors.Is(err, context.Canceled)) {
			failedStage, failedErr = stage, err
		}
	}

	g.Go(func() error {
		musicCtx, cancel := o.stageCtx(gctx)
		defer cancel()
		art, err := o.adapters.Music.Generate(musicCtx, generators.Request{
			Topic:             job.Topic,
			TargetDurationSec: hintSec,
			Prompt:            musicPrompt(job.Topic),
			OutputPath:        filepath.Join(sc.dir, "music.mp3"),
		})
		if err == nil {
			sc.musicPath = art.Path
			err = m.stageDone(gctx, types.StageMusic, *art, progressMusic)
		}
		if err != nil {
			record(types.StageMusic, err)
		}
		return err
	})

	g.Go(func() error {
		videoCtx, cancel := o.stageCtx(gctx)
		defer cancel()
		art, err := o.adapters.Video.Generate(videoCtx, generators.Request{
			Topic:             job.Topic,
			TargetDurationSec: hintSec,
			Prompt:            videoPrompt(job.Topic),
			OutputPath:        filepath.Join(sc.dir, "video.mp4"),
		})
		if err == nil {
			sc.videoPath = art.Path
			err = m.stageDone(gctx, types.StageVideo, *art, progressVideo)
		}
		if err != nil {
			record(types.StageVideo, err)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		mu.Lock()
		stage, cause := failedStage, failedErr
		mu.Unlock()
		if cause == nil {
			stage, cause = types.StageMusic, err
		}
		m.fail(ctx, stage, cause)
		return false
	}
	return true
}

// runComposition reconciles music and video against the reference duration
// and merges everything into the final artifact.
func (o *Orchestrator) runComposition(ctx context.Context, m *machine, job *types.Job, sc *stageContext) bool {
	if cancelled(ctx) {
		m.fail(ctx, types.StageCompose, errCancelled)
		return false
	}

	snapshot, err := o.store.Get(ctx, job.ID)
	if err != nil {
		m.fail(ctx, types.StageCompose, err)
		return false
	}

	reconciledMusic := filepath.Join(sc.dir, "music_reconciled.mp3")
	musicArt := snapshot.Artifacts[types.StageMusic]
	if err := o.reconciler.Reconcile(ctx, sc.musicPath, types.KindAudio, musicArt.DurationSec, sc.referenceSec, reconciledMusic); err != nil {
		m.fail(ctx, types.StageMusic, fmt.Errorf("reconcile music: %w", err))
		return false
	}

	reconciledVideo := sc.videoPath
	videoArt := snapshot.Artifacts[types.StageVideo]
	if math.Abs(videoArt.DurationSec-sc.referenceSec) > media.DurationEpsilon {
		reconciledVideo = filepath.Join(sc.dir, "video_reconciled.mp4")
		if err := o.reconciler.Reconcile(ctx, sc.videoPath, types.KindVideo, videoArt.DurationSec, sc.referenceSec, reconciledVideo); err != nil {
			m.fail(ctx, types.StageVideo, fmt.Errorf("reconcile video: %w", err))
			return false
		}
	}

	finalPath := filepath.Join(sc.dir, "final.mp4")
	err = o.composer.Compose(ctx, media.ComposeInput{
		VideoPath:   reconciledVideo,
		VoicePath:   sc.voicePath,
		MusicPath:   reconciledMusic,
		ScriptText:  sc.scriptText,
		AddCaptions: job.AddCaptions,
		MusicGainDB: o.audio.MusicGainDB,
		OutputPath:  finalPath,
	})
	if err != nil {
		m.fail(ctx, types.StageCompose, err)
		return false
	}

	final := types.Artifact{
		Kind:        types.KindVideo,
		Path:        finalPath,
		DurationSec: sc.referenceSec,
	}
	if err := m.complete(ctx, final); err != nil {
		o.log.WithField("job_id", job.ID).WithError(err).Error("Failed to record completion")
		m.fail(context.Background(), types.StageCompose, fmt.Errorf("record completion: %w", err))
		return false
	}

	o.writeMetadata(job.ID, sc)
	return true
}

// writeMetadata drops a metadata.json beside the final artifact. Diagnostic
// only; a write failure does not affect the job.
func (o *Orchestrator) writeMetadata(jobID string, sc *stageContext) {
	job, err := o.store.Get(context.Background(), jobID)
	if err != nil {
		return
	}
	meta := map[string]any{
		"topic":        job.Topic,
		"duration_sec": sc.referenceSec,
		"artifacts":    job.Artifacts,
		"created_at":   job.CreatedAt,
		"completed_at": job.CompletedAt,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(sc.dir, "metadata.json"), data, 0644); err != nil {
		o.log.WithField("job_id", jobID).WithError(err).Warn("Could not write metadata")
	}
}

var errCancelled = fmt.Errorf("cancelled")

func cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}

func musicPrompt(topic string) string {
	return fmt.Sprintf("Background music for a YouTube Short about %s. Upbeat, energetic, and engaging.", topic)
}

func videoPrompt(topic string) string {
	return fmt.Sprintf("A visually engaging YouTube Short about %s. Dynamic visuals with motion and energy.", topic)
}
