package generators

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"shortgen/config"
	"shortgen/media"
	"shortgen/types"
)

// MusicGenerator produces background music via a Suno-style asynchronous
// API: create a generation, poll until it completes, then download the
// audio.
type MusicGenerator struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	client       *http.Client
	prober       media.Prober
	log          *logrus.Logger
}

func NewMusicGenerator(cfg config.ProviderConfig, apiKey string, prober media.Prober, log *logrus.Logger) *MusicGenerator {
	return &MusicGenerator{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:       apiKey,
		pollInterval: cfg.PollInterval,
		client:       &http.Client{Timeout: cfg.Timeout},
		prober:       prober,
		log:          log,
	}
}

type musicGenerateRequest struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
}

type musicGenerateResponse struct {
	ID string `json:"id"`
}

type musicStatusResponse struct {
	Status   string `json:"status"`
	AudioURL string `json:"audio_url"`
	Error    string `json:"error"`
}

func (g *MusicGenerator) Stage() types.Stage { return types.StageMusic }

func (g *MusicGenerator) Generate(ctx context.Context, req Request) (*types.Artifact, error) {
	log := g.log.WithField("stage", g.Stage())
	headers := map[string]string{"Authorization": "Bearer " + g.apiKey}

	// Duration in the prompt is a hint only; the reconciler enforces the
	// exact length afterwards.
	prompt := fmt.Sprintf("%s. Mood: Background. Duration: approximately %d seconds",
		req.Prompt, req.TargetDurationSec)

	payload := musicGenerateRequest{
		Prompt:   prompt,
		Duration: req.TargetDurationSec,
	}

	var created musicGenerateResponse
	err := withRetry(ctx, log, func() error {
		return postJSON(ctx, g.client, g.baseURL+"/generate", headers, payload, &created)
	})
	if err != nil {
		return nil, fmt.Errorf("music generation: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("music generation: provider returned no generation id")
	}

	log.WithField("generation_id", created.ID).Info("Music generation started, polling")

	statusURL := fmt.Sprintf("%s/generations/%s", g.baseURL, created.ID)
	audioURL, err := g.poll(ctx, statusURL, headers)
	if err != nil {
		return nil, fmt.Errorf("music generation: %w", err)
	}

	if err := download(ctx, g.client, audioURL, req.OutputPath); err != nil {
		return nil, fmt.Errorf("music generation: download: %w", err)
	}

	duration, err := g.prober.Duration(ctx, req.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("music generation: measure duration: %w", err)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("music generation: artifact has zero duration")
	}

	log.WithField("duration", duration).Info("Music ready")
	return &types.Artifact{
		Kind:        types.KindAudio,
		Path:        req.OutputPath,
		DurationSec: duration,
		Provider:    "suno",
		Prompt:      prompt,
	}, nil
}

func (g *MusicGenerator) poll(ctx context.Context, statusURL string, headers map[string]string) (string, error) {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		var status musicStatusResponse
		if err := getJSON(ctx, g.client, statusURL, headers, &status); err != nil {
			return "", err
		}

		switch status.Status {
		case "completed":
			if status.AudioURL == "" {
				return "", fmt.Errorf("completed generation has no audio url")
			}
			return status.AudioURL, nil
		case "failed":
			return "", fmt.Errorf("provider reported failure: %s", status.Error)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
