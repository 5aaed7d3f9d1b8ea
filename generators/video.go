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

// Shorts are 9:16 portrait at 24fps.
const (
	videoWidth  = 768
	videoHeight = 1344
	videoFPS    = 24
)

// VideoGenerator produces the background video via a Runway-style
// asynchronous text-to-video API.
type VideoGenerator struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	client       *http.Client
	prober       media.Prober
	log          *logrus.Logger
}

func NewVideoGenerator(cfg config.ProviderConfig, apiKey string, prober media.Prober, log *logrus.Logger) *VideoGenerator {
	return &VideoGenerator{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:       apiKey,
		pollInterval: cfg.PollInterval,
		client:       &http.Client{Timeout: cfg.Timeout},
		prober:       prober,
		log:          log,
	}
}

type videoGenerateRequest struct {
	Prompt    string `json:"prompt"`
	NumFrames int    `json:"num_frames"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type videoGenerateResponse struct {
	ID string `json:"id"`
}

type videoStatusResponse struct {
	Status string `json:"status"`
	Output struct {
		Video string `json:"video"`
	} `json:"output"`
	Error string `json:"error"`
}

func (g *VideoGenerator) Stage() types.Stage { return types.StageVideo }

func (g *VideoGenerator) Generate(ctx context.Context, req Request) (*types.Artifact, error) {
	log := g.log.WithField("stage", g.Stage())
	headers := map[string]string{"Authorization": "Bearer " + g.apiKey}

	payload := videoGenerateRequest{
		Prompt:    req.Prompt,
		NumFrames: req.TargetDurationSec * videoFPS,
		Width:     videoWidth,
		Height:    videoHeight,
	}

	var created videoGenerateResponse
	err := withRetry(ctx, log, func() error {
		return postJSON(ctx, g.client, g.baseURL+"/text-to-video", headers, payload, &created)
	})
	if err != nil {
		return nil, fmt.Errorf("video generation: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("video generation: provider returned no generation id")
	}

	log.WithField("generation_id", created.ID).Info("Video generation started, polling")

	statusURL := fmt.Sprintf("%s/generations/%s", g.baseURL, created.ID)
	videoURL, err := g.poll(ctx, statusURL, headers)
	if err != nil {
		return nil, fmt.Errorf("video generation: %w", err)
	}

	if err := download(ctx, g.client, videoURL, req.OutputPath); err != nil {
		return nil, fmt.Errorf("video generation: download: %w", err)
	}

	duration, err := g.prober.Duration(ctx, req.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("video generation: measure duration: %w", err)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("video generation: artifact has zero duration")
	}

	log.WithField("duration", duration).Info("Video ready")
	return &types.Artifact{
		Kind:        types.KindVideo,
		Path:        req.OutputPath,
		DurationSec: duration,
		Provider:    "runway",
		Prompt:      req.Prompt,
	}, nil
}

func (g *VideoGenerator) poll(ctx context.Context, statusURL string, headers map[string]string) (string, error) {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		var status videoStatusResponse
		if err := getJSON(ctx, g.client, statusURL, headers, &status); err != nil {
			return "", err
		}

		switch status.Status {
		case "completed":
			if status.Output.Video == "" {
				return "", fmt.Errorf("completed generation has no video url")
			}
			return status.Output.Video, nil
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
