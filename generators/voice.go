package generators

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"shortgen/config"
	"shortgen/media"
	"shortgen/types"
)

// VoiceGenerator produces the voiceover via an ElevenLabs-style TTS API and
// measures the spoken duration of the result. That measurement becomes the
// pipeline's reference duration, so an unmeasurable or zero-length artifact
// is a failure here, not later.
type VoiceGenerator struct {
	baseURL      string
	apiKey       string
	model        string
	defaultVoice string
	client       *http.Client
	prober       media.Prober
	log          *logrus.Logger
}

func NewVoiceGenerator(cfg config.ProviderConfig, apiKey string, prober media.Prober, log *logrus.Logger) *VoiceGenerator {
	return &VoiceGenerator{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:       apiKey,
		model:        cfg.Model,
		defaultVoice: cfg.DefaultVoice,
		client:       &http.Client{Timeout: cfg.Timeout},
		prober:       prober,
		log:          log,
	}
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

func (g *VoiceGenerator) Stage() types.Stage { return types.StageVoice }

func (g *VoiceGenerator) Generate(ctx context.Context, req Request) (*types.Artifact, error) {
	log := g.log.WithField("stage", g.Stage())

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = g.defaultVoice
	}
	if voiceID == "" {
		return nil, fmt.Errorf("voice generation: no voice configured")
	}

	payload := ttsRequest{
		Text:    req.ScriptText,
		ModelID: g.model,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	}

	err := withRetry(ctx, log, func() error {
		return g.synthesize(ctx, voiceID, payload, req.OutputPath)
	})
	if err != nil {
		return nil, fmt.Errorf("voice generation: %w", err)
	}

	duration, err := g.prober.Duration(ctx, req.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("voice generation: measure duration: %w", err)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("voice generation: artifact has zero duration")
	}

	log.WithFields(logrus.Fields{
		"voice":    voiceID,
		"duration": duration,
	}).Info("Voiceover ready")

	return &types.Artifact{
		Kind:        types.KindAudio,
		Path:        req.OutputPath,
		DurationSec: duration,
		Provider:    "elevenlabs",
		Prompt:      req.ScriptText,
	}, nil
}

// synthesize posts the TTS request and streams the audio body to disk. The
// provider returns raw audio bytes, not JSON.
func (g *VoiceGenerator) synthesize(ctx context.Context, voiceID string, payload ttsRequest, path string) error {
	url := fmt.Sprintf("%s/text-to-speech/%s", g.baseURL, voiceID)

	body, err := encodeJSON(payload)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mp3")
	httpReq.Header.Set("xi-api-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, data)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return writeFile(path, audio)
}
