package generators

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"shortgen/config"
	"shortgen/types"
)

// ScriptGenerator produces the narration script via a Rytr-style completion
// API.
type ScriptGenerator struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *logrus.Logger
}

func NewScriptGenerator(cfg config.ProviderConfig, apiKey string, log *logrus.Logger) *ScriptGenerator {
	return &ScriptGenerator{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
}

type rytrRequest struct {
	LanguageID      string            `json:"languageId"`
	ToneID          string            `json:"toneId"`
	UseCaseID       string            `json:"useCaseId"`
	InputContexts   map[string]string `json:"inputContexts"`
	Variations      int               `json:"variations"`
	CreativityLevel int               `json:"creativityLevel"`
	Format          string            `json:"format"`
}

type rytrResponse struct {
	Data struct {
		Content string `json:"content"`
	} `json:"data"`
}

func (g *ScriptGenerator) Stage() types.Stage { return types.StageScript }

func (g *ScriptGenerator) Generate(ctx context.Context, req Request) (*types.Artifact, error) {
	log := g.log.WithField("stage", g.Stage())
	prompt := buildScriptPrompt(req.Topic, req.TargetDurationSec)

	payload := rytrRequest{
		LanguageID: "English",
		ToneID:     "engaging",
		UseCaseID:  "video_script",
		InputContexts: map[string]string{
			"CONTEXT": prompt,
		},
		Variations:      1,
		CreativityLevel: 4,
		Format:          "text",
	}

	headers := map[string]string{"Authentication": "Bearer " + g.apiKey}

	var resp rytrResponse
	err := withRetry(ctx, log, func() error {
		return postJSON(ctx, g.client, g.baseURL+"/ryte", headers, payload, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("script generation: %w", err)
	}

	script := strings.TrimSpace(resp.Data.Content)
	if script == "" {
		return nil, fmt.Errorf("script generation: provider returned empty content")
	}

	if err := writeFile(req.OutputPath, []byte(script)); err != nil {
		return nil, fmt.Errorf("write script: %w", err)
	}

	log.WithField("words", len(strings.Fields(script))).Info("Script ready")
	return &types.Artifact{
		Kind:     types.KindText,
		Path:     req.OutputPath,
		Provider: "rytr",
		Prompt:   prompt,
	}, nil
}

// buildScriptPrompt sizes the script to the target duration at an average
// speaking rate of 150 words per minute.
func buildScriptPrompt(topic string, durationSec int) string {
	wordCount := durationSec * 150 / 60
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Create a script for a YouTube Short about %s.\n", topic))
	sb.WriteString(fmt.Sprintf("The video should be engaging, concise, and approximately %d seconds long.\n", durationSec))
	sb.WriteString("Focus on delivering value quickly with a hook in the first 3 seconds.\n")
	sb.WriteString("Include a clear call-to-action at the end.\n")
	sb.WriteString(fmt.Sprintf("Keep the total word count around %d words.", wordCount))
	return sb.String()
}
