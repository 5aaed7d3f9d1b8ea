package config

import (
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Providers ProvidersConfig `yaml:"providers"`
	Audio     AudioConfig     `yaml:"audio"`
	Captions  CaptionsConfig  `yaml:"captions"`
	Paths     PathsConfig     `yaml:"paths"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	RateLimit    int           `yaml:"rate_limit"`
	RateBurst    int           `yaml:"rate_burst"`
}

type PipelineConfig struct {
	DefaultDurationSec int           `yaml:"default_duration_sec"`
	MaxDurationSec     int           `yaml:"max_duration_sec"`
	StageTimeout       time.Duration `yaml:"stage_timeout"`
}

type ProvidersConfig struct {
	Script ProviderConfig `yaml:"script"`
	Voice  ProviderConfig `yaml:"voice"`
	Music  ProviderConfig `yaml:"music"`
	Video  ProviderConfig `yaml:"video"`
}

type ProviderConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Model        string        `yaml:"model"`
	DefaultVoice string        `yaml:"default_voice"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

type AudioConfig struct {
	MusicGainDB float64 `yaml:"music_gain_db"`
	SampleRate  int     `yaml:"sample_rate"`
	FadeOutSec  float64 `yaml:"fade_out_sec"`
}

type CaptionsConfig struct {
	Position     string `yaml:"position"` // top | center | bottom
	Font         string `yaml:"font"`
	FontSize     int    `yaml:"font_size"`
	FontColor    string `yaml:"font_color"`
	BorderWidth  int    `yaml:"border_width"`
	MarginBottom int    `yaml:"margin_bottom"`
}

type PathsConfig struct {
	Output   string `yaml:"output"`
	Logs     string `yaml:"logs"`
	Database string `yaml:"database"` // empty: in-memory job store only
}

// Secrets holds provider credentials. Supplied via environment, never via
// config.yaml.
type Secrets struct {
	ScriptAPIKey string `envconfig:"RYTR_API_KEY"`
	VoiceAPIKey  string `envconfig:"ELEVENLABS_API_KEY"`
	MusicAPIKey  string `envconfig:"SUNO_API_KEY"`
	VideoAPIKey  string `envconfig:"RUNWAY_API_KEY"`
}

// Load reads config.yaml, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadSecrets reads provider credentials from the environment.
func LoadSecrets() (*Secrets, error) {
	var s Secrets
	if err := envconfig.Process("", &s); err != nil {
		return nil, errors.Wrap(err, "process env")
	}
	return &s, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 5
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = 10
	}
	if c.Pipeline.DefaultDurationSec == 0 {
		c.Pipeline.DefaultDurationSec = 30
	}
	if c.Pipeline.MaxDurationSec == 0 {
		c.Pipeline.MaxDurationSec = 180
	}
	if c.Pipeline.StageTimeout == 0 {
		c.Pipeline.StageTimeout = 10 * time.Minute
	}
	for _, p := range []*ProviderConfig{&c.Providers.Script, &c.Providers.Voice, &c.Providers.Music, &c.Providers.Video} {
		if p.PollInterval == 0 {
			p.PollInterval = 5 * time.Second
		}
		if p.Timeout == 0 {
			p.Timeout = 60 * time.Second
		}
	}
	if c.Providers.Script.BaseURL == "" {
		c.Providers.Script.BaseURL = "https://api.rytr.me/v1"
	}
	if c.Providers.Voice.BaseURL == "" {
		c.Providers.Voice.BaseURL = "https://api.elevenlabs.io/v1"
	}
	if c.Providers.Voice.Model == "" {
		c.Providers.Voice.Model = "eleven_turbo_v2"
	}
	if c.Providers.Music.BaseURL == "" {
		c.Providers.Music.BaseURL = "https://api.suno.ai/v1"
	}
	if c.Providers.Video.BaseURL == "" {
		c.Providers.Video.BaseURL = "https://api.runwayml.com/v1"
	}
	if c.Audio.MusicGainDB == 0 {
		c.Audio.MusicGainDB = -10
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 44100
	}
	if c.Audio.FadeOutSec == 0 {
		c.Audio.FadeOutSec = 3
	}
	if c.Captions.Position == "" {
		c.Captions.Position = "bottom"
	}
	if c.Captions.Font == "" {
		c.Captions.Font = "Arial"
	}
	if c.Captions.FontSize == 0 {
		c.Captions.FontSize = 40
	}
	if c.Captions.FontColor == "" {
		c.Captions.FontColor = "white"
	}
	if c.Captions.BorderWidth == 0 {
		c.Captions.BorderWidth = 2
	}
	if c.Captions.MarginBottom == 0 {
		c.Captions.MarginBottom = 50
	}
	if c.Paths.Output == "" {
		c.Paths.Output = "output"
	}
	if c.Paths.Logs == "" {
		c.Paths.Logs = "logs"
	}
}

func (c *Config) Validate() error {
	if c.Pipeline.DefaultDurationSec <= 0 {
		return errors.New("pipeline default duration must be positive")
	}
	if c.Pipeline.MaxDurationSec < c.Pipeline.DefaultDurationSec {
		return errors.New("pipeline max duration must be >= default duration")
	}
	if c.Audio.MusicGainDB > 0 {
		return errors.New("music gain must not amplify above the voice track")
	}
	switch c.Captions.Position {
	case "top", "center", "bottom":
	default:
		return errors.Errorf("unknown caption position %q", c.Captions.Position)
	}
	return nil
}
