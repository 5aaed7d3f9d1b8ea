package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// CaptionStyle controls the drawtext overlay burned over the final clip.
type CaptionStyle struct {
	Position     string // top | center | bottom
	Font         string
	FontSize     int
	FontColor    string
	BorderWidth  int
	MarginBottom int
}

// ComposeInput holds everything the composer needs: the reconciled video,
// the voice track, the reconciled music track, and the script text for
// captions.
type ComposeInput struct {
	VideoPath   string
	VoicePath   string
	MusicPath   string
	ScriptText  string
	AddCaptions bool
	MusicGainDB float64
	OutputPath  string
}

// Composer merges the media streams into the final artifact.
type Composer interface {
	Compose(ctx context.Context, in ComposeInput) error
}

// FFmpegComposer builds the final clip in three ffmpeg passes: mix the two
// audio tracks, mux the mix into the video, then burn captions.
type FFmpegComposer struct {
	SampleRate int
	Captions   CaptionStyle
	Log        *logrus.Logger
}

func NewFFmpegComposer(sampleRate int, captions CaptionStyle, log *logrus.Logger) *FFmpegComposer {
	return &FFmpegComposer{SampleRate: sampleRate, Captions: captions, Log: log}
}

func (c *FFmpegComposer) Compose(ctx context.Context, in ComposeInput) error {
	for _, path := range []string{in.VideoPath, in.VoicePath, in.MusicPath} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("unreadable input artifact: %w", err)
		}
	}

	log := c.Log.WithField("output", in.OutputPath)
	workDir := filepath.Dir(in.OutputPath)

	log.Info("Mixing voice and music tracks")
	mixedAudio := filepath.Join(workDir, "audio_mixed.m4a")
	if err := c.mixAudio(ctx, in.VoicePath, in.MusicPath, in.MusicGainDB, mixedAudio); err != nil {
		return fmt.Errorf("mix audio: %w", err)
	}

	muxed := in.OutputPath
	if in.AddCaptions {
		muxed = filepath.Join(workDir, "video_muxed.mp4")
	}

	log.Info("Muxing audio into video")
	if err := c.muxVideoAudio(ctx, in.VideoPath, mixedAudio, muxed); err != nil {
		return fmt.Errorf("mux video+audio: %w", err)
	}

	if !in.AddCaptions {
		return nil
	}

	log.Info("Burning captions")
	if err := c.burnCaptions(ctx, muxed, in.ScriptText, in.OutputPath); err != nil {
		return fmt.Errorf("burn captions: %w", err)
	}
	return nil
}

// mixAudio sums the voice track at full gain with the music track attenuated
// by gainDB. The music is resampled to the voice's rate and downmixed before
// summation so mismatched inputs still combine.
func (c *FFmpegComposer) mixAudio(ctx context.Context, voice, music string, gainDB float64, out string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-i", voice,
		"-i", music,
		"-filter_complex", buildMixFilter(gainDB, c.SampleRate),
		"-map", "[aout]",
		"-c:a", "aac",
		"-b:a", "192k",
		out,
	)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg audio mix: %w", err)
	}
	return nil
}

func (c *FFmpegComposer) muxVideoAudio(ctx context.Context, video, audio, out string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-i", video,
		"-i", audio,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", "copy",
		"-shortest",
		"-movflags", "+faststart",
		out,
	)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg combine: %w", err)
	}
	return nil
}

func (c *FFmpegComposer) burnCaptions(ctx context.Context, video, text, out string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-i", video,
		"-vf", buildDrawtextFilter(text, c.Captions),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "20",
		"-c:a", "copy",
		out,
	)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg drawtext: %w", err)
	}
	return nil
}

// buildMixFilter attenuates and resamples the music input, then sums it with
// the voice. duration=first keeps the mix at the voice track's length;
// normalize=0 preserves the voice's level.
func buildMixFilter(gainDB float64, sampleRate int) string {
	return fmt.Sprintf(
		"[1:a]volume=%.1fdB,aresample=%d,aformat=channel_layouts=stereo[music];"+
			"[0:a][music]amix=inputs=2:duration=first:normalize=0[aout]",
		gainDB, sampleRate,
	)
}

// buildDrawtextFilter positions the caption per style. drawtext is a pure
// render pass: clip duration is untouched.
func buildDrawtextFilter(text string, style CaptionStyle) string {
	var y string
	switch style.Position {
	case "top":
		y = fmt.Sprintf("%d", style.MarginBottom)
	case "center":
		y = "(h-text_h)/2"
	default: // bottom
		y = fmt.Sprintf("h-text_h-%d", style.MarginBottom)
	}

	return fmt.Sprintf(
		"drawtext=text='%s':font=%s:fontsize=%d:fontcolor=%s:borderw=%d:bordercolor=black:x=(w-text_w)/2:y=%s",
		escapeDrawtext(text), style.Font, style.FontSize, style.FontColor, style.BorderWidth, y,
	)
}

// escapeDrawtext escapes the characters the drawtext filter treats as
// syntax.
func escapeDrawtext(text string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return replacer.Replace(text)
}
