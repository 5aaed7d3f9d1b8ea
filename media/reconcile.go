package media

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"

	"shortgen/types"
)

// DurationEpsilon is the tolerance when comparing media durations. Container
// durations drift a few milliseconds from the encoded stream, so exact
// comparison is meaningless.
const DurationEpsilon = 0.05

// Reconciler forces a secondary artifact's duration to match a reference
// duration: longer inputs are truncated, shorter inputs are looped from the
// start and then truncated.
type Reconciler interface {
	Reconcile(ctx context.Context, in string, kind types.ArtifactKind, secondary, reference float64, out string) error
}

type reconcileMode int

const (
	modeKeep reconcileMode = iota
	modeTrim
	modeLoop
)

type reconcilePlan struct {
	mode  reconcileMode
	loops int // whole copies concatenated before truncation, loop mode only
}

// planReconcile decides how to force secondary to reference. Loop count is
// ceil(reference/secondary) so the concatenation always covers the reference
// before truncation.
func planReconcile(secondary, reference float64) (reconcilePlan, error) {
	if reference <= 0 {
		return reconcilePlan{}, fmt.Errorf("reference duration must be positive, got %.3f", reference)
	}
	if secondary <= 0 {
		return reconcilePlan{}, fmt.Errorf("secondary duration must be positive, got %.3f", secondary)
	}
	if math.Abs(secondary-reference) <= DurationEpsilon {
		return reconcilePlan{mode: modeKeep}, nil
	}
	if secondary > reference {
		return reconcilePlan{mode: modeTrim}, nil
	}
	return reconcilePlan{
		mode:  modeLoop,
		loops: int(math.Ceil(reference / secondary)),
	}, nil
}

// FFmpegReconciler trims and loops via ffmpeg. Audio outputs get a fade-out
// tail so a mid-beat truncation does not end on a click.
type FFmpegReconciler struct {
	FadeOutSec float64
	Log        *logrus.Logger
}

func NewFFmpegReconciler(fadeOutSec float64, log *logrus.Logger) *FFmpegReconciler {
	return &FFmpegReconciler{FadeOutSec: fadeOutSec, Log: log}
}

func (r *FFmpegReconciler) Reconcile(ctx context.Context, in string, kind types.ArtifactKind, secondary, reference float64, out string) error {
	plan, err := planReconcile(secondary, reference)
	if err != nil {
		return err
	}

	log := r.Log.WithFields(logrus.Fields{
		"input":     in,
		"secondary": secondary,
		"reference": reference,
	})

	if plan.mode == modeKeep {
		log.Debug("Durations already match, copying input")
		return copyFile(in, out)
	}

	args := []string{"-y"}
	if plan.mode == modeLoop {
		log.WithField("loops", plan.loops).Info("Looping input to cover reference duration")
		// -stream_loop N plays the input N+1 times.
		args = append(args, "-stream_loop", fmt.Sprintf("%d", plan.loops-1))
	} else {
		log.Info("Trimming input to reference duration")
	}
	args = append(args, "-i", in, "-t", fmt.Sprintf("%.3f", reference))

	switch kind {
	case types.KindAudio:
		if r.FadeOutSec > 0 {
			fade := math.Min(r.FadeOutSec, reference*0.1)
			args = append(args, "-af", fmt.Sprintf("afade=t=out:st=%.3f:d=%.3f", reference-fade, fade))
		}
	case types.KindVideo:
		args = append(args,
			"-c:v", "libx264",
			"-preset", "fast",
			"-crf", "22",
			"-pix_fmt", "yuv420p",
			"-an",
		)
	default:
		return fmt.Errorf("cannot reconcile artifact kind %q", kind)
	}
	args = append(args, out)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg reconcile: %w", err)
	}
	return nil
}

// copyFile streams src to dst; media inputs can be far larger than memory.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
