package media

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortgen/types"
)

func TestPlanReconcile(t *testing.T) {
	tests := []struct {
		name      string
		secondary float64
		reference float64
		wantMode  reconcileMode
		wantLoops int
	}{
		{
			name:      "exact match",
			secondary: 30.0,
			reference: 30.0,
			wantMode:  modeKeep,
		},
		{
			name:      "within epsilon",
			secondary: 30.04,
			reference: 30.0,
			wantMode:  modeKeep,
		},
		{
			name:      "just outside epsilon",
			secondary: 30.06,
			reference: 30.0,
			wantMode:  modeTrim,
		},
		{
			name:      "music longer than voice",
			secondary: 45.0,
			reference: 30.0,
			wantMode:  modeTrim,
		},
		{
			name:      "short clip loops to cover",
			secondary: 7.0,
			reference: 20.0,
			wantMode:  modeLoop,
			wantLoops: 3,
		},
		{
			name:      "even division still covers",
			secondary: 10.0,
			reference: 20.0,
			wantMode:  modeLoop,
			wantLoops: 2,
		},
		{
			name:      "very short clip",
			secondary: 5.0,
			reference: 40.0,
			wantMode:  modeLoop,
			wantLoops: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := planReconcile(tt.secondary, tt.reference)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, plan.mode)
			if tt.wantMode == modeLoop {
				assert.Equal(t, tt.wantLoops, plan.loops)
				// Concatenated copies must cover the reference.
				assert.GreaterOrEqual(t, float64(plan.loops)*tt.secondary, tt.reference)
			}
		})
	}
}

func TestReconcileWithinEpsilonCopiesInput(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	dir := t.TempDir()
	in := filepath.Join(dir, "in.mp3")
	out := filepath.Join(dir, "out.mp3")
	require.NoError(t, os.WriteFile(in, []byte("audio-bytes"), 0644))

	r := NewFFmpegReconciler(3, log)
	require.NoError(t, r.Reconcile(context.Background(), in, types.KindAudio, 30.02, 30.0, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
}

func TestPlanReconcileInvalidDurations(t *testing.T) {
	_, err := planReconcile(0, 30)
	assert.Error(t, err)

	_, err = planReconcile(30, 0)
	assert.Error(t, err)

	_, err = planReconcile(-5, 30)
	assert.Error(t, err)

	_, err = planReconcile(30, -5)
	assert.Error(t, err)
}
