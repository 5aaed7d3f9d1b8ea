// Package generators wraps the four external generation providers behind one
// capability. The orchestrator drives every stage through the same interface
// and never branches on concrete provider type.
package generators

import (
	"context"

	"shortgen/types"
)

// Request carries the inputs a stage may need. Each adapter reads only the
// fields relevant to it.
type Request struct {
	Topic             string
	TargetDurationSec int
	ScriptText        string // voice stage
	VoiceID           string // voice stage, optional
	Prompt            string // music and video stages
	OutputPath        string
}

// Generator produces one artifact from a request, or fails. One network
// call to the external provider plus a local write of the returned content.
type Generator interface {
	Stage() types.Stage
	Generate(ctx context.Context, req Request) (*types.Artifact, error)
}
