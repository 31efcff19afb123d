package worker

import (
	"context"

	"github.com/mobasher/mobasher/internal/models"
)

// Media kinds an analyser can require.
const (
	NeedsAudio      = "audio"
	NeedsVideo      = "video"
	NeedsTranscript = "transcript"
)

// Input is what an analyser receives: the segment, the resolved media file
// for audio/video analysers, and the transcript for text analysers.
type Input struct {
	Segment    *models.Segment
	MediaPath  string
	Transcript *models.Transcript
}

// Output carries whatever artifacts the analyser produced. Only the fields
// matching its stage are read.
type Output struct {
	Transcript *models.Transcript
	Embedding  *models.SegmentEmbedding
	Events     []*models.VisualEvent
	Entities   []*models.Entity
	Alerts     []*models.Alert
	// EngineTimeMs is the model's own runtime, excluding IO and queueing.
	EngineTimeMs int
}

// Analyser is one pluggable analysis engine. The model implementations live
// outside this repo; the workers only see this surface.
type Analyser interface {
	// Name identifies the engine and is recorded on its artifacts.
	Name() string
	// Needs reports which input the engine consumes.
	Needs() string
	Run(ctx context.Context, in Input) (*Output, error)
}
