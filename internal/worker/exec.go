package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mobasher/mobasher/internal/models"
)

// Environment variables handed to an engine subprocess.
const (
	EnvMediaPath        = "MOBASHER_MEDIA_PATH"
	EnvSegmentID        = "MOBASHER_SEGMENT_ID"
	EnvSegmentStartedAt = "MOBASHER_SEGMENT_STARTED_AT"
	EnvChannelID        = "MOBASHER_CHANNEL_ID"
	EnvTaskName         = "MOBASHER_TASK"
)

// execOutput is the wire format an engine writes to stdout: a JSON object
// with whichever artifact kinds its stage produces.
type execOutput struct {
	Transcript   *models.Transcript    `json:"transcript,omitempty"`
	Events       []*models.VisualEvent `json:"events,omitempty"`
	EngineTimeMs int                   `json:"engine_time_ms,omitempty"`
}

// ExecAnalyser runs an external engine as a subprocess. The model code lives
// in a separate deployable; this side passes the segment context through the
// environment and reads artifacts as JSON from stdout, so the engine command
// line stays exactly what the operator configured.
type ExecAnalyser struct {
	name    string
	needs   string
	argv    []string
	timeout time.Duration
}

var _ Analyser = (*ExecAnalyser)(nil)

// NewExecAnalyser creates a subprocess-backed analyser. argv is the full
// command line, argv[0] being the binary.
func NewExecAnalyser(name, needs string, argv []string, timeout time.Duration) (*ExecAnalyser, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("analyser %s: empty engine command", name)
	}
	return &ExecAnalyser{name: name, needs: needs, argv: argv, timeout: timeout}, nil
}

func (a *ExecAnalyser) Name() string { return a.name }

func (a *ExecAnalyser) Needs() string { return a.needs }

// Run executes the engine once for one segment.
func (a *ExecAnalyser) Run(ctx context.Context, in Input) (*Output, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, a.argv[0], a.argv[1:]...)
	cmd.Env = append(os.Environ(),
		EnvMediaPath+"="+in.MediaPath,
		EnvTaskName+"="+a.name,
	)
	if in.Segment != nil {
		cmd.Env = append(cmd.Env,
			EnvSegmentID+"="+in.Segment.ID.String(),
			EnvSegmentStartedAt+"="+in.Segment.StartedAt.UTC().Format(time.RFC3339),
			EnvChannelID+"="+in.Segment.ChannelID,
		)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("engine %s: %w: %s", a.name, err, msg)
		}
		return nil, fmt.Errorf("engine %s: %w", a.name, err)
	}

	var out execOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("engine %s: decoding output: %w", a.name, err)
	}
	return &Output{
		Transcript:   out.Transcript,
		Events:       out.Events,
		EngineTimeMs: out.EngineTimeMs,
	}, nil
}
