package backend

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"pdf-compressor-go/internal/preset"
)

// defaultProbeTimeout bounds each capability check so a wedged tool can
// never hang probing. The prober may impose a shorter deadline via context.
const defaultProbeTimeout = 2 * time.Second

// Capability tags advertised by backend descriptors.
const (
	CapStreamRecompress = "stream-recompress"
	CapImageDownsample  = "image-downsample"
	CapStructureRepair  = "structure-repair"
)

// Descriptor identifies one compression backend and records whether it is
// usable on this host. Availability is computed by probing and treated as
// immutable for the duration of a batch run.
type Descriptor struct {
	Name         string   `json:"name"`
	Available    bool     `json:"available"`
	Priority     int      `json:"priority"` // lower is tried first
	Capabilities []string `json:"capabilities"`
	Version      string   `json:"version,omitempty"`
	Path         string   `json:"path,omitempty"`
}

// Attempt is the execution record of one backend run. A failed run is
// captured in Err/Diagnostic; it never escapes the adapter as a panic or
// returned error.
type Attempt struct {
	Backend       string
	Params        preset.Parameters
	CandidatePath string // empty when no candidate was produced
	Duration      time.Duration
	Diagnostic    string
	Err           error
}

// Failed reports whether the attempt produced no usable candidate.
func (a Attempt) Failed() bool {
	return a.Err != nil || a.CandidatePath == ""
}

// Adapter is one concrete compression strategy. The implementation set is
// fixed: Ghostscript, qpdf and the built-in optimizer.
type Adapter interface {
	Name() string

	// Probe checks whether the backend is usable. A missing tool is a
	// normal outcome reported as Available=false, never an error.
	Probe(ctx context.Context) Descriptor

	// Attempt compresses inputPath into scratchPath. The input file is
	// never modified and scratchPath must be exclusive to this attempt.
	Attempt(ctx context.Context, inputPath, scratchPath string, params preset.Parameters) Attempt
}

// runTool executes an external tool with a hard timeout, returning its
// combined output. A deadline hit is reported as an error so callers treat
// the run as failed rather than hung.
func runTool(ctx context.Context, timeout time.Duration, path string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return string(out), fmt.Errorf("%s timed out after %s", filepath.Base(path), timeout)
	}
	return string(out), err
}

// lookPath resolves the first executable from candidates found on PATH.
func lookPath(candidates ...string) string {
	for _, name := range candidates {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}
