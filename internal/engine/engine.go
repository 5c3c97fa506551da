package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pdf-compressor-go/internal/backend"
	"pdf-compressor-go/internal/preset"
	"pdf-compressor-go/internal/validator"
)

// Status is the terminal state of orchestrating one request.
type Status string

const (
	StatusSuccess           Status = "SUCCESS"
	StatusNoImprovement     Status = "NO_IMPROVEMENT"
	StatusAllBackendsFailed Status = "ALL_BACKENDS_FAILED"
	StatusInvalidInput      Status = "INVALID_INPUT"
)

// Request describes one compression job. It is constructed by the caller
// (CLI, web or library) and not modified by the engine.
type Request struct {
	InputPath  string
	OutputPath string
	Tier       preset.Tier
	Overrides  preset.Overrides

	// Backend preferences. The built-in fallback only runs when allowed.
	UseGhostscript bool
	UseQPDF        bool
	AllowFallback  bool
}

// backendEnabled reports whether the request permits the named backend.
func (r Request) backendEnabled(name string) bool {
	switch name {
	case preset.BackendGhostscript:
		return r.UseGhostscript
	case preset.BackendQPDF:
		return r.UseQPDF
	case preset.BackendBuiltin:
		return r.AllowFallback
	default:
		return false
	}
}

// Validate checks request construction: paths present, known tier, override
// ranges. Failures here are caller errors, never attempt records.
func (r Request) Validate() error {
	if r.InputPath == "" {
		return fmt.Errorf("input path is required")
	}
	if r.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}
	if _, err := preset.ParseTier(string(r.Tier)); err != nil {
		return err
	}
	return preset.ValidateOverrides(r.Overrides)
}

// Outcome is the terminal result of orchestration for one request.
type Outcome struct {
	InputPath    string
	OutputPath   string
	Status       Status
	Winning      *backend.Attempt
	Attempts     []backend.Attempt // in the order backends were tried
	OriginalSize int64
	FinalSize    int64
	Duration     time.Duration
	Detail       string
}

// Saved returns the bytes removed by compression, zero unless successful.
func (o Outcome) Saved() int64 {
	if o.Status != StatusSuccess {
		return 0
	}
	return o.OriginalSize - o.FinalSize
}

// SavedPercent returns the size reduction as a percentage of the original.
func (o Outcome) SavedPercent() float64 {
	if o.OriginalSize == 0 {
		return 0
	}
	return float64(o.Saved()) * 100 / float64(o.OriginalSize)
}

// Engine orchestrates compression attempts across the probed backends.
type Engine struct {
	prober     *backend.Prober
	validator  *validator.Validator
	log        *logrus.Logger
	scratchDir string
}

// New creates an engine. scratchDir may be empty to use the OS temp dir.
func New(prober *backend.Prober, val *validator.Validator, scratchDir string, log *logrus.Logger) *Engine {
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	return &Engine{prober: prober, validator: val, log: log, scratchDir: scratchDir}
}

// ProbeBackends returns the cached backend descriptor set.
func (e *Engine) ProbeBackends(ctx context.Context) []backend.Descriptor {
	return e.prober.Probe(ctx)
}

// RefreshBackends forces re-detection. Only call between batches.
func (e *Engine) RefreshBackends(ctx context.Context) []backend.Descriptor {
	return e.prober.Refresh(ctx)
}

// CompressOne runs the orchestration state machine for a single request:
// input check, then priority-ordered sequential backend attempts, stopping
// at the first validated candidate. The returned error is non-nil only for
// request construction problems; everything that happens during attempts is
// folded into the outcome.
func (e *Engine) CompressOne(ctx context.Context, req Request) (Outcome, error) {
	start := time.Now()
	out := Outcome{InputPath: req.InputPath, OutputPath: req.OutputPath}

	if err := req.Validate(); err != nil {
		return out, fmt.Errorf("invalid request: %w", err)
	}

	log := e.log.WithFields(logrus.Fields{"file": req.InputPath, "operation": "compress"})

	if err := e.validator.CheckInput(req.InputPath); err != nil {
		log.Warnf("input rejected: %v", err)
		out.Status = StatusInvalidInput
		out.Detail = err.Error()
		out.Duration = time.Since(start)
		return out, nil
	}

	info, err := os.Stat(req.InputPath)
	if err != nil {
		out.Status = StatusInvalidInput
		out.Detail = err.Error()
		out.Duration = time.Since(start)
		return out, nil
	}
	out.OriginalSize = info.Size()

	var (
		noImprovement bool
		anyFailure    bool
	)

	for _, desc := range e.prober.Probe(ctx) {
		if !desc.Available || !req.backendEnabled(desc.Name) {
			continue
		}
		if ctx.Err() != nil {
			anyFailure = true
			out.Detail = "cancelled: " + ctx.Err().Error()
			break
		}

		params, err := preset.Resolve(req.Tier, req.Overrides, desc.Name)
		if err != nil {
			// Overrides were validated up front; only an unknown
			// backend family lands here.
			log.Errorf("parameter resolution for %s failed: %v", desc.Name, err)
			anyFailure = true
			continue
		}

		adapter := e.prober.Adapter(desc.Name)
		if adapter == nil {
			anyFailure = true
			continue
		}

		scratch := e.scratchPath(desc.Name)
		att := adapter.Attempt(ctx, req.InputPath, scratch, params)
		out.Attempts = append(out.Attempts, att)

		if att.Failed() {
			log.WithField("backend", desc.Name).Warnf("attempt failed: %v", att.Err)
			anyFailure = true
			_ = os.Remove(scratch)
			continue
		}

		decision := e.validator.Validate(out.OriginalSize, att.CandidatePath)
		if decision.Accept {
			if err := finalize(att.CandidatePath, req.OutputPath); err != nil {
				// Cannot deliver the accepted candidate. The output
				// path is the same for every backend, so trying the
				// next one would hit the identical resource problem.
				log.Errorf("writing output failed: %v", err)
				anyFailure = true
				out.Detail = fmt.Sprintf("write output: %v", err)
				_ = os.Remove(att.CandidatePath)
				break
			}
			winning := att
			out.Winning = &winning
			out.Status = StatusSuccess
			out.FinalSize = decision.CandidateSize
			out.Duration = time.Since(start)
			log.WithFields(logrus.Fields{
				"backend": desc.Name,
				"from":    out.OriginalSize,
				"to":      out.FinalSize,
			}).Info("compressed")
			return out, nil
		}

		_ = os.Remove(att.CandidatePath)
		if decision.Reason == validator.ReasonNoImprovement {
			log.WithField("backend", desc.Name).Debug("candidate not smaller than input")
			noImprovement = true
		} else {
			log.WithField("backend", desc.Name).Warnf("candidate rejected: %s (%s)", decision.Reason, decision.Detail)
			anyFailure = true
		}
	}

	out.Duration = time.Since(start)
	out.FinalSize = out.OriginalSize
	if noImprovement && !anyFailure {
		out.Status = StatusNoImprovement
	} else {
		out.Status = StatusAllBackendsFailed
	}
	return out, nil
}

// scratchPath returns a unique candidate location for one attempt. No two
// concurrent attempts may ever share a scratch path.
func (e *Engine) scratchPath(backendName string) string {
	return filepath.Join(e.scratchDir, fmt.Sprintf("pdfc-%s-%s.pdf", backendName, uuid.NewString()))
}

// CopyOriginal copies an untouched input file to its requested output path.
// Callers use it after a NO_IMPROVEMENT outcome so a batch writing into an
// output directory stays complete: already-optimal files appear there too.
// No-op when the two paths are identical.
func CopyOriginal(inputPath, outputPath string) error {
	if filepath.Clean(inputPath) == filepath.Clean(outputPath) {
		return nil
	}
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open original: %w", err)
	}
	defer in.Close()

	outF, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := io.Copy(outF, in); err != nil {
		outF.Close()
		return fmt.Errorf("copy original: %w", err)
	}
	return outF.Close()
}

// finalize moves an accepted candidate into place, falling back to a copy
// when rename crosses filesystems.
func finalize(candidatePath, outputPath string) error {
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.Rename(candidatePath, outputPath); err == nil {
		return nil
	}

	in, err := os.Open(candidatePath)
	if err != nil {
		return fmt.Errorf("open candidate: %w", err)
	}
	defer in.Close()
	defer os.Remove(candidatePath)

	outF, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := io.Copy(outF, in); err != nil {
		outF.Close()
		return fmt.Errorf("copy candidate: %w", err)
	}
	return outF.Close()
}
