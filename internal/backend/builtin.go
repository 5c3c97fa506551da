package backend

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"

	"pdf-compressor-go/internal/preset"
)

// BuiltinAdapter is the dependency-free fallback. It runs the pdfcpu
// optimizer in-process: redundant objects are dropped and uncompressed
// streams are flate-encoded. Lossless, always available, smallest savings.
type BuiltinAdapter struct {
	timeout  time.Duration
	log      *logrus.Logger
	optimize func(inFile, outFile string, conf *model.Configuration) error
}

// NewBuiltin creates the built-in fallback adapter.
func NewBuiltin(timeout time.Duration, log *logrus.Logger) *BuiltinAdapter {
	return &BuiltinAdapter{timeout: timeout, log: log, optimize: api.OptimizeFile}
}

func (b *BuiltinAdapter) Name() string {
	return preset.BackendBuiltin
}

func (b *BuiltinAdapter) Probe(ctx context.Context) Descriptor {
	return Descriptor{
		Name:         b.Name(),
		Available:    true,
		Priority:     3,
		Capabilities: []string{CapStreamRecompress},
		Version:      model.VersionStr,
	}
}

func (b *BuiltinAdapter) Attempt(ctx context.Context, inputPath, scratchPath string, params preset.Parameters) Attempt {
	start := time.Now()
	att := Attempt{Backend: b.Name(), Params: params}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("optimizer panic: %v", r)
			}
		}()
		done <- b.optimize(inputPath, scratchPath, conf)
	}()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	select {
	case err := <-done:
		att.Duration = time.Since(start)
		if err != nil {
			att.Err = fmt.Errorf("builtin optimizer failed: %w", err)
			att.Diagnostic = err.Error()
			return att
		}
	case <-ctx.Done():
		att.Duration = time.Since(start)
		att.Err = fmt.Errorf("builtin optimizer timed out after %s", b.timeout)
		// The abandoned run may still write the scratch file after the
		// engine has cleaned up; remove it once the run finishes.
		go func() {
			<-done
			_ = os.Remove(scratchPath)
		}()
		return att
	}

	att.CandidatePath = scratchPath
	return att
}
