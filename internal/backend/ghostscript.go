package backend

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pdf-compressor-go/internal/preset"
)

// GhostscriptAdapter rewrites the whole document through the pdfwrite
// device. It has the highest compression potential of the three backends
// and the highest risk of visual degradation at the low tier.
type GhostscriptAdapter struct {
	path    string // explicit executable path; empty means search PATH
	timeout time.Duration
	log     *logrus.Logger
}

// NewGhostscript creates a Ghostscript adapter. path may be empty, in which
// case the executable is located during probing.
func NewGhostscript(path string, timeout time.Duration, log *logrus.Logger) *GhostscriptAdapter {
	return &GhostscriptAdapter{path: path, timeout: timeout, log: log}
}

func (g *GhostscriptAdapter) Name() string {
	return preset.BackendGhostscript
}

// ghostscriptNames lists the executable names to try, in order. Windows
// installs ship console binaries under gswin64c/gswin32c.
func ghostscriptNames() []string {
	if runtime.GOOS == "windows" {
		return []string{"gswin64c", "gswin32c", "gs"}
	}
	return []string{"gs"}
}

func (g *GhostscriptAdapter) Probe(ctx context.Context) Descriptor {
	desc := Descriptor{
		Name:         g.Name(),
		Priority:     1,
		Capabilities: []string{CapImageDownsample, CapStreamRecompress},
	}

	path := g.path
	if path == "" {
		path = lookPath(ghostscriptNames()...)
	}
	if path == "" {
		g.log.Debug("ghostscript executable not found on PATH")
		return desc
	}

	out, err := runTool(ctx, defaultProbeTimeout, path, "--version")
	if err != nil {
		g.log.WithField("backend", g.Name()).Debugf("version query failed: %v", err)
		return desc
	}

	g.path = path
	desc.Available = true
	desc.Path = path
	desc.Version = strings.TrimSpace(out)
	return desc
}

// ghostscriptArgs builds the pdfwrite argument list for one attempt.
// Downsampling is capped at the resolved DPI on all tiers; the aggressive
// tier additionally forces font and stream recompression.
func ghostscriptArgs(params preset.Parameters, inputPath, outputPath string) []string {
	args := []string{
		"-sDEVICE=pdfwrite",
		"-dPDFSETTINGS=" + params.PDFSettings,
		"-dCompatibilityLevel=1.4",
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-dSAFER",
		"-dAutoRotatePages=/None",
		"-dColorImageDownsampleType=/Bicubic",
		fmt.Sprintf("-dColorImageResolution=%d", params.MaxDPI),
		"-dGrayImageDownsampleType=/Bicubic",
		fmt.Sprintf("-dGrayImageResolution=%d", params.MaxDPI),
		"-dMonoImageDownsampleType=/Bicubic",
		fmt.Sprintf("-dMonoImageResolution=%d", params.MaxDPI),
		"-dDownsampleColorImages=true",
		"-dDownsampleGrayImages=true",
		"-dDownsampleMonoImages=true",
		"-dSubsetFonts=true",
		"-dOptimize=true",
	}

	if params.LossyImages {
		args = append(args,
			"-dAutoFilterColorImages=false",
			"-dColorImageFilter=/DCTEncode",
			fmt.Sprintf("-dJPEGQ=%d", params.ImageQuality),
		)
	}
	if params.Aggressive {
		args = append(args, "-dCompressFonts=true", "-dCompressStreams=true")
	}

	return append(args, "-sOutputFile="+outputPath, inputPath)
}

func (g *GhostscriptAdapter) Attempt(ctx context.Context, inputPath, scratchPath string, params preset.Parameters) Attempt {
	start := time.Now()
	att := Attempt{Backend: g.Name(), Params: params}

	if g.path == "" {
		att.Err = fmt.Errorf("ghostscript executable not resolved (probe first)")
		att.Duration = time.Since(start)
		return att
	}

	out, err := runTool(ctx, g.timeout, g.path, ghostscriptArgs(params, inputPath, scratchPath)...)
	att.Duration = time.Since(start)
	att.Diagnostic = strings.TrimSpace(out)
	if err != nil {
		att.Err = fmt.Errorf("ghostscript failed: %w", err)
		return att
	}

	if _, err := os.Stat(scratchPath); err != nil {
		att.Err = fmt.Errorf("ghostscript did not create output file: %w", err)
		return att
	}

	att.CandidatePath = scratchPath
	return att
}
