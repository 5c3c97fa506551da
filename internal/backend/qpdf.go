package backend

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pdf-compressor-go/internal/preset"
)

// QPDFAdapter recompresses streams and regenerates object streams without
// touching page content. Safer than Ghostscript, with smaller savings.
type QPDFAdapter struct {
	path    string
	timeout time.Duration
	log     *logrus.Logger
}

// NewQPDF creates a qpdf adapter. path may be empty to search PATH.
func NewQPDF(path string, timeout time.Duration, log *logrus.Logger) *QPDFAdapter {
	return &QPDFAdapter{path: path, timeout: timeout, log: log}
}

func (q *QPDFAdapter) Name() string {
	return preset.BackendQPDF
}

func (q *QPDFAdapter) Probe(ctx context.Context) Descriptor {
	desc := Descriptor{
		Name:         q.Name(),
		Priority:     2,
		Capabilities: []string{CapStreamRecompress, CapStructureRepair},
	}

	path := q.path
	if path == "" {
		path = lookPath("qpdf")
	}
	if path == "" {
		q.log.Debug("qpdf executable not found on PATH")
		return desc
	}

	out, err := runTool(ctx, defaultProbeTimeout, path, "--version")
	if err != nil {
		q.log.WithField("backend", q.Name()).Debugf("version query failed: %v", err)
		return desc
	}

	q.path = path
	desc.Available = true
	desc.Path = path
	// Output looks like "qpdf version 11.6.3"; keep the trailing token.
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) > 0 {
		desc.Version = fields[len(fields)-1]
	}
	return desc
}

// qpdfArgs builds the structural recompression argument list.
func qpdfArgs(params preset.Parameters, inputPath, outputPath string) []string {
	return []string{
		"--object-streams=generate",
		"--compress-streams=y",
		"--recompress-flate",
		fmt.Sprintf("--compression-level=%d", params.CompressionLevel),
		inputPath,
		outputPath,
	}
}

func (q *QPDFAdapter) Attempt(ctx context.Context, inputPath, scratchPath string, params preset.Parameters) Attempt {
	start := time.Now()
	att := Attempt{Backend: q.Name(), Params: params}

	if q.path == "" {
		att.Err = fmt.Errorf("qpdf executable not resolved (probe first)")
		att.Duration = time.Since(start)
		return att
	}

	out, err := runTool(ctx, q.timeout, q.path, qpdfArgs(params, inputPath, scratchPath)...)
	att.Duration = time.Since(start)
	att.Diagnostic = strings.TrimSpace(out)
	if err != nil {
		att.Err = fmt.Errorf("qpdf failed: %w", err)
		return att
	}

	if _, err := os.Stat(scratchPath); err != nil {
		att.Err = fmt.Errorf("qpdf did not create output file: %w", err)
		return att
	}

	att.CandidatePath = scratchPath
	return att
}
