package preview

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Generator renders a JPEG thumbnail of a PDF's first page. Ghostscript
// rasterizes the page to a scratch PNG; the resize and JPEG encode happen
// in-process.
type Generator struct {
	gsPath   string
	maxWidth int
	quality  int
	timeout  time.Duration
	log      *logrus.Logger
}

// NewGenerator creates a thumbnail generator. gsPath must point at a
// Ghostscript executable; callers get it from the backend probe.
func NewGenerator(gsPath string, maxWidth, quality int, timeout time.Duration, log *logrus.Logger) *Generator {
	return &Generator{gsPath: gsPath, maxWidth: maxWidth, quality: quality, timeout: timeout, log: log}
}

// Generate writes a thumbnail of pdfPath's first page to thumbPath.
func (g *Generator) Generate(ctx context.Context, pdfPath, thumbPath string) error {
	if g.gsPath == "" {
		return fmt.Errorf("thumbnail generation requires ghostscript")
	}

	scratch := filepath.Join(os.TempDir(), fmt.Sprintf("pdfc-thumb-%s.png", uuid.NewString()))
	defer os.Remove(scratch)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.gsPath,
		"-sDEVICE=png16m",
		"-dFirstPage=1",
		"-dLastPage=1",
		"-r72",
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-dSAFER",
		"-sOutputFile="+scratch,
		pdfPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("render first page: %w (%s)", err, string(out))
	}

	img, err := imaging.Open(scratch)
	if err != nil {
		return fmt.Errorf("open rendered page: %w", err)
	}

	if img.Bounds().Dx() > g.maxWidth {
		img = imaging.Resize(img, g.maxWidth, 0, imaging.Lanczos)
	}

	if dir := filepath.Dir(thumbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create thumbnail dir: %w", err)
		}
	}
	if err := imaging.Save(img, thumbPath, imaging.JPEGQuality(g.quality)); err != nil {
		return fmt.Errorf("save thumbnail: %w", err)
	}

	g.log.WithField("file", pdfPath).Debugf("thumbnail written to %s", thumbPath)
	return nil
}
