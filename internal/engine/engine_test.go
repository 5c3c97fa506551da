package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"pdf-compressor-go/internal/backend"
	"pdf-compressor-go/internal/preset"
	"pdf-compressor-go/internal/validator"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakePDF builds a byte blob that passes the minimal structural checks.
func fakePDF(size int) []byte {
	head := []byte("%PDF-1.4\n")
	tail := []byte("\n%%EOF\n")
	if size < len(head)+len(tail) {
		size = len(head) + len(tail)
	}
	body := bytes.Repeat([]byte("x"), size-len(head)-len(tail))
	return append(append(head, body...), tail...)
}

// fakeAdapter is a scriptable backend for orchestrator tests.
type fakeAdapter struct {
	name       string
	available  bool
	priority   int
	output     []byte // candidate content; nil means execution failure
	failErr    error
	delay      time.Duration
	calls      int
	sawScratch string
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Probe(ctx context.Context) backend.Descriptor {
	return backend.Descriptor{Name: f.name, Available: f.available, Priority: f.priority}
}

func (f *fakeAdapter) Attempt(ctx context.Context, inputPath, scratchPath string, params preset.Parameters) backend.Attempt {
	f.calls++
	f.sawScratch = scratchPath
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return backend.Attempt{Backend: f.name, Params: params, Err: ctx.Err()}
		}
	}

	att := backend.Attempt{Backend: f.name, Params: params}
	if f.failErr != nil {
		att.Err = f.failErr
		att.Diagnostic = f.failErr.Error()
		return att
	}
	if err := os.WriteFile(scratchPath, f.output, 0644); err != nil {
		att.Err = err
		return att
	}
	att.CandidatePath = scratchPath
	return att
}

func newTestEngine(t *testing.T, adapters ...backend.Adapter) *Engine {
	t.Helper()
	log := testLogger()
	prober := backend.NewProber(adapters, time.Second, log)
	val := validator.NewWithPageCount(log, func(string) (int, error) { return 1, nil })
	return New(prober, val, t.TempDir(), log)
}

func writeInput(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.pdf")
	if err := os.WriteFile(path, fakePDF(size), 0644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func defaultRequest(t *testing.T, input string) Request {
	t.Helper()
	return Request{
		InputPath:      input,
		OutputPath:     filepath.Join(t.TempDir(), "output.pdf"),
		Tier:           preset.TierMedium,
		UseGhostscript: true,
		UseQPDF:        true,
		AllowFallback:  true,
	}
}

func TestCompressOneFirstBackendWins(t *testing.T) {
	gs := &fakeAdapter{name: preset.BackendGhostscript, available: true, priority: 1, output: fakePDF(200)}
	qp := &fakeAdapter{name: preset.BackendQPDF, available: true, priority: 2, output: fakePDF(400)}

	eng := newTestEngine(t, gs, qp)
	req := defaultRequest(t, writeInput(t, 1000))

	out, err := eng.CompressOne(context.Background(), req)
	if err != nil {
		t.Fatalf("CompressOne error: %v", err)
	}

	if out.Status != StatusSuccess {
		t.Fatalf("Status = %s, want SUCCESS (%s)", out.Status, out.Detail)
	}
	if out.Winning == nil || out.Winning.Backend != preset.BackendGhostscript {
		t.Errorf("winning backend = %+v, want ghostscript", out.Winning)
	}
	if out.FinalSize >= out.OriginalSize {
		t.Errorf("SUCCESS invariant violated: final %d >= original %d", out.FinalSize, out.OriginalSize)
	}
	if qp.calls != 0 {
		t.Error("later backend ran despite earlier acceptance")
	}
	if len(out.Attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(out.Attempts))
	}
	if _, err := os.Stat(req.OutputPath); err != nil {
		t.Errorf("output file not written: %v", err)
	}
}

func TestCompressOneFallsThroughFailures(t *testing.T) {
	gs := &fakeAdapter{name: preset.BackendGhostscript, available: true, priority: 1, failErr: fmt.Errorf("exit status 1")}
	qp := &fakeAdapter{name: preset.BackendQPDF, available: true, priority: 2, output: fakePDF(300)}

	eng := newTestEngine(t, gs, qp)
	out, err := eng.CompressOne(context.Background(), defaultRequest(t, writeInput(t, 1000)))
	if err != nil {
		t.Fatalf("CompressOne error: %v", err)
	}

	if out.Status != StatusSuccess {
		t.Fatalf("Status = %s, want SUCCESS", out.Status)
	}
	if out.Winning.Backend != preset.BackendQPDF {
		t.Errorf("winning backend = %s, want qpdf", out.Winning.Backend)
	}
	// Both attempts stay on record for diagnostics, in trial order.
	if len(out.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(out.Attempts))
	}
	if out.Attempts[0].Backend != preset.BackendGhostscript || !out.Attempts[0].Failed() {
		t.Errorf("first attempt record wrong: %+v", out.Attempts[0])
	}
}

func TestCompressOneSkipsUnavailableBackends(t *testing.T) {
	gs := &fakeAdapter{name: preset.BackendGhostscript, available: false, priority: 1}
	bi := &fakeAdapter{name: preset.BackendBuiltin, available: true, priority: 3, output: fakePDF(500)}

	eng := newTestEngine(t, gs, bi)
	out, err := eng.CompressOne(context.Background(), defaultRequest(t, writeInput(t, 1000)))
	if err != nil {
		t.Fatalf("CompressOne error: %v", err)
	}

	if out.Status != StatusSuccess {
		t.Fatalf("Status = %s, want SUCCESS", out.Status)
	}
	if gs.calls != 0 {
		t.Error("unavailable backend was invoked")
	}
	// Skipping is not an attempt.
	if len(out.Attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(out.Attempts))
	}
}

func TestCompressOneRespectsBackendPreferences(t *testing.T) {
	gs := &fakeAdapter{name: preset.BackendGhostscript, available: true, priority: 1, output: fakePDF(100)}
	bi := &fakeAdapter{name: preset.BackendBuiltin, available: true, priority: 3, output: fakePDF(500)}

	eng := newTestEngine(t, gs, bi)
	req := defaultRequest(t, writeInput(t, 1000))
	req.UseGhostscript = false

	out, err := eng.CompressOne(context.Background(), req)
	if err != nil {
		t.Fatalf("CompressOne error: %v", err)
	}

	if gs.calls != 0 {
		t.Error("disabled backend was invoked")
	}
	if out.Winning == nil || out.Winning.Backend != preset.BackendBuiltin {
		t.Errorf("winning backend = %+v, want builtin", out.Winning)
	}
}

func TestCompressOneNoImprovement(t *testing.T) {
	// Both backends run fine but cannot shrink the file.
	gs := &fakeAdapter{name: preset.BackendGhostscript, available: true, priority: 1, output: fakePDF(2000)}
	qp := &fakeAdapter{name: preset.BackendQPDF, available: true, priority: 2, output: fakePDF(1500)}

	eng := newTestEngine(t, gs, qp)
	req := defaultRequest(t, writeInput(t, 1000))
	req.AllowFallback = false

	out, err := eng.CompressOne(context.Background(), req)
	if err != nil {
		t.Fatalf("CompressOne error: %v", err)
	}

	if out.Status != StatusNoImprovement {
		t.Fatalf("Status = %s, want NO_IMPROVEMENT", out.Status)
	}
	if len(out.Attempts) != 2 {
		t.Errorf("attempts = %d, want 2", len(out.Attempts))
	}
}

func TestCompressOneMixedFailureAndNoImprovement(t *testing.T) {
	gs := &fakeAdapter{name: preset.BackendGhostscript, available: true, priority: 1, failErr: fmt.Errorf("timed out after 60s")}
	qp := &fakeAdapter{name: preset.BackendQPDF, available: true, priority: 2, output: fakePDF(1500)}

	eng := newTestEngine(t, gs, qp)
	req := defaultRequest(t, writeInput(t, 1000))
	req.AllowFallback = false

	out, err := eng.CompressOne(context.Background(), req)
	if err != nil {
		t.Fatalf("CompressOne error: %v", err)
	}

	// NO_IMPROVEMENT is reserved for runs where rejection was solely
	// due to size; an execution failure makes the aggregate a failure.
	if out.Status != StatusAllBackendsFailed {
		t.Fatalf("Status = %s, want ALL_BACKENDS_FAILED", out.Status)
	}
}

func TestCompressOneAllBackendsFailed(t *testing.T) {
	gs := &fakeAdapter{name: preset.BackendGhostscript, available: true, priority: 1, failErr: fmt.Errorf("exit status 1")}
	qp := &fakeAdapter{name: preset.BackendQPDF, available: true, priority: 2, failErr: fmt.Errorf("exit status 2")}

	eng := newTestEngine(t, gs, qp)
	req := defaultRequest(t, writeInput(t, 1000))
	req.AllowFallback = false

	out, err := eng.CompressOne(context.Background(), req)
	if err != nil {
		t.Fatalf("CompressOne error: %v", err)
	}
	if out.Status != StatusAllBackendsFailed {
		t.Fatalf("Status = %s, want ALL_BACKENDS_FAILED", out.Status)
	}
}

func TestCompressOneNoBackendsAvailable(t *testing.T) {
	gs := &fakeAdapter{name: preset.BackendGhostscript, available: false, priority: 1}
	qp := &fakeAdapter{name: preset.BackendQPDF, available: false, priority: 2}

	eng := newTestEngine(t, gs, qp)
	out, err := eng.CompressOne(context.Background(), defaultRequest(t, writeInput(t, 1000)))
	if err != nil {
		t.Fatalf("CompressOne error: %v", err)
	}

	if out.Status != StatusAllBackendsFailed {
		t.Fatalf("Status = %s, want ALL_BACKENDS_FAILED", out.Status)
	}
	if len(out.Attempts) != 0 {
		t.Errorf("attempts = %d, want 0", len(out.Attempts))
	}
}

func TestCompressOneInvalidInput(t *testing.T) {
	gs := &fakeAdapter{name: preset.BackendGhostscript, available: true, priority: 1, output: fakePDF(100)}
	eng := newTestEngine(t, gs)

	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pdf")
	if err := os.WriteFile(garbage, []byte("this is not a pdf"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		input string
	}{
		{"missing file", filepath.Join(dir, "missing.pdf")},
		{"garbage content", garbage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := eng.CompressOne(context.Background(), defaultRequest(t, tt.input))
			if err != nil {
				t.Fatalf("CompressOne error: %v", err)
			}
			if out.Status != StatusInvalidInput {
				t.Errorf("Status = %s, want INVALID_INPUT", out.Status)
			}
			if len(out.Attempts) != 0 {
				t.Errorf("backends ran on invalid input: %d attempts", len(out.Attempts))
			}
		})
	}

	if gs.calls != 0 {
		t.Error("backend invoked for invalid input")
	}
}

func TestCompressOneRejectsBadRequest(t *testing.T) {
	eng := newTestEngine(t, &fakeAdapter{name: preset.BackendBuiltin, available: true, priority: 3, output: fakePDF(100)})

	badDPI := -10
	req := defaultRequest(t, writeInput(t, 1000))
	req.Overrides.MaxDPI = &badDPI

	if _, err := eng.CompressOne(context.Background(), req); err == nil {
		t.Error("expected request validation error for negative DPI override")
	}

	req = defaultRequest(t, writeInput(t, 1000))
	req.OutputPath = ""
	if _, err := eng.CompressOne(context.Background(), req); err == nil {
		t.Error("expected request validation error for missing output path")
	}
}

func TestCompressOneIdempotentOnOptimalFile(t *testing.T) {
	// A file that every backend reproduces at identical size must come
	// back as NO_IMPROVEMENT, repeatedly and without error.
	content := fakePDF(800)
	bi := &fakeAdapter{name: preset.BackendBuiltin, available: true, priority: 3, output: content}

	eng := newTestEngine(t, bi)

	input := filepath.Join(t.TempDir(), "optimal.pdf")
	if err := os.WriteFile(input, content, 0644); err != nil {
		t.Fatal(err)
	}

	req := defaultRequest(t, input)
	req.UseGhostscript = false
	req.UseQPDF = false

	for i := 0; i < 2; i++ {
		out, err := eng.CompressOne(context.Background(), req)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if out.Status != StatusNoImprovement {
			t.Fatalf("run %d: Status = %s, want NO_IMPROVEMENT", i, out.Status)
		}
	}
}

func TestCompressOneStopsAfterOutputWriteFailure(t *testing.T) {
	gs := &fakeAdapter{name: preset.BackendGhostscript, available: true, priority: 1, output: fakePDF(200)}
	qp := &fakeAdapter{name: preset.BackendQPDF, available: true, priority: 2, output: fakePDF(300)}

	eng := newTestEngine(t, gs, qp)
	req := defaultRequest(t, writeInput(t, 1000))

	// The output's parent is a regular file, so writing the result fails
	// no matter which backend produced it.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	req.OutputPath = filepath.Join(blocker, "out.pdf")

	out, err := eng.CompressOne(context.Background(), req)
	if err != nil {
		t.Fatalf("CompressOne error: %v", err)
	}

	if out.Status != StatusAllBackendsFailed {
		t.Fatalf("Status = %s, want ALL_BACKENDS_FAILED", out.Status)
	}
	if qp.calls != 0 {
		t.Error("later backend ran after an unwritable output path")
	}
	if out.Detail == "" {
		t.Error("expected a detail describing the write failure")
	}
}

func TestCopyOriginal(t *testing.T) {
	content := fakePDF(700)
	in := filepath.Join(t.TempDir(), "in.pdf")
	if err := os.WriteFile(in, content, 0644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "nested", "kept.pdf")
	if err := CopyOriginal(in, out); err != nil {
		t.Fatalf("CopyOriginal: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("copied file does not match the original")
	}

	// Identical paths are a no-op, never a truncation.
	if err := CopyOriginal(in, in); err != nil {
		t.Errorf("CopyOriginal onto itself: %v", err)
	}
	got, err = os.ReadFile(in)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Error("self-copy changed the original")
	}
}

func TestScratchPathsAreUnique(t *testing.T) {
	eng := newTestEngine(t)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		p := eng.scratchPath("ghostscript")
		if seen[p] {
			t.Fatalf("duplicate scratch path: %s", p)
		}
		seen[p] = true
	}
}
