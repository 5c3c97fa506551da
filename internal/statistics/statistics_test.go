package statistics

import (
	"strings"
	"sync"
	"testing"
)

func TestRecordOutcomeCounts(t *testing.T) {
	s := NewStatistics()

	s.RecordOutcomeCounts("SUCCESS")
	s.RecordOutcomeCounts("SUCCESS")
	s.RecordOutcomeCounts("NO_IMPROVEMENT")
	s.RecordOutcomeCounts("INVALID_INPUT")
	s.RecordOutcomeCounts("ALL_BACKENDS_FAILED")

	if s.FilesProcessed != 5 {
		t.Errorf("FilesProcessed = %d, want 5", s.FilesProcessed)
	}
	if s.FilesCompressed != 2 {
		t.Errorf("FilesCompressed = %d, want 2", s.FilesCompressed)
	}
	if s.FilesNoImprovement != 1 || s.FilesInvalid != 1 || s.FilesFailed != 1 {
		t.Errorf("counter split wrong: %d/%d/%d", s.FilesNoImprovement, s.FilesInvalid, s.FilesFailed)
	}
}

func TestAddBytesOnlyCountsSavings(t *testing.T) {
	s := NewStatistics()
	s.AddBytes(1000, 400)
	s.AddBytes(500, 500) // no improvement, nothing saved

	if s.BytesIn != 1500 || s.BytesOut != 900 {
		t.Errorf("BytesIn/Out = %d/%d, want 1500/900", s.BytesIn, s.BytesOut)
	}
	if s.BytesSaved != 600 {
		t.Errorf("BytesSaved = %d, want 600", s.BytesSaved)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	s := NewStatistics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordOutcomeCounts("SUCCESS")
			s.AddBytes(100, 50)
			s.AddAttempts(2, 1)
			s.RecordBackendWin("ghostscript")
			s.AddError("x.pdf", "compress", "boom")
		}()
	}
	wg.Wait()

	if s.FilesCompressed != 50 {
		t.Errorf("FilesCompressed = %d, want 50", s.FilesCompressed)
	}
	if s.BytesSaved != 50*50 {
		t.Errorf("BytesSaved = %d, want 2500", s.BytesSaved)
	}
	if s.AttemptsRun != 100 || s.AttemptsFailed != 50 {
		t.Errorf("attempts = %d/%d, want 100/50", s.AttemptsRun, s.AttemptsFailed)
	}
	if s.BackendWins["ghostscript"] != 50 {
		t.Errorf("BackendWins = %d, want 50", s.BackendWins["ghostscript"])
	}
	if len(s.Errors) != 50 {
		t.Errorf("Errors = %d, want 50", len(s.Errors))
	}
}

func TestGetSummaryIncludesSavings(t *testing.T) {
	s := NewStatistics()
	s.IncrementFilesFound()
	s.RecordOutcomeCounts("SUCCESS")
	s.AddBytes(2048, 1024)
	s.Finalize()

	summary := s.GetSummary()
	for _, want := range []string{"Found: 1", "Compressed: 1", "2.0 KB", "1.0 KB", "50.0%"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestGetBackendBreakdown(t *testing.T) {
	s := NewStatistics()
	if got := s.GetBackendBreakdown(); !strings.Contains(got, "No backend statistics") {
		t.Errorf("empty breakdown = %q", got)
	}

	s.RecordBackendWin("qpdf")
	s.RecordBackendWin("qpdf")
	if got := s.GetBackendBreakdown(); !strings.Contains(got, "qpdf: 2") {
		t.Errorf("breakdown missing qpdf count: %q", got)
	}
}

func TestGetErrorSummary(t *testing.T) {
	s := NewStatistics()
	if got := s.GetErrorSummary(); got != "No errors occurred" {
		t.Errorf("empty summary = %q", got)
	}

	s.AddError("broken.pdf", "compress", "not a pdf")
	got := s.GetErrorSummary()
	if !strings.Contains(got, "broken.pdf") || !strings.Contains(got, "not a pdf") {
		t.Errorf("error summary incomplete: %q", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 * 1024 * 1024, "3.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
