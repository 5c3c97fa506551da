package statistics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics accumulates counters for one compression run. All counters are
// safe for concurrent updates from batch workers.
type Statistics struct {
	FilesFound         int64
	FilesProcessed     int64
	FilesCompressed    int64
	FilesNoImprovement int64
	FilesInvalid       int64
	FilesFailed        int64

	BytesIn    int64
	BytesOut   int64
	BytesSaved int64

	AttemptsRun    int64
	AttemptsFailed int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64

	Errors []RunError

	BackendWins map[string]int64

	mutex sync.RWMutex
}

// RunError records one per-file failure for the final report.
type RunError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance with the clock started.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:   time.Now(),
		BackendWins: make(map[string]int64),
		Errors:      make([]RunError, 0),
	}
}

// IncrementFilesFound increases the count of discovered input files by 1.
func (s *Statistics) IncrementFilesFound() {
	atomic.AddInt64(&s.FilesFound, 1)
}

// IncrementFilesProcessed increases the count of processed files by 1.
func (s *Statistics) IncrementFilesProcessed() {
	atomic.AddInt64(&s.FilesProcessed, 1)
}

// IncrementFilesCompressed increases the count of successfully compressed files by 1.
func (s *Statistics) IncrementFilesCompressed() {
	atomic.AddInt64(&s.FilesCompressed, 1)
}

// IncrementFilesNoImprovement increases the count of already-optimal files by 1.
func (s *Statistics) IncrementFilesNoImprovement() {
	atomic.AddInt64(&s.FilesNoImprovement, 1)
}

// IncrementFilesInvalid increases the count of rejected input files by 1.
func (s *Statistics) IncrementFilesInvalid() {
	atomic.AddInt64(&s.FilesInvalid, 1)
}

// IncrementFilesFailed increases the count of files where every backend failed by 1.
func (s *Statistics) IncrementFilesFailed() {
	atomic.AddInt64(&s.FilesFailed, 1)
}

// AddAttempts records how many backend attempts ran for one file and how
// many of them failed.
func (s *Statistics) AddAttempts(run, failed int) {
	atomic.AddInt64(&s.AttemptsRun, int64(run))
	atomic.AddInt64(&s.AttemptsFailed, int64(failed))
}

// AddBytes records the input and output sizes of one processed file.
func (s *Statistics) AddBytes(in, out int64) {
	atomic.AddInt64(&s.BytesIn, in)
	atomic.AddInt64(&s.BytesOut, out)
	if in > out {
		atomic.AddInt64(&s.BytesSaved, in-out)
	}
}

// RecordBackendWin credits the backend whose candidate was accepted.
func (s *Statistics) RecordBackendWin(backend string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.BackendWins[backend]++
}

// AddError records a per-file failure for the final report.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Errors = append(s.Errors, RunError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Finalize stops the clock and derives throughput figures.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
	processed := atomic.LoadInt64(&s.FilesProcessed)
	if s.Duration > 0 && processed > 0 {
		s.FilesPerSecond = float64(processed) / s.Duration.Seconds()
	}
}

// GetSummary returns a formatted summary of the run.
func (s *Statistics) GetSummary() string {
	bytesIn := atomic.LoadInt64(&s.BytesIn)
	bytesSaved := atomic.LoadInt64(&s.BytesSaved)
	var savedPct float64
	if bytesIn > 0 {
		savedPct = float64(bytesSaved) * 100 / float64(bytesIn)
	}

	return fmt.Sprintf(`PDF Compressor Statistics Summary:

Files:
		Found: %d
		Processed: %d
		Compressed: %d
		No Improvement: %d
		Invalid Input: %d
		Failed: %d

Size:
		Bytes In: %s
		Bytes Out: %s
		Saved: %s (%.1f%%)

Attempts:
		Run: %d
		Failed: %d

Performance:
		Duration: %v
		Files/Second: %.2f`,
		atomic.LoadInt64(&s.FilesFound),
		atomic.LoadInt64(&s.FilesProcessed),
		atomic.LoadInt64(&s.FilesCompressed),
		atomic.LoadInt64(&s.FilesNoImprovement),
		atomic.LoadInt64(&s.FilesInvalid),
		atomic.LoadInt64(&s.FilesFailed),
		formatBytes(bytesIn),
		formatBytes(atomic.LoadInt64(&s.BytesOut)),
		formatBytes(bytesSaved),
		savedPct,
		atomic.LoadInt64(&s.AttemptsRun),
		atomic.LoadInt64(&s.AttemptsFailed),
		s.Duration,
		s.FilesPerSecond)
}

// GetBackendBreakdown returns a formatted breakdown of winning backends.
func (s *Statistics) GetBackendBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.BackendWins) == 0 {
		return "No backend statistics available"
	}

	result := "Winning Backend Breakdown:\n"
	for backend, count := range s.BackendWins {
		result += fmt.Sprintf("  %s: %d\n", backend, count)
	}
	return result
}

// GetErrorSummary returns a summary of per-file errors.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred"
	}

	result := fmt.Sprintf("Errors (%d):\n", len(s.Errors))
	for _, e := range s.Errors {
		result += fmt.Sprintf("  %s [%s]: %s\n", e.FilePath, e.Operation, e.Error)
	}
	return result
}

// RecordOutcomeCounts applies one terminal status string to the counters.
// Status values match the engine's outcome statuses.
func (s *Statistics) RecordOutcomeCounts(status string) {
	s.IncrementFilesProcessed()
	switch status {
	case "SUCCESS":
		s.IncrementFilesCompressed()
	case "NO_IMPROVEMENT":
		s.IncrementFilesNoImprovement()
	case "INVALID_INPUT":
		s.IncrementFilesInvalid()
	default:
		s.IncrementFilesFailed()
	}
}

// formatBytes renders a byte count in human-readable units.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
