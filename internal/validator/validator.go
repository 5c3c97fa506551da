package validator

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/sirupsen/logrus"
)

// Reason classifies why a candidate was accepted or rejected. Reasons are
// part of the engine contract: NO_IMPROVEMENT tells the orchestrator to try
// the next backend rather than treat the attempt as an error.
type Reason string

const (
	ReasonAccepted      Reason = "ACCEPTED"
	ReasonMissing       Reason = "MISSING_CANDIDATE"
	ReasonEmpty         Reason = "EMPTY_CANDIDATE"
	ReasonMalformed     Reason = "MALFORMED"
	ReasonNoImprovement Reason = "NO_IMPROVEMENT"
)

// Decision is the outcome of validating one candidate file.
type Decision struct {
	Accept        bool
	Reason        Reason
	Detail        string
	CandidateSize int64
}

var pdfHeader = []byte("%PDF-")

// Validator inspects candidate output files for structural validity and
// size improvement. The page-count probe is injectable for testing; the
// default uses pdfcpu.
type Validator struct {
	log       *logrus.Logger
	pageCount func(path string) (int, error)
}

// New creates a validator backed by pdfcpu's page-count check.
func New(log *logrus.Logger) *Validator {
	return &Validator{log: log, pageCount: api.PageCountFile}
}

// NewWithPageCount creates a validator with a custom page-count probe.
func NewWithPageCount(log *logrus.Logger, pageCount func(string) (int, error)) *Validator {
	return &Validator{log: log, pageCount: pageCount}
}

// Validate runs the acceptance checks in order, short-circuiting on the
// first failure: existence, structural well-formedness, strict size
// improvement against inputSize.
func (v *Validator) Validate(inputSize int64, candidatePath string) Decision {
	info, err := os.Stat(candidatePath)
	if err != nil {
		return Decision{Reason: ReasonMissing, Detail: fmt.Sprintf("stat candidate: %v", err)}
	}
	if info.Size() == 0 {
		return Decision{Reason: ReasonEmpty, Detail: "candidate file is empty"}
	}

	if err := checkStructure(candidatePath); err != nil {
		return Decision{Reason: ReasonMalformed, Detail: err.Error(), CandidateSize: info.Size()}
	}

	pages, err := v.pageCount(candidatePath)
	if err != nil {
		return Decision{Reason: ReasonMalformed, Detail: fmt.Sprintf("page count: %v", err), CandidateSize: info.Size()}
	}
	if pages < 1 {
		return Decision{Reason: ReasonMalformed, Detail: "candidate has no pages", CandidateSize: info.Size()}
	}

	if info.Size() >= inputSize {
		return Decision{
			Reason:        ReasonNoImprovement,
			Detail:        fmt.Sprintf("candidate %d bytes >= input %d bytes", info.Size(), inputSize),
			CandidateSize: info.Size(),
		}
	}

	return Decision{Accept: true, Reason: ReasonAccepted, CandidateSize: info.Size()}
}

// CheckInput verifies that an input file exists, is non-empty and carries a
// PDF header. Used by the orchestrator to short-circuit to INVALID_INPUT
// before any backend runs.
func (v *Validator) CheckInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("input not readable: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input is a directory: %s", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("input is empty: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("input not readable: %w", err)
	}
	defer f.Close()

	header := make([]byte, len(pdfHeader))
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("input too short to be a PDF: %w", err)
	}
	if !bytes.Equal(header, pdfHeader) {
		return fmt.Errorf("input is not a PDF (missing %%PDF- header): %s", path)
	}
	return nil
}

// checkStructure does a minimal well-formedness pass: the %PDF- header must
// open the file and an %%EOF marker must appear near the end. Full semantic
// parsing stays with the backends.
func checkStructure(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open candidate: %w", err)
	}
	defer f.Close()

	header := make([]byte, len(pdfHeader))
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if !bytes.Equal(header, pdfHeader) {
		return fmt.Errorf("missing %%PDF- header")
	}

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat candidate: %w", err)
	}

	// %%EOF must sit within the last KiB; trailing whitespace is common.
	tailLen := int64(1024)
	if info.Size() < tailLen {
		tailLen = info.Size()
	}
	tail := make([]byte, tailLen)
	if _, err := f.ReadAt(tail, info.Size()-tailLen); err != nil && err != io.EOF {
		return fmt.Errorf("read trailer: %w", err)
	}
	if !bytes.Contains(tail, []byte("%%EOF")) {
		return fmt.Errorf("missing %%%%EOF trailer marker")
	}
	return nil
}
