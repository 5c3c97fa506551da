package preset

import (
	"fmt"
	"strings"
)

// Backend family names accepted by Resolve.
const (
	BackendGhostscript = "ghostscript"
	BackendQPDF        = "qpdf"
	BackendBuiltin     = "builtin"
)

// Tier is a named quality preset controlling the compression/fidelity tradeoff.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// ParseTier converts a user-supplied quality string into a Tier.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierHigh:
		return TierHigh, nil
	case TierMedium:
		return TierMedium, nil
	case TierLow:
		return TierLow, nil
	default:
		return "", fmt.Errorf("unknown quality tier: %q (valid: high, medium, low)", s)
	}
}

// Overrides holds optional per-request settings that take precedence
// field-by-field over the tier defaults.
type Overrides struct {
	MaxDPI       *int
	ImageQuality *int
}

// Parameters is the concrete setting set handed to one backend family.
// Fields the family does not accept are left at their zero value.
type Parameters struct {
	Backend      string
	MaxDPI       int
	ImageQuality int
	LossyImages  bool
	Aggressive   bool

	// Ghostscript only: -dPDFSETTINGS preset.
	PDFSettings string

	// qpdf only: flate compression level 1-9.
	CompressionLevel int
}

// tierDefaults maps each tier to its baseline DPI cap, image quality and
// recompression mode. Values mirror the screen/ebook/printer presets the
// Ghostscript documentation associates with these DPI ranges.
type tierDefault struct {
	maxDPI       int
	imageQuality int
	lossyImages  bool
	aggressive   bool
	pdfSettings  string
}

var tierDefaults = map[Tier]tierDefault{
	TierHigh:   {maxDPI: 300, imageQuality: 90, lossyImages: false, aggressive: false, pdfSettings: "/printer"},
	TierMedium: {maxDPI: 150, imageQuality: 75, lossyImages: true, aggressive: false, pdfSettings: "/ebook"},
	TierLow:    {maxDPI: 96, imageQuality: 50, lossyImages: true, aggressive: true, pdfSettings: "/screen"},
}

// ValidateOverrides rejects out-of-range override values. Resolve applies
// the same checks; this lets callers fail a request before any backend work.
func ValidateOverrides(ov Overrides) error {
	if ov.MaxDPI != nil && *ov.MaxDPI <= 0 {
		return fmt.Errorf("invalid max_dpi override: %d (must be > 0)", *ov.MaxDPI)
	}
	if ov.ImageQuality != nil && (*ov.ImageQuality < 1 || *ov.ImageQuality > 100) {
		return fmt.Errorf("invalid image_quality override: %d (must be 1-100)", *ov.ImageQuality)
	}
	return nil
}

// Resolve maps (tier, overrides, backend family) to a concrete parameter set.
// It is a pure function: identical inputs always produce identical output.
// Out-of-range overrides are rejected here so a bad value never reaches a
// subprocess invocation.
func Resolve(tier Tier, ov Overrides, backendName string) (Parameters, error) {
	def, ok := tierDefaults[tier]
	if !ok {
		return Parameters{}, fmt.Errorf("unknown quality tier: %q", tier)
	}

	p := Parameters{
		Backend:      backendName,
		MaxDPI:       def.maxDPI,
		ImageQuality: def.imageQuality,
		LossyImages:  def.lossyImages,
		Aggressive:   def.aggressive,
	}

	if err := ValidateOverrides(ov); err != nil {
		return Parameters{}, err
	}
	if ov.MaxDPI != nil {
		p.MaxDPI = *ov.MaxDPI
	}
	if ov.ImageQuality != nil {
		p.ImageQuality = *ov.ImageQuality
	}

	switch backendName {
	case BackendGhostscript:
		p.PDFSettings = def.pdfSettings
	case BackendQPDF:
		p.CompressionLevel = 9
	case BackendBuiltin:
		// The built-in optimizer is lossless regardless of tier.
		p.LossyImages = false
		p.Aggressive = false
	default:
		return Parameters{}, fmt.Errorf("unknown backend family: %q", backendName)
	}

	return p, nil
}
