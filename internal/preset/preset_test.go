package preset

import (
	"reflect"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestParseTier(t *testing.T) {
	tests := []struct {
		input   string
		want    Tier
		wantErr bool
	}{
		{"high", TierHigh, false},
		{"MEDIUM", TierMedium, false},
		{" low ", TierLow, false},
		{"ultra", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTier(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTier(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTier(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolveTierDefaults(t *testing.T) {
	tests := []struct {
		tier         Tier
		wantDPI      int
		wantQuality  int
		wantLossy    bool
		wantSettings string
	}{
		{TierHigh, 300, 90, false, "/printer"},
		{TierMedium, 150, 75, true, "/ebook"},
		{TierLow, 96, 50, true, "/screen"},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			p, err := Resolve(tt.tier, Overrides{}, BackendGhostscript)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if p.MaxDPI != tt.wantDPI {
				t.Errorf("MaxDPI = %d, want %d", p.MaxDPI, tt.wantDPI)
			}
			if p.ImageQuality != tt.wantQuality {
				t.Errorf("ImageQuality = %d, want %d", p.ImageQuality, tt.wantQuality)
			}
			if p.LossyImages != tt.wantLossy {
				t.Errorf("LossyImages = %v, want %v", p.LossyImages, tt.wantLossy)
			}
			if p.PDFSettings != tt.wantSettings {
				t.Errorf("PDFSettings = %q, want %q", p.PDFSettings, tt.wantSettings)
			}
		})
	}
}

func TestResolveIsPure(t *testing.T) {
	ov := Overrides{MaxDPI: intPtr(120), ImageQuality: intPtr(66)}

	first, err := Resolve(TierMedium, ov, BackendGhostscript)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	second, err := Resolve(TierMedium, ov, BackendGhostscript)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Resolve is not pure: %+v != %+v", first, second)
	}
}

func TestResolveOverridePrecedence(t *testing.T) {
	p, err := Resolve(TierHigh, Overrides{MaxDPI: intPtr(72)}, BackendGhostscript)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if p.MaxDPI != 72 {
		t.Errorf("MaxDPI = %d, want override value 72", p.MaxDPI)
	}
	// The untouched field keeps its tier default.
	if p.ImageQuality != 90 {
		t.Errorf("ImageQuality = %d, want tier default 90", p.ImageQuality)
	}
}

func TestResolveRejectsBadOverrides(t *testing.T) {
	tests := []struct {
		name string
		ov   Overrides
	}{
		{"zero dpi", Overrides{MaxDPI: intPtr(0)}},
		{"negative dpi", Overrides{MaxDPI: intPtr(-150)}},
		{"quality zero", Overrides{ImageQuality: intPtr(0)}},
		{"quality above range", Overrides{ImageQuality: intPtr(101)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Resolve(TierMedium, tt.ov, BackendGhostscript); err == nil {
				t.Errorf("expected validation error for %+v", tt.ov)
			}
			if err := ValidateOverrides(tt.ov); err == nil {
				t.Errorf("ValidateOverrides accepted %+v", tt.ov)
			}
		})
	}
}

func TestResolveUnknownInputs(t *testing.T) {
	if _, err := Resolve(Tier("extreme"), Overrides{}, BackendGhostscript); err == nil {
		t.Error("expected error for unknown tier")
	}
	if _, err := Resolve(TierMedium, Overrides{}, "pdftk"); err == nil {
		t.Error("expected error for unknown backend family")
	}
}

func TestResolveBackendSpecificFields(t *testing.T) {
	gs, err := Resolve(TierLow, Overrides{}, BackendGhostscript)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if gs.PDFSettings == "" || gs.CompressionLevel != 0 {
		t.Errorf("ghostscript params wrong: %+v", gs)
	}
	if !gs.Aggressive {
		t.Error("low tier should be aggressive for ghostscript")
	}

	qp, err := Resolve(TierLow, Overrides{}, BackendQPDF)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if qp.CompressionLevel != 9 || qp.PDFSettings != "" {
		t.Errorf("qpdf params wrong: %+v", qp)
	}

	bi, err := Resolve(TierLow, Overrides{}, BackendBuiltin)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if bi.LossyImages || bi.Aggressive {
		t.Errorf("builtin must stay lossless at every tier: %+v", bi)
	}
}
