package pipeline

import (
	"errors"
	"testing"

	"babygen/internal/domain"
)

func TestValidateSelection(t *testing.T) {
	set := &domain.EnhancementSet{Variants: map[string][]byte{
		domain.VariantOriginal:    []byte("o"),
		domain.VariantSDOptimized: []byte("s"),
	}}

	tests := []struct {
		name         string
		selected     string
		wantSelected string
		wantWarning  bool
	}{
		{"empty defaults to sd_optimized", "", domain.VariantSDOptimized, false},
		{"valid selection kept", domain.VariantOriginal, domain.VariantOriginal, false},
		{"missing falls back with warning", domain.VariantFaceROI, domain.VariantSDOptimized, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := domain.NewSessionState("s")
			state.Enhanced = set
			state.SelectedEnhancement = tt.selected

			warning := ValidateSelection(state)
			if state.SelectedEnhancement != tt.wantSelected {
				t.Errorf("selected = %q, want %q", state.SelectedEnhancement, tt.wantSelected)
			}
			if (warning != "") != tt.wantWarning {
				t.Errorf("warning = %q, wantWarning = %v", warning, tt.wantWarning)
			}
		})
	}
}

func TestValidateSelectionWithoutSet(t *testing.T) {
	state := domain.NewSessionState("s")
	if warning := ValidateSelection(state); warning != "" {
		t.Errorf("warning without a set: %q", warning)
	}
	if state.SelectedEnhancement != "" {
		t.Errorf("selection invented without a set: %q", state.SelectedEnhancement)
	}
}

func TestResolveSourceOutline(t *testing.T) {
	state := domain.NewSessionState("s")
	state.Enhanced = &domain.EnhancementSet{Variants: map[string][]byte{
		domain.VariantNormalized: []byte("variant"),
	}}
	state.SelectedEnhancement = domain.VariantNormalized

	got, err := ResolveSource(domain.StageOutline, state)
	if err != nil {
		t.Fatalf("ResolveSource: %v", err)
	}
	if string(got) != "variant" {
		t.Errorf("source = %q, want selected variant", got)
	}

	// Raw upload backs the outline stage when the selection is unusable.
	state.SelectedEnhancement = "missing"
	state.SourceImage = []byte("raw")
	got, err = ResolveSource(domain.StageOutline, state)
	if err != nil {
		t.Fatalf("ResolveSource raw: %v", err)
	}
	if string(got) != "raw" {
		t.Errorf("source = %q, want raw upload", got)
	}

	state.SourceImage = nil
	state.Enhanced = nil
	if _, err := ResolveSource(domain.StageOutline, state); !errors.Is(err, domain.ErrMissingInput) {
		t.Errorf("err = %v, want ErrMissingInput", err)
	}
}

func TestResolveSourceLaterStages(t *testing.T) {
	state := domain.NewSessionState("s")
	if _, err := ResolveSource(domain.StageFinal, state); !errors.Is(err, domain.ErrMissingInput) {
		t.Errorf("err = %v, want ErrMissingInput without upstream", err)
	}

	state.StageArtifacts[domain.StageOutline] = domain.SourceArtifact{Image: []byte("outline")}
	got, err := ResolveSource(domain.StageFinal, state)
	if err != nil {
		t.Fatalf("ResolveSource: %v", err)
	}
	if string(got) != "outline" {
		t.Errorf("source = %q, want committed outline", got)
	}

	// Skin adjustment reads the committed final portrait, not the outline.
	if _, err := ResolveSource(domain.StageSkinAdjust, state); !errors.Is(err, domain.ErrMissingInput) {
		t.Errorf("skin stage must require the final artifact, got %v", err)
	}
	state.StageArtifacts[domain.StageFinal] = domain.SourceArtifact{Image: []byte("final")}
	got, err = ResolveSource(domain.StageSkinAdjust, state)
	if err != nil {
		t.Fatalf("ResolveSource skin: %v", err)
	}
	if string(got) != "final" {
		t.Errorf("source = %q, want committed final", got)
	}
}
