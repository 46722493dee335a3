package pipeline

import (
	"fmt"

	"babygen/internal/domain"
)

// ValidateSelection ensures the session's selected enhancement names a
// variant present in the current set, applying the deterministic
// fallback order when it does not. It returns a non-empty warning when a
// substitution happened. Sessions without an enhancement set are left
// untouched.
func ValidateSelection(state *domain.SessionState) string {
	set := state.Enhanced
	if set == nil {
		return ""
	}
	if state.SelectedEnhancement == "" {
		if set.Has(domain.VariantSDOptimized) {
			state.SelectedEnhancement = domain.VariantSDOptimized
		} else {
			state.SelectedEnhancement = domain.VariantOriginal
		}
	}
	if set.Has(state.SelectedEnhancement) {
		return ""
	}
	previous := state.SelectedEnhancement
	for _, name := range domain.VariantFallbackOrder {
		if set.Has(name) {
			state.SelectedEnhancement = name
			return fmt.Sprintf("selected enhancement %q not available, using %q instead", previous, name)
		}
	}
	state.SelectedEnhancement = domain.VariantOriginal
	return fmt.Sprintf("no enhancement variants available, falling back to %q", domain.VariantOriginal)
}

// ResolveSource derives the input image for a stage from session state
// alone: the enhancement selection or raw upload for the outline stage,
// the committed upstream artifact for later stages. It performs no IO.
func ResolveSource(stage domain.GenerationStage, state *domain.SessionState) ([]byte, error) {
	if stage == domain.StageOutline {
		if state.Enhanced != nil {
			if v, ok := state.Enhanced.Variants[state.SelectedEnhancement]; ok && len(v) > 0 {
				return v, nil
			}
		}
		if len(state.SourceImage) > 0 {
			return state.SourceImage, nil
		}
		return nil, fmt.Errorf("%w: no uploaded image or enhancement set", domain.ErrMissingInput)
	}
	upstream, ok := state.Upstream(stage)
	if !ok || len(upstream.Image) == 0 {
		return nil, fmt.Errorf("%w: no %s artifact for stage %s", domain.ErrMissingInput, (stage - 1).Label(), stage.Label())
	}
	return upstream.Image, nil
}
