package domain

import "time"

// SourceArtifact is the output of one successful generation call. It is
// immutable once created: regeneration produces a new artifact and only
// replaces the session's current pointer.
type SourceArtifact struct {
	ID        string          `json:"id"`
	Stage     GenerationStage `json:"stage"`
	Image     []byte          `json:"image"`
	Encoded   string          `json:"encoded"`
	Prompt    string          `json:"prompt"`
	Seed      string          `json:"seed,omitempty"`
	Path      string          `json:"path,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Enhancement variant names produced by the filter. The fallback path
// populates the same keys so downstream selection never needs to know
// which path ran.
const (
	VariantOriginal    = "original"
	VariantFaceROI     = "face_roi"
	VariantNormalized  = "normalized"
	VariantSDOptimized = "sd_optimized"
)

// VariantFallbackOrder is the deterministic order used when the selected
// variant is missing from the current set.
var VariantFallbackOrder = []string{
	VariantSDOptimized,
	VariantNormalized,
	VariantFaceROI,
	VariantOriginal,
}

// EnhancementSet holds the named preprocessing variants derived from one
// uploaded source image, keyed by a content fingerprint of the upload so
// unrelated re-renders never recompute it.
type EnhancementSet struct {
	Fingerprint string            `json:"fingerprint"`
	Variants    map[string][]byte `json:"variants"`
	Simple      bool              `json:"simple"` // true when the fallback path produced the set
}

// Has reports whether the named variant is present and non-empty.
func (e *EnhancementSet) Has(name string) bool {
	if e == nil {
		return false
	}
	v, ok := e.Variants[name]
	return ok && len(v) > 0
}

// Names returns the variant names in fallback order, present ones only.
func (e *EnhancementSet) Names() []string {
	if e == nil {
		return nil
	}
	var names []string
	for _, name := range VariantFallbackOrder {
		if e.Has(name) {
			names = append(names, name)
		}
	}
	return names
}
