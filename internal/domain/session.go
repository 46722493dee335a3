package domain

import "time"

// IntentFlags are the transient markers set while a cycle is being
// resolved. They never survive a resolved cycle, success or failure; the
// controller clears them before returning.
type IntentFlags struct {
	ForceRegenerate     bool `json:"force_regenerate,omitempty"`
	PreventAutoProgress bool `json:"prevent_auto_progress,omitempty"`
	IsRegenerating      bool `json:"is_regenerating,omitempty"`
	Advancing           bool `json:"advancing,omitempty"`
}

// Empty reports whether no transient flag is set.
func (f IntentFlags) Empty() bool {
	return f == IntentFlags{}
}

// SessionState is the whole mutable state of one pipeline session. It is
// owned by exactly one session and mutated by at most one controller
// cycle at a time.
type SessionState struct {
	ID    string          `json:"id"`
	Stage GenerationStage `json:"stage"`

	// Current is the latest generated image, superseded on regeneration.
	Current *SourceArtifact `json:"current,omitempty"`

	// StageArtifacts holds one committed artifact per completed stage;
	// entries appear only through CONTINUE and feed the next stage.
	StageArtifacts map[GenerationStage]SourceArtifact `json:"stage_artifacts,omitempty"`

	// SourceImage is the raw upload kept for regeneration of stage 0
	// when no enhancement set is available.
	SourceImage []byte `json:"source_image,omitempty"`

	Enhanced            *EnhancementSet `json:"enhanced,omitempty"`
	SelectedEnhancement string          `json:"selected_enhancement,omitempty"`

	Ethnicity        string `json:"ethnicity,omitempty"`
	SkinTone         string `json:"skin_tone,omitempty"`
	PreviousSkinTone string `json:"previous_skin_tone,omitempty"`

	Flags IntentFlags `json:"flags"`

	// History is append-only and never trimmed; entries are never
	// mutated after insertion.
	History []SourceArtifact `json:"history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSessionState creates a fresh session at the outline stage.
func NewSessionState(id string) *SessionState {
	now := time.Now().UTC()
	return &SessionState{
		ID:             id,
		Stage:          StageOutline,
		StageArtifacts: make(map[GenerationStage]SourceArtifact),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Reset returns the session to the outline stage. Generated artifacts
// are dropped while the enhancement set and raw upload survive so the
// user does not have to re-upload.
func (s *SessionState) Reset() {
	s.Stage = StageOutline
	s.Current = nil
	s.StageArtifacts = make(map[GenerationStage]SourceArtifact)
	s.Flags = IntentFlags{}
	s.UpdatedAt = time.Now().UTC()
}

// Clear is the full teardown used by NEW_SESSION: everything including
// the enhancement set, upload, and history is dropped.
func (s *SessionState) Clear() {
	s.Reset()
	s.Enhanced = nil
	s.SelectedEnhancement = ""
	s.SourceImage = nil
	s.PreviousSkinTone = ""
	s.History = nil
}

// Upstream returns the committed artifact feeding the given stage, if
// any. Stage 0 has no upstream artifact; it is fed by the upload or the
// enhancement selection instead.
func (s *SessionState) Upstream(stage GenerationStage) (SourceArtifact, bool) {
	if stage <= StageOutline {
		return SourceArtifact{}, false
	}
	a, ok := s.StageArtifacts[stage-1]
	return a, ok
}
