package domain

import (
	"errors"
	"testing"
)

func TestStageProgression(t *testing.T) {
	if StageOutline.Next() != StageFinal || StageFinal.Next() != StageSkinAdjust {
		t.Errorf("stage order broken")
	}
	if StageSkinAdjust.Next() != StageSkinAdjust {
		t.Errorf("last stage must saturate")
	}
	if StageOutline.Label() != "outline" || StageFinal.Label() != "final" || StageSkinAdjust.Label() != "skin_adjusted" {
		t.Errorf("unexpected stage labels")
	}
	if GenerationStage(5).Valid() || GenerationStage(-1).Valid() {
		t.Errorf("out-of-range stage accepted")
	}
}

func TestParseIntent(t *testing.T) {
	tests := []struct {
		raw     string
		want    Intent
		wantErr bool
	}{
		{"generate", IntentGenerate, false},
		{" Continue ", IntentContinue, false},
		{"NEW_SESSION", IntentNewSession, false},
		{"advance", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseIntent(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseIntent(%q) err = %v, wantErr = %v", tt.raw, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseIntent(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestResetKeepsInputs(t *testing.T) {
	s := NewSessionState("id")
	s.Stage = StageFinal
	s.Current = &SourceArtifact{ID: "a"}
	s.StageArtifacts[StageOutline] = SourceArtifact{ID: "b"}
	s.SourceImage = []byte("img")
	s.Enhanced = &EnhancementSet{Fingerprint: "fp"}
	s.History = []SourceArtifact{{ID: "a"}}
	s.Flags.Advancing = true

	s.Reset()

	if s.Stage != StageOutline || s.Current != nil || len(s.StageArtifacts) != 0 {
		t.Errorf("reset left generated state behind")
	}
	if !s.Flags.Empty() {
		t.Errorf("reset left flags set")
	}
	if s.Enhanced == nil || s.SourceImage == nil {
		t.Errorf("reset must keep the upload and enhancement set")
	}
	if len(s.History) != 1 {
		t.Errorf("reset must keep history")
	}
}

func TestClearDropsEverything(t *testing.T) {
	s := NewSessionState("id")
	s.SourceImage = []byte("img")
	s.Enhanced = &EnhancementSet{Fingerprint: "fp"}
	s.SelectedEnhancement = VariantOriginal
	s.PreviousSkinTone = "Medium"
	s.History = []SourceArtifact{{ID: "a"}}

	s.Clear()

	if s.Enhanced != nil || s.SourceImage != nil || s.SelectedEnhancement != "" {
		t.Errorf("clear kept upload state")
	}
	if s.PreviousSkinTone != "" || s.History != nil {
		t.Errorf("clear kept generation state")
	}
}

func TestUpstream(t *testing.T) {
	s := NewSessionState("id")
	if _, ok := s.Upstream(StageOutline); ok {
		t.Errorf("outline stage has no upstream artifact")
	}
	if _, ok := s.Upstream(StageFinal); ok {
		t.Errorf("upstream reported before commit")
	}
	s.StageArtifacts[StageOutline] = SourceArtifact{ID: "o"}
	a, ok := s.Upstream(StageFinal)
	if !ok || a.ID != "o" {
		t.Errorf("upstream of final = %+v, %v", a, ok)
	}
}

func TestEnhancementSetNames(t *testing.T) {
	var nilSet *EnhancementSet
	if nilSet.Has(VariantOriginal) || nilSet.Names() != nil {
		t.Errorf("nil set must report nothing")
	}
	set := &EnhancementSet{Variants: map[string][]byte{
		VariantOriginal:    []byte("o"),
		VariantNormalized:  []byte("n"),
		VariantSDOptimized: nil, // empty counts as absent
	}}
	names := set.Names()
	if len(names) != 2 || names[0] != VariantNormalized || names[1] != VariantOriginal {
		t.Errorf("names = %v, want fallback order without empty variants", names)
	}
}

func TestRemoteErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{401, ErrInvalidCredential},
		{403, ErrRemoteQuota},
		{500, ErrRemoteGeneric},
		{404, ErrRemoteGeneric},
	}
	for _, tt := range tests {
		err := &RemoteError{Status: tt.status, Body: "detail"}
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d maps to %v, want %v", tt.status, err, tt.want)
		}
	}
	if !IsCredentialProblem(&RemoteError{Status: 401}) {
		t.Errorf("401 is a credential problem")
	}
	if IsCredentialProblem(&RemoteError{Status: 500}) {
		t.Errorf("500 is not a credential problem")
	}
}
