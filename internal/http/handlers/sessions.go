package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"babygen/internal/domain"
	"babygen/internal/pipeline"
)

// maxUploadBytes bounds multipart uploads; ultrasound exports are small.
const maxUploadBytes = 20 << 20

type artifactView struct {
	ID          string    `json:"id"`
	Stage       int       `json:"stage"`
	StageLabel  string    `json:"stage_label"`
	Prompt      string    `json:"prompt"`
	Seed        string    `json:"seed,omitempty"`
	Path        string    `json:"path,omitempty"`
	ImageBase64 string    `json:"image_base64,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func viewArtifact(a *domain.SourceArtifact, includeImage bool) *artifactView {
	if a == nil {
		return nil
	}
	v := &artifactView{
		ID:         a.ID,
		Stage:      int(a.Stage),
		StageLabel: a.Stage.Label(),
		Prompt:     a.Prompt,
		Seed:       a.Seed,
		Path:       a.Path,
		CreatedAt:  a.CreatedAt,
	}
	if includeImage {
		v.ImageBase64 = a.Encoded
	}
	return v
}

func (a *App) SessionCreate(w http.ResponseWriter, r *http.Request) {
	state := domain.NewSessionState(uuid.NewString())
	if err := a.Sessions.Save(r.Context(), state); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to create session")
		return
	}
	a.json(w, http.StatusCreated, map[string]any{
		"id":    state.ID,
		"stage": int(state.Stage),
	})
}

func (a *App) SessionGet(w http.ResponseWriter, r *http.Request) {
	state, ok := a.loadSession(w, r)
	if !ok {
		return
	}
	committed := make(map[string]*artifactView, len(state.StageArtifacts))
	for stage, artifact := range state.StageArtifacts {
		artifact := artifact
		committed[stage.Label()] = viewArtifact(&artifact, false)
	}
	a.json(w, http.StatusOK, map[string]any{
		"id":                   state.ID,
		"stage":                int(state.Stage),
		"stage_label":          state.Stage.Label(),
		"ethnicity":            state.Ethnicity,
		"skin_tone":            state.SkinTone,
		"selected_enhancement": state.SelectedEnhancement,
		"enhancements":         state.Enhanced.Names(),
		"flags_empty":          state.Flags.Empty(),
		"current":              viewArtifact(state.Current, false),
		"committed":            committed,
		"history_length":       len(state.History),
		"created_at":           state.CreatedAt,
		"updated_at":           state.UpdatedAt,
	})
}

// SessionUpload ingests the ultrasound image, computes the enhancement
// variant set (cached by content fingerprint), and stores both on the
// session.
func (a *App) SessionUpload(w http.ResponseWriter, r *http.Request) {
	state, ok := a.loadSession(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "image file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "empty image upload")
		return
	}

	contrast := formFloat(r, "contrast", a.Config.DefaultContrast)
	brightness := formFloat(r, "brightness", a.Config.DefaultBrightness)

	set, err := a.Enhancer.Enhance(data, contrast, brightness)
	if err != nil {
		a.error(w, http.StatusUnprocessableEntity, "enhancement_failed", err.Error())
		return
	}

	// Staged copy for debugging; swept after an hour.
	if _, err := a.Files.SaveTemp("upload", data); err != nil {
		a.Log.Warn().Err(err).Msg("failed to stage upload in temp dir")
	}

	state.SourceImage = data
	state.Enhanced = set
	warning := pipeline.ValidateSelection(state)
	if err := a.Sessions.Save(r.Context(), state); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to save session")
		return
	}

	resp := map[string]any{
		"fingerprint":          set.Fingerprint,
		"variants":             set.Names(),
		"simple":               set.Simple,
		"selected_enhancement": state.SelectedEnhancement,
	}
	if warning != "" {
		resp["warning"] = warning
	}
	a.json(w, http.StatusOK, resp)
}

func (a *App) SessionSelect(w http.ResponseWriter, r *http.Request) {
	state, ok := a.loadSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Variant string `json:"variant"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Variant == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "variant is required")
		return
	}
	state.SelectedEnhancement = req.Variant
	// A stale choice is tolerated here; the controller substitutes a
	// valid variant (with a warning) before the next generation.
	warning := pipeline.ValidateSelection(state)
	if err := a.Sessions.Save(r.Context(), state); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to save session")
		return
	}
	resp := map[string]any{"selected_enhancement": state.SelectedEnhancement}
	if warning != "" {
		resp["warning"] = warning
	}
	a.json(w, http.StatusOK, resp)
}

type intentRequest struct {
	Intent         string           `json:"intent"`
	Ethnicity      string           `json:"ethnicity,omitempty"`
	SkinTone       string           `json:"skin_tone,omitempty"`
	PositivePrompt string           `json:"positive_prompt,omitempty"`
	NegativePrompt string           `json:"negative_prompt,omitempty"`
	ImageBase64    string           `json:"image_base64,omitempty"`
	Stage          *int             `json:"stage,omitempty"` // manual override, bypasses guards
	Params         *pipeline.Params `json:"params,omitempty"`
}

// SessionIntent runs one controller cycle: generate, regenerate,
// continue, reset, or new_session. Load, resolve, and save all happen
// inside the controller under the per-session lock, so concurrent
// intents for one session serialize instead of clobbering each other.
func (a *App) SessionIntent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "session id required")
		return
	}
	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	intent, err := domain.ParseIntent(req.Intent)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	cmd := pipeline.Command{
		Intent:         intent,
		Ethnicity:      req.Ethnicity,
		SkinTone:       req.SkinTone,
		PositivePrompt: req.PositivePrompt,
		NegativePrompt: req.NegativePrompt,
		Params:         req.Params,
	}
	if req.ImageBase64 != "" {
		upload, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "image_base64 is not valid base64")
			return
		}
		cmd.Upload = upload
	}
	if req.Stage != nil {
		stage := domain.GenerationStage(*req.Stage)
		cmd.StageOverride = &stage
	}

	outcome, _, err := a.Controller.Resolve(r.Context(), id, cmd)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		a.pipelineError(w, err)
		return
	}

	a.json(w, http.StatusOK, map[string]any{
		"stage":       int(outcome.Stage),
		"stage_label": outcome.Stage.Label(),
		"artifact":    viewArtifact(outcome.Artifact, true),
		"saved_path":  outcome.SavedPath,
		"warnings":    outcome.Warnings,
		"message":     outcome.Message,
	})
}

func (a *App) SessionHistory(w http.ResponseWriter, r *http.Request) {
	state, ok := a.loadSession(w, r)
	if !ok {
		return
	}
	items := make([]*artifactView, 0, len(state.History))
	for i := range state.History {
		items = append(items, viewArtifact(&state.History[i], false))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// SessionArtifact streams the current artifact as PNG.
func (a *App) SessionArtifact(w http.ResponseWriter, r *http.Request) {
	state, ok := a.loadSession(w, r)
	if !ok {
		return
	}
	if state.Current == nil {
		a.error(w, http.StatusNotFound, "not_found", "no artifact generated yet")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(state.Current.Image)
}

func (a *App) loadSession(w http.ResponseWriter, r *http.Request) (*domain.SessionState, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "session id required")
		return nil, false
	}
	state, err := a.Sessions.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "session not found")
		} else {
			a.error(w, http.StatusInternalServerError, "internal", "failed to load session")
		}
		return nil, false
	}
	return state, true
}

func formFloat(r *http.Request, key string, fallback float64) float64 {
	raw := r.FormValue(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
