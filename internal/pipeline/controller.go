// Package pipeline implements the generation stage controller: the state
// machine over {stage, transient flags, source selection} that resolves
// one user intent per cycle, selects the source image and prompt for the
// current stage, invokes the generation service, and commits the result.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"babygen/internal/domain"
	"babygen/internal/enhance"
	"babygen/internal/prompt"
	"babygen/internal/session"
	"babygen/internal/stability"
	"babygen/internal/storage"
)

// Generator is the controller's view of the generation service.
type Generator interface {
	GenerateFromImage(ctx context.Context, req stability.ImageToImageRequest) (*stability.Result, error)
	GenerateWithStructure(ctx context.Context, req stability.StructureRequest) (*stability.Result, error)
	ValidateKey(ctx context.Context) error
}

// Params are the per-cycle generation tunables.
type Params struct {
	Steps           int
	GuidanceScale   float64
	Strength        float64
	ControlStrength float64
	Contrast        float64
	Brightness      float64
}

// DefaultParams mirror the pipeline defaults.
func DefaultParams() Params {
	return Params{
		Steps:           35,
		GuidanceScale:   8.5,
		Strength:        0.65,
		ControlStrength: 0.85,
		Contrast:        1.3,
		Brightness:      1.2,
	}
}

// Command carries one user intent plus the optional inputs submitted
// with it. Exactly one Command drives one controller cycle; there are no
// ambient flags inspected outside of it.
type Command struct {
	Intent         domain.Intent
	Upload         []byte
	Ethnicity      string
	SkinTone       string
	PositivePrompt string
	NegativePrompt string
	Params         *Params

	// StageOverride bypasses the transition table guards. It can
	// desynchronize the stage from the committed artifacts; the
	// controller reports ErrMissingInput when the required upstream
	// artifact is gone.
	StageOverride *domain.GenerationStage
}

// Outcome reports a resolved cycle.
type Outcome struct {
	Stage     domain.GenerationStage `json:"stage"`
	Artifact  *domain.SourceArtifact `json:"artifact,omitempty"`
	SavedPath string                 `json:"saved_path,omitempty"`
	Warnings  []string               `json:"warnings,omitempty"`
	Message   string                 `json:"message,omitempty"`
}

// Controller resolves intents against session state. One cycle per
// session runs at a time; concurrent calls for the same session block
// for the whole load, resolve, save sequence.
type Controller struct {
	gen        Generator
	files      *storage.FileStore
	enhancer   *enhance.Cache
	sessions   session.Store
	credential string
	defaults   Params
	log        zerolog.Logger

	locks sync.Map // session id -> *sync.Mutex
}

func NewController(gen Generator, files *storage.FileStore, enhancer *enhance.Cache, sessions session.Store, credential string, defaults Params, log zerolog.Logger) *Controller {
	return &Controller{
		gen:        gen,
		files:      files,
		enhancer:   enhancer,
		sessions:   sessions,
		credential: strings.TrimSpace(credential),
		defaults:   defaults,
		log:        log,
	}
}

// Resolve loads the session, runs one full cycle for the given intent,
// and persists the result. The per-session lock covers all three steps:
// a concurrent intent for the same session observes the previous
// cycle's saved state, never a stale snapshot. The session is saved on
// failure too, since flags are cleared and the stage may have moved.
func (c *Controller) Resolve(ctx context.Context, id string, cmd Command) (*Outcome, *domain.SessionState, error) {
	lock := c.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	state, err := c.sessions.Load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	out, resolveErr := c.resolve(ctx, state, cmd)
	if err := c.sessions.Save(ctx, state); err != nil {
		if resolveErr != nil {
			c.log.Error().Err(err).Str("session", id).Msg("failed to save session after failed cycle")
			return nil, state, resolveErr
		}
		return nil, state, fmt.Errorf("%w: %v", domain.ErrSessionPersist, err)
	}
	return out, state, resolveErr
}

// resolve runs one cycle against already-loaded state. Transient flags
// are cleared before control returns, success or failure, so a
// processed intent can never re-fire on the next cycle.
func (c *Controller) resolve(ctx context.Context, state *domain.SessionState, cmd Command) (out *Outcome, err error) {
	defer func() {
		state.Flags = domain.IntentFlags{}
		state.UpdatedAt = time.Now().UTC()
	}()

	if cmd.Ethnicity != "" {
		state.Ethnicity = cmd.Ethnicity
	}
	if cmd.SkinTone != "" {
		state.SkinTone = cmd.SkinTone
	}
	if cmd.StageOverride != nil {
		if !cmd.StageOverride.Valid() {
			return nil, fmt.Errorf("invalid stage override %d", int(*cmd.StageOverride))
		}
		state.Stage = *cmd.StageOverride
	}

	switch cmd.Intent {
	case domain.IntentGenerate:
		if err := c.ingestUpload(state, cmd); err != nil {
			return nil, err
		}
		return c.generate(ctx, state, cmd, false)

	case domain.IntentRegenerate:
		if err := c.ingestUpload(state, cmd); err != nil {
			return nil, err
		}
		state.Flags.ForceRegenerate = true
		state.Flags.IsRegenerating = true
		state.Flags.PreventAutoProgress = true
		return c.regenerate(ctx, state, cmd)

	case domain.IntentContinue:
		if err := c.ingestUpload(state, cmd); err != nil {
			return nil, err
		}
		return c.advance(ctx, state, cmd)

	case domain.IntentReset:
		state.Reset()
		return &Outcome{Stage: state.Stage, Message: "session reset to outline stage"}, nil

	case domain.IntentNewSession:
		state.Clear()
		if len(cmd.Upload) == 0 {
			return &Outcome{Stage: state.Stage, Message: "session cleared"}, nil
		}
		if err := c.ingestUpload(state, cmd); err != nil {
			return nil, err
		}
		return c.generate(ctx, state, cmd, false)

	default:
		return nil, fmt.Errorf("unsupported intent %q", cmd.Intent)
	}
}

// regenerate re-runs the current stage only. The stage never changes
// here; the superseded artifact stays in history.
func (c *Controller) regenerate(ctx context.Context, state *domain.SessionState, cmd Command) (*Outcome, error) {
	stage := state.Stage
	if stage > domain.StageOutline {
		if _, ok := state.Upstream(stage); !ok {
			// The upstream artifact is gone (manual override or reset
			// race). Roll back to the outline stage so the session can
			// recover instead of wedging.
			state.Stage = domain.StageOutline
			return nil, fmt.Errorf("%w: no %s artifact to regenerate %s from", domain.ErrMissingInput, (stage - 1).Label(), stage.Label())
		}
	}
	return c.generate(ctx, state, cmd, true)
}

// advance commits the current artifact for this stage, increments the
// stage, and immediately generates for the new stage. Commit and
// generate are two explicit sequential steps.
func (c *Controller) advance(ctx context.Context, state *domain.SessionState, cmd Command) (*Outcome, error) {
	if state.Stage >= domain.LastStage {
		return nil, domain.ErrPipelineComplete
	}
	if state.Current == nil {
		return nil, domain.ErrNoArtifact
	}

	committed := *state.Current
	state.StageArtifacts[state.Stage] = committed
	state.Flags.Advancing = true
	state.Stage = state.Stage.Next()
	c.log.Info().
		Str("session", state.ID).
		Str("stage", state.Stage.Label()).
		Msg("committed artifact, advancing")

	return c.generate(ctx, state, cmd, false)
}

// generate runs one generation call for the session's current stage and
// commits the artifact on success. On failure the session's artifacts
// are left untouched.
func (c *Controller) generate(ctx context.Context, state *domain.SessionState, cmd Command, regenerating bool) (*Outcome, error) {
	if c.credential == "" {
		return nil, domain.ErrMissingCredential
	}

	stage := state.Stage
	out := &Outcome{Stage: stage}

	if stage == domain.StageOutline {
		if warning := ValidateSelection(state); warning != "" {
			c.log.Warn().Str("session", state.ID).Msg(warning)
			out.Warnings = append(out.Warnings, warning)
		}
	}

	source, err := ResolveSource(stage, state)
	if err != nil {
		return nil, err
	}

	if err := c.gen.ValidateKey(ctx); err != nil {
		return nil, err
	}

	positive, negative := c.resolvePrompts(state, cmd, regenerating)
	params := c.mergeParams(cmd.Params)

	if regenerating && stage == domain.StageSkinAdjust &&
		state.PreviousSkinTone != "" && state.PreviousSkinTone != state.SkinTone {
		out.Message = fmt.Sprintf("adjusting skin tone from %s to %s", state.PreviousSkinTone, state.SkinTone)
	}

	var result *stability.Result
	if stage == domain.StageOutline {
		result, err = c.gen.GenerateFromImage(ctx, stability.ImageToImageRequest{
			Image:          source,
			Prompt:         positive,
			NegativePrompt: negative,
			Steps:          params.Steps,
			CFGScale:       params.GuidanceScale,
			Strength:       params.Strength,
		})
	} else {
		strength := params.ControlStrength
		if stage == domain.StageSkinAdjust {
			// Maximum structure control so only the skin tone moves.
			strength = 1.0
		}
		result, err = c.gen.GenerateWithStructure(ctx, stability.StructureRequest{
			Image:           source,
			Prompt:          positive,
			NegativePrompt:  negative,
			ControlStrength: strength,
		})
	}
	if err != nil {
		c.log.Error().Err(err).Str("session", state.ID).Str("stage", stage.Label()).Msg("generation failed")
		return nil, err
	}

	artifact := domain.SourceArtifact{
		ID:        uuid.NewString(),
		Stage:     stage,
		Image:     result.Image,
		Encoded:   base64.StdEncoding.EncodeToString(result.Image),
		Prompt:    positive,
		Seed:      result.Seed,
		CreatedAt: time.Now().UTC(),
	}
	if path, err := c.files.SaveArtifact(stage.Label(), result.Image); err != nil {
		// Durable write failures do not lose the artifact, but the
		// caller should know the disk copy is missing.
		c.log.Error().Err(err).Str("session", state.ID).Msg("failed to persist artifact")
		out.Warnings = append(out.Warnings, fmt.Sprintf("artifact not persisted: %v", err))
	} else {
		artifact.Path = path
		out.SavedPath = path
	}

	state.History = append(state.History, artifact)
	state.Current = &artifact
	if stage == domain.StageSkinAdjust {
		state.PreviousSkinTone = state.SkinTone
	}

	out.Artifact = &artifact
	if out.Message == "" {
		out.Message = fmt.Sprintf("stage %d/%d completed", int(stage)+1, int(domain.LastStage)+1)
	}
	c.log.Info().
		Str("session", state.ID).
		Str("stage", stage.Label()).
		Str("seed", artifact.Seed).
		Bool("regenerated", regenerating).
		Msg("generation succeeded")
	return out, nil
}

// resolvePrompts prefers explicit per-command overrides and otherwise
// rebuilds from the templates with the session's current ethnicity and
// skin tone. Regeneration never reuses a previously rendered prompt, so
// ethnicity or skin-tone changes always land in the next call.
func (c *Controller) resolvePrompts(state *domain.SessionState, cmd Command, regenerating bool) (string, string) {
	positive, negative := prompt.Build(state.Stage, state.Ethnicity, state.SkinTone)
	if !regenerating || state.Stage == domain.StageOutline {
		if strings.TrimSpace(cmd.PositivePrompt) != "" {
			positive = cmd.PositivePrompt
		}
	}
	if strings.TrimSpace(cmd.NegativePrompt) != "" {
		negative = cmd.NegativePrompt
	}
	return positive, negative
}

func (c *Controller) mergeParams(override *Params) Params {
	params := c.defaults
	if override == nil {
		return params
	}
	if override.Steps > 0 {
		params.Steps = override.Steps
	}
	if override.GuidanceScale > 0 {
		params.GuidanceScale = override.GuidanceScale
	}
	if override.Strength > 0 {
		params.Strength = override.Strength
	}
	if override.ControlStrength > 0 {
		params.ControlStrength = override.ControlStrength
	}
	if override.Contrast > 0 {
		params.Contrast = override.Contrast
	}
	if override.Brightness > 0 {
		params.Brightness = override.Brightness
	}
	return params
}

// ingestUpload computes the enhancement set for a freshly uploaded image
// and stores both on the session. No-op without an upload.
func (c *Controller) ingestUpload(state *domain.SessionState, cmd Command) error {
	if len(cmd.Upload) == 0 {
		return nil
	}
	params := c.mergeParams(cmd.Params)
	set, err := c.enhancer.Enhance(cmd.Upload, params.Contrast, params.Brightness)
	if err != nil {
		return err
	}
	state.SourceImage = cmd.Upload
	state.Enhanced = set
	return nil
}

func (c *Controller) sessionLock(id string) *sync.Mutex {
	v, _ := c.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Retryable reports whether the failure is worth retrying as-is, used by
// the HTTP surface to shape user-facing messages.
func Retryable(err error) bool {
	return errors.Is(err, domain.ErrRemoteTimeout) || errors.Is(err, domain.ErrRemoteGeneric)
}
