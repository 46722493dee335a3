package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"babygen/internal/domain"
	"babygen/internal/enhance"
	"babygen/internal/infra"
	"babygen/internal/pipeline"
	"babygen/internal/session"
	"babygen/internal/storage"
)

// App is the handler container: everything the HTTP surface needs,
// injected once at startup.
type App struct {
	Log        zerolog.Logger
	Config     *infra.Config
	Sessions   session.Store
	Controller *pipeline.Controller
	Enhancer   *enhance.Cache
	Files      *storage.FileStore
}

func NewApp(log zerolog.Logger, cfg *infra.Config, sessions session.Store, controller *pipeline.Controller, enhancer *enhance.Cache, files *storage.FileStore) *App {
	return &App{
		Log:        log,
		Config:     cfg,
		Sessions:   sessions,
		Controller: controller,
		Enhancer:   enhancer,
		Files:      files,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}

// pipelineError maps the controller's error taxonomy onto HTTP status
// codes and an action hint: credential problems ask for a new key,
// transient remote problems ask for a retry.
func (a *App) pipelineError(w http.ResponseWriter, err error) {
	var status int
	var code string
	switch {
	case errors.Is(err, domain.ErrMissingCredential):
		status, code = http.StatusBadRequest, "missing_credential"
	case errors.Is(err, domain.ErrInvalidCredential):
		status, code = http.StatusUnauthorized, "invalid_credential"
	case errors.Is(err, domain.ErrMissingInput):
		status, code = http.StatusBadRequest, "missing_input"
	case errors.Is(err, domain.ErrNoArtifact):
		status, code = http.StatusConflict, "no_artifact"
	case errors.Is(err, domain.ErrPipelineComplete):
		status, code = http.StatusConflict, "pipeline_complete"
	case errors.Is(err, domain.ErrRemoteQuota):
		status, code = http.StatusForbidden, "quota_exceeded"
	case errors.Is(err, domain.ErrRemoteTimeout):
		status, code = http.StatusGatewayTimeout, "remote_timeout"
	case errors.Is(err, domain.ErrRemoteGeneric):
		status, code = http.StatusBadGateway, "remote_failure"
	case errors.Is(err, domain.ErrSessionPersist):
		status, code = http.StatusInternalServerError, "internal"
	default:
		status, code = http.StatusBadRequest, "bad_request"
	}

	action := "retry"
	if domain.IsCredentialProblem(err) {
		action = "re-enter api key"
	}
	a.json(w, status, map[string]string{
		"error":   code,
		"message": err.Error(),
		"action":  action,
	})
}
