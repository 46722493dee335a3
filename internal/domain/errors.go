package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential means no API key was supplied; no network
	// call is attempted in this case.
	ErrMissingCredential = errors.New("missing api credential")
	// ErrMissingInput means no source image or upstream artifact exists
	// for the requested stage.
	ErrMissingInput = errors.New("missing source input")
	// ErrNoArtifact means CONTINUE was requested without a current
	// artifact to commit.
	ErrNoArtifact = errors.New("no artifact to commit")
	// ErrPipelineComplete means CONTINUE was requested at the last stage.
	ErrPipelineComplete = errors.New("pipeline already at last stage")
	// ErrInvalidCredential means the remote service rejected the key.
	ErrInvalidCredential = errors.New("invalid api credential")
	// ErrRemoteTimeout means the generation call did not complete in time.
	ErrRemoteTimeout = errors.New("generation service timeout")
	// ErrRemoteQuota means the account lacks credits (HTTP 403).
	ErrRemoteQuota = errors.New("insufficient generation quota")
	// ErrRemoteGeneric covers all other non-200 remote responses.
	ErrRemoteGeneric = errors.New("generation service failure")
	// ErrSessionNotFound is returned by session stores for unknown IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionPersist means a resolved cycle could not be saved back
	// to the session store.
	ErrSessionPersist = errors.New("session state not persisted")
)

// RemoteError carries the HTTP status and response body of a failed
// generation call for diagnostics. It unwraps to the matching sentinel
// so callers branch with errors.Is.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("remote status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("remote status %d", e.Status)
}

func (e *RemoteError) Unwrap() error {
	switch e.Status {
	case 401:
		return ErrInvalidCredential
	case 403:
		return ErrRemoteQuota
	default:
		return ErrRemoteGeneric
	}
}

// IsCredentialProblem reports whether the error is actionable by
// re-entering the API key rather than retrying.
func IsCredentialProblem(err error) bool {
	return errors.Is(err, ErrMissingCredential) || errors.Is(err, ErrInvalidCredential)
}
