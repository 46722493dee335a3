package domain

import (
	"fmt"
	"strings"
)

// Intent is the user action driving one controller cycle. It replaces the
// ambient boolean flag bag of earlier designs: exactly one intent is
// resolved to completion per cycle.
type Intent string

const (
	IntentGenerate   Intent = "generate"
	IntentRegenerate Intent = "regenerate"
	IntentContinue   Intent = "continue"
	IntentReset      Intent = "reset"
	IntentNewSession Intent = "new_session"
)

// ParseIntent normalizes free-form input into a supported intent.
func ParseIntent(raw string) (Intent, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(IntentGenerate):
		return IntentGenerate, nil
	case string(IntentRegenerate):
		return IntentRegenerate, nil
	case string(IntentContinue):
		return IntentContinue, nil
	case string(IntentReset):
		return IntentReset, nil
	case string(IntentNewSession):
		return IntentNewSession, nil
	default:
		return "", fmt.Errorf("unsupported intent %q", raw)
	}
}
