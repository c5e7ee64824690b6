package session

import (
	"errors"
	"fmt"
)

// Error taxonomy for the session layer. Provider-level failures are
// translated to these before they reach callers; raw provider codes never
// leak past this package.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyVerified    = errors.New("email is already verified")
	ErrAlreadySent        = errors.New("verification email already sent this session")
	ErrNotVerified        = errors.New("email is still not verified")
	ErrNoIdentity         = errors.New("no identity is signed in")
	ErrWidgetBinding      = errors.New("bot-check widget could not be bound")
	ErrEmailNotVerified   = errors.New("email must be verified before enrolling a second factor")
	ErrInvalidCode        = errors.New("verification code does not match")
	ErrCodeExpired        = errors.New("verification code has expired")
	ErrBadTransition      = errors.New("operation not valid in current challenge state")
)

// StepUpRequiredError is a control-flow signal, not a failure: sign-in
// succeeded on the first factor but the account requires a second one. The
// carried handle feeds the challenge manager's resolution mode.
type StepUpRequiredError struct {
	ChallengeID string
	FactorHints []string
}

func (e *StepUpRequiredError) Error() string {
	return fmt.Sprintf("step-up required (challenge %s)", e.ChallengeID)
}

// AsStepUpRequired unwraps a StepUpRequiredError if err carries one.
func AsStepUpRequired(err error) (*StepUpRequiredError, bool) {
	var stepUp *StepUpRequiredError
	if errors.As(err, &stepUp) {
		return stepUp, true
	}
	return nil, false
}
