package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ChallengeState is the phase of an in-progress second-factor flow.
type ChallengeState int

const (
	ChallengeIdle ChallengeState = iota
	ChallengeCaptchaReady
	ChallengeCodeSent
	ChallengeResolved
	ChallengeFailed
)

func (s ChallengeState) String() string {
	switch s {
	case ChallengeIdle:
		return "Idle"
	case ChallengeCaptchaReady:
		return "CaptchaReady"
	case ChallengeCodeSent:
		return "CodeSent"
	case ChallengeResolved:
		return "Resolved"
	case ChallengeFailed:
		return "Failed"
	}
	return "Unknown"
}

// ChallengeMode distinguishes adding a factor to a signed-in identity from
// answering a step-up raised mid-login.
type ChallengeMode int

const (
	ModeEnrollment ChallengeMode = iota
	ModeResolution
)

// CaptchaBinder attaches the bot-check widget to a UI anchor and produces
// the anti-abuse token the provider requires before dispatching a code.
// Only one widget may be bound per anchor; rebinding requires teardown.
type CaptchaBinder interface {
	Bind(anchorID string) error
	Token(ctx context.Context) (string, error)
	Teardown()
}

// ChallengeManager drives the phone second-factor flow for both
// enrollment and step-up resolution.
type ChallengeManager struct {
	store    *CredentialStore
	provider IdentityProvider
	binder   CaptchaBinder
	logger   *zap.Logger

	mu             sync.Mutex
	state          ChallengeState
	mode           ChallengeMode
	bound          bool
	captchaToken   string
	verificationID string
	challengeID    string
	factorHints    []string
	selectedHint   string
}

// NewChallengeManager constructs an idle manager for enrollment mode.
func NewChallengeManager(store *CredentialStore, provider IdentityProvider, binder CaptchaBinder, logger *zap.Logger) *ChallengeManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChallengeManager{
		store:    store,
		provider: provider,
		binder:   binder,
		logger:   logger,
		state:    ChallengeIdle,
		mode:     ModeEnrollment,
	}
}

// State returns the current challenge state.
func (m *ChallengeManager) State() ChallengeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// BeginResolution switches the manager to resolution mode using the handle
// from a StepUpRequired sign-in. The first enrolled factor hint is
// selected; there is no further tie-break policy.
func (m *ChallengeManager) BeginResolution(stepUp *StepUpRequiredError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != ChallengeIdle {
		return ErrBadTransition
	}
	m.mode = ModeResolution
	m.challengeID = stepUp.ChallengeID
	m.factorHints = stepUp.FactorHints
	if len(stepUp.FactorHints) > 0 {
		m.selectedHint = stepUp.FactorHints[0]
	}
	return nil
}

// BindWidget binds the bot-check widget to the anchor, moving to
// CaptchaReady. Valid from Idle, Failed, or CaptchaReady (rebind after an
// expired code).
func (m *ChallengeManager) BindWidget(anchorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case ChallengeIdle, ChallengeFailed, ChallengeCaptchaReady:
	default:
		return ErrBadTransition
	}
	if anchorID == "" {
		return ErrWidgetBinding
	}
	if err := m.binder.Bind(anchorID); err != nil {
		return ErrWidgetBinding
	}
	m.bound = true
	m.state = ChallengeCaptchaReady
	return nil
}

// SendCode dispatches a verification code, moving to CodeSent. Enrollment
// requires the identity's email to already be verified.
func (m *ChallengeManager) SendCode(ctx context.Context, phoneNumber string) error {
	m.mu.Lock()
	if m.state != ChallengeCaptchaReady || !m.bound {
		wrongState := m.state != ChallengeCaptchaReady
		m.mu.Unlock()
		if wrongState {
			return ErrBadTransition
		}
		return ErrWidgetBinding
	}
	mode := m.mode
	m.mu.Unlock()

	token, err := m.binder.Token(ctx)
	if err != nil {
		return ErrWidgetBinding
	}

	if mode == ModeEnrollment {
		identity := m.store.Current()
		if identity == nil {
			return ErrNoIdentity
		}
		if !identity.EmailVerified {
			return ErrEmailNotVerified
		}
		verificationID, err := m.provider.StartEnrollment(ctx, identity, phoneNumber, token)
		if err != nil {
			return m.fail(err)
		}
		m.mu.Lock()
		m.verificationID = verificationID
	} else {
		// Resolution mode: the provider dispatched the code when it raised
		// the challenge; the captcha token is held for the resolve call.
		m.mu.Lock()
	}

	m.captchaToken = token
	m.state = ChallengeCodeSent
	m.mu.Unlock()
	return nil
}

// SubmitCode answers the challenge with a 6-digit code. A wrong code
// leaves the state at CodeSent so the user can retry; an expired code
// drops back to CaptchaReady and the bot-check must be redone.
func (m *ChallengeManager) SubmitCode(ctx context.Context, code string) error {
	m.mu.Lock()
	if m.state != ChallengeCodeSent {
		m.mu.Unlock()
		return ErrBadTransition
	}
	mode := m.mode
	verificationID := m.verificationID
	challengeID := m.challengeID
	captchaToken := m.captchaToken
	m.mu.Unlock()

	var err error
	var identity *Identity
	if mode == ModeEnrollment {
		current := m.store.Current()
		if current == nil {
			return ErrNoIdentity
		}
		err = m.provider.ConfirmEnrollment(ctx, current, verificationID, code)
	} else {
		identity, err = m.provider.ResolveChallenge(ctx, challengeID, code, captchaToken)
	}

	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCode):
			// Challenge stays live; retry with another code.
			return ErrInvalidCode
		case errors.Is(err, ErrCodeExpired):
			m.mu.Lock()
			m.state = ChallengeCaptchaReady
			m.bound = false
			m.captchaToken = ""
			m.verificationID = ""
			m.mu.Unlock()
			m.binder.Teardown()
			return ErrCodeExpired
		default:
			return m.fail(err)
		}
	}

	m.mu.Lock()
	m.state = ChallengeResolved
	m.mu.Unlock()
	m.binder.Teardown()

	if mode == ModeResolution && identity != nil {
		m.store.AdoptIdentity(identity)
	} else if mode == ModeEnrollment {
		if refreshErr := m.store.RefreshVerificationStatus(ctx); refreshErr != nil && !errors.Is(refreshErr, ErrNotVerified) {
			m.logger.Warn("failed to refresh identity after enrollment", zap.Error(refreshErr))
		}
	}
	return nil
}

// Cancel aborts the flow from any non-terminal state, discarding the
// verification handle and tearing down the widget.
func (m *ChallengeManager) Cancel() {
	m.mu.Lock()
	switch m.state {
	case ChallengeResolved, ChallengeFailed:
		m.mu.Unlock()
		return
	}
	m.state = ChallengeIdle
	m.mode = ModeEnrollment
	m.bound = false
	m.captchaToken = ""
	m.verificationID = ""
	m.challengeID = ""
	m.factorHints = nil
	m.selectedHint = ""
	m.mu.Unlock()
	m.binder.Teardown()
}

func (m *ChallengeManager) fail(err error) error {
	m.mu.Lock()
	m.state = ChallengeFailed
	m.mu.Unlock()
	m.binder.Teardown()
	return err
}
