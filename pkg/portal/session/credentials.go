package session

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Identity is the authenticated principal as known to the identity
// provider. A nil *Identity means no one is signed in.
type Identity struct {
	ID            string
	Email         string
	EmailVerified bool
	FactorHints   []string
	AccessToken   string
	RefreshToken  string
}

// IdentityProvider abstracts the remote identity service. Implementations
// translate provider failures into this package's error taxonomy; SignIn
// returns *StepUpRequiredError when the account needs a second factor.
type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	SignUp(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context, identity *Identity) error
	SendVerificationEmail(ctx context.Context, identity *Identity) error
	RefreshIdentity(ctx context.Context, identity *Identity) (*Identity, error)

	StartEnrollment(ctx context.Context, identity *Identity, phoneNumber, captchaToken string) (string, error)
	ConfirmEnrollment(ctx context.Context, identity *Identity, verificationID, code string) error
	ResolveChallenge(ctx context.Context, challengeID, code, captchaToken string) (*Identity, error)
}

// Subscriber receives identity-change notifications together with the
// generation the change belongs to. Generations increase monotonically and
// let late consumers detect stale work.
type Subscriber func(identity *Identity, generation uint64)

// CredentialStore is the single source of truth for who is signed in.
// All identity mutations notify subscribers synchronously after the
// provider confirms the change; there are no optimistic updates.
type CredentialStore struct {
	provider IdentityProvider
	logger   *zap.Logger

	mu               sync.Mutex
	current          *Identity
	generation       uint64
	verificationSent bool
	subscribers      map[int]Subscriber
	nextSubscriberID int
}

// NewCredentialStore constructs a store around the given provider.
func NewCredentialStore(provider IdentityProvider, logger *zap.Logger) *CredentialStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialStore{
		provider:    provider,
		logger:      logger,
		subscribers: make(map[int]Subscriber),
	}
}

// Subscribe registers a subscriber and returns an unsubscribe function.
// No notification is delivered at registration time; call Bootstrap to
// emit the initial state.
func (s *CredentialStore) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubscriberID
	s.nextSubscriberID++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Bootstrap emits the current identity to all subscribers. "No one is
// signed in" counts as a notification; the session machine leaves its
// bootstrapping state only after this fires.
func (s *CredentialStore) Bootstrap() {
	s.mu.Lock()
	identity, generation, subs := s.current, s.generation, s.snapshotSubscribers()
	s.mu.Unlock()
	for _, fn := range subs {
		fn(identity, generation)
	}
}

// Current returns the signed-in identity, or nil.
func (s *CredentialStore) Current() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Generation returns the current identity generation.
func (s *CredentialStore) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// SignIn authenticates against the provider. On a step-up requirement the
// current identity is left untouched and the *StepUpRequiredError carries
// the resolver handle; the attempt stays pending until resolved.
func (s *CredentialStore) SignIn(ctx context.Context, email, password string) error {
	identity, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	s.adopt(identity)
	return nil
}

// SignUp creates a new identity. The new account is neither verified nor
// approved.
func (s *CredentialStore) SignUp(ctx context.Context, email, password string) error {
	identity, err := s.provider.SignUp(ctx, email, password)
	if err != nil {
		return err
	}
	s.adopt(identity)
	return nil
}

// SignOut clears the current identity. Signing out while signed out is a
// no-op.
func (s *CredentialStore) SignOut(ctx context.Context) error {
	s.mu.Lock()
	identity := s.current
	s.mu.Unlock()
	if identity == nil {
		return nil
	}
	if err := s.provider.SignOut(ctx, identity); err != nil {
		s.logger.Warn("provider sign-out failed, clearing local session anyway", zap.Error(err))
	}
	s.adopt(nil)
	return nil
}

// SendVerificationEmail dispatches a verification message for the current
// identity. A second call in the same session fails with ErrAlreadySent
// until the verification is confirmed; this is a deliberate local
// rate-limit, not provider state.
func (s *CredentialStore) SendVerificationEmail(ctx context.Context) error {
	s.mu.Lock()
	identity := s.current
	sent := s.verificationSent
	s.mu.Unlock()

	if identity == nil {
		return ErrNoIdentity
	}
	if identity.EmailVerified {
		return ErrAlreadyVerified
	}
	if sent {
		return ErrAlreadySent
	}

	if err := s.provider.SendVerificationEmail(ctx, identity); err != nil {
		return err
	}

	s.mu.Lock()
	s.verificationSent = true
	s.mu.Unlock()
	return nil
}

// RefreshVerificationStatus re-fetches identity attributes from the
// provider. Returns ErrNotVerified when the email is still unverified
// after the refresh; the refreshed identity is adopted either way.
func (s *CredentialStore) RefreshVerificationStatus(ctx context.Context) error {
	s.mu.Lock()
	identity := s.current
	s.mu.Unlock()
	if identity == nil {
		return ErrNoIdentity
	}

	refreshed, err := s.provider.RefreshIdentity(ctx, identity)
	if err != nil {
		return err
	}
	s.adopt(refreshed)

	if !refreshed.EmailVerified {
		return ErrNotVerified
	}
	return nil
}

// AdoptIdentity installs an identity obtained outside the usual sign-in
// path, such as a resolved step-up challenge.
func (s *CredentialStore) AdoptIdentity(identity *Identity) {
	s.adopt(identity)
}

func (s *CredentialStore) adopt(identity *Identity) {
	s.mu.Lock()
	s.current = identity
	s.generation++
	if identity == nil || identity.EmailVerified {
		s.verificationSent = false
	}
	generation, subs := s.generation, s.snapshotSubscribers()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(identity, generation)
	}
}

func (s *CredentialStore) snapshotSubscribers() []Subscriber {
	subs := make([]Subscriber, 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	return subs
}
