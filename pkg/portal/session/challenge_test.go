package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBinder struct {
	bindErr   error
	tokenErr  error
	token     string
	binds     int
	teardowns int
}

func (b *fakeBinder) Bind(anchorID string) error {
	if b.bindErr != nil {
		return b.bindErr
	}
	b.binds++
	return nil
}

func (b *fakeBinder) Token(ctx context.Context) (string, error) {
	if b.tokenErr != nil {
		return "", b.tokenErr
	}
	if b.token == "" {
		return "captcha-token", nil
	}
	return b.token, nil
}

func (b *fakeBinder) Teardown() {
	b.teardowns++
}

func signedInStore(t *testing.T, provider *fakeProvider, verified bool) *CredentialStore {
	t.Helper()
	if provider.identities == nil {
		provider.identities = map[string]*Identity{}
	}
	provider.identities["user@example.com"] = &Identity{
		ID: "u1", Email: "user@example.com", EmailVerified: verified, AccessToken: "at",
	}
	store := NewCredentialStore(provider, zap.NewNop())
	require.NoError(t, store.SignIn(context.Background(), "user@example.com", "pw"))
	return store
}

func TestChallengeEnrollmentHappyPath(t *testing.T) {
	provider := &fakeProvider{enrollID: "v42"}
	store := signedInStore(t, provider, true)
	binder := &fakeBinder{}
	m := NewChallengeManager(store, provider, binder, zap.NewNop())

	assert.Equal(t, ChallengeIdle, m.State())

	require.NoError(t, m.BindWidget("anchor"))
	assert.Equal(t, ChallengeCaptchaReady, m.State())

	require.NoError(t, m.SendCode(context.Background(), "+15551234567"))
	assert.Equal(t, ChallengeCodeSent, m.State())
	assert.Equal(t, 1, provider.enrollStarts)
	assert.Equal(t, "captcha-token", provider.lastCaptcha)

	require.NoError(t, m.SubmitCode(context.Background(), "123456"))
	assert.Equal(t, ChallengeResolved, m.State())
	assert.Equal(t, 1, provider.confirmCalls)
	assert.Equal(t, 1, binder.teardowns)
}

func TestChallengeSendCodeRequiresBinding(t *testing.T) {
	provider := &fakeProvider{}
	store := signedInStore(t, provider, true)
	m := NewChallengeManager(store, provider, &fakeBinder{}, zap.NewNop())

	err := m.SendCode(context.Background(), "+15551234567")
	assert.ErrorIs(t, err, ErrBadTransition)
	assert.Zero(t, provider.enrollStarts)
}

func TestChallengeSendCodeRejectionIsRaceFree(t *testing.T) {
	provider := &fakeProvider{}
	store := signedInStore(t, provider, true)
	binder := &fakeBinder{tokenErr: errors.New("widget expired")}
	m := NewChallengeManager(store, provider, binder, zap.NewNop())

	// Rejected sends must not touch manager state outside the lock even
	// while another goroutine is driving the flow forward.
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.SendCode(context.Background(), "+15551234567")
		}(i)
	}
	_ = m.BindWidget("anchor")
	wg.Wait()

	for _, err := range errs {
		if !errors.Is(err, ErrBadTransition) {
			assert.ErrorIs(t, err, ErrWidgetBinding)
		}
	}
	assert.Zero(t, provider.enrollStarts)
}

func TestChallengeEnrollmentRequiresVerifiedEmail(t *testing.T) {
	provider := &fakeProvider{}
	store := signedInStore(t, provider, false)
	m := NewChallengeManager(store, provider, &fakeBinder{}, zap.NewNop())

	require.NoError(t, m.BindWidget("anchor"))
	err := m.SendCode(context.Background(), "+15551234567")
	assert.ErrorIs(t, err, ErrEmailNotVerified)
	assert.Zero(t, provider.enrollStarts)
	assert.Equal(t, ChallengeCaptchaReady, m.State())
}

func TestChallengeWrongCodeStaysCodeSent(t *testing.T) {
	provider := &fakeProvider{confirmErr: ErrInvalidCode}
	store := signedInStore(t, provider, true)
	m := NewChallengeManager(store, provider, &fakeBinder{}, zap.NewNop())

	require.NoError(t, m.BindWidget("anchor"))
	require.NoError(t, m.SendCode(context.Background(), "+15551234567"))

	err := m.SubmitCode(context.Background(), "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Equal(t, ChallengeCodeSent, m.State())

	// The right code works without redoing the bot check.
	provider.confirmErr = nil
	require.NoError(t, m.SubmitCode(context.Background(), "123456"))
	assert.Equal(t, ChallengeResolved, m.State())
}

func TestChallengeExpiredCodeRequiresNewCaptcha(t *testing.T) {
	provider := &fakeProvider{confirmErr: ErrCodeExpired}
	store := signedInStore(t, provider, true)
	binder := &fakeBinder{}
	m := NewChallengeManager(store, provider, binder, zap.NewNop())

	require.NoError(t, m.BindWidget("anchor"))
	require.NoError(t, m.SendCode(context.Background(), "+15551234567"))

	err := m.SubmitCode(context.Background(), "123456")
	assert.ErrorIs(t, err, ErrCodeExpired)
	assert.Equal(t, ChallengeCaptchaReady, m.State())
	assert.Equal(t, 1, binder.teardowns)

	// Sending again without rebinding fails; the widget is gone.
	err = m.SendCode(context.Background(), "+15551234567")
	assert.ErrorIs(t, err, ErrWidgetBinding)

	// Rebinding restarts the flow.
	provider.confirmErr = nil
	require.NoError(t, m.BindWidget("anchor"))
	require.NoError(t, m.SendCode(context.Background(), "+15551234567"))
	require.NoError(t, m.SubmitCode(context.Background(), "654321"))
	assert.Equal(t, ChallengeResolved, m.State())
}

func TestChallengeProviderFailureIsTerminal(t *testing.T) {
	provider := &fakeProvider{confirmErr: errors.New("boom")}
	store := signedInStore(t, provider, true)
	binder := &fakeBinder{}
	m := NewChallengeManager(store, provider, binder, zap.NewNop())

	require.NoError(t, m.BindWidget("anchor"))
	require.NoError(t, m.SendCode(context.Background(), "+15551234567"))
	require.Error(t, m.SubmitCode(context.Background(), "123456"))
	assert.Equal(t, ChallengeFailed, m.State())

	// Failed is recoverable only through a fresh widget binding.
	assert.ErrorIs(t, m.SubmitCode(context.Background(), "123456"), ErrBadTransition)
	require.NoError(t, m.BindWidget("anchor"))
	assert.Equal(t, ChallengeCaptchaReady, m.State())
}

func TestChallengeResolutionAdoptsIdentity(t *testing.T) {
	resolved := &Identity{ID: "u1", Email: "user@example.com", EmailVerified: true, AccessToken: "fresh"}
	provider := &fakeProvider{resolveResult: resolved}
	store := NewCredentialStore(provider, zap.NewNop())
	binder := &fakeBinder{}
	m := NewChallengeManager(store, provider, binder, zap.NewNop())

	stepUp := &StepUpRequiredError{ChallengeID: "c1", FactorHints: []string{"+***4567", "+***9999"}}
	require.NoError(t, m.BeginResolution(stepUp))

	require.NoError(t, m.BindWidget("anchor"))
	// Resolution mode: the provider already dispatched the code when it
	// raised the challenge, so SendCode only collects the captcha token.
	require.NoError(t, m.SendCode(context.Background(), ""))
	assert.Zero(t, provider.enrollStarts)

	require.NoError(t, m.SubmitCode(context.Background(), "123456"))
	assert.Equal(t, ChallengeResolved, m.State())
	assert.Equal(t, 1, provider.resolveCalls)
	assert.Equal(t, "captcha-token", provider.lastCaptcha)
	require.NotNil(t, store.Current())
	assert.Equal(t, "fresh", store.Current().AccessToken)
}

func TestChallengeBeginResolutionOnlyFromIdle(t *testing.T) {
	provider := &fakeProvider{}
	store := signedInStore(t, provider, true)
	m := NewChallengeManager(store, provider, &fakeBinder{}, zap.NewNop())

	require.NoError(t, m.BindWidget("anchor"))
	err := m.BeginResolution(&StepUpRequiredError{ChallengeID: "c1"})
	assert.ErrorIs(t, err, ErrBadTransition)
}

func TestChallengeCancelResetsFlow(t *testing.T) {
	provider := &fakeProvider{}
	store := signedInStore(t, provider, true)
	binder := &fakeBinder{}
	m := NewChallengeManager(store, provider, binder, zap.NewNop())

	require.NoError(t, m.BindWidget("anchor"))
	require.NoError(t, m.SendCode(context.Background(), "+15551234567"))

	m.Cancel()
	assert.Equal(t, ChallengeIdle, m.State())
	assert.Equal(t, 1, binder.teardowns)

	// Cancelling a terminal state is a no-op.
	require.NoError(t, m.BindWidget("anchor"))
	require.NoError(t, m.SendCode(context.Background(), "+15551234567"))
	require.NoError(t, m.SubmitCode(context.Background(), "123456"))
	m.Cancel()
	assert.Equal(t, ChallengeResolved, m.State())
}
