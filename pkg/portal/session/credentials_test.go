package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	identities     map[string]*Identity
	signInErr      error
	stepUp         *StepUpRequiredError
	signOutErr     error
	sendMailErr    error
	sendMailCalls  int
	refreshed      *Identity
	refreshErr     error
	enrollID       string
	enrollStartErr error
	enrollStarts   int
	confirmErr     error
	confirmCalls   int
	resolveResult  *Identity
	resolveErr     error
	resolveCalls   int
	lastCaptcha    string
}

func (f *fakeProvider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	if f.stepUp != nil {
		return nil, f.stepUp
	}
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	identity, ok := f.identities[email]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return identity, nil
}

func (f *fakeProvider) SignUp(ctx context.Context, email, password string) (*Identity, error) {
	return &Identity{ID: "new", Email: email, EmailVerified: false, AccessToken: "t"}, nil
}

func (f *fakeProvider) SignOut(ctx context.Context, identity *Identity) error {
	return f.signOutErr
}

func (f *fakeProvider) SendVerificationEmail(ctx context.Context, identity *Identity) error {
	f.sendMailCalls++
	return f.sendMailErr
}

func (f *fakeProvider) RefreshIdentity(ctx context.Context, identity *Identity) (*Identity, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	if f.refreshed != nil {
		return f.refreshed, nil
	}
	return identity, nil
}

func (f *fakeProvider) StartEnrollment(ctx context.Context, identity *Identity, phoneNumber, captchaToken string) (string, error) {
	f.enrollStarts++
	f.lastCaptcha = captchaToken
	if f.enrollStartErr != nil {
		return "", f.enrollStartErr
	}
	if f.enrollID == "" {
		return "v1", nil
	}
	return f.enrollID, nil
}

func (f *fakeProvider) ConfirmEnrollment(ctx context.Context, identity *Identity, verificationID, code string) error {
	f.confirmCalls++
	return f.confirmErr
}

func (f *fakeProvider) ResolveChallenge(ctx context.Context, challengeID, code, captchaToken string) (*Identity, error) {
	f.resolveCalls++
	f.lastCaptcha = captchaToken
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.resolveResult, nil
}

type notification struct {
	identity   *Identity
	generation uint64
}

func recordNotifications(store *CredentialStore) *[]notification {
	var got []notification
	store.Subscribe(func(identity *Identity, generation uint64) {
		got = append(got, notification{identity, generation})
	})
	return &got
}

func TestCredentialStoreSubscribeDoesNotNotifyImmediately(t *testing.T) {
	store := NewCredentialStore(&fakeProvider{}, zap.NewNop())
	got := recordNotifications(store)
	assert.Empty(t, *got)

	store.Bootstrap()
	require.Len(t, *got, 1)
	assert.Nil(t, (*got)[0].identity)
}

func TestCredentialStoreSignInNotifiesSynchronously(t *testing.T) {
	provider := &fakeProvider{identities: map[string]*Identity{
		"user@example.com": {ID: "u1", Email: "user@example.com", EmailVerified: true, AccessToken: "at"},
	}}
	store := NewCredentialStore(provider, zap.NewNop())
	got := recordNotifications(store)

	require.NoError(t, store.SignIn(context.Background(), "user@example.com", "pw"))

	require.Len(t, *got, 1)
	assert.Equal(t, "u1", (*got)[0].identity.ID)
	assert.Equal(t, uint64(1), (*got)[0].generation)
	assert.Equal(t, "u1", store.Current().ID)
}

func TestCredentialStoreSignInFailureLeavesStateUntouched(t *testing.T) {
	provider := &fakeProvider{identities: map[string]*Identity{}}
	store := NewCredentialStore(provider, zap.NewNop())
	got := recordNotifications(store)

	err := store.SignIn(context.Background(), "nobody@example.com", "pw")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, *got)
	assert.Nil(t, store.Current())
	assert.Equal(t, uint64(0), store.Generation())
}

func TestCredentialStoreStepUpLeavesAttemptPending(t *testing.T) {
	provider := &fakeProvider{stepUp: &StepUpRequiredError{ChallengeID: "c1", FactorHints: []string{"+***4567"}}}
	store := NewCredentialStore(provider, zap.NewNop())
	got := recordNotifications(store)

	err := store.SignIn(context.Background(), "user@example.com", "pw")
	stepUp, ok := AsStepUpRequired(err)
	require.True(t, ok)
	assert.Equal(t, "c1", stepUp.ChallengeID)
	assert.Empty(t, *got)
	assert.Nil(t, store.Current())
}

func TestCredentialStoreSignOutIdempotent(t *testing.T) {
	provider := &fakeProvider{identities: map[string]*Identity{
		"user@example.com": {ID: "u1", EmailVerified: true},
	}}
	store := NewCredentialStore(provider, zap.NewNop())
	require.NoError(t, store.SignIn(context.Background(), "user@example.com", "pw"))

	got := recordNotifications(store)
	require.NoError(t, store.SignOut(context.Background()))
	require.Len(t, *got, 1)
	assert.Nil(t, (*got)[0].identity)

	// A second sign-out succeeds without another notification.
	require.NoError(t, store.SignOut(context.Background()))
	assert.Len(t, *got, 1)
	assert.Nil(t, store.Current())
}

func TestCredentialStoreSignOutClearsLocallyOnProviderError(t *testing.T) {
	provider := &fakeProvider{
		identities: map[string]*Identity{"user@example.com": {ID: "u1"}},
		signOutErr: errors.New("network down"),
	}
	store := NewCredentialStore(provider, zap.NewNop())
	require.NoError(t, store.SignIn(context.Background(), "user@example.com", "pw"))

	require.NoError(t, store.SignOut(context.Background()))
	assert.Nil(t, store.Current())
}

func TestCredentialStoreVerificationEmailOncePerSession(t *testing.T) {
	provider := &fakeProvider{identities: map[string]*Identity{
		"user@example.com": {ID: "u1", Email: "user@example.com", EmailVerified: false},
	}}
	store := NewCredentialStore(provider, zap.NewNop())

	assert.ErrorIs(t, store.SendVerificationEmail(context.Background()), ErrNoIdentity)

	require.NoError(t, store.SignIn(context.Background(), "user@example.com", "pw"))
	require.NoError(t, store.SendVerificationEmail(context.Background()))
	assert.Equal(t, 1, provider.sendMailCalls)

	assert.ErrorIs(t, store.SendVerificationEmail(context.Background()), ErrAlreadySent)
	assert.Equal(t, 1, provider.sendMailCalls)
}

func TestCredentialStoreSendVerificationAlreadyVerified(t *testing.T) {
	provider := &fakeProvider{identities: map[string]*Identity{
		"user@example.com": {ID: "u1", EmailVerified: true},
	}}
	store := NewCredentialStore(provider, zap.NewNop())
	require.NoError(t, store.SignIn(context.Background(), "user@example.com", "pw"))

	assert.ErrorIs(t, store.SendVerificationEmail(context.Background()), ErrAlreadyVerified)
	assert.Zero(t, provider.sendMailCalls)
}

func TestCredentialStoreRefreshVerificationStatus(t *testing.T) {
	provider := &fakeProvider{identities: map[string]*Identity{
		"user@example.com": {ID: "u1", Email: "user@example.com", EmailVerified: false},
	}}
	store := NewCredentialStore(provider, zap.NewNop())
	require.NoError(t, store.SignIn(context.Background(), "user@example.com", "pw"))

	// Still unverified: the refreshed identity is adopted, and the caller
	// learns nothing changed.
	err := store.RefreshVerificationStatus(context.Background())
	assert.ErrorIs(t, err, ErrNotVerified)

	provider.refreshed = &Identity{ID: "u1", Email: "user@example.com", EmailVerified: true}
	got := recordNotifications(store)
	require.NoError(t, store.RefreshVerificationStatus(context.Background()))
	require.Len(t, *got, 1)
	assert.True(t, (*got)[0].identity.EmailVerified)
	assert.True(t, store.Current().EmailVerified)
}

func TestCredentialStoreGenerationIncreasesMonotonically(t *testing.T) {
	provider := &fakeProvider{identities: map[string]*Identity{
		"user@example.com": {ID: "u1", EmailVerified: true},
	}}
	store := NewCredentialStore(provider, zap.NewNop())
	got := recordNotifications(store)

	require.NoError(t, store.SignIn(context.Background(), "user@example.com", "pw"))
	require.NoError(t, store.SignOut(context.Background()))
	require.NoError(t, store.SignIn(context.Background(), "user@example.com", "pw"))

	require.Len(t, *got, 3)
	assert.Equal(t, uint64(1), (*got)[0].generation)
	assert.Equal(t, uint64(2), (*got)[1].generation)
	assert.Equal(t, uint64(3), (*got)[2].generation)
}

func TestCredentialStoreUnsubscribe(t *testing.T) {
	store := NewCredentialStore(&fakeProvider{identities: map[string]*Identity{"u@e.com": {ID: "u1"}}}, zap.NewNop())
	calls := 0
	unsubscribe := store.Subscribe(func(*Identity, uint64) { calls++ })

	store.AdoptIdentity(&Identity{ID: "u1"})
	assert.Equal(t, 1, calls)

	unsubscribe()
	store.AdoptIdentity(nil)
	assert.Equal(t, 1, calls)
}
