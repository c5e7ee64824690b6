package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/transferscope/portal-api/internal/models"
	appErrors "github.com/transferscope/portal-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail      *models.User
	userByID         *models.User
	findByEmailErr   error
	findByIDErr      error
	created          *models.User
	refreshTokens    map[string]*models.RefreshToken
	auditLogs        []*models.AuditLog
	lastLoginUpdated bool
	emailVerifiedID  string
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.userByEmail == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	if m.userByID != nil {
		return m.userByID, nil
	}
	if m.userByEmail != nil {
		return m.userByEmail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	m.created = user
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) SetEmailVerified(ctx context.Context, id string) error {
	m.emailVerifiedID = id
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type mockChallengeStore struct {
	challenges         map[string]*models.SecondFactorChallenge
	verificationTokens map[string]string
	captchaTokens      map[string]bool
}

func newMockChallengeStore() *mockChallengeStore {
	return &mockChallengeStore{
		challenges:         make(map[string]*models.SecondFactorChallenge),
		verificationTokens: make(map[string]string),
		captchaTokens:      make(map[string]bool),
	}
}

func (m *mockChallengeStore) SaveChallenge(ctx context.Context, challenge *models.SecondFactorChallenge, ttl time.Duration) error {
	m.challenges[challenge.ID] = challenge
	return nil
}

func (m *mockChallengeStore) GetChallenge(ctx context.Context, id string) (*models.SecondFactorChallenge, bool, error) {
	c, ok := m.challenges[id]
	return c, ok, nil
}

func (m *mockChallengeStore) DeleteChallenge(ctx context.Context, id string) error {
	delete(m.challenges, id)
	return nil
}

func (m *mockChallengeStore) SaveVerificationToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	m.verificationTokens[token] = userID
	return nil
}

func (m *mockChallengeStore) ConsumeVerificationToken(ctx context.Context, token string) (string, bool, error) {
	userID, ok := m.verificationTokens[token]
	if ok {
		delete(m.verificationTokens, token)
	}
	return userID, ok, nil
}

func (m *mockChallengeStore) SaveCaptchaToken(ctx context.Context, token string, ttl time.Duration) error {
	m.captchaTokens[token] = true
	return nil
}

func (m *mockChallengeStore) ConsumeCaptchaToken(ctx context.Context, token string) (bool, error) {
	ok := m.captchaTokens[token]
	delete(m.captchaTokens, token)
	return ok, nil
}

type mockMailer struct {
	sentTo    []string
	lastToken string
	err       error
}

func (m *mockMailer) SendVerification(ctx context.Context, email, token string) error {
	if m.err != nil {
		return m.err
	}
	m.sentTo = append(m.sentTo, email)
	m.lastToken = token
	return nil
}

type mockSMS struct {
	sentTo   []string
	lastCode string
	err      error
}

func (m *mockSMS) SendCode(ctx context.Context, phoneNumber, code string) error {
	if m.err != nil {
		return m.err
	}
	m.sentTo = append(m.sentTo, phoneNumber)
	m.lastCode = code
	return nil
}

func newTestAuthService(repo *mockAuthRepo, store *mockChallengeStore, mailer *mockMailer, sms *mockSMS) *AuthService {
	return NewAuthService(repo, store, mailer, sms, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		ChallengeTTL:       5 * time.Minute,
	})
}

func TestAuthServiceSignup(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := newTestAuthService(repo, newMockChallengeStore(), &mockMailer{}, &mockSMS{})

	info, err := svc.Signup(context.Background(), models.SignupRequest{Email: "new@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, models.RolePending, info.Role)
	assert.False(t, info.EmailVerified)
	require.NotNil(t, repo.created)
	assert.NotEqual(t, "password123", repo.created.PasswordHash)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionSignup, repo.auditLogs[0].Action)
}

func TestAuthServiceSignupConflict(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "taken@example.com"}}
	svc := newTestAuthService(repo, newMockChallengeStore(), &mockMailer{}, &mockSMS{})

	_, err := svc.Signup(context.Background(), models.SignupRequest{Email: "taken@example.com", Password: "password123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(password), Active: true, Role: models.RoleAdmin}}
	svc := newTestAuthService(repo, newMockChallengeStore(), &mockMailer{}, &mockSMS{})

	res, challenge, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)
	require.Nil(t, challenge)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.True(t, repo.lastLoginUpdated)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(password), Active: true}}
	svc := newTestAuthService(repo, newMockChallengeStore(), &mockMailer{}, &mockSMS{})

	_, _, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginStepUpChallenge(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	phone := "+15551234567"
	repo := &mockAuthRepo{userByEmail: &models.User{
		ID: "u1", Email: "user@example.com", PasswordHash: string(password),
		Active: true, EmailVerified: true, PhoneFactor: &phone,
	}}
	store := newMockChallengeStore()
	sms := &mockSMS{}
	svc := newTestAuthService(repo, store, &mockMailer{}, sms)

	res, challenge, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)
	assert.Nil(t, res)
	require.NotNil(t, challenge)
	assert.NotEmpty(t, challenge.ChallengeID)
	require.Len(t, challenge.FactorHints, 1)
	assert.Contains(t, challenge.FactorHints[0], "4567")
	assert.NotContains(t, challenge.FactorHints[0], "123456")

	// The code went to the phone, not to the client.
	assert.Equal(t, []string{phone}, sms.sentTo)
	stored, ok := store.challenges[challenge.ChallengeID]
	require.True(t, ok)
	assert.Equal(t, sms.lastCode, stored.Code)
}

func TestAuthServiceRefreshTokenRotates(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: make(map[string]*models.RefreshToken)}
	user := &models.User{ID: "u1", Email: "user@example.com", PasswordHash: "hash", Active: true, Role: models.RoleAdmin}
	repo.userByID = user
	repo.refreshTokens["token"] = &models.RefreshToken{ID: "rt1", UserID: user.ID, Token: "token", ExpiresAt: time.Now().Add(time.Hour)}
	svc := newTestAuthService(repo, newMockChallengeStore(), &mockMailer{}, &mockSMS{})

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "token", res.RefreshToken)
	assert.True(t, repo.refreshTokens["token"].Revoked)
}

func TestAuthServiceLogoutIdempotent(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: map[string]*models.RefreshToken{
		"token": {ID: "rt1", UserID: "u1", Token: "token", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	svc := newTestAuthService(repo, newMockChallengeStore(), &mockMailer{}, &mockSMS{})

	require.NoError(t, svc.Logout(context.Background(), "token", "u1", "", ""))
	assert.True(t, repo.refreshTokens["token"].Revoked)

	// A second logout against the same (now revoked) token still succeeds.
	require.NoError(t, svc.Logout(context.Background(), "missing", "u1", "", ""))
}

func TestAuthServiceSendVerificationEmail(t *testing.T) {
	repo := &mockAuthRepo{userByID: &models.User{ID: "u1", Email: "user@example.com", Active: true}}
	store := newMockChallengeStore()
	mailer := &mockMailer{}
	svc := newTestAuthService(repo, store, mailer, &mockSMS{})

	require.NoError(t, svc.SendVerificationEmail(context.Background(), "u1"))
	assert.Equal(t, []string{"user@example.com"}, mailer.sentTo)
	assert.Equal(t, "u1", store.verificationTokens[mailer.lastToken])
}

func TestAuthServiceSendVerificationAlreadyVerified(t *testing.T) {
	repo := &mockAuthRepo{userByID: &models.User{ID: "u1", Email: "user@example.com", EmailVerified: true}}
	svc := newTestAuthService(repo, newMockChallengeStore(), &mockMailer{}, &mockSMS{})

	err := svc.SendVerificationEmail(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyVerified.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceConfirmVerification(t *testing.T) {
	repo := &mockAuthRepo{userByID: &models.User{ID: "u1", Email: "user@example.com"}}
	store := newMockChallengeStore()
	store.verificationTokens["tok"] = "u1"
	svc := newTestAuthService(repo, store, &mockMailer{}, &mockSMS{})

	require.NoError(t, svc.ConfirmVerification(context.Background(), models.ConfirmVerificationRequest{Token: "tok"}))
	assert.Equal(t, "u1", repo.emailVerifiedID)

	// Tokens are single-use.
	err := svc.ConfirmVerification(context.Background(), models.ConfirmVerificationRequest{Token: "tok"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCodeExpired.Code, appErrors.FromError(err).Code)
}

func TestValidateToken(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := newTestAuthService(repo, newMockChallengeStore(), &mockMailer{}, &mockSMS{})
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleAdmin, EmailVerified: true}

	token, _, err := svc.generateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.True(t, claims.Admin)
	assert.True(t, claims.EmailVerified)
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+*******4567", maskPhone("+15551234567"))
	assert.Equal(t, "123", maskPhone("123"))
}
