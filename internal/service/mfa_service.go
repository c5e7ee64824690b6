package service

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/transferscope/portal-api/internal/models"
	appErrors "github.com/transferscope/portal-api/pkg/errors"
)

type mfaUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	SetPhoneFactor(ctx context.Context, id string, phone *string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type mfaChallengeStore interface {
	SaveChallenge(ctx context.Context, challenge *models.SecondFactorChallenge, ttl time.Duration) error
	GetChallenge(ctx context.Context, id string) (*models.SecondFactorChallenge, bool, error)
	DeleteChallenge(ctx context.Context, id string) error
	SaveCaptchaToken(ctx context.Context, token string, ttl time.Duration) error
	ConsumeCaptchaToken(ctx context.Context, token string) (bool, error)
}

// CaptchaVerifier checks a widget token against the captcha provider.
type CaptchaVerifier interface {
	Verify(ctx context.Context, widgetToken string) error
}

type tokenIssuer interface {
	IssueTokens(ctx context.Context, user *models.User, ip, userAgent string) (*models.LoginResponse, error)
}

// MFAConfig bounds phone factor flows.
type MFAConfig struct {
	CodeTTL        time.Duration
	MaxAttempts    int
	CaptchaTTL     time.Duration
	RequireCaptcha bool
}

// MFAService runs phone factor enrollment and step-up challenge resolution.
// Challenges live in Redis with a TTL equal to the code window, so expiry
// and cleanup are the same thing. A wrong code keeps the challenge alive
// until the attempt cap; an expired code tears it down.
type MFAService struct {
	users      mfaUserRepository
	challenges mfaChallengeStore
	captcha    CaptchaVerifier
	sms        SMSSender
	issuer     tokenIssuer
	validator  *validator.Validate
	logger     *zap.Logger
	config     MFAConfig
}

// NewMFAService constructs an MFAService.
func NewMFAService(users mfaUserRepository, challenges mfaChallengeStore, captcha CaptchaVerifier, sms SMSSender, issuer tokenIssuer, validate *validator.Validate, logger *zap.Logger, config MFAConfig) *MFAService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.CodeTTL <= 0 {
		config.CodeTTL = 5 * time.Minute
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.CaptchaTTL <= 0 {
		config.CaptchaTTL = 2 * time.Minute
	}
	return &MFAService{users: users, challenges: challenges, captcha: captcha, sms: sms, issuer: issuer, validator: validate, logger: logger, config: config}
}

// VerifyCaptcha validates a widget token and mints a single-use proof. The
// proof, not the raw widget token, accompanies enroll and resolve calls.
func (s *MFAService) VerifyCaptcha(ctx context.Context, widgetToken string) (string, int64, error) {
	if widgetToken == "" {
		return "", 0, appErrors.Clone(appErrors.ErrCaptchaRequired, "widget token is required")
	}
	if err := s.captcha.Verify(ctx, widgetToken); err != nil {
		return "", 0, appErrors.Clone(appErrors.ErrCaptchaRequired, "captcha verification failed")
	}
	proof := uuid.NewString()
	if err := s.challenges.SaveCaptchaToken(ctx, proof, s.config.CaptchaTTL); err != nil {
		return "", 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store captcha proof")
	}
	return proof, int64(s.config.CaptchaTTL.Seconds()), nil
}

// EnrollStart begins phone enrollment for the current user. Unverified
// accounts are refused before any code is sent.
func (s *MFAService) EnrollStart(ctx context.Context, userID string, req models.EnrollStartRequest) (*models.EnrollStartResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if !user.EmailVerified {
		return nil, appErrors.Clone(appErrors.ErrNotVerified, "verify your email before enrolling a second factor")
	}
	if user.HasSecondFactor() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a phone factor is already enrolled")
	}

	if err := s.consumeCaptcha(ctx, req.CaptchaToken); err != nil {
		return nil, err
	}

	code, err := generateNumericCode(6)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate code")
	}

	now := time.Now().UTC()
	challenge := &models.SecondFactorChallenge{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Mode:        models.ChallengeModeEnroll,
		PhoneNumber: req.PhoneNumber,
		Code:        code,
		CodeExpires: now.Add(s.config.CodeTTL),
		CreatedAt:   now,
	}

	if err := s.challenges.SaveChallenge(ctx, challenge, s.config.CodeTTL); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store challenge")
	}

	if err := s.sms.SendCode(ctx, req.PhoneNumber, code); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to dispatch code")
	}

	return &models.EnrollStartResponse{
		VerificationID: challenge.ID,
		ExpiresIn:      int64(s.config.CodeTTL.Seconds()),
	}, nil
}

// EnrollConfirm finishes enrollment by checking the dispatched code.
func (s *MFAService) EnrollConfirm(ctx context.Context, userID string, req models.EnrollConfirmRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid confirmation payload")
	}

	challenge, err := s.checkCode(ctx, req.VerificationID, req.Code, models.ChallengeModeEnroll)
	if err != nil {
		return err
	}
	if challenge.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "challenge does not belong to user")
	}

	phone := challenge.PhoneNumber
	if err := s.users.SetPhoneFactor(ctx, userID, &phone); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store phone factor")
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionFactorEnroll,
		Resource:   "mfa",
		ResourceID: &userID,
		NewValues:  []byte(`{"factor":"phone"}`),
	}); err != nil {
		s.logger.Warn("failed to record enrollment audit log", zap.Error(err))
	}

	return nil
}

// Unenroll removes the phone factor from the account.
func (s *MFAService) Unenroll(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.HasSecondFactor() {
		return appErrors.Clone(appErrors.ErrNotFound, "no phone factor enrolled")
	}
	if err := s.users.SetPhoneFactor(ctx, userID, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove phone factor")
	}
	return nil
}

// Resolve answers a step-up challenge and completes the pending sign-in.
func (s *MFAService) Resolve(ctx context.Context, req models.ResolveRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolve payload")
	}

	if err := s.consumeCaptcha(ctx, req.CaptchaToken); err != nil {
		return nil, err
	}

	challenge, err := s.checkCode(ctx, req.ChallengeID, req.Code, models.ChallengeModeResolve)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, challenge.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionStepUp,
		Resource:   "mfa",
		ResourceID: &challenge.ID,
		NewValues:  []byte(`{"status":"resolved"}`),
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record resolve audit log", zap.Error(err))
	}

	return s.issuer.IssueTokens(ctx, user, req.IP, req.UserAgent)
}

// checkCode loads a challenge and validates the submitted code. On success
// the challenge is deleted; a wrong code burns an attempt, an expired code
// or the attempt cap tears the challenge down.
func (s *MFAService) checkCode(ctx context.Context, challengeID, code string, mode models.ChallengeMode) (*models.SecondFactorChallenge, error) {
	challenge, found, err := s.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load challenge")
	}
	if !found {
		return nil, appErrors.Clone(appErrors.ErrCodeExpired, "challenge not found or expired")
	}
	if challenge.Mode != mode {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "challenge not found")
	}

	now := time.Now().UTC()
	if challenge.CodeExpired(now) {
		if err := s.challenges.DeleteChallenge(ctx, challenge.ID); err != nil {
			s.logger.Warn("failed to delete expired challenge", zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrCodeExpired, "")
	}

	if subtle.ConstantTimeCompare([]byte(challenge.Code), []byte(code)) != 1 {
		challenge.Attempts++
		if challenge.Attempts >= s.config.MaxAttempts {
			if err := s.challenges.DeleteChallenge(ctx, challenge.ID); err != nil {
				s.logger.Warn("failed to delete exhausted challenge", zap.Error(err))
			}
			return nil, appErrors.Clone(appErrors.ErrTooManyAttempts, "")
		}
		remaining := time.Until(challenge.CodeExpires)
		if err := s.challenges.SaveChallenge(ctx, challenge, remaining); err != nil {
			s.logger.Warn("failed to persist challenge attempt count", zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrInvalidCode, "")
	}

	if err := s.challenges.DeleteChallenge(ctx, challenge.ID); err != nil {
		s.logger.Warn("failed to delete resolved challenge", zap.Error(err))
	}
	return challenge, nil
}

func (s *MFAService) consumeCaptcha(ctx context.Context, proof string) error {
	if !s.config.RequireCaptcha {
		return nil
	}
	if proof == "" {
		return appErrors.Clone(appErrors.ErrCaptchaRequired, "")
	}
	ok, err := s.challenges.ConsumeCaptchaToken(ctx, proof)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume captcha proof")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrCaptchaRequired, "captcha proof missing or expired")
	}
	return nil
}

// StaticCaptchaVerifier accepts any non-empty widget token. It stands in
// for a real provider in development and tests.
type StaticCaptchaVerifier struct{}

// Verify accepts the token when it is non-empty.
func (StaticCaptchaVerifier) Verify(_ context.Context, widgetToken string) error {
	if widgetToken == "" {
		return errors.New("empty widget token")
	}
	return nil
}
