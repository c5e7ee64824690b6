package service

import (
	"context"

	"go.uber.org/zap"
)

// LogMailer writes verification mail to the log instead of an SMTP relay.
// Deployments plug a real Mailer in its place.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer constructs a log-backed mailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// SendVerification logs the verification token for the address.
func (m *LogMailer) SendVerification(ctx context.Context, email, token string) error {
	m.logger.Info("verification email dispatched",
		zap.String("email", email),
		zap.String("token", token))
	return nil
}

// LogSMSSender writes one-time codes to the log instead of an SMS gateway.
type LogSMSSender struct {
	logger *zap.Logger
}

// NewLogSMSSender constructs a log-backed SMS sender.
func NewLogSMSSender(logger *zap.Logger) *LogSMSSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSMSSender{logger: logger}
}

// SendCode logs the code for the phone number.
func (s *LogSMSSender) SendCode(ctx context.Context, phoneNumber, code string) error {
	s.logger.Info("second factor code dispatched",
		zap.String("phone", phoneNumber),
		zap.String("code", code))
	return nil
}
