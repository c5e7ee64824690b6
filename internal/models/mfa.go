package models

import "time"

// ChallengeMode distinguishes enrolling a new phone factor from answering a
// step-up challenge raised mid-login.
type ChallengeMode string

const (
	ChallengeModeEnroll  ChallengeMode = "ENROLL"
	ChallengeModeResolve ChallengeMode = "RESOLVE"
)

// SecondFactorChallenge is an in-progress phone verification held in Redis.
// It is consumed exactly once: a wrong code keeps it alive (up to the
// attempt cap), expiry deletes it.
type SecondFactorChallenge struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	Mode        ChallengeMode `json:"mode"`
	PhoneNumber string        `json:"phone_number"`
	Code        string        `json:"code"`
	Attempts    int           `json:"attempts"`
	FactorHints []string      `json:"factor_hints"`
	CodeExpires time.Time     `json:"code_expires"`
	CreatedAt   time.Time     `json:"created_at"`
	IP          string        `json:"ip"`
	UserAgent   string        `json:"user_agent"`
}

// CodeExpired reports whether the dispatched code is past its window.
func (c *SecondFactorChallenge) CodeExpired(now time.Time) bool {
	return now.After(c.CodeExpires)
}

// EnrollStartRequest begins phone factor enrollment for the current user.
type EnrollStartRequest struct {
	PhoneNumber  string `json:"phone_number" validate:"required,e164"`
	CaptchaToken string `json:"captcha_token"`
}

// EnrollStartResponse carries the opaque verification handle.
type EnrollStartResponse struct {
	VerificationID string `json:"verification_id"`
	ExpiresIn      int64  `json:"expires_in"`
}

// EnrollConfirmRequest submits the 6-digit code for enrollment.
type EnrollConfirmRequest struct {
	VerificationID string `json:"verification_id" validate:"required"`
	Code           string `json:"code" validate:"required,len=6,numeric"`
}

// ResolveRequest answers a step-up challenge raised during sign-in.
type ResolveRequest struct {
	ChallengeID  string `json:"challenge_id" validate:"required"`
	Code         string `json:"code" validate:"required,len=6,numeric"`
	CaptchaToken string `json:"captcha_token"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}
