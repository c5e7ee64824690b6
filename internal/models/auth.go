package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignupRequest creates a new, unverified PENDING identity.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	IP       string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// StepUpChallenge is returned instead of tokens when the account has an
// enrolled second factor. The sign-in attempt stays pending until the
// challenge is resolved.
type StepUpChallenge struct {
	ChallengeID string   `json:"challenge_id"`
	FactorHints []string `json:"factor_hints"`
	ExpiresIn   int64    `json:"expires_in"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the refreshed tokens.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// ConfirmVerificationRequest consumes an email verification token.
type ConfirmVerificationRequest struct {
	Token string `json:"token" validate:"required"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	Role          UserRole `json:"role"`
	EmailVerified bool     `json:"email_verified"`
	PhoneEnrolled bool     `json:"phone_enrolled"`
}

// JWTClaims represents the JWT payload for access tokens. The admin and
// email_verified custom claims drive the client-side authorization resolver.
type JWTClaims struct {
	UserID        string   `json:"user_id"`
	Email         string   `json:"email"`
	Role          UserRole `json:"role"`
	EmailVerified bool     `json:"email_verified"`
	Admin         bool     `json:"admin"`
	jwt.RegisteredClaims
}
