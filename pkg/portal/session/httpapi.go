package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIClient implements IdentityProvider and AuthorizationClient against
// the portal backend's JSON envelope API.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient constructs a client for the given base URL, such as
// "https://portal.example.com/api".
func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta map[string]interface{} `json:"meta"`
}

type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		PhoneEnrolled bool   `json:"phone_enrolled"`
	} `json:"user"`
}

// SignIn authenticates with email and password. A STEP_UP_REQUIRED reply
// is translated into *StepUpRequiredError with the challenge handle.
func (c *APIClient) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	env, status, err := c.post(ctx, "/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	if err != nil {
		return nil, err
	}

	if code, _ := env.Meta["code"].(string); code == "STEP_UP_REQUIRED" {
		var challenge struct {
			ChallengeID string   `json:"challenge_id"`
			FactorHints []string `json:"factor_hints"`
		}
		if err := json.Unmarshal(env.Data, &challenge); err != nil {
			return nil, fmt.Errorf("decode step-up challenge: %w", err)
		}
		return nil, &StepUpRequiredError{ChallengeID: challenge.ChallengeID, FactorHints: challenge.FactorHints}
	}
	if err := c.asError(env, status); err != nil {
		return nil, err
	}
	return decodeTokenIdentity(env.Data)
}

// SignUp registers a new account and signs it in.
func (c *APIClient) SignUp(ctx context.Context, email, password string) (*Identity, error) {
	env, status, err := c.post(ctx, "/auth/signup", "", map[string]string{
		"email": email, "password": password,
	})
	if err != nil {
		return nil, err
	}
	if err := c.asError(env, status); err != nil {
		return nil, err
	}

	// Signup returns a profile, not tokens; sign in to obtain a session.
	return c.SignIn(ctx, email, password)
}

// SignOut revokes the identity's refresh token.
func (c *APIClient) SignOut(ctx context.Context, identity *Identity) error {
	env, status, err := c.post(ctx, "/auth/logout", identity.AccessToken, map[string]string{
		"refresh_token": identity.RefreshToken,
	})
	if err != nil {
		return err
	}
	return c.asError(env, status)
}

// SendVerificationEmail asks the backend to dispatch a verification mail.
func (c *APIClient) SendVerificationEmail(ctx context.Context, identity *Identity) error {
	env, status, err := c.post(ctx, "/auth/verification/send", identity.AccessToken, nil)
	if err != nil {
		return err
	}
	return c.asError(env, status)
}

// RefreshIdentity re-fetches identity attributes.
func (c *APIClient) RefreshIdentity(ctx context.Context, identity *Identity) (*Identity, error) {
	env, status, err := c.get(ctx, "/auth/me", identity.AccessToken)
	if err != nil {
		return nil, err
	}
	if err := c.asError(env, status); err != nil {
		return nil, err
	}

	var profile struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.Unmarshal(env.Data, &profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	refreshed := *identity
	refreshed.ID = profile.ID
	refreshed.Email = profile.Email
	refreshed.EmailVerified = profile.EmailVerified
	return &refreshed, nil
}

// StartEnrollment begins phone factor enrollment.
func (c *APIClient) StartEnrollment(ctx context.Context, identity *Identity, phoneNumber, captchaToken string) (string, error) {
	env, status, err := c.post(ctx, "/auth/mfa/enroll/start", identity.AccessToken, map[string]string{
		"phone_number": phoneNumber, "captcha_token": captchaToken,
	})
	if err != nil {
		return "", err
	}
	if err := c.asError(env, status); err != nil {
		return "", err
	}

	var res struct {
		VerificationID string `json:"verification_id"`
	}
	if err := json.Unmarshal(env.Data, &res); err != nil {
		return "", fmt.Errorf("decode enrollment handle: %w", err)
	}
	return res.VerificationID, nil
}

// ConfirmEnrollment finishes enrollment with the dispatched code.
func (c *APIClient) ConfirmEnrollment(ctx context.Context, identity *Identity, verificationID, code string) error {
	env, status, err := c.post(ctx, "/auth/mfa/enroll/confirm", identity.AccessToken, map[string]string{
		"verification_id": verificationID, "code": code,
	})
	if err != nil {
		return err
	}
	return c.asError(env, status)
}

// ResolveChallenge answers a step-up challenge and returns the signed-in
// identity.
func (c *APIClient) ResolveChallenge(ctx context.Context, challengeID, code, captchaToken string) (*Identity, error) {
	env, status, err := c.post(ctx, "/auth/mfa/resolve", "", map[string]string{
		"challenge_id": challengeID, "code": code, "captcha_token": captchaToken,
	})
	if err != nil {
		return nil, err
	}
	if err := c.asError(env, status); err != nil {
		return nil, err
	}
	return decodeTokenIdentity(env.Data)
}

// Check calls the authorization endpoint. Missing fields parse as false.
func (c *APIClient) Check(ctx context.Context, accessToken string) (bool, bool, error) {
	env, status, err := c.get(ctx, "/admin/check", accessToken)
	if err != nil {
		return false, false, err
	}
	if err := c.asError(env, status); err != nil {
		return false, false, err
	}

	var res struct {
		IsAdmin   bool `json:"isAdmin"`
		IsPending bool `json:"isPending"`
	}
	if err := json.Unmarshal(env.Data, &res); err != nil {
		return false, false, fmt.Errorf("decode authorization check: %w", err)
	}
	return res.IsAdmin, res.IsPending, nil
}

func (c *APIClient) post(ctx context.Context, path, accessToken string, body interface{}) (*envelope, int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(payload)
	}
	return c.do(ctx, http.MethodPost, path, accessToken, reader)
}

func (c *APIClient) get(ctx context.Context, path, accessToken string) (*envelope, int, error) {
	return c.do(ctx, http.MethodGet, path, accessToken, nil)
}

func (c *APIClient) do(ctx context.Context, method, path, accessToken string, body io.Reader) (*envelope, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	env := &envelope{}
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(env); err != nil && err != io.EOF {
			return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return env, resp.StatusCode, nil
}

// asError translates the backend's error codes into the session taxonomy.
func (c *APIClient) asError(env *envelope, status int) error {
	if status >= 200 && status < 300 {
		return nil
	}
	code := ""
	message := ""
	if env.Error != nil {
		code = env.Error.Code
		message = env.Error.Message
	}
	switch code {
	case "INVALID_CREDENTIALS":
		return ErrInvalidCredentials
	case "ALREADY_VERIFIED":
		return ErrAlreadyVerified
	case "EMAIL_NOT_VERIFIED":
		return ErrEmailNotVerified
	case "INVALID_CODE":
		return ErrInvalidCode
	case "CODE_EXPIRED":
		return ErrCodeExpired
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return fmt.Errorf("portal api: %s (%d)", message, status)
}

func decodeTokenIdentity(data json.RawMessage) (*Identity, error) {
	var payload tokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode token payload: %w", err)
	}
	identity := &Identity{
		ID:            payload.User.ID,
		Email:         payload.User.Email,
		EmailVerified: payload.User.EmailVerified,
		AccessToken:   payload.AccessToken,
		RefreshToken:  payload.RefreshToken,
	}
	return identity, nil
}
