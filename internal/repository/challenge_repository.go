package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/transferscope/portal-api/internal/models"
)

const (
	challengeKeyPrefix    = "mfa:challenge:"
	captchaKeyPrefix      = "mfa:captcha:"
	verificationKeyPrefix = "verify:email:"
)

// ChallengeRepository holds transient auth state in Redis: second-factor
// challenges, captcha proofs and email verification tokens. TTLs are the
// expiry mechanism; an absent key means the state expired or was consumed.
type ChallengeRepository struct {
	client *redis.Client
}

// NewChallengeRepository constructs a challenge repository.
func NewChallengeRepository(client *redis.Client) *ChallengeRepository {
	return &ChallengeRepository{client: client}
}

// SaveChallenge stores a challenge under its ID with the provided TTL.
func (r *ChallengeRepository) SaveChallenge(ctx context.Context, challenge *models.SecondFactorChallenge, ttl time.Duration) error {
	payload, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}
	if err := r.client.Set(ctx, challengeKeyPrefix+challenge.ID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("save challenge: %w", err)
	}
	return nil
}

// GetChallenge loads a challenge; found is false when it expired or never existed.
func (r *ChallengeRepository) GetChallenge(ctx context.Context, id string) (*models.SecondFactorChallenge, bool, error) {
	raw, err := r.client.Get(ctx, challengeKeyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get challenge: %w", err)
	}
	var challenge models.SecondFactorChallenge
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return nil, false, fmt.Errorf("unmarshal challenge: %w", err)
	}
	return &challenge, true, nil
}

// DeleteChallenge removes a challenge (consume or cancel).
func (r *ChallengeRepository) DeleteChallenge(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, challengeKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return nil
}

// SaveCaptchaToken records a solved captcha proof for single use.
func (r *ChallengeRepository) SaveCaptchaToken(ctx context.Context, token string, ttl time.Duration) error {
	if err := r.client.Set(ctx, captchaKeyPrefix+token, "1", ttl).Err(); err != nil {
		return fmt.Errorf("save captcha token: %w", err)
	}
	return nil
}

// ConsumeCaptchaToken atomically checks and deletes the proof.
func (r *ChallengeRepository) ConsumeCaptchaToken(ctx context.Context, token string) (bool, error) {
	deleted, err := r.client.Del(ctx, captchaKeyPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("consume captcha token: %w", err)
	}
	return deleted > 0, nil
}

// SaveVerificationToken maps an email verification token to a user ID.
func (r *ChallengeRepository) SaveVerificationToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, verificationKeyPrefix+token, userID, ttl).Err(); err != nil {
		return fmt.Errorf("save verification token: %w", err)
	}
	return nil
}

// ConsumeVerificationToken resolves and deletes a verification token.
func (r *ChallengeRepository) ConsumeVerificationToken(ctx context.Context, token string) (string, bool, error) {
	userID, err := r.client.GetDel(ctx, verificationKeyPrefix+token).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, fmt.Errorf("consume verification token: %w", err)
	}
	return userID, true, nil
}
