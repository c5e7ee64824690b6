package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Tier is the application-level permission level derived from the remote
// authorization check, distinct from authentication.
type Tier int

const (
	TierUnauthenticated Tier = iota
	TierPendingApproval
	TierAdmin
	TierRejectedOrUnknown
)

func (t Tier) String() string {
	switch t {
	case TierUnauthenticated:
		return "Unauthenticated"
	case TierPendingApproval:
		return "PendingApproval"
	case TierAdmin:
		return "Admin"
	case TierRejectedOrUnknown:
		return "RejectedOrUnknown"
	}
	return "Unknown"
}

// AuthorizationClient calls the remote authorization check endpoint. The
// response schema is versioned; older deployments return isAdmin only, so
// implementations parse defensively and treat missing fields as false.
type AuthorizationClient interface {
	Check(ctx context.Context, accessToken string) (isAdmin, isPending bool, err error)
}

// Resolver maps an identity to its authorization tier.
type Resolver struct {
	client  AuthorizationClient
	timeout time.Duration
	logger  *zap.Logger
}

// NewResolver constructs a resolver. A non-positive timeout defaults to 5s.
func NewResolver(client AuthorizationClient, timeout time.Duration, logger *zap.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{client: client, timeout: timeout, logger: logger}
}

// Resolve determines the tier for an identity. A nil identity is
// Unauthenticated; an unverified email short-circuits to RejectedOrUnknown
// without touching the network. Any transport failure or timeout also
// degrades to RejectedOrUnknown; Resolve never returns an error so tier
// resolution can never block the application from becoming interactive.
func (r *Resolver) Resolve(ctx context.Context, identity *Identity) Tier {
	if identity == nil {
		return TierUnauthenticated
	}
	if !identity.EmailVerified {
		return TierRejectedOrUnknown
	}

	checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	isAdmin, isPending, err := r.client.Check(checkCtx, identity.AccessToken)
	if err != nil {
		r.logger.Warn("authorization check failed", zap.Error(err))
		return TierRejectedOrUnknown
	}
	switch {
	case isAdmin:
		return TierAdmin
	case isPending:
		return TierPendingApproval
	default:
		return TierRejectedOrUnknown
	}
}
