package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/transferscope/portal-api/internal/models"
	appErrors "github.com/transferscope/portal-api/pkg/errors"
)

type adminUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	SetRole(ctx context.Context, id string, role models.UserRole) error
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AdminCheckResult reports the caller's authorization tier.
type AdminCheckResult struct {
	IsAdmin   bool `json:"isAdmin"`
	IsPending bool `json:"isPending"`
}

// AdminService manages the admin claim on portal accounts.
type AdminService struct {
	repo   adminUserRepository
	logger *zap.Logger
}

// NewAdminService constructs an AdminService.
func NewAdminService(repo adminUserRepository, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{repo: repo, logger: logger}
}

// Check returns the authorization tier for the given user.
func (s *AdminService) Check(ctx context.Context, userID string) (*AdminCheckResult, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return &AdminCheckResult{
		IsAdmin:   user.Role == models.RoleAdmin,
		IsPending: user.Role == models.RolePending,
	}, nil
}

// Grant assigns the admin claim to the account with the given email.
// Granting to an account that already holds the claim is a no-op.
func (s *AdminService) Grant(ctx context.Context, actorID, email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "email is required")
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "no account found for "+email)
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if user.Role == models.RoleAdmin {
		return email + " is already an admin", nil
	}

	if err := s.repo.SetRole(ctx, user.ID, models.RoleAdmin); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant admin claim")
	}

	s.audit(ctx, actorID, models.AuditActionClaimGrant, user.ID)
	return "Successfully made " + email + " an admin", nil
}

// Revoke removes the admin claim from the account with the given email.
// Admins cannot revoke their own claim; that would lock the portal.
func (s *AdminService) Revoke(ctx context.Context, actorID, email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "email is required")
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "no account found for "+email)
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if user.ID == actorID {
		return "", appErrors.Clone(appErrors.ErrForbidden, "you cannot remove your own admin privileges")
	}

	if user.Role != models.RoleAdmin {
		return email + " is not an admin", nil
	}

	if err := s.repo.SetRole(ctx, user.ID, models.RolePending); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke admin claim")
	}

	s.audit(ctx, actorID, models.AuditActionClaimRevoke, user.ID)
	return "Successfully removed admin privileges from " + email, nil
}

// ListUsers returns accounts with their claim view, newest first.
func (s *AdminService) ListUsers(ctx context.Context, filter models.UserFilter) ([]models.UserClaims, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 50
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	claims := make([]models.UserClaims, 0, len(users))
	for _, u := range users {
		claims = append(claims, models.UserClaims{
			UID:   u.ID,
			Email: u.Email,
			Claims: map[string]bool{
				"admin":   u.Role == models.RoleAdmin,
				"pending": u.Role == models.RolePending,
			},
		})
	}

	return claims, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	}, nil
}

func (s *AdminService) audit(ctx context.Context, actorID string, action string, targetID string) {
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "claims",
		ResourceID: &targetID,
		NewValues:  []byte(`{"claim":"admin"}`),
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to record claim audit log", zap.Error(err))
	}
}
