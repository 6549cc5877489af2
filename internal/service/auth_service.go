package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

// AuthService handles user registration and user/staff login.
type AuthService struct {
	cfg    config.AuthConfig
	tokens *auth.TokenManager
	users  repository.UserRepository
	staff  repository.StaffRepository
}

// NewAuthService constructs the service.
func NewAuthService(cfg config.AuthConfig, users repository.UserRepository, staff repository.StaffRepository) *AuthService {
	return &AuthService{
		cfg:    cfg,
		tokens: auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		users:  users,
		staff:  staff,
	}
}

// TokenManager exposes the manager for the auth middleware.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}

// Session is the login/registration result.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
	Staff     *domain.StaffMember
}

// RegisterUser creates an end-user account and logs it in.
func (s *AuthService) RegisterUser(ctx context.Context, name, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, apperrors.NewValidationError("email and password required", nil)
	}

	if existing, err := s.users.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, apperrors.NewConflict("email already registered", nil)
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := auth.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Status:       domain.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return s.userSession(user)
}

// LoginUser authenticates an end-user.
func (s *AuthService) LoginUser(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, err
	}
	if user.Status != domain.UserStatusActive {
		return nil, apperrors.NewForbidden("account suspended")
	}
	if auth.ComparePassword(user.PasswordHash, password) != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	return s.userSession(user)
}

// LoginStaff authenticates a staff member.
func (s *AuthService) LoginStaff(ctx context.Context, email, password string) (*Session, error) {
	staff, err := s.staff.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, err
	}
	if !staff.Active {
		return nil, apperrors.NewForbidden("account disabled")
	}
	if auth.ComparePassword(staff.PasswordHash, password) != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := s.tokens.GenerateToken(staff.ID, domain.SubjectTypeStaff, &staff.Role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, Staff: staff}, nil
}

func (s *AuthService) userSession(user *domain.User) (*Session, error) {
	token, expiresAt, err := s.tokens.GenerateToken(user.ID, domain.SubjectTypeUser, nil)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}
