package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/timetrack/internal/domain"
	"github.com/yourorg/timetrack/internal/security/auth"
	"golang.org/x/crypto/bcrypt"
)

// AuthService handles registration and login.
type AuthService struct {
	users    domain.UserRepository
	tenants  domain.TenantRepository
	tokens   *auth.TokenManager
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	users domain.UserRepository,
	tenants domain.TenantRepository,
	tokens *auth.TokenManager,
	tokenTTL time.Duration,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:    users,
		tenants:  tenants,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// RegisterResult represents registration response
type RegisterResult struct {
	UserID   string      `json:"user_id"`
	TenantID string      `json:"tenant_id"`
	Email    string      `json:"email"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	Token    string      `json:"token"`
}

// LoginResult represents login response
type LoginResult struct {
	UserID    string      `json:"user_id"`
	TenantID  string      `json:"tenant_id"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	Token     string      `json:"token"`
	ExpiresIn int         `json:"expires_in"` // seconds
	TokenType string      `json:"token_type"`
}

// Register creates a new user account inside the named tenant, creating the
// tenant if it does not exist yet. The first user of a fresh tenant becomes
// its tenant_admin; everyone after joins as a member.
func (s *AuthService) Register(ctx context.Context, email, username, password, tenantName string) (*RegisterResult, error) {
	if email == "" || password == "" || username == "" || tenantName == "" {
		return nil, errors.New("email, username, password, and tenant are required")
	}
	if len(password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err == nil && existing != nil {
		return nil, errors.New("email already registered")
	}

	role := domain.RoleMember
	tenant, err := s.tenants.GetByName(ctx, tenantName)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Error("failed to look up tenant", slog.String("error", err.Error()))
			return nil, errors.New("failed to register user")
		}
		tenant = &domain.Tenant{
			ID:       uuid.NewString(),
			Name:     tenantName,
			IsActive: true,
		}
		if err := s.tenants.Create(ctx, tenant); err != nil {
			s.logger.Error("failed to create tenant", slog.String("error", err.Error()))
			return nil, errors.New("failed to register user")
		}
		role = domain.RoleTenantAdmin
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, errors.New("failed to register user")
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		TenantID:     tenant.ID,
		Role:         role,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		s.logger.Error("failed to create user", slog.String("error", err.Error()))
		return nil, errors.New("failed to register user")
	}

	token, err := s.tokens.GenerateToken(user.TenantID, user.ID, user.Email, user.Role, s.tokenTTL)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, errors.New("failed to generate token")
	}

	return &RegisterResult{
		UserID:   user.ID,
		TenantID: user.TenantID,
		Email:    user.Email,
		Username: user.Username,
		Role:     user.Role,
		Token:    token,
	}, nil
}

// Login authenticates a user and returns a JWT token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		s.logger.Info("login attempt with non-existent email", slog.String("email", email))
		return nil, errors.New("invalid credentials")
	}
	if !user.IsActive {
		s.logger.Info("login attempt on inactive account", slog.String("user_id", user.ID))
		return nil, errors.New("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login failed with wrong password", slog.String("email", email))
		return nil, errors.New("invalid credentials")
	}

	token, err := s.tokens.GenerateToken(user.TenantID, user.ID, user.Email, user.Role, s.tokenTTL)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, errors.New("failed to generate token")
	}

	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("tenant_id", user.TenantID),
	)

	return &LoginResult{
		UserID:    user.ID,
		TenantID:  user.TenantID,
		Email:     user.Email,
		Role:      user.Role,
		Token:     token,
		ExpiresIn: int(s.tokenTTL / time.Second),
		TokenType: "Bearer",
	}, nil
}

// ChangePassword changes a user's password after verifying the old one.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return errors.New("new password must be at least 8 characters")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return errors.New("user not found")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return errors.New("current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("failed to hash new password", slog.String("error", err.Error()))
		return errors.New("failed to change password")
	}

	user.PasswordHash = string(hash)
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.Error("failed to update user password", slog.String("error", err.Error()))
		return errors.New("failed to change password")
	}

	s.logger.Info("user changed password", slog.String("user_id", userID))
	return nil
}
