package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/licensegate/internal/domain"
	"github.com/yourorg/licensegate/internal/observability/metrics"
	"github.com/yourorg/licensegate/internal/security"
	"github.com/yourorg/licensegate/internal/security/audit"
	"github.com/yourorg/licensegate/internal/security/auth"
)

// SessionStore records terminated sessions so tokens die at logout, not
// just at expiry.
type SessionStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// AuthService handles signup, login, logout, and privilege assignment
type AuthService struct {
	userRepo   domain.UserRepository
	tenantRepo domain.TenantRepository
	tokens     *auth.TokenManager
	sessions   SessionStore
	policy     *security.Policy
	// defaultTenant is the tenant every signup joins. Role and tenant are
	// never caller-supplied at signup time.
	defaultTenant string
	audit         *audit.Logger
	logger        *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	userRepo domain.UserRepository,
	tenantRepo domain.TenantRepository,
	tokens *auth.TokenManager,
	sessions SessionStore,
	policy *security.Policy,
	defaultTenant string,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		userRepo:      userRepo,
		tenantRepo:    tenantRepo,
		tokens:        tokens,
		sessions:      sessions,
		policy:        policy,
		defaultTenant: defaultTenant,
		audit:         audit.NewLogger(logger),
		logger:        logger,
	}
}

// SignupResult represents a created user
type SignupResult struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	TenantID string `json:"tenant_id"`
}

// LoginResult represents a login response
type LoginResult struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	Role      string    `json:"role"`
}

// Signup creates a new minimal-privilege user in the default tenant.
// Username uniqueness is case-insensitive (enforced by the storage index) so
// lookalike usernames cannot shadow each other.
func (s *AuthService) Signup(ctx context.Context, username, password string) (*SignupResult, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password are required: %w", domain.ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters: %w", domain.ErrInvalidInput)
	}

	tenant, err := s.tenantRepo.GetByName(ctx, s.defaultTenant)
	if err != nil {
		s.logger.Error("default tenant missing", slog.String("error", err.Error()))
		return nil, fmt.Errorf("signup unavailable: %w", domain.ErrInternal)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to create user: %w", domain.ErrInternal)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		TenantID:     tenant.ID,
		IsActive:     true,
	}

	// No existence pre-check: the unique index decides, so concurrent
	// signups of the same name cannot both win.
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.ObserveSignup("conflict")
			s.audit.LogSignup(ctx, tenant.ID, "", "conflict")
			return nil, fmt.Errorf("username already taken: %w", domain.ErrConflict)
		}
		metrics.ObserveSignup("error")
		return nil, err
	}

	metrics.ObserveSignup("success")
	s.audit.LogSignup(ctx, user.TenantID, user.ID, "success")
	s.logger.Info("user signed up",
		slog.String("user_id", user.ID),
		slog.String("tenant_id", user.TenantID),
	)

	return &SignupResult{
		UserID:   user.ID,
		Username: user.Username,
		TenantID: user.TenantID,
	}, nil
}

// Login authenticates a user and issues a session token. Unknown username
// and wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password are required: %w", domain.ErrInvalidInput)
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		// Equalize timing between unknown-user and wrong-password paths.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		metrics.ObserveLogin("failure")
		s.audit.LogLogin(ctx, "", "", "failure")
		s.logger.Info("login attempt for unknown username")
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthenticated)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		metrics.ObserveLogin("failure")
		s.audit.LogLogin(ctx, user.TenantID, user.ID, "failure")
		s.logger.Info("login failed with wrong password", slog.String("user_id", user.ID))
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthenticated)
	}

	token, claims, err := s.tokens.GenerateToken(user)
	if err != nil {
		s.logger.Error("failed to generate token", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to establish session: %w", domain.ErrInternal)
	}

	metrics.ObserveLogin("success")
	s.audit.LogLogin(ctx, user.TenantID, user.ID, "success")
	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("tenant_id", user.TenantID),
	)

	return &LoginResult{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    user.ID,
		TenantID:  user.TenantID,
		Role:      string(user.Role),
	}, nil
}

// Logout terminates the session carried by claims. The token fails
// validation immediately afterwards, not just at expiry.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return fmt.Errorf("no session: %w", domain.ErrUnauthenticated)
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.sessions.Revoke(ctx, claims.ID, ttl); err != nil {
		s.logger.Error("failed to revoke session", slog.String("error", err.Error()))
		return fmt.Errorf("failed to terminate session: %w", domain.ErrInternal)
	}
	s.logger.Info("session terminated", slog.String("user_id", claims.UserID))
	return nil
}

// Assign changes a user's role and tenant. Escalation is never self-service:
// only a super_admin passes the policy gate.
func (s *AuthService) Assign(ctx context.Context, principal *security.Principal, username string, role domain.Role, tenantID string) (*domain.User, error) {
	if err := s.policy.Authorize(principal, security.ActionAssignUser, ""); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", role, domain.ErrInvalidInput)
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if _, err := s.tenantRepo.GetByID(ctx, tenantID); err != nil {
		return nil, err
	}

	user.Role = role
	user.TenantID = tenantID
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user assignment changed",
		slog.String("user_id", user.ID),
		slog.String("role", string(role)),
		slog.String("tenant_id", tenantID),
		slog.String("assigned_by", principal.UserID),
	)
	return user, nil
}

// dummyHash keeps the unknown-user path doing a real bcrypt comparison.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("licensegate-timing-pad"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}()
