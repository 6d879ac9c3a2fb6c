package service

import (
	"context"
	"testing"
	"time"

	"github.com/yourorg/timetrack/internal/domain"
	"github.com/yourorg/timetrack/internal/security/auth"
)

type memUserRepo struct {
	byID    map[string]*domain.User
	byEmail map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: map[string]*domain.User{}, byEmail: map[string]*domain.User{}}
}

func (m *memUserRepo) Create(_ context.Context, u *domain.User) error {
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u
	return nil
}
func (m *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}
func (m *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if u, ok := m.byEmail[email]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}
func (m *memUserRepo) Update(_ context.Context, u *domain.User) error {
	u.UpdatedAt = time.Now()
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u
	return nil
}
func (m *memUserRepo) ListByTenant(_ context.Context, tenantID string) ([]*domain.User, error) {
	out := []*domain.User{}
	for _, u := range m.byID {
		if u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	return out, nil
}

type memTenantRepo struct {
	byID   map[string]*domain.Tenant
	byName map[string]*domain.Tenant
}

func newMemTenantRepo() *memTenantRepo {
	return &memTenantRepo{byID: map[string]*domain.Tenant{}, byName: map[string]*domain.Tenant{}}
}

func (m *memTenantRepo) Create(_ context.Context, t *domain.Tenant) error {
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	m.byID[t.ID] = t
	m.byName[t.Name] = t
	return nil
}
func (m *memTenantRepo) GetByID(_ context.Context, id string) (*domain.Tenant, error) {
	if t, ok := m.byID[id]; ok {
		return t, nil
	}
	return nil, domain.ErrNotFound
}
func (m *memTenantRepo) GetByName(_ context.Context, name string) (*domain.Tenant, error) {
	if t, ok := m.byName[name]; ok {
		return t, nil
	}
	return nil, domain.ErrNotFound
}

func newTestAuthService() (*AuthService, *memUserRepo, *memTenantRepo) {
	users := newMemUserRepo()
	tenants := newMemTenantRepo()
	tm := auth.NewTokenManager("test-secret", "timetrack")
	return NewAuthService(users, tenants, tm, 15*time.Minute, nil), users, tenants
}

func TestRegisterCreatesTenantAndFirstAdmin(t *testing.T) {
	svc, _, tenants := newTestAuthService()
	ctx := context.Background()

	result, err := svc.Register(ctx, "alice@example.com", "alice", "password123", "acme")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if result.Role != domain.RoleTenantAdmin {
		t.Errorf("first user role = %s, want %s", result.Role, domain.RoleTenantAdmin)
	}
	if result.Token == "" {
		t.Error("expected a token")
	}
	if _, err := tenants.GetByName(ctx, "acme"); err != nil {
		t.Errorf("tenant was not created: %v", err)
	}

	// Second user of the same tenant joins as a member.
	second, err := svc.Register(ctx, "bob@example.com", "bob", "password123", "acme")
	if err != nil {
		t.Fatalf("second Register failed: %v", err)
	}
	if second.Role != domain.RoleMember {
		t.Errorf("second user role = %s, want %s", second.Role, domain.RoleMember)
	}
	if second.TenantID != result.TenantID {
		t.Error("second user landed in a different tenant")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestAuthService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "", "alice", "password123", "acme"); err == nil {
		t.Error("expected error for missing email")
	}
	if _, err := svc.Register(ctx, "alice@example.com", "alice", "short", "acme"); err == nil {
		t.Error("expected error for short password")
	}

	if _, err := svc.Register(ctx, "alice@example.com", "alice", "password123", "acme"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := svc.Register(ctx, "alice@example.com", "alice2", "password123", "acme"); err == nil {
		t.Error("expected error for duplicate email")
	}
}

func TestLoginVerifiesPasswordAndIssuesToken(t *testing.T) {
	svc, _, _ := newTestAuthService()
	ctx := context.Background()

	reg, err := svc.Register(ctx, "alice@example.com", "alice", "password123", "acme")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	result, err := svc.Login(ctx, "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.UserID != reg.UserID {
		t.Error("login returned a different user")
	}
	if result.TokenType != "Bearer" || result.ExpiresIn != 900 {
		t.Errorf("unexpected token envelope: %q / %d", result.TokenType, result.ExpiresIn)
	}

	tm := auth.NewTokenManager("test-secret", "timetrack")
	claims, err := tm.ValidateToken(result.Token)
	if err != nil {
		t.Fatalf("issued token did not validate: %v", err)
	}
	if claims.TenantID != reg.TenantID || claims.Role != domain.RoleTenantAdmin {
		t.Errorf("claims mismatch: tenant=%s role=%s", claims.TenantID, claims.Role)
	}

	if _, err := svc.Login(ctx, "alice@example.com", "wrong-password"); err == nil {
		t.Error("expected error for wrong password")
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "password123"); err == nil {
		t.Error("expected error for unknown email")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	svc, users, _ := newTestAuthService()
	ctx := context.Background()

	reg, err := svc.Register(ctx, "alice@example.com", "alice", "password123", "acme")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	u, _ := users.GetByID(ctx, reg.UserID)
	u.IsActive = false

	if _, err := svc.Login(ctx, "alice@example.com", "password123"); err == nil {
		t.Error("expected error for inactive account")
	}
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newTestAuthService()
	ctx := context.Background()

	reg, err := svc.Register(ctx, "alice@example.com", "alice", "password123", "acme")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := svc.ChangePassword(ctx, reg.UserID, "wrong", "newpassword123"); err == nil {
		t.Error("expected error for wrong current password")
	}
	if err := svc.ChangePassword(ctx, reg.UserID, "password123", "short"); err == nil {
		t.Error("expected error for short new password")
	}
	if err := svc.ChangePassword(ctx, reg.UserID, "password123", "newpassword123"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, err := svc.Login(ctx, "alice@example.com", "newpassword123"); err != nil {
		t.Errorf("login with new password failed: %v", err)
	}
	if _, err := svc.Login(ctx, "alice@example.com", "password123"); err == nil {
		t.Error("old password still accepted")
	}
}
