package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiendapos/backend/internal/apperr"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	if _, exists := s.users[user.Username]; exists {
		return store.ErrConflict
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func plainAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func newTestAuth(users UserStore) *AuthManager {
	return NewAuthManager(AuthOptions{
		Secret:     "test-secret-key-0123456789abcdef",
		TokenTTL:   time.Hour,
		ManagerPIN: "482913",
		UserStore:  users,
	})
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := plainAdminStore()
	manager := newTestAuth(users)

	_, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	stored, err := users.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotEqual(t, "admin123", stored[0].Password)
	assert.True(t, strings.HasPrefix(stored[0].Password, "$2"))
	assert.Positive(t, users.updates)
}

func TestLoginIssuesTokenForRole(t *testing.T) {
	manager := newTestAuth(plainAdminStore())

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: " Admin ", Password: "admin123"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, resp.Role)

	actor, err := manager.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{Username: "admin", Role: domain.RoleAdmin}, actor)

	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "nope"})
	var authErr *apperr.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.False(t, authErr.Forbidden)
}

func TestParseTokenRejectsForeignAndExpiredTokens(t *testing.T) {
	manager := newTestAuth(nil)
	other := NewAuthManager(AuthOptions{Secret: "another-secret-key-0123456789abc"})

	foreign, err := other.sign("admin", domain.RoleAdmin, false, time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = manager.ParseToken(foreign)
	assert.Error(t, err)

	expired, err := manager.sign("admin", domain.RoleAdmin, false, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = manager.ParseToken(expired)
	assert.Error(t, err)
}

func TestCreateCashierStoresPasswordHash(t *testing.T) {
	users := plainAdminStore()
	manager := newTestAuth(users)

	cashier, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: "Caja-Nueva", Password: "pass1234"})
	require.NoError(t, err)
	assert.Equal(t, "caja-nueva", cashier.Username)
	assert.Equal(t, domain.RoleCashier, cashier.Role)

	stored := users.users["caja-nueva"]
	assert.True(t, strings.HasPrefix(stored.Password, "$2"))

	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "caja-nueva", Password: "pass1234"})
	require.NoError(t, err)

	_, err = manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: "caja-nueva", Password: "pass1234"})
	assert.ErrorIs(t, err, store.ErrConflict)

	var validation *apperr.ValidationError
	_, err = manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: "abc", Password: "pass1234"})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "username", validation.Field)

	cashiers := manager.ListCashiers(context.Background())
	require.Len(t, cashiers, 1)
	assert.Equal(t, "caja-nueva", cashiers[0].Username)
}

func TestManagerPINIsHashedAndStillValidates(t *testing.T) {
	manager := newTestAuth(&userStoreStub{users: map[string]domain.UserAccount{}})

	assert.NotEqual(t, "482913", manager.managerPIN)
	assert.True(t, manager.ValidateManagerPIN("482913"))
	assert.False(t, manager.ValidateManagerPIN("111111"))

	disabled := NewAuthManager(AuthOptions{Secret: "test-secret-key-0123456789abcdef"})
	assert.False(t, disabled.ValidateManagerPIN(""))
}

func TestElevateIssuesShortLivedAdminToken(t *testing.T) {
	manager := NewAuthManager(AuthOptions{
		Secret:      "test-secret-key-0123456789abcdef",
		ManagerPIN:  "482913",
		ElevatedTTL: 5 * time.Minute,
	})
	cashier := domain.Actor{Username: "cashier", Role: domain.RoleCashier}

	_, err := manager.Elevate(cashier, "000000")
	var authErr *apperr.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, authErr.Forbidden)

	resp, err := manager.Elevate(cashier, "482913")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, resp.Role)

	expiresAt, err := time.Parse(time.RFC3339, resp.ExpiresAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expiresAt, time.Minute)

	actor, err := manager.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "cashier", actor.Username)
	assert.Equal(t, domain.RoleAdmin, actor.Role)
}
