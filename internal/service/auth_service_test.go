package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/credentia/certify-api/internal/models"
	appErrors "github.com/credentia/certify-api/pkg/errors"
)

type mockAuthStore struct {
	userByEmail      *models.User
	findByEmailErr   error
	lastLoginUpdated bool
}

func (m *mockAuthStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.userByEmail == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.userByEmail != nil && m.userByEmail.ID == id {
		return m.userByEmail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthStore) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func authTestConfig() AuthConfig {
	return AuthConfig{TokenSecret: "test-secret", TokenExpiry: time.Hour, Issuer: "certify-api"}
}

func activeUser(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           "user-1",
		Email:        "pat@credentia.io",
		PasswordHash: string(hash),
		FullName:     "Pat Reviewer",
		Role:         models.RoleReviewer,
		Active:       true,
	}
}

func TestLoginIssuesValidToken(t *testing.T) {
	store := &mockAuthStore{userByEmail: activeUser(t, "password123")}
	svc := NewAuthService(store, nil, nil, authTestConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "pat@credentia.io", Password: "password123"})
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.Equal(t, models.RoleReviewer, res.User.Role)
	require.True(t, store.lastLoginUpdated)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, models.RoleReviewer, claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	store := &mockAuthStore{userByEmail: activeUser(t, "password123")}
	svc := NewAuthService(store, nil, nil, authTestConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "pat@credentia.io", Password: "nope"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginUnknownEmailIndistinguishable(t *testing.T) {
	store := &mockAuthStore{}
	svc := NewAuthService(store, nil, nil, authTestConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@credentia.io", Password: "whatever"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	user := activeUser(t, "password123")
	user.Active = false
	store := &mockAuthStore{userByEmail: user}
	svc := NewAuthService(store, nil, nil, authTestConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "pat@credentia.io", Password: "password123"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	store := &mockAuthStore{userByEmail: activeUser(t, "password123")}
	svc := NewAuthService(store, nil, nil, authTestConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "pat@credentia.io", Password: "password123"})
	require.NoError(t, err)

	other := NewAuthService(store, nil, nil, AuthConfig{TokenSecret: "other-secret", TokenExpiry: time.Hour})
	_, err = other.ValidateToken(res.AccessToken)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
