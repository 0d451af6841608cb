package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fresadolab/cnc-training-api/internal/models"
	appErrors "github.com/fresadolab/cnc-training-api/pkg/errors"
)

type authRepoStub struct {
	byEmail map[string]*models.User
	byID    map[string]*models.User
	created []*models.User
	err     error
}

func (s *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if user, ok := s.byEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if user, ok := s.byID[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) Create(ctx context.Context, user *models.User) error {
	user.ID = "generated"
	s.created = append(s.created, user)
	return nil
}

func newAuthService(repo *authRepoStub) *AuthService {
	return NewAuthService(repo, nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "cnc-training-api",
	})
}

func TestAuthServiceRegisterDefaultsToStudent(t *testing.T) {
	repo := &authRepoStub{}
	svc := newAuthService(repo)

	info, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:       "new@example.com",
		Password:    "secret123",
		DisplayName: "New Student",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, info.Role)
	require.Len(t, repo.created, 1)
	assert.NotEqual(t, "secret123", repo.created[0].PasswordHash)
}

func TestAuthServiceRegisterDuplicateEmail(t *testing.T) {
	repo := &authRepoStub{byEmail: map[string]*models.User{
		"taken@example.com": {ID: "u1", Email: "taken@example.com"},
	}}
	svc := newAuthService(repo)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:       "taken@example.com",
		Password:    "secret123",
		DisplayName: "Dup",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.DefaultCost)
	require.NoError(t, err)
	repo := &authRepoStub{byEmail: map[string]*models.User{
		"user@example.com": {ID: "u1", Email: "user@example.com", PasswordHash: string(hash), Role: models.RoleTeacher},
	}}
	svc := newAuthService(repo)

	result, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.Equal(t, models.RoleTeacher, result.User.Role)
	assert.Greater(t, result.ExpiresIn, int64(0))
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.DefaultCost)
	require.NoError(t, err)
	repo := &authRepoStub{byEmail: map[string]*models.User{
		"user@example.com": {ID: "u1", Email: "user@example.com", PasswordHash: string(hash)},
	}}
	svc := newAuthService(repo)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc := newAuthService(&authRepoStub{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.com", Password: "whatever"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRoundTrip(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.DefaultCost)
	require.NoError(t, err)
	repo := &authRepoStub{byEmail: map[string]*models.User{
		"user@example.com": {ID: "u1", Email: "user@example.com", PasswordHash: string(hash), Role: models.RoleAdmin},
	}}
	svc := newAuthService(repo)

	result, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "secret123"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthServiceValidateTokenGarbage(t *testing.T) {
	svc := newAuthService(&authRepoStub{})

	_, err := svc.ValidateToken("not.a.token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceCurrentUserStaleToken(t *testing.T) {
	svc := newAuthService(&authRepoStub{})

	_, err := svc.CurrentUser(context.Background(), &models.JWTClaims{UserID: "deleted"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
