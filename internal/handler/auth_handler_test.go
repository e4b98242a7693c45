package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/service"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

type authServiceMock struct {
	login      *models.LoginResponse
	loginErr   error
	lastLogin  models.LoginRequest
	logoutUser string
	logoutTok  string
}

func (m *authServiceMock) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.lastLogin = req
	return m.login, m.loginErr
}

func (m *authServiceMock) RefreshToken(context.Context, models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return &models.RefreshTokenResponse{}, nil
}

func (m *authServiceMock) Logout(_ context.Context, token, userID string, _ models.LoginRequest) error {
	m.logoutTok, m.logoutUser = token, userID
	return nil
}

func (m *authServiceMock) Me(_ context.Context, userID string) (*models.UserInfo, error) {
	return &models.UserInfo{ID: userID}, nil
}

type registrarMock struct {
	err error
}

func (m registrarMock) RegisterStudent(_ context.Context, req service.RegisterStudentRequest) (*service.Registration, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &service.Registration{User: &models.User{ID: "user-1", Email: req.Email}}, nil
}

func TestAuthHandlerLogin(t *testing.T) {
	svc := &authServiceMock{login: &models.LoginResponse{AccessToken: "token"}}
	h := NewAuthHandler(svc, registrarMock{})

	c, w := newGinContext(http.MethodPost, "/auth/login", mustJSON(t, map[string]string{"email": "a@example.edu", "password": "secret123"}))
	c.Request.Header.Set("User-Agent", "test-agent")
	h.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test-agent", svc.lastLogin.UserAgent)
	assert.Contains(t, w.Body.String(), `"access_token":"token"`)
}

func TestAuthHandlerLoginErrors(t *testing.T) {
	h := NewAuthHandler(&authServiceMock{loginErr: appErrors.ErrInvalidCredentials}, registrarMock{})

	c, w := newGinContext(http.MethodPost, "/auth/login", []byte(`{"email":`))
	h.Login(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodPost, "/auth/login", mustJSON(t, map[string]string{"email": "a@example.edu", "password": "nope"}))
	h.Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decode(t, w).Error.Code)
}

func TestAuthHandlerRegister(t *testing.T) {
	h := NewAuthHandler(&authServiceMock{}, registrarMock{})
	c, w := newGinContext(http.MethodPost, "/auth/register", mustJSON(t, map[string]interface{}{"email": "new@example.edu"}))
	h.Register(c)
	assert.Equal(t, http.StatusCreated, w.Code)

	h = NewAuthHandler(&authServiceMock{}, registrarMock{err: appErrors.Clone(appErrors.ErrConflict, "email already registered")})
	c, w = newGinContext(http.MethodPost, "/auth/register", mustJSON(t, map[string]interface{}{"email": "new@example.edu"}))
	h.Register(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAuthHandlerLogoutAndMe(t *testing.T) {
	svc := &authServiceMock{}
	h := NewAuthHandler(svc, registrarMock{})

	c, w := newGinContext(http.MethodPost, "/auth/logout", mustJSON(t, map[string]string{"refresh_token": "rt"}))
	h.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodPost, "/auth/logout", mustJSON(t, map[string]string{"refresh_token": "rt"}))
	asUser(c, "user-1", models.RoleStudent)
	h.Logout(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "user-1", svc.logoutUser)
	assert.Equal(t, "rt", svc.logoutTok)

	c, w = newGinContext(http.MethodGet, "/auth/me", nil)
	asUser(c, "user-1", models.RoleStudent)
	h.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"user-1"`)
}
