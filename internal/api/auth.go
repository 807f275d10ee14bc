package api

import (
	"context"
	"net/http"

	"github.com/florianilch/taplinks-cli/internal/model"
)

// AuthService signs vendors in and exchanges refresh tokens. It must be
// backed by the unauthenticated client.
type AuthService struct {
	client Doer
}

// NewAuthService creates an AuthService sending through client.
func NewAuthService(client Doer) *AuthService {
	return &AuthService{client: client}
}

// Login exchanges phone number and password for a session.
func (s *AuthService) Login(ctx context.Context, phoneNumber, password string) (model.AuthTokenOutput, error) {
	return call[model.AuthTokenOutput](ctx, func(ctx context.Context) (*http.Response, error) {
		return s.client.Do(ctx, http.MethodPost, "auth/login", nil, model.LoginInput{
			PhoneNumber: phoneNumber,
			Password:    password,
		})
	})
}

// RefreshToken exchanges a refresh token for a new session.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (model.AuthTokenOutput, error) {
	return call[model.AuthTokenOutput](ctx, func(ctx context.Context) (*http.Response, error) {
		return s.client.Do(ctx, http.MethodPost, "auth/refresh-token", nil, model.RefreshTokenInput{
			RefreshToken: refreshToken,
		})
	})
}

// Logout ends the session on the server side. The API has no logout
// endpoint, so there is nothing to send; local state is cleared by the caller.
func (s *AuthService) Logout(ctx context.Context) error {
	return ctx.Err()
}
