package tokensource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/florianilch/taplinks-cli/internal/session"
)

// errEmptyExchange is returned when the server answers a refresh without an access token.
var errEmptyExchange = errors.New("refresh response carried no access token")

// exchange trades the stored refresh token for a new pair and persists it.
// Concurrent callers holding the same refresh token share one request. The
// shared request outlives any single caller's cancellation and is bounded by
// the exchange timeout; each caller stops waiting when its own ctx ends.
func (s *Source) exchange(ctx context.Context, stored session.TokenModel) (*oauth2.Token, error) {
	results := s.refreshes.DoChan(stored.RefreshToken, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.exchangeTimeout)
		defer cancel()

		out, err := s.exchanger.RefreshToken(flightCtx, stored.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("exchanging refresh token: %w", err)
		}
		if out.AccessToken == "" {
			return nil, errEmptyExchange
		}

		// Servers that do not rotate refresh tokens answer without one
		refreshToken := out.RefreshToken
		if refreshToken == "" {
			refreshToken = stored.RefreshToken
		}

		if err := s.provider.Save(flightCtx, out.AccessToken, refreshToken, out.User); err != nil {
			// The new access token still serves this request, but the next
			// process start will present the consumed refresh token
			slog.ErrorContext(flightCtx, "failed to persist refreshed session", "error", err)
		}

		return toOAuth2(session.TokenModel{
			AccessToken:  out.AccessToken,
			RefreshToken: refreshToken,
		}), nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			slog.WarnContext(ctx, "token refresh failed", "error", res.Err)
			return nil, res.Err
		}
		slog.DebugContext(ctx, "token refreshed", "shared", res.Shared)
		return res.Val.(*oauth2.Token), nil
	}
}
