package sandbox

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/florianilch/taplinks-cli/internal/model"
)

var errInvalidRefreshToken = errors.New("invalid refresh token")

// issuer mints HS256 access tokens and single-use refresh tokens.
type issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time

	mu sync.Mutex
	// refresh maps an outstanding refresh token to its user id
	refresh map[string]int
}

func newIssuer(key []byte, ttl time.Duration, now func() time.Time) *issuer {
	return &issuer{
		key:     key,
		ttl:     ttl,
		now:     now,
		refresh: make(map[string]int),
	}
}

// issue creates a new token pair for user.
func (i *issuer) issue(user model.User) (model.AuthTokenOutput, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(user.ID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		ID:        uuid.NewString(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return model.AuthTokenOutput{}, fmt.Errorf("signing access token: %w", err)
	}

	refresh := uuid.NewString()
	i.mu.Lock()
	i.refresh[refresh] = user.ID
	i.mu.Unlock()

	return model.AuthTokenOutput{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user,
	}, nil
}

// redeem consumes a refresh token and returns its user id.
func (i *issuer) redeem(refresh string) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	userID, ok := i.refresh[refresh]
	if !ok {
		return 0, errInvalidRefreshToken
	}
	delete(i.refresh, refresh)
	return userID, nil
}

// verify checks an access token and returns its user id.
func (i *issuer) verify(raw string) (int, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return 0, err
	}

	userID, err := strconv.Atoi(claims.Subject)
	if err != nil {
		return 0, fmt.Errorf("invalid subject: %w", err)
	}
	return userID, nil
}
