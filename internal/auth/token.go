package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/fivetwenty-io/qbclient/internal/constants"
)

// Static errors for err113 compliance.
var (
	ErrEmptyToken = errors.New("user token is empty")
)

// TokenManager produces the Authorization header value for each request.
type TokenManager interface {
	GetToken(ctx context.Context) (string, error)
}

// UserTokenManager serves a Quickbase user token. Tokens are long lived, so
// there is nothing to refresh; SetToken swaps the token at runtime.
type UserTokenManager struct {
	mutex sync.RWMutex
	token string
}

// NewUserTokenManager creates a token manager for token, adding the
// "QB-USER-TOKEN " prefix when it is missing.
func NewUserTokenManager(token string) *UserTokenManager {
	return &UserTokenManager{token: Normalize(token)}
}

// GetToken returns the Authorization header value.
func (m *UserTokenManager) GetToken(ctx context.Context) (string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.token == "" {
		return "", ErrEmptyToken
	}

	return m.token, nil
}

// SetToken replaces the token.
func (m *UserTokenManager) SetToken(token string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.token = Normalize(token)
}

// Normalize trims token and prefixes it with "QB-USER-TOKEN " unless it
// already carries a scheme.
func Normalize(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}

	if strings.HasPrefix(token, constants.UserTokenPrefix) || strings.HasPrefix(token, "QB-TEMP-TOKEN ") {
		return token
	}

	return constants.UserTokenPrefix + token
}

// Mask hides all but the last four characters of a token.
func Mask(token string) string {
	const visible = 4

	token = strings.TrimPrefix(strings.TrimSpace(token), constants.UserTokenPrefix)
	if len(token) <= visible {
		return constants.MaskedSecret
	}

	return constants.MaskedSecret + token[len(token)-visible:]
}
