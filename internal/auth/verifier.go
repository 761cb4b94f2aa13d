package auth

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Verifier checks API tokens against a single configured bcrypt hash.
// It serves both the HTTP API and the gRPC service. The hash can be rotated
// at runtime with SetHash.
type Verifier struct {
	hash   atomic.Pointer[[]byte]
	cache  *AuthCache
	logger *zap.Logger
}

// NewVerifier creates a Verifier. ttl defaults to 30s.
func NewVerifier(hash string, ttl time.Duration, logger *zap.Logger) (*Verifier, error) {
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	v := &Verifier{cache: NewAuthCache(ttl), logger: logger}
	if err := v.SetHash(hash); err != nil {
		return nil, fmt.Errorf("NewVerifier: %w", err)
	}
	return v, nil
}

// SetHash replaces the configured hash. Tokens already cached stay accepted
// until their entry goes stale and fails re-verification.
func (v *Verifier) SetHash(hash string) error {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return fmt.Errorf("SetHash: %w", err)
	}
	b := []byte(hash)
	v.hash.Store(&b)
	return nil
}

// Verify accepts token if it matches the configured hash.
//
// Flow:
//  1. Cache lookup (stale-while-revalidate):
//     - Fresh hit: accept immediately
//     - Stale hit: accept, spawn background re-verification
//  2. Miss: bcrypt comparison synchronously
func (v *Verifier) Verify(token string) error {
	result := v.cache.Get(token)
	if result.Hit {
		if result.NeedsRefresh {
			go v.backgroundRefresh(token)
		}
		return nil
	}

	if err := v.compare(token); err != nil {
		return err
	}
	v.cache.Set(token)
	return nil
}

// VerifyHeader parses an Authorization header value and verifies its token.
func (v *Verifier) VerifyHeader(header string) error {
	token, err := ParseBearer(header)
	if err != nil {
		return err
	}
	return v.Verify(token)
}

// Authenticate implements Authenticator for gRPC metadata.
func (v *Verifier) Authenticate(ctx context.Context) error {
	token, err := tokenFromMetadata(ctx)
	if err != nil {
		return err
	}
	return v.Verify(token)
}

func (v *Verifier) compare(token string) error {
	if err := bcrypt.CompareHashAndPassword(*v.hash.Load(), []byte(token)); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// backgroundRefresh re-verifies a stale entry. On failure the entry is
// dropped so the next request verifies synchronously.
func (v *Verifier) backgroundRefresh(token string) {
	if err := v.compare(token); err != nil {
		v.logger.Warn("background token refresh failed", zap.Error(err))
		v.cache.Delete(token)
		return
	}
	v.cache.Set(token)
}

// HashToken returns the bcrypt hash to configure for token.
func HashToken(token string) (string, error) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return "", fmt.Errorf("HashToken: token must start with %q", TokenPrefix)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("HashToken: %w", err)
	}
	return string(hash), nil
}
