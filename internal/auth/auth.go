package auth

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/metadata"
)

// TokenPrefix starts every PhishGuard API token.
const TokenPrefix = "pgk_"

var (
	ErrMissingToken = errors.New("missing authorization header")
	ErrInvalidToken = errors.New("invalid API token")
)

// Authenticator validates incoming gRPC requests.
type Authenticator interface {
	Authenticate(ctx context.Context) error
}

// ParseBearer extracts the token from an "Authorization: Bearer <token>" value.
// The scheme is matched case-insensitively (RFC 6750).
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	const scheme = "bearer "
	if len(header) <= len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(header[len(scheme):])
	if len(token) < 8 || !strings.HasPrefix(token, TokenPrefix) {
		return "", ErrInvalidToken
	}
	return token, nil
}

// tokenFromMetadata extracts the bearer token from incoming gRPC metadata.
func tokenFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ErrMissingToken
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", ErrMissingToken
	}
	return ParseBearer(values[0])
}
