package token

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/okian/sentinel/pkg/logger"
	"github.com/okian/sentinel/pkg/metrics"
)

// ServerCredentialHeader carries the game server's bearer credential.
const ServerCredentialHeader = "Authorization"

const bearerPrefix = "Bearer "

// SignServerCredential mints the bearer credential a game server sends on
// server-only routes. It is keyed by the same shared secret as the Service
// but under a separate derived key, so a client token never passes as one.
func SignServerCredential(secret string, now time.Time, ttl time.Duration) (string, error) {
	key, err := deriveKey(secret, serverKeyInfo)
	if err != nil {
		return "", err
	}
	claims := jwt.RegisteredClaims{
		Subject:   serverSubject,
		Audience:  jwt.ClaimStrings{serverAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	sig, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign server credential: %w", err)
	}
	return bearerPrefix + sig, nil
}

// AuthorizeServer checks a bearer credential from a game server. The
// credential must carry an expiry and may be issued at most futureSkew
// ahead of the local clock. Every error wraps ErrAuthFailure.
func (s *Service) AuthorizeServer(ctx context.Context, header string) error {
	err := s.authorizeServer(header)
	if err != nil {
		metrics.RecordTokenRejected("server_credential")
		s.logger.Debug(ctx, "server credential rejected", logger.Error(err))
	}
	return err
}

func (s *Service) authorizeServer(header string) error {
	raw, ok := strings.CutPrefix(strings.TrimSpace(header), bearerPrefix)
	if !ok || raw == "" {
		return ErrMissingCredential
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.serverKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(serverAudience),
		jwt.WithSubject(serverSubject),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.futureSkew),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadCredential, err)
	}
	return nil
}
