// Package token issues and verifies the short-lived signed tokens that bind a
// client message to one player and one moment.
package token

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/pkg/logger"
	"github.com/okian/sentinel/pkg/metrics"
)

const (
	defaultValidityWindow = 60 * time.Second
	defaultFutureSkew     = 10 * time.Second
	defaultReplayBuffer   = 5 * time.Second
	keyInfo               = "sentinel-token"
	serverKeyInfo         = "sentinel-server"
	serverAudience        = "sentinel-server"
	serverSubject         = "game-server"
	keySize               = 32
)

// placeholderSecrets are values shipped in sample configs. A deployment that
// still carries one has no secret at all.
var placeholderSecrets = map[string]struct{}{ //nolint:gochecknoglobals // fixed lookup table
	"changeme":                             {},
	"change-me":                            {},
	"secret":                               {},
	"default":                              {},
	"placeholder":                          {},
	"your-secret-key":                      {},
	"your-secret-key-change-in-production": {},
}

// Service issues and verifies tokens. Safe for concurrent use.
type Service struct {
	key          []byte
	serverKey    []byte
	validity     time.Duration
	futureSkew   time.Duration
	replayBuffer time.Duration
	cache        ReplayCache
	now          func() time.Time
	logger       logger.Logger
}

// New derives the signing key from secret. It fails closed with
// ErrNoSigningKey when the secret is empty or a known placeholder.
func New(secret string, opts ...Option) (*Service, error) {
	s := &Service{
		validity:     defaultValidityWindow,
		futureSkew:   defaultFutureSkew,
		replayBuffer: defaultReplayBuffer,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NewInMemoryReplayCache()
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("token")
	}

	key, err := deriveKey(secret, keyInfo)
	if err != nil {
		return nil, err
	}
	serverKey, err := deriveKey(secret, serverKeyInfo)
	if err != nil {
		return nil, err
	}
	s.key, s.serverKey = key, serverKey
	return s, nil
}

func deriveKey(secret, info string) ([]byte, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: secret is empty", ErrNoSigningKey)
	}
	if _, bad := placeholderSecrets[strings.ToLower(trimmed)]; bad {
		return nil, fmt.Errorf("%w: secret is a placeholder value", ErrNoSigningKey)
	}
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSigningKey, err)
	}
	return key, nil
}

// Issue signs a fresh token for playerID stamped with the current time.
func (s *Service) Issue(playerID int) (model.Token, error) {
	if len(s.key) == 0 {
		return model.Token{}, ErrNoSigningKey
	}
	iat := s.now().Unix()
	claims := jwt.RegisteredClaims{
		Subject:  strconv.Itoa(playerID),
		IssuedAt: jwt.NewNumericDate(time.Unix(iat, 0)),
		ID:       uuid.NewString(),
	}
	sig, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return model.Token{}, fmt.Errorf("sign token: %w", err)
	}
	metrics.RecordTokenIssued()
	return model.Token{IssuedAt: iat, Signature: sig}, nil
}

// Verify reports whether tok is a fresh, authentic, unused token for playerID.
// A successful call consumes the token.
func (s *Service) Verify(ctx context.Context, playerID int, tok model.Token) bool {
	return s.Check(ctx, playerID, tok) == nil
}

// Check is Verify with the rejection reason. Every error wraps ErrAuthFailure.
func (s *Service) Check(ctx context.Context, playerID int, tok model.Token) error {
	err := s.check(ctx, playerID, tok)
	if err != nil {
		metrics.RecordTokenRejected(rejectReason(err))
		s.logger.Debug(ctx, "token rejected", logger.PlayerID(playerID), logger.Error(err))
		return err
	}
	metrics.RecordTokenVerified()
	metrics.UpdateReplayCacheSize(s.cache.Size())
	return nil
}

func (s *Service) check(ctx context.Context, playerID int, tok model.Token) error {
	if tok.IsZero() {
		return ErrMalformedToken
	}

	now := s.now()
	age := now.Unix() - tok.IssuedAt
	if age > int64(s.validity/time.Second) {
		return ErrExpired
	}
	if -age > int64(s.futureSkew/time.Second) {
		return ErrFromFuture
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tok.Signature, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	if claims.Subject != strconv.Itoa(playerID) || claims.IssuedAt == nil || claims.IssuedAt.Unix() != tok.IssuedAt {
		return ErrBadSignature
	}

	expires := time.Unix(tok.IssuedAt, 0).Add(s.validity + s.replayBuffer)
	if s.cache.SeenAndRecord(ctx, tok.Signature, expires) {
		return ErrReplayed
	}
	return nil
}

// PurgeExpired drops consumed signatures that can no longer be replayed.
func (s *Service) PurgeExpired(ctx context.Context) int {
	removed := s.cache.PurgeExpired(s.now())
	size := s.cache.Size()
	metrics.UpdateReplayCacheSize(size)
	if removed > 0 {
		s.logger.Debug(ctx, "purged replay cache", logger.Int("removed", removed), logger.Int("remaining", size))
	}
	return removed
}

// CacheSize returns the number of consumed signatures held.
func (s *Service) CacheSize() int {
	return s.cache.Size()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrFromFuture):
		return "future"
	case errors.Is(err, ErrReplayed):
		return "replayed"
	default:
		return "signature"
	}
}
