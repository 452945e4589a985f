package token

import (
	"errors"
	"fmt"
)

// ErrAuthFailure is the kind every verification failure wraps.
var ErrAuthFailure = errors.New("auth failure")

// Sentinel errors for token issue and verification.
var (
	ErrNoSigningKey   = errors.New("no usable signing key")
	ErrMalformedToken = fmt.Errorf("%w: malformed token", ErrAuthFailure)
	ErrExpired        = fmt.Errorf("%w: token expired", ErrAuthFailure)
	ErrFromFuture     = fmt.Errorf("%w: token issued in the future", ErrAuthFailure)
	ErrBadSignature   = fmt.Errorf("%w: signature mismatch", ErrAuthFailure)
	ErrReplayed       = fmt.Errorf("%w: token replayed", ErrAuthFailure)

	ErrMissingCredential = fmt.Errorf("%w: missing server credential", ErrAuthFailure)
	ErrBadCredential     = fmt.Errorf("%w: invalid server credential", ErrAuthFailure)
)
