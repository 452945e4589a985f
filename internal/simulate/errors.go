package simulate

import "errors"

var (
	ErrInvalidConfig    = errors.New("invalid simulation config")
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrUnhealthy        = errors.New("service unhealthy")
	ErrVerification     = errors.New("verification failed")
)
