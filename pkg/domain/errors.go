package domain

import "errors"

// Common domain errors
var (
	ErrInvalidPolicyValue = errors.New("invalid policy directive value")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrUnknownDelivery    = errors.New("unknown delivery channel")
)
