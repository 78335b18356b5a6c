package adaptor

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying every failure a handler can surface. Handlers
// recover all of these locally and convert them into exactly one observable
// outcome; the transport layer maps them to status codes.
var (
	// ErrValidation marks a missing or malformed required field.
	ErrValidation = errors.New("validation error")
	// ErrTranslation marks a legacy payload missing a required mapped
	// field. No transaction is created.
	ErrTranslation = errors.New("translation error")
	// ErrStateViolation marks an illegal state transition attempt, a
	// programming or ordering fault.
	ErrStateViolation = errors.New("state violation")
	// ErrDomain marks a business rejection: condition mismatch, unknown
	// correlation id, expired quote or transfer.
	ErrDomain = errors.New("domain error")
	// ErrInfrastructure marks a store or network failure caught at the
	// handler boundary.
	ErrInfrastructure = errors.New("infrastructure error")
)

// WrapValidation annotates an error as a validation failure.
func WrapValidation(err error) error {
	if err == nil {
		return ErrValidation
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// WrapTranslation annotates an error as a translation failure.
func WrapTranslation(err error) error {
	if err == nil {
		return ErrTranslation
	}
	return fmt.Errorf("%w: %v", ErrTranslation, err)
}

// WrapStateViolation annotates an error as an illegal transition.
func WrapStateViolation(err error) error {
	if err == nil {
		return ErrStateViolation
	}
	return fmt.Errorf("%w: %v", ErrStateViolation, err)
}

// WrapDomain annotates an error as a business rejection.
func WrapDomain(err error) error {
	if err == nil {
		return ErrDomain
	}
	return fmt.Errorf("%w: %v", ErrDomain, err)
}

// WrapInfrastructure annotates an error as a store or network failure.
func WrapInfrastructure(err error) error {
	if err == nil {
		return ErrInfrastructure
	}
	return fmt.Errorf("%w: %v", ErrInfrastructure, err)
}
