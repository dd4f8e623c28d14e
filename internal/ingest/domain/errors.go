package domain

import (
	"errors"
	"fmt"
)

// ProviderErrorKind classifies remote-provider failures. The coordinator
// reacts differently to each kind: invalid cursors trigger a bootstrap,
// rate limits defer to the next scheduled run, revoked auth disables the
// account's sync, and everything else is a transient retried in place.
type ProviderErrorKind int

const (
	ProviderErrTransient ProviderErrorKind = iota
	ProviderErrInvalidCursor
	ProviderErrRateLimited
	ProviderErrAuthRevoked
)

// ProviderError wraps a remote failure with its classification.
type ProviderError struct {
	Kind ProviderErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	switch e.Kind {
	case ProviderErrInvalidCursor:
		return fmt.Sprintf("invalid or expired cursor: %v", e.Err)
	case ProviderErrRateLimited:
		return fmt.Sprintf("rate limited: %v", e.Err)
	case ProviderErrAuthRevoked:
		return fmt.Sprintf("authorization revoked: %v", e.Err)
	default:
		return fmt.Sprintf("provider error: %v", e.Err)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

func NewProviderError(kind ProviderErrorKind, err error) *ProviderError {
	return &ProviderError{Kind: kind, Err: err}
}

func providerErrorKind(err error) (ProviderErrorKind, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// IsInvalidCursor reports whether err means the stored cursor is no longer
// usable and a bootstrap is required.
func IsInvalidCursor(err error) bool {
	kind, ok := providerErrorKind(err)
	return ok && kind == ProviderErrInvalidCursor
}

// IsRateLimited reports whether err is a provider rate limit.
func IsRateLimited(err error) bool {
	kind, ok := providerErrorKind(err)
	return ok && kind == ProviderErrRateLimited
}

// IsAuthRevoked reports whether err means the user's grant was revoked.
func IsAuthRevoked(err error) bool {
	kind, ok := providerErrorKind(err)
	return ok && kind == ProviderErrAuthRevoked
}
