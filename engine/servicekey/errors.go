package servicekey

import (
	"errors"
	"fmt"
	"strings"
)

var ErrKeyNotFound = errors.New("service key not found")

// FailureKind classifies why authentication was refused.
type FailureKind string

const (
	FailureMissingKey        FailureKind = "missing_key"
	FailureInvalidKey        FailureKind = "invalid_key"
	FailureExpiredKey        FailureKind = "expired_key"
	FailureInactiveKey       FailureKind = "inactive_key"
	FailureInsufficientScope FailureKind = "insufficient_scope"
	FailureInternal          FailureKind = "internal_error"
)

// AuthError is the typed failure returned by Authenticator.
type AuthError struct {
	Kind    FailureKind
	Missing []Scope
	Err     error
}

func (e *AuthError) Error() string {
	switch {
	case e.Kind == FailureInsufficientScope:
		names := make([]string, len(e.Missing))
		for i, s := range e.Missing {
			names[i] = string(s)
		}
		return fmt.Sprintf("%s: missing %s", e.Kind, strings.Join(names, ", "))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func authFailure(kind FailureKind) *AuthError {
	return &AuthError{Kind: kind}
}

// KindOf extracts the failure kind, reporting internal_error for foreign errors.
func KindOf(err error) FailureKind {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return FailureInternal
}
