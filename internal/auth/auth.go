// Package auth defines how the session decides whether supplied credentials
// admit a client.
package auth

import (
	"context"
	"crypto/subtle"
)

// Validator checks one username/password pair.
type Validator interface {
	Validate(ctx context.Context, username, password string) (bool, error)
}

// StaticValidator accepts any username with one fixed password.
type StaticValidator struct {
	Secret string
}

// NewStaticValidator returns a validator for the given secret.
func NewStaticValidator(secret string) *StaticValidator {
	return &StaticValidator{Secret: secret}
}

// Validate reports whether password exactly equals the secret. The
// comparison is constant time and case sensitive; an empty secret admits no one.
func (v *StaticValidator) Validate(_ context.Context, _ string, password string) (bool, error) {
	if v.Secret == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(v.Secret)) == 1, nil
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, username, password string) (bool, error)

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, username, password string) (bool, error) {
	return f(ctx, username, password)
}
