package app

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCredential is returned when an API key fails the format check.
// It is always returned before any network call.
var ErrInvalidCredential = errors.New("invalid credential")

// ValidateCredential checks the key's shape only. length <= 0 accepts any
// non-empty key.
func ValidateCredential(key string, length int) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: missing api key", ErrInvalidCredential)
	}
	if strings.ContainsAny(key, " \t\r\n") {
		return fmt.Errorf("%w: api key contains whitespace", ErrInvalidCredential)
	}
	if length > 0 && len(key) != length {
		return fmt.Errorf("%w: api key must be %d characters", ErrInvalidCredential, length)
	}
	return nil
}
