// Package validators contains validators found throughout the application
// that have been abstracted away from the main code
package validators

import (
	"errors"
	"net/mail"
	"strings"
)

var (
	ErrEmailEmpty   = errors.New("no email address provided")
	ErrEmailInvalid = errors.New("invalid email address provided")
	ErrEmailTooLong = errors.New("email address is too long")
)

// NormalizeEmail lowercases and trims an address so lookups don't depend on casing
func NormalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

func EmailValidator(e string) error {
	if e == "" {
		return ErrEmailEmpty
	}

	if len(e) > 254 {
		return ErrEmailTooLong
	}

	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return ErrEmailInvalid
	}

	return nil
}
