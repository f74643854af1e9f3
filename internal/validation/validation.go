package validation

import (
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEmailRequired is returned when an email is missing
	ErrEmailRequired = errors.New("email is required")

	// ErrEmailTooLong is returned when an email exceeds the RFC length cap
	ErrEmailTooLong = errors.New("email is too long")

	// ErrEmailInvalid is returned when an email fails to parse
	ErrEmailInvalid = errors.New("invalid email address")

	// ErrPasswordTooShort is returned when a password is under 8 characters
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")

	// ErrPasswordTooLong is returned when a password exceeds the bcrypt limit
	ErrPasswordTooLong = errors.New("password must be at most 72 characters")

	// ErrDisplayNameRequired is returned when a display name is missing
	ErrDisplayNameRequired = errors.New("display name is required")

	// ErrDisplayNameTooLong is returned when a display name is too long
	ErrDisplayNameTooLong = errors.New("display name must be at most 100 characters")
)

// NormalizeEmail trims and validates an email address (RFC 5322 simplified).
// Returns the trimmed address; comparison elsewhere is case-insensitive.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrEmailRequired
	}
	if len(email) > 320 {
		return "", ErrEmailTooLong
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrEmailInvalid
	}
	return email, nil
}

// ValidatePassword enforces the portal password policy.
// bcrypt truncates input beyond 72 bytes, so longer passwords are rejected.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	if len(password) > 72 {
		return ErrPasswordTooLong
	}
	return nil
}

// ValidateDisplayName enforces a non-empty display name of at most 100 runes
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrDisplayNameRequired
	}
	if utf8.RuneCountInString(name) > 100 {
		return ErrDisplayNameTooLong
	}
	return nil
}
