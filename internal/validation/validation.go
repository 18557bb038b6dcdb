package validation

import (
	"errors"
	"net/mail"
	"strings"
)

var (
	// ErrEmailRequired is returned when an email is missing
	ErrEmailRequired = errors.New("email is required")

	// ErrEmailTooLong is returned when an email exceeds the RFC length cap
	ErrEmailTooLong = errors.New("email is too long")

	// ErrEmailInvalid is returned when an email fails to parse
	ErrEmailInvalid = errors.New("invalid email address")

	// ErrMessageTooLong is returned when a proposal message exceeds the cap
	ErrMessageTooLong = errors.New("message must be at most 1000 characters")

	// ErrCompanyNameTooLong is returned when a company name exceeds the cap
	ErrCompanyNameTooLong = errors.New("company name must be at most 200 characters")
)

// NormalizeEmail trims, lowercases, and validates an email address.
// Lowercasing keeps invite and account matching case-insensitive at the
// storage level.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
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

// NormalizeMessage trims an optional proposal message and enforces the
// length cap. Returns nil for an empty message.
func NormalizeMessage(message string) (*string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, nil
	}
	if len(message) > 1000 {
		return nil, ErrMessageTooLong
	}
	return &message, nil
}

// NormalizeCompanyName trims a company name and enforces the length cap.
func NormalizeCompanyName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) > 200 {
		return "", ErrCompanyNameTooLong
	}
	return name, nil
}
