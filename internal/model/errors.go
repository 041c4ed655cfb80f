package model

import "errors"

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Token related errors. Expired and invalid are distinct: expiry is a
	// normal condition that may trigger a client refresh, a bad signature
	// or malformed token never does.
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenInvalid  = errors.New("token invalid")
	ErrTokenNotFound = errors.New("token not found")

	// ErrRefreshMismatch covers a refresh token that verifies
	// cryptographically but does not equal the stored entry for its
	// subject (superseded or revoked).
	ErrRefreshMismatch = errors.New("refresh token mismatch")

	// Permission/Access related errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
