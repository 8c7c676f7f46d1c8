package accounts

import "errors"

var (
	ErrNotFound           = errors.New("accounts: not found")
	ErrConflict           = errors.New("accounts: conflict")
	ErrInvalidInput       = errors.New("accounts: invalid input")
	ErrInvalidToken       = errors.New("accounts: invalid token")
	ErrExpired            = errors.New("accounts: expired")
	ErrAlreadyProcessed   = errors.New("accounts: already processed")
	ErrForbidden          = errors.New("accounts: forbidden")
	ErrNotVerified        = errors.New("accounts: email not verified")
	ErrInvalidCredentials = errors.New("accounts: invalid email or password")
)
