package domain

import "errors"

var (
	ErrNetwork        = errors.New("network error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrRejected       = errors.New("transaction rejected")
	ErrInvalidDraft   = errors.New("invalid transaction draft")
	ErrAlreadyRunning = errors.New("mining already running")
	ErrCancelled      = errors.New("mining cancelled")
	ErrNoSession      = errors.New("no session")

	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already exists")
	ErrIncorrectCredentials = errors.New("incorrect credentials")
	ErrSessionNotFound      = errors.New("session not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
)
