package session

import "errors"

var (
	// ErrSpinInProgress is returned when a spin is requested while another is
	// still running. The request is a no-op.
	ErrSpinInProgress   = errors.New("spin already in progress")
	ErrNoSpinInProgress = errors.New("no spin in progress")
	ErrSpinMismatch     = errors.New("spin id does not match the running spin")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionClosed    = errors.New("session closed")
	ErrTooManySessions  = errors.New("session limit reached")
)
