package queuectl

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("queuectl: no store configured")
	ErrStoreClosed     = errors.New("queuectl: store closed")
	ErrMigrationFailed = errors.New("queuectl: migration failed")

	// Not found errors.
	ErrJobNotFound = errors.New("queuectl: job not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("queuectl: job already exists")

	// State errors.
	ErrInvalidState   = errors.New("queuectl: invalid state transition")
	ErrNotRequeueable = errors.New("queuectl: job is not dead")

	// Validation errors.
	ErrInvalidPayload = errors.New("queuectl: invalid job payload")
	ErrInvalidConfig  = errors.New("queuectl: invalid config")

	// Pool errors.
	ErrPoolRunning = errors.New("queuectl: worker pool already running")
	ErrPoolStopped = errors.New("queuectl: worker pool already stopped")
)
