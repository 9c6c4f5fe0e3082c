package domain

import "errors"

var (
	// ErrInvalidInput marks a request with a missing or malformed field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound means the requested value has not been stored yet. Pollers
	// are expected to retry.
	ErrNotFound = errors.New("not found")

	ErrAlreadyInitialized = errors.New("room already initialized")
	ErrRoomNotInitialized = errors.New("room not initialized")

	// ErrStorage wraps any failure of the durable record store. A mutation
	// that fails with ErrStorage has not been applied.
	ErrStorage = errors.New("storage failure")
)
