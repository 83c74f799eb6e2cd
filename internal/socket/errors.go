package socket

import "errors"

var (
	// ErrIncompleteFactory is returned when a registered factory is missing
	// one of the required operation slots.
	ErrIncompleteFactory = errors.New("transport factory is missing required operations")

	// ErrAlreadyRegistered is returned when a second, different factory is
	// registered. Re-registering an equal factory is not an error.
	ErrAlreadyRegistered = errors.New("a transport factory is already registered")

	// ErrNoFactory is returned when a connection is created but no factory
	// is registered and no fallback is wired.
	ErrNoFactory = errors.New("no transport factory registered")
)
