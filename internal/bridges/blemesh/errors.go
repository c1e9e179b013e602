package blemesh

import "errors"

var (
	// ErrNotConnected is returned when the broker session is down.
	ErrNotConnected = errors.New("blemesh: not connected")

	// ErrTimeout is returned when the daemon does not answer in time.
	ErrTimeout = errors.New("blemesh: request timed out")

	// ErrClosed is returned for calls on, or pending across, a stopped bridge.
	ErrClosed = errors.New("blemesh: bridge closed")

	// ErrRemote wraps an error reported by the daemon itself.
	ErrRemote = errors.New("blemesh: daemon error")

	// ErrMalformed is returned for payloads that do not decode.
	ErrMalformed = errors.New("blemesh: malformed payload")
)
