package pkg

import "errors"

// Engine and transport errors.
var (
	// ErrDisconnected indicates the device connection was lost or closed
	// while a message was outstanding.
	ErrDisconnected = errors.New("device disconnected")

	// ErrCancelled indicates a message was cancelled by its submitter.
	ErrCancelled = errors.New("message cancelled")

	// ErrShutdown indicates the engine shut down before a message completed.
	ErrShutdown = errors.New("engine shutting down")

	// ErrProtocol indicates a malformed or unexpected packet.
	ErrProtocol = errors.New("protocol error")

	// ErrNoDevice indicates no matching device is present.
	ErrNoDevice = errors.New("device not present")

	// ErrWouldBlock indicates a non-blocking operation could not proceed.
	ErrWouldBlock = errors.New("operation would block")

	// ErrInvalidState indicates an invalid engine state for the operation.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrPayloadTooLarge indicates a message payload exceeds the frame limit.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrNotSupported indicates an unsupported operation or platform.
	ErrNotSupported = errors.New("not supported")

	// ErrBusy indicates the resource is busy.
	ErrBusy = errors.New("resource busy")

	// ErrAlreadyRunning indicates the engine is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the engine is not running.
	ErrNotRunning = errors.New("not running")
)

// Status is the completion code written to a message when it is finalized.
// The numeric values are stable and may be exposed to callers verbatim.
type Status int

// Status values.
const (
	StatusSuccess    Status = 0  // Message completed normally
	StatusDisconnect Status = -1 // Transport or protocol failure, device gone
	StatusCancelled  Status = -2 // Cancelled by the submitter
	StatusShutdown   Status = -3 // Engine quit before completion
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusDisconnect:
		return "disconnect"
	case StatusCancelled:
		return "cancelled"
	case StatusShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the status.
func (s Status) Error() error {
	switch s {
	case StatusSuccess:
		return nil
	case StatusDisconnect:
		return ErrDisconnected
	case StatusCancelled:
		return ErrCancelled
	case StatusShutdown:
		return ErrShutdown
	default:
		return ErrProtocol
	}
}

// StatusOf maps an error to the status it finalizes a message with.
// Unrecognized errors are treated as transport failures.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrCancelled):
		return StatusCancelled
	case errors.Is(err, ErrShutdown):
		return StatusShutdown
	default:
		return StatusDisconnect
	}
}
