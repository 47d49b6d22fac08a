// internal/driver/radial/errors.go
package radial

import "errors"

var (
	// ErrTransportUnavailable is returned when no open port or stream exists.
	ErrTransportUnavailable = errors.New("radial: transport unavailable")
	// ErrTimeout indicates no qualifying response arrived before the deadline.
	ErrTimeout = errors.New("radial: timeout waiting for response")
	// ErrUnexpectedResponse indicates a response arrived but could not be decoded or matched.
	ErrUnexpectedResponse = errors.New("radial: unexpected response")
	// ErrShortBuffer indicates a truncated binary config payload.
	ErrShortBuffer = errors.New("radial: short config buffer")
	// ErrConnectionLost indicates the transport disappeared or the device left config mode.
	ErrConnectionLost = errors.New("radial: connection lost")

	// ErrRequestInFlight is returned when a second awaiting request is issued while one is pending.
	ErrRequestInFlight = errors.New("radial: request already in flight")
	// ErrSaveFailed is returned when the device rejects a save.
	ErrSaveFailed = errors.New("radial: device rejected save")
	// ErrNotConnected is returned for commands issued while config mode is not active.
	ErrNotConnected = errors.New("radial: not connected")
	// ErrUnknownParameter is returned for keys outside the active layout.
	ErrUnknownParameter = errors.New("radial: unknown parameter")
	// ErrSessionClosed is returned when a spent driver handle is reused.
	ErrSessionClosed = errors.New("radial: session closed")
)
