// internal/model/device.go
package model

// ConnectionState represents the lifecycle state of one connection attempt
type ConnectionState string

const (
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateHandshaking  ConnectionState = "HANDSHAKING"
	StateLive         ConnectionState = "LIVE"
)

// IsLive reports whether configuration commands may be issued
func (s ConnectionState) IsLive() bool {
	return s == StateLive
}

// ConnectionType represents how the device is attached
type ConnectionType string

const (
	ConnectionTypeSerial ConnectionType = "SERIAL"
	ConnectionTypeUSB    ConnectionType = "USB"
)

// StatusLevel classifies human-readable status messages
type StatusLevel string

const (
	StatusInfo    StatusLevel = "info"
	StatusSuccess StatusLevel = "success"
	StatusWarning StatusLevel = "warning"
	StatusError   StatusLevel = "error"
)

// ColorOrder values accepted by the color_order parameter
const (
	ColorOrderGRB = 0
	ColorOrderRGB = 1
)

// EncoderPhase values accepted by the phase parameter
const (
	PhaseALeads = 0
	PhaseBLeads = 1
)
