// pkg/driver/interfaces.go
package driver

import (
	"context"

	"github.com/google/uuid"

	"radial-config/internal/model"
)

// ConfigDriver is the interface a configuration-mode device driver implements.
// One value serves exactly one connection attempt.
type ConfigDriver interface {
	// Connection management
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	State() model.ConnectionState
	SessionID() uuid.UUID

	// Device information
	GetDeviceInfo() (*DeviceInfo, error)
	GetStatus() (*DeviceStatus, error)
	GetHealthMetrics() (*HealthMetrics, error)

	// Parameters
	Parameters() []model.ConfigParameter
	SetParameter(key string, value int) (model.ParameterChange, error)

	// Device commands
	LoadSettings(ctx context.Context) error
	SaveSettings(ctx context.Context) error
	ResetSettings(ctx context.Context) error

	// Event handling
	SetEventHandler(handler EventHandler)

	// Cleanup
	Close() error
}

// EventHandler receives driver notifications. Calls are made from the driver's
// event loop and must not block or call back into the driver's blocking methods.
type EventHandler interface {
	OnConnected(sessionID uuid.UUID, port string)
	OnDisconnected(sessionID uuid.UUID, reason string)
	OnConnectionLost(sessionID uuid.UUID, err error)
	OnParameterChanged(sessionID uuid.UUID, change model.ParameterChange)
	OnConfigLoaded(sessionID uuid.UUID, info *DeviceInfo)
	OnStatus(sessionID uuid.UUID, level model.StatusLevel, message string)
	OnAlert(sessionID uuid.UUID, title, message string)
}
