// pkg/driver/types.go
package driver

import (
	"time"

	"radial-config/internal/model"
)

// DeviceInfo contains basic device information
type DeviceInfo struct {
	Model           string               `json:"model"`
	Port            string               `json:"port"`
	Layout          string               `json:"layout"`
	FirmwareVersion string               `json:"firmware_version"`
	RecordVersion   uint8                `json:"record_version"`
	RecordRevision  uint8                `json:"record_revision"`
	ConnectionType  model.ConnectionType `json:"connection_type"`
}

// DeviceStatus represents current connection status
type DeviceStatus struct {
	State          model.ConnectionState `json:"state"`
	IsReady        bool                  `json:"is_ready"`
	PendingCommand string                `json:"pending_command,omitempty"`
	LastResponse   time.Time             `json:"last_response"`
	BytesRead      int64                 `json:"bytes_read"`
	BytesWritten   int64                 `json:"bytes_written"`
}

// HealthMetrics contains command exchange statistics
type HealthMetrics struct {
	HealthScore     int           `json:"health_score"` // 0-100
	ResponseTime    time.Duration `json:"response_time"`
	SuccessRate     float64       `json:"success_rate"` // 0.0-1.0
	ErrorCount      int64         `json:"error_count"`
	TotalOperations int64         `json:"total_operations"`
	LastErrorTime   *time.Time    `json:"last_error_time,omitempty"`
	LastSuccessTime *time.Time    `json:"last_success_time,omitempty"`
}

// SaveMode selects how settings are written back to the device
type SaveMode string

const (
	// SaveModeBinary sends the whole record in one save command
	SaveModeBinary SaveMode = "binary"
	// SaveModeText sends one set command per parameter followed by a bare save
	SaveModeText SaveMode = "text"
)
