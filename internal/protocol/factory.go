// internal/protocol/factory.go
package protocol

import (
	"fmt"

	"go.uber.org/zap"

	"radial-config/internal/model"
)

var validBaudRates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400}

// CreateProtocol creates a protocol based on connection type and configuration
func CreateProtocol(connectionType model.ConnectionType, config *SerialConfig, logger *zap.Logger) (DeviceProtocol, error) {
	switch connectionType {
	case model.ConnectionTypeSerial:
		if err := ValidateSerialConfig(config); err != nil {
			return nil, err
		}
		logger.Info("Creating serial protocol",
			zap.String("port", config.Port),
			zap.Int("baud_rate", config.BaudRate),
		)
		return NewSerialConnection(config, logger), nil
	default:
		// USB devices are discovered by descriptor but spoken to through their CDC serial port
		return nil, fmt.Errorf("unsupported protocol type: %s", connectionType)
	}
}

// ValidateSerialConfig validates serial configuration
func ValidateSerialConfig(config *SerialConfig) error {
	if config == nil || config.Port == "" {
		return fmt.Errorf("serial port is required")
	}

	valid := false
	for _, rate := range validBaudRates {
		if config.BaudRate == rate {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid baud rate: %d", config.BaudRate)
	}

	if config.DataBits < 5 || config.DataBits > 8 {
		return fmt.Errorf("invalid data bits: %d", config.DataBits)
	}

	if config.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}

	if _, err := config.Mode(); err != nil {
		return err
	}
	return nil
}
