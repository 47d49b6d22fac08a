// internal/protocol/connection.go
package protocol

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// SerialConfig represents serial connection configuration
type SerialConfig struct {
	Port        string        `json:"port"`
	BaudRate    int           `json:"baud_rate"`
	DataBits    int           `json:"data_bits"`
	StopBits    int           `json:"stop_bits"`
	Parity      string        `json:"parity"`
	ReadTimeout time.Duration `json:"read_timeout"`
}

// DefaultSerialConfig returns the 115200 8N1 settings the device firmware uses
func DefaultSerialConfig(port string) *SerialConfig {
	return &SerialConfig{
		Port:        port,
		BaudRate:    115200,
		DataBits:    8,
		StopBits:    1,
		Parity:      "none",
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Mode converts the configuration into a serial port mode
func (c *SerialConfig) Mode() (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
	}

	switch c.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits: %d", c.StopBits)
	}

	switch strings.ToLower(c.Parity) {
	case "", "none":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("unsupported parity: %s", c.Parity)
	}

	return mode, nil
}
