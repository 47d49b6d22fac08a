// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"radial-config/internal/model"
)

// ErrPortNotOpen is returned for I/O on a closed serial connection
var ErrPortNotOpen = errors.New("serial port not open")

// SerialConnection implements DeviceProtocol for serial connections
type SerialConnection struct {
	config *SerialConfig
	port   serial.Port
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool
	stats  *ProtocolStats

	// portClosed reports whether a read error means the device is gone
	portClosed func(error) bool
}

// NewSerialConnection creates a new serial connection
func NewSerialConnection(config *SerialConfig, logger *zap.Logger) *SerialConnection {
	return &SerialConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "serial"),
			zap.String("port", config.Port),
		),
		stats:      NewProtocolStats(),
		portClosed: isPortClosed,
	}
}

// Open opens the serial connection
func (sc *SerialConnection) Open(ctx context.Context) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.isOpen {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	sc.logger.Info("Opening serial port",
		zap.Int("baud_rate", sc.config.BaudRate),
		zap.Int("data_bits", sc.config.DataBits),
		zap.Int("stop_bits", sc.config.StopBits),
		zap.String("parity", sc.config.Parity),
	)

	mode, err := sc.config.Mode()
	if err != nil {
		return fmt.Errorf("invalid serial mode: %w", err)
	}

	port, err := serial.Open(sc.config.Port, mode)
	if err != nil {
		sc.stats.RecordError()
		sc.logger.Error("Failed to open serial port", zap.Error(err))
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	// Read returns (0, nil) after this long without data
	if err := port.SetReadTimeout(sc.config.ReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	sc.port = port
	sc.isOpen = true
	sc.stats.SetConnected(true)

	sc.logger.Info("Serial port opened successfully")
	return nil
}

// Close closes the serial connection
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return nil
	}

	err := sc.port.Close()
	sc.port = nil
	sc.isOpen = false
	sc.stats.SetConnected(false)

	if err != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	sc.logger.Info("Serial port closed successfully")
	return nil
}

// IsOpen returns whether the connection is open
func (sc *SerialConnection) IsOpen() bool {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.isOpen && sc.port != nil
}

// Write writes data to the serial port
func (sc *SerialConnection) Write(ctx context.Context, data []byte) error {
	port, err := sc.activePort()
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	startTime := time.Now()
	n, err := port.Write(data)
	if err != nil {
		sc.stats.RecordError()
		sc.logger.Error("Serial write failed", zap.Error(err))
		return fmt.Errorf("failed to write to serial port: %w", err)
	}

	if n != len(data) {
		sc.stats.RecordError()
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	sc.stats.RecordWrite(n, time.Since(startTime))
	sc.logger.Debug("Serial write completed", zap.Int("bytes", n))
	return nil
}

// Read reads up to maxBytes from the serial port. It blocks for at most the
// configured read timeout.
func (sc *SerialConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	port, err := sc.activePort()
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buffer := make([]byte, maxBytes)
	n, err := port.Read(buffer)
	if err != nil {
		if errors.Is(err, io.EOF) && n > 0 {
			sc.stats.RecordRead(n)
			return buffer[:n], nil
		}
		sc.stats.RecordError()
		if sc.portClosed(err) {
			sc.markClosed(port)
		}
		return nil, fmt.Errorf("failed to read from serial port: %w", err)
	}

	sc.stats.RecordRead(n)
	return buffer[:n], nil
}

// GetProtocolType returns the protocol type
func (sc *SerialConnection) GetProtocolType() model.ConnectionType {
	return model.ConnectionTypeSerial
}

// GetStats returns a copy of the transport counters
func (sc *SerialConnection) GetStats() StatsSnapshot {
	return sc.stats.Snapshot()
}

// markClosed drops a port the device side has already closed, so IsOpen
// reports the loss.
func (sc *SerialConnection) markClosed(port serial.Port) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.port != port {
		return
	}
	if err := port.Close(); err != nil {
		sc.logger.Debug("Close of vanished port failed", zap.Error(err))
	}
	sc.isOpen = false
	sc.port = nil
	sc.stats.SetConnected(false)
	sc.logger.Warn("Serial port vanished")
}

func isPortClosed(err error) bool {
	var portErr *serial.PortError
	return errors.As(err, &portErr) && portErr.Code() == serial.PortClosed
}

func (sc *SerialConnection) activePort() (serial.Port, error) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if !sc.isOpen || sc.port == nil {
		return nil, ErrPortNotOpen
	}
	return sc.port, nil
}
