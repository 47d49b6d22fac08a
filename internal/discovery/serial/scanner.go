// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"radial-config/internal/discovery"
	"radial-config/internal/model"
)

// Scanner finds serial ports backed by a USB device matching the filter
type Scanner struct {
	logger *zap.Logger
	filter discovery.Filter
	list   func() ([]*enumerator.PortDetails, error)
}

// NewScanner creates a new serial scanner
func NewScanner(logger *zap.Logger, filter discovery.Filter) *Scanner {
	return &Scanner{
		logger: logger.With(zap.String("scanner", "serial")),
		filter: filter,
		list:   enumerator.GetDetailedPortsList,
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "serial"
}

// IsAvailable checks if serial scanning is available
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan lists serial ports and keeps those whose USB ids match
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := s.list()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	discovered := matchPorts(ports, s.filter)
	s.logger.Debug("Serial scan completed",
		zap.Int("ports", len(ports)),
		zap.Int("devices_found", len(discovered)),
	)
	return discovered, nil
}

func matchPorts(ports []*enumerator.PortDetails, filter discovery.Filter) []*discovery.DiscoveredDevice {
	var discovered []*discovery.DiscoveredDevice
	for _, port := range ports {
		if port == nil || !port.IsUSB || !filter.Matches(port.VID, port.PID) {
			continue
		}

		confidence := 0.9
		if filter.ProductID != "" {
			confidence = 1.0
		}

		discovered = append(discovered, &discovery.DiscoveredDevice{
			ConnectionType: model.ConnectionTypeSerial,
			Port:           port.Name,
			VendorID:       port.VID,
			ProductID:      port.PID,
			Product:        port.Product,
			SerialNumber:   port.SerialNumber,
			Location:       port.Name,
			Confidence:     confidence,
		})
	}
	return discovered
}
