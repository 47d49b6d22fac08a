// internal/discovery/usb/scanner.go
package usb

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"radial-config/internal/discovery"
	"radial-config/internal/model"
)

// Scanner reports attached USB devices matching the vendor filter. It
// does not resolve the serial port a device exposes; that is the serial
// scanner's job.
type Scanner struct {
	logger  *zap.Logger
	filter  discovery.Filter
	timeout time.Duration
}

// NewScanner creates a new USB scanner
func NewScanner(logger *zap.Logger, filter discovery.Filter, timeout time.Duration) *Scanner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Scanner{
		logger:  logger.With(zap.String("scanner", "usb")),
		filter:  filter,
		timeout: timeout,
	}
}

// GetScannerType returns scanner type identifier
func (s *Scanner) GetScannerType() string {
	return "usb"
}

// IsAvailable checks if USB scanning is available on this system
func (s *Scanner) IsAvailable() bool {
	switch runtime.GOOS {
	case "linux":
		_, err := os.Stat("/dev/bus/usb")
		return err == nil
	case "darwin", "windows":
		return true
	default:
		return false
	}
}

// Scan opens every device whose descriptor matches and reads its strings
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
	startTime := time.Now()

	scanCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	usbCtx := gousb.NewContext()
	defer func() {
		if err := usbCtx.Close(); err != nil {
			s.logger.Warn("Failed to close USB context", zap.Error(err))
		}
	}()

	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return s.filter.Matches(desc.Vendor.String(), desc.Product.String())
	})
	defer func() {
		for _, device := range devices {
			if cerr := device.Close(); cerr != nil {
				s.logger.Debug("Failed to close USB device", zap.Error(cerr))
			}
		}
	}()
	if err != nil && len(devices) == 0 {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}

	var discovered []*discovery.DiscoveredDevice
	for _, device := range devices {
		if scanCtx.Err() != nil {
			return discovered, scanCtx.Err()
		}
		discovered = append(discovered, s.describe(device))
	}

	s.logger.Debug("USB scan completed",
		zap.Int("devices_found", len(discovered)),
		zap.Duration("scan_duration", time.Since(startTime)),
	)
	return discovered, nil
}

func (s *Scanner) describe(device *gousb.Device) *discovery.DiscoveredDevice {
	found := newDiscoveredDevice(device.Desc)

	// String descriptors need permission to the device node; ids suffice without them.
	if manufacturer, err := device.Manufacturer(); err == nil {
		found.Manufacturer = manufacturer
	}
	if product, err := device.Product(); err == nil {
		found.Product = product
	}
	if serialNumber, err := device.SerialNumber(); err == nil {
		found.SerialNumber = serialNumber
	}
	return found
}

func newDiscoveredDevice(desc *gousb.DeviceDesc) *discovery.DiscoveredDevice {
	return &discovery.DiscoveredDevice{
		ConnectionType: model.ConnectionTypeUSB,
		VendorID:       discovery.FormatID(uint16(desc.Vendor)),
		ProductID:      discovery.FormatID(uint16(desc.Product)),
		Location:       fmt.Sprintf("bus %d port %d address %d", desc.Bus, desc.Port, desc.Address),
		Confidence:     0.5,
	}
}
