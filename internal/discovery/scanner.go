// internal/discovery/scanner.go
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"radial-config/internal/model"
)

// ErrNoDevice is returned when no attached device matches the filter
var ErrNoDevice = errors.New("no matching device found")

// DeviceScanner locates attached devices of one transport kind
type DeviceScanner interface {
	Scan(ctx context.Context) ([]*DiscoveredDevice, error)
	GetScannerType() string
	IsAvailable() bool
}

// DiscoveredDevice represents a discovered device
type DiscoveredDevice struct {
	ConnectionType model.ConnectionType `json:"connection_type"`
	Port           string               `json:"port,omitempty"`
	VendorID       string               `json:"vendor_id"`
	ProductID      string               `json:"product_id"`
	Manufacturer   string               `json:"manufacturer,omitempty"`
	Product        string               `json:"product,omitempty"`
	SerialNumber   string               `json:"serial_number,omitempty"`
	Location       string               `json:"location,omitempty"`
	Confidence     float64              `json:"confidence"` // 0.0-1.0
}

// Filter selects devices by USB vendor and optional product id (hex)
type Filter struct {
	VendorID  string
	ProductID string
}

// Matches reports whether the given hex ids satisfy the filter
func (f Filter) Matches(vendorID, productID string) bool {
	vid, err := ParseID(vendorID)
	if err != nil {
		return false
	}
	want, err := ParseID(f.VendorID)
	if err != nil || vid != want {
		return false
	}

	if f.ProductID == "" {
		return true
	}
	pid, err := ParseID(productID)
	if err != nil {
		return false
	}
	wantPID, err := ParseID(f.ProductID)
	return err == nil && pid == wantPID
}

// ParseID parses a USB id written as hex, with or without a 0x prefix
func ParseID(s string) (uint16, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "0x")
	id, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid usb id %q: %w", s, err)
	}
	return uint16(id), nil
}

// FormatID renders a USB id the way ports report it
func FormatID(id uint16) string {
	return fmt.Sprintf("%04X", id)
}

// ScannerManager manages all device scanners
type ScannerManager struct {
	scanners map[string]DeviceScanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]DeviceScanner),
		logger:   logger,
	}
}

// RegisterScanner registers a device scanner
func (sm *ScannerManager) RegisterScanner(scanner DeviceScanner) {
	scannerType := scanner.GetScannerType()
	sm.scanners[scannerType] = scanner
	sm.logger.Debug("Scanner registered", zap.String("type", scannerType))
}

// ScanAll scans all registered scanner types. Results are ordered by
// confidence, highest first.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]*DiscoveredDevice, error) {
	var allDevices []*DiscoveredDevice

	for scannerType, scanner := range sm.scanners {
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scannerType))
			continue
		}

		devices, err := scanner.Scan(ctx)
		if err != nil {
			sm.logger.Warn("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			continue
		}

		allDevices = append(allDevices, devices...)
		sm.logger.Debug("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("devices_found", len(devices)),
		)
	}

	sort.SliceStable(allDevices, func(i, j int) bool {
		if allDevices[i].Confidence != allDevices[j].Confidence {
			return allDevices[i].Confidence > allDevices[j].Confidence
		}
		return allDevices[i].Port < allDevices[j].Port
	})
	return allDevices, nil
}

// ScanByType scans specific scanner type
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*DiscoveredDevice, error) {
	scanner, exists := sm.scanners[scannerType]
	if !exists {
		return nil, fmt.Errorf("scanner type not found: %s", scannerType)
	}

	if !scanner.IsAvailable() {
		return nil, fmt.Errorf("scanner not available: %s", scannerType)
	}

	return scanner.Scan(ctx)
}

// FirstSerialPort returns the port name of the best serial match
func (sm *ScannerManager) FirstSerialPort(ctx context.Context) (string, error) {
	devices, err := sm.ScanAll(ctx)
	if err != nil {
		return "", err
	}
	for _, device := range devices {
		if device.ConnectionType == model.ConnectionTypeSerial && device.Port != "" {
			return device.Port, nil
		}
	}
	return "", ErrNoDevice
}

// GetAvailableScanners returns list of available scanner types
func (sm *ScannerManager) GetAvailableScanners() []string {
	var available []string
	for scannerType, scanner := range sm.scanners {
		if scanner.IsAvailable() {
			available = append(available, scannerType)
		}
	}
	sort.Strings(available)
	return available
}
