// internal/service/config_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"radial-config/internal/config"
	"radial-config/internal/discovery"
	internalDriver "radial-config/internal/driver"
	"radial-config/internal/driver/radial"
	"radial-config/internal/model"
	"radial-config/internal/utils"
	"radial-config/pkg/driver"
)

var (
	// ErrNotConnected is returned when no live session exists
	ErrNotConnected = errors.New("no active configuration session")
	// ErrAlreadyConnected is returned when a session is still open
	ErrAlreadyConnected = errors.New("a configuration session is already open")
)

// ConfigService owns the current configuration session. Each connection
// attempt gets a fresh driver; a lost or closed driver is never reused.
type ConfigService struct {
	driverRegistry *internalDriver.Registry
	scannerManager *discovery.ScannerManager
	eventHandler   driver.EventHandler
	config         *config.Config
	logger         *utils.ServiceLogger

	mu      sync.Mutex
	current driver.ConfigDriver
}

// NewConfigService creates a new configuration service
func NewConfigService(
	driverRegistry *internalDriver.Registry,
	scannerManager *discovery.ScannerManager,
	eventHandler driver.EventHandler,
	config *config.Config,
	logger *zap.Logger,
) *ConfigService {
	return &ConfigService{
		driverRegistry: driverRegistry,
		scannerManager: scannerManager,
		eventHandler:   eventHandler,
		config:         config,
		logger:         utils.NewServiceLogger(logger, "config-service"),
	}
}

// Scan lists attached devices matching the configured ids
func (cs *ConfigService) Scan(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
	return cs.scannerManager.ScanAll(ctx)
}

// ScanByType lists attached devices found by one scanner
func (cs *ConfigService) ScanByType(ctx context.Context, scannerType string) ([]*discovery.DiscoveredDevice, error) {
	return cs.scannerManager.ScanByType(ctx, scannerType)
}

// Connect opens a new session on port. An empty port falls back to the
// configured one and then to the first discovered device.
func (cs *ConfigService) Connect(ctx context.Context, port string) (driver.ConfigDriver, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.current != nil {
		if cs.current.State() != model.StateDisconnected {
			return nil, ErrAlreadyConnected
		}
		cs.current = nil
	}

	port, err := cs.resolvePort(ctx, port)
	if err != nil {
		return nil, err
	}

	d, err := cs.driverRegistry.CreateDriver(radial.ModelName, cs.config, port)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}
	if cs.eventHandler != nil {
		d.SetEventHandler(cs.eventHandler)
	}

	if err := d.Connect(ctx); err != nil {
		cs.logger.Warn("Connection attempt failed", zap.String("port", port), zap.Error(err))
		if cerr := d.Close(); cerr != nil {
			cs.logger.Debug("Failed to close driver", zap.Error(cerr))
		}
		return nil, err
	}

	cs.current = d
	cs.logger.Info("Configuration session opened",
		zap.String("port", port),
		zap.String("session_id", d.SessionID().String()),
	)
	return d, nil
}

// Current returns the live session driver
func (cs *ConfigService) Current() (driver.ConfigDriver, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.current == nil || !cs.current.IsConnected() {
		return nil, ErrNotConnected
	}
	return cs.current, nil
}

// Disconnect closes the current session, if any
func (cs *ConfigService) Disconnect(ctx context.Context) error {
	cs.mu.Lock()
	d := cs.current
	cs.current = nil
	cs.mu.Unlock()

	if d == nil {
		return nil
	}
	if err := d.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	cs.logger.Info("Configuration session closed", zap.String("session_id", d.SessionID().String()))
	return nil
}

// Close releases the current session
func (cs *ConfigService) Close() error {
	cs.mu.Lock()
	d := cs.current
	cs.current = nil
	cs.mu.Unlock()

	if d == nil {
		return nil
	}
	return d.Close()
}

func (cs *ConfigService) resolvePort(ctx context.Context, port string) (string, error) {
	if port != "" {
		return port, nil
	}
	if cs.config.Serial.Port != "" {
		return cs.config.Serial.Port, nil
	}
	if cs.scannerManager == nil {
		return "", discovery.ErrNoDevice
	}

	port, err := cs.scannerManager.FirstSerialPort(ctx)
	if err != nil {
		return "", fmt.Errorf("port discovery failed: %w", err)
	}
	cs.logger.Info("Discovered device port", zap.String("port", port))
	return port, nil
}
