// internal/driver/registry.go
package driver

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"radial-config/internal/config"
	"radial-config/internal/model"
	"radial-config/internal/protocol"
	"radial-config/pkg/driver"
)

// DriverFactory creates a driver for one connection attempt
type DriverFactory func(cfg *config.Config, port string, logger *zap.Logger) (driver.ConfigDriver, error)

// Registry manages device driver registration and creation
type Registry struct {
	drivers map[DriverKey]DriverFactory
	mu      sync.RWMutex
	logger  *zap.Logger
}

// DriverKey uniquely identifies a driver
type DriverKey struct {
	Model  string
	Layout string
}

func (k DriverKey) String() string {
	return k.Model + "/" + k.Layout
}

// NewRegistry creates a new driver registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		drivers: make(map[DriverKey]DriverFactory),
		logger:  logger,
	}
}

// Register registers a driver factory
func (r *Registry) Register(deviceModel, layout string, factory DriverFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := DriverKey{Model: deviceModel, Layout: layout}
	r.drivers[key] = factory
	r.logger.Debug("Driver registered",
		zap.String("model", deviceModel),
		zap.String("layout", layout),
	)
}

// CreateDriver creates a driver instance for the configured layout
func (r *Registry) CreateDriver(deviceModel string, cfg *config.Config, port string) (driver.ConfigDriver, error) {
	r.mu.RLock()
	factory, exists := r.drivers[DriverKey{Model: deviceModel, Layout: cfg.Device.Layout}]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no driver found for model=%s, layout=%s", deviceModel, cfg.Device.Layout)
	}
	return factory(cfg, port, r.logger)
}

// ListDrivers returns all registered drivers
func (r *Registry) ListDrivers() []DriverKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]DriverKey, 0, len(r.drivers))
	for key := range r.drivers {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// IsSupported checks if a model and layout pair is supported
func (r *Registry) IsSupported(deviceModel, layout string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.drivers[DriverKey{Model: deviceModel, Layout: layout}]
	return exists
}

// SerialConfigFrom maps the serial section of the configuration onto the transport config
func SerialConfigFrom(cfg config.SerialConfig, port string) *protocol.SerialConfig {
	serialConfig := protocol.DefaultSerialConfig(port)
	if cfg.BaudRate > 0 {
		serialConfig.BaudRate = cfg.BaudRate
	}
	if cfg.DataBits > 0 {
		serialConfig.DataBits = cfg.DataBits
	}
	if cfg.StopBits > 0 {
		serialConfig.StopBits = cfg.StopBits
	}
	if cfg.Parity != "" {
		serialConfig.Parity = cfg.Parity
	}
	if cfg.ReadTimeout > 0 {
		serialConfig.ReadTimeout = cfg.ReadTimeout
	}
	return serialConfig
}

// newTransport builds the serial transport a driver talks through
func newTransport(cfg *config.Config, port string, logger *zap.Logger) (protocol.DeviceProtocol, error) {
	serialConfig := SerialConfigFrom(cfg.Serial, port)
	if err := protocol.ValidateSerialConfig(serialConfig); err != nil {
		return nil, fmt.Errorf("invalid serial config: %w", err)
	}
	return protocol.CreateProtocol(model.ConnectionTypeSerial, serialConfig, logger)
}

func positive(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
