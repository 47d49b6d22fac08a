// internal/driver/registry_init.go
package driver

import (
	"go.uber.org/zap"

	"radial-config/internal/config"
	"radial-config/internal/driver/radial"
	"radial-config/pkg/driver"
)

// RegisterDefaultDrivers registers all default device drivers
func RegisterDefaultDrivers(registry *Registry) {
	for _, layout := range radial.Versions() {
		registry.Register(radial.ModelName, layout, NewRadialDriver)
	}
}

// NewRadialDriver creates a radial driver from application configuration
func NewRadialDriver(cfg *config.Config, port string, logger *zap.Logger) (driver.ConfigDriver, error) {
	transport, err := newTransport(cfg, port, logger)
	if err != nil {
		return nil, err
	}
	return radial.NewDriver(RadialConfigFrom(cfg, port), transport, logger)
}

// RadialConfigFrom maps device and protocol settings onto a radial driver config
func RadialConfigFrom(cfg *config.Config, port string) *radial.Config {
	defaults := radial.DefaultConfig(port)
	timing := cfg.Protocol

	radialConfig := &radial.Config{
		Port:              port,
		Layout:            radial.LayoutVersion(cfg.Device.Layout),
		SaveMode:          driver.SaveMode(cfg.Device.SaveMode),
		HandshakeTimeout:  positive(timing.HandshakeTimeout, defaults.HandshakeTimeout),
		ResponseTimeout:   positive(timing.ResponseTimeout, defaults.ResponseTimeout),
		HeartbeatInterval: positive(timing.HeartbeatInterval, defaults.HeartbeatInterval),
		LivenessInterval:  positive(timing.LivenessInterval, defaults.LivenessInterval),
		SetDelay:          timing.SetDelay,
		CloseTimeout:      positive(timing.CloseTimeout, defaults.CloseTimeout),
		PayloadIdleFlush:  positive(timing.PayloadIdleFlush, defaults.PayloadIdleFlush),
		ReadChunk:         timing.ReadChunk,
		AmbientBuffer:     defaults.AmbientBuffer,
	}
	if radialConfig.Layout == "" {
		radialConfig.Layout = defaults.Layout
	}
	if radialConfig.SaveMode == "" {
		radialConfig.SaveMode = defaults.SaveMode
	}
	if radialConfig.ReadChunk <= 0 {
		radialConfig.ReadChunk = defaults.ReadChunk
	}
	return radialConfig
}
