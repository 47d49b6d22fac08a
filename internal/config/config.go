// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Serial   SerialConfig   `mapstructure:"serial"`
	Device   DeviceConfig   `mapstructure:"device"`
	Protocol ProtocolConfig `mapstructure:"protocol"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	App      AppConfig      `mapstructure:"app"`
}

// SerialConfig represents serial port settings. An empty port selects the
// first discovered device.
type SerialConfig struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	DataBits    int           `mapstructure:"data_bits"`
	StopBits    int           `mapstructure:"stop_bits"`
	Parity      string        `mapstructure:"parity"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// DeviceConfig identifies the device and its record layout
type DeviceConfig struct {
	VendorID  string `mapstructure:"vendor_id"`
	ProductID string `mapstructure:"product_id"`
	Layout    string `mapstructure:"layout"`
	SaveMode  string `mapstructure:"save_mode"`
}

// ProtocolConfig represents protocol engine timings
type ProtocolConfig struct {
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	ResponseTimeout   time.Duration `mapstructure:"response_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	LivenessInterval  time.Duration `mapstructure:"liveness_interval"`
	SetDelay          time.Duration `mapstructure:"set_delay"`
	CloseTimeout      time.Duration `mapstructure:"close_timeout"`
	PayloadIdleFlush  time.Duration `mapstructure:"payload_idle_flush"`
	ReadChunk         int           `mapstructure:"read_chunk"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

var (
	validLayouts   = []string{"v1", "v2", "v3"}
	validSaveModes = []string{"binary", "text"}
	validEnvs      = []string{"development", "staging", "production", "test"}
	validLevels    = []string{"debug", "info", "warn", "error", "fatal"}
)

// Load loads configuration from path (or config.yaml on the search path),
// environment variables and defaults. A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./internal/config")
	}

	// Environment variable support
	v.SetEnvPrefix("RADIAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Serial defaults, 115200 8N1
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud_rate", 115200)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.parity", "none")
	v.SetDefault("serial.read_timeout", "100ms")

	// Device defaults
	v.SetDefault("device.vendor_id", "1209")
	v.SetDefault("device.product_id", "")
	v.SetDefault("device.layout", "v3")
	v.SetDefault("device.save_mode", "binary")

	// Protocol defaults
	v.SetDefault("protocol.handshake_timeout", "1s")
	v.SetDefault("protocol.response_timeout", "2s")
	v.SetDefault("protocol.heartbeat_interval", "1s")
	v.SetDefault("protocol.liveness_interval", "5s")
	v.SetDefault("protocol.set_delay", "10ms")
	v.SetDefault("protocol.close_timeout", "500ms")
	v.SetDefault("protocol.payload_idle_flush", "500ms")
	v.SetDefault("protocol.read_chunk", 64)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// App defaults
	v.SetDefault("app.name", "radialctl")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	config.Device.Layout = strings.ToLower(strings.TrimSpace(config.Device.Layout))
	config.Device.SaveMode = strings.ToLower(strings.TrimSpace(config.Device.SaveMode))

	if !slices.Contains(validLayouts, config.Device.Layout) {
		return fmt.Errorf("device.layout must be one of: %v", validLayouts)
	}
	if !slices.Contains(validSaveModes, config.Device.SaveMode) {
		return fmt.Errorf("device.save_mode must be one of: %v", validSaveModes)
	}
	if config.Device.VendorID == "" {
		return fmt.Errorf("device.vendor_id is required")
	}
	if config.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be positive")
	}

	durations := map[string]time.Duration{
		"serial.read_timeout":         config.Serial.ReadTimeout,
		"protocol.handshake_timeout":  config.Protocol.HandshakeTimeout,
		"protocol.response_timeout":   config.Protocol.ResponseTimeout,
		"protocol.heartbeat_interval": config.Protocol.HeartbeatInterval,
		"protocol.liveness_interval":  config.Protocol.LivenessInterval,
		"protocol.close_timeout":      config.Protocol.CloseTimeout,
		"protocol.payload_idle_flush": config.Protocol.PayloadIdleFlush,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if config.Protocol.SetDelay < 0 {
		return fmt.Errorf("protocol.set_delay must not be negative")
	}
	if config.Protocol.ReadChunk <= 0 {
		return fmt.Errorf("protocol.read_chunk must be positive")
	}

	if !slices.Contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}
	if !slices.Contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
