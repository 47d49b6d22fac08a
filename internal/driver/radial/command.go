// internal/driver/radial/command.go
package radial

import (
	"fmt"
	"strconv"

	"golang.org/x/text/encoding/charmap"
)

// Commands contains all host-to-device command literals
var Commands = struct {
	EnableConfigMode string
	LoadSettings     string
	SaveSettings     string
	ResetSettings    string
	Heartbeat        string
	SetPrefix        string
}{
	EnableConfigMode: "config_mode_enabled",
	LoadSettings:     "load_settings",
	SaveSettings:     "save_settings",
	ResetSettings:    "reset_settings",
	Heartbeat:        "heartbeat",
	SetPrefix:        "set_",
}

// Responses contains all device-to-host status literals
var Responses = struct {
	ConfigModeEnabled string
	ConfigModeTimeout string
	LoadSuccess       string
	SaveSuccess       string
	SaveFailed        string
	ResetSuccess      string
}{
	ConfigModeEnabled: "config_mode_enabled_success",
	ConfigModeTimeout: "config_mode_timedout",
	LoadSuccess:       "load_settings_success",
	SaveSuccess:       "save_settings_success",
	SaveFailed:        "save_settings_failed",
	ResetSuccess:      "reset_settings_success",
}

// CommandBuilder assembles outgoing messages. Text is encoded as ISO-8859-1.
type CommandBuilder struct{}

// NewCommandBuilder creates a command builder
func NewCommandBuilder() *CommandBuilder {
	return &CommandBuilder{}
}

// Text builds a bare command followed by the terminator
func (b *CommandBuilder) Text(command string) ([]byte, error) {
	data, err := encodeText(command)
	if err != nil {
		return nil, err
	}
	return append(data, lineTerminator), nil
}

// Set builds a per-parameter set_<key>=<value> command
func (b *CommandBuilder) Set(key string, value int) ([]byte, error) {
	return b.Text(Commands.SetPrefix + key + "=" + strconv.Itoa(value))
}

// Save builds the binary save command: marker, raw record payload, terminator
func (b *CommandBuilder) Save(payload []byte) ([]byte, error) {
	if len(payload) != PayloadSize {
		return nil, fmt.Errorf("save payload must be %d bytes, got %d", PayloadSize, len(payload))
	}
	data, err := encodeText(Commands.SaveSettings + "=")
	if err != nil {
		return nil, err
	}
	data = append(data, payload...)
	return append(data, lineTerminator), nil
}

func encodeText(s string) ([]byte, error) {
	data, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command %q: %w", s, err)
	}
	return []byte(data), nil
}

func decodeText(b []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}
