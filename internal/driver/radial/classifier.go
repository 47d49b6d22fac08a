// internal/driver/radial/classifier.go
package radial

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"radial-config/internal/model"
)

// Kind names the class of a framed line for correlation
type Kind string

const (
	KindConfigLoaded Kind = "config_loaded"
	KindKeyValue     Kind = "key_value"
	KindStatus       Kind = "status"
	KindInvalid      Kind = "invalid"

	KindHeartbeat    Kind = "heartbeat"
	KindModeEnabled  Kind = "config_mode_enabled_success"
	KindModeTimedOut Kind = "config_mode_timedout"
	KindLoadSuccess  Kind = "load_settings_success"
	KindSaveSuccess  Kind = "save_settings_success"
	KindSaveFailed   Kind = "save_settings_failed"
	KindResetSuccess Kind = "reset_settings_success"
)

// IsControl reports kinds that only resolve a request when explicitly allow-listed
func (k Kind) IsControl() bool {
	switch k {
	case KindHeartbeat, KindModeTimedOut, KindInvalid:
		return true
	}
	return false
}

var responseKinds = map[string]Kind{
	Commands.Heartbeat:          KindHeartbeat,
	Responses.ConfigModeEnabled: KindModeEnabled,
	Responses.ConfigModeTimeout: KindModeTimedOut,
	Responses.LoadSuccess:       KindLoadSuccess,
	Responses.SaveSuccess:       KindSaveSuccess,
	Responses.SaveFailed:        KindSaveFailed,
	Responses.ResetSuccess:      KindResetSuccess,
}

// Line is a classified frame
type Line struct {
	Kind       Kind
	Text       string
	Key        string
	Value      int
	Record     *ConfigRecord
	Changes    []model.ParameterChange
	Err        error
	ReceivedAt time.Time
}

// Classifier turns frames into lines and applies parameter updates they carry
type Classifier struct {
	layout *Layout
	params *model.ParameterSet
}

// NewClassifier creates a classifier updating params according to layout
func NewClassifier(layout *Layout, params *model.ParameterSet) *Classifier {
	return &Classifier{layout: layout, params: params}
}

// Classify reports the frame's kind, in priority order: binary config line,
// key=value line, bare line. Blank lines yield false.
func (c *Classifier) Classify(frame Frame) (Line, bool) {
	now := time.Now()

	if frame.Binary {
		return c.classifyConfig(frame, now), true
	}

	text := strings.TrimSpace(strings.ReplaceAll(decodeText(frame.Data), "\r", ""))
	if text == "" {
		return Line{}, false
	}

	if key, raw, ok := strings.Cut(text, "="); ok {
		return c.classifyKeyValue(text, strings.TrimSpace(key), strings.TrimSpace(raw), now), true
	}

	kind, ok := responseKinds[text]
	if !ok {
		kind = KindStatus
	}
	return Line{Kind: kind, Text: text, ReceivedAt: now}, true
}

func (c *Classifier) classifyConfig(frame Frame, now time.Time) Line {
	line := Line{Kind: KindConfigLoaded, Text: strings.TrimSuffix(configMarker, "="), ReceivedAt: now}

	record, err := c.layout.Decode(frame.Payload())
	if err != nil {
		line.Kind = KindInvalid
		line.Err = err
		return line
	}

	line.Record = record
	line.Changes = c.params.Apply(record.Values)
	return line
}

func (c *Classifier) classifyKeyValue(text, key, raw string, now time.Time) Line {
	line := Line{Kind: KindKeyValue, Text: text, Key: key, ReceivedAt: now}

	value, err := strconv.Atoi(raw)
	if err != nil {
		line.Kind = KindInvalid
		line.Err = fmt.Errorf("%w: non-integer value in %q", ErrUnexpectedResponse, text)
		return line
	}
	line.Value = value

	if !c.params.Has(key) {
		return line
	}
	change, err := c.params.Set(key, value)
	if err != nil {
		return line
	}
	line.Changes = []model.ParameterChange{change}
	return line
}
