// internal/driver/radial/layout.go
package radial

import (
	"fmt"
	"strings"

	"radial-config/internal/model"
)

const (
	// RecordSize is the fixed length of every config record on the wire.
	RecordSize = 32
	// HeaderSize covers the device-assigned version and revision bytes.
	HeaderSize = 2
	// PayloadSize is what the host writes back on a binary save.
	PayloadSize = RecordSize - HeaderSize
)

// LayoutVersion tags one of the known fixed-offset record layouts
type LayoutVersion string

const (
	LayoutV1 LayoutVersion = "v1"
	LayoutV2 LayoutVersion = "v2"
	LayoutV3 LayoutVersion = "v3"
)

// DefaultLayout matches current firmware
const DefaultLayout = LayoutV3

// Field places one parameter inside the record
type Field struct {
	Key    string
	Offset int
	Size   int // 1 or 2 bytes, little-endian
	Signed bool
}

// Range returns the values representable by the field
func (f Field) Range() (int, int) {
	bits := uint(f.Size * 8)
	if f.Signed {
		return -(1 << (bits - 1)), (1 << (bits - 1)) - 1
	}
	return 0, (1 << bits) - 1
}

// Layout is a closed description of the record: field placement plus the parameter table
type Layout struct {
	Version    LayoutVersion
	Fields     []Field
	Parameters []model.ConfigParameter
}

// Field looks up the placement of key
func (l *Layout) Field(key string) (Field, bool) {
	for _, f := range l.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// NewParameterSet creates a parameter mirror seeded with the layout defaults
func (l *Layout) NewParameterSet() *model.ParameterSet {
	return model.NewParameterSet(l.Parameters)
}

// LayoutFor resolves a layout by its tag
func LayoutFor(version string) (*Layout, error) {
	l, ok := layouts[LayoutVersion(strings.ToLower(strings.TrimSpace(version)))]
	if !ok {
		return nil, fmt.Errorf("unsupported config layout: %q", version)
	}
	return l, nil
}

// Versions lists the supported layout tags
func Versions() []string {
	return []string{string(LayoutV1), string(LayoutV2), string(LayoutV3)}
}

var (
	ledCount      = model.ConfigParameter{Key: "led_count", Label: "LED count", Min: 1, Max: 255, Value: 12}
	colorOrder    = model.ConfigParameter{Key: "color_order", Label: "LED color order (0=GRB, 1=RGB)", Min: 0, Max: 1, Value: model.ColorOrderGRB}
	brightness    = model.ConfigParameter{Key: "brightness", Label: "Brightness level", Min: 0, Max: 4, Value: 2}
	effectMode    = model.ConfigParameter{Key: "effect_mode", Label: "LED effect mode", Min: 0, Max: 255, Value: 0}
	effectTick    = model.ConfigParameter{Key: "effect_tick", Label: "LED effect period (ms)", Min: 100, Max: 10000, Value: 1000}
	rotateIntv    = model.ConfigParameter{Key: "rotate_interval", Label: "Rotate effect period (ms)", Min: 100, Max: 10000, Value: 1000}
	fadeDuration  = model.ConfigParameter{Key: "fade_duration", Label: "Fade effect duration (ms)", Min: 100, Max: 10000, Value: 500}
	rotateCW      = model.ConfigParameter{Key: "rotate_cw", Label: "Clockwise rotation angle", Min: 0, Max: 360, Value: 15}
	rotateCCW     = model.ConfigParameter{Key: "rotate_ccw", Label: "Counter-clockwise rotation angle", Min: -360, Max: 0, Value: -15}
	stepPerTeeth  = model.ConfigParameter{Key: "step_per_teeth", Label: "Triggers per detent", Min: 1, Max: 2, Value: 1}
	encoderPhase  = model.ConfigParameter{Key: "phase", Label: "Encoder phase (0=A leads, 1=B leads)", Min: 0, Max: 1, Value: model.PhaseALeads}
	layoutV1Table = []model.ConfigParameter{ledCount, colorOrder, brightness, effectMode, effectTick, rotateCW, rotateCCW}
	layoutV2Table = []model.ConfigParameter{ledCount, colorOrder, brightness, effectMode, rotateIntv, fadeDuration, rotateCW, rotateCCW, stepPerTeeth}
	layoutV3Table = append(append([]model.ConfigParameter{}, layoutV2Table...), encoderPhase)
)

var layouts = map[LayoutVersion]*Layout{
	LayoutV1: {
		Version: LayoutV1,
		Fields: []Field{
			{Key: "led_count", Offset: 2, Size: 1},
			{Key: "color_order", Offset: 3, Size: 1},
			{Key: "brightness", Offset: 4, Size: 1},
			{Key: "effect_mode", Offset: 5, Size: 1},
			{Key: "effect_tick", Offset: 6, Size: 2},
			{Key: "rotate_cw", Offset: 8, Size: 2, Signed: true},
			{Key: "rotate_ccw", Offset: 10, Size: 2, Signed: true},
		},
		Parameters: layoutV1Table,
	},
	LayoutV2: {
		Version: LayoutV2,
		Fields: []Field{
			{Key: "led_count", Offset: 2, Size: 1},
			{Key: "color_order", Offset: 3, Size: 1},
			{Key: "brightness", Offset: 4, Size: 1},
			{Key: "effect_mode", Offset: 5, Size: 1},
			{Key: "rotate_interval", Offset: 6, Size: 2},
			{Key: "fade_duration", Offset: 8, Size: 2},
			{Key: "rotate_cw", Offset: 10, Size: 2, Signed: true},
			{Key: "rotate_ccw", Offset: 12, Size: 2, Signed: true},
			{Key: "step_per_teeth", Offset: 14, Size: 1},
		},
		Parameters: layoutV2Table,
	},
	LayoutV3: {
		Version: LayoutV3,
		Fields: []Field{
			{Key: "led_count", Offset: 2, Size: 1},
			{Key: "color_order", Offset: 3, Size: 1},
			{Key: "brightness", Offset: 4, Size: 1},
			{Key: "effect_mode", Offset: 5, Size: 1},
			{Key: "rotate_interval", Offset: 6, Size: 2},
			{Key: "fade_duration", Offset: 8, Size: 2},
			{Key: "rotate_cw", Offset: 10, Size: 2, Signed: true},
			{Key: "rotate_ccw", Offset: 12, Size: 2, Signed: true},
			{Key: "step_per_teeth", Offset: 14, Size: 1},
			{Key: "phase", Offset: 15, Size: 1},
		},
		Parameters: layoutV3Table,
	},
}
