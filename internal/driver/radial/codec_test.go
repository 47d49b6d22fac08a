package radial

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radial-config/internal/model"
)

func v3Record(t *testing.T) []byte {
	t.Helper()
	b := make([]byte, RecordSize)
	b[0], b[1] = 3, 7
	b[2] = 24 // led_count
	b[3] = 1  // color_order
	b[4] = 3  // brightness
	b[5] = 0  // effect_mode
	binary.LittleEndian.PutUint16(b[6:], 1500)
	binary.LittleEndian.PutUint16(b[8:], 750)
	binary.LittleEndian.PutUint16(b[10:], uint16(int16(90)))
	binary.LittleEndian.PutUint16(b[12:], uint16(0xFFA6)) // -90
	b[14] = 2
	b[15] = 1
	return b
}

func TestDecodeV3(t *testing.T) {
	layout, err := LayoutFor("v3")
	require.NoError(t, err)

	record, err := layout.Decode(v3Record(t))
	require.NoError(t, err)
	assert.Equal(t, uint8(3), record.Version)
	assert.Equal(t, uint8(7), record.Revision)
	assert.Equal(t, map[string]int{
		"led_count":       24,
		"color_order":     1,
		"brightness":      3,
		"effect_mode":     0,
		"rotate_interval": 1500,
		"fade_duration":   750,
		"rotate_cw":       90,
		"rotate_ccw":      -90,
		"step_per_teeth":  2,
		"phase":           1,
	}, record.Values)
}

func TestDecodeShortBuffer(t *testing.T) {
	layout, err := LayoutFor("v3")
	require.NoError(t, err)

	_, err = layout.Decode(make([]byte, 20))
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	for _, version := range Versions() {
		t.Run(version, func(t *testing.T) {
			layout, err := LayoutFor(version)
			require.NoError(t, err)

			// Build a valid record from the layout's own defaults, shifted inside range.
			ps := layout.NewParameterSet()
			for _, p := range ps.Snapshot() {
				_, err := ps.Set(p.Key, p.Max-(p.Max-p.Min)/3)
				require.NoError(t, err)
			}
			payload := layout.Encode(ps.Snapshot())
			require.Len(t, payload, PayloadSize)

			wire := append([]byte{9, 4}, payload...)
			record, err := layout.Decode(wire)
			require.NoError(t, err)

			decoded := layout.NewParameterSet()
			decoded.Apply(record.Values)
			assert.Equal(t, wire[HeaderSize:], layout.Encode(decoded.Snapshot()))
		})
	}
}

func TestEncodeRoundTripsDeviceRecord(t *testing.T) {
	layout, err := LayoutFor("v3")
	require.NoError(t, err)

	wire := v3Record(t)
	record, err := layout.Decode(wire)
	require.NoError(t, err)

	ps := layout.NewParameterSet()
	ps.Apply(record.Values)
	assert.Equal(t, wire[HeaderSize:], layout.Encode(ps.Snapshot()))
}

func TestEncodeZeroFillsReserved(t *testing.T) {
	layout, err := LayoutFor("v1")
	require.NoError(t, err)

	payload := layout.Encode(layout.Parameters)
	require.Len(t, payload, PayloadSize)
	for i := 12 - HeaderSize; i < PayloadSize; i++ {
		assert.Zero(t, payload[i], "reserved byte %d", i+HeaderSize)
	}
}

func TestDecodedOutOfRangeValuesAreClamped(t *testing.T) {
	layout, err := LayoutFor("v3")
	require.NoError(t, err)

	wire := v3Record(t)
	wire[2] = 0   // led_count below min
	wire[4] = 200 // brightness above max
	binary.LittleEndian.PutUint16(wire[6:], 50)
	binary.LittleEndian.PutUint16(wire[12:], uint16(int16(100))) // rotate_ccw above max

	record, err := layout.Decode(wire)
	require.NoError(t, err)

	ps := layout.NewParameterSet()
	changes := ps.Apply(record.Values)
	require.NotEmpty(t, changes)
	for _, p := range ps.Snapshot() {
		assert.True(t, p.InRange(), "%s=%d outside [%d,%d]", p.Key, p.Value, p.Min, p.Max)
	}
	assert.Equal(t, 1, ps.Value("led_count"))
	assert.Equal(t, 4, ps.Value("brightness"))
	assert.Equal(t, 100, ps.Value("rotate_interval"))
	assert.Equal(t, 0, ps.Value("rotate_ccw"))
}

func TestEncodeClampsToFieldWidth(t *testing.T) {
	layout := &Layout{
		Version:    "test",
		Fields:     []Field{{Key: "x", Offset: 2, Size: 1}},
		Parameters: []model.ConfigParameter{{Key: "x", Min: -10, Max: 1000}},
	}
	payload := layout.Encode([]model.ConfigParameter{{Key: "x", Value: 900}})
	assert.Equal(t, byte(255), payload[0])

	payload = layout.Encode([]model.ConfigParameter{{Key: "x", Value: -5}})
	assert.Equal(t, byte(0), payload[0])
}

func TestLayoutFor(t *testing.T) {
	_, err := LayoutFor("v9")
	require.Error(t, err)

	l, err := LayoutFor(" V2 ")
	require.NoError(t, err)
	assert.Equal(t, LayoutV2, l.Version)
	for _, f := range l.Fields {
		assert.True(t, f.Offset >= HeaderSize && f.Offset+f.Size <= RecordSize, f.Key)
		assert.True(t, l.NewParameterSet().Has(f.Key), f.Key)
	}
}
