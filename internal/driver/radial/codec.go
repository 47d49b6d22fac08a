// internal/driver/radial/codec.go
package radial

import (
	"encoding/binary"
	"fmt"

	"radial-config/internal/model"
)

// ConfigRecord is the decoded binary form of the device configuration
type ConfigRecord struct {
	Version  uint8          `json:"version"`
	Revision uint8          `json:"revision"`
	Values   map[string]int `json:"values"`
}

// Decode parses a record from b. Fields are read at fixed offsets; at least
// RecordSize bytes are required and anything beyond is ignored.
func (l *Layout) Decode(b []byte) (*ConfigRecord, error) {
	if len(b) < RecordSize {
		return nil, fmt.Errorf("%w: got %d of %d bytes", ErrShortBuffer, len(b), RecordSize)
	}

	record := &ConfigRecord{
		Version:  b[0],
		Revision: b[1],
		Values:   make(map[string]int, len(l.Fields)),
	}
	for _, f := range l.Fields {
		record.Values[f.Key] = readField(b, f)
	}
	return record, nil
}

// Encode writes params into a save payload: the record without its two header
// bytes, with reserved space zero-filled. Parameters missing from params are
// written with the layout default.
func (l *Layout) Encode(params []model.ConfigParameter) []byte {
	values := make(map[string]int, len(params))
	for _, p := range params {
		values[p.Key] = p.Value
	}

	record := make([]byte, RecordSize)
	for _, f := range l.Fields {
		def := l.parameter(f.Key)
		v, ok := values[f.Key]
		if !ok {
			v = def.Value
		}
		writeField(record, f, def.Clamp(v))
	}
	return record[HeaderSize:]
}

func (l *Layout) parameter(key string) model.ConfigParameter {
	for _, p := range l.Parameters {
		if p.Key == key {
			return p
		}
	}
	return model.ConfigParameter{Key: key}
}

func readField(b []byte, f Field) int {
	switch f.Size {
	case 1:
		if f.Signed {
			return int(int8(b[f.Offset]))
		}
		return int(b[f.Offset])
	default:
		raw := binary.LittleEndian.Uint16(b[f.Offset:])
		if f.Signed {
			return int(int16(raw))
		}
		return int(raw)
	}
}

func writeField(b []byte, f Field, v int) {
	lo, hi := f.Range()
	if v < lo {
		v = lo
	} else if v > hi {
		v = hi
	}
	switch f.Size {
	case 1:
		b[f.Offset] = byte(v)
	default:
		binary.LittleEndian.PutUint16(b[f.Offset:], uint16(v))
	}
}
