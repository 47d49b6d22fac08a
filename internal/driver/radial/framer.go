// internal/driver/radial/framer.go
package radial

import "bytes"

const (
	lineTerminator = '\n'
	configMarker   = "config="
)

// Frame is one framed line with its terminator removed
type Frame struct {
	Data []byte
	// Binary marks a config line whose payload was extracted by length
	Binary bool
	// Partial marks a binary frame flushed before its payload completed
	Partial bool
}

// Payload returns the bytes following the config marker of a binary frame
func (f Frame) Payload() []byte {
	if !f.Binary || len(f.Data) < len(configMarker) {
		return nil
	}
	return f.Data[len(configMarker):]
}

// Framer splits an unaligned byte stream into lines. A line starting with the
// config marker carries a fixed-length binary payload that may contain any byte,
// terminator included; the terminator scan for that line starts after the payload.
type Framer struct {
	buf        []byte
	payloadLen int
}

// NewFramer creates a framer for config payloads of payloadLen bytes
func NewFramer(payloadLen int) *Framer {
	return &Framer{payloadLen: payloadLen}
}

// Feed appends chunk to the receive buffer and returns every completed line in order
func (f *Framer) Feed(chunk []byte) []Frame {
	f.buf = append(f.buf, chunk...)

	var frames []Frame
	consumed := 0
	for {
		rest := f.buf[consumed:]
		if len(rest) == 0 {
			break
		}

		if bytes.HasPrefix(rest, []byte(configMarker)) {
			need := len(configMarker) + f.payloadLen
			if len(rest) < need {
				break
			}
			idx := bytes.IndexByte(rest[need:], lineTerminator)
			if idx < 0 {
				break
			}
			end := need + idx
			frames = append(frames, Frame{Data: clone(rest[:end]), Binary: true})
			consumed += end + 1
			continue
		}

		idx := bytes.IndexByte(rest, lineTerminator)
		if idx < 0 {
			break
		}
		frames = append(frames, Frame{Data: clone(rest[:idx])})
		consumed += idx + 1
	}

	if consumed > 0 {
		f.buf = append([]byte(nil), f.buf[consumed:]...)
	}
	return frames
}

// PendingPayload reports whether the buffer holds an incomplete config line
func (f *Framer) PendingPayload() bool {
	return bytes.HasPrefix(f.buf, []byte(configMarker))
}

// Flush emits an incomplete config line as a partial frame. Text lines are
// never flushed; they wait for their terminator indefinitely.
func (f *Framer) Flush() (Frame, bool) {
	if !f.PendingPayload() {
		return Frame{}, false
	}
	frame := Frame{Data: f.buf, Binary: true, Partial: true}
	f.buf = nil
	return frame, true
}

// Buffered returns the number of bytes awaiting a terminator
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset discards buffered data
func (f *Framer) Reset() {
	f.buf = nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
