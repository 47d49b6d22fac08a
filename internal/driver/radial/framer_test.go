package radial

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameStrings(frames []Frame) []string {
	out := make([]string, len(frames))
	for n, f := range frames {
		out[n] = string(f.Data)
	}
	return out
}

// feedSplit delivers stream to a fresh framer with chunk boundaries at cuts.
func feedSplit(stream []byte, cuts ...int) []Frame {
	f := NewFramer(RecordSize)
	var frames []Frame
	prev := 0
	for _, cut := range cuts {
		frames = append(frames, f.Feed(stream[prev:cut])...)
		prev = cut
	}
	return append(frames, f.Feed(stream[prev:])...)
}

func TestFramerChunkedText(t *testing.T) {
	frames := feedSplit([]byte("abc\nde\n"), 2, 4)
	assert.Equal(t, []string{"abc", "de"}, frameStrings(frames))
}

func TestFramerAnyChunkSplit(t *testing.T) {
	stream := []byte("abc\nde\n")
	for i := 0; i <= len(stream); i++ {
		for j := i; j <= len(stream); j++ {
			frames := feedSplit(stream, i, j)
			require.Equal(t, []string{"abc", "de"}, frameStrings(frames), "cuts %d,%d", i, j)
		}
	}
}

func TestFramerRetainsPartialLine(t *testing.T) {
	f := NewFramer(RecordSize)
	assert.Empty(t, f.Feed([]byte("led_co")))
	assert.Equal(t, 6, f.Buffered())
	assert.Empty(t, f.Feed([]byte("unt=5")))
	frames := f.Feed([]byte("\r\n"))
	assert.Equal(t, []string{"led_count=5\r"}, frameStrings(frames))
	assert.Zero(t, f.Buffered())
}

func configFrame(payload []byte, trailing string) []byte {
	line := append([]byte(configMarker), payload...)
	line = append(line, trailing...)
	return append(line, '\n')
}

func TestFramerConfigPayloadWithTerminator(t *testing.T) {
	payload := bytes.Repeat([]byte{'\n'}, RecordSize)
	payload[0] = 3
	stream := append(configFrame(payload, ""), []byte("load_settings_success\n")...)

	for cut := 0; cut <= len(stream); cut++ {
		frames := feedSplit(stream, cut)
		require.Len(t, frames, 2, "cut %d", cut)
		assert.True(t, frames[0].Binary)
		assert.Equal(t, payload, frames[0].Payload())
		assert.Equal(t, "load_settings_success", string(frames[1].Data))
	}
}

func TestFramerConfigTrailingBytes(t *testing.T) {
	payload := make([]byte, RecordSize)
	stream := append(configFrame(payload, "\r"), []byte("ok\n")...)

	frames := feedSplit(stream, 5, 20)
	require.Len(t, frames, 2)
	assert.Equal(t, append(append([]byte{}, payload...), '\r'), frames[0].Payload())
	assert.Equal(t, "ok", string(frames[1].Data))
}

func TestFramerConfigAfterText(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, RecordSize)
	stream := append([]byte("heartbeat\n"), configFrame(payload, "")...)

	frames := feedSplit(stream, 12)
	require.Len(t, frames, 2)
	assert.False(t, frames[0].Binary)
	assert.True(t, frames[1].Binary)
	assert.Equal(t, payload, frames[1].Payload())
}

func TestFramerFlushPartialPayload(t *testing.T) {
	f := NewFramer(RecordSize)
	assert.Empty(t, f.Feed(append([]byte(configMarker), make([]byte, 20)...)))
	assert.True(t, f.PendingPayload())

	frame, ok := f.Flush()
	require.True(t, ok)
	assert.True(t, frame.Partial)
	assert.Len(t, frame.Payload(), 20)
	assert.Zero(t, f.Buffered())

	_, ok = f.Flush()
	assert.False(t, ok)
}

func TestFramerNeverFlushesText(t *testing.T) {
	f := NewFramer(RecordSize)
	f.Feed([]byte("partial text"))
	_, ok := f.Flush()
	assert.False(t, ok)
	assert.Equal(t, 12, f.Buffered())

	f.Reset()
	assert.Zero(t, f.Buffered())
}
