package radial

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBuilderText(t *testing.T) {
	b := NewCommandBuilder()

	data, err := b.Text(Commands.EnableConfigMode)
	require.NoError(t, err)
	assert.Equal(t, []byte("config_mode_enabled\n"), data)

	data, err = b.Set("rotate_ccw", -15)
	require.NoError(t, err)
	assert.Equal(t, []byte("set_rotate_ccw=-15\n"), data)
}

func TestCommandBuilderSingleByteCharset(t *testing.T) {
	b := NewCommandBuilder()

	data, err := b.Text("café")
	require.NoError(t, err)
	assert.Equal(t, []byte{'c', 'a', 'f', 0xE9, '\n'}, data)

	_, err = b.Text("中")
	require.Error(t, err)
}

func TestCommandBuilderSave(t *testing.T) {
	b := NewCommandBuilder()
	payload := bytes.Repeat([]byte{'\n'}, PayloadSize)

	data, err := b.Save(payload)
	require.NoError(t, err)
	require.Len(t, data, len("save_settings=")+PayloadSize+1)
	assert.True(t, bytes.HasPrefix(data, []byte("save_settings=")))
	assert.Equal(t, payload, data[len("save_settings="):len(data)-1])
	assert.Equal(t, byte('\n'), data[len(data)-1])

	_, err = b.Save(payload[:10])
	require.Error(t, err)
}

func TestDecodeTextLatin1(t *testing.T) {
	assert.Equal(t, "café", decodeText([]byte{'c', 'a', 'f', 0xE9}))
}
