package radial

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"radial-config/internal/model"
	"radial-config/pkg/driver"
)

const (
	handshakeLine = "config_mode_enabled\n"
	handshakeOK   = "config_mode_enabled_success\n"
)

func newTestDriver(t *testing.T, cfg *Config, transport *fakeTransport) (*Driver, *recordingHandler) {
	t.Helper()
	d, err := NewDriver(cfg, transport, zap.NewNop())
	require.NoError(t, err)
	handler := newRecordingHandler()
	d.SetEventHandler(handler)
	t.Cleanup(func() { _ = d.Close() })
	return d, handler
}

// connectedDriver returns a driver in LIVE; respond handles everything after the handshake
func connectedDriver(t *testing.T, cfg *Config, respond func([]byte) []byte) (*Driver, *fakeTransport, *recordingHandler) {
	t.Helper()
	transport := newFakeTransport()
	transport.respond = func(data []byte) []byte {
		if string(data) == handshakeLine {
			return []byte(handshakeOK)
		}
		if respond != nil {
			return respond(data)
		}
		return nil
	}

	d, handler := newTestDriver(t, cfg, transport)
	require.NoError(t, d.Connect(t.Context()))
	require.Equal(t, handshakeLine, transport.nextWrite(t))
	return d, transport, handler
}

func configLine(record []byte) string {
	return configMarker + string(record) + "\n"
}

func TestConnectEntersLive(t *testing.T) {
	d, transport, handler := connectedDriver(t, testConfig(), nil)

	assert.Equal(t, model.StateLive, d.State())
	assert.True(t, d.IsConnected())
	assert.True(t, transport.IsOpen())
	handler.waitFor(t, "connected")

	metrics, err := d.GetHealthMetrics()
	require.NoError(t, err)
	assert.Equal(t, int64(1), metrics.TotalOperations)
}

func TestConnectHandshakeTimeout(t *testing.T) {
	transport := newFakeTransport()
	d, _ := newTestDriver(t, testConfig(), transport)

	start := time.Now()
	err := d.Connect(t.Context())
	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, model.StateDisconnected, d.State())
	assert.False(t, transport.IsOpen())

	require.ErrorIs(t, d.Connect(t.Context()), ErrSessionClosed)
}

func TestConnectHandshakeRejected(t *testing.T) {
	transport := newFakeTransport()
	transport.respond = replyTo(map[string]string{handshakeLine: "config_mode_timedout\r\n"})
	d, handler := newTestDriver(t, testConfig(), transport)

	err := d.Connect(t.Context())
	require.ErrorIs(t, err, ErrUnexpectedResponse)
	assert.Equal(t, model.StateDisconnected, d.State())
	handler.waitFor(t, "disconnected")
}

func TestConnectIgnoresHeartbeatEcho(t *testing.T) {
	transport := newFakeTransport()
	transport.respond = replyTo(map[string]string{handshakeLine: "heartbeat\n" + handshakeOK})
	d, _ := newTestDriver(t, testConfig(), transport)

	require.NoError(t, d.Connect(t.Context()))
	assert.Equal(t, model.StateLive, d.State())
}

func TestConnectOpenFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.openErr = errUnplugged
	d, handler := newTestDriver(t, testConfig(), transport)

	err := d.Connect(t.Context())
	require.ErrorIs(t, err, ErrTransportUnavailable)
	require.ErrorIs(t, err, errUnplugged)
	assert.Equal(t, model.StateDisconnected, d.State())
	handler.waitFor(t, "status:error")

	require.ErrorIs(t, d.LoadSettings(t.Context()), ErrNotConnected)
}

func TestCommandsRequireConnection(t *testing.T) {
	d, _ := newTestDriver(t, testConfig(), newFakeTransport())

	require.ErrorIs(t, d.LoadSettings(t.Context()), ErrNotConnected)
	require.ErrorIs(t, d.SaveSettings(t.Context()), ErrNotConnected)
	require.ErrorIs(t, d.ResetSettings(t.Context()), ErrNotConnected)
}

func TestUnsolicitedKeyValueUpdatesParameter(t *testing.T) {
	d, transport, handler := connectedDriver(t, testConfig(), nil)

	transport.send("led_count=5\n")
	handler.waitFor(t, "parameter:led_count")

	p, ok := d.params.Get("led_count")
	require.True(t, ok)
	assert.Equal(t, 5, p.Value)
	assert.Equal(t, model.StateLive, d.State())
}

func TestLoadSettingsDecodesRecord(t *testing.T) {
	record := v3Record(t)
	d, _, handler := connectedDriver(t, testConfig(), replyTo(map[string]string{
		"load_settings\n": configLine(record) + "load_settings_success\n",
	}))

	require.NoError(t, d.LoadSettings(t.Context()))
	handler.waitFor(t, "config_loaded")

	values := map[string]int{}
	for _, p := range d.Parameters() {
		values[p.Key] = p.Value
	}
	assert.Equal(t, 24, values["led_count"])
	assert.Equal(t, 1500, values["rotate_interval"])
	assert.Equal(t, -90, values["rotate_ccw"])
	assert.Equal(t, 1, values["phase"])

	info, err := d.GetDeviceInfo()
	require.NoError(t, err)
	assert.Equal(t, "3.7", info.FirmwareVersion)
	assert.Equal(t, "v3", info.Layout)
}

func TestLoadSettingsPayloadWithTerminators(t *testing.T) {
	record := v3Record(t)
	record[2] = '\n'
	record[20] = '\n'
	d, transport, _ := connectedDriver(t, testConfig(), nil)

	line := []byte(configLine(record))
	transport.respond = func(data []byte) []byte {
		if string(data) != "load_settings\n" {
			return nil
		}
		go func() {
			for _, b := range line {
				transport.incoming <- []byte{b}
			}
		}()
		return nil
	}

	require.NoError(t, d.LoadSettings(t.Context()))
	assert.Equal(t, 10, d.params.Value("led_count"))
}

func TestShortConfigPayloadSkipped(t *testing.T) {
	d, transport, handler := connectedDriver(t, testConfig(), nil)
	before := d.params.Values()

	transport.send(configMarker + string(bytes.Repeat([]byte{0x01}, 20)))
	handler.waitFor(t, "status:warning")

	assert.Equal(t, before, d.params.Values())
	assert.Equal(t, model.StateLive, d.State())
}

func TestShortConfigFailsLoad(t *testing.T) {
	d, _, _ := connectedDriver(t, testConfig(), replyTo(map[string]string{
		"load_settings\n": configMarker + string(make([]byte, 20)),
	}))

	err := d.LoadSettings(t.Context())
	require.ErrorIs(t, err, ErrShortBuffer)
	assert.Equal(t, model.StateLive, d.State())
}

func TestSaveSettingsBinary(t *testing.T) {
	var saved []byte
	d, transport, _ := connectedDriver(t, testConfig(), func(data []byte) []byte {
		if bytes.HasPrefix(data, []byte("save_settings=")) {
			return []byte("save_settings_success\n")
		}
		return nil
	})

	_, err := d.SetParameter("brightness", 4)
	require.NoError(t, err)
	require.NoError(t, d.SaveSettings(t.Context()))

	saved = []byte(transport.nextWrite(t))
	require.Len(t, saved, len("save_settings=")+PayloadSize+1)
	assert.Equal(t, byte('\n'), saved[len(saved)-1])

	payload := saved[len("save_settings=") : len(saved)-1]
	assert.Equal(t, byte(12), payload[0])
	assert.Equal(t, byte(4), payload[2])
}

func TestSaveSettingsText(t *testing.T) {
	cfg := testConfig()
	cfg.SaveMode = driver.SaveModeText
	d, transport, _ := connectedDriver(t, cfg, replyTo(map[string]string{
		"save_settings\n": "save_settings_success\n",
	}))

	require.NoError(t, d.SaveSettings(t.Context()))

	var sent []string
	for range d.params.Keys() {
		sent = append(sent, transport.nextWrite(t))
	}
	assert.Equal(t, "set_led_count=12\n", sent[0])
	assert.Equal(t, "set_rotate_ccw=-15\n", sent[7])
	assert.Equal(t, "save_settings\n", transport.nextWrite(t))
}

func TestSaveSettingsTimesOutOnNonMatchingLines(t *testing.T) {
	d, _, handler := connectedDriver(t, testConfig(), func(data []byte) []byte {
		if bytes.HasPrefix(data, []byte("save_settings=")) {
			return []byte("load_settings_success\nled_count=7\nheartbeat\n")
		}
		return nil
	})

	err := d.SaveSettings(t.Context())
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, model.StateLive, d.State())
	assert.Equal(t, 7, d.params.Value("led_count"))
	handler.waitFor(t, "status:error")
}

func TestSaveSettingsRejected(t *testing.T) {
	d, _, _ := connectedDriver(t, testConfig(), func(data []byte) []byte {
		if bytes.HasPrefix(data, []byte("save_settings=")) {
			return []byte("save_settings_failed\n")
		}
		return nil
	})

	err := d.SaveSettings(t.Context())
	require.ErrorIs(t, err, ErrSaveFailed)
	require.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestResetSettingsReloads(t *testing.T) {
	record := v3Record(t)
	d, _, _ := connectedDriver(t, testConfig(), replyTo(map[string]string{
		"reset_settings\n": "reset_settings_success\n",
		"load_settings\n":  configLine(record),
	}))

	require.NoError(t, d.ResetSettings(t.Context()))
	assert.Equal(t, 24, d.params.Value("led_count"))
}

func TestModeTimedOutLosesConnection(t *testing.T) {
	d, transport, handler := connectedDriver(t, testConfig(), nil)

	transport.send("config_mode_timedout\n")
	handler.waitFor(t, "lost")
	handler.waitFor(t, "alert")

	assert.Equal(t, model.StateDisconnected, d.State())
	require.ErrorIs(t, handler.lost(), ErrConnectionLost)
	require.ErrorIs(t, d.LoadSettings(t.Context()), ErrNotConnected)
	require.ErrorIs(t, d.Connect(t.Context()), ErrSessionClosed)
}

func TestPendingRequestDiscardedOnLoss(t *testing.T) {
	d, _, _ := connectedDriver(t, testConfig(), replyTo(map[string]string{
		"load_settings\n": "config_mode_timedout\n",
	}))

	err := d.LoadSettings(t.Context())
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, err, ErrConnectionLost)
	assert.Equal(t, model.StateDisconnected, d.State())
}

func TestReadErrorLosesConnection(t *testing.T) {
	d, transport, handler := connectedDriver(t, testConfig(), nil)

	require.NoError(t, transport.Close())
	handler.waitFor(t, "lost")
	assert.Equal(t, model.StateDisconnected, d.State())
}

func TestLivenessPollDetectsVanishedPort(t *testing.T) {
	cfg := testConfig()
	cfg.LivenessInterval = 20 * time.Millisecond
	d, transport, handler := connectedDriver(t, cfg, nil)

	transport.unplug()
	handler.waitFor(t, "lost")
	assert.Equal(t, model.StateDisconnected, d.State())
}

func TestHeartbeatSentWhileLive(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	d, transport, _ := connectedDriver(t, cfg, nil)

	deadline := time.After(time.Second)
	heartbeats := 0
	for heartbeats < 2 {
		select {
		case msg := <-transport.writes:
			if string(msg) == "heartbeat\n" {
				heartbeats++
			}
		case <-deadline:
			t.Fatal("heartbeat not sent")
		}
	}
	assert.Equal(t, model.StateLive, d.State())
}

func TestDisconnect(t *testing.T) {
	d, transport, handler := connectedDriver(t, testConfig(), nil)

	require.NoError(t, d.Disconnect(t.Context()))
	handler.waitFor(t, "disconnected")
	assert.Equal(t, model.StateDisconnected, d.State())
	assert.False(t, transport.IsOpen())

	require.NoError(t, d.Disconnect(t.Context()))
	require.ErrorIs(t, d.Connect(t.Context()), ErrSessionClosed)
}

func TestDisconnectAbandonsSlowClose(t *testing.T) {
	d, transport, _ := connectedDriver(t, testConfig(), nil)
	transport.closeDelay = 2 * time.Second

	start := time.Now()
	require.NoError(t, d.Disconnect(t.Context()))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, model.StateDisconnected, d.State())
}

func TestSetParameter(t *testing.T) {
	d, handler := newTestDriver(t, testConfig(), newFakeTransport())

	change, err := d.SetParameter("rotate_cw", 400)
	require.NoError(t, err)
	assert.True(t, change.Clamped)
	assert.Equal(t, 360, change.Value)
	handler.waitFor(t, "parameter:rotate_cw")

	_, err = d.SetParameter("sparkle", 1)
	require.ErrorIs(t, err, ErrUnknownParameter)
}

func TestNewDriverValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Layout = "v7"
	_, err := NewDriver(cfg, newFakeTransport(), zap.NewNop())
	assert.Error(t, err)

	cfg = testConfig()
	cfg.SaveMode = "morse"
	_, err = NewDriver(cfg, newFakeTransport(), zap.NewNop())
	assert.Error(t, err)

	_, err = NewDriver(testConfig(), nil, zap.NewNop())
	require.ErrorIs(t, err, ErrTransportUnavailable)
}

func TestGetStatus(t *testing.T) {
	d, transport, _ := connectedDriver(t, testConfig(), nil)
	transport.send("booting\n")

	require.Eventually(t, func() bool {
		status, err := d.GetStatus()
		return err == nil && !status.LastResponse.IsZero()
	}, time.Second, 10*time.Millisecond)

	status, err := d.GetStatus()
	require.NoError(t, err)
	assert.True(t, status.IsReady)
	assert.Equal(t, model.StateLive, status.State)
	assert.NotEqual(t, uuid.Nil, d.SessionID())
}
