package radial

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"radial-config/internal/model"
	"radial-config/internal/protocol"
	"radial-config/pkg/driver"
)

// fakeTransport is an in-memory device. respond is called for every write and
// may return bytes to feed back to the host.
type fakeTransport struct {
	mu         sync.Mutex
	open       bool
	openErr    error
	closeDelay time.Duration
	closed     chan struct{}
	closeOnce  sync.Once
	incoming   chan []byte
	writes     chan []byte
	respond    func(data []byte) []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		closed:   make(chan struct{}),
		incoming: make(chan []byte, 64),
		writes:   make(chan []byte, 256),
	}
}

// replyTo answers exact command lines
func replyTo(replies map[string]string) func([]byte) []byte {
	return func(data []byte) []byte {
		if reply, ok := replies[string(data)]; ok {
			return []byte(reply)
		}
		return nil
	}
}

func (f *fakeTransport) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.open = true
	return nil
}

func (f *fakeTransport) Close() error {
	if f.closeDelay > 0 {
		time.Sleep(f.closeDelay)
	}
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// unplug makes the port vanish without waking the reader
func (f *fakeTransport) unplug() {
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
}

func (f *fakeTransport) Write(ctx context.Context, data []byte) error {
	if !f.IsOpen() {
		return protocol.ErrPortNotOpen
	}
	msg := append([]byte(nil), data...)
	f.writes <- msg
	if f.respond != nil {
		if reply := f.respond(msg); reply != nil {
			f.incoming <- reply
		}
	}
	return nil
}

func (f *fakeTransport) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	select {
	case data := <-f.incoming:
		return data, nil
	case <-f.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) GetProtocolType() model.ConnectionType {
	return model.ConnectionTypeSerial
}

func (f *fakeTransport) GetStats() protocol.StatsSnapshot {
	return protocol.StatsSnapshot{IsConnected: f.IsOpen()}
}

func (f *fakeTransport) send(data string) {
	f.incoming <- []byte(data)
}

// nextWrite returns the next message written by the host, skipping heartbeats
func (f *fakeTransport) nextWrite(t *testing.T) string {
	t.Helper()
	for {
		select {
		case msg := <-f.writes:
			if string(msg) == "heartbeat\n" {
				continue
			}
			return string(msg)
		case <-time.After(time.Second):
			t.Fatal("no write from host")
			return ""
		}
	}
}

// recordingHandler collects driver events
type recordingHandler struct {
	mu      sync.Mutex
	changes []model.ParameterChange
	status  []string
	alerts  []string
	lostErr error
	seen    chan string
}

var _ driver.EventHandler = (*recordingHandler)(nil)

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{seen: make(chan string, 256)}
}

func (h *recordingHandler) mark(event string) {
	select {
	case h.seen <- event:
	default:
	}
}

func (h *recordingHandler) OnConnected(uuid.UUID, string) { h.mark("connected") }

func (h *recordingHandler) OnDisconnected(uuid.UUID, string) { h.mark("disconnected") }

func (h *recordingHandler) OnConnectionLost(_ uuid.UUID, err error) {
	h.mu.Lock()
	h.lostErr = err
	h.mu.Unlock()
	h.mark("lost")
}

func (h *recordingHandler) OnParameterChanged(_ uuid.UUID, change model.ParameterChange) {
	h.mu.Lock()
	h.changes = append(h.changes, change)
	h.mu.Unlock()
	h.mark("parameter:" + change.Key)
}

func (h *recordingHandler) OnConfigLoaded(uuid.UUID, *driver.DeviceInfo) { h.mark("config_loaded") }

func (h *recordingHandler) OnStatus(_ uuid.UUID, level model.StatusLevel, message string) {
	h.mu.Lock()
	h.status = append(h.status, message)
	h.mu.Unlock()
	h.mark("status:" + string(level))
}

func (h *recordingHandler) OnAlert(_ uuid.UUID, title, message string) {
	h.mu.Lock()
	h.alerts = append(h.alerts, title)
	h.mu.Unlock()
	h.mark("alert")
}

func (h *recordingHandler) waitFor(t *testing.T, event string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-h.seen:
			if got == event {
				return
			}
		case <-deadline:
			t.Fatalf("event %q not observed", event)
		}
	}
}

func (h *recordingHandler) lost() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lostErr
}

func testConfig() *Config {
	cfg := DefaultConfig("/dev/ttyTEST")
	cfg.HandshakeTimeout = 100 * time.Millisecond
	cfg.ResponseTimeout = 150 * time.Millisecond
	cfg.HeartbeatInterval = time.Hour
	cfg.LivenessInterval = time.Hour
	cfg.SetDelay = time.Millisecond
	cfg.CloseTimeout = 50 * time.Millisecond
	cfg.PayloadIdleFlush = 30 * time.Millisecond
	return cfg
}

var errUnplugged = errors.New("device unplugged")
