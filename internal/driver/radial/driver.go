// internal/driver/radial/driver.go
package radial

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"radial-config/internal/model"
	"radial-config/internal/protocol"
	"radial-config/internal/utils"
	"radial-config/pkg/driver"
)

const (
	eventOpen   = "open"
	eventEnable = "enable"
	eventReject = "reject"
	eventLose   = "lose"
	eventClose  = "close"
)

// ModelName identifies the device family this driver speaks to
const ModelName = "radial-encoder-ring"

// Config holds the settings of one connection attempt
type Config struct {
	Port              string
	Layout            LayoutVersion
	SaveMode          driver.SaveMode
	HandshakeTimeout  time.Duration
	ResponseTimeout   time.Duration
	HeartbeatInterval time.Duration
	LivenessInterval  time.Duration
	SetDelay          time.Duration
	CloseTimeout      time.Duration
	PayloadIdleFlush  time.Duration
	ReadChunk         int
	AmbientBuffer     int
}

// DefaultConfig returns the timings the device firmware expects
func DefaultConfig(port string) *Config {
	return &Config{
		Port:              port,
		Layout:            DefaultLayout,
		SaveMode:          driver.SaveModeBinary,
		HandshakeTimeout:  time.Second,
		ResponseTimeout:   2 * time.Second,
		HeartbeatInterval: time.Second,
		LivenessInterval:  5 * time.Second,
		SetDelay:          10 * time.Millisecond,
		CloseTimeout:      500 * time.Millisecond,
		PayloadIdleFlush:  500 * time.Millisecond,
		ReadChunk:         64,
		AmbientBuffer:     256,
	}
}

// Driver implements driver.ConfigDriver over a byte-stream transport. A Driver
// serves one connection attempt; once it returns to DISCONNECTED it cannot be
// reconnected.
type Driver struct {
	config   *Config
	protocol protocol.DeviceProtocol
	logger   *utils.SessionLogger
	layout   *Layout
	params   *model.ParameterSet
	builder  *CommandBuilder
	machine  *fsm.FSM
	session  *session

	eventHandler  driver.EventHandler
	deviceInfo    *driver.DeviceInfo
	healthMetrics *driver.HealthMetrics
	mutex         sync.RWMutex

	// opMutex serializes commands so at most one request is in flight
	opMutex      sync.Mutex
	started      *atomic.Bool
	lastResponse *atomic.Time
	pendingName  *atomic.String

	requests chan *request
	stopped  chan struct{}
}

var _ driver.ConfigDriver = (*Driver)(nil)

// NewDriver creates a driver speaking to the device over transport
func NewDriver(config *Config, transport protocol.DeviceProtocol, logger *zap.Logger) (*Driver, error) {
	if config == nil {
		return nil, errors.New("radial: config is required")
	}
	if transport == nil {
		return nil, ErrTransportUnavailable
	}

	layout, err := LayoutFor(string(config.Layout))
	if err != nil {
		return nil, err
	}

	switch config.SaveMode {
	case driver.SaveModeBinary, driver.SaveModeText:
	default:
		return nil, fmt.Errorf("unsupported save mode: %q", config.SaveMode)
	}

	if config.ReadChunk <= 0 {
		config.ReadChunk = 64
	}
	if config.AmbientBuffer <= 0 {
		config.AmbientBuffer = 256
	}

	sessionLogger := utils.NewSessionLogger(logger, uuid.New(), config.Port)

	d := &Driver{
		config:        config,
		protocol:      transport,
		logger:        sessionLogger,
		layout:        layout,
		params:        layout.NewParameterSet(),
		builder:       NewCommandBuilder(),
		healthMetrics: &driver.HealthMetrics{},
		deviceInfo: &driver.DeviceInfo{
			Model:          ModelName,
			Port:           config.Port,
			Layout:         string(layout.Version),
			ConnectionType: transport.GetProtocolType(),
		},
		started:      atomic.NewBool(false),
		lastResponse: atomic.NewTime(time.Time{}),
		pendingName:  atomic.NewString(""),
		requests:     make(chan *request),
		stopped:      make(chan struct{}),
	}
	d.session = newSession(d)
	d.machine = d.newStateMachine()

	return d, nil
}

func (d *Driver) newStateMachine() *fsm.FSM {
	disconnected := string(model.StateDisconnected)
	handshaking := string(model.StateHandshaking)
	live := string(model.StateLive)

	return fsm.NewFSM(
		disconnected,
		fsm.Events{
			{Name: eventOpen, Src: []string{disconnected}, Dst: handshaking},
			{Name: eventEnable, Src: []string{handshaking}, Dst: live},
			{Name: eventReject, Src: []string{handshaking}, Dst: disconnected},
			{Name: eventLose, Src: []string{handshaking, live}, Dst: disconnected},
			{Name: eventClose, Src: []string{handshaking, live}, Dst: disconnected},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				d.logger.LogTransition(e.Event, e.Src, e.Dst)
			},
			"enter_" + live: func(_ context.Context, _ *fsm.Event) {
				d.session.startTimers()
			},
			"enter_" + disconnected: func(_ context.Context, _ *fsm.Event) {
				d.session.stopTimers()
			},
		},
	)
}

// Connect opens the transport and switches the device into config mode
func (d *Driver) Connect(ctx context.Context) error {
	d.opMutex.Lock()
	defer d.opMutex.Unlock()

	if !d.started.CompareAndSwap(false, true) {
		return ErrSessionClosed
	}

	op := utils.NewOperationLogger(d.logger.Logger, "connect", d.logger.SessionID().String())
	op.Start()

	if err := d.protocol.Open(ctx); err != nil {
		err = fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
		close(d.stopped)
		d.logger.LogConnection("open", false, err)
		d.notifyStatus(model.StatusError, fmt.Sprintf("Failed to open %s: %v", d.config.Port, err))
		d.updateHealthMetrics(false, op.Elapsed())
		return err
	}

	if err := d.machine.Event(ctx, eventOpen); err != nil {
		d.protocol.Close()
		close(d.stopped)
		return fmt.Errorf("failed to start handshake: %w", err)
	}

	d.session.start()
	d.notifyStatus(model.StatusInfo, "Enabling config mode...")

	payload, err := d.builder.Text(Commands.EnableConfigMode)
	if err != nil {
		d.shutdown()
		return err
	}

	expected := AnyKind(KindModeTimedOut)
	line, err := d.exchange(ctx, &request{
		name:      Commands.EnableConfigMode,
		payloads:  [][]byte{payload},
		expected:  &expected,
		timeout:   d.config.HandshakeTimeout,
		handshake: true,
	})
	if err == nil && line.Kind != KindModeEnabled {
		err = fmt.Errorf("%w: handshake answered %q", ErrUnexpectedResponse, line.Text)
	}
	if err != nil {
		d.shutdown()
		op.Error(err)
		d.logger.LogConnection("handshake", false, err)
		d.updateHealthMetrics(false, op.Elapsed())
		d.notifyStatus(model.StatusError, fmt.Sprintf("Failed to enable config mode: %v", err))
		return err
	}

	op.Success()
	d.logger.LogConnection("handshake", true, nil)
	d.updateHealthMetrics(true, op.Elapsed())
	return nil
}

// Disconnect tears the session down. It is idempotent.
func (d *Driver) Disconnect(ctx context.Context) error {
	// never connected: spend the handle
	if d.started.CompareAndSwap(false, true) {
		close(d.stopped)
		return nil
	}

	req := &request{name: eventClose, close: true, ack: make(chan ack, 1)}
	select {
	case d.requests <- req:
		<-req.ack
	case <-d.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-d.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsConnected reports whether the device is in config mode
func (d *Driver) IsConnected() bool {
	return d.State().IsLive() && d.protocol.IsOpen()
}

// State returns the current connection state
func (d *Driver) State() model.ConnectionState {
	return model.ConnectionState(d.machine.Current())
}

// SessionID identifies this connection attempt
func (d *Driver) SessionID() uuid.UUID {
	return d.logger.SessionID()
}

// GetDeviceInfo returns device information
func (d *Driver) GetDeviceInfo() (*driver.DeviceInfo, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	info := *d.deviceInfo
	return &info, nil
}

// GetStatus returns current connection status
func (d *Driver) GetStatus() (*driver.DeviceStatus, error) {
	state := d.State()
	stats := d.protocol.GetStats()
	return &driver.DeviceStatus{
		State:          state,
		IsReady:        state.IsLive(),
		PendingCommand: d.pendingName.Load(),
		LastResponse:   d.lastResponse.Load(),
		BytesRead:      stats.BytesRead,
		BytesWritten:   stats.BytesWritten,
	}, nil
}

// GetHealthMetrics returns health metrics
func (d *Driver) GetHealthMetrics() (*driver.HealthMetrics, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	metrics := *d.healthMetrics
	return &metrics, nil
}

// Parameters returns the current parameter mirror in declared order
func (d *Driver) Parameters() []model.ConfigParameter {
	return d.params.Snapshot()
}

// SetParameter updates one parameter locally, clamped into range. The value
// reaches the device on the next save.
func (d *Driver) SetParameter(key string, value int) (model.ParameterChange, error) {
	change, err := d.params.Set(key, value)
	if err != nil {
		return model.ParameterChange{}, fmt.Errorf("%w: %q", ErrUnknownParameter, key)
	}
	if change.Changed() || change.Clamped {
		d.notifyParameterChanged(change)
	}
	return change, nil
}

// LoadSettings asks the device for its stored configuration
func (d *Driver) LoadSettings(ctx context.Context) error {
	d.opMutex.Lock()
	defer d.opMutex.Unlock()
	return d.load(ctx)
}

func (d *Driver) load(ctx context.Context) error {
	payload, err := d.builder.Text(Commands.LoadSettings)
	if err != nil {
		return err
	}

	expected := KindsOf(KindConfigLoaded, KindLoadSuccess, KindInvalid)
	line, err := d.command(ctx, &request{
		name:     Commands.LoadSettings,
		payloads: [][]byte{payload},
		expected: &expected,
		timeout:  d.config.ResponseTimeout,
	})
	if err == nil && line.Kind == KindInvalid {
		err = line.Err
	}
	if err != nil {
		d.notifyStatus(model.StatusError, fmt.Sprintf("Failed to load settings: %v", err))
		return err
	}

	d.notifyStatus(model.StatusSuccess, "Settings loaded")
	return nil
}

// SaveSettings writes the parameter mirror to the device
func (d *Driver) SaveSettings(ctx context.Context) error {
	d.opMutex.Lock()
	defer d.opMutex.Unlock()

	payloads, err := d.savePayloads()
	if err != nil {
		return err
	}

	expected := KindsOf(KindSaveSuccess, KindSaveFailed)
	line, err := d.command(ctx, &request{
		name:     Commands.SaveSettings,
		payloads: payloads,
		delay:    d.config.SetDelay,
		expected: &expected,
		timeout:  d.config.ResponseTimeout,
	})
	if err == nil && line.Kind == KindSaveFailed {
		err = fmt.Errorf("%w: %w", ErrSaveFailed, ErrUnexpectedResponse)
	}
	if err != nil {
		d.notifyStatus(model.StatusError, fmt.Sprintf("Failed to save settings: %v", err))
		return err
	}

	d.notifyStatus(model.StatusSuccess, "Settings saved")
	return nil
}

func (d *Driver) savePayloads() ([][]byte, error) {
	params := d.params.Snapshot()

	if d.config.SaveMode == driver.SaveModeBinary {
		msg, err := d.builder.Save(d.layout.Encode(params))
		if err != nil {
			return nil, err
		}
		return [][]byte{msg}, nil
	}

	payloads := make([][]byte, 0, len(params)+1)
	for _, p := range params {
		msg, err := d.builder.Set(p.Key, p.Value)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, msg)
	}
	msg, err := d.builder.Text(Commands.SaveSettings)
	if err != nil {
		return nil, err
	}
	return append(payloads, msg), nil
}

// ResetSettings restores factory defaults on the device and reloads them
func (d *Driver) ResetSettings(ctx context.Context) error {
	d.opMutex.Lock()
	defer d.opMutex.Unlock()

	payload, err := d.builder.Text(Commands.ResetSettings)
	if err != nil {
		return err
	}

	expected := KindsOf(KindResetSuccess)
	if _, err := d.command(ctx, &request{
		name:     Commands.ResetSettings,
		payloads: [][]byte{payload},
		expected: &expected,
		timeout:  d.config.ResponseTimeout,
	}); err != nil {
		d.notifyStatus(model.StatusError, fmt.Sprintf("Failed to reset settings: %v", err))
		return err
	}

	d.notifyStatus(model.StatusSuccess, "Settings reset")
	return d.load(ctx)
}

// SetEventHandler sets the event handler
func (d *Driver) SetEventHandler(handler driver.EventHandler) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.eventHandler = handler
}

// Close releases the driver
func (d *Driver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.CloseTimeout+time.Second)
	defer cancel()
	return d.Disconnect(ctx)
}

// command runs an exchange that requires config mode
func (d *Driver) command(ctx context.Context, req *request) (Line, error) {
	if !d.State().IsLive() {
		return Line{}, ErrNotConnected
	}

	op := utils.NewOperationLogger(d.logger.Logger, req.name, uuid.NewString())
	op.Start(zap.Int("messages", len(req.payloads)))

	line, err := d.exchange(ctx, req)
	d.updateHealthMetrics(err == nil, op.Elapsed())
	if err != nil {
		op.Error(err)
		return line, err
	}

	op.Success(zap.String("kind", string(line.Kind)))
	return line, nil
}

// exchange hands req to the event loop and waits for its outcome
func (d *Driver) exchange(ctx context.Context, req *request) (Line, error) {
	req.ack = make(chan ack, 1)

	select {
	case d.requests <- req:
	case <-d.stopped:
		return Line{}, ErrNotConnected
	case <-ctx.Done():
		return Line{}, ctx.Err()
	}

	a := <-req.ack
	if a.err != nil || a.pending == nil {
		return Line{}, a.err
	}

	select {
	case resp := <-a.pending.Result():
		return resp.Line, resp.Err
	case <-ctx.Done():
		return Line{}, ctx.Err()
	}
}

// shutdown closes the session and waits for the event loop to exit
func (d *Driver) shutdown() {
	req := &request{name: eventClose, close: true, ack: make(chan ack, 1)}
	select {
	case d.requests <- req:
		<-req.ack
	case <-d.stopped:
	}
	<-d.stopped
}

func (d *Driver) updateHealthMetrics(success bool, responseTime time.Duration) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.healthMetrics.TotalOperations++
	d.healthMetrics.ResponseTime = responseTime

	now := time.Now()
	if success {
		d.healthMetrics.LastSuccessTime = &now
	} else {
		d.healthMetrics.ErrorCount++
		d.healthMetrics.LastErrorTime = &now
	}
	d.healthMetrics.SuccessRate = float64(d.healthMetrics.TotalOperations-d.healthMetrics.ErrorCount) / float64(d.healthMetrics.TotalOperations)

	// Calculate health score (0-100)
	d.healthMetrics.HealthScore = int(d.healthMetrics.SuccessRate * 100)
	if responseTime > d.config.ResponseTimeout/2 {
		d.healthMetrics.HealthScore -= 10
	}
	if d.healthMetrics.HealthScore < 0 {
		d.healthMetrics.HealthScore = 0
	}
}

func (d *Driver) handler() driver.EventHandler {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.eventHandler
}

func (d *Driver) notifyStatus(level model.StatusLevel, message string) {
	if h := d.handler(); h != nil {
		h.OnStatus(d.SessionID(), level, message)
	}
}

func (d *Driver) notifyParameterChanged(change model.ParameterChange) {
	if h := d.handler(); h != nil {
		h.OnParameterChanged(d.SessionID(), change)
	}
}
