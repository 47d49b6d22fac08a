// internal/driver/radial/session.go
package radial

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"radial-config/internal/model"
	"radial-config/pkg/driver"
)

var errClosedByHost = errors.New("closed by host")

// request is one command handed to the event loop. A nil expected set makes
// it fire-and-forget.
type request struct {
	name      string
	payloads  [][]byte
	delay     time.Duration
	expected  *KindSet
	timeout   time.Duration
	handshake bool
	close     bool
	ack       chan ack
}

type ack struct {
	pending *PendingRequest
	err     error
}

// session is the single cooperative task of a Driver. Its fields are touched
// only by the event loop goroutine.
type session struct {
	d          *Driver
	framer     *Framer
	classifier *Classifier
	correlator *Correlator

	ctx        context.Context
	cancelRead context.CancelFunc
	chunks     chan []byte
	readErrs   chan error

	heartbeat *time.Ticker
	liveness  *time.Ticker
	deadline  *time.Timer
	idleFlush *time.Timer
	handshake bool
}

func newSession(d *Driver) *session {
	return &session{
		d:          d,
		framer:     NewFramer(RecordSize),
		classifier: NewClassifier(d.layout, d.params),
		correlator: NewCorrelator(d.config.AmbientBuffer),
		chunks:     make(chan []byte, 16),
		readErrs:   make(chan error, 1),
	}
}

func (s *session) start() {
	s.ctx, s.cancelRead = context.WithCancel(context.Background())
	go s.readLoop(s.ctx)
	go s.run()
}

func (s *session) readLoop(ctx context.Context) {
	for {
		data, err := s.d.protocol.Read(ctx, s.d.config.ReadChunk)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			select {
			case s.readErrs <- err:
			default:
			}
			return
		}
		if len(data) == 0 {
			continue
		}

		select {
		case s.chunks <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (s *session) run() {
	defer close(s.d.stopped)

	for s.d.State() != model.StateDisconnected {
		select {
		case req := <-s.d.requests:
			s.handleRequest(req)
		case chunk := <-s.chunks:
			s.handleChunk(chunk)
		case err := <-s.readErrs:
			s.teardown(fmt.Errorf("%w: %w", ErrConnectionLost, err), eventLose)
		case <-tickerC(s.heartbeat):
			s.sendHeartbeat()
		case <-tickerC(s.liveness):
			s.checkLiveness()
		case <-timerC(s.deadline):
			s.expire()
		case <-timerC(s.idleFlush):
			s.flushPartial()
		}
	}
}

func (s *session) handleRequest(req *request) {
	if req.close {
		s.teardown(errClosedByHost, eventClose)
		req.ack <- ack{}
		return
	}

	want := model.StateLive
	if req.handshake {
		want = model.StateHandshaking
	}
	if s.d.State() != want {
		req.ack <- ack{err: ErrNotConnected}
		return
	}

	var pending *PendingRequest
	if req.expected != nil {
		p, err := s.correlator.Await(req.name, *req.expected, time.Now().Add(req.timeout))
		if err != nil {
			req.ack <- ack{err: err}
			return
		}
		pending = p
		s.handshake = req.handshake
		s.deadline = time.NewTimer(req.timeout)
		s.d.pendingName.Store(req.name)
	}

	for i, payload := range req.payloads {
		// The device input buffer is small; pace multi-message commands
		if i > 0 && req.delay > 0 {
			time.Sleep(req.delay)
		}
		if err := s.d.protocol.Write(s.ctx, payload); err != nil {
			lost := fmt.Errorf("%w: write %s: %w", ErrConnectionLost, req.name, err)
			s.teardown(lost, eventLose)
			req.ack <- ack{err: lost}
			return
		}
	}

	req.ack <- ack{pending: pending}
}

func (s *session) handleChunk(chunk []byte) {
	for _, frame := range s.framer.Feed(chunk) {
		s.handleFrame(frame)
		if s.d.State() == model.StateDisconnected {
			return
		}
	}

	stopTimer(&s.idleFlush)
	if s.framer.PendingPayload() {
		s.idleFlush = time.NewTimer(s.d.config.PayloadIdleFlush)
	}
}

func (s *session) flushPartial() {
	s.idleFlush = nil
	if frame, ok := s.framer.Flush(); ok {
		s.handleFrame(frame)
	}
}

func (s *session) handleFrame(frame Frame) {
	line, ok := s.classifier.Classify(frame)
	if !ok {
		return
	}
	s.d.lastResponse.Store(line.ReceivedAt)
	s.publish(line)

	pending := s.correlator.Pending()
	if pending != nil && s.handshake && pending.Expected.Matches(line.Kind) {
		s.resolveHandshake(line)
		return
	}

	if !s.correlator.Dispatch(line) {
		s.d.logger.Warn("Ambient buffer full, line dropped",
			zap.String("kind", string(line.Kind)),
			zap.String("text", line.Text),
		)
	}
	resolved := pending != nil && s.correlator.Pending() == nil
	if resolved {
		s.clearPending()
	}
	s.d.logger.LogLine(string(line.Kind), line.Text, resolved)

	s.drainAmbient()
}

// resolveHandshake settles the mode-enable exchange. Live is entered before the
// caller is woken so Connect returns with the timers already running.
func (s *session) resolveHandshake(line Line) {
	s.handshake = false

	if line.Kind == KindModeEnabled {
		if err := s.d.machine.Event(context.Background(), eventEnable); err != nil {
			s.d.logger.Error("State transition failed", zap.String("event", eventEnable), zap.Error(err))
		}
		s.correlator.Dispatch(line)
		s.clearPending()
		s.notifyConnected()
		return
	}

	s.correlator.Dispatch(line)
	s.clearPending()
	s.teardown(fmt.Errorf("%w: handshake rejected: %q", ErrUnexpectedResponse, line.Text), eventReject)
}

func (s *session) drainAmbient() {
	for {
		select {
		case line := <-s.correlator.Ambient():
			s.handleAmbient(line)
			if s.d.State() == model.StateDisconnected {
				return
			}
		default:
			return
		}
	}
}

func (s *session) handleAmbient(line Line) {
	switch line.Kind {
	case KindModeTimedOut:
		s.d.logger.Warn("Device left config mode")
		s.teardown(fmt.Errorf("%w: device reported %s", ErrConnectionLost, line.Text), eventLose)
	case KindInvalid:
		s.d.logger.Warn("Undecodable line skipped", zap.String("text", line.Text), zap.Error(line.Err))
		s.d.notifyStatus(model.StatusWarning, fmt.Sprintf("Ignored malformed data from device: %v", line.Err))
	case KindHeartbeat:
	default:
		s.d.logger.Debug("Unsolicited line",
			zap.String("kind", string(line.Kind)),
			zap.String("text", line.Text),
		)
	}
}

func (s *session) publish(line Line) {
	for _, change := range line.Changes {
		if change.Changed() || change.Clamped {
			s.d.notifyParameterChanged(change)
		}
	}

	if line.Record == nil {
		return
	}
	info := s.d.applyRecord(line.Record)
	if h := s.d.handler(); h != nil {
		h.OnConfigLoaded(s.d.SessionID(), info)
	}
}

func (s *session) expire() {
	s.deadline = nil
	pending := s.correlator.Pending()
	if pending == nil {
		return
	}

	if !s.correlator.Expire(time.Now()) {
		s.deadline = time.NewTimer(time.Until(pending.Deadline))
		return
	}
	s.d.pendingName.Store("")
	s.d.logger.Warn("Response timeout",
		zap.String("command", pending.Command),
		zap.Stringer("expected", pending.Expected),
	)

	// only the handshake timeout is fatal
	if s.handshake {
		s.handshake = false
		s.teardown(fmt.Errorf("%w: %s", ErrTimeout, pending.Command), eventReject)
	}
}

func (s *session) clearPending() {
	stopTimer(&s.deadline)
	s.d.pendingName.Store("")
}

func (s *session) sendHeartbeat() {
	payload, err := s.d.builder.Text(Commands.Heartbeat)
	if err == nil {
		err = s.d.protocol.Write(s.ctx, payload)
	}
	if err != nil {
		s.d.logger.Warn("Heartbeat failed", zap.Error(err))
	}
}

func (s *session) checkLiveness() {
	if !s.d.protocol.IsOpen() {
		s.teardown(fmt.Errorf("%w: transport closed", ErrConnectionLost), eventLose)
	}
}

// teardown returns the session to DISCONNECTED. A pending request is discarded
// with an error satisfying ErrTimeout.
func (s *session) teardown(cause error, event string) {
	if s.d.State() == model.StateDisconnected {
		return
	}

	s.cancelRead()
	stopTimer(&s.deadline)
	stopTimer(&s.idleFlush)
	s.handshake = false

	discard := cause
	if !errors.Is(cause, ErrTimeout) {
		discard = fmt.Errorf("%w: request discarded: %w", ErrTimeout, cause)
	}
	s.correlator.Abort(discard)
	s.d.pendingName.Store("")

	s.closeTransport()
	s.framer.Reset()

	if err := s.d.machine.Event(context.Background(), event); err != nil {
		s.d.logger.Error("State transition failed", zap.String("event", event), zap.Error(err))
		s.d.machine.SetState(string(model.StateDisconnected))
		s.stopTimers()
	}

	if event == eventLose {
		s.notifyConnectionLost(cause)
		return
	}
	if h := s.d.handler(); h != nil {
		h.OnDisconnected(s.d.SessionID(), cause.Error())
	}
}

// closeTransport races the close against the configured timeout; a slow close
// is abandoned.
func (s *session) closeTransport() {
	done := make(chan error, 1)
	go func() {
		done <- s.d.protocol.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			s.d.logger.Warn("Failed to close transport", zap.Error(err))
		}
	case <-time.After(s.d.config.CloseTimeout):
		s.d.logger.Warn("Transport close timed out, handle dropped",
			zap.Duration("timeout", s.d.config.CloseTimeout),
		)
	}
}

func (s *session) startTimers() {
	if s.d.config.HeartbeatInterval > 0 {
		s.heartbeat = time.NewTicker(s.d.config.HeartbeatInterval)
	}
	if s.d.config.LivenessInterval > 0 {
		s.liveness = time.NewTicker(s.d.config.LivenessInterval)
	}
}

func (s *session) stopTimers() {
	if s.heartbeat != nil {
		s.heartbeat.Stop()
		s.heartbeat = nil
	}
	if s.liveness != nil {
		s.liveness.Stop()
		s.liveness = nil
	}
}

func (s *session) notifyConnected() {
	s.d.logger.LogConnection("config_mode", true, nil)
	if h := s.d.handler(); h != nil {
		h.OnConnected(s.d.SessionID(), s.d.config.Port)
		h.OnStatus(s.d.SessionID(), model.StatusSuccess, "Config mode enabled")
	}
}

func (s *session) notifyConnectionLost(cause error) {
	s.d.logger.LogConnection("lost", false, cause)
	if h := s.d.handler(); h != nil {
		h.OnConnectionLost(s.d.SessionID(), cause)
		h.OnStatus(s.d.SessionID(), model.StatusError, "Connection lost")
		h.OnAlert(s.d.SessionID(), "Connection lost", fmt.Sprintf("The device on %s stopped responding: %v", s.d.config.Port, cause))
	}
}

// applyRecord surfaces the record header as firmware information
func (d *Driver) applyRecord(record *ConfigRecord) *driver.DeviceInfo {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.deviceInfo.RecordVersion = record.Version
	d.deviceInfo.RecordRevision = record.Revision
	d.deviceInfo.FirmwareVersion = fmt.Sprintf("%d.%d", record.Version, record.Revision)
	info := *d.deviceInfo
	return &info
}

func tickerC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
