// internal/handler/event_bus.go
package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"radial-config/internal/model"
	"radial-config/pkg/driver"
)

// EventBus manages event distribution
type EventBus struct {
	subscribers map[model.EventType][]chan model.SessionEvent
	wildcard    []chan model.SessionEvent
	events      chan model.SessionEvent
	done        chan struct{}
	closeOnce   sync.Once
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger, buffer int) *EventBus {
	if buffer <= 0 {
		buffer = 1000
	}
	return &EventBus{
		subscribers: make(map[model.EventType][]chan model.SessionEvent),
		events:      make(chan model.SessionEvent, buffer),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Start distributes events until ctx is done or the bus is closed
func (eb *EventBus) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-eb.done:
			return
		case event := <-eb.events:
			eb.distributeEvent(event)
		}
	}
}

// Close stops distribution. Publish after Close drops the event.
func (eb *EventBus) Close() {
	eb.closeOnce.Do(func() { close(eb.done) })
}

// Publish publishes an event without blocking. It reports whether the
// event was queued.
func (eb *EventBus) Publish(event model.SessionEvent) bool {
	select {
	case <-eb.done:
		return false
	default:
	}

	select {
	case eb.events <- event:
		return true
	default:
		if eb.logger != nil {
			eb.logger.Warn("Event bus full, dropping event",
				zap.String("event_type", string(event.EventType)),
			)
		}
		return false
	}
}

// Subscribe subscribes to the given event types, or to every event when
// none are named
func (eb *EventBus) Subscribe(eventTypes ...model.EventType) <-chan model.SessionEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan model.SessionEvent, 100)
	if len(eventTypes) == 0 {
		eb.wildcard = append(eb.wildcard, subscriber)
		return subscriber
	}
	for _, eventType := range eventTypes {
		eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
	}
	return subscriber
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event model.SessionEvent) {
	eb.mutex.RLock()
	subscribers := append([]chan model.SessionEvent(nil), eb.subscribers[event.EventType]...)
	subscribers = append(subscribers, eb.wildcard...)
	eb.mutex.RUnlock()

	for _, subscriber := range subscribers {
		select {
		case subscriber <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}

// BusEventHandler turns driver callbacks into bus events
type BusEventHandler struct {
	bus    *EventBus
	logger *zap.Logger
}

var _ driver.EventHandler = (*BusEventHandler)(nil)

// NewBusEventHandler creates a new driver event handler
func NewBusEventHandler(bus *EventBus, logger *zap.Logger) *BusEventHandler {
	return &BusEventHandler{
		bus:    bus,
		logger: logger,
	}
}

// OnConnected handles device connected events
func (h *BusEventHandler) OnConnected(sessionID uuid.UUID, port string) {
	h.publish(sessionID, model.EventConnected, model.StatusSuccess, map[string]interface{}{
		"port":    port,
		"message": "Device connected successfully",
	})
	h.logger.Info("Device connected", zap.String("session_id", sessionID.String()), zap.String("port", port))
}

// OnDisconnected handles device disconnected events
func (h *BusEventHandler) OnDisconnected(sessionID uuid.UUID, reason string) {
	h.publish(sessionID, model.EventDisconnected, model.StatusInfo, map[string]interface{}{
		"reason": reason,
	})
	h.logger.Info("Device disconnected",
		zap.String("session_id", sessionID.String()),
		zap.String("reason", reason),
	)
}

// OnConnectionLost handles unexpected loss of the device
func (h *BusEventHandler) OnConnectionLost(sessionID uuid.UUID, err error) {
	data := map[string]interface{}{}
	if err != nil {
		data["error"] = err.Error()
	}
	h.publish(sessionID, model.EventConnectionLost, model.StatusError, data)
	h.logger.Warn("Device connection lost", zap.String("session_id", sessionID.String()), zap.Error(err))
}

// OnParameterChanged handles parameter updates
func (h *BusEventHandler) OnParameterChanged(sessionID uuid.UUID, change model.ParameterChange) {
	h.publish(sessionID, model.EventParameterChanged, model.StatusInfo, map[string]interface{}{
		"key":      change.Key,
		"previous": change.Previous,
		"value":    change.Value,
		"clamped":  change.Clamped,
	})
}

// OnConfigLoaded handles decoded configuration records
func (h *BusEventHandler) OnConfigLoaded(sessionID uuid.UUID, info *driver.DeviceInfo) {
	data := map[string]interface{}{}
	if info != nil {
		data["firmware_version"] = info.FirmwareVersion
		data["layout"] = info.Layout
		data["record_revision"] = info.RecordRevision
	}
	h.publish(sessionID, model.EventConfigLoaded, model.StatusSuccess, data)
}

// OnStatus handles human-readable status messages
func (h *BusEventHandler) OnStatus(sessionID uuid.UUID, level model.StatusLevel, message string) {
	h.publish(sessionID, model.EventStatus, level, map[string]interface{}{
		"level":   level,
		"message": message,
	})
}

// OnAlert handles notifications the user must acknowledge
func (h *BusEventHandler) OnAlert(sessionID uuid.UUID, title, message string) {
	h.publish(sessionID, model.EventAlert, model.StatusError, map[string]interface{}{
		"title":   title,
		"message": message,
	})
}

func (h *BusEventHandler) publish(sessionID uuid.UUID, eventType model.EventType, severity model.StatusLevel, data map[string]interface{}) {
	if !h.bus.Publish(model.NewSessionEvent(sessionID, eventType, severity, data)) {
		h.logger.Debug("Event not published", zap.String("event_type", fmt.Sprint(eventType)))
	}
}
