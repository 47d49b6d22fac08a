// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventConnected        EventType = "CONNECTED"
	EventDisconnected     EventType = "DISCONNECTED"
	EventConnectionLost   EventType = "CONNECTION_LOST"
	EventParameterChanged EventType = "PARAMETER_CHANGED"
	EventConfigLoaded     EventType = "CONFIG_LOADED"
	EventStatus           EventType = "STATUS"
	EventAlert            EventType = "ALERT"
)

// SessionEvent represents an event raised by one connection attempt
type SessionEvent struct {
	ID        uuid.UUID              `json:"id"`
	EventType EventType              `json:"event_type"`
	SessionID uuid.UUID              `json:"session_id"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Severity  StatusLevel            `json:"severity"`
}

// NewSessionEvent creates an event stamped with a fresh id and the current time
func NewSessionEvent(sessionID uuid.UUID, eventType EventType, severity StatusLevel, data map[string]interface{}) SessionEvent {
	if data == nil {
		data = make(map[string]interface{})
	}
	return SessionEvent{
		ID:        uuid.New(),
		EventType: eventType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now(),
		Severity:  severity,
	}
}

// StatusEventData carries a human-readable status line
type StatusEventData struct {
	Level   StatusLevel `json:"level"`
	Message string      `json:"message"`
}

// AlertEventData carries a notification that must be acknowledged
type AlertEventData struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}
