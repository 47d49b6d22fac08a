// internal/protocol/protocol.go
package protocol

import (
	"context"
	"time"

	"go.uber.org/atomic"

	"radial-config/internal/model"
)

// DeviceProtocol is the byte-stream transport to a device
type DeviceProtocol interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Data communication. Read returns an empty slice when no data arrived
	// within the transport's read timeout.
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context, maxBytes int) ([]byte, error)

	// Protocol information
	GetProtocolType() model.ConnectionType
	GetStats() StatsSnapshot
}

// ProtocolStats collects transport counters. Safe for concurrent use.
type ProtocolStats struct {
	bytesWritten   *atomic.Int64
	bytesRead      *atomic.Int64
	operationCount *atomic.Int64
	errorCount     *atomic.Int64
	lastActivity   *atomic.Time
	averageLatency *atomic.Duration
	isConnected    *atomic.Bool
}

// StatsSnapshot is a point-in-time copy of ProtocolStats
type StatsSnapshot struct {
	BytesWritten   int64         `json:"bytes_written"`
	BytesRead      int64         `json:"bytes_read"`
	OperationCount int64         `json:"operation_count"`
	ErrorCount     int64         `json:"error_count"`
	LastActivity   time.Time     `json:"last_activity"`
	AverageLatency time.Duration `json:"average_latency"`
	IsConnected    bool          `json:"is_connected"`
}

// NewProtocolStats creates zeroed counters
func NewProtocolStats() *ProtocolStats {
	return &ProtocolStats{
		bytesWritten:   atomic.NewInt64(0),
		bytesRead:      atomic.NewInt64(0),
		operationCount: atomic.NewInt64(0),
		errorCount:     atomic.NewInt64(0),
		lastActivity:   atomic.NewTime(time.Time{}),
		averageLatency: atomic.NewDuration(0),
		isConnected:    atomic.NewBool(false),
	}
}

// RecordWrite accounts for a completed write
func (s *ProtocolStats) RecordWrite(n int, latency time.Duration) {
	s.bytesWritten.Add(int64(n))
	s.operationCount.Inc()
	s.lastActivity.Store(time.Now())

	// running average of write latency
	if prev := s.averageLatency.Load(); prev == 0 {
		s.averageLatency.Store(latency)
	} else {
		s.averageLatency.Store((prev + latency) / 2)
	}
}

// RecordRead accounts for a completed read
func (s *ProtocolStats) RecordRead(n int) {
	if n == 0 {
		return
	}
	s.bytesRead.Add(int64(n))
	s.operationCount.Inc()
	s.lastActivity.Store(time.Now())
}

// RecordError counts a failed operation
func (s *ProtocolStats) RecordError() {
	s.errorCount.Inc()
}

// SetConnected marks the transport open or closed
func (s *ProtocolStats) SetConnected(connected bool) {
	s.isConnected.Store(connected)
	if connected {
		s.lastActivity.Store(time.Now())
	}
}

// Snapshot copies the current counters
func (s *ProtocolStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		BytesWritten:   s.bytesWritten.Load(),
		BytesRead:      s.bytesRead.Load(),
		OperationCount: s.operationCount.Load(),
		ErrorCount:     s.errorCount.Load(),
		LastActivity:   s.lastActivity.Load(),
		AverageLatency: s.averageLatency.Load(),
		IsConnected:    s.isConnected.Load(),
	}
}
