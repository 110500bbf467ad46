// Package audit records one event per verification call so operators can
// reconstruct what the router decided and why, without storing raw query
// text.
package audit

import (
	"time"

	"go.uber.org/zap"

	"qwed/internal/types"
)

// Event is the audit record for a single verification call.
type Event struct {
	RequestID string        `json:"request_id"`
	QueryHash string        `json:"query_hash"`
	Domain    types.Domain  `json:"domain"`
	Verified  bool          `json:"verified"`
	Error     string        `json:"error,omitempty"`
	Provider  string        `json:"provider,omitempty"`
	CacheHit  bool          `json:"cache_hit"`
	Latency   time.Duration `json:"latency"`
	At        time.Time     `json:"at"`
}

// Sink receives audit events. Implementations must not block the
// verification path for long and must swallow their own failures.
type Sink interface {
	Record(ev Event)
	Close() error
}

// LogSink writes audit events to a structured logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink writing through the given logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Record implements Sink.
func (s *LogSink) Record(ev Event) {
	s.logger.Info("verification",
		zap.String("request_id", ev.RequestID),
		zap.String("query_hash", ev.QueryHash),
		zap.String("domain", string(ev.Domain)),
		zap.Bool("verified", ev.Verified),
		zap.String("error", ev.Error),
		zap.String("provider", ev.Provider),
		zap.Bool("cache_hit", ev.CacheHit),
		zap.Duration("latency", ev.Latency))
}

// Close implements Sink.
func (s *LogSink) Close() error { return s.logger.Sync() }

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

// Record implements Sink.
func (m MultiSink) Record(ev Event) {
	for _, s := range m {
		s.Record(ev)
	}
}

// Close implements Sink.
func (m MultiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
