package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Event mirrors one engine transition (login, lockout, refresh, logout,
// blacklist, session eviction). Seq is stamped by the [Dispatcher] when the
// event is offered, so a gap in Seq means events were dropped in between.
type Event struct {
	Seq       uint64            `json:"seq"`
	Type      string            `json:"type"`
	At        time.Time         `json:"at"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	DeviceID  string            `json:"device_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Code      string            `json:"code,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Sink consumes events on the dispatcher goroutine, one at a time and in
// Seq order. A slow sink backs up the dispatcher queue.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards events. It backs an enabled dispatcher with no sink.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a consumer goroutine. It never waits: when the
// consumer falls behind and the channel is full, the event is counted in
// Overflow and discarded.
type ChannelSink struct {
	events   chan Event
	overflow atomic.Uint64
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{events: make(chan Event, max(buffer, 1))}
}

func (s *ChannelSink) Emit(_ context.Context, event Event) {
	select {
	case s.events <- event:
	default:
		s.overflow.Add(1)
	}
}

// Events is the receive side for the consumer.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// Overflow counts events discarded because the channel was full.
func (s *ChannelSink) Overflow() uint64 {
	return s.overflow.Load()
}

// JSONWriterSink appends one JSON document per event to w. The first write
// error is kept and later events are skipped.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	s := &JSONWriterSink{}
	if w != nil {
		s.enc = json.NewEncoder(w)
	}
	return s
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.enc == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return
	}
	s.err = s.enc.Encode(event)
}

// Err reports the write error that stopped the sink, if any.
func (s *JSONWriterSink) Err() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ZapSink logs each event as one entry. Successful transitions log at info,
// everything else at warn.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Emit(_ context.Context, event Event) {
	fields := make([]zap.Field, 0, 8+len(event.Details))
	fields = append(fields,
		zap.String("event", event.Type),
		zap.Uint64("seq", event.Seq),
		zap.Time("at", event.At),
		zap.Bool("success", event.Success),
	)
	for _, f := range []struct{ key, val string }{
		{"user_id", event.UserID},
		{"session_id", event.SessionID},
		{"device_id", event.DeviceID},
		{"ip", event.IP},
		{"code", event.Code},
	} {
		if f.val != "" {
			fields = append(fields, zap.String(f.key, f.val))
		}
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String(k, v))
	}

	if event.Success {
		s.logger.Info("audit", fields...)
		return
	}
	s.logger.Warn("audit", fields...)
}
