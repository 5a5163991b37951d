package portalauth

import (
	"io"

	"go.uber.org/zap"

	"github.com/MrEthical07/portalauth/internal/audit"
)

// AuditEvent is the record handed to an [AuditSink].
type AuditEvent = audit.Event

// AuditSink receives events asynchronously through the engine's audit
// dispatcher.
type AuditSink = audit.Sink

// NoOpSink discards every event.
type NoOpSink = audit.NoOpSink

// ChannelSink delivers events to a buffered channel and counts overflow.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// ZapSink logs every event through a zap logger.
type ZapSink = audit.ZapSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return audit.NewZapSink(logger)
}
