package portalauth

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HealthStatus is an on-demand view of the ledger and its backend.
type HealthStatus struct {
	LedgerConnected  bool
	BackendAvailable bool
	BackendLatency   time.Duration
}

// Health pings the ledger backend. An engine without Redis reports the
// backend as available with zero latency.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.ledger == nil {
		return HealthStatus{}
	}

	status := HealthStatus{LedgerConnected: e.ledger.Connected()}
	latency, err := e.ledger.Ping(ctx)
	if err != nil {
		e.logger.Warn("ledger backend ping failed", zap.Error(err))
		return status
	}
	status.BackendAvailable = true
	status.BackendLatency = latency
	return status
}
