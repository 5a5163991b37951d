package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/portalauth"
	"github.com/MrEthical07/portalauth/metrics/export/internaldefs"
	"github.com/MrEthical07/portalauth/session"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() portalauth.MetricsSnapshot
	AuditDropped() uint64
}

// sessionSource is implemented by *portalauth.Engine; other sources get no
// session gauge.
type sessionSource interface {
	SessionStats() (session.Stats, error)
}

type counterObs struct {
	id  portalauth.MetricID
	ins metric.Int64ObservableCounter
}

type histogramObs struct {
	id      portalauth.MetricID
	buckets []metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes engine metrics as observable instruments on a
// caller-supplied Meter. Values are read from the source on each
// collection.
type OTelExporter struct {
	source       metricsSource
	sessions     sessionSource
	counters     []counterObs
	histograms   []histogramObs
	auditDropped metric.Int64ObservableCounter
	activeGauge  metric.Int64ObservableGauge
	registration metric.Registration
}

func NewOTelExporter(meter metric.Meter, engine *portalauth.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers one observable counter per engine
// counter, one gauge per cumulative latency bucket plus a count gauge, and
// the audit drop counter. Sources that also report session stats get a
// portalauth_sessions_active gauge.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var obs []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterObs{id: def.ID, ins: ins})
		obs = append(obs, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := histogramObs{id: def.ID}
		for _, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			g, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative bucket count of "+def.Name+"."))
			if err != nil {
				return nil, fmt.Errorf("bucket gauge %s: %w", name, err)
			}
			h.buckets = append(h.buckets, g)
			obs = append(obs, g)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Sample count of "+def.Name+"."))
		if err != nil {
			return nil, fmt.Errorf("count gauge %s_count: %w", def.Name, err)
		}
		h.count = count
		obs = append(obs, count)
		e.histograms = append(e.histograms, h)
	}

	dropped, err := meter.Int64ObservableCounter("portalauth_audit_dropped_total",
		metric.WithDescription("Audit events dropped because the dispatcher queue was full."))
	if err != nil {
		return nil, fmt.Errorf("audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	obs = append(obs, dropped)

	if ss, ok := source.(sessionSource); ok {
		active, err := meter.Int64ObservableGauge("portalauth_sessions_active",
			metric.WithDescription("Active sessions held by the ledger."))
		if err != nil {
			return nil, fmt.Errorf("sessions gauge: %w", err)
		}
		e.sessions = ss
		e.activeGauge = active
		obs = append(obs, active)
	}

	reg, err := meter.RegisterCallback(e.observe, obs...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.ins, int64(snap.Counters[c.id]))
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[h.id]))
		for i, g := range h.buckets {
			o.ObserveInt64(g, int64(cumulative[i]))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	if e.sessions != nil {
		// A disconnected ledger skips the gauge for this collection.
		if stats, err := e.sessions.SessionStats(); err == nil {
			o.ObserveInt64(e.activeGauge, int64(stats.Active))
		}
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
