package prometheus

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/MrEthical07/portalauth"
	"github.com/MrEthical07/portalauth/metrics/export/internaldefs"
	"github.com/MrEthical07/portalauth/session"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

type metricsSource interface {
	MetricsSnapshot() portalauth.MetricsSnapshot
	AuditDropped() uint64
}

// sessionSource is implemented by *portalauth.Engine. Sources without it
// render no session gauges.
type sessionSource interface {
	SessionStats() (session.Stats, error)
}

// PrometheusExporter renders engine metrics in the Prometheus text
// exposition format.
type PrometheusExporter struct {
	source metricsSource
}

func NewPrometheusExporter(engine *portalauth.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource reads from any value that can produce a
// snapshot and an audit drop count.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves the current metrics on every request.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		p.Encode(&buf)
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(buf.Bytes())
	})
}

// Render returns the current metrics as a string. It returns "" when the
// engine has metrics disabled and no audit events were dropped.
func (p *PrometheusExporter) Render() string {
	var b strings.Builder
	p.Encode(&b)
	return b.String()
}

// Encode writes the exposition text to w.
func (p *PrometheusExporter) Encode(w io.Writer) {
	if p == nil || p.source == nil {
		return
	}

	snap := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return
	}

	for _, def := range internaldefs.CounterDefs {
		header(w, def.Name, def.Help, "counter")
		fmt.Fprintf(w, "%s %d\n", def.Name, snap.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[def.ID]))
		header(w, def.Name, def.Help, "histogram")
		for i, le := range internaldefs.HistogramBounds {
			fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", def.Name, le, cumulative[i])
		}
		fmt.Fprintf(w, "%s_count %d\n", def.Name, cumulative[len(cumulative)-1])
		// The engine keeps bucket counts only.
		fmt.Fprintf(w, "%s_sum 0\n", def.Name)
	}

	header(w, "portalauth_audit_dropped_total", "Audit events dropped because the dispatcher queue was full.", "counter")
	fmt.Fprintf(w, "portalauth_audit_dropped_total %d\n", dropped)

	if ss, ok := p.source.(sessionSource); ok {
		writeSessions(w, ss)
	}
}

func writeSessions(w io.Writer, src sessionSource) {
	stats, err := src.SessionStats()
	if err != nil {
		return
	}

	header(w, "portalauth_sessions", "Sessions held by the ledger.", "gauge")
	fmt.Fprintf(w, "portalauth_sessions{state=\"active\"} %d\n", stats.Active)
	fmt.Fprintf(w, "portalauth_sessions{state=\"expired\"} %d\n", stats.Expired)

	if len(stats.ByDeviceType) == 0 {
		return
	}
	header(w, "portalauth_sessions_by_device", "Sessions per device type.", "gauge")
	types := make([]string, 0, len(stats.ByDeviceType))
	for t := range stats.ByDeviceType {
		types = append(types, t)
	}
	slices.Sort(types)
	for _, t := range types {
		fmt.Fprintf(w, "portalauth_sessions_by_device{type=%q} %d\n", t, stats.ByDeviceType[t])
	}
}

func header(w io.Writer, name, help, kind string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, escapeHelp(help), name, kind)
}

func escapeHelp(help string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
}
