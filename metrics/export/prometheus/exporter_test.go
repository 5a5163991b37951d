package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/portalauth"
	"github.com/MrEthical07/portalauth/session"
)

type fakeSource struct {
	snapshot portalauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() portalauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: portalauth.MetricsSnapshot{
			Counters:   map[portalauth.MetricID]uint64{},
			Histograms: map[portalauth.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: portalauth.MetricsSnapshot{
			Counters: map[portalauth.MetricID]uint64{
				portalauth.MetricLoginSuccess:  7,
				portalauth.MetricFamilyRevoked: 1,
			},
			Histograms: map[portalauth.MetricID][]uint64{
				portalauth.MetricVerifyLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"portalauth_login_success_total 7",
		"portalauth_family_revoked_total 1",
		"portalauth_lockout_engaged_total 0",
		"portalauth_verify_latency_seconds_bucket{le=\"0.005\"} 1",
		"portalauth_verify_latency_seconds_bucket{le=\"+Inf\"} 36",
		"portalauth_verify_latency_seconds_count 36",
		"portalauth_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: portalauth.MetricsSnapshot{
			Counters:   map[portalauth.MetricID]uint64{portalauth.MetricLoginSuccess: 1},
			Histograms: map[portalauth.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

type noUsers struct{}

func (noUsers) ValidateCredentials(context.Context, string, string, string, string) (*portalauth.User, error) {
	return nil, nil
}
func (noUsers) GetUser(context.Context, string) (*portalauth.User, error) { return nil, nil }
func (noUsers) GetPermissions(context.Context, string) ([]string, error)  { return nil, nil }

func TestRenderFromEngine(t *testing.T) {
	cfg := portalauth.DefaultConfig()
	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Session.SweepInterval = 0
	cfg.Security.SweepInterval = 0
	cfg.RateLimit.SweepInterval = 0

	engine, err := portalauth.New().
		WithConfig(cfg).
		WithDirectory(noUsers{}).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	engine.Login(context.Background(), "nobody", "nothing", portalauth.LoginContext{IP: "203.0.113.9"})

	out := NewPrometheusExporter(engine).Render()
	if !strings.Contains(out, "portalauth_login_failure_total 1") {
		t.Fatalf("expected one failed login, got:\n%s", out)
	}
	if !strings.Contains(out, `portalauth_sessions{state="active"} 0`) {
		t.Fatalf("expected session gauge from the engine, got:\n%s", out)
	}
}

type statsSource struct {
	fakeSource
	stats session.Stats
}

func (s statsSource) SessionStats() (session.Stats, error) { return s.stats, nil }

func TestRenderSessionGauges(t *testing.T) {
	exp := NewPrometheusExporterFromSource(statsSource{
		fakeSource: fakeSource{dropped: 1},
		stats: session.Stats{
			Total:        4,
			Active:       3,
			Expired:      1,
			ByDeviceType: map[string]int{"mobile": 1, "desktop": 3},
		},
	})

	out := exp.Render()
	for _, want := range []string{
		"# TYPE portalauth_sessions gauge",
		`portalauth_sessions{state="active"} 3`,
		`portalauth_sessions{state="expired"} 1`,
		`portalauth_sessions_by_device{type="desktop"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if strings.Index(out, `type="desktop"`) > strings.Index(out, `type="mobile"`) {
		t.Fatal("device types must be sorted")
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: portalauth.MetricsSnapshot{
			Counters: map[portalauth.MetricID]uint64{
				portalauth.MetricLoginSuccess:   1000,
				portalauth.MetricLoginFailure:   40,
				portalauth.MetricRefreshSuccess: 800,
				portalauth.MetricRefreshFailure: 10,
				portalauth.MetricSessionCreated: 800,
				portalauth.MetricSessionEvicted: 20,
			},
			Histograms: map[portalauth.MetricID][]uint64{
				portalauth.MetricVerifyLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
