package portalauth

import (
	"context"
	"slices"
	"testing"

	"github.com/MrEthical07/portalauth/internal/security"
)

func TestSecurityReportReflectsConfig(t *testing.T) {
	te := newTestEngine(t, func(cfg *Config) {
		cfg.Refresh.ReuseDetection = true
		cfg.Security.IPDenyList = []string{"203.0.113.0/24"}
	})

	report := te.SecurityReport()
	if report.SigningAlgorithm != "HS256" {
		t.Fatalf("unexpected algorithm %q", report.SigningAlgorithm)
	}
	if !report.RefreshRotationEnabled || !report.ReuseDetectionEnabled {
		t.Fatalf("expected rotation and reuse detection, got %+v", report)
	}
	if !report.IPFilteringActive {
		t.Fatal("deny list must activate ip filtering")
	}
	if report.PersistentLedger {
		t.Fatal("in-memory engine must not report a persistent ledger")
	}
	if !slices.Contains(report.Warnings, security.WarnVolatileLedger) {
		t.Fatalf("expected volatile ledger warning, got %v", report.Warnings)
	}
}

func TestSecurityReportWithRedis(t *testing.T) {
	_, client := newTestRedis(t)
	te := newTestEngine(t, nil, func(b *Builder) { b.WithRedis(client) })

	report := te.SecurityReport()
	if !report.PersistentLedger || slices.Contains(report.Warnings, security.WarnVolatileLedger) {
		t.Fatalf("expected persistent ledger, got %+v", report)
	}
}

func TestHealth(t *testing.T) {
	mr, client := newTestRedis(t)
	te := newTestEngine(t, nil, func(b *Builder) { b.WithRedis(client) })
	ctx := context.Background()

	status := te.Health(ctx)
	if !status.LedgerConnected || !status.BackendAvailable {
		t.Fatalf("expected healthy engine, got %+v", status)
	}

	mr.Close()
	status = te.Health(ctx)
	if status.BackendAvailable {
		t.Fatalf("expected backend unavailable after redis shutdown, got %+v", status)
	}
	if !status.LedgerConnected {
		t.Fatal("ledger stays connected while the backend is down")
	}
}
