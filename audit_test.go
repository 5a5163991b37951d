package portalauth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func nextAuditEvent(t *testing.T, ch <-chan AuditEvent) AuditEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return AuditEvent{}
	}
}

func TestAuditSinkReceivesEngineEvents(t *testing.T) {
	sink := NewChannelSink(16)
	te := newTestEngine(t, nil, func(b *Builder) { b.WithAuditSink(sink) })
	ctx := context.Background()

	login := te.mustLogin(t, "dev-1")
	if res := te.Login(ctx, "alice", "wrong", deviceContext("dev-1")); res.Success {
		t.Fatal("expected failed login")
	}

	first := nextAuditEvent(t, sink.Events())
	if first.Type != string(EventLoginSuccess) || first.UserID != aliceID || first.SessionID != login.SessionID {
		t.Fatalf("unexpected first audit event %+v", first)
	}
	if !first.Success || first.IP != testIP {
		t.Fatalf("unexpected outcome fields %+v", first)
	}

	second := nextAuditEvent(t, sink.Events())
	if second.Type != string(EventLoginFailure) || second.Code != string(CodeInvalidCredentials) {
		t.Fatalf("unexpected second audit event %+v", second)
	}
	if second.Details["identifier"] != "alice" {
		t.Fatalf("expected identifier detail, got %v", second.Details)
	}
	if first.DeviceID != "dev-1" || first.Details["device_id"] != "" {
		t.Fatalf("expected device id lifted out of details, got %+v", first)
	}
	if second.Seq <= first.Seq {
		t.Fatalf("expected increasing seq, got %d then %d", first.Seq, second.Seq)
	}
}

func TestAuditDropsWhenBufferFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	te := newTestEngine(t, func(cfg *Config) {
		cfg.Audit.BufferSize = 1
		cfg.Audit.DropIfFull = true
	}, func(b *Builder) { b.WithAuditSink(sink) })
	t.Cleanup(func() { close(sink.gate) })

	for i := 0; i < 10; i++ {
		te.Login(context.Background(), "alice", "wrong", LoginContext{IP: testIP, UserAgent: testAgent})
	}
	if te.AuditDropped() == 0 {
		t.Fatal("expected dropped audit events with a blocked sink")
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestJSONWriterSinkThroughEngine(t *testing.T) {
	var out lockedBuffer
	te := newTestEngine(t, nil, func(b *Builder) { b.WithAuditSink(NewJSONWriterSink(&out)) })
	te.mustLogin(t, "dev-1")

	if err := te.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	line, _, _ := strings.Cut(out.String(), "\n")
	var ev AuditEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatalf("audit line is not JSON: %q: %v", line, err)
	}
	if ev.Type != string(EventLoginSuccess) || ev.UserID != aliceID {
		t.Fatalf("unexpected audit line %+v", ev)
	}
}
