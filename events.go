package portalauth

import (
	"context"
	"maps"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/portalauth/internal/audit"
	"github.com/MrEthical07/portalauth/session"
)

// EventType names a state transition reported to observers.
type EventType string

const (
	EventLoginSuccess     EventType = "login_success"
	EventLoginFailure     EventType = "login_failure"
	EventLockoutEngaged   EventType = "lockout_engaged"
	EventTokenBlacklisted EventType = "token_blacklisted"
	EventSessionEvicted   EventType = "session_evicted"
	EventSessionExpired   EventType = "session_expired"
	EventFamilyRevoked    EventType = "family_revoked"
	EventLogout           EventType = "logout"
	EventRefresh          EventType = "refresh"
	EventSuspicious       EventType = "suspicious_activity"
)

// Event describes one transition. It is delivered after the transition has
// been applied.
type Event struct {
	Type      EventType
	At        time.Time
	UserID    string
	SessionID string
	IP        string
	Success   bool
	Code      Code
	Details   map[string]string
}

// Observer receives events synchronously, in the order they happen, on the
// goroutine that caused them. Implementations must not block and must not
// call back into the Engine.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

func (e *Engine) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	for _, o := range e.observers {
		o.OnEvent(ev)
	}
	if e.audit != nil {
		e.audit.Emit(context.Background(), auditEvent(ev))
	}
}

// auditEvent lifts the device id out of Details into its own field.
func auditEvent(ev Event) audit.Event {
	details := ev.Details
	deviceID := details["device_id"]
	if deviceID != "" {
		details = maps.Clone(details)
		delete(details, "device_id")
	}
	return audit.Event{
		Type:      string(ev.Type),
		At:        ev.At,
		UserID:    ev.UserID,
		SessionID: ev.SessionID,
		DeviceID:  deviceID,
		IP:        ev.IP,
		Success:   ev.Success,
		Code:      string(ev.Code),
		Details:   details,
	}
}

// onSessionRemoved is the ledger's removal hook. Logout removals are reported
// by the logout path itself.
func (e *Engine) onSessionRemoved(sess session.Session, reason string) {
	var typ EventType
	switch reason {
	case session.ReasonEvicted:
		typ = EventSessionEvicted
		e.metricInc(MetricSessionEvicted)
	case session.ReasonIdle, session.ReasonExpired:
		typ = EventSessionExpired
		e.metricInc(MetricSessionExpired)
	default:
		return
	}

	e.logger.Debug("session removed",
		zap.String("user_id", sess.UserID),
		zap.String("session_id", sess.SessionID),
		zap.String("reason", reason),
	)
	e.emit(Event{
		Type:      typ,
		UserID:    sess.UserID,
		SessionID: sess.SessionID,
		IP:        sess.IP,
		Success:   true,
		Details:   map[string]string{"reason": reason, "device_id": sess.DeviceID},
	})
}
