package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Sweep removes everything due at now: expired tokens, sessions and chains,
// lapsed blacklist entries and family marks, and idle sessions. It works
// from a snapshot of due keys and re-checks each one under the lock, so a key
// already removed by a foreground call is skipped.
//
// Idle sessions are those without activity for IdleTimeout, or for
// RememberMeDuration when remember-me is set. Their live tokens are
// blacklisted.
func (l *Ledger) Sweep(now time.Time) SweepReport {
	var report SweepReport

	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return report
	}
	due := l.expiry.popDue(now)
	l.mu.Unlock()

	var b batch
	for _, d := range due {
		l.mu.Lock()
		l.sweepOneLocked(d, now, &report, &b)
		l.mu.Unlock()
	}

	l.mu.RLock()
	var idle []string
	for id, sess := range l.sessions {
		if l.idleAt(sess, now) {
			idle = append(idle, id)
		}
	}
	l.mu.RUnlock()

	for _, id := range idle {
		l.mu.Lock()
		if sess, ok := l.sessions[id]; ok && l.idleAt(sess, now) {
			if _, removed := l.removeSessionLocked(id, ReasonIdle, now, &b); removed {
				report.Idle++
			}
		}
		l.mu.Unlock()
	}

	l.flush(context.Background(), &b)

	if report != (SweepReport{}) {
		l.logger.Debug("ledger sweep",
			zap.Int("tokens", report.Tokens),
			zap.Int("sessions", report.Sessions),
			zap.Int("idle", report.Idle),
			zap.Int("chains", report.Chains),
			zap.Int("blacklist", report.Blacklist),
			zap.Int("families", report.Families),
		)
	}
	return report
}

func (l *Ledger) sweepOneLocked(d deadline, now time.Time, report *SweepReport, b *batch) {
	switch d.kind {
	case KindToken:
		if rec, ok := l.tokens[d.key]; ok && !rec.ExpiresAt.After(now) {
			l.dropTokenLocked(d.key, b)
			report.Tokens++
		}
	case KindSession:
		if sess, ok := l.sessions[d.key]; ok && !sess.ExpiresAt.IsZero() && !sess.ExpiresAt.After(now) {
			if _, removed := l.removeSessionLocked(d.key, ReasonExpired, now, b); removed {
				report.Sessions++
			}
		}
	case KindChain:
		if c, ok := l.chains[d.key]; ok && !c.ExpiresAt.After(now) {
			l.dropChainLocked(d.key, b)
			report.Chains++
		}
	case KindBlacklist:
		if entry, ok := l.blacklist[d.key]; ok && !entry.Deadline.After(now) {
			delete(l.blacklist, d.key)
			b.del(KindBlacklist, d.key)
			report.Blacklist++
		}
	case KindFamily:
		if until, ok := l.revokedFamilies[d.key]; ok && !until.After(now) {
			delete(l.revokedFamilies, d.key)
			b.del(KindFamily, d.key)
			report.Families++
		}
	}
}

func (l *Ledger) idleAt(sess *Session, now time.Time) bool {
	limit := l.config.IdleTimeout
	if sess.RememberMe {
		limit = l.config.RememberMeDuration
	}
	return limit > 0 && now.Sub(sess.LastActivity) > limit
}

// restoreLocked rebuilds state from the backend, skipping anything already
// past its deadline.
func (l *Ledger) restoreLocked(ctx context.Context) error {
	now := l.now()

	load := func(kind Kind, fn func(raw []byte) error) error {
		return l.backend.Load(ctx, kind, func(key string, raw []byte) error {
			if err := fn(raw); err != nil {
				return fmt.Errorf("decode %s %s: %w", kind, key, err)
			}
			return nil
		})
	}

	var discard batch
	steps := []struct {
		kind Kind
		fn   func(raw []byte) error
	}{
		{KindSession, func(raw []byte) error {
			var sess Session
			if err := json.Unmarshal(raw, &sess); err != nil {
				return err
			}
			if !sess.ExpiresAt.IsZero() && !now.Before(sess.ExpiresAt) {
				return nil
			}
			l.putSessionLocked(&sess, now, &discard)
			return nil
		}},
		{KindToken, func(raw []byte) error {
			var rec TokenRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			if now.Before(rec.ExpiresAt) {
				l.putTokenLocked(rec, &discard)
			}
			return nil
		}},
		{KindChain, func(raw []byte) error {
			var c Chain
			if err := json.Unmarshal(raw, &c); err != nil {
				return err
			}
			if !now.Before(c.ExpiresAt) {
				return nil
			}
			l.chains[c.TokenID] = c
			members, ok := l.families[c.FamilyID]
			if !ok {
				members = make(map[string]struct{})
				l.families[c.FamilyID] = members
			}
			members[c.TokenID] = struct{}{}
			l.expiry.add(KindChain, c.TokenID, c.ExpiresAt)
			return nil
		}},
		{KindBlacklist, func(raw []byte) error {
			var entry BlacklistEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				return err
			}
			if now.Before(entry.Deadline) {
				l.blacklist[entry.TokenID] = entry
				l.expiry.add(KindBlacklist, entry.TokenID, entry.Deadline)
			}
			return nil
		}},
		{KindFamily, func(raw []byte) error {
			var mark familyMark
			if err := json.Unmarshal(raw, &mark); err != nil {
				return err
			}
			if now.Before(mark.Deadline) {
				l.revokedFamilies[mark.FamilyID] = mark.Deadline
				l.expiry.add(KindFamily, mark.FamilyID, mark.Deadline)
			}
			return nil
		}},
	}

	for _, step := range steps {
		if err := load(step.kind, step.fn); err != nil {
			return err
		}
	}
	return nil
}
