package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PutChain registers c as the live link of its family and records its token
// under the owning session. Chains of a revoked family are refused, as are
// chains whose session has already been removed.
func (l *Ledger) PutChain(ctx context.Context, c Chain) error {
	if c.TokenID == "" || c.FamilyID == "" || c.UserID == "" {
		return ErrInvalidRecord
	}

	var b batch
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return ErrLedgerUnavailable
	}
	now := l.now()
	if l.familyRevokedLocked(c.FamilyID, now) {
		l.mu.Unlock()
		return ErrFamilyRevoked
	}
	if c.SessionID != "" {
		if _, ok := l.sessions[c.SessionID]; !ok {
			l.mu.Unlock()
			return ErrSessionNotFound
		}
	}

	l.chains[c.TokenID] = c
	members, ok := l.families[c.FamilyID]
	if !ok {
		members = make(map[string]struct{})
		l.families[c.FamilyID] = members
	}
	members[c.TokenID] = struct{}{}
	l.expiry.add(KindChain, c.TokenID, c.ExpiresAt)
	b.save(KindChain, c.TokenID, c, c.ExpiresAt.Sub(now))

	l.putTokenLocked(TokenRecord{
		TokenID:   c.TokenID,
		UserID:    c.UserID,
		SessionID: c.SessionID,
		Kind:      "refresh",
		IssuedAt:  now,
		ExpiresAt: c.ExpiresAt,
	}, &b)
	l.mu.Unlock()

	l.flush(ctx, &b)
	return nil
}

// Chain returns the live chain whose current refresh token is tokenID.
func (l *Ledger) Chain(tokenID string) (Chain, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.connected {
		return Chain{}, ErrLedgerUnavailable
	}
	c, ok := l.chains[tokenID]
	if !ok || !l.now().Before(c.ExpiresAt) {
		return Chain{}, ErrChainNotFound
	}
	return c, nil
}

// ConsumeChain atomically takes the chain of tokenID and blacklists the token
// until its expiry. Of several concurrent calls for the same token exactly
// one succeeds; the rest get [ErrChainNotFound].
func (l *Ledger) ConsumeChain(ctx context.Context, tokenID string) (Chain, error) {
	var b batch

	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return Chain{}, ErrLedgerUnavailable
	}
	now := l.now()
	c, ok := l.chains[tokenID]
	if !ok || !now.Before(c.ExpiresAt) {
		l.mu.Unlock()
		return Chain{}, ErrChainNotFound
	}
	if l.familyRevokedLocked(c.FamilyID, now) {
		l.mu.Unlock()
		return Chain{}, ErrFamilyRevoked
	}
	l.blacklistLocked(tokenID, c.ExpiresAt, ReasonRotated, now, &b)
	l.mu.Unlock()

	l.flush(ctx, &b)
	return c, nil
}

// RevokeFamily blacklists every live member of familyID under reason and
// refuses new members until deadline. An empty reason records
// [ReasonFamily]. It returns how many live tokens were revoked.
func (l *Ledger) RevokeFamily(ctx context.Context, familyID string, deadline time.Time, reason string) (int, error) {
	if familyID == "" {
		return 0, ErrInvalidRecord
	}
	if reason == "" {
		reason = ReasonFamily
	}

	var b batch
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return 0, ErrLedgerUnavailable
	}
	now := l.now()

	if prev, ok := l.revokedFamilies[familyID]; !ok || deadline.After(prev) {
		l.revokedFamilies[familyID] = deadline
		l.expiry.add(KindFamily, familyID, deadline)
		b.save(KindFamily, familyID, familyMark{FamilyID: familyID, Deadline: deadline}, deadline.Sub(now))
	}

	revoked := 0
	for tokenID := range l.families[familyID] {
		c, ok := l.chains[tokenID]
		if !ok {
			continue
		}
		until := c.ExpiresAt
		if until.Before(now) {
			until = deadline
		}
		l.blacklistLocked(tokenID, until, reason, now, &b)
		revoked++
	}
	delete(l.families, familyID)
	l.mu.Unlock()

	l.flush(ctx, &b)
	l.logger.Warn("refresh family revoked",
		zap.String("family_id", familyID),
		zap.String("reason", reason),
		zap.Int("revoked", revoked),
	)
	return revoked, nil
}

// FamilyChain returns the newest live chain of familyID.
func (l *Ledger) FamilyChain(familyID string) (Chain, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.connected {
		return Chain{}, ErrLedgerUnavailable
	}
	now := l.now()
	if l.familyRevokedLocked(familyID, now) {
		return Chain{}, ErrFamilyRevoked
	}

	var (
		head  Chain
		found bool
	)
	for tokenID := range l.families[familyID] {
		c, ok := l.chains[tokenID]
		if !ok || !now.Before(c.ExpiresAt) {
			continue
		}
		if !found || c.RotationCount > head.RotationCount {
			head, found = c, true
		}
	}
	if !found {
		return Chain{}, ErrChainNotFound
	}
	return head, nil
}

// FamilyRevoked reports whether familyID is revoked.
func (l *Ledger) FamilyRevoked(familyID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.connected {
		return false, ErrLedgerUnavailable
	}
	return l.familyRevokedLocked(familyID, l.now()), nil
}

// RemoveChainsForUser blacklists and drops every live chain of userID.
func (l *Ledger) RemoveChainsForUser(ctx context.Context, userID, reason string) (int, error) {
	var b batch

	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return 0, ErrLedgerUnavailable
	}
	n := l.removeChainsForUserLocked(userID, reason, l.now(), &b)
	l.mu.Unlock()

	l.flush(ctx, &b)
	return n, nil
}

func (l *Ledger) removeChainsForUserLocked(userID, reason string, now time.Time, b *batch) int {
	n := 0
	for tokenID, c := range l.chains {
		if c.UserID != userID {
			continue
		}
		if now.Before(c.ExpiresAt) {
			l.blacklistLocked(tokenID, c.ExpiresAt, reason, now, b)
		} else {
			l.dropChainLocked(tokenID, b)
			l.dropTokenLocked(tokenID, b)
		}
		n++
	}
	return n
}

func (l *Ledger) familyRevokedLocked(familyID string, now time.Time) bool {
	until, ok := l.revokedFamilies[familyID]
	return ok && now.Before(until)
}

func (l *Ledger) dropChainLocked(tokenID string, b *batch) {
	c, ok := l.chains[tokenID]
	if !ok {
		return
	}
	delete(l.chains, tokenID)
	if members, ok := l.families[c.FamilyID]; ok {
		delete(members, tokenID)
		if len(members) == 0 {
			delete(l.families, c.FamilyID)
		}
	}
	b.del(KindChain, tokenID)
}

type familyMark struct {
	FamilyID string    `json:"family_id"`
	Deadline time.Time `json:"deadline"`
}
