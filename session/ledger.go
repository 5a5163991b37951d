package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/portalauth/internal"
	"github.com/MrEthical07/portalauth/internal/keylock"
	"github.com/MrEthical07/portalauth/internal/sweeper"
)

var (
	// ErrLedgerUnavailable is returned by every operation on a ledger that is
	// not connected.
	ErrLedgerUnavailable = errors.New("session ledger unavailable")
	// ErrTokenNotFound covers unknown, expired and blacklisted token ids.
	ErrTokenNotFound = errors.New("token not found")
	// ErrSessionNotFound is returned when the referenced session is gone.
	ErrSessionNotFound = errors.New("session not found")
	// ErrChainNotFound is returned when a refresh token has no live chain,
	// including when it was already consumed by a concurrent rotation.
	ErrChainNotFound = errors.New("refresh chain not found")
	// ErrFamilyRevoked is returned when a chain belongs to a revoked family.
	ErrFamilyRevoked = errors.New("refresh family revoked")
	// ErrInvalidRecord is returned for records missing their identifiers.
	ErrInvalidRecord = errors.New("invalid ledger record")
)

// Config tunes a [Ledger].
type Config struct {
	// MaxSessionsPerUser caps concurrent sessions; <= 0 disables the cap.
	MaxSessionsPerUser int
	// IdleTimeout removes sessions without activity for this long.
	IdleTimeout time.Duration
	// RememberMeDuration replaces IdleTimeout for remember-me sessions.
	RememberMeDuration time.Duration
	// SweepInterval starts a background sweep on Connect when > 0.
	SweepInterval time.Duration
	// TouchPersistInterval throttles write-through of last-activity updates.
	TouchPersistInterval time.Duration

	Clock  func() time.Time
	Logger *zap.Logger
	// OnRemove is called after a session leaves the ledger, outside any lock.
	OnRemove func(sess Session, reason string)
}

// DefaultConfig returns a cap of 5 sessions, a 30 minute idle timeout, a 30
// day remember-me window and a one minute sweep.
func DefaultConfig() Config {
	return Config{
		MaxSessionsPerUser:   5,
		IdleTimeout:          30 * time.Minute,
		RememberMeDuration:   30 * 24 * time.Hour,
		SweepInterval:        time.Minute,
		TouchPersistInterval: time.Minute,
	}
}

// Ledger is the authoritative in-memory store of sessions, issued tokens,
// refresh chains and the blacklist. All deadlines share one sorted expiry
// index that [Ledger.Sweep] drains.
//
// A Ledger is constructed once, connected with [Ledger.Connect], and is safe
// for concurrent use while connected. Mutations that evaluate the per-user
// session cap are serialized per user; everything else is serialized by a
// single mutex held only for map updates.
type Ledger struct {
	config  Config
	backend Backend
	logger  *zap.Logger
	users   *keylock.Striped

	mu              sync.RWMutex
	connected       bool
	loop            *sweeper.Loop
	tokens          map[string]TokenRecord
	sessions        map[string]*Session
	byUser          map[string]map[string]struct{}
	sessionTokens   map[string]map[string]struct{}
	chains          map[string]Chain
	families        map[string]map[string]struct{}
	revokedFamilies map[string]time.Time
	blacklist       map[string]BlacklistEntry
	lastPersist     map[string]time.Time
	expiry          expiryIndex
}

// NewLedger returns a disconnected ledger. backend may be nil.
func NewLedger(cfg Config, backend Backend) *Ledger {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	l := &Ledger{
		config:  cfg,
		backend: backend,
		logger:  cfg.Logger,
		users:   keylock.New(keylock.DefaultStripes),
	}
	l.reset()
	return l
}

func (l *Ledger) reset() {
	l.tokens = make(map[string]TokenRecord)
	l.sessions = make(map[string]*Session)
	l.byUser = make(map[string]map[string]struct{})
	l.sessionTokens = make(map[string]map[string]struct{})
	l.chains = make(map[string]Chain)
	l.families = make(map[string]map[string]struct{})
	l.revokedFamilies = make(map[string]time.Time)
	l.blacklist = make(map[string]BlacklistEntry)
	l.lastPersist = make(map[string]time.Time)
	l.expiry = nil
}

func (l *Ledger) now() time.Time { return l.config.Clock() }

// Connect makes the ledger usable. With a backend configured it pings it and
// restores every unexpired record. Connecting twice is a no-op.
func (l *Ledger) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connected {
		return nil
	}
	if l.backend != nil {
		if err := l.backend.Ping(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
		if err := l.restoreLocked(ctx); err != nil {
			l.reset()
			return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
	}

	l.connected = true
	if l.config.SweepInterval > 0 {
		l.loop = sweeper.Start(l.config.SweepInterval, func(time.Time) { l.Sweep(l.now()) })
	}
	l.logger.Info("ledger connected", zap.Int("sessions", len(l.sessions)), zap.Int("tokens", len(l.tokens)))
	return nil
}

// Disconnect stops the background sweep and drops in-memory state. Records
// written through to a backend survive and are restored by the next Connect.
func (l *Ledger) Disconnect(context.Context) error {
	l.mu.Lock()
	loop := l.loop
	l.loop = nil
	l.connected = false
	l.reset()
	l.mu.Unlock()

	loop.Stop()
	l.logger.Info("ledger disconnected")
	return nil
}

// Connected reports whether the ledger accepts operations.
func (l *Ledger) Connected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// Persistent reports whether mutations are written through to a backend.
func (l *Ledger) Persistent() bool {
	return l.backend != nil
}

// Ping measures a round trip to the backend. Without a backend it returns
// immediately with a nil error.
func (l *Ledger) Ping(ctx context.Context) (time.Duration, error) {
	if l.backend == nil {
		return 0, nil
	}
	start := l.now()
	if err := l.backend.Ping(ctx); err != nil {
		return 0, err
	}
	return l.now().Sub(start), nil
}

// Put stores tok and, when sess is new, the session itself. A new session is
// admitted under the user's lock: while the user already holds the maximum
// number of sessions, the least recently active non-remember-me session is
// evicted (a remember-me session only when nothing else is left) and its live
// tokens are blacklisted until their natural expiry. Evicted sessions are
// returned.
//
//	Performance: O(sessions of the user) for a new session, O(log n) otherwise.
func (l *Ledger) Put(ctx context.Context, sess Session, tok TokenRecord) ([]Session, error) {
	if sess.UserID == "" || sess.SessionID == "" || tok.TokenID == "" {
		return nil, ErrInvalidRecord
	}

	unlock := l.users.Lock(sess.UserID)
	defer unlock()

	var (
		b       batch
		evicted []Session
	)

	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return nil, ErrLedgerUnavailable
	}
	now := l.now()

	if _, exists := l.sessions[sess.SessionID]; !exists {
		evicted = l.enforceCapLocked(sess.UserID, now, &b)
		if sess.LoginTime.IsZero() {
			sess.LoginTime = now
		}
		if sess.LastActivity.IsZero() {
			sess.LastActivity = sess.LoginTime
		}
		sess.Active = true
		l.putSessionLocked(&sess, now, &b)
	}

	tok.UserID = sess.UserID
	tok.SessionID = sess.SessionID
	l.putTokenLocked(tok, &b)
	l.mu.Unlock()

	l.flush(ctx, &b)
	return evicted, nil
}

// AddToken attaches tok to its existing session.
func (l *Ledger) AddToken(ctx context.Context, tok TokenRecord) error {
	if tok.TokenID == "" || tok.SessionID == "" {
		return ErrInvalidRecord
	}

	var b batch
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return ErrLedgerUnavailable
	}
	sess, ok := l.sessions[tok.SessionID]
	if !ok {
		l.mu.Unlock()
		return ErrSessionNotFound
	}
	tok.UserID = sess.UserID
	l.putTokenLocked(tok, &b)
	l.mu.Unlock()

	l.flush(ctx, &b)
	return nil
}

// Get returns the live record for tokenID. Expired records are evicted on
// read; blacklisted ids are reported as absent.
func (l *Ledger) Get(ctx context.Context, tokenID string) (TokenRecord, error) {
	l.mu.RLock()
	if !l.connected {
		l.mu.RUnlock()
		return TokenRecord{}, ErrLedgerUnavailable
	}
	now := l.now()
	rec, ok := l.tokens[tokenID]
	entry, banned := l.blacklist[tokenID]
	l.mu.RUnlock()

	if banned && now.Before(entry.Deadline) {
		return TokenRecord{}, ErrTokenNotFound
	}
	if !ok {
		return TokenRecord{}, ErrTokenNotFound
	}
	if now.Before(rec.ExpiresAt) {
		return rec, nil
	}

	var b batch
	l.mu.Lock()
	if cur, still := l.tokens[tokenID]; still && !now.Before(cur.ExpiresAt) {
		l.dropTokenLocked(tokenID, &b)
	}
	l.mu.Unlock()
	l.flush(ctx, &b)

	return TokenRecord{}, ErrTokenNotFound
}

// Touch records activity on the session owning tokenID. Last-activity writes
// reach the backend at most once per TouchPersistInterval per session.
func (l *Ledger) Touch(ctx context.Context, tokenID string) error {
	var b batch

	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return ErrLedgerUnavailable
	}
	rec, ok := l.tokens[tokenID]
	if !ok {
		l.mu.Unlock()
		return ErrTokenNotFound
	}
	sess, ok := l.sessions[rec.SessionID]
	if !ok {
		l.mu.Unlock()
		return ErrSessionNotFound
	}

	now := l.now()
	sess.LastActivity = now
	if l.backend != nil && now.Sub(l.lastPersist[sess.SessionID]) >= l.config.TouchPersistInterval {
		l.lastPersist[sess.SessionID] = now
		b.save(KindSession, sess.SessionID, *sess, sess.ExpiresAt.Sub(now))
	}
	l.mu.Unlock()

	l.flush(ctx, &b)
	return nil
}

// Session returns a copy of the session with id sessionID.
func (l *Ledger) Session(sessionID string) (Session, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.connected {
		return Session{}, ErrLedgerUnavailable
	}
	sess, ok := l.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *sess, nil
}

// ListByUser returns the user's sessions, most recently active first.
func (l *Ledger) ListByUser(userID string) ([]Session, error) {
	l.mu.RLock()
	if !l.connected {
		l.mu.RUnlock()
		return nil, ErrLedgerUnavailable
	}
	out := make([]Session, 0, len(l.byUser[userID]))
	for id := range l.byUser[userID] {
		out = append(out, *l.sessions[id])
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out, nil
}

// ActiveCount returns how many sessions the user holds.
func (l *Ledger) ActiveCount(userID string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.connected {
		return 0, ErrLedgerUnavailable
	}
	return len(l.byUser[userID]), nil
}

// Remove forgets tokenID without blacklisting it. It reports whether a record
// was present.
func (l *Ledger) Remove(ctx context.Context, tokenID string) (bool, error) {
	var b batch

	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return false, ErrLedgerUnavailable
	}
	_, ok := l.tokens[tokenID]
	if ok {
		l.dropTokenLocked(tokenID, &b)
	}
	l.mu.Unlock()

	l.flush(ctx, &b)
	return ok, nil
}

// RemoveSession removes the session, blacklists its live tokens and drops
// its refresh chains. Removing an absent session is a no-op.
func (l *Ledger) RemoveSession(ctx context.Context, sessionID, reason string) (Session, bool, error) {
	var b batch

	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return Session{}, false, ErrLedgerUnavailable
	}
	sess, ok := l.removeSessionLocked(sessionID, reason, l.now(), &b)
	l.mu.Unlock()

	l.flush(ctx, &b)
	return sess, ok, nil
}

// RemoveAllForUser removes every session of userID, blacklisting their tokens,
// and drops any remaining refresh chains owned by the user.
func (l *Ledger) RemoveAllForUser(ctx context.Context, userID, reason string) ([]Session, error) {
	unlock := l.users.Lock(userID)
	defer unlock()

	var (
		b       batch
		removed []Session
	)

	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return nil, ErrLedgerUnavailable
	}
	now := l.now()
	for id := range l.byUser[userID] {
		if sess, ok := l.removeSessionLocked(id, reason, now, &b); ok {
			removed = append(removed, sess)
		}
	}
	l.removeChainsForUserLocked(userID, reason, now, &b)
	l.mu.Unlock()

	l.flush(ctx, &b)
	return removed, nil
}

// Blacklist marks tokenID revoked until deadline. Blacklisting an id twice
// keeps the later deadline. The token's ledger record and chain, if any, are
// dropped.
func (l *Ledger) Blacklist(ctx context.Context, tokenID string, deadline time.Time, reason string) error {
	if tokenID == "" {
		return ErrInvalidRecord
	}

	var b batch
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return ErrLedgerUnavailable
	}
	l.blacklistLocked(tokenID, deadline, reason, l.now(), &b)
	l.mu.Unlock()

	l.flush(ctx, &b)
	return nil
}

// IsBlacklisted reports whether tokenID is revoked. Entries past their
// deadline no longer count even before the sweep removes them.
func (l *Ledger) IsBlacklisted(tokenID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.connected {
		return false, ErrLedgerUnavailable
	}
	entry, ok := l.blacklist[tokenID]
	return ok && l.now().Before(entry.Deadline), nil
}

// BlacklistEntry returns the live blacklist entry of tokenID, if any.
func (l *Ledger) BlacklistEntry(tokenID string) (BlacklistEntry, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.connected {
		return BlacklistEntry{}, false, ErrLedgerUnavailable
	}
	entry, ok := l.blacklist[tokenID]
	if !ok || !l.now().Before(entry.Deadline) {
		return BlacklistEntry{}, false, nil
	}
	return entry, true, nil
}

// Stats summarizes the sessions currently held.
func (l *Ledger) Stats() (Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.connected {
		return Stats{}, ErrLedgerUnavailable
	}

	now := l.now()
	st := Stats{ByDeviceType: map[string]int{}, ByLocation: map[string]int{}}
	for _, sess := range l.sessions {
		st.Total++
		if sess.Active && now.Before(sess.ExpiresAt) {
			st.Active++
		} else {
			st.Expired++
		}
		st.ByDeviceType[orUnknown(sess.Device.Type)]++
		st.ByLocation[orUnknown(sess.Location)]++
	}
	return st, nil
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// enforceCapLocked evicts sessions of userID until one more fits.
func (l *Ledger) enforceCapLocked(userID string, now time.Time, b *batch) []Session {
	limit := l.config.MaxSessionsPerUser
	if limit <= 0 {
		return nil
	}

	var evicted []Session
	for len(l.byUser[userID]) >= limit {
		victim := l.evictionCandidateLocked(userID)
		if victim == "" {
			break
		}
		sess, ok := l.removeSessionLocked(victim, ReasonEvicted, now, b)
		if !ok {
			break
		}
		evicted = append(evicted, sess)
		l.logger.Info("session evicted",
			zap.String("user_id", userID),
			zap.String("session_id", sess.SessionID),
			zap.Int("limit", limit),
		)
	}
	return evicted
}

// evictionCandidateLocked picks the least recently active non-remember-me
// session, falling back to remember-me sessions when none other exists.
func (l *Ledger) evictionCandidateLocked(userID string) string {
	var best, bestRemember *Session
	older := func(a, c *Session) bool {
		if c == nil {
			return true
		}
		if !a.LastActivity.Equal(c.LastActivity) {
			return a.LastActivity.Before(c.LastActivity)
		}
		if !a.LoginTime.Equal(c.LoginTime) {
			return a.LoginTime.Before(c.LoginTime)
		}
		return a.SessionID < c.SessionID
	}

	for id := range l.byUser[userID] {
		sess := l.sessions[id]
		if sess.RememberMe {
			if older(sess, bestRemember) {
				bestRemember = sess
			}
			continue
		}
		if older(sess, best) {
			best = sess
		}
	}

	switch {
	case best != nil:
		return best.SessionID
	case bestRemember != nil:
		return bestRemember.SessionID
	default:
		return ""
	}
}

func (l *Ledger) putSessionLocked(sess *Session, now time.Time, b *batch) {
	stored := *sess
	l.sessions[stored.SessionID] = &stored

	ids, ok := l.byUser[stored.UserID]
	if !ok {
		ids = make(map[string]struct{})
		l.byUser[stored.UserID] = ids
	}
	ids[stored.SessionID] = struct{}{}

	if !stored.ExpiresAt.IsZero() {
		l.expiry.add(KindSession, stored.SessionID, stored.ExpiresAt)
	}
	l.lastPersist[stored.SessionID] = now
	b.save(KindSession, stored.SessionID, stored, stored.ExpiresAt.Sub(now))
}

func (l *Ledger) putTokenLocked(tok TokenRecord, b *batch) {
	l.tokens[tok.TokenID] = tok

	ids, ok := l.sessionTokens[tok.SessionID]
	if !ok {
		ids = make(map[string]struct{})
		l.sessionTokens[tok.SessionID] = ids
	}
	ids[tok.TokenID] = struct{}{}

	l.expiry.add(KindToken, tok.TokenID, tok.ExpiresAt)
	b.save(KindToken, tok.TokenID, tok, tok.ExpiresAt.Sub(l.now()))
}

func (l *Ledger) dropTokenLocked(tokenID string, b *batch) {
	rec, ok := l.tokens[tokenID]
	if !ok {
		return
	}
	delete(l.tokens, tokenID)
	if ids, ok := l.sessionTokens[rec.SessionID]; ok {
		delete(ids, tokenID)
		if len(ids) == 0 {
			delete(l.sessionTokens, rec.SessionID)
		}
	}
	b.del(KindToken, tokenID)
}

func (l *Ledger) blacklistLocked(tokenID string, deadline time.Time, reason string, now time.Time, b *batch) {
	if prev, ok := l.blacklist[tokenID]; ok && !deadline.After(prev.Deadline) {
		l.dropTokenLocked(tokenID, b)
		l.dropChainLocked(tokenID, b)
		return
	}

	entry := BlacklistEntry{TokenID: tokenID, Deadline: deadline, Reason: reason}
	l.blacklist[tokenID] = entry
	l.expiry.add(KindBlacklist, tokenID, deadline)
	b.save(KindBlacklist, tokenID, entry, deadline.Sub(now))

	l.dropTokenLocked(tokenID, b)
	l.dropChainLocked(tokenID, b)

	l.logger.Debug("token blacklisted",
		zap.String("token", internal.TokenDigest(tokenID)),
		zap.String("reason", reason),
		zap.Time("deadline", deadline),
	)
}

// removeSessionLocked drops a session and blacklists its tokens that have
// not yet expired.
func (l *Ledger) removeSessionLocked(sessionID, reason string, now time.Time, b *batch) (Session, bool) {
	sess, ok := l.sessions[sessionID]
	if !ok {
		return Session{}, false
	}

	for tokenID := range l.sessionTokens[sessionID] {
		rec := l.tokens[tokenID]
		if now.Before(rec.ExpiresAt) {
			l.blacklistLocked(tokenID, rec.ExpiresAt, reason, now, b)
		} else {
			l.dropTokenLocked(tokenID, b)
			l.dropChainLocked(tokenID, b)
		}
	}
	delete(l.sessionTokens, sessionID)

	delete(l.sessions, sessionID)
	delete(l.lastPersist, sessionID)
	if ids, ok := l.byUser[sess.UserID]; ok {
		delete(ids, sessionID)
		if len(ids) == 0 {
			delete(l.byUser, sess.UserID)
		}
	}
	b.del(KindSession, sessionID)

	out := *sess
	out.Active = false
	b.removed = append(b.removed, removal{session: out, reason: reason})
	return out, true
}

// batch collects backend writes and hook calls made under the lock so they
// run after it is released.
type batch struct {
	writes  []write
	removed []removal
}

type write struct {
	kind  Kind
	key   string
	value any
	ttl   time.Duration
	del   bool
}

type removal struct {
	session Session
	reason  string
}

func (b *batch) save(kind Kind, key string, value any, ttl time.Duration) {
	b.writes = append(b.writes, write{kind: kind, key: key, value: value, ttl: ttl})
}

func (b *batch) del(kind Kind, key string) {
	b.writes = append(b.writes, write{kind: kind, key: key, del: true})
}

func (l *Ledger) flush(ctx context.Context, b *batch) {
	if l.backend != nil {
		for _, w := range b.writes {
			var err error
			if w.del {
				err = l.backend.Delete(ctx, w.kind, w.key)
			} else {
				var raw []byte
				if raw, err = json.Marshal(w.value); err == nil {
					err = l.backend.Save(ctx, w.kind, w.key, raw, w.ttl)
				}
			}
			if err != nil {
				l.logger.Warn("ledger write-through failed",
					zap.String("kind", string(w.kind)),
					zap.Bool("delete", w.del),
					zap.Error(err),
				)
			}
		}
	}

	if l.config.OnRemove != nil {
		for _, r := range b.removed {
			l.config.OnRemove(r.session, r.reason)
		}
	}
}
