package session

import (
	"context"
	"errors"
	"time"
)

// ErrBackendUnavailable wraps failures of a persistence [Backend].
var ErrBackendUnavailable = errors.New("session backend unavailable")

// Backend is the optional write-through store behind a [Ledger]. The ledger
// stays authoritative; the backend lets a restarted process restore state.
//
// Values are opaque encoded records. Save must honor ttl so abandoned records
// expire without a sweep. Load calls fn once per stored record of kind.
type Backend interface {
	Save(ctx context.Context, kind Kind, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, kind Kind, keys ...string) error
	Load(ctx context.Context, kind Kind, fn func(key string, value []byte) error) error
	Ping(ctx context.Context) error
}
