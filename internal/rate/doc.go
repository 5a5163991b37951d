// Package rate implements per-category token buckets keyed by an arbitrary
// identifier (username, API key, or a fixed global key).
//
// # Bucket semantics
//
// Each [Rule] defines a bucket of Points tokens refilled continuously at
// Points per Duration. A Consume takes one token; when the bucket is empty the
// [Decision] is denied and carries the instant at which one token will be
// available again.
//
// Two implementations share the [Limiter] interface:
//   - [MemoryLimiter] keeps one golang.org/x/time/rate limiter per key and
//     prunes idle buckets on Sweep.
//   - [RedisLimiter] runs the refill-and-take step as a single Lua script so
//     replicas share one bucket per key. Keys: <prefix><category>:<key>.
//
// # What this package must NOT do
//
//   - Decide what a denial means for login or request handling.
//   - Be imported outside the portalauth module.
package rate
