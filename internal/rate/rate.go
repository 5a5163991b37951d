package rate

import (
	"context"
	"fmt"
	"time"
)

// Category selects an independent family of buckets.
type Category string

const (
	CategoryLogin  Category = "login"
	CategoryAPI    Category = "api"
	CategoryGlobal Category = "global"
)

// Rule is a bucket capacity and the window over which it fully refills.
type Rule struct {
	Points   int
	Duration time.Duration
}

func (r Rule) perSecond() float64 {
	return float64(r.Points) / r.Duration.Seconds()
}

// timeFor returns how long the bucket needs to accumulate tokens, rounded up
// to the next millisecond.
func (r Rule) timeFor(tokens float64) time.Duration {
	if tokens <= 0 {
		return 0
	}
	d := time.Duration(tokens / r.perSecond() * float64(time.Second))
	return d.Truncate(time.Millisecond) + time.Millisecond
}

// Config configures a limiter. Clock defaults to time.Now; IdleTTL defaults to
// the longest rule duration.
type Config struct {
	Rules   map[Category]Rule
	IdleTTL time.Duration
	Prefix  string
	Clock   func() time.Time
}

// Decision is the outcome of a single Consume. ResetTime is when the next
// token becomes available for a denied call, or when the bucket is full again
// for an admitted one.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

// Limiter consumes tokens from per-key buckets.
type Limiter interface {
	Consume(ctx context.Context, key string, category Category) (Decision, error)
	Reset(ctx context.Context, key string, category Category) error
}

// DefaultRules returns login 20 per 15 minutes, api 100 per minute and
// global 1000 per minute.
func DefaultRules() map[Category]Rule {
	return map[Category]Rule{
		CategoryLogin:  {Points: 20, Duration: 15 * time.Minute},
		CategoryAPI:    {Points: 100, Duration: time.Minute},
		CategoryGlobal: {Points: 1000, Duration: time.Minute},
	}
}

func (c *Config) normalize() error {
	if len(c.Rules) == 0 {
		c.Rules = DefaultRules()
	}
	var longest time.Duration
	for cat, rule := range c.Rules {
		if rule.Points <= 0 || rule.Duration <= 0 {
			return fmt.Errorf("rate rule %q: points and duration must be > 0", cat)
		}
		if rule.Duration > longest {
			longest = rule.Duration
		}
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = longest
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return nil
}

func bucketKey(category Category, key string) string {
	return string(category) + ":" + key
}
