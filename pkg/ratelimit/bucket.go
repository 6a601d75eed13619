// Package ratelimit implements the token bucket that bounds the
// withdrawal submission rate.
package ratelimit

import (
	"sync"
	"time"

	"github.com/creasty/defaults"
)

// Config controls bucket capacity and refill behaviour. Refill is
// window based: every Window, RefillAmount tokens are added up to
// Capacity.
type Config struct {
	Capacity     int64         `mapstructure:"capacity" default:"10"`
	RefillAmount int64         `mapstructure:"refill_amount" default:"10"`
	Window       time.Duration `mapstructure:"window" default:"1m"`
}

// Bucket is a token bucket safe for concurrent use.
type Bucket struct {
	mu         sync.Mutex
	capacity   int64
	refill     int64
	window     time.Duration
	tokens     int64
	lastRefill time.Time
	now        func() time.Time
}

func NewBucket(cfg *Config) *Bucket {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := defaults.Set(cfg); err != nil {
		panic(err)
	}

	b := &Bucket{
		capacity: cfg.Capacity,
		refill:   cfg.RefillAmount,
		window:   cfg.Window,
		tokens:   cfg.Capacity,
		now:      time.Now,
	}
	b.lastRefill = b.now()
	return b
}

// Allow takes one token. It returns false when the bucket is empty,
// without blocking.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// Available reports the current token count after refill.
func (b *Bucket) Available() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	return b.tokens
}

func (b *Bucket) refillLocked() {
	elapsed := b.now().Sub(b.lastRefill)
	if elapsed < b.window {
		return
	}

	windows := int64(elapsed / b.window)
	b.tokens += windows * b.refill
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = b.lastRefill.Add(time.Duration(windows) * b.window)
}
