package clock

import (
	"sync"
	"time"
)

// Clock is the capability every date-sensitive component receives instead of
// reading ambient wall time. All billing date math takes an explicit reference
// instant obtained from here.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// New returns a Clock backed by the system wall clock in UTC.
func New() Clock {
	return systemClock{}
}

// TestClock is a manually advanced clock for tests. The zero value is not
// usable; construct with NewTestClock.
type TestClock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewTestClock(now time.Time) *TestClock {
	return &TestClock{now: now.UTC()}
}

func (c *TestClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// SetTime moves the clock to the given instant.
func (c *TestClock) SetTime(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now.UTC()
}

// Advance moves the clock forward by d.
func (c *TestClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
