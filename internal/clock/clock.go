package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time to everything that reasons about expiry
type Clock interface {
	Now() time.Time
}

// System is the wall clock
type System struct{}

// Now returns time.Now in UTC
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fake is a manually driven clock for tests and simulations
type Fake struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFake returns a Fake clock frozen at t
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

// Now returns the frozen time
func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.now
}

// Set moves the clock to t
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
