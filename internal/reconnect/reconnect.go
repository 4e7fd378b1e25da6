package reconnect

import (
	"sync"
	"time"
)

// Schedule defines the backoff durations for successive setup attempts.
var Schedule = []time.Duration{
	time.Second, time.Second, time.Second,
	5 * time.Second, 5 * time.Second, 5 * time.Second,
	15 * time.Second, 15 * time.Second, 15 * time.Second,
}

// Delay returns the backoff duration for the given attempt.
// Attempts beyond the length of the schedule default to 30 seconds.
func Delay(attempt int) time.Duration {
	if attempt < len(Schedule) {
		return Schedule[attempt]
	}
	return 30 * time.Second
}

// Backoff gates repeated attempts of an operation polled from a hot loop,
// such as re-arming a listener on every receive.
type Backoff struct {
	mu      sync.Mutex
	attempt int
	next    time.Time
	now     func() time.Time
}

// NewBackoff returns a Backoff using the wall clock.
func NewBackoff() *Backoff {
	return &Backoff{now: time.Now}
}

// Ready reports whether the next attempt may run.
func (b *Backoff) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.clock().Before(b.next)
}

// Fail records a failed attempt and returns the delay before the next one.
func (b *Backoff) Fail() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := Delay(b.attempt)
	b.attempt++
	b.next = b.clock().Add(d)
	return d
}

// Reset clears the failure history after a successful attempt.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempt = 0
	b.next = time.Time{}
	b.mu.Unlock()
}

func (b *Backoff) clock() time.Time {
	if b.now == nil {
		return time.Now()
	}
	return b.now()
}
