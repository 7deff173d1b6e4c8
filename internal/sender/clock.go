package sender

import "time"

// Clock is a monotonic seconds-since-construction source. All timeouts,
// RTT samples and slot timestamps are expressed in this clock's units.
type Clock struct {
	start time.Time
}

// NewClock creates a Clock anchored at the current instant.
func NewClock() *Clock {
	return &Clock{start: time.Now()}
}

// Now returns the number of seconds elapsed since the Clock was created.
func (c *Clock) Now() float64 {
	return time.Since(c.start).Seconds()
}
