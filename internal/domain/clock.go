package domain

import "time"

// Clock supplies the current instant. Services take one so tests can pin time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current UTC time at second precision
func (SystemClock) Now() time.Time {
	return Normalize(time.Now())
}

// FixedClock always returns T. Advance moves it forward.
type FixedClock struct {
	T time.Time
}

// Now returns the pinned instant
func (c *FixedClock) Now() time.Time {
	return Normalize(c.T)
}

// Advance moves the clock forward by d
func (c *FixedClock) Advance(d time.Duration) {
	c.T = c.T.Add(d)
}

// Normalize converts t to UTC and drops sub-second precision, which is the
// resolution instants are stored at.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// DurationSeconds returns the whole seconds between start and end, clamped
// at zero when end precedes start.
func DurationSeconds(start, end time.Time) int64 {
	secs := int64(end.Sub(start) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}
