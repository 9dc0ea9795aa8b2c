package core

import "time"

// Clock supplies "now" for payment date bounds and schedule partitioning.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

// Today is the calendar date of c's current instant in UTC.
func Today(c Clock) Date {
	return DateOf(c.Now())
}
