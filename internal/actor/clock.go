package actor

import "time"

// Clock is the injectable time source runtimes use when stamping inputs.
// Reducers never read it; they receive timestamps on their inputs.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
