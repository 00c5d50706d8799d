package clock

import "time"

// Clock is the single time source for the service. TTL math, lockout math
// and expiry checks all read through it so tests can advance time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func System() Clock {
	return systemClock{}
}
