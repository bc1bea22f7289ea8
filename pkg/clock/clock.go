package clock

import "time"

// Clock is our interface for a type that can be used to tell the time. All
// times handed out are in UTC as this is the zone in which readings are stored
// and labelled.
type Clock interface {
	// Now returns the current time
	Now() time.Time
}

// New returns a new real Clock instance.
func New() Clock {
	return &realClock{}
}

type realClock struct{}

// Now is our implementation of the Now method of the Clock interface. Returns
// the result of time.Now converted to UTC.
func (r *realClock) Now() time.Time {
	return time.Now().UTC()
}
