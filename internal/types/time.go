package types

import "time"

// Clock abstracts wall time so expiry and scheduling decisions can be tested
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystemClock returns a Clock backed by time.Now in UTC
func NewSystemClock() Clock {
	return systemClock{}
}

// NextDailyBoundary returns the first instant strictly after t whose UTC wall clock
// hour equals hour with zero minutes and seconds.
func NextDailyBoundary(t time.Time, hour int) time.Time {
	t = t.UTC()
	boundary := time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, time.UTC)
	if !boundary.After(t) {
		boundary = boundary.AddDate(0, 0, 1)
	}
	return boundary
}
