package mux

import "time"

// Clock is the time source of the scheduler
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the system clock
var SystemClock Clock = systemClock{}

// Usec24 converts a duration to 24ths of microsecond
func Usec24(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d.Microseconds()) * 24
}
