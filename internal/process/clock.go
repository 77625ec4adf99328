package process

import "time"

// Clock abstracts the waits the manager performs.
type Clock interface {
	Sleep(d time.Duration)
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
