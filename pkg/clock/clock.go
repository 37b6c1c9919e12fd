package clock

import "time"

// clock provides monotonic time since process start
// we use time.Since which reads the monotonic clock under the hood
// time.Now alone can go backwards if system time is changed
// wait and hold durations are always measured against a fixed start time
type Clock struct {
	startTime time.Time
}

func NewClock() *Clock {
	return &Clock{
		startTime: time.Now(),
	}
}

// duration since process start
// this duration is monotonic and always moves forward
func (c *Clock) Elapsed() time.Duration {
	return time.Since(c.startTime)
}
