package ocean

import "time"

// Clock tracks animation time. While paused the start time is re-based every
// tick so that elapsed time resumes where it stopped.
type Clock struct {
	start   time.Time
	elapsed time.Duration
}

// NewClock starts a clock at now.
func NewClock(now time.Time) *Clock { return &Clock{start: now} }

// Advance returns the elapsed animation time and the time since the previous
// animated tick, both in seconds. A paused tick returns dt = 0.
func (c *Clock) Advance(now time.Time, animate bool) (elapsed, dt float32) {
	if !animate {
		c.start = now.Add(-c.elapsed)
		return float32(c.elapsed.Seconds()), 0
	}
	e := now.Sub(c.start)
	if e < c.elapsed {
		e = c.elapsed
	}
	d := e - c.elapsed
	c.elapsed = e
	return float32(e.Seconds()), float32(d.Seconds())
}

// Elapsed is the animation time reached so far.
func (c *Clock) Elapsed() time.Duration { return c.elapsed }
