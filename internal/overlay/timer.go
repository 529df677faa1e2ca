package overlay

import "time"

// Timer counts down from a duration. Used for the lead-in and retention
// overlays.
type Timer struct {
	duration  time.Duration
	remaining time.Duration
	started   bool
}

func NewTimer(d time.Duration) *Timer {
	return &Timer{duration: d, remaining: d}
}

// Start begins a countdown. A non-positive d reuses the configured duration.
func (t *Timer) Start(d time.Duration) {
	if d > 0 {
		t.duration = d
	}
	t.remaining = t.duration
	t.started = true
}

func (t *Timer) Update(dt time.Duration) {
	if !t.started || t.remaining <= 0 {
		return
	}
	t.remaining -= dt
	if t.remaining < 0 {
		t.remaining = 0
	}
}

// Done is true once a started countdown reaches zero.
func (t *Timer) Done() bool { return t.started && t.remaining <= 0 }

func (t *Timer) Remaining() time.Duration { return t.remaining }

// Reset stops the timer and rewinds it to its duration.
func (t *Timer) Reset() {
	t.remaining = t.duration
	t.started = false
}

// Chrono is a stopwatch for the breath hold.
type Chrono struct {
	elapsed time.Duration
	running bool
}

func NewChrono() *Chrono { return &Chrono{} }

func (c *Chrono) Start() {
	c.elapsed = 0
	c.running = true
}

func (c *Chrono) Update(dt time.Duration) {
	if c.running {
		c.elapsed += dt
	}
}

// Stop halts the stopwatch and returns the held time.
func (c *Chrono) Stop() time.Duration {
	c.running = false
	return c.elapsed
}

func (c *Chrono) Elapsed() time.Duration { return c.elapsed }
