package overlay

import "github.com/coreman2200/funtimes-hexbreath/internal/anim"

// BreathCounter counts breaths from annotated frames. A breath starts on
// each frame flagged at the minimum; once target breaths are complete the
// next minimum switches the counter off.
type BreathCounter struct {
	target int
	count  int
	active bool

	// OnBreath, if set, is called with the new count at each breath.
	OnBreath func(count int)
}

func NewBreathCounter(target int) *BreathCounter {
	return &BreathCounter{target: target}
}

func (c *BreathCounter) Reset(target int) {
	c.target = target
	c.count = 0
	c.active = false
}

func (c *BreathCounter) Activate() { c.active = true }

func (c *BreathCounter) Observe(f anim.CounterFrame) {
	if !c.active || !f.AtScaleMin {
		return
	}
	if c.count >= c.target {
		c.active = false
		return
	}
	c.count++
	if c.OnBreath != nil {
		c.OnBreath(c.count)
	}
}

func (c *BreathCounter) Active() bool { return c.active }
func (c *BreathCounter) Count() int   { return c.count }
