package anim

import (
	"math"

	"github.com/coreman2200/funtimes-hexbreath/internal/motion"
)

// DefaultThreshold is the extremum proximity, as a fraction of the
// scale range, tuned for 60 fps and cycles of a few seconds.
const DefaultThreshold = 0.03

// CounterFrame annotates one precomputed frame with breath-phase data.
type CounterFrame struct {
	AtScaleMin bool    // first frame rising off the minimum
	AtScaleMax bool    // first frame falling off the maximum
	Relative   float64 // 0 empty .. 1 full
}

// Annotate fills dst, one entry per frame of a window that starts at t=0,
// from the scale formula alone. The frame before 0 is the last frame of
// the window. A flag is raised only on the first frame that meets its
// condition, so each cycle yields exactly one min and one max frame.
func Annotate(dst []CounterFrame, p motion.Params, fps, threshold float64) {
	total := len(dst)
	if total == 0 || fps <= 0 {
		return
	}
	scale := func(f int) float64 {
		return motion.ScaleAt(float64(f)/fps, p)
	}
	if total < 2 {
		dst[0] = CounterFrame{Relative: motion.Relative(scale(0), p)}
		return
	}

	thr := threshold * (p.ScaleMax - p.ScaleMin)
	nearMin := func(s float64) bool { return math.Abs(s-p.ScaleMin) < thr }
	nearMax := func(s float64) bool { return math.Abs(s-p.ScaleMax) < thr }

	prev2 := scale(total - 2)
	prev := scale(total - 1)
	prevRising := nearMin(prev) && prev > prev2
	prevFalling := nearMax(prev) && prev < prev2

	for f := 0; f < total; f++ {
		cur := scale(f)
		rising := nearMin(cur) && cur > prev
		falling := nearMax(cur) && cur < prev
		dst[f] = CounterFrame{
			AtScaleMin: rising && !prevRising,
			AtScaleMax: falling && !prevFalling,
			Relative:   motion.Relative(cur, p),
		}
		prev, prevRising, prevFalling = cur, rising, falling
	}
}
