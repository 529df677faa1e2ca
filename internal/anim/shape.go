package anim

import (
	"fmt"
	"image"
	"math"

	"github.com/coreman2200/funtimes-hexbreath/internal/motion"
)

// Shape owns one Geometry, its motion parameters and, while a session is
// running, the precomputed trajectory for the aligned window.
//
// xs and ys hold frame-major vertex offsets (frame*vertices + vertex).
// xs, ys and counters are either all present or all nil.
type Shape struct {
	Geometry Geometry
	Params   motion.Params

	xs, ys   []int32
	counters []CounterFrame

	totalFrames  int
	currentFrame int
	shownFrame   int
	frozen       bool
}

func newShape(g Geometry, p motion.Params) *Shape {
	return &Shape{Geometry: g, Params: p, shownFrame: -1}
}

// Ready reports whether precomputed buffers are present.
func (s *Shape) Ready() bool { return s.xs != nil }

func (s *Shape) TotalFrames() int  { return s.totalFrames }
func (s *Shape) CurrentFrame() int { return s.currentFrame }
func (s *Shape) Frozen() bool      { return s.frozen }

// ShownFrame is the frame last applied to the live offsets, -1 if none.
func (s *Shape) ShownFrame() int { return s.shownFrame }

// precompute fills the buffers for total frames. The three allocations are
// all-or-nothing: on failure whatever was obtained goes back to alloc.
func (s *Shape) precompute(total int, fps, threshold float64, alloc Allocator) error {
	n := len(s.Geometry.Base)
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrNoVertices, s.Geometry.ID)
	}
	if total <= 0 || fps <= 0 {
		return fmt.Errorf("%w: %q: %d frames at %v fps", ErrAllocation, s.Geometry.ID, total, fps)
	}

	xs, err := alloc.Offsets(total * n)
	if err != nil {
		return fmt.Errorf("shape %q offsets x: %w", s.Geometry.ID, err)
	}
	ys, err := alloc.Offsets(total * n)
	if err != nil {
		alloc.Release(xs, nil)
		return fmt.Errorf("shape %q offsets y: %w", s.Geometry.ID, err)
	}
	counters, err := alloc.Counters(total)
	if err != nil {
		alloc.Release(xs, nil)
		alloc.Release(ys, nil)
		return fmt.Errorf("shape %q counter frames: %w", s.Geometry.ID, err)
	}

	base := s.Geometry.Base
	for f := 0; f < total; f++ {
		smp := motion.Evaluate(float64(f)/fps, s.Params)
		sin, cos := math.Sincos(smp.Rotation * math.Pi / 180)
		row := f * n
		for v, b := range base {
			x := (b.X*cos - b.Y*sin) * smp.Scale
			y := (b.X*sin + b.Y*cos) * smp.Scale
			xs[row+v] = int32(math.Round(x))
			ys[row+v] = int32(math.Round(y))
		}
	}
	Annotate(counters, s.Params, fps, threshold)

	s.xs, s.ys, s.counters = xs, ys, counters
	s.totalFrames = total
	s.currentFrame = 0
	s.shownFrame = -1
	s.frozen = false
	return nil
}

// release hands the buffers back. Geometry and Params are kept.
func (s *Shape) release(alloc Allocator) {
	if s.xs != nil && alloc != nil {
		alloc.Release(s.xs, nil)
		alloc.Release(s.ys, s.counters)
	}
	s.xs, s.ys, s.counters = nil, nil, nil
	s.totalFrames = 0
	s.currentFrame = 0
	s.shownFrame = -1
}

// Advance copies the frame under the cursor into the live offsets and
// steps the cursor, wrapping at the end of the window. The center is
// left alone.
func (s *Shape) Advance() {
	if s.frozen || s.xs == nil {
		return
	}
	f := s.currentFrame
	n := len(s.Geometry.Base)
	if len(s.Geometry.Offsets) != n {
		s.Geometry.Offsets = make([]image.Point, n)
	}
	row := f * n
	for v := 0; v < n; v++ {
		s.Geometry.Offsets[v] = image.Pt(int(s.xs[row+v]), int(s.ys[row+v]))
	}
	s.Geometry.Scale = s.Params.ScaleMin + (s.Params.ScaleMax-s.Params.ScaleMin)*s.counters[f].Relative
	s.shownFrame = f
	s.currentFrame = (f + 1) % s.totalFrames
}

// Seek repositions the cursor; the frame is shown on the next Advance.
func (s *Shape) Seek(frame int) {
	if s.totalFrames == 0 {
		return
	}
	frame %= s.totalFrames
	if frame < 0 {
		frame += s.totalFrames
	}
	s.currentFrame = frame
}

func (s *Shape) Freeze()   { s.frozen = true }
func (s *Shape) Unfreeze() { s.frozen = false }

// Counter returns the annotation for frame.
func (s *Shape) Counter(frame int) (CounterFrame, bool) {
	if s.counters == nil || frame < 0 || frame >= len(s.counters) {
		return CounterFrame{}, false
	}
	return s.counters[frame], true
}

// Shown returns the annotation of the frame currently displayed.
func (s *Shape) Shown() (CounterFrame, bool) {
	return s.Counter(s.shownFrame)
}

// Counters exposes the annotation timeline. Callers must not modify it.
func (s *Shape) Counters() []CounterFrame { return s.counters }

// OffsetsAt copies the precomputed offsets of frame.
func (s *Shape) OffsetsAt(frame int) ([]image.Point, bool) {
	if s.xs == nil || frame < 0 || frame >= s.totalFrames {
		return nil, false
	}
	n := len(s.Geometry.Base)
	out := make([]image.Point, n)
	row := frame * n
	for v := 0; v < n; v++ {
		out[v] = image.Pt(int(s.xs[row+v]), int(s.ys[row+v]))
	}
	return out, true
}

// ResetToBaseline shows the shape unrotated at its maximum scale.
func (s *Shape) ResetToBaseline() {
	s.Geometry.setScaled(s.Params.ScaleMax)
}
