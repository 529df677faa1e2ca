package anim

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-hexbreath/internal/motion"
)

// Options configures a Store.
type Options struct {
	FPS            float64
	BreathDuration float64
	Threshold      float64 // extremum proximity, fraction of the scale range
	MaxCycles      int     // 0 = no cap
	Allocator      Allocator
	Logger         zerolog.Logger
}

// Store owns the animated shapes and their precomputed buffers. Shapes are
// addressed by index; indices stay stable for the life of the Store.
type Store struct {
	opts   Options
	alloc  Allocator
	log    zerolog.Logger
	shapes []*Shape

	cycles int
	total  int
}

// ShapeError is a per-shape precompute failure.
type ShapeError struct {
	Index int
	ID    string
	Err   error
}

func (e ShapeError) Error() string {
	return fmt.Sprintf("shape %d (%s): %v", e.Index, e.ID, e.Err)
}

func (e ShapeError) Unwrap() error { return e.Err }

// PrecomputeReport summarises a bulk precompute. Failures are not fatal:
// shapes listed in Failed are simply not animated this session.
type PrecomputeReport struct {
	Cycles      int
	TotalFrames int
	Capped      bool
	Ready       []int
	Failed      []ShapeError
	Bytes       int64
}

// Err joins every failure, nil when all shapes are ready.
func (r PrecomputeReport) Err() error {
	if len(r.Failed) == 0 {
		if len(r.Ready) == 0 {
			return ErrNoShapes
		}
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

func NewStore(opts Options) *Store {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	alloc := opts.Allocator
	if alloc == nil {
		alloc = NewBudget(0)
	}
	return &Store{opts: opts, alloc: alloc, log: opts.Logger}
}

// Add registers a shape and returns its index.
func (s *Store) Add(g Geometry, p motion.Params) int {
	p.BreathDuration = s.opts.BreathDuration
	s.shapes = append(s.shapes, newShape(g, p))
	return len(s.shapes) - 1
}

func (s *Store) Len() int { return len(s.shapes) }

// Shape returns the shape at index i.
func (s *Store) Shape(i int) (*Shape, bool) {
	if i < 0 || i >= len(s.shapes) {
		return nil, false
	}
	return s.shapes[i], true
}

// Shapes returns the shapes in index order. Renderers treat them as read only.
func (s *Store) Shapes() []*Shape { return s.shapes }

func (s *Store) Cycles() int      { return s.cycles }
func (s *Store) TotalFrames() int { return s.total }
func (s *Store) FPS() float64     { return s.opts.FPS }

// Alignment computes the aligned cycle count for the registered shapes and
// whether MaxCycles had to clamp it.
func (s *Store) Alignment() (cycles int, capped bool) {
	ratios := make([]float64, 0, len(s.shapes))
	for _, sh := range s.shapes {
		sym := motion.SymmetryOf(len(sh.Geometry.Base))
		ratios = append(ratios, motion.CyclesPerTurn(sh.Params.AnglePerCycle, sym))
	}
	cycles = motion.AlignedCycles(ratios...)
	if s.opts.MaxCycles > 0 && cycles > s.opts.MaxCycles {
		return s.opts.MaxCycles, true
	}
	return cycles, false
}

// Precompute releases any previous buffers and fills new ones for every
// shape. Shapes whose buffers cannot be allocated are skipped.
func (s *Store) Precompute() PrecomputeReport {
	s.Release()

	var rep PrecomputeReport
	if len(s.shapes) == 0 {
		return rep
	}

	cycles, capped := s.Alignment()
	if capped {
		s.log.Warn().Int("max_cycles", s.opts.MaxCycles).Msg("aligned cycle count capped; rotation will not close exactly")
	}
	total := motion.TotalFrames(cycles, s.opts.FPS, s.opts.BreathDuration)
	s.cycles, s.total = cycles, total
	rep.Cycles, rep.TotalFrames, rep.Capped = cycles, total, capped

	for i, sh := range s.shapes {
		if err := sh.precompute(total, s.opts.FPS, s.opts.Threshold, s.alloc); err != nil {
			s.log.Warn().Err(err).Int("shape", i).Str("id", sh.Geometry.ID).Msg("precompute skipped")
			rep.Failed = append(rep.Failed, ShapeError{Index: i, ID: sh.Geometry.ID, Err: err})
			continue
		}
		rep.Ready = append(rep.Ready, i)
		rep.Bytes += Footprint(total, len(sh.Geometry.Base))
	}

	s.log.Debug().
		Int("cycles", cycles).
		Int("frames", total).
		Int("ready", len(rep.Ready)).
		Int64("bytes", rep.Bytes).
		Msg("precompute done")
	return rep
}

// Release frees every shape's buffers and keeps geometry and params.
func (s *Store) Release() {
	for _, sh := range s.shapes {
		sh.release(s.alloc)
	}
	s.cycles, s.total = 0, 0
}

// Advance applies one frame to every unfrozen, ready shape.
func (s *Store) Advance() {
	for _, sh := range s.shapes {
		sh.Advance()
	}
}

// Seek moves every ready shape's cursor to frame.
func (s *Store) Seek(frame int) {
	for _, sh := range s.shapes {
		sh.Seek(frame)
	}
}

func (s *Store) Freeze() {
	for _, sh := range s.shapes {
		sh.Freeze()
	}
}

func (s *Store) Unfreeze() {
	for _, sh := range s.shapes {
		sh.Unfreeze()
	}
}

// Animating counts shapes with buffers.
func (s *Store) Animating() int {
	n := 0
	for _, sh := range s.shapes {
		if sh.Ready() {
			n++
		}
	}
	return n
}

// Reference is the first ready shape; its annotations drive the counter.
func (s *Store) Reference() (*Shape, bool) {
	for _, sh := range s.shapes {
		if sh.Ready() {
			return sh, true
		}
	}
	return nil, false
}

// CounterFrames is the reference annotation timeline, nil if none.
func (s *Store) CounterFrames() []CounterFrame {
	if ref, ok := s.Reference(); ok {
		return ref.Counters()
	}
	return nil
}

// Shown returns the reference shape's displayed annotation.
func (s *Store) Shown() (CounterFrame, bool) {
	ref, ok := s.Reference()
	if !ok {
		return CounterFrame{}, false
	}
	return ref.Shown()
}

// ShownFrame is the reference shape's displayed frame, -1 if none.
func (s *Store) ShownFrame() int {
	ref, ok := s.Reference()
	if !ok {
		return -1
	}
	return ref.ShownFrame()
}

// FindFrom scans the reference timeline forward from start, wrapping once,
// for the first frame satisfying match.
func (s *Store) FindFrom(start int, match func(f int, c CounterFrame) bool) (int, bool) {
	cf := s.CounterFrames()
	n := len(cf)
	if n == 0 {
		return 0, false
	}
	if start < 0 {
		start = 0
	}
	for i := 0; i < n; i++ {
		f := (start + i) % n
		if match(f, cf[f]) {
			return f, true
		}
	}
	return 0, false
}

// First returns the first frame in the window satisfying match.
func (s *Store) First(match func(CounterFrame) bool) (int, bool) {
	return s.FindFrom(0, func(_ int, c CounterFrame) bool { return match(c) })
}

// All reports whether every ready shape's displayed frame satisfies match.
// False when no shape is ready or nothing has been shown yet.
func (s *Store) All(match func(CounterFrame) bool) bool {
	seen := false
	for _, sh := range s.shapes {
		if !sh.Ready() {
			continue
		}
		c, ok := sh.Shown()
		if !ok || !match(c) {
			return false
		}
		seen = true
	}
	return seen
}

// ResetToBaseline puts every shape back at max scale, unrotated.
func (s *Store) ResetToBaseline() {
	for _, sh := range s.shapes {
		sh.ResetToBaseline()
	}
}

// AtMin and AtMax are the extremum predicates used with All and First.
func AtMin(c CounterFrame) bool { return c.AtScaleMin }
func AtMax(c CounterFrame) bool { return c.AtScaleMax }
