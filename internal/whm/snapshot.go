package whm

import (
	"image"
	"time"
)

// ShapeState is a read-only copy of one shape as currently displayed.
type ShapeState struct {
	ID       string        `json:"id"`
	Center   image.Point   `json:"center"`
	Vertices []image.Point `json:"vertices"`
	Scale    float64       `json:"scale"`
	Frame    int           `json:"frame"`
	Frozen   bool          `json:"frozen"`
	Animated bool          `json:"animated"`
}

// Snapshot is what renderers and remote clients need to draw one tick.
type Snapshot struct {
	Phase        Phase        `json:"phase"`
	Session      int          `json:"session"`
	Sessions     int          `json:"sessions"`
	EmptyLungs   bool         `json:"emptyLungs"`
	Breaths      int          `json:"breaths"`
	BreathTarget int          `json:"breathTarget"`
	TimerS       float64      `json:"timerS"`
	ChronoS      float64      `json:"chronoS"`
	CardPos      float64      `json:"cardPos"`
	CardVisible  bool         `json:"cardVisible"`
	Frame        int          `json:"frame"`
	TotalFrames  int          `json:"totalFrames"`
	Relative     float64      `json:"relative"`
	Times        []float64    `json:"times,omitempty"`
	Shapes       []ShapeState `json:"shapes"`
}

// cardView is the optional drawing state of a Card.
type cardView interface {
	Position() float64
	Visible() bool
}

func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Phase:        e.phase,
		BreathTarget: e.settings.Breaths,
		Frame:        e.store.ShownFrame(),
		TotalFrames:  e.store.TotalFrames(),
		Relative:     1,
	}
	if e.sessions != nil {
		s.Session = e.sessions.Current()
		s.Sessions = e.sessions.Total()
		s.EmptyLungs = e.sessions.EmptyLungs()
		s.Times = e.sessions.Times()
	}
	if c, ok := e.store.Shown(); ok {
		s.Relative = c.Relative
	}

	if e.col.Counter != nil {
		s.Breaths = e.col.Counter.Count()
	} else {
		s.Breaths = min(e.minSeen, e.settings.Breaths)
	}

	switch e.phase {
	case LeadIn:
		s.TimerS = e.remaining(e.col.LeadIn, e.settings.LeadIn)
	case Retention:
		s.TimerS = e.remaining(e.col.Retention, e.settings.Retention)
	case Chrono:
		s.ChronoS = e.held.Seconds()
		if e.col.Chrono != nil {
			s.ChronoS = e.col.Chrono.Elapsed().Seconds()
		}
	case SessionCard:
		if v, ok := e.col.Card.(cardView); ok {
			s.CardPos = v.Position()
			s.CardVisible = v.Visible()
		}
	}

	for _, sh := range e.store.Shapes() {
		s.Shapes = append(s.Shapes, ShapeState{
			ID:       sh.Geometry.ID,
			Center:   sh.Geometry.Center,
			Vertices: sh.Geometry.Vertices(),
			Scale:    sh.Geometry.Scale,
			Frame:    sh.ShownFrame(),
			Frozen:   sh.Frozen(),
			Animated: sh.Ready(),
		})
	}
	return s
}

func (e *Engine) remaining(c Countdown, d time.Duration) float64 {
	if c != nil {
		return c.Remaining().Seconds()
	}
	if r := d - e.phaseTime; r > 0 {
		return r.Seconds()
	}
	return 0
}
