package session

import (
	"fmt"
	"time"
)

// Pattern decides, per session, whether retention is held on full or
// empty lungs.
type Pattern int

const (
	AlwaysFull Pattern = iota
	AlwaysEmpty
	AlternatingStartFull
	AlternatingStartEmpty
	Custom
)

var patternNames = map[Pattern]string{
	AlwaysFull:            "always-full",
	AlwaysEmpty:           "always-empty",
	AlternatingStartFull:  "alternating-start-full",
	AlternatingStartEmpty: "alternating-start-empty",
	Custom:                "custom",
}

func (p Pattern) String() string {
	if n, ok := patternNames[p]; ok {
		return n
	}
	return fmt.Sprintf("pattern(%d)", int(p))
}

// Valid reports whether p is one of the known patterns.
func (p Pattern) Valid() bool { return p >= AlwaysFull && p <= Custom }

// Legacy single-value retention type.
const (
	LegacyFull  = 0
	LegacyEmpty = 1
)

// Resolve turns a configured selector into a Pattern. Values outside
// 0..4 fall back to the legacy retention type; fallback is true then.
func Resolve(selector, legacyType int) (p Pattern, fallback bool) {
	if Pattern(selector).Valid() {
		return Pattern(selector), false
	}
	if legacyType == LegacyEmpty {
		return AlwaysEmpty, true
	}
	return AlwaysFull, true
}

// ShouldUseEmptyLungs applies pattern to a 1-based session index. custom
// is consulted only for the Custom pattern and repeats when shorter than
// the session count; an empty list means full lungs.
func ShouldUseEmptyLungs(session int, pattern Pattern, custom []bool) bool {
	if session < 1 {
		session = 1
	}
	switch pattern {
	case AlwaysEmpty:
		return true
	case AlternatingStartFull:
		return session%2 == 0
	case AlternatingStartEmpty:
		return session%2 == 1
	case Custom:
		if len(custom) == 0 {
			return false
		}
		return custom[(session-1)%len(custom)]
	default:
		return false
	}
}

// Controller tracks progress through a set of sessions and the hold time
// recorded for each.
type Controller struct {
	current int
	total   int
	pattern Pattern
	custom  []bool
	times   []float64
}

func NewController(total int, pattern Pattern, custom []bool) *Controller {
	if total < 1 {
		total = 1
	}
	return &Controller{
		current: 1,
		total:   total,
		pattern: pattern,
		custom:  append([]bool(nil), custom...),
		times:   make([]float64, 0, total),
	}
}

func (c *Controller) Current() int     { return c.current }
func (c *Controller) Total() int       { return c.total }
func (c *Controller) Pattern() Pattern { return c.pattern }

// EmptyLungs is the retention target of the current session.
func (c *Controller) EmptyLungs() bool {
	return ShouldUseEmptyLungs(c.current, c.pattern, c.custom)
}

// RecordTime appends a chronometer result in seconds.
func (c *Controller) RecordTime(seconds float64) {
	c.times = append(c.times, seconds)
}

// RecordDuration is RecordTime for a time.Duration.
func (c *Controller) RecordDuration(d time.Duration) {
	c.RecordTime(d.Seconds())
}

// Times returns a copy of the recorded times.
func (c *Controller) Times() []float64 {
	return append([]float64(nil), c.times...)
}

// NextSession moves to the next session and reports whether there was one.
func (c *Controller) NextSession() bool {
	if c.current < c.total {
		c.current++
		return true
	}
	return false
}

// Remaining is the number of sessions after the current one.
func (c *Controller) Remaining() int { return c.total - c.current }
