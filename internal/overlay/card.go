package overlay

import (
	"math"
	"time"

	"github.com/charmbracelet/harmonica"
)

const (
	cardFrequency = 6.0
	cardDamping   = 1.0
	cardSettle    = 0.01
)

type cardStage int

const (
	cardHidden cardStage = iota
	cardEntering
	cardHolding
	cardLeaving
	cardDone
)

// SessionCard springs a "session N" card in, holds it, then springs it out.
// Position is 0 off screen and 1 fully shown.
type SessionCard struct {
	spring harmonica.Spring
	hold   time.Duration
	held   time.Duration
	pos    float64
	vel    float64
	target float64
	stage  cardStage
}

func NewSessionCard(fps int, hold time.Duration) *SessionCard {
	if fps <= 0 {
		fps = 60
	}
	return &SessionCard{
		spring: harmonica.NewSpring(harmonica.FPS(fps), cardFrequency, cardDamping),
		hold:   hold,
	}
}

// Show starts the in/out animation. The number itself is drawn by the
// renderer from the snapshot.
func (c *SessionCard) Show(int) {
	c.pos, c.vel = 0, 0
	c.target = 1
	c.held = 0
	c.stage = cardEntering
}

// Update steps the spring by one frame.
func (c *SessionCard) Update(dt time.Duration) {
	switch c.stage {
	case cardHidden, cardDone:
		return
	}
	c.pos, c.vel = c.spring.Update(c.pos, c.vel, c.target)

	switch c.stage {
	case cardEntering:
		if settled(c.pos, c.vel, 1) {
			c.pos, c.vel = 1, 0
			c.stage = cardHolding
		}
	case cardHolding:
		c.held += dt
		if c.held >= c.hold {
			c.target = 0
			c.stage = cardLeaving
		}
	case cardLeaving:
		if settled(c.pos, c.vel, 0) {
			c.pos, c.vel = 0, 0
			c.stage = cardDone
		}
	}
}

func (c *SessionCard) Done() bool        { return c.stage == cardDone }
func (c *SessionCard) Position() float64 { return c.pos }
func (c *SessionCard) Visible() bool     { return c.stage != cardHidden && c.stage != cardDone }

func settled(pos, vel, target float64) bool {
	return math.Abs(pos-target) < cardSettle && math.Abs(vel) < cardSettle
}
