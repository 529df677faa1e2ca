package led

import "image/color"

// MaxBrightness caps the alpha channel so a full-white strip stays within
// a sane current budget.
const MaxBrightness uint8 = 200

const (
	alphaOffset = 0x18
	redOffset   = 0x10
	greenOffset = 0x08
	blueOffset  = 0x0
)

// Color is a packed 0xAARRGGBB value. Alpha is the peak brightness.
type Color uint32

func channel(c Color, off uint) uint8 { return uint8((uint32(c) >> off) & 0xFF) }

func (c Color) A() uint8 { return channel(c, alphaOffset) }
func (c Color) R() uint8 { return channel(c, redOffset) }
func (c Color) G() uint8 { return channel(c, greenOffset) }
func (c Color) B() uint8 { return channel(c, blueOffset) }

// Scaled returns the opaque color at level (0..1) of its capped alpha.
func (c Color) Scaled(level float64) color.NRGBA {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	a := c.A()
	if a > MaxBrightness {
		a = MaxBrightness
	}
	k := float64(a) * level
	return color.NRGBA{
		R: uint8(float64(c.R()) * k / 255),
		G: uint8(float64(c.G()) * k / 255),
		B: uint8(float64(c.B()) * k / 255),
		A: 255,
	}
}
