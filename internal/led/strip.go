package led

import (
	"fmt"
	"image"
	"io"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/extra/devices/screen"
	"periph.io/x/host/v3"

	"github.com/coreman2200/funtimes-hexbreath/internal/whm"
)

// floor keeps the strip faintly lit at empty lungs while a set runs.
const floor = 0.1

type Options struct {
	Dev        string // "" picks the first SPI port
	Pixels     int
	SpeedKHz   int
	Color      Color
	Brightness float64
	Console    bool // skip SPI and draw to the terminal
}

// Strip is a breath light: every pixel follows the relative breath scale.
type Strip struct {
	drawer     display.Drawer
	port       io.Closer
	img        *image.NRGBA
	color      Color
	brightness float64
	hardware   bool
	log        zerolog.Logger
}

// Open drives an nrzled strip over SPI, or the console when no port can be
// found.
func Open(o Options, log zerolog.Logger) (*Strip, error) {
	if o.Pixels <= 0 {
		return nil, fmt.Errorf("led: %d pixels", o.Pixels)
	}
	if o.Console {
		return New(screen.New(o.Pixels), o, false, log), nil
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	port, err := spireg.Open(o.Dev)
	if err != nil {
		log.Warn().Err(err).Str("dev", o.Dev).Msg("no SPI port; drawing the breath light on the console")
		return New(screen.New(o.Pixels), o, false, log), nil
	}
	speed := o.SpeedKHz
	if speed <= 0 {
		speed = 2500
	}
	d, err := nrzled.NewSPI(port, &nrzled.Opts{
		NumPixels: o.Pixels,
		Channels:  3,
		Freq:      physic.Frequency(speed) * physic.KiloHertz,
	})
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("nrzled on %s: %w", port, err)
	}
	s := New(d, o, true, log)
	s.port = port
	if err := d.Halt(); err != nil {
		log.Warn().Err(err).Msg("halt strip")
	}
	return s, nil
}

// New wraps an existing drawer.
func New(d display.Drawer, o Options, hardware bool, log zerolog.Logger) *Strip {
	b := o.Brightness
	if b <= 0 || b > 1 {
		b = 1
	}
	return &Strip{
		drawer:     d,
		img:        image.NewNRGBA(image.Rect(0, 0, o.Pixels, 1)),
		color:      o.Color,
		brightness: b,
		hardware:   hardware,
		log:        log,
	}
}

func (s *Strip) Hardware() bool { return s.hardware }

// Level maps a snapshot to strip brightness in 0..1.
func Level(snap whm.Snapshot) float64 {
	if !snap.Phase.Active() {
		return 0
	}
	return floor + (1-floor)*snap.Relative
}

// Frame renders the pixels for snap without drawing them.
func (s *Strip) Frame(snap whm.Snapshot) *image.NRGBA {
	c := s.color.Scaled(Level(snap) * s.brightness)
	b := s.img.Bounds()
	for x := b.Min.X; x < b.Max.X; x++ {
		s.img.SetNRGBA(x, 0, c)
	}
	return s.img
}

func (s *Strip) Show(snap whm.Snapshot) error {
	img := s.Frame(snap)
	if err := s.drawer.Draw(s.drawer.Bounds(), img, image.Point{}); err != nil {
		return fmt.Errorf("draw strip: %w", err)
	}
	return nil
}

func (s *Strip) Close() error {
	err := s.drawer.Halt()
	if s.port != nil {
		if cerr := s.port.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
