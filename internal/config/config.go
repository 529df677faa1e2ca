package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coreman2200/funtimes-hexbreath/internal/session"
)

var ErrInvalid = errors.New("invalid config")

type Shape struct {
	ID        string  `yaml:"id"`
	Radius    float64 `yaml:"radius"`
	Sides     int     `yaml:"sides,omitempty"` // 0 = hexagon
	Angle     float64 `yaml:"angle"`           // degrees per breath cycle
	ScaleMin  float64 `yaml:"scale_min"`
	ScaleMax  float64 `yaml:"scale_max"`
	Clockwise bool    `yaml:"clockwise"`
}

type Point struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type History struct {
	DBPath string `yaml:"db_path"`
}

type LED struct {
	Driver     string  `yaml:"driver"` // "spi" | "screen" | "off"
	Dev        string  `yaml:"dev,omitempty"`
	Pixels     int     `yaml:"pixels"`
	SpeedKHz   int     `yaml:"speed_khz,omitempty"`
	Color      uint32  `yaml:"color"` // 0xAARRGGBB, alpha is peak brightness
	Brightness float64 `yaml:"brightness"`
}

type Config struct {
	FPS            int     `yaml:"fps"`
	BreathDuration float64 `yaml:"breath_duration"` // seconds per inhale+exhale
	Sessions       int     `yaml:"sessions"`
	Breaths        int     `yaml:"breaths"`

	// RetentionPattern is 0..4; anything else falls back to RetentionType.
	RetentionPattern int    `yaml:"retention_pattern"`
	RetentionType    int    `yaml:"retention_type"`
	CustomRetention  []bool `yaml:"custom_retention,omitempty"`

	LeadInS    float64 `yaml:"lead_in_s"`
	CardHoldS  float64 `yaml:"card_hold_s"`
	RetentionS float64 `yaml:"retention_s"`

	ExtremumThreshold float64 `yaml:"extremum_threshold"`
	MaxCycles         int     `yaml:"max_cycles"`
	MaxBufferMB       int     `yaml:"max_buffer_mb"`

	Center Point   `yaml:"center"`
	Shapes []Shape `yaml:"shapes"`

	Server  Server  `yaml:"server"`
	History History `yaml:"history"`
	LED     LED     `yaml:"led"`
}

// Default is the four-hexagon setup.
func Default() *Config {
	return &Config{
		FPS:               60,
		BreathDuration:    3.0,
		Sessions:          3,
		Breaths:           30,
		RetentionPattern:  int(session.AlternatingStartFull),
		RetentionType:     session.LegacyFull,
		LeadInS:           3,
		CardHoldS:         1,
		RetentionS:        15,
		ExtremumThreshold: 0.03,
		MaxCycles:         64,
		MaxBufferMB:       256,
		Center:            Point{X: 400, Y: 300},
		Shapes: []Shape{
			{ID: "hex-30", Radius: 80, Angle: 30, ScaleMin: 0.5, ScaleMax: 1.0, Clockwise: true},
			{ID: "hex-45", Radius: 120, Angle: 45, ScaleMin: 0.5, ScaleMax: 1.0},
			{ID: "hex-60", Radius: 160, Angle: 60, ScaleMin: 0.5, ScaleMax: 1.0, Clockwise: true},
			{ID: "hex-90", Radius: 200, Angle: 90, ScaleMin: 0.5, ScaleMax: 1.0},
		},
		Server:  Server{Addr: ":8080"},
		History: History{DBPath: "hexbreath.db"},
		LED: LED{
			Driver:     "off",
			Pixels:     60,
			SpeedKHz:   2500,
			Color:      0xFF3399FF,
			Brightness: 0.8,
		},
	}
}

// Load reads path over the defaults, so omitted keys keep their default.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}
	if c.FPS <= 0 {
		bad("fps must be positive, got %d", c.FPS)
	}
	if c.BreathDuration <= 0 {
		bad("breath_duration must be positive, got %v", c.BreathDuration)
	}
	if c.Sessions <= 0 {
		bad("sessions must be positive, got %d", c.Sessions)
	}
	if c.Breaths <= 0 {
		bad("breaths must be positive, got %d", c.Breaths)
	}
	if c.ExtremumThreshold < 0 || c.ExtremumThreshold >= 0.5 {
		bad("extremum_threshold must be in [0, 0.5), got %v", c.ExtremumThreshold)
	}
	for i, s := range c.Shapes {
		if s.Radius <= 0 {
			bad("shapes[%d] %q: radius must be positive", i, s.ID)
		}
		if s.Sides != 0 && s.Sides < 3 {
			bad("shapes[%d] %q: sides must be at least 3", i, s.ID)
		}
		if s.ScaleMin >= s.ScaleMax {
			bad("shapes[%d] %q: scale_min %v must be below scale_max %v", i, s.ID, s.ScaleMin, s.ScaleMax)
		}
	}
	return errors.Join(errs...)
}

// Retention resolves the retention pattern, reporting whether the legacy
// retention_type had to be used.
func (c *Config) Retention() (session.Pattern, bool) {
	return session.Resolve(c.RetentionPattern, c.RetentionType)
}

func (c *Config) Breath() time.Duration        { return seconds(c.BreathDuration) }
func (c *Config) LeadIn() time.Duration        { return seconds(c.LeadInS) }
func (c *Config) CardHold() time.Duration      { return seconds(c.CardHoldS) }
func (c *Config) RetentionHold() time.Duration { return seconds(c.RetentionS) }

// BufferBytes is the precompute budget, 0 when unbounded.
func (c *Config) BufferBytes() int64 {
	if c.MaxBufferMB <= 0 {
		return 0
	}
	return int64(c.MaxBufferMB) << 20
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
