package signalctl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the structured configuration record. Durations are in seconds.
// Optional keys left out of the document keep the DefaultPlan values.
type Config struct {
	VRed    float64 `yaml:"v_red_s"`
	VGreen  float64 `yaml:"v_green_s"`
	VYellow float64 `yaml:"v_yellow_s"`
	HRed    float64 `yaml:"h_red_s"`
	HGreen  float64 `yaml:"h_green_s"`
	HYellow float64 `yaml:"h_yellow_s"`

	PedestrianWalk      float64 `yaml:"pedestrian_walk_s"`
	PedestrianClearance float64 `yaml:"pedestrian_clearance_s"`
	NightBlink          float64 `yaml:"night_blink_s"`
	PollInterval        float64 `yaml:"poll_interval_s"`

	AllRed         *float64 `yaml:"all_red_s,omitempty"`
	ShutdownSettle *float64 `yaml:"shutdown_settle_s,omitempty"`
	EmergencyFlash *float64 `yaml:"emergency_flash_s,omitempty"`
	StartupFlashes *int     `yaml:"startup_flashes,omitempty"`
	YellowOverlap  *bool    `yaml:"yellow_overlap,omitempty"`
}

// DefaultConfig returns the configuration record for DefaultPlan
func DefaultConfig() Config {
	p := DefaultPlan()
	return Config{
		VRed:                p.VRed.Seconds(),
		VGreen:              p.VGreen.Seconds(),
		VYellow:             p.VYellow.Seconds(),
		HRed:                p.HRed.Seconds(),
		HGreen:              p.HGreen.Seconds(),
		HYellow:             p.HYellow.Seconds(),
		PedestrianWalk:      p.PedestrianWalk.Seconds(),
		PedestrianClearance: p.PedestrianClearance.Seconds(),
		NightBlink:          p.NightBlink.Seconds(),
		PollInterval:        p.PollInterval.Seconds(),
	}
}

// ParseConfig decodes a YAML document. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, NewConfigurationError("document", "empty configuration")
		}
		return cfg, NewConfigurationError("document", err.Error())
	}
	return cfg, nil
}

// LoadConfig reads and decodes a YAML configuration file
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// LoadPlan reads a configuration file and returns the validated plan
func LoadPlan(path string) (PhasePlan, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return PhasePlan{}, err
	}
	return cfg.Plan()
}

// Plan converts the record to a PhasePlan and validates it
func (c Config) Plan() (PhasePlan, error) {
	var errs []error
	seconds := func(field string, v float64) time.Duration {
		d, err := durationField(field, v)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	p := DefaultPlan()
	p.VRed = seconds("v_red_s", c.VRed)
	p.VGreen = seconds("v_green_s", c.VGreen)
	p.VYellow = seconds("v_yellow_s", c.VYellow)
	p.HRed = seconds("h_red_s", c.HRed)
	p.HGreen = seconds("h_green_s", c.HGreen)
	p.HYellow = seconds("h_yellow_s", c.HYellow)
	p.PedestrianWalk = seconds("pedestrian_walk_s", c.PedestrianWalk)
	p.PedestrianClearance = seconds("pedestrian_clearance_s", c.PedestrianClearance)
	p.NightBlink = seconds("night_blink_s", c.NightBlink)
	p.PollInterval = seconds("poll_interval_s", c.PollInterval)

	if c.AllRed != nil {
		p.AllRedClearance = seconds("all_red_s", *c.AllRed)
	}
	if c.ShutdownSettle != nil {
		p.ShutdownSettle = seconds("shutdown_settle_s", *c.ShutdownSettle)
	}
	if c.EmergencyFlash != nil {
		p.EmergencyFlash = seconds("emergency_flash_s", *c.EmergencyFlash)
	}
	if c.StartupFlashes != nil {
		p.StartupFlashes = *c.StartupFlashes
	}
	if c.YellowOverlap != nil {
		p.YellowOverlap = *c.YellowOverlap
	}
	if len(errs) > 0 {
		return PhasePlan{}, errors.Join(errs...)
	}

	if err := p.Validate(); err != nil {
		return PhasePlan{}, err
	}
	return p, nil
}

// maxSeconds is the longest duration time.Duration can hold, in seconds
var maxSeconds = float64(math.MaxInt64) / float64(time.Second)

// durationField converts a seconds value, rejecting NaN, infinities and
// values time.Duration cannot hold
func durationField(field string, v float64) (time.Duration, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) >= maxSeconds {
		return 0, NewConfigurationError(field, fmt.Sprintf("%v seconds is not a representable duration", v))
	}
	return Seconds(v), nil
}
