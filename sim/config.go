package sim

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jeremyverde/app-sim/sim/trace"
)

// ServerSpec configures one backend explicitly. Zero-valued fields fall back
// to the top-level Capacity and ProcessingTime.
type ServerSpec struct {
	ID             string    `yaml:"id"`
	Capacity       int       `yaml:"capacity,omitempty"`
	Weight         int       `yaml:"weight,omitempty"`
	ProcessingTime *DistSpec `yaml:"processing_time,omitempty"`
}

// HealthCheckSpec schedules a health flag change for one server.
type HealthCheckSpec struct {
	Time    float64 `yaml:"time"`
	Server  string  `yaml:"server"`
	Healthy bool    `yaml:"healthy"`
}

// Config is the full configuration of one simulation run, loadable from YAML.
// Either NumServers or Servers describes the pool; Servers wins when both are set.
type Config struct {
	Seed           int64             `yaml:"seed"`
	Duration       float64           `yaml:"duration"` // simulated seconds (> 0)
	Policy         string            `yaml:"policy"`
	Arrival        ArrivalSpec       `yaml:"arrival"`
	ProcessingTime DistSpec          `yaml:"processing_time"`
	NumServers     int               `yaml:"num_servers,omitempty"`
	Capacity       int               `yaml:"capacity,omitempty"`
	Servers        []ServerSpec      `yaml:"servers,omitempty"`
	HealthChecks   []HealthCheckSpec `yaml:"health_checks,omitempty"`
	Drain          bool              `yaml:"drain,omitempty"`      // complete in-flight requests after the duration
	MaxEvents      int64             `yaml:"max_events,omitempty"` // 0 = unlimited
	Trace          trace.TraceLevel  `yaml:"trace,omitempty"`
}

// DefaultConfig mirrors the CLI defaults: λ=1, 3 servers of capacity 10,
// round robin, 60 simulated seconds, exponential service time with mean 0.5s.
func DefaultConfig() Config {
	return Config{
		Seed:           42,
		Duration:       60,
		Policy:         PolicyRoundRobin,
		Arrival:        ArrivalSpec{Process: "poisson", Rate: 1.0},
		ProcessingTime: DistSpec{Type: "exponential", Params: map[string]float64{"mean": 0.5}},
		NumServers:     3,
		Capacity:       10,
	}
}

// LoadConfig reads and parses a YAML scenario file on top of DefaultConfig.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	cfg := DefaultConfig()
	// yaml.v3 merges into existing maps, so the default distribution's
	// params would leak into whatever distribution the file declares.
	defaultDist := cfg.ProcessingTime
	cfg.ProcessingTime = DistSpec{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if cfg.ProcessingTime.Type == "" && cfg.ProcessingTime.Params == nil && cfg.ProcessingTime.Values == nil {
		cfg.ProcessingTime = defaultDist
	}
	return &cfg, nil
}

// ServerSpecs returns the resolved per-server configuration, expanding
// NumServers into server_0..server_{n-1} when Servers is empty.
func (c *Config) ServerSpecs() []ServerSpec {
	if len(c.Servers) > 0 {
		specs := make([]ServerSpec, len(c.Servers))
		for i, s := range c.Servers {
			if s.Capacity == 0 {
				s.Capacity = c.Capacity
			}
			if s.Weight == 0 {
				s.Weight = 1
			}
			if s.ProcessingTime == nil {
				dist := c.ProcessingTime
				s.ProcessingTime = &dist
			}
			specs[i] = s
		}
		return specs
	}
	specs := make([]ServerSpec, c.NumServers)
	for i := range specs {
		dist := c.ProcessingTime
		specs[i] = ServerSpec{
			ID:             fmt.Sprintf("server_%d", i),
			Capacity:       c.Capacity,
			Weight:         1,
			ProcessingTime: &dist,
		}
	}
	return specs
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

func validateFinitePositive(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return invalid("%s must be finite and positive, got %g", name, v)
	}
	return nil
}

// Validate checks every field and returns an error wrapping ErrInvalidConfiguration.
func (c *Config) Validate() error {
	if err := validateFinitePositive("duration", c.Duration); err != nil {
		return err
	}
	if err := validateFinitePositive("arrival.rate", c.Arrival.Rate); err != nil {
		return err
	}
	if !ValidArrivalProcesses[c.Arrival.Process] {
		return invalid("unknown arrival process %q; valid: poisson, gamma, weibull", c.Arrival.Process)
	}
	if c.Arrival.CV != nil {
		if err := validateFinitePositive("arrival.cv", *c.Arrival.CV); err != nil {
			return err
		}
		if c.Arrival.Process == "weibull" && (*c.Arrival.CV < 0.01 || *c.Arrival.CV > 10.4) {
			return invalid("weibull cv must be in [0.01, 10.4], got %g", *c.Arrival.CV)
		}
	}
	if !ValidSelectionPolicies[c.Policy] {
		return invalid("unknown selection policy %q", c.Policy)
	}
	if c.MaxEvents < 0 {
		return invalid("max_events must be >= 0, got %d", c.MaxEvents)
	}
	if !trace.IsValidTraceLevel(string(c.Trace)) {
		return invalid("unknown trace level %q", c.Trace)
	}

	if len(c.Servers) == 0 && c.NumServers <= 0 {
		return invalid("num_servers must be positive, got %d", c.NumServers)
	}
	ids := make(map[string]bool)
	for i, s := range c.ServerSpecs() {
		if s.ID == "" {
			return invalid("servers[%d]: id is required", i)
		}
		if ids[s.ID] {
			return invalid("servers[%d]: duplicate id %q", i, s.ID)
		}
		ids[s.ID] = true
		if s.Capacity <= 0 {
			return invalid("server %s: capacity must be positive, got %d", s.ID, s.Capacity)
		}
		if s.Weight < 1 {
			return invalid("server %s: weight must be >= 1, got %d", s.ID, s.Weight)
		}
		if _, err := NewProcessingTimeSampler(*s.ProcessingTime); err != nil {
			return invalid("server %s: processing_time: %v", s.ID, err)
		}
	}

	for i, hc := range c.HealthChecks {
		if math.IsNaN(hc.Time) || hc.Time < 0 {
			return invalid("health_checks[%d]: time must be >= 0, got %g", i, hc.Time)
		}
		if !ids[hc.Server] {
			return invalid("health_checks[%d]: unknown server %q", i, hc.Server)
		}
	}
	return nil
}
