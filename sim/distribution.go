package sim

import (
	"fmt"
	"math"
	"math/rand"
)

// minProcessingTime is the floor for every sampled service time, so a
// completion is always strictly after its arrival.
const minProcessingTime = 1e-9

// ProcessingTimeSampler draws per-request service times in simulated seconds.
type ProcessingTimeSampler interface {
	// Sample returns a positive duration in seconds.
	Sample(rng *rand.Rand) float64
}

// DistSpec parameterizes a processing-time distribution.
type DistSpec struct {
	Type   string             `yaml:"type"`
	Params map[string]float64 `yaml:"params,omitempty"`
	Values []float64          `yaml:"values,omitempty"` // "choice" only
}

// ValidDistributions is the set of recognized processing-time distribution names.
var ValidDistributions = map[string]bool{
	"constant": true, "exponential": true, "uniform": true, "gaussian": true, "choice": true,
}

// ConstantSampler always returns the same duration.
type ConstantSampler struct {
	value float64
}

func (s *ConstantSampler) Sample(_ *rand.Rand) float64 {
	return floorProcessingTime(s.value)
}

// ExponentialSampler produces exponentially-distributed durations with the given mean.
type ExponentialSampler struct {
	mean float64
}

func (s *ExponentialSampler) Sample(rng *rand.Rand) float64 {
	return floorProcessingTime(rng.ExpFloat64() * s.mean)
}

// UniformSampler draws uniformly from [min, max).
type UniformSampler struct {
	min, max float64
}

func (s *UniformSampler) Sample(rng *rand.Rand) float64 {
	return floorProcessingTime(s.min + rng.Float64()*(s.max-s.min))
}

// GaussianSampler produces clamped Gaussian durations.
type GaussianSampler struct {
	mean, stdDev float64
	min, max     float64
}

func (s *GaussianSampler) Sample(rng *rand.Rand) float64 {
	if s.min == s.max {
		return floorProcessingTime(s.min)
	}
	val := rng.NormFloat64()*s.stdDev + s.mean
	return floorProcessingTime(math.Min(s.max, math.Max(s.min, val)))
}

// ChoiceSampler picks uniformly from a fixed list of durations.
type ChoiceSampler struct {
	values []float64
}

func (s *ChoiceSampler) Sample(rng *rand.Rand) float64 {
	if len(s.values) == 1 {
		return floorProcessingTime(s.values[0])
	}
	return floorProcessingTime(s.values[rng.Intn(len(s.values))])
}

func floorProcessingTime(v float64) float64 {
	if math.IsNaN(v) || v < minProcessingTime {
		return minProcessingTime
	}
	return v
}

// requireParam checks that all required keys exist in a params map.
func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return fmt.Errorf("distribution requires parameter %q", k)
		}
	}
	return nil
}

// NewProcessingTimeSampler creates a ProcessingTimeSampler from a DistSpec.
func NewProcessingTimeSampler(spec DistSpec) (ProcessingTimeSampler, error) {
	switch spec.Type {
	case "constant":
		if err := requireParam(spec.Params, "value"); err != nil {
			return nil, err
		}
		if spec.Params["value"] <= 0 {
			return nil, fmt.Errorf("constant value must be positive, got %g", spec.Params["value"])
		}
		return &ConstantSampler{value: spec.Params["value"]}, nil

	case "exponential":
		if err := requireParam(spec.Params, "mean"); err != nil {
			return nil, err
		}
		if spec.Params["mean"] <= 0 {
			return nil, fmt.Errorf("exponential mean must be positive, got %g", spec.Params["mean"])
		}
		return &ExponentialSampler{mean: spec.Params["mean"]}, nil

	case "uniform":
		if err := requireParam(spec.Params, "min", "max"); err != nil {
			return nil, err
		}
		lo, hi := spec.Params["min"], spec.Params["max"]
		if lo < 0 || hi < lo {
			return nil, fmt.Errorf("uniform requires 0 <= min <= max, got [%g, %g]", lo, hi)
		}
		return &UniformSampler{min: lo, max: hi}, nil

	case "gaussian":
		if err := requireParam(spec.Params, "mean", "std_dev", "min", "max"); err != nil {
			return nil, err
		}
		if spec.Params["min"] < 0 || spec.Params["max"] < spec.Params["min"] {
			return nil, fmt.Errorf("gaussian requires 0 <= min <= max, got [%g, %g]",
				spec.Params["min"], spec.Params["max"])
		}
		return &GaussianSampler{
			mean:   spec.Params["mean"],
			stdDev: spec.Params["std_dev"],
			min:    spec.Params["min"],
			max:    spec.Params["max"],
		}, nil

	case "choice":
		if len(spec.Values) == 0 {
			return nil, fmt.Errorf("choice distribution requires at least one value")
		}
		for i, v := range spec.Values {
			if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("choice values[%d] must be finite and positive, got %g", i, v)
			}
		}
		values := make([]float64, len(spec.Values))
		copy(values, spec.Values)
		return &ChoiceSampler{values: values}, nil

	default:
		return nil, fmt.Errorf("unknown distribution type %q", spec.Type)
	}
}
