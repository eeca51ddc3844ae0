package sim

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// ArrivalSpec configures the inter-arrival time process.
type ArrivalSpec struct {
	Process string   `yaml:"process"` // "poisson" (default), "gamma" or "weibull"
	Rate    float64  `yaml:"rate"`    // mean requests per simulated second (λ > 0)
	CV      *float64 `yaml:"cv,omitempty"`
}

// ValidArrivalProcesses is the set of recognized arrival process names.
var ValidArrivalProcesses = map[string]bool{"": true, "poisson": true, "gamma": true, "weibull": true}

// GapSampler generates inter-arrival gaps in simulated seconds.
type GapSampler interface {
	// SampleGap returns the next gap. Always returns a positive value.
	SampleGap(rng *rand.Rand) float64
}

// ArrivalProcess produces strictly increasing arrival times from a GapSampler
// and its own RNG stream. It is lazy and cannot be restarted.
type ArrivalProcess struct {
	sampler GapSampler
	rng     *rand.Rand
}

// NewArrivalProcess binds a gap sampler to an RNG stream.
func NewArrivalProcess(sampler GapSampler, rng *rand.Rand) *ArrivalProcess {
	return &ArrivalProcess{sampler: sampler, rng: rng}
}

// Next returns now + gap, or the next representable float64 above now when
// the gap is too small to register at this magnitude.
func (a *ArrivalProcess) Next(now float64) float64 {
	next := now + a.sampler.SampleGap(a.rng)
	if next <= now {
		next = math.Nextafter(now, math.Inf(1))
	}
	return next
}

// minGap is the smallest gap a sampler returns.
const minGap = 1e-12

// PoissonSampler generates exponentially-distributed gaps (CV=1).
type PoissonSampler struct {
	rate float64 // requests per second
}

func (s *PoissonSampler) SampleGap(rng *rand.Rand) float64 {
	return math.Max(rng.ExpFloat64()/s.rate, minGap)
}

// GammaSampler generates Gamma-distributed gaps. CV > 1 produces bursty arrivals.
type GammaSampler struct {
	shape float64 // 1/CV²
	scale float64 // CV²/rate in seconds
}

func (s *GammaSampler) SampleGap(rng *rand.Rand) float64 {
	return math.Max(gammaRand(rng, s.shape, s.scale), minGap)
}

// gammaRand samples from Gamma(shape, scale) using Marsaglia-Tsang's method.
// For shape < 1: Gamma(shape) = Gamma(shape+1) * U^(1/shape).
func gammaRand(rng *rand.Rand, shape, scale float64) float64 {
	if shape < 1.0 {
		u := rng.Float64()
		return gammaRand(rng, shape+1.0, scale) * math.Pow(u, 1.0/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)

	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1.0 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()

		if u < 1.0-0.0331*(x*x)*(x*x) {
			return d * v * scale
		}
		if math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v * scale
		}
	}
}

// WeibullSampler generates Weibull-distributed gaps.
type WeibullSampler struct {
	shape float64 // k
	scale float64 // λ in seconds
}

func (s *WeibullSampler) SampleGap(rng *rand.Rand) float64 {
	// Inverse CDF: scale * (-ln(U))^(1/shape)
	u := rng.Float64()
	if u == 0 {
		u = math.SmallestNonzeroFloat64
	}
	return math.Max(s.scale*math.Pow(-math.Log(u), 1.0/s.shape), minGap)
}

// NewGapSampler creates a GapSampler from a spec. The spec must have been validated.
func NewGapSampler(spec ArrivalSpec) (GapSampler, error) {
	if spec.Rate <= 0 || math.IsNaN(spec.Rate) || math.IsInf(spec.Rate, 0) {
		return nil, fmt.Errorf("arrival rate must be finite and positive, got %g", spec.Rate)
	}
	cv := 1.0
	if spec.CV != nil {
		cv = *spec.CV
	}
	if spec.Process != "" && spec.Process != "poisson" && cv <= 0 {
		return nil, fmt.Errorf("arrival cv must be positive, got %g", cv)
	}
	mean := 1.0 / spec.Rate

	switch spec.Process {
	case "", "poisson":
		return &PoissonSampler{rate: spec.Rate}, nil

	case "gamma":
		// shape = 1/CV², scale = mean * CV²
		shape := 1.0 / (cv * cv)
		if shape < 0.01 {
			logrus.Warnf("Gamma shape %.4f (CV=%.1f) is very small; falling back to Poisson", shape, cv)
			return &PoissonSampler{rate: spec.Rate}, nil
		}
		return &GammaSampler{shape: shape, scale: mean * cv * cv}, nil

	case "weibull":
		k := weibullShapeFromCV(cv)
		return &WeibullSampler{shape: k, scale: mean / math.Gamma(1.0+1.0/k)}, nil

	default:
		return nil, fmt.Errorf("unknown arrival process %q", spec.Process)
	}
}

// weibullShapeFromCV finds k such that CV² = Γ(1+2/k)/Γ(1+1/k)² - 1, by bisection
// over k ∈ [0.1, 100].
func weibullShapeFromCV(targetCV float64) float64 {
	lo, hi := 0.1, 100.0
	for i := 0; i < 100; i++ {
		mid := (lo + hi) / 2.0
		cv := weibullCV(mid)
		if math.Abs(cv-targetCV) < 0.001 {
			return mid
		}
		// CV is monotonically decreasing in k
		if cv > targetCV {
			lo = mid
		} else {
			hi = mid
		}
	}
	logrus.Warnf("weibullShapeFromCV: bisection did not converge for CV=%.3f; using k=%.3f", targetCV, (lo+hi)/2.0)
	return (lo + hi) / 2.0
}

func weibullCV(k float64) float64 {
	g1 := math.Gamma(1.0 + 1.0/k)
	g2 := math.Gamma(1.0 + 2.0/k)
	return math.Sqrt(g2/(g1*g1) - 1.0)
}
