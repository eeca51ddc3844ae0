package sim

import (
	"fmt"
	"math/rand"
	"testing"
)

// constantDist returns a DistSpec that always samples v seconds.
func constantDist(v float64) DistSpec {
	return DistSpec{Type: "constant", Params: map[string]float64{"value": v}}
}

// newTestServer returns a healthy server with a constant service time.
func newTestServer(id string, capacity int) *Server {
	sampler, err := NewProcessingTimeSampler(constantDist(1.0))
	if err != nil {
		panic(err)
	}
	return NewServer(id, capacity, 1, sampler, rand.New(rand.NewSource(1)))
}

// newTestPool returns n servers named s0..s{n-1}.
func newTestPool(n, capacity int) []*Server {
	pool := make([]*Server, n)
	for i := range pool {
		pool[i] = newTestServer(fmt.Sprintf("s%d", i), capacity)
	}
	return pool
}

// quietConfig returns a config whose arrival process essentially never fires
// before the duration, so tests control arrivals through InjectArrival.
func quietConfig(numServers, capacity int, serviceTime float64) Config {
	cfg := DefaultConfig()
	cfg.Arrival = ArrivalSpec{Process: "poisson", Rate: 1e-12}
	cfg.NumServers = numServers
	cfg.Capacity = capacity
	cfg.ProcessingTime = constantDist(serviceTime)
	cfg.Duration = 1000
	return cfg
}

func mustNewSimulator(t *testing.T, cfg Config) *Simulator {
	t.Helper()
	s, err := NewSimulator(cfg)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	return s
}

// runCheckingInvariants steps the simulator to completion and fails the test
// if any per-server or accounting invariant breaks between events.
func runCheckingInvariants(t *testing.T, s *Simulator) {
	t.Helper()
	runCheckingInvariantsWith(t, s, func() {})
}

// runCheckingInvariantsWith is runCheckingInvariants with an extra check
// called after every step.
func runCheckingInvariantsWith(t *testing.T, s *Simulator, check func()) {
	t.Helper()
	for {
		ok, err := s.Step()
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if err := s.CheckInvariants(); err != nil {
			t.Fatalf("invariant violated at t=%.4f: %v", s.Clock, err)
		}
		check()
		if !ok {
			return
		}
	}
}

// mustInject schedules an extra arrival at time at and returns its request id.
func mustInject(t *testing.T, s *Simulator, at float64) int64 {
	t.Helper()
	id, err := s.InjectArrival(at)
	if err != nil {
		t.Fatalf("InjectArrival(%g): %v", at, err)
	}
	return id
}
