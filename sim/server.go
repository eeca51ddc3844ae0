package sim

import (
	"fmt"
	"math/rand"
)

// Server is the mutable state of one backend behind the load balancer.
// It is owned by a single Simulator; load and the in-flight set change only
// through Admit and Complete, which keep load == len(inFlight).
type Server struct {
	ID       string
	Capacity int  // max concurrent requests (> 0)
	Weight   int  // relative share for weighted policies (>= 1)
	Healthy  bool // unhealthy servers are skipped by every selection policy

	sampler ProcessingTimeSampler
	rng     *rand.Rand

	load     int
	inFlight map[int64]struct{}

	// RequestsCompleted and TotalResponseTime are server-level statistics
	// updated at completion. TotalResponseTime sums end-to-end latency
	// (completion time - arrival time), not the sampled service time.
	RequestsCompleted int
	TotalResponseTime float64
}

// NewServer creates a healthy, idle server.
// sampler and rng draw this server's processing times.
func NewServer(id string, capacity, weight int, sampler ProcessingTimeSampler, rng *rand.Rand) *Server {
	if weight < 1 {
		weight = 1
	}
	return &Server{
		ID:       id,
		Capacity: capacity,
		Weight:   weight,
		Healthy:  true,
		sampler:  sampler,
		rng:      rng,
		inFlight: make(map[int64]struct{}),
	}
}

// Load returns the number of requests currently in flight on the server.
func (s *Server) Load() int { return s.load }

// HasCapacity reports whether the server can admit one more request.
func (s *Server) HasCapacity() bool { return s.load < s.Capacity }

// IsInFlight reports whether requestID is currently being served.
func (s *Server) IsInFlight(requestID int64) bool {
	_, ok := s.inFlight[requestID]
	return ok
}

// InFlight returns the ids of requests currently being served, in no particular order.
func (s *Server) InFlight() []int64 {
	ids := make([]int64, 0, len(s.inFlight))
	for id := range s.inFlight {
		ids = append(ids, id)
	}
	return ids
}

// SampleProcessingTime draws a service time in seconds from the server's distribution.
func (s *Server) SampleProcessingTime() float64 {
	return s.sampler.Sample(s.rng)
}

// SetHealthy sets the health flag. Applying the same value twice is a no-op.
// Returns true if the flag changed.
func (s *Server) SetHealthy(healthy bool) bool {
	if s.Healthy == healthy {
		return false
	}
	s.Healthy = healthy
	return true
}

// Admit records requestID as in flight.
// Admission control is the caller's job; Admit on a full server or with a
// duplicate id is a bookkeeping bug and returns ErrInconsistentState.
func (s *Server) Admit(requestID int64) error {
	if !s.HasCapacity() {
		return fmt.Errorf("%w: server %s admit req %d at load %d/%d",
			ErrInconsistentState, s.ID, requestID, s.load, s.Capacity)
	}
	if s.IsInFlight(requestID) {
		return fmt.Errorf("%w: server %s admit req %d already in flight", ErrInconsistentState, s.ID, requestID)
	}
	s.inFlight[requestID] = struct{}{}
	s.load++
	return s.CheckInvariant()
}

// Complete removes requestID from the in-flight set and records its latency.
// Returns ErrInconsistentState if requestID was not in flight.
func (s *Server) Complete(requestID int64, responseTime float64) error {
	if !s.IsInFlight(requestID) {
		return fmt.Errorf("%w: server %s has no in-flight req %d", ErrInconsistentState, s.ID, requestID)
	}
	delete(s.inFlight, requestID)
	s.load--
	s.RequestsCompleted++
	s.TotalResponseTime += responseTime
	return s.CheckInvariant()
}

// MeanResponseTime returns TotalResponseTime / RequestsCompleted, or 0 before any completion.
func (s *Server) MeanResponseTime() float64 {
	if s.RequestsCompleted == 0 {
		return 0
	}
	return s.TotalResponseTime / float64(s.RequestsCompleted)
}

// CheckInvariant verifies 0 <= load <= capacity and load == |in-flight|.
func (s *Server) CheckInvariant() error {
	if s.load < 0 || s.load > s.Capacity {
		return fmt.Errorf("%w: server %s load %d outside [0, %d]", ErrInconsistentState, s.ID, s.load, s.Capacity)
	}
	if s.load != len(s.inFlight) {
		return fmt.Errorf("%w: server %s load %d != in-flight %d", ErrInconsistentState, s.ID, s.load, len(s.inFlight))
	}
	return nil
}
