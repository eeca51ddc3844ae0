// sim/simulator.go
package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/jeremyverde/app-sim/sim/trace"
)

// RunState is the simulator's lifecycle state.
type RunState int

const (
	StateNotStarted RunState = iota
	StateRunning
	StateFinished
)

func (s RunState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Simulator is the simulation driver. It owns the server pool, the event
// queue, the arrival process and the statistics for exactly one run; nothing
// is shared between Simulator values, so independent runs may execute in
// parallel goroutines.
type Simulator struct {
	Clock    float64 // simulated seconds of the last processed event
	Duration float64
	Queue    *EventQueue
	Servers  []*Server // pool order; selection policies break ties by it
	Stats    Statistics
	// Trace records dispatch decisions when the config enables it; nil otherwise.
	Trace *trace.SimulationTrace

	cfg         Config
	rng         *PartitionedRNG
	policy      SelectionPolicy
	arrivals    *ArrivalProcess
	serverIndex map[string]*Server
	log         *logrus.Entry

	state           RunState
	nextRequestID   int64
	eventsProcessed int64
	draining        bool
	latencies       []float64 // end-to-end latency of each completed request
}

// NewSimulator validates cfg and builds a simulator in StateNotStarted.
// Returns an error wrapping ErrInvalidConfiguration on bad input.
func NewSimulator(cfg Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := NewPartitionedRNG(cfg.Seed)

	gaps, err := NewGapSampler(cfg.Arrival)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	s := &Simulator{
		Duration:    cfg.Duration,
		Queue:       NewEventQueue(),
		cfg:         cfg,
		rng:         rng,
		policy:      NewSelectionPolicy(cfg.Policy, rng.ForSubsystem(SubsystemRouter)),
		arrivals:    NewArrivalProcess(gaps, rng.ForSubsystem(SubsystemArrival)),
		serverIndex: make(map[string]*Server),
		log:         logrus.NewEntry(logrus.StandardLogger()),
		state:       StateNotStarted,
		latencies:   make([]float64, 0),
	}
	for _, spec := range cfg.ServerSpecs() {
		sampler, err := NewProcessingTimeSampler(*spec.ProcessingTime)
		if err != nil {
			return nil, fmt.Errorf("%w: server %s: %v", ErrInvalidConfiguration, spec.ID, err)
		}
		srv := NewServer(spec.ID, spec.Capacity, spec.Weight, sampler, rng.ForSubsystem(SubsystemServer(spec.ID)))
		s.Servers = append(s.Servers, srv)
		s.serverIndex[srv.ID] = srv
	}
	if cfg.Trace == trace.TraceLevelDecisions {
		s.Trace = trace.NewSimulationTrace(cfg.Trace)
	}
	return s, nil
}

// SetLogger routes the simulator's logs through entry, e.g. one carrying a run id field.
func (s *Simulator) SetLogger(entry *logrus.Entry) { s.log = entry }

// State returns the current lifecycle state.
func (s *Simulator) State() RunState { return s.state }

// Policy returns the selection policy chosen for this run.
func (s *Simulator) Policy() SelectionPolicy { return s.policy }

// EventsProcessed returns the number of events dispatched to a handler so far.
func (s *Simulator) EventsProcessed() int64 { return s.eventsProcessed }

// Server looks up a server by id.
func (s *Simulator) Server(id string) (*Server, bool) {
	srv, ok := s.serverIndex[id]
	return srv, ok
}

// Latencies returns the end-to-end latency of every completed request, in completion order.
func (s *Simulator) Latencies() []float64 { return s.latencies }

// Schedule pushes an event into the simulator's queue. The event time must
// be a number no earlier than the clock; otherwise ErrPastEvent is returned
// and nothing is scheduled.
func (s *Simulator) Schedule(ev Event) error {
	if math.IsNaN(ev.Time()) || ev.Time() < 0 || ev.Time() < s.Clock {
		return fmt.Errorf("%w: %s at t=%g, clock %g", ErrPastEvent, ev.Kind(), ev.Time(), s.Clock)
	}
	s.Queue.Schedule(ev)
	return nil
}

// InjectArrival schedules an extra arrival at time t outside the arrival
// process and returns its request id. Used for trace replay and tests.
func (s *Simulator) InjectArrival(t float64) (int64, error) {
	ev := NewArrivalEvent(t, s.nextRequestID+1)
	if err := s.Schedule(ev); err != nil {
		return 0, err
	}
	return s.newRequestID(), nil
}

func (s *Simulator) newRequestID() int64 {
	s.nextRequestID++
	return s.nextRequestID
}

// start seeds the first arrival and the configured health checks and enters StateRunning.
func (s *Simulator) start() {
	s.state = StateRunning
	if first := s.arrivals.Next(0); first < s.Duration {
		s.Queue.Schedule(NewArrivalEvent(first, s.newRequestID()))
	}
	for _, hc := range s.cfg.HealthChecks {
		if hc.Time < s.Duration {
			s.Queue.Schedule(NewHealthCheckEvent(hc.Time, hc.Server, hc.Healthy))
		}
	}
	s.log.Infof("Starting simulation: policy=%s servers=%d rate=%.3f duration=%.2fs seed=%d",
		s.policy.Name(), len(s.Servers), s.cfg.Arrival.Rate, s.Duration, s.cfg.Seed)
}

func (s *Simulator) finish() {
	s.state = StateFinished
	s.log.Infof("[t=%.4f] Simulation ended after %d events", s.Clock, s.eventsProcessed)
}

// Step processes at most one event. It returns false once the run has
// finished (queue empty, duration reached or MaxEvents hit). Invariant
// violations abort the run and are returned wrapped with the offending event.
func (s *Simulator) Step() (bool, error) {
	switch s.state {
	case StateFinished:
		return false, ErrAlreadyFinished
	case StateNotStarted:
		s.start()
	}

	if s.cfg.MaxEvents > 0 && s.eventsProcessed >= s.cfg.MaxEvents {
		s.finish()
		return false, nil
	}

	ev, err := s.Queue.PopEarliest()
	if errors.Is(err, ErrEmptyQueue) {
		s.finish()
		return false, nil
	}

	if ev.Time() >= s.Duration {
		if !s.cfg.Drain {
			s.finish()
			return false, nil
		}
		if !s.draining {
			s.draining = true
			s.log.Debugf("[t=%.4f] Duration reached; draining %d pending events", ev.Time(), s.Queue.Len()+1)
		}
		if ev.Kind() != KindCompletion {
			return true, nil
		}
	}

	s.Clock = ev.Time()
	s.log.Debugf("[t=%.4f] Executing %s", s.Clock, ev)
	if err := s.dispatch(ev); err != nil {
		s.log.Errorf("[t=%.4f] Aborting run: %v", s.Clock, err)
		s.state = StateFinished
		return false, fmt.Errorf("processing %s at t=%.6f: %w", ev, s.Clock, err)
	}
	s.eventsProcessed++
	return true, nil
}

// Run processes events until the run finishes.
func (s *Simulator) Run() error {
	if s.state == StateFinished {
		return ErrAlreadyFinished
	}
	for {
		ok, err := s.Step()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

func (s *Simulator) dispatch(ev Event) error {
	switch ev.Kind() {
	case KindArrival:
		return s.handleArrival(ev)
	case KindCompletion:
		return s.handleCompletion(ev)
	case KindHealthCheck:
		return s.handleHealthCheck(ev)
	default:
		return fmt.Errorf("unhandled event kind %s", ev.Kind())
	}
}

// handleArrival applies admission control: a request is dropped when the
// policy finds no server or the chosen server is full. The next arrival is
// always drawn, and scheduled if it falls before the duration.
func (s *Simulator) handleArrival(ev Event) error {
	s.Stats.TotalRequests++
	req := Request{ID: ev.RequestID(), ArrivalTime: ev.Time()}

	server := s.policy.Select(req, s.Servers)
	switch {
	case server == nil:
		s.drop(req, nil, "no healthy server")
	case !server.HasCapacity():
		s.drop(req, server, "at capacity")
	default:
		load := server.Load()
		p := server.SampleProcessingTime()
		if err := server.Admit(req.ID); err != nil {
			return err
		}
		s.Stats.AdmittedRequests++
		s.Stats.TotalServiceTime += p
		s.Queue.Schedule(NewCompletionEvent(ev.Time()+p, server.ID, req.ID, ev.Time()))
		if s.Trace != nil {
			s.Trace.RecordDispatch(trace.DispatchRecord{
				RequestID:    req.ID,
				Clock:        ev.Time(),
				ChosenServer: server.ID,
				Admitted:     true,
				Reason:       s.policy.Name(),
				Load:         load,
				Capacity:     server.Capacity,
			})
		}
	}

	if next := s.arrivals.Next(ev.Time()); next < s.Duration {
		s.Queue.Schedule(NewArrivalEvent(next, s.newRequestID()))
	}
	return nil
}

func (s *Simulator) drop(req Request, server *Server, reason string) {
	s.Stats.DroppedRequests++
	s.log.Debugf("[t=%.4f] Dropped req %d: %s", req.ArrivalTime, req.ID, reason)
	if s.Trace == nil {
		return
	}
	rec := trace.DispatchRecord{RequestID: req.ID, Clock: req.ArrivalTime, Reason: reason}
	if server != nil {
		rec.ChosenServer = server.ID
		rec.Load = server.Load()
		rec.Capacity = server.Capacity
	}
	s.Trace.RecordDispatch(rec)
}

// handleCompletion releases the request's slot and records its latency,
// measured from the arrival time carried in the event.
func (s *Simulator) handleCompletion(ev Event) error {
	server, ok := s.serverIndex[ev.ServerID()]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownServer, ev.ServerID())
	}
	latency := s.Clock - ev.ArrivalTime()
	if err := server.Complete(ev.RequestID(), latency); err != nil {
		return err
	}
	s.latencies = append(s.latencies, latency)
	return nil
}

// handleHealthCheck sets the server's health flag; repeating it is a no-op.
// Requests already in flight on a server marked unhealthy still complete.
func (s *Simulator) handleHealthCheck(ev Event) error {
	server, ok := s.serverIndex[ev.ServerID()]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownServer, ev.ServerID())
	}
	changed := server.SetHealthy(ev.Healthy())
	if changed {
		s.log.Infof("[t=%.4f] Server %s healthy=%t", s.Clock, server.ID, server.Healthy)
	}
	if s.Trace != nil {
		s.Trace.RecordHealth(trace.HealthRecord{
			ServerID: server.ID,
			Clock:    s.Clock,
			Healthy:  server.Healthy,
			Changed:  changed,
		})
	}
	return nil
}

// CheckInvariants verifies per-server bookkeeping and the request accounting identity
// total == admitted + dropped, admitted == completed + in flight.
func (s *Simulator) CheckInvariants() error {
	completed, inFlight := 0, 0
	for _, srv := range s.Servers {
		if err := srv.CheckInvariant(); err != nil {
			return err
		}
		completed += srv.RequestsCompleted
		inFlight += srv.Load()
	}
	if s.Stats.TotalRequests != s.Stats.AdmittedRequests+s.Stats.DroppedRequests {
		return fmt.Errorf("%w: total %d != admitted %d + dropped %d", ErrInconsistentState,
			s.Stats.TotalRequests, s.Stats.AdmittedRequests, s.Stats.DroppedRequests)
	}
	if s.Stats.AdmittedRequests != completed+inFlight {
		return fmt.Errorf("%w: admitted %d != completed %d + in flight %d", ErrInconsistentState,
			s.Stats.AdmittedRequests, completed, inFlight)
	}
	return nil
}

// Report summarizes the run. It is meaningful once State() is StateFinished,
// but may be called at any time for a snapshot.
func (s *Simulator) Report() *Report {
	r := &Report{
		Policy:              s.policy.Name(),
		Seed:                s.cfg.Seed,
		TotalRequests:       s.Stats.TotalRequests,
		DroppedRequests:     s.Stats.DroppedRequests,
		AdmittedRequests:    s.Stats.AdmittedRequests,
		AverageResponseTime: s.Stats.AverageResponseTime(),
		Latency:             NewDistribution(s.latencies),
		SimEndedTime:        s.Clock,
		EventsProcessed:     s.eventsProcessed,
		PerServer:           make([]ServerReport, 0, len(s.Servers)),
	}
	for _, srv := range s.Servers {
		r.CompletedRequests += srv.RequestsCompleted
		r.InFlight += srv.Load()
		r.PerServer = append(r.PerServer, ServerReport{
			ID:                srv.ID,
			FinalLoad:         srv.Load(),
			RequestsCompleted: srv.RequestsCompleted,
			MeanLatency:       srv.MeanResponseTime(),
			Healthy:           srv.Healthy,
		})
	}
	return r
}
