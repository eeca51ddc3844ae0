package sim

import "fmt"

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	// KindArrival is a request arriving at the load balancer.
	KindArrival EventKind = iota
	// KindCompletion is an admitted request finishing on its server.
	KindCompletion
	// KindHealthCheck flips a server's health flag.
	KindHealthCheck
)

func (k EventKind) String() string {
	switch k {
	case KindArrival:
		return "arrival"
	case KindCompletion:
		return "completion"
	case KindHealthCheck:
		return "health_check"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event is an immutable, time-stamped occurrence in simulated time.
// Fields are unexported so an event cannot be changed after it is scheduled;
// use the New*Event constructors and the getters.
type Event struct {
	time float64 // simulated seconds
	kind EventKind

	requestID   int64
	serverID    string
	arrivalTime float64 // completion only: when the request arrived
	healthy     bool    // health check only: the flag value to apply
}

// NewArrivalEvent creates an arrival of request id at time t.
func NewArrivalEvent(t float64, requestID int64) Event {
	return Event{time: t, kind: KindArrival, requestID: requestID}
}

// NewCompletionEvent creates the completion of requestID on serverID at time t.
// arrivalTime is carried so latency is computed from the payload alone.
func NewCompletionEvent(t float64, serverID string, requestID int64, arrivalTime float64) Event {
	return Event{
		time:        t,
		kind:        KindCompletion,
		requestID:   requestID,
		serverID:    serverID,
		arrivalTime: arrivalTime,
	}
}

// NewHealthCheckEvent creates an event that sets serverID's health flag to healthy at time t.
func NewHealthCheckEvent(t float64, serverID string, healthy bool) Event {
	return Event{time: t, kind: KindHealthCheck, serverID: serverID, healthy: healthy}
}

func (e Event) Time() float64        { return e.time }
func (e Event) Kind() EventKind      { return e.kind }
func (e Event) RequestID() int64     { return e.requestID }
func (e Event) ServerID() string     { return e.serverID }
func (e Event) ArrivalTime() float64 { return e.arrivalTime }
func (e Event) Healthy() bool        { return e.healthy }

func (e Event) String() string {
	switch e.kind {
	case KindArrival:
		return fmt.Sprintf("Arrival(t=%.4fs, req=%d)", e.time, e.requestID)
	case KindCompletion:
		return fmt.Sprintf("Completion(t=%.4fs, req=%d, server=%s, arrived=%.4fs)",
			e.time, e.requestID, e.serverID, e.arrivalTime)
	case KindHealthCheck:
		return fmt.Sprintf("HealthCheck(t=%.4fs, server=%s, healthy=%t)", e.time, e.serverID, e.healthy)
	default:
		return fmt.Sprintf("Event(t=%.4fs, kind=%s)", e.time, e.kind)
	}
}
