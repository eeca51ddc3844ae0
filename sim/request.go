package sim

// Request identifies an incoming request at the moment it is dispatched.
type Request struct {
	ID          int64
	ArrivalTime float64 // simulated seconds
}
