// Package trace provides decision-trace recording for load-balancer dispatch analysis.
// It has no dependencies on sim/ and stores pure data types.
package trace

// DispatchRecord captures a single dispatch decision: which server the
// selection policy chose for a request and whether admission control accepted it.
type DispatchRecord struct {
	RequestID    int64
	Clock        float64
	ChosenServer string // empty when the policy returned no server
	Admitted     bool
	Reason       string
	Load         int // chosen server's load before admission
	Capacity     int
}

// HealthRecord captures a processed health check.
type HealthRecord struct {
	ServerID string
	Clock    float64
	Healthy  bool
	Changed  bool // false when the server already had this flag value
}
