// Tracks run-wide and per-server statistics and renders the final report.

package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// Statistics aggregates pipeline-level counters for one run.
// TotalServiceTime sums the processing times sampled at admission; it is the
// pipeline's view of response time and differs from the end-to-end latency
// the servers record at completion.
type Statistics struct {
	TotalRequests    int
	DroppedRequests  int
	AdmittedRequests int
	TotalServiceTime float64
}

// AverageResponseTime returns TotalServiceTime / TotalRequests, or 0 when no
// request arrived. Dropped requests count in the denominator.
func (s Statistics) AverageResponseTime() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return s.TotalServiceTime / float64(s.TotalRequests)
}

// Distribution captures statistical summary of a metric.
type Distribution struct {
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// NewDistribution computes a Distribution from raw values.
// Returns zero-value Distribution for empty input.
func NewDistribution(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	return Distribution{
		Mean:  sum / float64(len(sorted)),
		P50:   percentile(sorted, 50),
		P95:   percentile(sorted, 95),
		P99:   percentile(sorted, 99),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Count: len(sorted),
	}
}

// percentile computes the p-th percentile using linear interpolation.
// Input must be sorted.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// ServerReport is the final state of one server.
type ServerReport struct {
	ID                string  `json:"id"`
	FinalLoad         int     `json:"final_load"`
	RequestsCompleted int     `json:"requests_completed"`
	MeanLatency       float64 `json:"mean_latency"`
	Healthy           bool    `json:"healthy"`
}

// Report is produced once when a run finishes.
type Report struct {
	Policy              string         `json:"policy"`
	Seed                int64          `json:"seed"`
	TotalRequests       int            `json:"total_requests"`
	DroppedRequests     int            `json:"dropped_requests"`
	AdmittedRequests    int            `json:"admitted_requests"`
	CompletedRequests   int            `json:"completed_requests"`
	InFlight            int            `json:"in_flight"`
	AverageResponseTime float64        `json:"average_response_time"` // sampled service time / total requests
	Latency             Distribution   `json:"latency"`               // completion - arrival, completed requests only
	SimEndedTime        float64        `json:"sim_ended_time"`
	EventsProcessed     int64          `json:"events_processed"`
	PerServer           []ServerReport `json:"per_server"`
}

// DropRate returns DroppedRequests / TotalRequests, or 0 when no request arrived.
func (r *Report) DropRate() float64 {
	if r.TotalRequests == 0 {
		return 0
	}
	return float64(r.DroppedRequests) / float64(r.TotalRequests)
}

// Print writes the human-readable report.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Metrics ===")
	fmt.Fprintf(w, "Policy                : %s (seed %d)\n", r.Policy, r.Seed)
	fmt.Fprintf(w, "Simulated Time        : %.2f s (%d events)\n", r.SimEndedTime, r.EventsProcessed)
	fmt.Fprintf(w, "Total Requests        : %d\n", r.TotalRequests)
	fmt.Fprintf(w, "Dropped Requests      : %d (%.2f%%)\n", r.DroppedRequests, 100*r.DropRate())
	fmt.Fprintf(w, "Completed Requests    : %d (%d in flight)\n", r.CompletedRequests, r.InFlight)
	fmt.Fprintf(w, "Average Response Time : %.4f s\n", r.AverageResponseTime)
	if r.Latency.Count > 0 {
		fmt.Fprintf(w, "Latency mean/p50/p99  : %.4f / %.4f / %.4f s\n", r.Latency.Mean, r.Latency.P50, r.Latency.P99)
	}
	fmt.Fprintln(w, "=== Per-Server ===")
	for _, s := range r.PerServer {
		health := "healthy"
		if !s.Healthy {
			health = "unhealthy"
		}
		fmt.Fprintf(w, "%-12s load=%-4d completed=%-6d mean_latency=%.4fs %s\n",
			s.ID, s.FinalLoad, s.RequestsCompleted, s.MeanLatency, health)
	}
}

// SaveReport writes the report as indented JSON to path.
func (r *Report) SaveReport(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return nil
}
