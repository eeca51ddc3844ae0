package sim

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatistics_AverageResponseTime(t *testing.T) {
	tests := []struct {
		name  string
		stats Statistics
		want  float64
	}{
		{"no requests", Statistics{}, 0},
		{"all admitted", Statistics{TotalRequests: 4, AdmittedRequests: 4, TotalServiceTime: 2}, 0.5},
		{"dropped count in denominator", Statistics{TotalRequests: 4, AdmittedRequests: 2, DroppedRequests: 2, TotalServiceTime: 2}, 0.5},
		{"everything dropped", Statistics{TotalRequests: 3, DroppedRequests: 3}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, tc.stats.AverageResponseTime(), 1e-12)
		})
	}
}

func TestNewDistribution(t *testing.T) {
	d := NewDistribution([]float64{5, 1, 4, 2, 3})
	assert.Equal(t, 5, d.Count)
	assert.InDelta(t, 3.0, d.Mean, 1e-12)
	assert.InDelta(t, 3.0, d.P50, 1e-12)
	assert.Equal(t, 1.0, d.Min)
	assert.Equal(t, 5.0, d.Max)
	assert.InDelta(t, 4.8, d.P95, 1e-9)

	assert.Equal(t, Distribution{}, NewDistribution(nil))
}

func TestNewDistribution_DoesNotReorderInput(t *testing.T) {
	in := []float64{3, 1, 2}
	NewDistribution(in)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestPercentile_SingleValue(t *testing.T) {
	assert.Equal(t, 7.0, percentile([]float64{7}, 99))
	assert.Equal(t, 0.0, percentile(nil, 50))
}

func TestReport_DropRate(t *testing.T) {
	assert.Equal(t, 0.0, (&Report{}).DropRate())
	assert.InDelta(t, 0.25, (&Report{TotalRequests: 8, DroppedRequests: 2}).DropRate(), 1e-12)
}

func TestReport_Print(t *testing.T) {
	r := &Report{
		Policy:              PolicyRoundRobin,
		Seed:                42,
		TotalRequests:       10,
		DroppedRequests:     1,
		CompletedRequests:   9,
		AverageResponseTime: 0.45,
		Latency:             NewDistribution([]float64{0.5, 0.5}),
		PerServer: []ServerReport{
			{ID: "server_0", RequestsCompleted: 9, MeanLatency: 0.5, Healthy: true},
			{ID: "server_1", Healthy: false},
		},
	}
	var buf bytes.Buffer
	r.Print(&buf)
	out := buf.String()

	assert.Contains(t, out, "Total Requests        : 10")
	assert.Contains(t, out, "Dropped Requests      : 1 (10.00%)")
	assert.Contains(t, out, "Average Response Time : 0.4500 s")
	assert.Contains(t, out, "server_0")
	assert.Contains(t, out, "unhealthy")
}

func TestReport_SaveReport_WritesJSON(t *testing.T) {
	s := mustNewSimulator(t, quietConfig(1, 1, 10.0))
	mustInject(t, s, 1)
	mustInject(t, s, 2)
	require.NoError(t, s.Run())

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, s.Report().SaveReport(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.EqualValues(t, 2, decoded["total_requests"])
	assert.EqualValues(t, 1, decoded["dropped_requests"])
	assert.EqualValues(t, 5.0, decoded["average_response_time"])
	assert.Len(t, decoded["per_server"], 1)
}

func TestReport_SaveReport_BadPath(t *testing.T) {
	r := &Report{}
	err := r.SaveReport(filepath.Join(t.TempDir(), "missing", "report.json"))
	assert.Error(t, err)
}
