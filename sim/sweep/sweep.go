// Package sweep runs one scenario under several selection policies and seeds
// and compares the outcomes.
package sweep

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeremyverde/app-sim/sim"
	"github.com/jeremyverde/app-sim/sim/trace"
)

// Result bundles the outputs of one (policy, seed) run.
type Result struct {
	Policy   string
	Seed     int64
	Report   *sim.Report         // nil when Err is set
	Summary  *trace.TraceSummary // nil unless the base config enables tracing
	WallTime time.Duration       // wall-clock duration of Run()
	Err      error
}

// Options selects the runs of a sweep.
type Options struct {
	Policies    []string // empty means every valid policy
	Seeds       []int64  // empty means the base config's seed
	Parallelism int      // concurrent simulators; <= 0 means one per run
}

// Run executes base once per (policy, seed) pair. Every run owns its own
// Simulator, so runs proceed in parallel. Results come back in policy-major
// order regardless of completion order.
func Run(base sim.Config, opts Options) []Result {
	policies := opts.Policies
	if len(policies) == 0 {
		policies = AllPolicies()
	}
	seeds := opts.Seeds
	if len(seeds) == 0 {
		seeds = []int64{base.Seed}
	}

	results := make([]Result, 0, len(policies)*len(seeds))
	for _, p := range policies {
		for _, s := range seeds {
			results = append(results, Result{Policy: p, Seed: s})
		}
	}

	limit := opts.Parallelism
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		sem <- struct{}{}
		go func(r *Result) {
			defer wg.Done()
			defer func() { <-sem }()
			runOne(base, r)
		}(&results[i])
	}
	wg.Wait()
	return results
}

func runOne(base sim.Config, r *Result) {
	cfg := base
	cfg.Policy = r.Policy
	cfg.Seed = r.Seed
	s, err := sim.NewSimulator(cfg)
	if err != nil {
		r.Err = err
		return
	}
	start := time.Now()
	if err := s.Run(); err != nil {
		r.Err = fmt.Errorf("policy %s seed %d: %w", r.Policy, r.Seed, err)
		logrus.Errorf("%v", r.Err)
		return
	}
	r.WallTime = time.Since(start)
	r.Report = s.Report()
	if s.Trace != nil {
		r.Summary = trace.Summarize(s.Trace)
	}
}

// AllPolicies returns every valid selection policy name, sorted.
func AllPolicies() []string {
	names := make([]string, 0, len(sim.ValidSelectionPolicies))
	for name := range sim.ValidSelectionPolicies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PolicySummary averages the successful runs of one policy across seeds.
type PolicySummary struct {
	Policy              string
	Runs                int
	Failed              int
	MeanDropRate        float64
	MeanAvgResponseTime float64
	MeanLatencyP99      float64
	MeanCompleted       float64
}

// Summarize groups results by policy, preserving first-seen policy order.
func Summarize(results []Result) []PolicySummary {
	index := make(map[string]int)
	var out []PolicySummary
	for _, r := range results {
		i, ok := index[r.Policy]
		if !ok {
			i = len(out)
			index[r.Policy] = i
			out = append(out, PolicySummary{Policy: r.Policy})
		}
		ps := &out[i]
		if r.Err != nil || r.Report == nil {
			ps.Failed++
			continue
		}
		ps.Runs++
		ps.MeanDropRate += r.Report.DropRate()
		ps.MeanAvgResponseTime += r.Report.AverageResponseTime
		ps.MeanLatencyP99 += r.Report.Latency.P99
		ps.MeanCompleted += float64(r.Report.CompletedRequests)
	}
	for i := range out {
		if n := float64(out[i].Runs); n > 0 {
			out[i].MeanDropRate /= n
			out[i].MeanAvgResponseTime /= n
			out[i].MeanLatencyP99 /= n
			out[i].MeanCompleted /= n
		}
	}
	return out
}

// Print writes the comparison table.
func Print(w io.Writer, summaries []PolicySummary) {
	fmt.Fprintln(w, "=== Policy Comparison ===")
	fmt.Fprintf(w, "%-22s %5s %10s %12s %12s %12s\n", "policy", "runs", "drop_rate", "avg_resp_s", "p99_lat_s", "completed")
	for _, s := range summaries {
		fmt.Fprintf(w, "%-22s %5d %9.2f%% %12.4f %12.4f %12.1f", s.Policy, s.Runs,
			100*s.MeanDropRate, s.MeanAvgResponseTime, s.MeanLatencyP99, s.MeanCompleted)
		if s.Failed > 0 {
			fmt.Fprintf(w, "  (%d failed)", s.Failed)
		}
		fmt.Fprintln(w)
	}
}
