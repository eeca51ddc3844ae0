package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalDecisions     int
	AdmittedCount      int
	DroppedCount       int
	NoServerCount      int // drops where the policy found no healthy server
	UniqueTargets      int
	TargetDistribution map[string]int // server ID → count of admitted requests
	HealthChanges      int
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		TargetDistribution: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalDecisions = len(st.Dispatches)
	for _, d := range st.Dispatches {
		if !d.Admitted {
			summary.DroppedCount++
			if d.ChosenServer == "" {
				summary.NoServerCount++
			}
			continue
		}
		summary.AdmittedCount++
		summary.TargetDistribution[d.ChosenServer]++
	}
	for _, h := range st.Health {
		if h.Changed {
			summary.HealthChanges++
		}
	}

	summary.UniqueTargets = len(summary.TargetDistribution)
	return summary
}
