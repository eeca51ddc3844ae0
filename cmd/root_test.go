package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyverde/app-sim/sim"
	"github.com/jeremyverde/app-sim/sim/trace"
)

// newTestRunCmd returns a run command with fresh flags; registering resets
// the package-level flag variables to their defaults.
func newTestRunCmd(t *testing.T) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "run"}
	registerRunFlags(c)
	return c
}

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestBuildConfig_NoFlags_MatchesDefaults(t *testing.T) {
	c := newTestRunCmd(t)

	cfg, err := buildConfig(c)
	require.NoError(t, err)
	assert.Equal(t, sim.DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestBuildConfig_FlagsApplied(t *testing.T) {
	c := newTestRunCmd(t)
	require.NoError(t, c.Flags().Set("rate", "4"))
	require.NoError(t, c.Flags().Set("servers", "5"))
	require.NoError(t, c.Flags().Set("policy", "least_connections"))
	require.NoError(t, c.Flags().Set("service-dist", "constant"))
	require.NoError(t, c.Flags().Set("service-mean", "0.25"))
	require.NoError(t, c.Flags().Set("arrival-process", "gamma"))
	require.NoError(t, c.Flags().Set("cv", "3"))
	require.NoError(t, c.Flags().Set("drain", "true"))
	require.NoError(t, c.Flags().Set("trace", "decisions"))

	cfg, err := buildConfig(c)
	require.NoError(t, err)
	assert.Equal(t, 4.0, cfg.Arrival.Rate)
	assert.Equal(t, 5, cfg.NumServers)
	assert.Equal(t, sim.PolicyLeastConnections, cfg.Policy)
	assert.Equal(t, sim.DistSpec{Type: "constant", Params: map[string]float64{"value": 0.25}}, cfg.ProcessingTime)
	assert.Equal(t, "gamma", cfg.Arrival.Process)
	require.NotNil(t, cfg.Arrival.CV)
	assert.Equal(t, 3.0, *cfg.Arrival.CV)
	assert.True(t, cfg.Drain)
	assert.Equal(t, trace.TraceLevelDecisions, cfg.Trace)
	require.NoError(t, cfg.Validate())
}

// TestBuildConfig_ExplicitFlagOverridesScenario verifies the override rule:
// GIVEN a scenario file with seed 7 and rate 2
// WHEN --seed 100 is set explicitly
// THEN the seed comes from the flag and the rate from the file.
func TestBuildConfig_ExplicitFlagOverridesScenario(t *testing.T) {
	c := newTestRunCmd(t)
	path := writeScenario(t, "seed: 7\narrival:\n  rate: 2\ncapacity: 3\n")
	require.NoError(t, c.Flags().Set("config", path))
	require.NoError(t, c.Flags().Set("seed", "100"))

	cfg, err := buildConfig(c)
	require.NoError(t, err)
	assert.Equal(t, int64(100), cfg.Seed)
	assert.Equal(t, 2.0, cfg.Arrival.Rate)
	assert.Equal(t, 3, cfg.Capacity)
	// flags left at their default do not clobber the file
	assert.Equal(t, "poisson", cfg.Arrival.Process)
	assert.Equal(t, 60.0, cfg.Duration)
}

func TestBuildConfig_ScenarioServiceTimeKeptUnlessFlagged(t *testing.T) {
	c := newTestRunCmd(t)
	path := writeScenario(t, "processing_time:\n  type: choice\n  values: [0.1, 1.0]\n")
	require.NoError(t, c.Flags().Set("config", path))

	cfg, err := buildConfig(c)
	require.NoError(t, err)
	assert.Equal(t, "choice", cfg.ProcessingTime.Type)

	require.NoError(t, c.Flags().Set("service-mean", "2"))
	cfg, err = buildConfig(c)
	require.NoError(t, err)
	assert.Equal(t, "exponential", cfg.ProcessingTime.Type)
	assert.Equal(t, 2.0, cfg.ProcessingTime.Params["mean"])
}

func TestBuildConfig_BadScenario(t *testing.T) {
	c := newTestRunCmd(t)
	require.NoError(t, c.Flags().Set("config", writeScenario(t, "polcy: random\n")))

	_, err := buildConfig(c)
	assert.Error(t, err)
}

func TestServiceDistSpec_AllValidateWithPositiveMean(t *testing.T) {
	for _, name := range []string{"constant", "exponential", "uniform", "gaussian"} {
		t.Run(name, func(t *testing.T) {
			spec, err := serviceDistSpec(name, 0.5)
			require.NoError(t, err)
			_, err = sim.NewProcessingTimeSampler(spec)
			assert.NoError(t, err)
		})
	}
}

func TestServiceDistSpec_Unknown(t *testing.T) {
	_, err := serviceDistSpec("pareto", 1)
	assert.True(t, errors.Is(err, sim.ErrInvalidConfiguration))
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["validate"])
	assert.True(t, names["compare"])
}

// TestSimulate_LogsStartOnceWithRunField verifies that a CLI run announces
// itself exactly once and that the simulator's lines carry the run id.
func TestSimulate_LogsStartOnceWithRunField(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)
	entry := logger.WithField("run", "test-run")

	cfg := sim.DefaultConfig()
	cfg.Duration = 5
	_, err := simulate(cfg, entry)
	require.NoError(t, err)

	starts := 0
	for _, e := range hook.AllEntries() {
		assert.Equal(t, "test-run", e.Data["run"], "entry %q", e.Message)
		if strings.HasPrefix(e.Message, "Starting simulation") {
			starts++
		}
	}
	assert.Equal(t, 1, starts)
}

func TestSimulate_InvalidConfig(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	cfg := sim.DefaultConfig()
	cfg.Capacity = 0
	_, err := simulate(cfg, logrus.NewEntry(logger))
	assert.True(t, errors.Is(err, sim.ErrInvalidConfiguration))
}
