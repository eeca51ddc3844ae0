package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jeremyverde/app-sim/sim"
	"github.com/jeremyverde/app-sim/sim/trace"
)

var (
	// Run configuration
	seed       int64   // Seed for arrivals, service times and randomized policies
	duration   float64 // Simulated seconds to run
	configPath string  // Optional YAML scenario; explicit flags override it
	logLevel   string  // Log verbosity level
	drain      bool    // Complete in-flight requests after the duration
	maxEvents  int64   // Stop after this many events (0 = unlimited)

	// Arrival process
	rate           float64 // Requests arrival per second
	arrivalProcess string  // poisson, gamma or weibull
	arrivalCV      float64 // Coefficient of variation for gamma/weibull arrivals

	// Server pool
	numServers  int     // Number of identical servers
	capacity    int     // Max in-flight requests per server
	policy      string  // Server selection policy
	serviceDist string  // Processing-time distribution
	serviceMean float64 // Mean processing time in seconds

	// Outputs
	traceLevel  string // Dispatch decision tracing: none, decisions
	summarize   bool   // Print a trace summary after the run
	resultsPath string // JSON report destination
	metricsPath string // Prometheus textfile destination
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "app-sim",
	Short: "Discrete-event simulator for load-balanced server pools",
}

// runCmd executes the simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the load-balancer simulation",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
		log := logrus.WithField("run", xid.New().String())

		cfg, err := buildConfig(cmd)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if summarize && cfg.Trace != trace.TraceLevelDecisions {
			log.Warnf("--summarize-trace needs --trace decisions; enabling it")
			cfg.Trace = trace.TraceLevelDecisions
		}

		s, err := simulate(cfg, log)
		if err != nil {
			log.Fatalf("%v", err)
		}

		report := s.Report()
		report.Print(os.Stdout)

		if summarize {
			printTraceSummary(trace.Summarize(s.Trace))
		}
		if resultsPath != "" {
			if err := report.SaveReport(resultsPath); err != nil {
				log.Fatalf("%v", err)
			}
			log.Infof("Report written to %s", resultsPath)
		}
		if metricsPath != "" {
			if err := writeMetricsTextfile(metricsPath, report); err != nil {
				log.Fatalf("%v", err)
			}
			log.Infof("Metrics written to %s", metricsPath)
		}

		log.Info("Simulation complete.")
	},
}

// simulate builds and runs one simulator whose logs carry log's fields.
func simulate(cfg sim.Config, log *logrus.Entry) (*sim.Simulator, error) {
	s, err := sim.NewSimulator(cfg)
	if err != nil {
		return nil, err
	}
	s.SetLogger(log)

	startTime := time.Now()
	if err := s.Run(); err != nil {
		return nil, fmt.Errorf("simulation failed: %w", err)
	}
	log.Infof("Simulation finished in %s", time.Since(startTime))
	return s, nil
}

// validateCmd checks a scenario file without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a YAML scenario file",
	Run: func(cmd *cobra.Command, args []string) {
		if configPath == "" {
			logrus.Fatalf("--config is required")
		}
		cfg, err := sim.LoadConfig(configPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("%s: %v", configPath, err)
		}
		fmt.Printf("%s: ok (%d servers, policy %s)\n", configPath, len(cfg.ServerSpecs()), cfg.Policy)
	},
}

// buildConfig starts from the scenario file (or the defaults) and applies
// every flag the user set explicitly.
func buildConfig(cmd *cobra.Command) (sim.Config, error) {
	cfg := sim.DefaultConfig()
	if configPath != "" {
		loaded, err := sim.LoadConfig(configPath)
		if err != nil {
			return sim.Config{}, err
		}
		cfg = *loaded
	}

	flags := cmd.Flags()
	// Without a scenario file every flag applies, defaults included.
	set := func(name string) bool { return configPath == "" || flags.Changed(name) }

	if set("seed") {
		cfg.Seed = seed
	}
	if set("duration") {
		cfg.Duration = duration
	}
	if set("rate") {
		cfg.Arrival.Rate = rate
	}
	if set("arrival-process") {
		cfg.Arrival.Process = arrivalProcess
	}
	if flags.Changed("cv") {
		cv := arrivalCV
		cfg.Arrival.CV = &cv
	}
	if set("servers") {
		cfg.NumServers = numServers
	}
	if set("capacity") {
		cfg.Capacity = capacity
	}
	if set("policy") {
		cfg.Policy = policy
	}
	if set("service-dist") || flags.Changed("service-mean") {
		dist, err := serviceDistSpec(serviceDist, serviceMean)
		if err != nil {
			return sim.Config{}, err
		}
		cfg.ProcessingTime = dist
	}
	if flags.Changed("drain") {
		cfg.Drain = drain
	}
	if flags.Changed("max-events") {
		cfg.MaxEvents = maxEvents
	}
	if flags.Changed("trace") {
		cfg.Trace = trace.TraceLevel(traceLevel)
	}
	return cfg, nil
}

// serviceDistSpec maps the --service-dist/--service-mean pair onto a DistSpec.
func serviceDistSpec(name string, mean float64) (sim.DistSpec, error) {
	switch name {
	case "constant":
		return sim.DistSpec{Type: "constant", Params: map[string]float64{"value": mean}}, nil
	case "exponential":
		return sim.DistSpec{Type: "exponential", Params: map[string]float64{"mean": mean}}, nil
	case "uniform":
		return sim.DistSpec{Type: "uniform", Params: map[string]float64{"min": 0, "max": 2 * mean}}, nil
	case "gaussian":
		return sim.DistSpec{Type: "gaussian", Params: map[string]float64{
			"mean": mean, "std_dev": mean / 4, "min": 0, "max": 3 * mean,
		}}, nil
	default:
		return sim.DistSpec{}, fmt.Errorf("%w: unknown --service-dist %q; valid: constant, exponential, uniform, gaussian",
			sim.ErrInvalidConfiguration, name)
	}
}

func printTraceSummary(ts *trace.TraceSummary) {
	fmt.Println("=== Trace Summary ===")
	fmt.Printf("Decisions        : %d (%d admitted, %d dropped, %d with no healthy server)\n",
		ts.TotalDecisions, ts.AdmittedCount, ts.DroppedCount, ts.NoServerCount)
	fmt.Printf("Unique Targets   : %d\n", ts.UniqueTargets)
	fmt.Printf("Health Changes   : %d\n", ts.HealthChanges)
	for _, id := range sortedKeys(ts.TargetDistribution) {
		fmt.Printf("  %-12s %d\n", id, ts.TargetDistribution[id])
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// registerRunFlags binds the run flags to c. Registering resets every flag
// variable to its default.
func registerRunFlags(c *cobra.Command) {
	def := sim.DefaultConfig()

	c.Flags().Int64Var(&seed, "seed", def.Seed, "Seed for random arrival, service time and policy streams")
	c.Flags().Float64Var(&duration, "duration", def.Duration, "Simulated run length in seconds")
	c.Flags().StringVar(&configPath, "config", "", "YAML scenario file; explicitly set flags override its values")
	c.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	c.Flags().BoolVar(&drain, "drain", false, "Complete in-flight requests after the duration")
	c.Flags().Int64Var(&maxEvents, "max-events", 0, "Stop after this many events (0 = unlimited)")

	// Arrival process
	c.Flags().Float64Var(&rate, "rate", def.Arrival.Rate, "Requests arrival per second")
	c.Flags().StringVar(&arrivalProcess, "arrival-process", def.Arrival.Process, "Arrival process (poisson, gamma, weibull)")
	c.Flags().Float64Var(&arrivalCV, "cv", 1.0, "Coefficient of variation of inter-arrival gaps (gamma, weibull)")

	// Server pool
	c.Flags().IntVar(&numServers, "servers", def.NumServers, "Number of servers")
	c.Flags().IntVar(&capacity, "capacity", def.Capacity, "Max in-flight requests per server")
	c.Flags().StringVar(&policy, "policy", def.Policy, "Selection policy (round_robin, least_connections, random, weighted_round_robin, consistent_hash)")
	c.Flags().StringVar(&serviceDist, "service-dist", def.ProcessingTime.Type, "Processing time distribution (constant, exponential, uniform, gaussian)")
	c.Flags().Float64Var(&serviceMean, "service-mean", def.ProcessingTime.Params["mean"], "Mean processing time in seconds")

	// Outputs
	c.Flags().StringVar(&traceLevel, "trace", string(trace.TraceLevelNone), "Trace level (none, decisions)")
	c.Flags().BoolVar(&summarize, "summarize-trace", false, "Print a dispatch trace summary after the run")
	c.Flags().StringVar(&resultsPath, "results-path", "", "File to save the JSON report to")
	c.Flags().StringVar(&metricsPath, "metrics-path", "", "File to save the report in Prometheus text format to")
}

// init sets up CLI flags and subcommands
func init() {
	registerRunFlags(runCmd)
	validateCmd.Flags().StringVar(&configPath, "config", "", "YAML scenario file to validate")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
