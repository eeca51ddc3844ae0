package cmd

import (
	"os"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jeremyverde/app-sim/sim/sweep"
)

var (
	comparePolicies []string // Policies to compare (empty = all)
	compareSeeds    []int64  // Seeds to average over (empty = --seed)
	parallelism     int      // Concurrent simulators
)

// compareCmd runs one scenario under several policies and seeds
var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare selection policies on the same scenario",
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

		startTime := time.Now()
		results := sweep.Run(cfg, sweep.Options{
			Policies:    comparePolicies,
			Seeds:       compareSeeds,
			Parallelism: parallelism,
		})
		log.Infof("Compared %d runs in %s", len(results), time.Since(startTime))

		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
				log.Errorf("policy=%s seed=%d: %v", r.Policy, r.Seed, r.Err)
			}
		}
		sweep.Print(os.Stdout, sweep.Summarize(results))
		if failed == len(results) {
			log.Fatalf("all %d runs failed", failed)
		}
	},
}

func init() {
	registerRunFlags(compareCmd)
	compareCmd.Flags().StringSliceVar(&comparePolicies, "policies", nil, "Comma-separated policies to compare (default: all)")
	compareCmd.Flags().Int64SliceVar(&compareSeeds, "seeds", nil, "Comma-separated seeds to average over (default: --seed)")
	compareCmd.Flags().IntVar(&parallelism, "parallel", 0, "Concurrent simulators (0 = one per run)")

	rootCmd.AddCommand(compareCmd)
}
