package main

import (
	"fmt"
	"os"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	profileAddr  string
	profileName  string
	metricsAddr  string
	initialCash  float64
	feedKind     string
	syntheticRun bool
	dataPath     string
	fromStr      string
	toStr        string
)

var rootCmd = &cobra.Command{
	Use:           "engine",
	Short:         "Event-driven trading engine",
	Long:          "Runs trading strategies against historical or live market data through one shared event pipeline.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to JSON or YAML config")
	rootCmd.PersistentFlags().StringVar(&profileAddr, "profile-addr", "", "Pyroscope server address (empty=disabled)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile-name", "trading-engine", "Pyroscope application name")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (overrides config)")
	rootCmd.PersistentFlags().Float64Var(&initialCash, "initial-cash", 0, "Starting cash (overrides config)")
	rootCmd.PersistentFlags().StringVar(&feedKind, "feed", "", "Feed kind: csv, synthetic or journal (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&syntheticRun, "synthetic", false, "Shortcut for --feed synthetic")

	backtestCmd.Flags().StringVar(&dataPath, "data", "", "CSV data file (shortcut for --feed csv)")
	backtestCmd.Flags().StringVar(&fromStr, "from", "", "Replay window start (RFC3339 or unix seconds)")
	backtestCmd.Flags().StringVar(&toStr, "to", "", "Replay window end (RFC3339 or unix seconds)")

	rootCmd.AddCommand(backtestCmd)
	rootCmd.AddCommand(liveCmd)
	rootCmd.AddCommand(replayCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// startProfiler starts continuous profiling when a server address is set.
// The returned stop func is a no-op otherwise.
func startProfiler() (stop func(), err error) {
	if profileAddr == "" {
		return func() {}, nil
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: profileName,
		ServerAddress:   profileAddr,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pyroscope start failed: %w", err)
	}
	return func() { _ = profiler.Stop() }, nil
}
