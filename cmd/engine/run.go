package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/yanun0323/logs"

	"main/internal/engine"
	"main/internal/ops"
	"main/internal/schema"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical data through the engine",
	Long: `Runs the configured strategy against a CSV or synthetic feed with a
simulated clock and deterministic execution. Two runs over the same input
produce identical fills.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine(ops.ModeBacktest)
	},
}

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Trade against a live or paper broker",
	Long: `Runs the engine on the wall clock with asynchronous event delivery,
retrying broker submissions and exposing Prometheus metrics. Without a real
broker adapter orders fill against the built-in paper broker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine(ops.ModeLive)
	},
}

func runEngine(mode ops.Mode) error {
	stopProfiler, err := startProfiler()
	if err != nil {
		return err
	}
	defer stopProfiler()

	loaded, err := loadConfig(mode)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := engine.New(loaded).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Print(report.String())
	return nil
}

// loadConfig reads the config file, or falls back to a synthetic single
// symbol setup when no path is given, then applies flag overrides.
func loadConfig(mode ops.Mode) (ops.Loaded, error) {
	var cfg ops.FileConfig
	if configPath != "" {
		parsed, err := ops.Parse(configPath)
		if err != nil {
			return ops.Loaded{}, err
		}
		cfg = parsed
	} else {
		cfg = defaultFileConfig()
		logs.Infof("no config given, using built-in synthetic setup")
	}

	cfg.Mode = mode
	if metricsAddr != "" {
		cfg.Obs.MetricsAddr = metricsAddr
	}
	if initialCash > 0 {
		cfg.InitialCash = initialCash
	}
	if syntheticRun {
		cfg.Feed.Kind = "synthetic"
	}
	if feedKind != "" {
		cfg.Feed.Kind = feedKind
	}
	if dataPath != "" {
		cfg.Feed.Kind = "csv"
		cfg.Feed.CSV.Path = dataPath
	}
	if fromStr != "" {
		ts, err := parseWindowTime(fromStr)
		if err != nil {
			return ops.Loaded{}, fmt.Errorf("parse --from failed: %w", err)
		}
		cfg.Feed.CSV.From = ts
		cfg.Feed.Journal.From = ts
	}
	if toStr != "" {
		ts, err := parseWindowTime(toStr)
		if err != nil {
			return ops.Loaded{}, fmt.Errorf("parse --to failed: %w", err)
		}
		cfg.Feed.CSV.To = ts
		cfg.Feed.Journal.To = ts
	}
	return ops.Resolve(cfg)
}

// parseWindowTime accepts RFC3339 or unix seconds and returns nanoseconds.
func parseWindowTime(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v * int64(time.Second), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, err
	}
	return t.UnixNano(), nil
}

func defaultFileConfig() ops.FileConfig {
	return ops.FileConfig{
		Registry: ops.RegistryConfig{
			Venues: []ops.VenueConfig{{Name: "SIM"}},
			Symbols: []ops.SymbolConfig{{
				Name:  "TEST-USD",
				Venue: "SIM",
				Scale: schema.ScaleSpec{
					PriceScale:    8,
					QuantityScale: 8,
					FeeScale:      8,
				},
			}},
		},
		Feed: ops.FeedConfig{Kind: "synthetic"},
	}
}
