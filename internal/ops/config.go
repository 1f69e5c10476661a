package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"main/internal/exec"
	"main/internal/feed"
	"main/internal/journal"
	"main/internal/persist"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/strategy"
)

// Mode selects how the engine runs.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModeLive     Mode = "live"
)

// FileConfig mirrors the config file layout. JSON and YAML are both
// accepted, chosen by file extension.
type FileConfig struct {
	Mode        Mode    `json:"mode" yaml:"mode"`
	InitialCash float64 `json:"initialCash" yaml:"initialCash"`

	Registry RegistryConfig `json:"registry" yaml:"registry"`
	Risk     risk.Limits    `json:"risk" yaml:"risk"`
	Bus      BusConfig      `json:"bus" yaml:"bus"`
	Feed     FeedConfig     `json:"feed" yaml:"feed"`
	Exec     ExecConfig     `json:"exec" yaml:"exec"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Persist  PersistConfig  `json:"persist" yaml:"persist"`
	Obs      ObsConfig      `json:"obs" yaml:"obs"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`

	// ReturnWindow is the rolling return-history length used for VaR and
	// correlation estimates.
	ReturnWindow int `json:"returnWindow" yaml:"returnWindow"`
}

// RegistryConfig defines venue and symbol mappings.
type RegistryConfig struct {
	Venues  []VenueConfig  `json:"venues" yaml:"venues"`
	Symbols []SymbolConfig `json:"symbols" yaml:"symbols"`
}

// VenueConfig describes a venue entry.
type VenueConfig struct {
	Name string `json:"name" yaml:"name"`
}

// SymbolConfig describes a symbol entry.
type SymbolConfig struct {
	Name  string           `json:"name" yaml:"name"`
	Venue string           `json:"venue" yaml:"venue"`
	Scale schema.ScaleSpec `json:"scale" yaml:"scale"`
}

// BusConfig tunes event delivery.
type BusConfig struct {
	QueueCapacity int `json:"queueCapacity" yaml:"queueCapacity"`

	// Watermark bounds how late an out-of-order tick may arrive and still
	// be reordered. Older ticks are dropped and counted.
	Watermark time.Duration `json:"watermark" yaml:"watermark"`
}

// FeedConfig selects the market data source.
type FeedConfig struct {
	// Kind is "csv", "synthetic" or "journal".
	Kind      string               `json:"kind" yaml:"kind"`
	CSV       feed.CSVConfig       `json:"csv" yaml:"csv"`
	Synthetic feed.SyntheticConfig `json:"synthetic" yaml:"synthetic"`
	Journal   feed.JournalConfig   `json:"journal" yaml:"journal"`

	// Scramble injects drops, duplicates and reordering into the stream.
	// Live mode only; backtests must stay deterministic.
	Scramble feed.ScrambleConfig `json:"scramble" yaml:"scramble"`
}

// ExecConfig selects and tunes execution.
type ExecConfig struct {
	// SlippageMode is "none", "fixed_bps" or "volume_proportional".
	SlippageMode string           `json:"slippageMode" yaml:"slippageMode"`
	Sim          exec.SimConfig   `json:"sim" yaml:"sim"`
	Live         exec.LiveConfig  `json:"live" yaml:"live"`
	Paper        exec.PaperConfig `json:"paper" yaml:"paper"`
}

// JournalConfig tunes event journaling.
type JournalConfig struct {
	Enabled      bool           `json:"enabled" yaml:"enabled"`
	Dir          string         `json:"dir" yaml:"dir"`
	SnapshotPath string         `json:"snapshotPath" yaml:"snapshotPath"`
	Writer       journal.Config `json:"writer" yaml:"writer"`
}

// PersistConfig tunes the persistence collaborator.
type PersistConfig struct {
	Enabled  bool                 `json:"enabled" yaml:"enabled"`
	Postgres persist.PGConfig     `json:"postgres" yaml:"postgres"`
	Writer   persist.WriterConfig `json:"writer" yaml:"writer"`
}

// ObsConfig tunes observability endpoints.
type ObsConfig struct {
	MetricsAddr string `json:"metricsAddr" yaml:"metricsAddr"`
}

// StrategyConfig selects the built-in strategy.
type StrategyConfig struct {
	// Kind is "sma" or "none" (external driver).
	Kind string             `json:"kind" yaml:"kind"`
	SMA  strategy.SMAConfig `json:"sma" yaml:"sma"`
}

// Loaded is the resolved configuration ready for engine construction.
type Loaded struct {
	File     FileConfig
	Registry *schema.Registry
	Slippage exec.SlippageMode
}

// Load reads a JSON or YAML config file, validates it and builds the
// symbol registry.
func Load(path string) (Loaded, error) {
	cfg, err := Parse(path)
	if err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Parse reads and decodes a config file without resolving it, so callers
// can apply overrides before Resolve.
func Parse(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, err
	}

	var cfg FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return FileConfig{}, fmt.Errorf("parse config failed, path: %s, err: %w", path, err)
	}
	return cfg, nil
}

// Resolve validates a parsed config and builds the registry.
func Resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeBacktest
	}
	if cfg.Mode != ModeBacktest && cfg.Mode != ModeLive {
		return Loaded{}, fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
	if cfg.InitialCash <= 0 {
		cfg.InitialCash = 100_000
	}
	if cfg.ReturnWindow <= 0 {
		cfg.ReturnWindow = 250
	}
	if cfg.Bus.Watermark <= 0 {
		cfg.Bus.Watermark = 50 * time.Millisecond
	}

	registry, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}
	if err := cfg.Risk.Validate(); err != nil {
		return Loaded{}, err
	}

	slippage, err := exec.ParseSlippageMode(cfg.Exec.SlippageMode)
	if err != nil {
		return Loaded{}, err
	}

	switch cfg.Feed.Kind {
	case "", "synthetic":
		cfg.Feed.Kind = "synthetic"
	case "csv":
		if cfg.Feed.CSV.Path == "" {
			return Loaded{}, fmt.Errorf("csv feed requires a path")
		}
	case "journal":
		if cfg.Feed.Journal.Dir == "" {
			return Loaded{}, fmt.Errorf("journal feed requires a dir")
		}
	default:
		return Loaded{}, fmt.Errorf("unknown feed kind: %s", cfg.Feed.Kind)
	}
	if cfg.Feed.Scramble.Enabled {
		if cfg.Mode != ModeLive {
			return Loaded{}, fmt.Errorf("feed scramble requires live mode")
		}
		if err := cfg.Feed.Scramble.Validate(); err != nil {
			return Loaded{}, err
		}
	}

	switch cfg.Strategy.Kind {
	case "", "sma":
		cfg.Strategy.Kind = "sma"
		if cfg.Strategy.SMA.StrategyID == 0 {
			cfg.Strategy.SMA.StrategyID = 1
		}
	case "none":
	default:
		return Loaded{}, fmt.Errorf("unknown strategy kind: %s", cfg.Strategy.Kind)
	}

	if cfg.Journal.Enabled {
		if cfg.Journal.Dir == "" {
			return Loaded{}, fmt.Errorf("journal requires a dir")
		}
		cfg.Journal.Writer.Dir = cfg.Journal.Dir
	}

	return Loaded{File: cfg, Registry: registry, Slippage: slippage}, nil
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("registry has no symbols")
	}
	reg := schema.NewRegistry()
	for _, venue := range cfg.Venues {
		if _, err := reg.AddVenue(venue.Name); err != nil {
			return nil, err
		}
	}
	for _, sym := range cfg.Symbols {
		venueID, ok := reg.VenueIDByName(sym.Venue)
		if !ok {
			return nil, fmt.Errorf("venue not found: %s", sym.Venue)
		}
		if err := validateScale(sym.Scale); err != nil {
			return nil, fmt.Errorf("invalid scale for %s: %w", sym.Name, err)
		}
		if _, err := reg.AddSymbol(sym.Name, venueID, sym.Scale); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func validateScale(scale schema.ScaleSpec) error {
	if scale.PriceScale < 0 || scale.QuantityScale < 0 || scale.FeeScale < 0 {
		return fmt.Errorf("scale must be >= 0")
	}
	return nil
}
