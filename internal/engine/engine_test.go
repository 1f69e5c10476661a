package engine

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"main/internal/feed"
	"main/internal/journal"
	"main/internal/ops"
	"main/internal/persist"
	"main/internal/schema"
	"main/internal/state"
	"main/internal/strategy"
)

func backtestConfig(t *testing.T) ops.FileConfig {
	t.Helper()
	return ops.FileConfig{
		Mode:        ops.ModeBacktest,
		InitialCash: 100_000,
		Registry: ops.RegistryConfig{
			Venues: []ops.VenueConfig{{Name: "SIM"}},
			Symbols: []ops.SymbolConfig{{
				Name:  "TEST-USD",
				Venue: "SIM",
				Scale: schema.ScaleSpec{PriceScale: 4, QuantityScale: 2, FeeScale: 4},
			}},
		},
		Feed: ops.FeedConfig{
			Kind: "synthetic",
			Synthetic: feed.SyntheticConfig{
				Seed:          42,
				Count:         600,
				Interval:      time.Minute,
				BasePrice:     100,
				VolatilityBps: 40,
			},
		},
		Strategy: ops.StrategyConfig{
			Kind: "sma",
			SMA: strategy.SMAConfig{
				StrategyID: 1,
				FastWindow: 5,
				SlowWindow: 20,
				OrderQty:   2,
			},
		},
	}
}

func resolve(t *testing.T, cfg ops.FileConfig) ops.Loaded {
	t.Helper()
	loaded, err := ops.Resolve(cfg)
	require.NoError(t, err)
	return loaded
}

func TestBacktestIsDeterministic(t *testing.T) {
	cfg := backtestConfig(t)

	first, err := New(resolve(t, cfg)).Run(context.Background())
	require.NoError(t, err)
	second, err := New(resolve(t, cfg)).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, first.FinalEquity, second.FinalEquity)
	require.Equal(t, first.Fills, second.Fills)
	require.Equal(t, first.EventsProcessed, second.EventsProcessed)
	require.Equal(t, first.RealizedPnL, second.RealizedPnL)
	require.Equal(t, first.MaxDrawdown, second.MaxDrawdown)

	require.Greater(t, first.Fills, uint64(0))
	require.Equal(t, float64(100_000), first.InitialCash)
	require.Greater(t, first.FinalEquity, 0.0)
}

func TestBacktestWritesJournalAndSnapshot(t *testing.T) {
	dir := t.TempDir()
	snapshotPath := filepath.Join(dir, "snapshot.json")
	cfg := backtestConfig(t)
	cfg.Journal = ops.JournalConfig{
		Enabled:      true,
		Dir:          filepath.Join(dir, "journal"),
		SnapshotPath: snapshotPath,
	}

	report, err := New(resolve(t, cfg)).Run(context.Background())
	require.NoError(t, err)
	require.Greater(t, report.Fills, uint64(0))

	pb, err := journal.NewPlayback(journal.PlaybackConfig{Dir: filepath.Join(dir, "journal")})
	require.NoError(t, err)
	require.NotEmpty(t, pb.Files())

	var fills uint64
	err = pb.Run(context.Background(), func(header schema.EventHeader, payload []byte) error {
		if header.Type == schema.EventFill {
			fills++
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, report.Fills, fills)

	snap, err := state.ReadSnapshot(snapshotPath)
	require.NoError(t, err)
	require.Greater(t, snap.LastSeq, uint64(0))
}

type memStore struct {
	mu     sync.Mutex
	bars   []persist.MarketBarRecord
	trades []persist.TradeRecord
	equity []persist.EquitySnapshotRecord
}

func (s *memStore) SaveBars(ctx context.Context, records []persist.MarketBarRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars = append(s.bars, records...)
	return nil
}

func (s *memStore) SaveTrades(ctx context.Context, records []persist.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, records...)
	return nil
}

func (s *memStore) SaveEquity(ctx context.Context, records []persist.EquitySnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.equity = append(s.equity, records...)
	return nil
}

func (s *memStore) Close() error { return nil }

func TestBacktestPersistsThroughStore(t *testing.T) {
	cfg := backtestConfig(t)
	cfg.Persist = ops.PersistConfig{
		Enabled: true,
		Writer:  persist.WriterConfig{BatchSize: 16, FlushInterval: 10 * time.Millisecond},
	}
	store := &memStore{}

	report, err := New(resolve(t, cfg)).WithStore(store).Run(context.Background())
	require.NoError(t, err)
	require.Greater(t, report.Fills, uint64(0))

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.trades, int(report.Fills))
	require.Len(t, store.equity, int(report.Fills))
	require.NotEmpty(t, store.bars)
	require.Equal(t, report.RunID, store.trades[0].RunID)
}

func TestBacktestRiskLimitsShapeOrders(t *testing.T) {
	cfg := backtestConfig(t)
	cfg.Risk.MaxPositionSize = 0.5
	cfg.Strategy.SMA.OrderQty = 2

	report, err := New(resolve(t, cfg)).Run(context.Background())
	require.NoError(t, err)
	// Every entry above the cap must come back resized, never full size.
	require.Greater(t, report.OrdersResized, uint64(0))
}

func TestLiveRunStopsGracefully(t *testing.T) {
	cfg := backtestConfig(t)
	cfg.Mode = ops.ModeLive
	cfg.Feed.Synthetic.Count = 50
	cfg.Feed.Synthetic.Ticks = true
	cfg.Bus.Watermark = time.Millisecond

	report, err := New(resolve(t, cfg)).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, float64(100_000), report.InitialCash)
	require.Greater(t, report.EventsProcessed, uint64(0))
}

func TestReportString(t *testing.T) {
	report := Report{
		RunID:       "run-1",
		InitialCash: 100_000,
		FinalEquity: 101_000,
		TotalReturn: 0.01,
		Fills:       3,
		StaleDrops:  2,
	}
	out := report.String()
	require.True(t, strings.Contains(out, "final equity:    101000.00"))
	require.True(t, strings.Contains(out, "fills:           3"))
	require.True(t, strings.Contains(out, "stale drops:     2"))
}
