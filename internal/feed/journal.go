package feed

import (
	"context"
	"fmt"

	"main/internal/codec"
	"main/internal/journal"
	"main/internal/schema"
)

// JournalConfig controls market data replay from a recorded journal.
type JournalConfig struct {
	Dir        string `json:"dir" yaml:"dir"`
	FilePrefix string `json:"filePrefix" yaml:"filePrefix"`

	// Speed is a replay rate multiplier. 0 replays as fast as possible,
	// 1 replays at recorded pace.
	Speed float64 `json:"speed" yaml:"speed"`

	// From and To bound the replay window in unix nanoseconds. Zero means
	// unbounded.
	From int64 `json:"from" yaml:"from"`
	To   int64 `json:"to" yaml:"to"`
}

// JournalSource replays ticks and bars recorded in an event journal.
// Order flow records are skipped; replayed market data runs through the
// full pipeline and produces fresh orders.
type JournalSource struct {
	cfg JournalConfig
}

// NewJournalSource creates a journal-backed market data source.
func NewJournalSource(cfg JournalConfig) (*JournalSource, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("invalid journal source config: Dir is empty")
	}
	if cfg.Speed < 0 {
		return nil, fmt.Errorf("invalid journal source config: Speed must be >= 0")
	}
	if cfg.From != 0 && cfg.To != 0 && cfg.To < cfg.From {
		return nil, fmt.Errorf("invalid journal source config: To before From")
	}
	return &JournalSource{cfg: cfg}, nil
}

// Run streams recorded market data within the configured time range.
func (s *JournalSource) Run(ctx context.Context, emit EmitFunc) error {
	pb, err := journal.NewPlayback(journal.PlaybackConfig{
		Dir:        s.cfg.Dir,
		FilePrefix: s.cfg.FilePrefix,
		Speed:      s.cfg.Speed,
	})
	if err != nil {
		return err
	}
	return pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		if s.cfg.From != 0 && header.TsEvent < s.cfg.From {
			return nil
		}
		if s.cfg.To != 0 && header.TsEvent > s.cfg.To {
			return nil
		}
		switch header.Type {
		case schema.EventMarketTick:
			tick, ok := codec.DecodeMarketTick(payload)
			if !ok {
				return fmt.Errorf("decode recorded tick failed, seq: %d", header.Seq)
			}
			return emit(header.TsEvent, tick)
		case schema.EventBar:
			bar, ok := codec.DecodeBar(payload)
			if !ok {
				return fmt.Errorf("decode recorded bar failed, seq: %d", header.Seq)
			}
			return emit(header.TsEvent, bar)
		default:
			return nil
		}
	})
}
