package feed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"main/internal/schema"
)

// ScrambleConfig controls fault injection on a market data stream.
type ScrambleConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	Seed          int64         `json:"seed" yaml:"seed"`
	DropRate      float64       `json:"dropRate" yaml:"dropRate"`
	DuplicateRate float64       `json:"duplicateRate" yaml:"duplicateRate"`
	ReorderWindow int           `json:"reorderWindow" yaml:"reorderWindow"`
	MaxDelay      time.Duration `json:"maxDelay" yaml:"maxDelay"`
}

// Validate ensures the config is within supported ranges.
func (c ScrambleConfig) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("dropRate must be between 0 and 1")
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return fmt.Errorf("duplicateRate must be between 0 and 1")
	}
	if c.ReorderWindow < 0 {
		return fmt.Errorf("reorderWindow must be >= 0")
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("maxDelay must be >= 0")
	}
	return nil
}

type scrambleEvent struct {
	ts      int64
	payload schema.Payload
}

// Scrambler wraps a source and drops, duplicates, delays and reorders its
// events. It exists to exercise the stale-drop and reorder paths the way a
// flaky venue connection would; backtests should never enable it.
type Scrambler struct {
	inner   Source
	cfg     ScrambleConfig
	rng     *rand.Rand
	pending []scrambleEvent
}

// NewScrambler wraps a source with fault injection.
func NewScrambler(inner Source, cfg ScrambleConfig) (*Scrambler, error) {
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Scrambler{
		inner: inner,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Run streams the inner source through the fault rules, then flushes any
// events still buffered in the reorder window.
func (s *Scrambler) Run(ctx context.Context, emit EmitFunc) error {
	err := s.inner.Run(ctx, func(tsEvent int64, payload schema.Payload) error {
		for _, out := range s.process(scrambleEvent{ts: tsEvent, payload: payload}) {
			if err := emit(out.ts, out.payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, out := range s.flush() {
		if err := emit(out.ts, out.payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scrambler) process(ev scrambleEvent) []scrambleEvent {
	if s.shouldDrop() {
		return nil
	}
	ev = s.applyDelay(ev)
	if s.cfg.ReorderWindow <= 1 {
		return s.applyDuplicate(ev)
	}
	s.pending = append(s.pending, ev)
	if len(s.pending) < s.cfg.ReorderWindow {
		return nil
	}
	idx := s.rng.Intn(len(s.pending))
	out := s.pending[idx]
	s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
	return s.applyDuplicate(out)
}

func (s *Scrambler) flush() []scrambleEvent {
	out := make([]scrambleEvent, 0, len(s.pending))
	for len(s.pending) > 0 {
		idx := s.rng.Intn(len(s.pending))
		ev := s.pending[idx]
		s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
		out = append(out, s.applyDuplicate(ev)...)
	}
	return out
}

func (s *Scrambler) shouldDrop() bool {
	return s.cfg.DropRate > 0 && s.rng.Float64() < s.cfg.DropRate
}

func (s *Scrambler) applyDuplicate(ev scrambleEvent) []scrambleEvent {
	out := []scrambleEvent{ev}
	if s.cfg.DuplicateRate > 0 && s.rng.Float64() < s.cfg.DuplicateRate {
		out = append(out, ev)
	}
	return out
}

func (s *Scrambler) applyDelay(ev scrambleEvent) scrambleEvent {
	if s.cfg.MaxDelay <= 0 {
		return ev
	}
	maxDelay := s.cfg.MaxDelay.Nanoseconds()
	if maxDelay <= 0 {
		return ev
	}
	ev.ts += s.rng.Int63n(maxDelay + 1)
	return ev
}
