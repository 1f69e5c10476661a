package journal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"main/internal/schema"
)

// PlaybackHandler receives each recorded event in journal order.
type PlaybackHandler func(header schema.EventHeader, payload []byte) error

// PlaybackClock paces replay when Speed > 0.
type PlaybackClock interface {
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// PlaybackConfig controls journal replay.
type PlaybackConfig struct {
	Dir        string
	FilePrefix string

	// Speed is a replay rate multiplier. 0 replays as fast as possible,
	// 1 replays at recorded pace.
	Speed float64

	// UseRecvTime paces by TsRecv instead of TsEvent.
	UseRecvTime bool

	DisableChecksum bool
	MaxPayloadSize  int
}

// Playback replays journal segments in file order.
type Playback struct {
	cfg   PlaybackConfig
	clock PlaybackClock
	files []string
}

// NewPlayback collects matching segment files under cfg.Dir.
func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("invalid playback config: Dir is empty")
	}
	if cfg.Speed < 0 {
		return nil, fmt.Errorf("invalid playback config: Speed must be >= 0")
	}
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = defaultFilePrefix
	}
	files, err := collectFiles(cfg.Dir, cfg.FilePrefix)
	if err != nil {
		return nil, err
	}
	return &Playback{cfg: cfg, clock: realClock{}, files: files}, nil
}

// WithClock overrides the pacing clock. Useful in tests.
func (p *Playback) WithClock(clock PlaybackClock) *Playback {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// Files returns the segment files that will be replayed.
func (p *Playback) Files() []string {
	out := make([]string, len(p.files))
	copy(out, p.files)
	return out
}

// Run replays every record through handler, pacing by event timestamps
// when Speed > 0. A handler error stops the replay.
func (p *Playback) Run(ctx context.Context, handler PlaybackHandler) error {
	var lastTs int64
	for _, path := range p.files {
		if err := p.runFile(ctx, path, handler, &lastTs); err != nil {
			return err
		}
	}
	return nil
}

func (p *Playback) runFile(ctx context.Context, path string, handler PlaybackHandler, lastTs *int64) error {
	reader, file, err := OpenSegment(path, ReaderConfig{
		DisableChecksum: p.cfg.DisableChecksum,
		MaxPayloadSize:  p.cfg.MaxPayloadSize,
	})
	if err != nil {
		return err
	}
	defer file.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, payload, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read journal segment failed, file: %s, err: %w", filepath.Base(path), err)
		}

		ts := header.TsEvent
		if p.cfg.UseRecvTime {
			ts = header.TsRecv
		}
		if p.cfg.Speed > 0 && *lastTs > 0 && ts > *lastTs {
			delay := time.Duration(float64(ts-*lastTs) / p.cfg.Speed)
			p.clock.Sleep(delay)
		}
		if ts > 0 {
			*lastTs = ts
		}

		if err := handler(header, payload); err != nil {
			return err
		}
	}
}

func collectFiles(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, FileExt) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}
