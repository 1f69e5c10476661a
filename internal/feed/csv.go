package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// CSVConfig controls historical bar replay from a CSV file. Expected
// columns: timestamp, symbol, open, high, low, close, volume. Rows must be
// ordered by timestamp.
type CSVConfig struct {
	Path string `json:"path" yaml:"path"`

	// From and To bound the replay window in unix nanoseconds. Zero means
	// unbounded.
	From int64 `json:"from" yaml:"from"`
	To   int64 `json:"to" yaml:"to"`
}

// CSVSource replays bars from a CSV file.
type CSVSource struct {
	registry *schema.Registry
	cfg      CSVConfig
}

// NewCSVSource creates a CSV bar source.
func NewCSVSource(registry *schema.Registry, cfg CSVConfig) (*CSVSource, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("invalid csv source config: Path is empty")
	}
	if cfg.From != 0 && cfg.To != 0 && cfg.To < cfg.From {
		return nil, fmt.Errorf("invalid csv source config: To before From")
	}
	return &CSVSource{registry: registry, cfg: cfg}, nil
}

// Run streams bars within the configured time range. Rows referencing
// unknown symbols are skipped with a warning.
func (s *CSVSource) Run(ctx context.Context, emit EmitFunc) error {
	file, err := os.Open(s.cfg.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		line++
		if line == 1 && isHeader(row) {
			continue
		}
		if len(row) < 7 {
			return fmt.Errorf("csv row too short, file: %s, line: %d", s.cfg.Path, line)
		}

		ts, err := parseTimestamp(row[0])
		if err != nil {
			return fmt.Errorf("csv timestamp parse failed, line: %d, err: %w", line, err)
		}
		if s.cfg.From != 0 && ts < s.cfg.From {
			continue
		}
		if s.cfg.To != 0 && ts > s.cfg.To {
			return nil
		}

		symbolID, ok := s.registry.SymbolIDByName(row[1])
		if !ok {
			logs.Warnf("csv row references unknown symbol, symbol: %s, line: %d", row[1], line)
			continue
		}
		scale := s.registry.Scale(symbolID)

		values := make([]float64, 5)
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(row[2+i], 64)
			if err != nil {
				return fmt.Errorf("csv value parse failed, line: %d, col: %d, err: %w", line, 2+i, err)
			}
			values[i] = v
		}

		bar := schema.Bar{
			SymbolID: uint32(symbolID),
			Open:     scale.PriceFromFloat(values[0]),
			High:     scale.PriceFromFloat(values[1]),
			Low:      scale.PriceFromFloat(values[2]),
			Close:    scale.PriceFromFloat(values[3]),
			Volume:   scale.QtyFromFloat(values[4]),
		}
		if err := emit(ts, bar); err != nil {
			return err
		}
	}
}

func isHeader(row []string) bool {
	if len(row) == 0 {
		return false
	}
	if _, err := parseTimestamp(row[0]); err != nil {
		return true
	}
	return false
}

// parseTimestamp accepts unix seconds, milliseconds or nanoseconds, or an
// RFC3339 string.
func parseTimestamp(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		switch {
		case v >= 1e17:
			return v, nil
		case v >= 1e12:
			return v * int64(time.Millisecond), nil
		default:
			return v * int64(time.Second), nil
		}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, err
	}
	return t.UnixNano(), nil
}
