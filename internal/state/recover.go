package state

import (
	"context"
	"fmt"

	"github.com/yanun0323/errors"

	"main/internal/codec"
	"main/internal/journal"
	"main/internal/schema"
)

// RecoverConfig controls snapshot + journal recovery.
type RecoverConfig struct {
	JournalDir      string
	SnapshotPath    string
	FilePrefix      string
	DisableChecksum bool
	MaxPayloadSize  int
}

// RecoverResult contains the recovered ledger and replay metadata.
type RecoverResult struct {
	Ledger      *Ledger
	LastSeq     uint64
	LastEventTs int64
}

// RecoverLedger loads a snapshot and replays the journal tail to rebuild
// the ledger. Order approvals and fills past the snapshot's sequence are
// re-applied in journal order.
func RecoverLedger(ctx context.Context, ledger *Ledger, cfg RecoverConfig) (RecoverResult, error) {
	if cfg.JournalDir == "" {
		return RecoverResult{}, fmt.Errorf("journal dir is empty")
	}
	var lastSeq uint64
	var lastEventTs int64

	if cfg.SnapshotPath != "" {
		snapshot, err := ReadSnapshot(cfg.SnapshotPath)
		if err != nil {
			return RecoverResult{}, err
		}
		ledger.Restore(snapshot)
		lastSeq = snapshot.LastSeq
		lastEventTs = snapshot.LastEventTs
	}

	pb, err := journal.NewPlayback(journal.PlaybackConfig{
		Dir:             cfg.JournalDir,
		FilePrefix:      cfg.FilePrefix,
		DisableChecksum: cfg.DisableChecksum,
		MaxPayloadSize:  cfg.MaxPayloadSize,
	})
	if err != nil {
		return RecoverResult{}, err
	}

	err = pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		if lastSeq > 0 && header.Seq <= lastSeq {
			return nil
		}
		if header.Seq > lastSeq {
			lastSeq = header.Seq
		}
		if header.TsEvent > lastEventTs {
			lastEventTs = header.TsEvent
		}
		switch header.Type {
		case schema.EventOrderApproved:
			approved, ok := codec.DecodeOrderApproved(payload)
			if !ok {
				return fmt.Errorf("decode order approved failed, seq: %d", header.Seq)
			}
			ledger.RegisterOrder(approved.OrderID)
		case schema.EventFill:
			fill, ok := codec.DecodeFill(payload)
			if !ok {
				return fmt.Errorf("decode fill failed, seq: %d", header.Seq)
			}
			if _, err := ledger.Apply(fill); err != nil {
				return errors.Wrapf(err, "apply fill, seq: %d", header.Seq)
			}
		case schema.EventBar:
			bar, ok := codec.DecodeBar(payload)
			if !ok {
				return fmt.Errorf("decode bar failed, seq: %d", header.Seq)
			}
			ledger.MarkPrice(bar.SymbolID, bar.Close)
		}
		ledger.Advance(header.Seq, header.TsEvent)
		return nil
	})
	if err != nil {
		return RecoverResult{}, err
	}
	return RecoverResult{Ledger: ledger, LastSeq: lastSeq, LastEventTs: lastEventTs}, nil
}
