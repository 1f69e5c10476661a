package feed

import (
	"context"

	"main/internal/schema"
)

// EmitFunc delivers one market data payload stamped with its event time.
type EmitFunc func(tsEvent int64, payload schema.Payload) error

// Source streams market data into the engine. Implementations must emit
// events with non-decreasing timestamps per instrument; the bus reorders
// only within its watermark window.
type Source interface {
	// Run pushes events through emit until the source is exhausted or ctx
	// is canceled. An emit error stops the stream.
	Run(ctx context.Context, emit EmitFunc) error
}
