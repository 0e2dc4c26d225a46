package domain

import "context"

// BookCache mirrors the latest book snapshot into shared storage.
type BookCache interface {
	SetSnapshot(ctx context.Context, symbol string, snap BookSnapshot) error
}

// SignalBus fans events out to other processes.
type SignalBus interface {
	// Publish is fire-and-forget pub/sub.
	Publish(ctx context.Context, channel string, payload []byte) error
	// StreamAppend records an event durably.
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}
