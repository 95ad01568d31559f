package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These decouple the analysis and pipeline code from SQLite and Redis.

// SampleReader loads recent samples for a symbol.
type SampleReader interface {
	// RecentSamples returns samples with timestamp >= since, ascending.
	RecentSamples(ctx context.Context, symbol string, since time.Time) ([]MarketSample, error)
}

// SampleWriter persists enriched samples.
type SampleWriter interface {
	// Run reads rows from ch and writes them in batches.
	// Blocks until ctx is cancelled or ch is closed.
	Run(ctx context.Context, ch <-chan MarketData)
}

// SetupWriter persists generated trade setups.
type SetupWriter interface {
	// SaveSetup stores s and assigns s.ID.
	SaveSetup(ctx context.Context, s *TradeSetup) error
}

// SetupReader reads persisted trade setups.
type SetupReader interface {
	// SetupHistory returns at most limit setups for symbol, newest first.
	SetupHistory(ctx context.Context, symbol string, limit int) ([]TradeSetup, error)
}

// SetupStore is the full setup persistence contract.
type SetupStore interface {
	SetupWriter
	SetupReader
}

// LatestStore caches and publishes the most recent enriched sample per symbol.
type LatestStore interface {
	PublishMarketData(ctx context.Context, md MarketData) error
	LatestMarketData(ctx context.Context, symbol string) (*MarketData, error)
}
