// Package flush persists staged aggregation output in batches, fail-soft.
package flush

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"token-stream-lab/internal/aggregate"
	"token-stream-lab/internal/domain"
	"token-stream-lab/internal/storage"
)

// Pipeline defaults.
const (
	DefaultAttempts     = 2
	DefaultRetryBackoff = 500 * time.Millisecond
	DefaultOpTimeout    = 5 * time.Second
)

// Config holds flush pipeline parameters.
type Config struct {
	Attempts     int           // metrics write attempts before dropping the batch
	RetryBackoff time.Duration // pause between metrics attempts
	OpTimeout    time.Duration // bound on each store call
}

// DefaultPipelineConfig returns the default pipeline configuration.
func DefaultPipelineConfig() Config {
	return Config{
		Attempts:     DefaultAttempts,
		RetryBackoff: DefaultRetryBackoff,
		OpTimeout:    DefaultOpTimeout,
	}
}

// Pipeline runs three writers in criticality order: metrics (bounded retry
// then drop-and-degrade), raw trades (best-effort), ATH deltas (best-effort,
// coalesced through the dirty set). Nothing here retries unboundedly and
// nothing escalates to the caller.
type Pipeline struct {
	metrics   storage.MetricStore
	rawTrades storage.RawTradeStore
	athStore  storage.ATHStore

	cfg      Config
	logger   zerolog.Logger
	degraded atomic.Bool

	// Counters exposed to the operator via observability.
	MetricBatchesWritten atomic.Uint64
	MetricBatchesDropped atomic.Uint64
	RawTradeFailures     atomic.Uint64
}

// NewPipeline creates a flush pipeline.
func NewPipeline(metrics storage.MetricStore, rawTrades storage.RawTradeStore, athStore storage.ATHStore, cfg Config, logger zerolog.Logger) *Pipeline {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultOpTimeout
	}
	return &Pipeline{
		metrics:   metrics,
		rawTrades: rawTrades,
		athStore:  athStore,
		cfg:       cfg,
		logger:    logger.With().Str("component", "flush_pipeline").Logger(),
	}
}

// Degraded reports whether the last metrics batch was dropped. Cleared by
// the next successful metrics write.
func (p *Pipeline) Degraded() bool {
	return p.degraded.Load()
}

// Flush writes staged rows and trades. The metrics path gets bounded
// retries; a batch that still fails is dropped so backlog stays bounded —
// a lost interval is preferable to an unbounded queue. The raw-trade path
// never blocks or degrades the metrics path.
func (p *Pipeline) Flush(ctx context.Context, rows []*domain.MetricRow, trades []*domain.RawTrade) {
	p.flushMetrics(ctx, rows)
	p.flushRawTrades(ctx, trades)
}

func (p *Pipeline) flushMetrics(ctx context.Context, rows []*domain.MetricRow) {
	if len(rows) == 0 {
		return
	}

	var lastErr error
	for attempt := 0; attempt < p.cfg.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.RetryBackoff):
			}
		}

		opCtx, cancel := context.WithTimeout(ctx, p.cfg.OpTimeout)
		err := p.metrics.InsertBulk(opCtx, rows)
		cancel()
		if err == nil {
			p.degraded.Store(false)
			p.MetricBatchesWritten.Add(1)
			return
		}
		lastErr = err
	}

	p.degraded.Store(true)
	p.MetricBatchesDropped.Add(1)
	p.logger.Error().Err(lastErr).Int("rows", len(rows)).
		Msg("metrics batch dropped after retries, pipeline degraded")
}

func (p *Pipeline) flushRawTrades(ctx context.Context, trades []*domain.RawTrade) {
	if len(trades) == 0 {
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, p.cfg.OpTimeout)
	err := p.rawTrades.InsertBulk(opCtx, trades)
	cancel()
	if err != nil {
		p.RawTradeFailures.Add(1)
		p.logger.Warn().Err(err).Int("trades", len(trades)).Msg("raw trade batch failed")
	}
}

// FlushATH writes all dirty ATH entries and returns how many were written.
// On success the dirty set is cleared; on failure it is left intact so the
// next cycle retries the same deltas.
func (p *Pipeline) FlushATH(ctx context.Context, ath *aggregate.ATHCache, now time.Time) (int, error) {
	entries := ath.DirtyEntries(now)
	if len(entries) == 0 {
		return 0, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, p.cfg.OpTimeout)
	err := p.athStore.UpsertBulk(opCtx, entries)
	cancel()
	if err != nil {
		p.logger.Warn().Err(err).Int("entries", len(entries)).Msg("ath flush failed, retrying next cycle")
		return 0, err
	}

	mints := make([]string, len(entries))
	for i, e := range entries {
		mints[i] = e.Mint
	}
	ath.MarkFlushed(mints)
	return len(entries), nil
}
