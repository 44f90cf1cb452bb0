package lifecycle

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"token-stream-lab/internal/aggregate"
	"token-stream-lab/internal/domain"
	"token-stream-lab/internal/storage"
)

// Evaluator defaults.
const (
	DefaultFullReserves    = 85.0  // SOL reserves at bonding-curve completion
	DefaultGraduationRatio = 0.995 // reserves fraction that graduates a token
	DefaultStaleThreshold  = 3     // identical signatures before forced resubscribe
	DefaultOpTimeout       = 5 * time.Second
)

// Config holds lifecycle evaluation parameters.
type Config struct {
	FullReserves    float64
	GraduationRatio float64
	StaleThreshold  int
	OpTimeout       time.Duration // bound on each stream-store write
}

// DefaultEvalConfig returns the default evaluator configuration.
func DefaultEvalConfig() Config {
	return Config{
		FullReserves:    DefaultFullReserves,
		GraduationRatio: DefaultGraduationRatio,
		StaleThreshold:  DefaultStaleThreshold,
		OpTimeout:       DefaultOpTimeout,
	}
}

// TickResult is the staged work produced by one evaluation pass. The engine
// executes the side effects; evaluation itself only writes phase switches and
// terminal markers to the stream store.
type TickResult struct {
	Rows        []*domain.MetricRow
	Trades      []*domain.RawTrade
	Graduated   []string // mints that reached the reserve threshold
	Finished    []string // mints that exhausted the phase table
	Resubscribe []string // mints whose subscription looks dropped
	Stale       int      // stale-signature detections this pass
	Advanced    int      // successful phase switches this pass
}

// Evaluator runs the per-tick lifecycle checks for every watchlist entry.
type Evaluator struct {
	registry *Registry
	streams  storage.TokenStreamStore
	cfg      Config
	logger   zerolog.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(registry *Registry, streams storage.TokenStreamStore, cfg Config, logger zerolog.Logger) *Evaluator {
	if cfg.FullReserves <= 0 {
		cfg.FullReserves = DefaultFullReserves
	}
	if cfg.GraduationRatio <= 0 {
		cfg.GraduationRatio = DefaultGraduationRatio
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = DefaultStaleThreshold
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultOpTimeout
	}
	return &Evaluator{
		registry: registry,
		streams:  streams,
		cfg:      cfg,
		logger:   logger.With().Str("component", "lifecycle").Logger(),
	}
}

// Tick evaluates every entry once: graduation, phase advance, flush-due.
// Entries that reach a terminal state are removed from the watchlist.
func (ev *Evaluator) Tick(ctx context.Context, wl *Watchlist, now time.Time) TickResult {
	var res TickResult

	// Snapshot mints first: evaluation may remove entries.
	for _, mint := range wl.Mints() {
		e := wl.Get(mint)
		if e == nil {
			continue
		}
		ev.evaluate(ctx, wl, e, now, false, &res)
	}

	return res
}

// ForceFlush fires the flush-due check for every entry regardless of
// deadline. Used on shutdown so buffered data is not silently dropped.
func (ev *Evaluator) ForceFlush(ctx context.Context, wl *Watchlist, now time.Time) TickResult {
	var res TickResult
	for _, mint := range wl.Mints() {
		e := wl.Get(mint)
		if e == nil {
			continue
		}
		ev.flushDue(e, now, true, &res)
	}
	return res
}

func (ev *Evaluator) evaluate(ctx context.Context, wl *Watchlist, e *Entry, now time.Time, force bool, res *TickResult) {
	// 1. Graduation: reserves reached the completion threshold.
	if ev.cfg.FullReserves > 0 && e.LastVSolReserves/ev.cfg.FullReserves >= ev.cfg.GraduationRatio {
		ev.terminate(ctx, wl, e, now, domain.StreamStatusGraduated, res)
		return
	}

	// 2. Phase advance. An unresolvable phase id forces termination, not a crash.
	phase, ok := ev.registry.Resolve(e.PhaseID)
	if !ok {
		ev.logger.Warn().Str("mint", e.Mint).Int("phase_id", e.PhaseID).
			Msg("phase id not in registry, terminating lifecycle")
		ev.terminate(ctx, wl, e, now, domain.StreamStatusFinished, res)
		return
	}

	age := now.Sub(e.CreatedAt)
	if age > time.Duration(phase.MaxAgeMinutes)*time.Minute {
		next := ev.registry.NextFor(e.PhaseID, age)
		if next == nil {
			ev.terminate(ctx, wl, e, now, domain.StreamStatusFinished, res)
			return
		}

		// In-memory phase advances only after the persistent write succeeds;
		// on failure the stale in-memory phase keeps cadence aligned with
		// storage and the switch is retried next tick.
		opCtx, cancel := context.WithTimeout(ctx, ev.cfg.OpTimeout)
		err := ev.streams.UpdatePhase(opCtx, e.Mint, next.ID)
		cancel()
		if err != nil {
			ev.logger.Warn().Err(err).Str("mint", e.Mint).Int("next_phase", next.ID).
				Msg("phase switch write failed, retrying next tick")
		} else {
			ev.logger.Info().Str("mint", e.Mint).Int("from", e.PhaseID).Int("to", next.ID).
				Msg("phase advanced")
			// The interval that just completed accumulated under the old
			// phase: flush it on the old cadence first, then shift the open
			// window's deadline onto the new one. Flushing after the switch
			// would misplace the row's bucket by the interval difference.
			ev.flushDue(e, now, force, res)
			e.PhaseID = next.ID
			e.NextFlushAt = e.NextFlushAt.Add(time.Duration(next.IntervalSeconds-e.IntervalSeconds) * time.Second)
			e.IntervalSeconds = next.IntervalSeconds
			res.Advanced++
			return
		}
	}

	// 3. Flush-due.
	ev.flushDue(e, now, force, res)
}

// flushDue evaluates the buffer when the flush deadline has passed. The
// buffer is always reset and the deadline always advances by exactly one
// interval; a flush slot is never retried by holding data past its deadline.
func (ev *Evaluator) flushDue(e *Entry, now time.Time, force bool, res *TickResult) {
	if !force && now.Before(e.NextFlushAt) {
		return
	}

	sig := aggregate.SignatureOf(e.Buffer)
	if e.HasLastSig && sig == e.LastSig {
		// Identical to the last persisted signature: likely a dropped
		// upstream subscription still delivering nothing new.
		e.StaleCount++
		res.Stale++
		if e.StaleCount >= ev.cfg.StaleThreshold {
			res.Resubscribe = append(res.Resubscribe, e.Mint)
			e.StaleCount = 0
		}
	} else {
		e.StaleCount = 0
		if e.Buffer.TradeCount() > 0 {
			bucketStart := e.NextFlushAt.Add(-time.Duration(e.IntervalSeconds) * time.Second)
			row := aggregate.Compute(e.Buffer, e.Mint, bucketStart.UnixMilli(), e.PhaseID)
			res.Rows = append(res.Rows, row)
			for _, t := range e.Buffer.RawTrades {
				t.PhaseID = e.PhaseID
				res.Trades = append(res.Trades, t)
			}
		}
	}

	e.LastSig = sig
	e.HasLastSig = true
	e.Buffer.Reset()
	e.NextFlushAt = e.NextFlushAt.Add(time.Duration(e.IntervalSeconds) * time.Second)
}

// terminate persists the terminal marker, stages any pending buffer, and
// releases the entry. A failed marker write leaves the entry in place so the
// transition is retried next tick.
func (ev *Evaluator) terminate(ctx context.Context, wl *Watchlist, e *Entry, now time.Time, status string, res *TickResult) {
	opCtx, cancel := context.WithTimeout(ctx, ev.cfg.OpTimeout)
	err := ev.streams.SetStatus(opCtx, e.Mint, status)
	cancel()
	if err != nil {
		ev.logger.Warn().Err(err).Str("mint", e.Mint).Str("status", status).
			Msg("terminal marker write failed, retrying next tick")
		return
	}

	// Final flush of whatever the buffer holds.
	ev.flushDue(e, now, true, res)

	wl.Remove(e.Mint)
	if status == domain.StreamStatusGraduated {
		res.Graduated = append(res.Graduated, e.Mint)
		ev.logger.Info().Str("mint", e.Mint).Msg("token graduated")
	} else {
		res.Finished = append(res.Finished, e.Mint)
		ev.logger.Info().Str("mint", e.Mint).Msg("token lifecycle finished")
	}
}
