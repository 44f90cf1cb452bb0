// Package engine ties the feed client, discovery cache, watchlist,
// lifecycle evaluation, and flush pipeline into a single run loop.
//
// The loop owns all mutable ingestion state: Cache, Watchlist, ATHCache,
// Filter. Events and housekeeping run on one goroutine; the subscription
// batcher and the webhook delivery loop are the only helper tasks, and both
// communicate through structures built for that sharing.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"token-stream-lab/internal/aggregate"
	"token-stream-lab/internal/discovery"
	"token-stream-lab/internal/domain"
	"token-stream-lab/internal/filter"
	"token-stream-lab/internal/flush"
	"token-stream-lab/internal/lifecycle"
	"token-stream-lab/internal/observability"
	"token-stream-lab/internal/storage"
	"token-stream-lab/internal/stream"
)

// Engine loop defaults.
const (
	DefaultTickInterval     = 1 * time.Second
	DefaultResyncInterval   = 10 * time.Second
	DefaultWatchdogInterval = 60 * time.Second
	DefaultWatchdogMaxIdle  = 10 * time.Minute
	DefaultSweepInterval    = 30 * time.Second
	DefaultATHFlushInterval = 30 * time.Second
	DefaultForwardInterval  = 5 * time.Second
	DefaultOpTimeout        = 5 * time.Second
	DefaultShutdownTimeout  = 15 * time.Second
)

// Config holds engine loop parameters.
type Config struct {
	TickInterval     time.Duration // housekeeping cadence
	ResyncInterval   time.Duration // active-stream reconciliation cadence
	WatchdogInterval time.Duration // silent-subscription scan cadence
	WatchdogMaxIdle  time.Duration // no-trade threshold before resubscribe
	CacheTTL         time.Duration // discovery cache entry lifetime
	SweepInterval    time.Duration // cache expiry scan cadence
	ATHFlushInterval time.Duration // dirty ATH persistence cadence
	ForwardInterval  time.Duration // webhook delivery cadence
	OpTimeout        time.Duration // bound on resync store reads
	ShutdownTimeout  time.Duration // bound on the final flush pass
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() Config {
	return Config{
		TickInterval:     DefaultTickInterval,
		ResyncInterval:   DefaultResyncInterval,
		WatchdogInterval: DefaultWatchdogInterval,
		WatchdogMaxIdle:  DefaultWatchdogMaxIdle,
		CacheTTL:         discovery.DefaultTTL,
		SweepInterval:    DefaultSweepInterval,
		ATHFlushInterval: DefaultATHFlushInterval,
		ForwardInterval:  DefaultForwardInterval,
		OpTimeout:        DefaultOpTimeout,
		ShutdownTimeout:  DefaultShutdownTimeout,
	}
}

// Options carries the engine's collaborators. Client and Forwarder may be
// nil (headless operation, e.g. in tests); everything else is required.
type Options struct {
	Client    *stream.Client
	Batcher   *stream.Batcher
	Cache     *discovery.Cache
	Forwarder *discovery.Forwarder
	Filter    *filter.Filter
	Registry  *lifecycle.Registry
	Watchlist *lifecycle.Watchlist
	Evaluator *lifecycle.Evaluator
	Pipeline  *flush.Pipeline
	ATH       *aggregate.ATHCache
	Streams   storage.TokenStreamStore
	ATHStore  storage.ATHStore
	AggConfig aggregate.Config
	Config    Config
	Metrics   *observability.Metrics
	Logger    zerolog.Logger
}

// Engine is the ingestion run loop.
type Engine struct {
	client    *stream.Client
	batcher   *stream.Batcher
	cache     *discovery.Cache
	forwarder *discovery.Forwarder
	filter    *filter.Filter
	registry  *lifecycle.Registry
	wl        *lifecycle.Watchlist
	evaluator *lifecycle.Evaluator
	pipeline  *flush.Pipeline
	ath       *aggregate.ATHCache
	streams   storage.TokenStreamStore
	athStore  storage.ATHStore
	aggCfg    aggregate.Config
	cfg       Config
	metrics   *observability.Metrics
	logger    zerolog.Logger

	// emergencies is poked by the feed client's pre-reconnect hook; the
	// loop services it with a cheap persistence pass.
	emergencies chan struct{}

	lastTick       time.Time
	lastResync     time.Time
	lastWatchdog   time.Time
	lastSweep      time.Time
	lastATHFlush   time.Time
	lastReconnects uint64
}

// New creates an engine from its collaborators.
func New(opts Options) *Engine {
	cfg := opts.Config
	if cfg.TickInterval <= 0 {
		cfg = DefaultEngineConfig()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}

	return &Engine{
		client:      opts.Client,
		batcher:     opts.Batcher,
		cache:       opts.Cache,
		forwarder:   opts.Forwarder,
		filter:      opts.Filter,
		registry:    opts.Registry,
		wl:          opts.Watchlist,
		evaluator:   opts.Evaluator,
		pipeline:    opts.Pipeline,
		ath:         opts.ATH,
		streams:     opts.Streams,
		athStore:    opts.ATHStore,
		aggCfg:      opts.AggConfig,
		cfg:         cfg,
		metrics:     metrics,
		logger:      opts.Logger.With().Str("component", "engine").Logger(),
		emergencies: make(chan struct{}, 1),
	}
}

// Run executes the loop until ctx is canceled or the feed closes. On exit
// the batcher is canceled first, then a final forced flush pass runs so
// buffered data short of its deadline is not dropped.
func (e *Engine) Run(ctx context.Context) error {
	if e.client != nil {
		e.client.SetEmergencyFlush(func() {
			select {
			case e.emergencies <- struct{}{}:
			default:
			}
		})
	}

	// The batcher and the webhook delivery loop get their own context so
	// shutdown can stop them before the final flush pass.
	taskCtx, cancelTasks := context.WithCancel(context.Background())
	defer cancelTasks()
	go e.batcher.Run(taskCtx)
	if e.forwarder != nil {
		go e.forwardLoop(taskCtx)
	}

	e.resync(ctx, time.Now())

	var events <-chan *stream.Event
	if e.client != nil {
		events = e.client.Events()
	}

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cancelTasks()
			e.shutdown()
			return nil

		case <-e.emergencies:
			e.emergencyFlush()

		case ev, ok := <-events:
			if !ok {
				cancelTasks()
				e.shutdown()
				return nil
			}
			e.safeHandle(ev, time.Now())

		case <-ticker.C:
		}

		// Housekeeping runs on cadence even when the event channel is busy:
		// the ticker case guarantees it during quiet periods, this check
		// guarantees it during floods.
		if now := time.Now(); now.Sub(e.lastTick) >= e.cfg.TickInterval {
			e.lastTick = now
			work := e.runHousekeeping(ctx, now)
			e.execute(ctx, work, now)
		}
	}
}

// safeHandle processes one event, treating a panic as a lost connection:
// recover, log, and kick the client onto the standard reconnect path.
func (e *Engine) safeHandle(ev *stream.Event, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("event handler panicked, forcing reconnect")
			if e.client != nil {
				e.client.Kick()
			}
		}
	}()
	e.handleEvent(ev, now)
}

func (e *Engine) handleEvent(ev *stream.Event, now time.Time) {
	switch {
	case ev.Creation != nil:
		e.metrics.CreationsReceived.Inc()
		e.handleCreation(ev.Creation, now)
	case ev.Trade != nil:
		e.metrics.TradesReceived.Inc()
		e.handleTrade(ev.Trade, now)
	}
	e.metrics.LastEventTimestamp.Set(float64(now.Unix()))
}

func (e *Engine) handleCreation(c *domain.TokenCreation, now time.Time) {
	if reject, reason := e.filter.ShouldReject(c.Name, c.Symbol, c.Mint, now); reject {
		e.metrics.CreationsRejected.WithLabelValues(reason).Inc()
		e.logger.Debug().Str("mint", c.Mint).Str("reason", reason).Msg("creation rejected")
		return
	}

	if evicted := e.cache.Add(c, now); evicted != "" {
		e.unsubscribe([]string{evicted})
		e.metrics.CacheEvicted.Inc()
	}

	e.forwarder.Push(c)
	// Subscribe right away so pre-activation trades reach the cache buffer.
	e.batcher.Enqueue(c.Mint)
}

func (e *Engine) handleTrade(t *domain.TradeEvent, now time.Time) {
	if entry := e.wl.Get(t.Mint); entry != nil {
		entry.ApplyTrade(t, e.aggCfg, e.ath, now)
		return
	}
	e.cache.AddTrade(t.Mint, t)
}

// tickWork is the staged output of one housekeeping pass. runHousekeeping
// derives all due-ness from the now it is given; execute performs the I/O.
type tickWork struct {
	tick        lifecycle.TickResult
	expired     []string
	watchdog    []string
	resyncDue   bool
	athFlushDue bool
}

func (e *Engine) runHousekeeping(ctx context.Context, now time.Time) tickWork {
	var w tickWork

	w.tick = e.evaluator.Tick(ctx, e.wl, now)

	if now.Sub(e.lastSweep) >= e.cfg.SweepInterval {
		e.lastSweep = now
		w.expired = e.cache.ExpireOlderThan(e.cfg.CacheTTL, now)
	}

	if now.Sub(e.lastWatchdog) >= e.cfg.WatchdogInterval {
		e.lastWatchdog = now
		w.watchdog = e.silentMints(now)
	}

	if now.Sub(e.lastResync) >= e.cfg.ResyncInterval {
		e.lastResync = now
		w.resyncDue = true
	}

	if now.Sub(e.lastATHFlush) >= e.cfg.ATHFlushInterval {
		e.lastATHFlush = now
		w.athFlushDue = true
	}

	return w
}

func (e *Engine) execute(ctx context.Context, w tickWork, now time.Time) {
	if len(w.tick.Rows) > 0 || len(w.tick.Trades) > 0 {
		start := time.Now()
		e.pipeline.Flush(ctx, w.tick.Rows, w.tick.Trades)
		e.metrics.FlushDuration.Observe(time.Since(start).Seconds())
		if e.pipeline.Degraded() {
			e.metrics.MetricBatchesDropped.Inc()
		} else {
			e.metrics.MetricRowsFlushed.Add(float64(len(w.tick.Rows)))
			e.metrics.RawTradesFlushed.Add(float64(len(w.tick.Trades)))
			e.metrics.LastFlushTimestamp.Set(float64(now.Unix()))
		}
	}
	e.metrics.PipelineDegraded.Set(boolGauge(e.pipeline.Degraded()))

	terminated := make([]string, 0, len(w.tick.Graduated)+len(w.tick.Finished))
	terminated = append(terminated, w.tick.Graduated...)
	terminated = append(terminated, w.tick.Finished...)
	if len(terminated) > 0 {
		e.unsubscribe(terminated)
		// Persist their final highs now; only then can the entries go.
		if _, err := e.pipeline.FlushATH(ctx, e.ath, now); err == nil {
			for _, mint := range terminated {
				e.ath.Forget(mint)
			}
		}
		e.metrics.Graduations.Add(float64(len(w.tick.Graduated)))
		e.metrics.StreamsFinished.Add(float64(len(w.tick.Finished)))
	}

	if w.tick.Advanced > 0 {
		e.metrics.PhaseAdvances.Add(float64(w.tick.Advanced))
	}
	if w.tick.Stale > 0 {
		e.metrics.StaleDetections.Add(float64(w.tick.Stale))
	}
	if len(w.tick.Resubscribe) > 0 {
		e.resubscribe(w.tick.Resubscribe, "stale signature")
	}

	if len(w.expired) > 0 {
		e.unsubscribe(w.expired)
		e.metrics.CacheExpired.Add(float64(len(w.expired)))
		e.logger.Debug().Int("count", len(w.expired)).Msg("cache entries expired")
	}

	if len(w.watchdog) > 0 {
		e.resubscribe(w.watchdog, "watchdog idle")
	}

	if w.resyncDue {
		e.reloadPhases(ctx)
		e.resync(ctx, now)
	}

	if w.athFlushDue {
		if n, err := e.pipeline.FlushATH(ctx, e.ath, now); err == nil && n > 0 {
			e.metrics.ATHEntriesFlushed.Add(float64(n))
		}
	}

	e.updateGauges()
}

func (e *Engine) updateGauges() {
	e.metrics.CacheSize.Set(float64(e.cache.Len()))
	e.metrics.WatchlistSize.Set(float64(e.wl.Len()))
	e.metrics.PendingSubs.Set(float64(e.batcher.PendingCount()))
	if e.client != nil {
		e.metrics.TrackedMints.Set(float64(e.client.TrackedCount()))
		if r := e.client.Reconnects(); r > e.lastReconnects {
			e.metrics.Reconnects.Add(float64(r - e.lastReconnects))
			e.lastReconnects = r
		}
	}
}

// silentMints returns tracked mints with no observed trade past the idle
// threshold. Server-side subscription drops do not surface as transport
// errors; cycling the subscription recovers them.
func (e *Engine) silentMints(now time.Time) []string {
	var silent []string
	e.wl.Each(func(entry *lifecycle.Entry) {
		last := entry.LastTradeAt
		if last.IsZero() {
			last = entry.StartedAt
		}
		if now.Sub(last) > e.cfg.WatchdogMaxIdle {
			silent = append(silent, entry.Mint)
		}
	})
	return silent
}

// reloadPhases refreshes the phase table so cadence changes made in storage
// take effect without a restart. A failed read keeps the loaded table.
func (e *Engine) reloadPhases(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()
	if err := e.registry.Load(opCtx); err != nil {
		e.logger.Warn().Err(err).Msg("phase table reload failed, keeping current table")
	}
}

// resync reconciles in-memory tracking with the persistent active-stream
// registry: promote cached tokens that became active, adopt active streams
// discovered elsewhere, and drop entries whose stream stopped being active.
func (e *Engine) resync(ctx context.Context, now time.Time) {
	opCtx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
	active, err := e.streams.GetActive(opCtx)
	cancel()
	if err != nil {
		e.logger.Warn().Err(err).Msg("resync read failed, keeping current tracking")
		return
	}

	activeSet := make(map[string]struct{}, len(active))
	for _, s := range active {
		activeSet[s.Mint] = struct{}{}
		if !e.wl.Contains(s.Mint) {
			e.track(ctx, s, now)
		}
	}

	// Streams no longer active were stopped externally; flush what their
	// buffers hold and stop tracking.
	var dropped []string
	var rows []*domain.MetricRow
	var trades []*domain.RawTrade
	for _, mint := range e.wl.Mints() {
		if _, ok := activeSet[mint]; ok {
			continue
		}
		if entry := e.wl.Get(mint); entry != nil && entry.Buffer.TradeCount() > 0 {
			bucketStart := entry.NextFlushAt.Add(-time.Duration(entry.IntervalSeconds) * time.Second)
			rows = append(rows, aggregate.Compute(entry.Buffer, mint, bucketStart.UnixMilli(), entry.PhaseID))
			for _, t := range entry.Buffer.RawTrades {
				t.PhaseID = entry.PhaseID
				trades = append(trades, t)
			}
		}
		e.wl.Remove(mint)
		dropped = append(dropped, mint)
	}

	if len(rows) > 0 || len(trades) > 0 {
		e.pipeline.Flush(ctx, rows, trades)
	}
	if len(dropped) > 0 {
		e.unsubscribe(dropped)
		e.logger.Info().Int("count", len(dropped)).Msg("dropped externally stopped streams")
	}
}

// track starts watching an active stream: promotion from the discovery
// cache when the token was seen live (replaying its buffered trades), plain
// adoption otherwise.
func (e *Engine) track(ctx context.Context, s *domain.TokenStream, now time.Time) {
	interval := 0
	if phase, ok := e.registry.Resolve(s.PhaseID); ok {
		interval = phase.IntervalSeconds
	} else if first := e.registry.First(); first != nil {
		// Unresolvable phase ids terminate on the first tick; the first
		// phase's cadence is only a placeholder until then.
		interval = first.IntervalSeconds
	} else {
		interval = 60
	}

	entry := &lifecycle.Entry{
		Mint:            s.Mint,
		PhaseID:         s.PhaseID,
		CreatedAt:       time.UnixMilli(s.CreatedAt),
		StartedAt:       now,
		Creator:         s.Creator,
		Buffer:          aggregate.NewTradeBuffer(s.Creator),
		IntervalSeconds: interval,
	}

	trades, promoted := e.cache.Activate(s.Mint)
	if promoted {
		e.cache.Remove(s.Mint)
	}

	// Respect highs persisted by earlier runs.
	if e.athStore != nil {
		opCtx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
		if stored, err := e.athStore.GetByMint(opCtx, s.Mint); err == nil {
			e.ath.Seed(s.Mint, stored.Price)
		}
		cancel()
	}

	e.wl.Add(entry, now)
	for _, t := range trades {
		entry.ApplyTrade(t, e.aggCfg, e.ath, now)
	}

	e.batcher.Enqueue(s.Mint)
	e.logger.Info().Str("mint", s.Mint).Int("phase_id", s.PhaseID).
		Bool("promoted", promoted).Int("replayed", len(trades)).
		Msg("tracking stream")
}

// emergencyFlush persists what is cheap to save before a reconnect: the
// discovery forwarder buffer and dirty ATH entries. Trade buffers are not
// included; they survive in memory across reconnects.
func (e *Engine) emergencyFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.OpTimeout)
	defer cancel()

	e.forwarder.Deliver(ctx)
	if n, err := e.pipeline.FlushATH(ctx, e.ath, time.Now()); err == nil && n > 0 {
		e.metrics.ATHEntriesFlushed.Add(float64(n))
	}
	e.logger.Info().Msg("emergency flush completed")
}

// shutdown forces every entry's flush-due check to fire, then persists ATH
// and forwarder leftovers. Runs on its own context; the loop context is
// already canceled when this is called.
func (e *Engine) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
	defer cancel()

	now := time.Now()
	res := e.evaluator.ForceFlush(ctx, e.wl, now)
	if len(res.Rows) > 0 || len(res.Trades) > 0 {
		e.pipeline.Flush(ctx, res.Rows, res.Trades)
	}
	e.pipeline.FlushATH(ctx, e.ath, now)
	e.forwarder.Deliver(ctx)

	e.logger.Info().Int("rows", len(res.Rows)).Int("trades", len(res.Trades)).
		Msg("final flush pass completed")
}

func (e *Engine) forwardLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ForwardInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.forwarder.Deliver(ctx)
		}
	}
}

func (e *Engine) unsubscribe(mints []string) {
	if e.client == nil {
		return
	}
	if err := e.client.UnsubscribeTrades(mints); err != nil {
		e.logger.Warn().Err(err).Int("count", len(mints)).Msg("unsubscribe failed")
	}
}

func (e *Engine) resubscribe(mints []string, why string) {
	e.metrics.Resubscribes.Add(float64(len(mints)))
	if e.client == nil {
		return
	}
	if err := e.client.ForceResubscribe(mints); err != nil {
		e.logger.Warn().Err(err).Str("why", why).Int("count", len(mints)).Msg("resubscribe failed")
	}
	e.logger.Debug().Str("why", why).Int("count", len(mints)).Msg("forced resubscribe")
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
