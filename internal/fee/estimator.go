package fee

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0Papitchu/GBPBot-sub003/internal/cache"
	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	"github.com/0Papitchu/GBPBot-sub003/internal/metrics"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

//go:generate mockgen -destination=mocks/mock_source.go -package=mocks . BlockSource

// BlockSource provides the fee market data sampled by the estimator.
type BlockSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockFees(ctx context.Context, number uint64) (model.BlockFees, error)
}

// Config holds estimator limits. Fee values share the unit of the
// BlockSource (gwei for EVM chains).
type Config struct {
	UpdateInterval        time.Duration
	HistorySize           int
	MaxBaseFee            decimal.Decimal
	MaxPriorityFee        decimal.Decimal
	MinPriorityFee        decimal.Decimal
	BaseFeeMultiplier     decimal.Decimal
	PriorityFeeMultiplier decimal.Decimal
	MaxTotalFee           decimal.Decimal
	RetryBackoff          time.Duration
}

func DefaultConfig() Config {
	return Config{
		UpdateInterval:        15 * time.Second,
		HistorySize:           20,
		MaxBaseFee:            decimal.NewFromInt(500),
		MaxPriorityFee:        decimal.NewFromInt(10),
		MinPriorityFee:        decimal.RequireFromString("0.1"),
		BaseFeeMultiplier:     decimal.RequireFromString("1.125"),
		PriorityFeeMultiplier: decimal.RequireFromString("1.5"),
		MaxTotalFee:           decimal.NewFromInt(600),
		RetryBackoff:          5 * time.Second,
	}
}

const sampleConcurrency = 4

var (
	highTierBoost = decimal.RequireFromString("1.2")
	percentile75  = decimal.RequireFromString("0.75")
)

// Estimator recommends fee parameters from a rolling sample of recent blocks.
type Estimator struct {
	cfg    Config
	src    BlockSource
	logger *slog.Logger

	mu           sync.RWMutex
	baseFees     *Window[decimal.Decimal]
	priorityFees *Window[decimal.Decimal]
	lastRefresh  time.Time

	group     singleflight.Group
	estimates *cache.LRU[model.Priority, model.FeeEstimate]
	observer  func(err error, took time.Duration)
	nowFn     func() time.Time

	total  atomic.Int64
	failed atomic.Int64
}

// NewEstimator creates an estimator. A nil src leaves the windows empty, so
// every call returns the conservative defaults.
func NewEstimator(cfg Config, src BlockSource, logger *slog.Logger) *Estimator {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultConfig().UpdateInterval
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConfig().RetryBackoff
	}
	return &Estimator{
		cfg:          cfg,
		src:          src,
		logger:       logger.With("component", "fee_estimator"),
		baseFees:     NewWindow[decimal.Decimal](cfg.HistorySize),
		priorityFees: NewWindow[decimal.Decimal](cfg.HistorySize),
		estimates:    cache.NewLRU[model.Priority, model.FeeEstimate](len(model.Priorities()), cfg.UpdateInterval),
		nowFn:        time.Now,
	}
}

// SetRefreshObserver registers fn to be told the outcome of every refresh.
func (e *Estimator) SetRefreshObserver(fn func(err error, took time.Duration)) {
	e.observer = fn
}

// GetFeeParams returns the recommended fee pair for priority, refreshing the
// sample windows first when they are older than the update interval.
func (e *Estimator) GetFeeParams(ctx context.Context, priority model.Priority) model.FeeEstimate {
	if e.stale() {
		if err := e.refreshShared(ctx); err != nil {
			e.logger.Warn("fee refresh failed, using previous samples", "error", err)
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if est, ok := e.estimates.Get(priority); ok {
		return est
	}
	est := e.compute(priority)
	e.estimates.Put(priority, est)
	return est
}

// EstimateCost is unitLimit times the recommended max fee per unit.
func (e *Estimator) EstimateCost(ctx context.Context, unitLimit uint64, priority model.Priority) decimal.Decimal {
	est := e.GetFeeParams(ctx, priority)
	return decimal.NewFromUint64(unitLimit).Mul(est.MaxFeePerUnit)
}

// ApplyMultiplier scales both components of est by m and re-applies the
// total fee cap.
func (e *Estimator) ApplyMultiplier(est model.FeeEstimate, m decimal.Decimal) model.FeeEstimate {
	if m.LessThanOrEqual(decimal.Zero) || m.Equal(decimal.NewFromInt(1)) {
		return est
	}
	return e.capTotal(est.MaxFeePerUnit.Mul(m), est.MaxPriorityFeePerUnit.Mul(m))
}

// RecordOutcome updates the aggregate success counters. The sample windows
// are not affected.
func (e *Estimator) RecordOutcome(success bool, unitsUsed uint64, baseFeeUsed, priorityFeeUsed decimal.Decimal) {
	e.total.Add(1)
	result := "success"
	if !success {
		e.failed.Add(1)
		result = "failure"
	}
	metrics.FeeOutcomesTotal.WithLabelValues(result).Inc()
	e.logger.Debug("fee outcome recorded",
		"success", success,
		"units_used", unitsUsed,
		"base_fee", baseFeeUsed.String(),
		"priority_fee", priorityFeeUsed.String(),
	)
}

// Stats returns the recorded outcome counts.
func (e *Estimator) Stats() (total, failed int64) {
	return e.total.Load(), e.failed.Load()
}

// SuccessRate is the share of successful outcomes, 1 when none were recorded.
func (e *Estimator) SuccessRate() float64 {
	total, failed := e.Stats()
	if total == 0 {
		return 1
	}
	return float64(total-failed) / float64(total)
}

// Run refreshes the windows every update interval until ctx is done. A failed
// refresh is retried after the backoff; the loop itself never gives up.
func (e *Estimator) Run(ctx context.Context) error {
	if e.src == nil {
		e.logger.Info("no block source configured, serving default fees")
		<-ctx.Done()
		return nil
	}
	for {
		wait := e.cfg.UpdateInterval
		if err := e.refreshShared(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.logger.Warn("fee refresh failed", "error", err, "retry_in", e.cfg.RetryBackoff)
			wait = e.cfg.RetryBackoff
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Refresh samples the latest HistorySize blocks and replaces both windows.
func (e *Estimator) Refresh(ctx context.Context) error {
	if e.src == nil {
		return nil
	}
	start := e.nowFn()
	err := e.refresh(ctx)
	if e.observer != nil {
		e.observer(err, e.nowFn().Sub(start))
	}
	if err != nil {
		metrics.FeeRefreshErrors.Inc()
		return err
	}
	metrics.FeeRefreshTotal.Inc()
	return nil
}

func (e *Estimator) refreshShared(ctx context.Context) error {
	_, err, _ := e.group.Do("refresh", func() (interface{}, error) {
		return nil, e.Refresh(ctx)
	})
	return err
}

func (e *Estimator) stale() bool {
	if e.src == nil {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRefresh.IsZero() || e.nowFn().Sub(e.lastRefresh) >= e.cfg.UpdateInterval
}

func (e *Estimator) refresh(ctx context.Context) error {
	latest, err := e.src.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("latest block: %w", err)
	}

	n := uint64(e.cfg.HistorySize)
	if latest+1 < n {
		n = latest + 1
	}
	first := latest + 1 - n

	blocks := make([]model.BlockFees, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sampleConcurrency)
	for i := uint64(0); i < n; i++ {
		i := i
		g.Go(func() error {
			fees, err := e.src.BlockFees(gctx, first+i)
			if err != nil {
				return fmt.Errorf("block %d fees: %w", first+i, err)
			}
			blocks[i] = fees
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	bases := make([]decimal.Decimal, 0, len(blocks))
	var tips []decimal.Decimal
	for _, b := range blocks {
		bases = append(bases, b.BaseFeePerUnit)
		tips = append(tips, b.PriorityFees...)
	}

	e.mu.Lock()
	e.baseFees.Replace(bases)
	e.priorityFees.Replace(tips)
	e.lastRefresh = e.nowFn()
	e.estimates.Purge()
	for _, p := range model.Priorities() {
		est := e.compute(p)
		metrics.FeeEstimatePerUnit.WithLabelValues(p.String(), "base").Set(est.MaxFeePerUnit.InexactFloat64())
		metrics.FeeEstimatePerUnit.WithLabelValues(p.String(), "priority").Set(est.MaxPriorityFeePerUnit.InexactFloat64())
	}
	e.mu.Unlock()

	e.logger.Debug("fee samples refreshed",
		"latest_block", latest,
		"base_samples", len(bases),
		"priority_samples", len(tips),
	)
	return nil
}

// compute must be called with mu held.
func (e *Estimator) compute(priority model.Priority) model.FeeEstimate {
	if e.baseFees.Len() == 0 || e.priorityFees.Len() == 0 {
		return model.FeeEstimate{
			MaxFeePerUnit:         e.cfg.MaxBaseFee,
			MaxPriorityFeePerUnit: e.cfg.MinPriorityFee,
		}
	}

	base := weightedAverage(e.baseFees.Values()).Mul(e.baseMultiplier(priority))
	base = clamp(base, decimal.Zero, e.cfg.MaxBaseFee)

	tip := percentile(e.priorityFees.Values(), percentile75).Mul(e.priorityMultiplier(priority))
	tip = clamp(tip, e.cfg.MinPriorityFee, e.cfg.MaxPriorityFee)

	return e.capTotal(base, tip)
}

// capTotal scales base and tip by the same factor so their sum is exactly
// MaxTotalFee when it would otherwise exceed it.
func (e *Estimator) capTotal(base, tip decimal.Decimal) model.FeeEstimate {
	sum := base.Add(tip)
	if e.cfg.MaxTotalFee.IsPositive() && sum.GreaterThan(e.cfg.MaxTotalFee) {
		base = base.Mul(e.cfg.MaxTotalFee).Div(sum)
		tip = e.cfg.MaxTotalFee.Sub(base)
	}
	return model.FeeEstimate{MaxFeePerUnit: base, MaxPriorityFeePerUnit: tip}
}

func (e *Estimator) baseMultiplier(p model.Priority) decimal.Decimal {
	switch p {
	case model.PriorityLow:
		return decimal.NewFromInt(1)
	case model.PriorityHigh:
		return e.cfg.BaseFeeMultiplier.Mul(highTierBoost)
	default:
		return e.cfg.BaseFeeMultiplier
	}
}

func (e *Estimator) priorityMultiplier(p model.Priority) decimal.Decimal {
	if p == model.PriorityLow {
		return decimal.NewFromInt(1)
	}
	return e.cfg.PriorityFeeMultiplier
}

// weightedAverage weighs sample i (oldest first) by 1 + i/n.
func weightedAverage(vs []decimal.Decimal) decimal.Decimal {
	n := decimal.NewFromInt(int64(len(vs)))
	var sum, weights decimal.Decimal
	for i, v := range vs {
		w := decimal.NewFromInt(1).Add(decimal.NewFromInt(int64(i)).Div(n))
		sum = sum.Add(v.Mul(w))
		weights = weights.Add(w)
	}
	if weights.IsZero() {
		return decimal.Zero
	}
	return sum.Div(weights)
}

// percentile returns the element at floor(q*n) of the ascending sort.
func percentile(vs []decimal.Decimal, q decimal.Decimal) decimal.Decimal {
	if len(vs) == 0 {
		return decimal.Zero
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i].LessThan(vs[j]) })
	idx := int(q.Mul(decimal.NewFromInt(int64(len(vs)))).IntPart())
	if idx >= len(vs) {
		idx = len(vs) - 1
	}
	return vs[idx]
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
