package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0Papitchu/GBPBot-sub003/internal/chain"
	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	"github.com/0Papitchu/GBPBot-sub003/internal/ledger"
	"github.com/0Papitchu/GBPBot-sub003/internal/metrics"
	"github.com/0Papitchu/GBPBot-sub003/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// CycleReport summarises one poller cycle.
type CycleReport struct {
	Pending  int
	Checked  int
	Failed   int
	Resolved int
}

// Poller advances pending ledger entries toward a terminal state by asking
// each entry's chain handler for its status.
type Poller struct {
	cfg      Config
	ledger   *ledger.Ledger
	registry *chain.Registry
	onCycle  func(report CycleReport, err error, took time.Duration)
	nowFn    func() time.Time
	tracer   trace.Tracer
	logger   *slog.Logger
}

func NewPoller(cfg Config, l *ledger.Ledger, registry *chain.Registry, logger *slog.Logger) *Poller {
	return &Poller{
		cfg:      cfg.withDefaults(),
		ledger:   l,
		registry: registry,
		nowFn:    time.Now,
		tracer:   tracing.Tracer("executor"),
		logger:   logger.With("component", "poller"),
	}
}

// SetCycleObserver registers fn to be told the outcome of every cycle.
func (p *Poller) SetCycleObserver(fn func(report CycleReport, err error, took time.Duration)) {
	p.onCycle = fn
}

// Run polls every PollInterval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("confirmation poller started", "interval", p.cfg.PollInterval)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("confirmation poller stopping")
			return nil
		case <-ticker.C:
			start := time.Now()
			report, err := p.Cycle(ctx)
			took := time.Since(start)
			if err != nil && ctx.Err() == nil {
				p.logger.Warn("poll cycle failed", "error", err, "checked", report.Checked)
			}
			if p.onCycle != nil && ctx.Err() == nil {
				p.onCycle(report, err, took)
			}
		}
	}
}

// Cycle checks every entry of a pending snapshot once. Per-entry errors are
// logged and leave the entry pending; the returned error is non-nil only
// when every chain lookup in the cycle failed.
func (p *Poller) Cycle(ctx context.Context) (CycleReport, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "executor.PollCycle")
	defer span.End()

	snapshot := p.ledger.Snapshot()
	now := p.nowFn()
	report := CycleReport{Pending: len(snapshot)}

	var checked, failed, resolved atomic.Int64
	var (
		errMu   sync.Mutex
		lastErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.PollConcurrency)
	for _, entry := range snapshot {
		entry := entry
		g.Go(func() error {
			looked, done, err := p.check(gctx, entry, now)
			if looked {
				checked.Add(1)
			}
			if done {
				resolved.Add(1)
			}
			if err != nil {
				failed.Add(1)
				errMu.Lock()
				lastErr = err
				errMu.Unlock()
				metrics.PollerCheckErrors.WithLabelValues(entry.Chain.String()).Inc()
				p.logger.Warn("status check failed",
					"tx_id", entry.ID,
					"chain", entry.Chain,
					"hash", entry.Hash,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Checked = int(checked.Load())
	report.Failed = int(failed.Load())
	report.Resolved = int(resolved.Load())

	metrics.PollerCyclesTotal.Inc()
	metrics.PollerCycleLatency.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("pending", report.Pending),
		attribute.Int("checked", report.Checked),
		attribute.Int("resolved", report.Resolved),
	)
	p.logger.Debug("poll cycle complete",
		"pending", report.Pending,
		"checked", report.Checked,
		"failed", report.Failed,
		"resolved", report.Resolved,
	)

	if report.Checked > 0 && report.Failed >= report.Checked {
		return report, fmt.Errorf("all %d status checks failed, last: %w", report.Failed, lastErr)
	}
	return report, nil
}

// check advances one entry. looked reports whether the chain was queried,
// done whether the entry reached a terminal state.
func (p *Poller) check(ctx context.Context, entry model.PendingEntry, now time.Time) (looked, done bool, err error) {
	if entry.Status.IsTerminal() {
		return false, false, nil
	}
	// Submission still in flight. The coordinator bounds it and resolves
	// the entry itself if it never gets a hash.
	if entry.Hash == "" {
		return false, false, nil
	}
	if now.Sub(entry.CreatedAt) > p.cfg.timeoutFor(entry.Chain) {
		return false, p.transition(entry, model.TxStatusTimeout, "expired", nil), nil
	}

	h, ok := p.registry.Get(entry.Chain)
	if !ok {
		return false, false, &UnsupportedChainError{Chain: entry.Chain}
	}
	st, err := h.PollStatus(ctx, entry.Hash)
	if err != nil {
		return true, false, fmt.Errorf("poll %s: %w", entry.Hash, err)
	}
	if st == nil || !st.Found {
		return true, false, nil
	}
	if st.Failed() {
		return true, p.transition(entry, model.TxStatusFailed, st.Err, st.Result(entry.Hash)), nil
	}

	if st.Confirmations != entry.ConfirmationCount {
		if err := p.ledger.SetConfirmations(entry.ID, st.Confirmations); err != nil && !isNotPending(err) {
			return true, false, fmt.Errorf("record confirmations: %w", err)
		}
	}
	if st.Confirmations >= p.cfg.requiredConfirmations(entry.Chain) {
		return true, p.transition(entry, model.TxStatusConfirmed, "", st.Result(entry.Hash)), nil
	}
	return true, false, nil
}

// transition reports whether this call resolved the entry. Losing a race
// with another resolver is not an error.
func (p *Poller) transition(entry model.PendingEntry, status model.TxStatus, errMsg string, result *model.Result) bool {
	err := p.ledger.Transition(entry.ID, status, errMsg, result)
	if err == nil {
		return true
	}
	if !isNotPending(err) {
		p.logger.Warn("transition failed", "tx_id", entry.ID, "status", status, "error", err)
	}
	return false
}
