package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/0Papitchu/GBPBot-sub003/internal/alert"
	"github.com/0Papitchu/GBPBot-sub003/internal/chain"
	"github.com/0Papitchu/GBPBot-sub003/internal/circuitbreaker"
	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	"github.com/0Papitchu/GBPBot-sub003/internal/fee"
	"github.com/0Papitchu/GBPBot-sub003/internal/ledger"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	loopFeeRefresh = "fee_refresh"
	loopPoller     = "poller"
)

var ErrAlreadyStarted = errors.New("engine already started")

// Engine owns the execution core: the coordinator on the caller's path and
// the fee refresh and confirmation poller loops in the background.
type Engine struct {
	cfg         Config
	ledger      *ledger.Ledger
	registry    *chain.Registry
	fees        *fee.Estimator
	coordinator *Coordinator
	poller      *Poller
	health      map[string]*LoopHealth
	alerter     alert.Alerter
	logger      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

func NewEngine(cfg Config, l *ledger.Ledger, registry *chain.Registry, fees *fee.Estimator, alerter alert.Alerter, logger *slog.Logger) *Engine {
	if alerter == nil {
		alerter = &alert.NoopAlerter{}
	}
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:         cfg,
		ledger:      l,
		registry:    registry,
		fees:        fees,
		coordinator: NewCoordinator(cfg, l, registry, fees, alerter, logger),
		poller:      NewPoller(cfg, l, registry, logger),
		health: map[string]*LoopHealth{
			loopFeeRefresh: NewLoopHealth(loopFeeRefresh),
			loopPoller:     NewLoopHealth(loopPoller),
		},
		alerter: alerter,
		logger:  logger.With("component", "engine"),
	}
	fees.SetRefreshObserver(func(err error, took time.Duration) {
		e.observe(loopFeeRefresh, err, took)
	})
	e.poller.SetCycleObserver(func(_ CycleReport, err error, took time.Duration) {
		e.observe(loopPoller, err, took)
	})
	return e
}

// Start launches the background loops. They stop when ctx is done or Stop
// is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.fees.Run(gctx); err != nil {
			return fmt.Errorf("fee refresh loop: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := e.poller.Run(gctx); err != nil {
			return fmt.Errorf("confirmation poller: %w", err)
		}
		return nil
	})

	done := make(chan struct{})
	go func() {
		err := g.Wait()
		e.mu.Lock()
		e.runErr = err
		e.mu.Unlock()
		close(done)
	}()

	e.cancel = cancel
	e.done = done
	e.logger.Info("engine started",
		"poll_interval", e.cfg.PollInterval,
		"timeout", e.cfg.Timeout,
		"max_history_size", e.ledger.MaxHistorySize(),
	)
	return nil
}

// Stop cancels both loops and waits for them to return. Calling Stop on an
// engine that was never started is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger.Info("engine stopped", "pending", e.ledger.PendingCount())
	return e.runErr
}

// Done is closed once the background loops have returned.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

func (e *Engine) observe(loop string, err error, took time.Duration) {
	h := e.health[loop]
	if err == nil {
		if h.RecordSuccess(took) {
			e.logger.Info("loop recovered", "loop", loop)
			go e.coordinator.sendAlert(alert.Alert{
				Type:    alert.AlertTypeLoopRecovered,
				Network: e.cfg.Network,
				Title:   "Background loop recovered",
				Fields:  map[string]string{"loop": loop},
			})
		}
		return
	}
	if h.RecordFailure(err) {
		e.logger.Error("loop unhealthy", "loop", loop, "error", err)
		go e.coordinator.sendAlert(alert.Alert{
			Type:    alert.AlertTypeLoopUnhealthy,
			Network: e.cfg.Network,
			Title:   "Background loop unhealthy",
			Message: err.Error(),
			Fields:  map[string]string{"loop": loop},
		})
	}
}

// Healthy is false when either background loop has crossed its failure
// threshold.
func (e *Engine) Healthy() bool {
	for _, h := range e.health {
		if !h.Healthy() {
			return false
		}
	}
	return true
}

// Health returns a snapshot per background loop, fee refresh first.
func (e *Engine) Health() []HealthSnapshot {
	return []HealthSnapshot{
		e.health[loopFeeRefresh].Snapshot(),
		e.health[loopPoller].Snapshot(),
	}
}

func (e *Engine) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	return e.coordinator.Send(ctx, req)
}

// GetStatus never fails; ids it has never seen report Unknown.
func (e *Engine) GetStatus(id string) (model.TxStatus, *model.TxDetails) {
	return e.ledger.GetStatus(id)
}

func (e *Engine) GetHistory(limit, offset int, chain model.Chain) []model.HistoryEntry {
	return e.ledger.GetHistory(limit, offset, chain)
}

// MaxHistorySize reports the history bound currently in force.
func (e *Engine) MaxHistorySize() int {
	return e.ledger.MaxHistorySize()
}

func (e *Engine) RegisterCallback(id string, fn ledger.Callback) (ledger.CallbackID, error) {
	return e.ledger.RegisterCallback(id, fn)
}

func (e *Engine) UnregisterCallback(id string, cbID ledger.CallbackID) {
	e.ledger.UnregisterCallback(id, cbID)
}

func (e *Engine) GetFeeParams(ctx context.Context, priority model.Priority) model.FeeEstimate {
	return e.fees.GetFeeParams(ctx, priority)
}

func (e *Engine) EstimateCost(ctx context.Context, unitLimit uint64, priority model.Priority) decimal.Decimal {
	return e.fees.EstimateCost(ctx, unitLimit, priority)
}

func (e *Engine) RecordOutcome(success bool, unitsUsed uint64, baseFeeUsed, priorityFeeUsed decimal.Decimal) {
	e.fees.RecordOutcome(success, unitsUsed, baseFeeUsed, priorityFeeUsed)
}

// Coordinator exposes the submission path, e.g. for breaker inspection.
func (e *Engine) Coordinator() *Coordinator {
	return e.coordinator
}

// Breakers reports the submission breaker state of every registered chain.
func (e *Engine) Breakers() map[model.Chain]circuitbreaker.State {
	out := make(map[model.Chain]circuitbreaker.State)
	for _, c := range e.registry.Chains() {
		out[c] = e.coordinator.BreakerState(c)
	}
	return out
}

// Poller exposes the confirmation poller so a caller can run a cycle on demand.
func (e *Engine) Poller() *Poller {
	return e.poller
}
