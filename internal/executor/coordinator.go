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
	"github.com/0Papitchu/GBPBot-sub003/internal/ledger"
	"github.com/0Papitchu/GBPBot-sub003/internal/metrics"
	"github.com/0Papitchu/GBPBot-sub003/internal/retry"
	"github.com/0Papitchu/GBPBot-sub003/internal/tracing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FeeAdvisor supplies the fee parameters handed to a chain on submit and
// receives the outcome once the transaction resolves.
type FeeAdvisor interface {
	GetFeeParams(ctx context.Context, priority model.Priority) model.FeeEstimate
	ApplyMultiplier(est model.FeeEstimate, m decimal.Decimal) model.FeeEstimate
	RecordOutcome(success bool, unitsUsed uint64, baseFeeUsed, priorityFeeUsed decimal.Decimal)
}

// SendRequest is one submission. An empty Priority means medium.
type SendRequest struct {
	Chain               model.Chain
	Payload             []byte
	Priority            model.Priority
	WaitForConfirmation bool
	Callback            ledger.Callback
}

type SendResult struct {
	ID   string
	Hash string
}

// Coordinator turns a send request into a ledger entry plus a chain submit.
type Coordinator struct {
	cfg      Config
	ledger   *ledger.Ledger
	registry *chain.Registry
	fees     FeeAdvisor
	alerter  alert.Alerter

	breakersMu sync.Mutex
	breakers   map[model.Chain]*circuitbreaker.Breaker

	// fee parameters used per in-flight id, reported to fees on resolution
	submitted sync.Map

	newID  func() string
	nowFn  func() time.Time
	tracer trace.Tracer
	logger *slog.Logger
}

func NewCoordinator(cfg Config, l *ledger.Ledger, registry *chain.Registry, fees FeeAdvisor, alerter alert.Alerter, logger *slog.Logger) *Coordinator {
	if alerter == nil {
		alerter = &alert.NoopAlerter{}
	}
	c := &Coordinator{
		cfg:      cfg.withDefaults(),
		ledger:   l,
		registry: registry,
		fees:     fees,
		alerter:  alerter,
		breakers: make(map[model.Chain]*circuitbreaker.Breaker),
		newID:    func() string { return uuid.NewString() },
		nowFn:    time.Now,
		tracer:   tracing.Tracer("executor"),
		logger:   logger.With("component", "coordinator"),
	}
	l.AddTerminalHook(c.recordOutcome)
	return c
}

// Send records the transaction, submits it and, when asked to, waits until
// the poller resolves it. Unsupported chains are rejected before anything
// is recorded, so the returned id is empty in that case.
func (c *Coordinator) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if req.Priority == "" {
		req.Priority = model.PriorityMedium
	}
	ctx, span := c.tracer.Start(ctx, "executor.Send", trace.WithAttributes(
		attribute.String("chain", req.Chain.String()),
		attribute.String("priority", req.Priority.String()),
		attribute.Bool("wait", req.WaitForConfirmation),
	))
	defer span.End()

	res, err := c.send(ctx, req)
	if res.ID != "" {
		span.SetAttributes(attribute.String("tx_id", res.ID))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (c *Coordinator) send(ctx context.Context, req SendRequest) (SendResult, error) {
	h, ok := c.registry.Get(req.Chain)
	if !ok {
		return SendResult{}, &UnsupportedChainError{Chain: req.Chain}
	}

	id := c.newID()
	entry := model.PendingEntry{
		ID:        id,
		Chain:     req.Chain,
		Priority:  req.Priority,
		CreatedAt: c.nowFn(),
	}
	if err := c.ledger.Insert(entry); err != nil {
		return SendResult{}, fmt.Errorf("record transaction: %w", err)
	}
	if req.Callback != nil {
		if _, err := c.ledger.RegisterCallback(id, req.Callback); err != nil {
			c.logger.Warn("register callback failed", "tx_id", id, "error", err)
		}
	}

	hash, err := c.submit(ctx, h, id, req)
	if err != nil {
		c.submitted.Delete(id)
		status := model.TxStatusFailed
		if errors.Is(err, ErrSubmitTimeout) {
			status = model.TxStatusTimeout
		}
		if terr := c.ledger.Transition(id, status, err.Error(), nil); terr != nil {
			c.logger.Warn("mark failed submission", "tx_id", id, "error", terr)
		}
		return SendResult{ID: id}, &SubmissionError{TxID: id, Chain: req.Chain, Err: err}
	}
	if err := c.ledger.SetHash(id, hash); err != nil {
		// Resolved while the broadcast was in flight; the hash is not tracked.
		c.submitted.Delete(id)
		return SendResult{ID: id, Hash: hash}, fmt.Errorf("record hash for %s: %w", id, err)
	}
	c.logger.Info("transaction submitted",
		"tx_id", id,
		"chain", req.Chain,
		"priority", req.Priority,
		"hash", hash,
	)

	res := SendResult{ID: id, Hash: hash}
	if !req.WaitForConfirmation {
		return res, nil
	}
	return res, c.wait(ctx, id, hash)
}

// submit broadcasts the payload, retrying transient errors until the chain
// timeout measured from now. The fee estimate is tracked before the first
// attempt so the outcome is reported however the entry resolves.
func (c *Coordinator) submit(ctx context.Context, h chain.Handler, id string, req SendRequest) (string, error) {
	est := c.fees.GetFeeParams(ctx, req.Priority)
	est = c.fees.ApplyMultiplier(est, c.cfg.feeMultiplier(req.Priority))
	c.submitted.Store(id, est)

	chainLabel := req.Chain.String()
	br := c.breaker(req.Chain)
	policy := retry.Policy{
		MaxRetries: c.cfg.MaxRetries,
		Delay:      c.cfg.RetryDelay,
		OnRetry: func(attempt int, err error) {
			metrics.TxSubmitRetries.WithLabelValues(chainLabel).Inc()
			c.logger.Warn("submit failed, retrying",
				"tx_id", id,
				"chain", req.Chain,
				"attempt", attempt,
				"error", err,
			)
		},
	}

	submitCtx, cancel := context.WithTimeout(ctx, c.cfg.timeoutFor(req.Chain))
	defer cancel()

	start := time.Now()
	var hash string
	attempts := 0
	err := retry.Do(submitCtx, policy, func(ctx context.Context) error {
		attempts++
		return br.Execute(func() error {
			var err error
			hash, err = h.Submit(ctx, req.Payload, est)
			if err != nil && attempts > 1 && retry.IsDuplicateBroadcast(err) {
				return c.recoverDuplicate(h, id, req.Payload, &hash, err)
			}
			return err
		})
	})
	metrics.TxSubmitLatency.WithLabelValues(chainLabel).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TxSubmitErrors.WithLabelValues(chainLabel, retry.Classify(err).Reason).Inc()
		if ctx.Err() == nil && errors.Is(submitCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", ErrSubmitTimeout, err)
		}
		return "", err
	}
	metrics.TxSubmittedTotal.WithLabelValues(chainLabel, req.Priority.String()).Inc()
	return hash, nil
}

// recoverDuplicate handles a retry rejected because an earlier attempt that
// reported an error did reach the node. The hash is derived from the payload.
func (c *Coordinator) recoverDuplicate(h chain.Handler, id string, payload []byte, hash *string, dupErr error) error {
	derived, err := h.PayloadHash(payload)
	if err != nil {
		c.logger.Warn("derive hash of duplicate broadcast", "tx_id", id, "error", err)
		return dupErr
	}
	c.logger.Info("earlier broadcast accepted", "tx_id", id, "hash", derived, "rejection", dupErr)
	*hash = derived
	return nil
}

// wait polls the ledger until id resolves, the wait timeout expires or ctx
// is done. Expiry leaves the entry pending for the poller to resolve.
func (c *Coordinator) wait(ctx context.Context, id, hash string) error {
	start := time.Now()
	deadline := time.NewTimer(c.cfg.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.cfg.WaitPollInterval)
	defer ticker.Stop()

	for {
		status, details := c.ledger.GetStatus(id)
		switch {
		case status == model.TxStatusConfirmed:
			return nil
		case status == model.TxStatusUnknown:
			return fmt.Errorf("transaction %s is no longer tracked", id)
		case status.IsTerminal():
			return terminalError(details.Entry)
		}

		select {
		case <-ctx.Done():
			return &WaitTimeoutError{TxID: id, Hash: hash, Waited: time.Since(start), Context: ctx.Err()}
		case <-deadline.C:
			metrics.TxWaitTimeouts.WithLabelValues(details.Entry.Chain.String()).Inc()
			return &WaitTimeoutError{TxID: id, Hash: hash, Waited: time.Since(start)}
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) breaker(ch model.Chain) *circuitbreaker.Breaker {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()
	if b, ok := c.breakers[ch]; ok {
		return b
	}
	b := circuitbreaker.New(circuitbreaker.Config{
		Name:             ch.String(),
		FailureThreshold: c.cfg.BreakerFailureThreshold,
		OpenTimeout:      c.cfg.BreakerOpenTimeout,
		OnStateChange:    c.onBreakerStateChange,
		IsFailure: func(err error) bool {
			return err != nil && retry.Classify(err).IsTransient()
		},
	})
	c.breakers[ch] = b
	metrics.CircuitBreakerState.WithLabelValues(ch.String()).Set(float64(circuitbreaker.StateClosed))
	return b
}

// onBreakerStateChange runs under the breaker lock, so alerts go out on
// their own goroutine.
func (c *Coordinator) onBreakerStateChange(name string, from, to circuitbreaker.State) {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	c.logger.Warn("circuit breaker state changed", "chain", name, "from", from.String(), "to", to.String())

	var a alert.Alert
	switch to {
	case circuitbreaker.StateOpen:
		a = alert.Alert{Type: alert.AlertTypeCircuitOpen, Title: "Submission circuit opened"}
	case circuitbreaker.StateClosed:
		a = alert.Alert{Type: alert.AlertTypeCircuitClosed, Title: "Submission circuit closed"}
	default:
		return
	}
	a.Chain = name
	a.Network = c.cfg.Network
	a.Message = fmt.Sprintf("breaker moved from %s to %s", from, to)
	go c.sendAlert(a)
}

func (c *Coordinator) sendAlert(a alert.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.alerter.Send(ctx, a); err != nil {
		c.logger.Warn("send alert failed", "type", a.Type, "error", err)
	}
}

// recordOutcome reports a resolved submission to the fee advisor and alerts
// on anything that did not confirm.
func (c *Coordinator) recordOutcome(entry model.HistoryEntry) {
	if v, ok := c.submitted.LoadAndDelete(entry.ID); ok {
		est := v.(model.FeeEstimate)
		c.fees.RecordOutcome(entry.Status == model.TxStatusConfirmed, 0, est.MaxFeePerUnit, est.MaxPriorityFeePerUnit)
	}
	if a, ok := alert.ForTransaction(entry, c.cfg.Network); ok {
		go c.sendAlert(a)
	}
}

// BreakerState reports the submission breaker state for ch.
func (c *Coordinator) BreakerState(ch model.Chain) circuitbreaker.State {
	return c.breaker(ch).GetState()
}

func isNotPending(err error) bool {
	return errors.Is(err, ledger.ErrNotPending)
}
