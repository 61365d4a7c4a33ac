package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/0Papitchu/GBPBot-sub003/internal/alert"
	"github.com/0Papitchu/GBPBot-sub003/internal/chain"
	chainmocks "github.com/0Papitchu/GBPBot-sub003/internal/chain/mocks"
	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	"github.com/0Papitchu/GBPBot-sub003/internal/fee"
	"github.com/0Papitchu/GBPBot-sub003/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (r *recordingAlerter) Send(_ context.Context, a alert.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordingAlerter) has(typ alert.AlertType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.alerts {
		if a.Type == typ {
			return true
		}
	}
	return false
}

type harness struct {
	sol    *chainmocks.MockHandler
	eth    *chainmocks.MockHandler
	ledger *ledger.Ledger
	fees   *fee.Estimator
	alerts *recordingAlerter
	engine *Engine
	coord  *Coordinator
	poller *Poller
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Network = "testnet"
	cfg.RetryDelay = 0
	cfg.WaitPollInterval = 5 * time.Millisecond
	cfg.RequiredConfirmations = map[model.Chain]int{model.ChainSolana: 1, model.ChainEthereum: 3}
	return cfg
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)

	sol := chainmocks.NewMockHandler(ctrl)
	sol.EXPECT().Chain().Return(model.ChainSolana).AnyTimes()
	eth := chainmocks.NewMockHandler(ctrl)
	eth.EXPECT().Chain().Return(model.ChainEthereum).AnyTimes()

	feeCfg := fee.DefaultConfig()
	feeCfg.MaxBaseFee = decimal.NewFromInt(100)
	feeCfg.MinPriorityFee = decimal.NewFromInt(1)

	h := &harness{
		sol:    sol,
		eth:    eth,
		ledger: ledger.New(100, slog.Default()),
		fees:   fee.NewEstimator(feeCfg, nil, slog.Default()),
		alerts: &recordingAlerter{},
	}
	h.engine = NewEngine(cfg, h.ledger, chain.NewRegistry(sol, eth), h.fees, h.alerts, slog.Default())
	h.coord = h.engine.Coordinator()
	h.poller = h.engine.Poller()

	ids := 0
	h.coord.newID = func() string {
		ids++
		return fmt.Sprintf("tx-%d", ids)
	}
	h.coord.nowFn = func() time.Time { return t0 }
	h.poller.nowFn = func() time.Time { return t0.Add(time.Second) }
	return h
}

// insertPending records an entry directly, bypassing submission.
func (h *harness) insertPending(t *testing.T, id string, c model.Chain, hash string, created time.Time) {
	t.Helper()
	require.NoError(t, h.ledger.Insert(model.PendingEntry{
		ID:        id,
		Chain:     c,
		Priority:  model.PriorityMedium,
		CreatedAt: created,
	}))
	if hash != "" {
		require.NoError(t, h.ledger.SetHash(id, hash))
	}
}

// runPoller cycles the poller until the returned stop func is called.
func (h *harness) runPoller(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ctx.Err() == nil {
			_, _ = h.poller.Cycle(ctx)
			time.Sleep(2 * time.Millisecond)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func confirmed(confirmations int) *chain.ConfirmationStatus {
	return &chain.ConfirmationStatus{
		Found:         true,
		Confirmations: confirmations,
		BlockNumber:   1234,
		FeePaid:       decimal.NewFromInt(5000),
	}
}

func failedOnChain() *chain.ConfirmationStatus {
	return &chain.ConfirmationStatus{
		Found:       true,
		Err:         "custom program error: 0x1",
		BlockNumber: 1234,
		FeePaid:     decimal.NewFromInt(5000),
	}
}
