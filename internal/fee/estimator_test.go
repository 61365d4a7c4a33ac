package fee

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	feemocks "github.com/0Papitchu/GBPBot-sub003/internal/fee/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func ds(vs ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vs))
	for i, v := range vs {
		out[i] = d(v)
	}
	return out
}

// expectBlocks makes src serve blocks indexed by number.
func expectBlocks(src *feemocks.MockBlockSource, blocks map[uint64]model.BlockFees) {
	src.EXPECT().BlockFees(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n uint64) (model.BlockFees, error) {
			b, ok := blocks[n]
			if !ok {
				return model.BlockFees{}, errors.New("not found")
			}
			return b, nil
		}).AnyTimes()
}

// seeded returns an estimator whose windows hold the given samples.
func seeded(cfg Config, bases, tips []decimal.Decimal) *Estimator {
	e := NewEstimator(cfg, nil, slog.Default())
	e.baseFees.Replace(bases)
	e.priorityFees.Replace(tips)
	return e
}

func TestEstimator_EmptyWindowReturnsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEstimator(cfg, nil, slog.Default())

	for _, p := range model.Priorities() {
		est := e.GetFeeParams(context.Background(), p)
		assert.True(t, est.MaxFeePerUnit.Equal(cfg.MaxBaseFee), "priority %s", p)
		assert.True(t, est.MaxPriorityFeePerUnit.Equal(cfg.MinPriorityFee), "priority %s", p)
	}
}

func TestEstimator_OneEmptyWindowReturnsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	e := seeded(cfg, ds(30, 40), nil)

	est := e.GetFeeParams(context.Background(), model.PriorityHigh)
	assert.True(t, est.MaxFeePerUnit.Equal(cfg.MaxBaseFee))
	assert.True(t, est.MaxPriorityFeePerUnit.Equal(cfg.MinPriorityFee))
}

func TestEstimator_RefreshAndCompute(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := feemocks.NewMockBlockSource(ctrl)

	cfg := DefaultConfig()
	cfg.HistorySize = 3
	src.EXPECT().LatestBlockNumber(gomock.Any()).Return(uint64(102), nil)
	expectBlocks(src, map[uint64]model.BlockFees{
		100: {Number: 100, BaseFeePerUnit: d(10), PriorityFees: ds(1, 2)},
		101: {Number: 101, BaseFeePerUnit: d(20), PriorityFees: ds(3)},
		102: {Number: 102, BaseFeePerUnit: d(30), PriorityFees: ds(4, 5)},
	})

	e := NewEstimator(cfg, src, slog.Default())
	require.NoError(t, e.Refresh(context.Background()))

	assert.Equal(t, ds(10, 20, 30), e.baseFees.Values())
	assert.Len(t, e.priorityFees.Values(), 3, "priority window is capped at the history size")

	// Weights 1, 4/3, 5/3 -> (10 + 80/3 + 150/3) / 4 = 21.666...
	low := e.GetFeeParams(context.Background(), model.PriorityLow)
	assert.InDelta(t, 21.6667, low.MaxFeePerUnit.InexactFloat64(), 0.001)
	assert.InDelta(t, 5.0, low.MaxPriorityFeePerUnit.InexactFloat64(), 1e-9, "p75 of [3 4 5]")

	med := e.GetFeeParams(context.Background(), model.PriorityMedium)
	assert.InDelta(t, 21.6667*1.125, med.MaxFeePerUnit.InexactFloat64(), 0.001)
	assert.InDelta(t, 7.5, med.MaxPriorityFeePerUnit.InexactFloat64(), 1e-9)

	high := e.GetFeeParams(context.Background(), model.PriorityHigh)
	assert.InDelta(t, 21.6667*1.125*1.2, high.MaxFeePerUnit.InexactFloat64(), 0.001)
	assert.InDelta(t, 7.5, high.MaxPriorityFeePerUnit.InexactFloat64(), 1e-9)
}

func TestEstimator_RefreshNearGenesis(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := feemocks.NewMockBlockSource(ctrl)

	src.EXPECT().LatestBlockNumber(gomock.Any()).Return(uint64(1), nil)
	expectBlocks(src, map[uint64]model.BlockFees{
		0: {BaseFeePerUnit: d(1), PriorityFees: ds(1)},
		1: {Number: 1, BaseFeePerUnit: d(2), PriorityFees: ds(1)},
	})

	e := NewEstimator(DefaultConfig(), src, slog.Default())
	require.NoError(t, e.Refresh(context.Background()))
	assert.Equal(t, 2, e.baseFees.Len())
}

func TestEstimator_PriorityMonotonicAndCapped(t *testing.T) {
	cfg := DefaultConfig()
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(cfg.HistorySize)
		bases := make([]decimal.Decimal, n)
		tips := make([]decimal.Decimal, n)
		for i := range bases {
			bases[i] = d(rng.Float64() * 800)
			tips[i] = d(rng.Float64() * 20)
		}
		e := seeded(cfg, bases, tips)

		low := e.GetFeeParams(context.Background(), model.PriorityLow)
		med := e.GetFeeParams(context.Background(), model.PriorityMedium)
		high := e.GetFeeParams(context.Background(), model.PriorityHigh)

		assert.True(t, low.MaxFeePerUnit.LessThanOrEqual(med.MaxFeePerUnit), "round %d low > medium", round)
		assert.True(t, med.MaxFeePerUnit.LessThanOrEqual(high.MaxFeePerUnit), "round %d medium > high", round)
		for _, est := range []model.FeeEstimate{low, med, high} {
			assert.True(t, est.Total().LessThanOrEqual(cfg.MaxTotalFee), "round %d total %s", round, est.Total())
			assert.True(t, est.MaxFeePerUnit.LessThanOrEqual(cfg.MaxBaseFee))
		}
	}
}

func TestEstimator_BindingTotalCapKeepsTotalsOrdered(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTotalFee = d(100)
	cfg.MaxPriorityFee = d(100)
	rng := rand.New(rand.NewSource(11))

	capped := 0
	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(cfg.HistorySize)
		bases := make([]decimal.Decimal, n)
		tips := make([]decimal.Decimal, n)
		for i := range bases {
			bases[i] = d(rng.Float64() * 120)
			tips[i] = d(rng.Float64() * 80)
		}
		e := seeded(cfg, bases, tips)

		low := e.GetFeeParams(context.Background(), model.PriorityLow)
		med := e.GetFeeParams(context.Background(), model.PriorityMedium)
		high := e.GetFeeParams(context.Background(), model.PriorityHigh)

		assert.True(t, low.Total().LessThanOrEqual(med.Total()), "round %d low total > medium", round)
		assert.True(t, med.Total().LessThanOrEqual(high.Total()), "round %d medium total > high", round)
		for _, est := range []model.FeeEstimate{low, med, high} {
			assert.True(t, est.Total().LessThanOrEqual(cfg.MaxTotalFee), "round %d total %s", round, est.Total())
			if est.Total().Equal(cfg.MaxTotalFee) {
				capped++
			}
		}
	}
	assert.Positive(t, capped, "the cap must bind in some rounds")
}

func TestEstimator_BindingTotalCapCanLowerHigherTierBase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTotalFee = d(100)
	cfg.MaxPriorityFee = d(100)
	e := seeded(cfg, ds(50), ds(40))

	// low is uncapped at 50+40; medium's 56.25+60 is scaled into 100, and
	// its larger tip share pushes the base below low's.
	low := e.GetFeeParams(context.Background(), model.PriorityLow)
	med := e.GetFeeParams(context.Background(), model.PriorityMedium)
	assert.True(t, low.Total().Equal(d(90)), "low total %s", low.Total())
	assert.True(t, med.Total().Equal(d(100)), "medium total %s", med.Total())
	assert.True(t, med.MaxFeePerUnit.LessThan(low.MaxFeePerUnit))
	assert.True(t, med.MaxPriorityFeePerUnit.GreaterThan(low.MaxPriorityFeePerUnit))
}

func TestEstimator_TotalCapScalesProportionally(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTotalFee = d(30)
	e := seeded(cfg, ds(40, 40), ds(8, 8))

	// low: base 40, tip 8 -> sum 48 scaled to 30.
	est := e.GetFeeParams(context.Background(), model.PriorityLow)
	assert.True(t, est.Total().Equal(d(30)), "total %s", est.Total())
	assert.InDelta(t, 25.0, est.MaxFeePerUnit.InexactFloat64(), 1e-9)
	assert.InDelta(t, 5.0, est.MaxPriorityFeePerUnit.InexactFloat64(), 1e-9)
}

func TestEstimator_PriorityFeeClamped(t *testing.T) {
	cfg := DefaultConfig()
	e := seeded(cfg, ds(10), ds(0.01, 0.01))
	est := e.GetFeeParams(context.Background(), model.PriorityLow)
	assert.True(t, est.MaxPriorityFeePerUnit.Equal(cfg.MinPriorityFee))

	e = seeded(cfg, ds(10), ds(50, 60))
	est = e.GetFeeParams(context.Background(), model.PriorityHigh)
	assert.True(t, est.MaxPriorityFeePerUnit.Equal(cfg.MaxPriorityFee))
}

func TestEstimator_StaleWindowRefreshesOncePerInterval(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := feemocks.NewMockBlockSource(ctrl)

	cfg := DefaultConfig()
	cfg.HistorySize = 1
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	src.EXPECT().LatestBlockNumber(gomock.Any()).Return(uint64(5), nil).Times(2)
	expectBlocks(src, map[uint64]model.BlockFees{5: {Number: 5, BaseFeePerUnit: d(10), PriorityFees: ds(1)}})

	e := NewEstimator(cfg, src, slog.Default())
	e.nowFn = func() time.Time { return now }

	e.GetFeeParams(context.Background(), model.PriorityMedium)
	e.GetFeeParams(context.Background(), model.PriorityMedium)

	now = now.Add(cfg.UpdateInterval)
	e.GetFeeParams(context.Background(), model.PriorityMedium)
}

func TestEstimator_RefreshErrorKeepsPreviousSamples(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := feemocks.NewMockBlockSource(ctrl)

	cfg := DefaultConfig()
	cfg.HistorySize = 1
	gomock.InOrder(
		src.EXPECT().LatestBlockNumber(gomock.Any()).Return(uint64(5), nil),
		src.EXPECT().LatestBlockNumber(gomock.Any()).Return(uint64(0), errors.New("http status 503")),
	)
	expectBlocks(src, map[uint64]model.BlockFees{5: {Number: 5, BaseFeePerUnit: d(10), PriorityFees: ds(1)}})

	var observed []error
	e := NewEstimator(cfg, src, slog.Default())
	e.SetRefreshObserver(func(err error, _ time.Duration) { observed = append(observed, err) })

	require.NoError(t, e.Refresh(context.Background()))
	require.Error(t, e.Refresh(context.Background()))

	assert.Equal(t, ds(10), e.baseFees.Values())
	require.Len(t, observed, 2)
	assert.NoError(t, observed[0])
	assert.Error(t, observed[1])
}

func TestEstimator_BlockErrorFailsWholeRefresh(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := feemocks.NewMockBlockSource(ctrl)

	cfg := DefaultConfig()
	cfg.HistorySize = 3
	src.EXPECT().LatestBlockNumber(gomock.Any()).Return(uint64(10), nil)
	expectBlocks(src, map[uint64]model.BlockFees{10: {Number: 10, BaseFeePerUnit: d(10)}})

	e := NewEstimator(cfg, src, slog.Default())
	require.Error(t, e.Refresh(context.Background()))
	assert.Equal(t, 0, e.baseFees.Len())
}

func TestEstimator_EstimateCost(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEstimator(cfg, nil, slog.Default())

	cost := e.EstimateCost(context.Background(), 21000, model.PriorityLow)
	assert.True(t, cost.Equal(cfg.MaxBaseFee.Mul(decimal.NewFromInt(21000))))

	huge := uint64(1) << 63
	cost = e.EstimateCost(context.Background(), huge, model.PriorityLow)
	assert.True(t, cost.IsPositive())
	assert.True(t, cost.Equal(decimal.NewFromUint64(huge).Mul(cfg.MaxBaseFee)), cost.String())
}

func TestEstimator_ApplyMultiplier(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTotalFee = d(100)
	e := NewEstimator(cfg, nil, slog.Default())

	est := model.FeeEstimate{MaxFeePerUnit: d(40), MaxPriorityFeePerUnit: d(10)}
	assert.Equal(t, est, e.ApplyMultiplier(est, decimal.NewFromInt(1)))

	doubled := e.ApplyMultiplier(est, d(1.5))
	assert.InDelta(t, 60.0, doubled.MaxFeePerUnit.InexactFloat64(), 1e-9)
	assert.InDelta(t, 15.0, doubled.MaxPriorityFeePerUnit.InexactFloat64(), 1e-9)

	capped := e.ApplyMultiplier(est, d(4))
	assert.True(t, capped.Total().Equal(d(100)))
}

func TestEstimator_RecordOutcome(t *testing.T) {
	e := NewEstimator(DefaultConfig(), nil, slog.Default())
	assert.Equal(t, 1.0, e.SuccessRate())

	e.RecordOutcome(true, 21000, d(30), d(2))
	e.RecordOutcome(true, 21000, d(30), d(2))
	e.RecordOutcome(false, 50000, d(30), d(2))
	e.RecordOutcome(true, 21000, d(30), d(2))

	total, failed := e.Stats()
	assert.Equal(t, int64(4), total)
	assert.Equal(t, int64(1), failed)
	assert.InDelta(t, 0.75, e.SuccessRate(), 1e-9)

	// Outcomes never touch the sample windows.
	assert.Equal(t, 0, e.baseFees.Len())
}

func TestEstimator_RunRetriesAfterFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := feemocks.NewMockBlockSource(ctrl)

	cfg := DefaultConfig()
	cfg.HistorySize = 1
	cfg.RetryBackoff = 5 * time.Millisecond
	cfg.UpdateInterval = time.Hour

	gomock.InOrder(
		src.EXPECT().LatestBlockNumber(gomock.Any()).Return(uint64(0), errors.New("connection refused")),
		src.EXPECT().LatestBlockNumber(gomock.Any()).Return(uint64(3), nil).AnyTimes(),
	)
	expectBlocks(src, map[uint64]model.BlockFees{3: {Number: 3, BaseFeePerUnit: d(10), PriorityFees: ds(1)}})

	var mu sync.Mutex
	var outcomes []error
	e := NewEstimator(cfg, src, slog.Default())
	e.SetRefreshObserver(func(err error, _ time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, err)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(outcomes) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Error(t, outcomes[0])
	assert.NoError(t, outcomes[1])
}

func TestEstimator_RunWithoutSource(t *testing.T) {
	e := NewEstimator(DefaultConfig(), nil, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, e.Run(ctx))
}

func TestPercentile(t *testing.T) {
	assert.True(t, percentile(ds(5, 1, 3, 2), percentile75).Equal(d(5)), "floor(0.75*4)=3")
	assert.True(t, percentile(ds(7), percentile75).Equal(d(7)))
	assert.True(t, percentile(nil, percentile75).IsZero())
}

func TestWeightedAverage_FavoursRecent(t *testing.T) {
	avg := weightedAverage(ds(10, 20))
	// Weights 1 and 1.5 -> (10 + 30) / 2.5 = 16.
	assert.True(t, avg.Equal(d(16)), "avg %s", avg)
}
