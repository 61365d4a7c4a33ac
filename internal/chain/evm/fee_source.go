package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/0Papitchu/GBPBot-sub003/internal/chain/ratelimit"
	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	"github.com/0Papitchu/GBPBot-sub003/internal/fee"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// FeeSource samples EIP-1559 fee market data, denominated in gwei.
type FeeSource struct {
	chain   model.Chain
	backend Backend
	limiter *ratelimit.Limiter
}

var _ fee.BlockSource = (*FeeSource)(nil)

func NewFeeSource(c model.Chain, backend Backend, limiter *ratelimit.Limiter) *FeeSource {
	return &FeeSource{chain: c, backend: backend, limiter: limiter}
}

func (s *FeeSource) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.limiter.Do(ctx, s.chain.String(), "eth_blockNumber", func(ctx context.Context) error {
		var err error
		n, err = s.backend.BlockNumber(ctx)
		return err
	})
	return n, err
}

func (s *FeeSource) BlockFees(ctx context.Context, number uint64) (model.BlockFees, error) {
	var block *types.Block
	err := s.limiter.Do(ctx, s.chain.String(), "eth_getBlockByNumber", func(ctx context.Context) error {
		var err error
		block, err = s.backend.BlockByNumber(ctx, new(big.Int).SetUint64(number))
		return err
	})
	if err != nil {
		return model.BlockFees{}, err
	}
	if block == nil {
		return model.BlockFees{}, fmt.Errorf("block %d not found", number)
	}

	baseFee := block.BaseFee()
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	return model.BlockFees{
		Number:         block.NumberU64(),
		BaseFeePerUnit: weiToGwei(baseFee),
		PriorityFees:   priorityFees(baseFee, block.Transactions()),
	}, nil
}

// priorityFees returns the effective tip of every transaction whose fee cap
// covers baseFee.
func priorityFees(baseFee *big.Int, txs types.Transactions) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(txs))
	for _, tx := range txs {
		tip, err := tx.EffectiveGasTip(baseFee)
		if err != nil {
			continue
		}
		out = append(out, weiToGwei(tip))
	}
	return out
}
