package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/0Papitchu/GBPBot-sub003/internal/chain"
	"github.com/0Papitchu/GBPBot-sub003/internal/chain/ratelimit"
	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// Backend is the subset of *ethclient.Client used by the handler and fee source.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

const revertedMessage = "execution reverted"

// Adapter submits and tracks transactions on one EVM chain.
type Adapter struct {
	chain   model.Chain
	backend Backend
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

var _ chain.Handler = (*Adapter)(nil)

func NewAdapter(c model.Chain, backend Backend, limiter *ratelimit.Limiter, logger *slog.Logger) *Adapter {
	return &Adapter{
		chain:   c,
		backend: backend,
		limiter: limiter,
		logger:  logger.With("chain", c.String()),
	}
}

func (a *Adapter) Chain() model.Chain {
	return a.chain
}

// Submit decodes a signed binary transaction and broadcasts it. Fee caps are
// part of the signed payload, so fee is only compared for diagnostics.
func (a *Adapter) Submit(ctx context.Context, payload []byte, fee model.FeeEstimate) (string, error) {
	tx, err := a.decode(payload)
	if err != nil {
		return "", err
	}

	if feeCap := weiToGwei(tx.GasFeeCap()); !fee.Total().IsZero() && feeCap.GreaterThan(fee.Total()) {
		a.logger.Warn("signed fee cap above recommended total",
			"hash", tx.Hash().Hex(),
			"gas_fee_cap_gwei", feeCap.String(),
			"recommended_gwei", fee.Total().String(),
		)
	}

	err = a.limiter.Do(ctx, a.chain.String(), "eth_sendRawTransaction", func(ctx context.Context) error {
		return a.backend.SendTransaction(ctx, tx)
	})
	if err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}

func (a *Adapter) PayloadHash(payload []byte) (string, error) {
	tx, err := a.decode(payload)
	if err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}

func (a *Adapter) decode(payload []byte) (*types.Transaction, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(payload); err != nil {
		return nil, fmt.Errorf("decode %s transaction: %w", a.chain, err)
	}
	return tx, nil
}

// PollStatus reads the receipt and derives confirmations from the head block.
func (a *Adapter) PollStatus(ctx context.Context, hash string) (*chain.ConfirmationStatus, error) {
	var receipt *types.Receipt
	err := a.limiter.Do(ctx, a.chain.String(), "eth_getTransactionReceipt", func(ctx context.Context) error {
		var err error
		receipt, err = a.backend.TransactionReceipt(ctx, common.HexToHash(hash))
		return err
	})
	if errors.Is(err, ethereum.NotFound) || (err == nil && receipt == nil) {
		return &chain.ConfirmationStatus{Found: false}, nil
	}
	if err != nil {
		return nil, err
	}

	out := &chain.ConfirmationStatus{Found: true}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Int64()
	}
	if receipt.Status == types.ReceiptStatusFailed {
		out.Err = revertedMessage
	}
	if receipt.EffectiveGasPrice != nil {
		paid := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.EffectiveGasPrice)
		out.FeePaid = decimal.NewFromBigInt(paid, 0)
	}

	var head uint64
	err = a.limiter.Do(ctx, a.chain.String(), "eth_blockNumber", func(ctx context.Context) error {
		var err error
		head, err = a.backend.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	out.Confirmations = confirmations(head, out.BlockNumber)

	if !out.Failed() && receipt.BlockNumber != nil {
		var header *types.Header
		err = a.limiter.Do(ctx, a.chain.String(), "eth_getBlockByNumber", func(ctx context.Context) error {
			var err error
			header, err = a.backend.HeaderByNumber(ctx, receipt.BlockNumber)
			return err
		})
		if err != nil {
			return nil, err
		}
		if header != nil {
			bt := time.Unix(int64(header.Time), 0).UTC()
			out.BlockTime = &bt
		}
	}

	data, err := json.Marshal(receiptData{
		BlockHash:         receipt.BlockHash.Hex(),
		TransactionIndex:  receipt.TransactionIndex,
		GasUsed:           receipt.GasUsed,
		EffectiveGasPrice: bigString(receipt.EffectiveGasPrice),
		Status:            receipt.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chain data: %w", err)
	}
	out.ChainData = data
	return out, nil
}

type receiptData struct {
	BlockHash         string `json:"block_hash"`
	TransactionIndex  uint   `json:"transaction_index"`
	GasUsed           uint64 `json:"gas_used"`
	EffectiveGasPrice string `json:"effective_gas_price,omitempty"`
	Status            uint64 `json:"status"`
}

// confirmations counts the inclusion block itself as the first confirmation.
func confirmations(head uint64, block int64) int {
	if block < 0 || head < uint64(block) {
		return 0
	}
	return int(head-uint64(block)) + 1
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func weiToGwei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -9)
}
