package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/0Papitchu/GBPBot-sub003/internal/chain"
	"github.com/0Papitchu/GBPBot-sub003/internal/chain/solana/rpc"
	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	"github.com/btcsuite/btcutil/base58"
	"github.com/shopspring/decimal"
)

// finalizedConfirmations is reported for rooted transactions, for which the
// node returns a null confirmation count.
const finalizedConfirmations = 32

const signatureLen = 64

type Adapter struct {
	client   rpc.RPCClient
	sendOpts rpc.SendOpts
	logger   *slog.Logger
}

var _ chain.Handler = (*Adapter)(nil)

type Options struct {
	SkipPreflight       bool
	PreflightCommitment string
}

func NewAdapter(client rpc.RPCClient, opts Options, logger *slog.Logger) *Adapter {
	if opts.PreflightCommitment == "" {
		opts.PreflightCommitment = rpc.CommitmentConfirmed
	}
	return &Adapter{
		client: client,
		sendOpts: rpc.SendOpts{
			SkipPreflight:       opts.SkipPreflight,
			PreflightCommitment: opts.PreflightCommitment,
		},
		logger: logger.With("chain", "solana"),
	}
}

func (a *Adapter) Chain() model.Chain {
	return model.ChainSolana
}

// Submit sends a signed transaction. Compute-unit price is part of the
// signed message, so fee is only recorded for diagnostics.
func (a *Adapter) Submit(ctx context.Context, payload []byte, fee model.FeeEstimate) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("solana submit: empty payload")
	}
	sig, err := a.client.SendTransaction(ctx, payload, a.sendOpts)
	if err != nil {
		return "", err
	}
	a.logger.Debug("transaction sent",
		"signature", sig,
		"max_fee_per_unit", fee.MaxFeePerUnit.String(),
		"priority_fee_per_unit", fee.MaxPriorityFeePerUnit.String(),
	)
	return sig, nil
}

// PayloadHash returns the first signature of a wire-encoded transaction,
// which is the id sendTransaction reports.
func (a *Adapter) PayloadHash(payload []byte) (string, error) {
	count, n, err := decodeShortVecLen(payload)
	if err != nil {
		return "", fmt.Errorf("solana payload: %w", err)
	}
	if count == 0 {
		return "", fmt.Errorf("solana payload: no signatures")
	}
	if len(payload) < n+signatureLen {
		return "", fmt.Errorf("solana payload: truncated signature")
	}
	return base58.Encode(payload[n : n+signatureLen]), nil
}

// decodeShortVecLen reads a compact-u16 length prefix and returns the value
// and the number of bytes it occupied.
func decodeShortVecLen(b []byte) (int, int, error) {
	var v int
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, fmt.Errorf("truncated length prefix")
		}
		v |= int(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("length prefix too long")
}

// PollStatus maps getSignatureStatuses (plus getTransaction once the
// signature is confirmed) onto a ConfirmationStatus.
func (a *Adapter) PollStatus(ctx context.Context, hash string) (*chain.ConfirmationStatus, error) {
	statuses, err := a.client.GetSignatureStatuses(ctx, []string{hash})
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return &chain.ConfirmationStatus{Found: false}, nil
	}
	st := statuses[0]

	out := &chain.ConfirmationStatus{
		Found:         true,
		BlockNumber:   st.Slot,
		Confirmations: confirmationCount(st),
	}
	if st.Failed() {
		out.Err = string(st.Err)
		return out, nil
	}
	if st.ConfirmationStatus == rpc.CommitmentProcessed || out.Confirmations == 0 {
		return out, nil
	}

	tx, err := a.client.GetTransaction(ctx, hash)
	if err != nil {
		return nil, err
	}
	var cu *uint64
	if tx != nil {
		if tx.BlockTime != nil {
			bt := time.Unix(*tx.BlockTime, 0).UTC()
			out.BlockTime = &bt
		}
		if tx.Meta != nil {
			out.FeePaid = decimal.NewFromInt(int64(tx.Meta.Fee))
			cu = tx.Meta.ComputeUnitsConsumed
		}
	}

	data, err := json.Marshal(chainData{
		Slot:                 st.Slot,
		ConfirmationStatus:   st.ConfirmationStatus,
		ComputeUnitsConsumed: cu,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chain data: %w", err)
	}
	out.ChainData = data
	return out, nil
}

type chainData struct {
	Slot                 int64   `json:"slot"`
	ConfirmationStatus   string  `json:"confirmation_status"`
	ComputeUnitsConsumed *uint64 `json:"compute_units_consumed,omitempty"`
}

func confirmationCount(st *rpc.SignatureStatus) int {
	if st.Confirmations != nil {
		return *st.Confirmations
	}
	if st.ConfirmationStatus == rpc.CommitmentFinalized {
		return finalizedConfirmations
	}
	return 0
}
