package model

import "github.com/shopspring/decimal"

// FeeEstimate is a recommended per-unit fee pair (EIP-1559 style).
type FeeEstimate struct {
	MaxFeePerUnit         decimal.Decimal `json:"max_fee_per_unit"`
	MaxPriorityFeePerUnit decimal.Decimal `json:"max_priority_fee_per_unit"`
}

// Total is the sum of both components.
func (f FeeEstimate) Total() decimal.Decimal {
	return f.MaxFeePerUnit.Add(f.MaxPriorityFeePerUnit)
}

// BlockFees is the fee market data sampled from a single block.
type BlockFees struct {
	Number         uint64
	BaseFeePerUnit decimal.Decimal
	PriorityFees   []decimal.Decimal
}
