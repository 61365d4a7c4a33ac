package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TxStatus is the lifecycle state of a submitted transaction.
// Pending is the only non-terminal state; Unknown is reported for ids never seen.
type TxStatus string

const (
	TxStatusPending   TxStatus = "PENDING"
	TxStatusConfirmed TxStatus = "CONFIRMED"
	TxStatusFailed    TxStatus = "FAILED"
	TxStatusTimeout   TxStatus = "TIMEOUT"
	TxStatusDropped   TxStatus = "DROPPED"
	TxStatusUnknown   TxStatus = "UNKNOWN"
)

func (s TxStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition may leave s.
func (s TxStatus) IsTerminal() bool {
	switch s {
	case TxStatusConfirmed, TxStatusFailed, TxStatusTimeout, TxStatusDropped:
		return true
	default:
		return false
	}
}

// PendingEntry is the ledger record of a transaction that has not reached a
// terminal state. Hash stays empty until the chain accepts the submission.
type PendingEntry struct {
	ID                string    `json:"id"`
	Chain             Chain     `json:"chain"`
	Status            TxStatus  `json:"status"`
	Priority          Priority  `json:"priority"`
	Hash              string    `json:"hash,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	LastUpdatedAt     time.Time `json:"last_updated_at"`
	ConfirmationCount int       `json:"confirmation_count"`
	LastError         string    `json:"last_error,omitempty"`
}

// Result carries what the chain reported once a transaction resolved.
type Result struct {
	Hash          string          `json:"hash"`
	BlockNumber   int64           `json:"block_number"` // EVM block number or Solana slot
	BlockTime     *time.Time      `json:"block_time,omitempty"`
	FeePaid       decimal.Decimal `json:"fee_paid"`
	Confirmations int             `json:"confirmations"`
	ChainData     json.RawMessage `json:"chain_data,omitempty"`
}

// HistoryEntry is the immutable snapshot of an entry at the moment it became terminal.
type HistoryEntry struct {
	PendingEntry
	Result *Result `json:"result,omitempty"`
}

// TxDetails is what GetStatus reports alongside the status.
type TxDetails struct {
	Entry  PendingEntry `json:"entry"`
	Result *Result      `json:"result,omitempty"`
}
