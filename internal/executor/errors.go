package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
)

var (
	// ErrUnsupportedChain is matched by every UnsupportedChainError.
	ErrUnsupportedChain = errors.New("unsupported chain")

	// ErrTransactionDropped is returned by a confirmation wait that observed
	// the entry become Dropped.
	ErrTransactionDropped = errors.New("transaction dropped")

	// ErrSubmitTimeout wraps a submission that was still retrying when the
	// chain timeout expired.
	ErrSubmitTimeout = errors.New("submission outlived chain timeout")
)

// UnsupportedChainError is returned by Send before anything is recorded when
// no handler is registered for the requested chain.
type UnsupportedChainError struct {
	Chain model.Chain
}

func (e *UnsupportedChainError) Error() string {
	return fmt.Sprintf("chain %q: %s", e.Chain, ErrUnsupportedChain)
}

func (e *UnsupportedChainError) Unwrap() error { return ErrUnsupportedChain }

// SubmissionError means the chain rejected the payload or could not be
// reached. The ledger entry has been transitioned to Failed, or to Timeout
// when the error wraps ErrSubmitTimeout.
type SubmissionError struct {
	TxID  string
	Chain model.Chain
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit %s on %s: %v", e.TxID, e.Chain, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ChainExecutionError means the chain executed the transaction and it failed.
type ChainExecutionError struct {
	TxID    string
	Hash    string
	Message string
}

func (e *ChainExecutionError) Error() string {
	return fmt.Sprintf("transaction %s (%s) failed on chain: %s", e.TxID, e.Hash, e.Message)
}

// TimeoutError means the poller gave up on the entry and moved it to Timeout.
type TimeoutError struct {
	TxID string
	Hash string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transaction %s (%s) timed out before confirmation", e.TxID, e.Hash)
}

// WaitTimeoutError means the caller's confirmation wait expired while the
// entry was still pending. The ledger entry is left untouched and keeps
// being polled.
type WaitTimeoutError struct {
	TxID    string
	Hash    string
	Waited  time.Duration
	Context error
}

func (e *WaitTimeoutError) Error() string {
	if e.Context != nil {
		return fmt.Sprintf("wait for %s (%s) aborted after %s: %v", e.TxID, e.Hash, e.Waited, e.Context)
	}
	return fmt.Sprintf("wait for %s (%s) expired after %s, still pending", e.TxID, e.Hash, e.Waited)
}

func (e *WaitTimeoutError) Unwrap() error { return e.Context }

// terminalError maps a non-confirmed terminal entry to the error a waiting
// caller receives.
func terminalError(entry model.PendingEntry) error {
	switch entry.Status {
	case model.TxStatusFailed:
		return &ChainExecutionError{TxID: entry.ID, Hash: entry.Hash, Message: entry.LastError}
	case model.TxStatusTimeout:
		return &TimeoutError{TxID: entry.ID, Hash: entry.Hash}
	case model.TxStatusDropped:
		return fmt.Errorf("transaction %s (%s): %w", entry.ID, entry.Hash, ErrTransactionDropped)
	default:
		return nil
	}
}
