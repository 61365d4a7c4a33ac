package rpc

import "encoding/json"

// JSON-RPC request/response types

type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// Commitment levels accepted by the RPC node.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// getSignatureStatuses response
type SignatureStatusesResult struct {
	Context struct {
		Slot int64 `json:"slot"`
	} `json:"context"`
	Value []*SignatureStatus `json:"value"`
}

// SignatureStatus is nil in the result list for signatures the node has not seen.
type SignatureStatus struct {
	Slot               int64           `json:"slot"`
	Confirmations      *int            `json:"confirmations"` // null once rooted
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

// Failed reports whether the status carries a non-null execution error.
func (s *SignatureStatus) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// getTransaction response
type TransactionResponse struct {
	Slot        int64            `json:"slot"`
	BlockTime   *int64           `json:"blockTime"`
	Transaction json.RawMessage  `json:"transaction"`
	Meta        *TransactionMeta `json:"meta"`
}

type TransactionMeta struct {
	Err                  json.RawMessage `json:"err"`
	Fee                  uint64          `json:"fee"`
	ComputeUnitsConsumed *uint64         `json:"computeUnitsConsumed"`
	LogMessages          []string        `json:"logMessages"`
}
