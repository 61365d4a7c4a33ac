package chain

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks . Handler

// Handler abstracts chain-specific submission and status lookup so the
// executor core operates chain-agnostically.
type Handler interface {
	// Chain returns the chain this handler serves.
	Chain() model.Chain

	// Submit broadcasts a signed payload and returns its hash/signature.
	Submit(ctx context.Context, payload []byte, fee model.FeeEstimate) (string, error)

	// PollStatus looks the transaction up by hash. A transaction the chain
	// does not know yet is reported with Found=false and a nil error.
	PollStatus(ctx context.Context, hash string) (*ConfirmationStatus, error)

	// PayloadHash derives the hash Submit would return for payload without
	// broadcasting it.
	PayloadHash(payload []byte) (string, error)
}

// ConfirmationStatus is a single observation of a submitted transaction.
type ConfirmationStatus struct {
	Found         bool
	Err           string // non-empty when the chain executed the tx and it failed
	Confirmations int
	BlockNumber   int64 // EVM block number or Solana slot
	BlockTime     *time.Time
	FeePaid       decimal.Decimal
	ChainData     json.RawMessage
}

// Failed reports whether the chain executed the transaction and rejected it.
func (s *ConfirmationStatus) Failed() bool {
	return s != nil && s.Found && s.Err != ""
}

// Result converts an observation into the ledger result for hash.
func (s *ConfirmationStatus) Result(hash string) *model.Result {
	return &model.Result{
		Hash:          hash,
		BlockNumber:   s.BlockNumber,
		BlockTime:     s.BlockTime,
		FeePaid:       s.FeePaid,
		Confirmations: s.Confirmations,
		ChainData:     s.ChainData,
	}
}

// Registry maps chains to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[model.Chain]Handler
}

func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[model.Chain]Handler, len(handlers))}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register adds h, replacing any handler previously registered for its chain.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Chain()] = h
}

func (r *Registry) Get(c model.Chain) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[c]
	return h, ok
}

// Chains returns the registered chains in lexical order.
func (r *Registry) Chains() []model.Chain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Chain, 0, len(r.handlers))
	for c := range r.handlers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
