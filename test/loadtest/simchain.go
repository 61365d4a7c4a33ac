package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0Papitchu/GBPBot-sub003/internal/chain"
	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	"github.com/shopspring/decimal"
)

// simChain is an in-memory chain.Handler with configurable latency and
// failure rates.
type simChain struct {
	chain         model.Chain
	submitLatency time.Duration
	confirmDelay  time.Duration
	failRate      float64
	revertRate    float64

	seq    atomic.Int64
	mu     sync.Mutex
	landed map[string]simTx
	nowFn  func() time.Time
	randFn func() float64
}

type simTx struct {
	submittedAt time.Time
	reverted    bool
}

var _ chain.Handler = (*simChain)(nil)

func newSimChain(c model.Chain, submitLatency, confirmDelay time.Duration, failRate, revertRate float64) *simChain {
	return &simChain{
		chain:         c,
		submitLatency: submitLatency,
		confirmDelay:  confirmDelay,
		failRate:      failRate,
		revertRate:    revertRate,
		landed:        make(map[string]simTx),
		nowFn:         time.Now,
		randFn:        rand.Float64,
	}
}

func (s *simChain) Chain() model.Chain { return s.chain }

func (s *simChain) Submit(ctx context.Context, payload []byte, _ model.FeeEstimate) (string, error) {
	if s.submitLatency > 0 {
		t := time.NewTimer(s.submitLatency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	if s.randFn() < s.failRate {
		return "", fmt.Errorf("http status 503: simulated outage")
	}

	hash, _ := s.PayloadHash(payload)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.landed[hash]; dup {
		return "", fmt.Errorf("transaction has already been processed")
	}
	s.seq.Add(1)
	s.landed[hash] = simTx{submittedAt: s.nowFn(), reverted: s.randFn() < s.revertRate}
	return hash, nil
}

func (s *simChain) PayloadHash(payload []byte) (string, error) {
	sum := sha256.Sum256(payload)
	return "sim-" + hex.EncodeToString(sum[:8]), nil
}

func (s *simChain) PollStatus(_ context.Context, hash string) (*chain.ConfirmationStatus, error) {
	s.mu.Lock()
	tx, ok := s.landed[hash]
	s.mu.Unlock()
	if !ok || s.nowFn().Sub(tx.submittedAt) < s.confirmDelay {
		return &chain.ConfirmationStatus{Found: false}, nil
	}

	st := &chain.ConfirmationStatus{
		Found:         true,
		Confirmations: 1,
		BlockNumber:   s.seq.Load(),
		FeePaid:       decimal.NewFromInt(5000),
	}
	if tx.reverted {
		st.Err = "simulated program error"
	}
	return st, nil
}
