package ledger

import (
	"container/list"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	"github.com/0Papitchu/GBPBot-sub003/internal/metrics"
)

const DefaultMaxHistorySize = 10000

var (
	ErrDuplicateID       = errors.New("transaction id already exists")
	ErrNotPending        = errors.New("transaction is not pending")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Callback is told about the terminal status of a transaction. result is
// never nil; when the chain reported nothing it carries only the hash.
type Callback func(status model.TxStatus, result *model.Result) error

// CallbackID identifies a registration for UnregisterCallback.
type CallbackID uint64

// CallbackError wraps an error or panic raised by a status callback.
type CallbackError struct {
	TxID       string
	CallbackID CallbackID
	Err        error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("callback %d for tx %s: %v", e.CallbackID, e.TxID, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }

// TerminalHook observes every entry right after it moved to history.
type TerminalHook func(entry model.HistoryEntry)

// EvictionSink receives history entries dropped by the size bound, oldest first.
type EvictionSink func(evicted []model.HistoryEntry)

type registration struct {
	id CallbackID
	fn Callback
}

// Ledger is the authoritative record of pending and resolved transactions.
// An id lives in exactly one of the pending set and the history list.
type Ledger struct {
	mu             sync.RWMutex
	pending        map[string]*model.PendingEntry
	history        *list.List // *model.HistoryEntry, oldest insertion at the front
	historyIdx     map[string]*list.Element
	callbacks      map[string][]registration
	nextCallbackID CallbackID
	maxHistorySize int

	hooks        []TerminalHook
	evictionSink EvictionSink

	nowFn  func() time.Time
	logger *slog.Logger
}

func New(maxHistorySize int, logger *slog.Logger) *Ledger {
	if maxHistorySize <= 0 {
		maxHistorySize = DefaultMaxHistorySize
	}
	metrics.LedgerHistoryLimit.Set(float64(maxHistorySize))
	return &Ledger{
		pending:        make(map[string]*model.PendingEntry),
		history:        list.New(),
		historyIdx:     make(map[string]*list.Element),
		callbacks:      make(map[string][]registration),
		maxHistorySize: maxHistorySize,
		nowFn:          time.Now,
		logger:         logger.With("component", "ledger"),
	}
}

// AddTerminalHook registers h. Hooks must be added before the ledger is used.
func (l *Ledger) AddTerminalHook(h TerminalHook) {
	l.hooks = append(l.hooks, h)
}

// SetEvictionSink sets the receiver of evicted history entries.
func (l *Ledger) SetEvictionSink(s EvictionSink) {
	l.evictionSink = s
}

// Insert records a new pending transaction.
func (l *Ledger) Insert(entry model.PendingEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("insert: empty transaction id")
	}
	now := l.nowFn()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.Status = model.TxStatusPending
	entry.LastUpdatedAt = entry.CreatedAt

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.pending[entry.ID]; ok {
		return fmt.Errorf("insert %s: %w", entry.ID, ErrDuplicateID)
	}
	if _, ok := l.historyIdx[entry.ID]; ok {
		return fmt.Errorf("insert %s: %w", entry.ID, ErrDuplicateID)
	}
	l.pending[entry.ID] = &entry
	metrics.LedgerPendingSize.Set(float64(len(l.pending)))
	return nil
}

// SetHash records the hash the chain returned for a pending transaction.
func (l *Ledger) SetHash(id, hash string) error {
	return l.update(id, func(e *model.PendingEntry) { e.Hash = hash })
}

// SetConfirmations records the latest observed confirmation count.
func (l *Ledger) SetConfirmations(id string, n int) error {
	return l.update(id, func(e *model.PendingEntry) { e.ConfirmationCount = n })
}

func (l *Ledger) update(id string, fn func(e *model.PendingEntry)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.pending[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, ErrNotPending)
	}
	fn(e)
	e.LastUpdatedAt = l.nowFn()
	return nil
}

// Transition moves a pending transaction to a terminal status, appends it to
// history, trims history and notifies callbacks and hooks. Callbacks run
// outside the lock and are unregistered afterwards.
func (l *Ledger) Transition(id string, status model.TxStatus, errMsg string, result *model.Result) error {
	if !status.IsTerminal() {
		return fmt.Errorf("transition %s to %s: %w", id, status, ErrInvalidTransition)
	}

	l.mu.Lock()
	e, ok := l.pending[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("transition %s to %s: %w", id, status, ErrNotPending)
	}
	e.Status = status
	e.LastUpdatedAt = l.nowFn()
	if errMsg != "" {
		e.LastError = errMsg
	}
	if result != nil && result.Confirmations > e.ConfirmationCount {
		e.ConfirmationCount = result.Confirmations
	}

	entry := model.HistoryEntry{PendingEntry: *e, Result: result}
	delete(l.pending, id)
	l.historyIdx[id] = l.history.PushBack(&entry)
	evicted := l.enforceLocked()
	regs := l.callbacks[id]
	delete(l.callbacks, id)
	l.recordSizesLocked()
	l.mu.Unlock()

	metrics.TxTransitionsTotal.WithLabelValues(entry.Chain.String(), status.String()).Inc()
	l.logger.Info("transaction resolved",
		"tx_id", id,
		"chain", entry.Chain,
		"status", status,
		"hash", entry.Hash,
		"error", errMsg,
	)

	l.sinkEvicted(evicted)
	for _, h := range l.hooks {
		h(entry)
	}

	cbResult := result
	if cbResult == nil {
		cbResult = &model.Result{Hash: entry.Hash, Confirmations: entry.ConfirmationCount}
	}
	for _, r := range regs {
		if err := invoke(id, r, status, cbResult); err != nil {
			metrics.LedgerCallbackErrors.Inc()
			l.logger.Warn("status callback failed", "tx_id", id, "error", err)
		}
	}
	return nil
}

func invoke(txID string, r registration, status model.TxStatus, result *model.Result) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &CallbackError{TxID: txID, CallbackID: r.id, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	if cbErr := r.fn(status, result); cbErr != nil {
		return &CallbackError{TxID: txID, CallbackID: r.id, Err: cbErr}
	}
	return nil
}

// RegisterCallback adds fn to the callbacks of a pending transaction.
func (l *Ledger) RegisterCallback(id string, fn Callback) (CallbackID, error) {
	if fn == nil {
		return 0, fmt.Errorf("register callback for %s: nil callback", id)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.pending[id]; !ok {
		return 0, fmt.Errorf("register callback for %s: %w", id, ErrNotPending)
	}
	l.nextCallbackID++
	cbID := l.nextCallbackID
	l.callbacks[id] = append(l.callbacks[id], registration{id: cbID, fn: fn})
	return cbID, nil
}

// UnregisterCallback removes a registration. Unknown ids are ignored.
func (l *Ledger) UnregisterCallback(id string, cbID CallbackID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	regs := l.callbacks[id]
	for i, r := range regs {
		if r.id == cbID {
			regs = append(regs[:i], regs[i+1:]...)
			break
		}
	}
	if len(regs) == 0 {
		delete(l.callbacks, id)
		return
	}
	l.callbacks[id] = regs
}

// GetStatus looks id up in the pending set, then history. Ids never seen
// report TxStatusUnknown with nil details.
func (l *Ledger) GetStatus(id string) (model.TxStatus, *model.TxDetails) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if e, ok := l.pending[id]; ok {
		return e.Status, &model.TxDetails{Entry: *e}
	}
	if elem, ok := l.historyIdx[id]; ok {
		h := elem.Value.(*model.HistoryEntry)
		return h.Status, &model.TxDetails{Entry: h.PendingEntry, Result: h.Result}
	}
	return model.TxStatusUnknown, nil
}

// GetHistory returns resolved transactions, newest update first, optionally
// restricted to chain. limit <= 0 returns everything after offset.
func (l *Ledger) GetHistory(limit, offset int, chain model.Chain) []model.HistoryEntry {
	l.mu.RLock()
	out := make([]model.HistoryEntry, 0, l.history.Len())
	for elem := l.history.Back(); elem != nil; elem = elem.Prev() {
		h := elem.Value.(*model.HistoryEntry)
		if chain != "" && h.Chain != chain {
			continue
		}
		out = append(out, *h)
	}
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastUpdatedAt.After(out[j].LastUpdatedAt)
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return []model.HistoryEntry{}
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// Snapshot copies the pending set.
func (l *Ledger) Snapshot() []model.PendingEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.PendingEntry, 0, len(l.pending))
	for _, e := range l.pending {
		out = append(out, *e)
	}
	return out
}

func (l *Ledger) PendingCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pending)
}

func (l *Ledger) HistoryLen() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.history.Len()
}

func (l *Ledger) MaxHistorySize() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.maxHistorySize
}

// SetMaxHistorySize changes the history bound; a decrease trims immediately.
func (l *Ledger) SetMaxHistorySize(n int) error {
	if n <= 0 {
		return fmt.Errorf("max history size must be positive, got %d", n)
	}
	l.mu.Lock()
	prev := l.maxHistorySize
	l.maxHistorySize = n
	var evicted []model.HistoryEntry
	if n < prev {
		evicted = l.enforceLocked()
		l.recordSizesLocked()
	}
	l.mu.Unlock()

	metrics.LedgerHistoryLimit.Set(float64(n))
	if n != prev {
		l.logger.Info("max history size changed", "from", prev, "to", n, "evicted", len(evicted))
	}
	l.sinkEvicted(evicted)
	return nil
}

// Enforce evicts the oldest-inserted history entries beyond the bound.
func (l *Ledger) Enforce() int {
	l.mu.Lock()
	evicted := l.enforceLocked()
	l.recordSizesLocked()
	l.mu.Unlock()
	l.sinkEvicted(evicted)
	return len(evicted)
}

// enforceLocked must be called with mu held.
func (l *Ledger) enforceLocked() []model.HistoryEntry {
	excess := l.history.Len() - l.maxHistorySize
	if excess <= 0 {
		return nil
	}
	evicted := make([]model.HistoryEntry, 0, excess)
	for i := 0; i < excess; i++ {
		front := l.history.Front()
		h := l.history.Remove(front).(*model.HistoryEntry)
		delete(l.historyIdx, h.ID)
		evicted = append(evicted, *h)
	}
	metrics.LedgerHistoryEvicted.Add(float64(excess))
	return evicted
}

func (l *Ledger) recordSizesLocked() {
	metrics.LedgerPendingSize.Set(float64(len(l.pending)))
	metrics.LedgerHistorySize.Set(float64(l.history.Len()))
}

func (l *Ledger) sinkEvicted(evicted []model.HistoryEntry) {
	if len(evicted) > 0 && l.evictionSink != nil {
		l.evictionSink(evicted)
	}
}
