package runtimecfg

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/0Papitchu/GBPBot-sub003/internal/metrics"
	"github.com/0Papitchu/GBPBot-sub003/internal/store"
)

const (
	defaultInterval = 30 * time.Second

	// KeyMaxHistorySize carries the history bound derived from memory
	// pressure elsewhere in the deployment.
	KeyMaxHistorySize = "max_history_size"

	maxHistorySizeLimit = 1_000_000
)

// HistoryLimiter is the part of the ledger the watcher adjusts.
type HistoryLimiter interface {
	SetMaxHistorySize(n int) error
	MaxHistorySize() int
}

// Watcher polls a RuntimeConfigSource and applies changed values without a
// restart.
type Watcher struct {
	network  string
	source   store.RuntimeConfigSource
	history  HistoryLimiter
	interval time.Duration
	logger   *slog.Logger

	// last-seen values, to apply each change once
	mu       sync.Mutex
	lastSeen map[string]string
}

func NewWatcher(network string, source store.RuntimeConfigSource, history HistoryLimiter, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Watcher{
		network:  network,
		source:   source,
		history:  history,
		interval: interval,
		logger:   logger.With("component", "runtime_config_watcher"),
		lastSeen: make(map[string]string),
	}
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("runtime config watcher started", "network", w.network, "poll_interval", w.interval)

	w.Poll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("runtime config watcher stopping")
			return nil
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll reads the active overrides once and applies the ones that changed.
// It is safe to call while Run is active.
func (w *Watcher) Poll(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	configs, err := w.source.GetActive(ctx, w.network)
	if err != nil {
		w.logger.Warn("runtime config poll failed", "error", err)
		metrics.RuntimeConfigWatcherErrors.Inc()
		return
	}

	for key := range w.lastSeen {
		if _, ok := configs[key]; !ok {
			delete(w.lastSeen, key)
		}
	}

	for key, value := range configs {
		if w.lastSeen[key] == value {
			continue
		}
		w.logger.Info("runtime config changed", "key", key, "old_value", w.lastSeen[key], "new_value", value)
		w.apply(key, value)
		w.lastSeen[key] = value
	}
}

// Validate reports whether value is acceptable for a known key.
func Validate(key, value string) error {
	switch strings.TrimSpace(key) {
	case KeyMaxHistorySize:
		_, err := parseMaxHistorySize(value)
		return err
	default:
		return fmt.Errorf("unknown runtime config key %q", key)
	}
}

func parseMaxHistorySize(value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 || n > maxHistorySizeLimit {
		return 0, fmt.Errorf("%s must be an integer in [1, %d], got %q", KeyMaxHistorySize, maxHistorySizeLimit, value)
	}
	return n, nil
}

func (w *Watcher) apply(key, value string) {
	switch strings.TrimSpace(key) {
	case KeyMaxHistorySize:
		n, err := parseMaxHistorySize(value)
		if err != nil {
			w.logger.Warn("invalid max_history_size value", "value", value)
			return
		}
		old := w.history.MaxHistorySize()
		if err := w.history.SetMaxHistorySize(n); err != nil {
			w.logger.Warn("apply max_history_size failed", "value", n, "error", err)
			return
		}
		w.logger.Info("history size limit updated", "old", old, "new", n)
	default:
		w.logger.Debug("unhandled runtime config key", "key", key, "value", value)
	}
}
