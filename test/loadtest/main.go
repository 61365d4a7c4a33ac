// Package main implements a load test harness for the execution engine.
// It drives concurrent Send calls through the real ledger, fee estimator,
// coordinator and poller against simulated chain handlers, then reports
// throughput, latency and error rate and verifies ledger consistency.
//
// Usage:
//
//	go run ./test/loadtest \
//	  -concurrency 16 \
//	  -duration 30s \
//	  -submit-latency 20ms \
//	  -confirm-delay 200ms \
//	  -fail-rate 0.02 \
//	  -revert-rate 0.01 \
//	  -max-history 5000 \
//	  -verify
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/0Papitchu/GBPBot-sub003/internal/chain"
	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	"github.com/0Papitchu/GBPBot-sub003/internal/executor"
	"github.com/0Papitchu/GBPBot-sub003/internal/fee"
	"github.com/0Papitchu/GBPBot-sub003/internal/ledger"
)

func main() {
	var (
		concurrency   = flag.Int("concurrency", 8, "Number of parallel submitters")
		duration      = flag.Duration("duration", 30*time.Second, "Test duration")
		submitLatency = flag.Duration("submit-latency", 20*time.Millisecond, "Simulated RPC latency per submit")
		confirmDelay  = flag.Duration("confirm-delay", 200*time.Millisecond, "Time until a submitted tx is found on chain")
		failRate      = flag.Float64("fail-rate", 0.01, "Fraction of submits failing with a transient RPC error")
		revertRate    = flag.Float64("revert-rate", 0.01, "Fraction of landed txs that fail on chain")
		maxHistory    = flag.Int("max-history", 5000, "Ledger history bound")
		wait          = flag.Bool("wait", false, "Block each Send until the tx resolves")
		verify        = flag.Bool("verify", false, "Run post-load-test ledger consistency checks")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	fmt.Fprintf(os.Stderr, "load test: concurrency=%d duration=%s submit_latency=%s confirm_delay=%s fail_rate=%.3f revert_rate=%.3f max_history=%d wait=%t\n",
		*concurrency, *duration, *submitLatency, *confirmDelay, *failRate, *revertRate, *maxHistory, *wait)

	sim := newSimChain(model.ChainSolana, *submitLatency, *confirmDelay, *failRate, *revertRate)
	l := ledger.New(*maxHistory, logger)

	var evicted atomic.Int64
	l.SetEvictionSink(func(entries []model.HistoryEntry) { evicted.Add(int64(len(entries))) })

	cfg := executor.DefaultConfig()
	cfg.Network = "loadtest"
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.PollInterval = 50 * time.Millisecond
	cfg.WaitPollInterval = 10 * time.Millisecond
	cfg.Timeout = 10 * time.Second
	cfg.PollConcurrency = 32
	cfg.BreakerFailureThreshold = 1000

	estimator := fee.NewEstimator(fee.DefaultConfig(), nil, logger)
	engine := executor.NewEngine(cfg, l, chain.NewRegistry(sim), estimator, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *duration+cfg.Timeout+5*time.Second)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "start engine:", err)
		os.Exit(1)
	}

	var (
		totalSends  atomic.Int64
		totalErrors atomic.Int64
		payloadSeq  atomic.Int64
		callbacks   atomic.Int64
		latenciesMu sync.Mutex
		latenciesNs []int64
	)
	recordLatency := func(d time.Duration) {
		latenciesMu.Lock()
		latenciesNs = append(latenciesNs, d.Nanoseconds())
		latenciesMu.Unlock()
	}

	worker := func() {
		deadline := time.Now().Add(*duration)
		for time.Now().Before(deadline) && ctx.Err() == nil {
			start := time.Now()
			_, err := engine.Send(ctx, executor.SendRequest{
				Chain:               model.ChainSolana,
				Payload:             fmt.Appendf(nil, "loadtest-%d", payloadSeq.Add(1)),
				Priority:            model.PriorityMedium,
				WaitForConfirmation: *wait,
				Callback: func(model.TxStatus, *model.Result) error {
					callbacks.Add(1)
					return nil
				},
			})
			recordLatency(time.Since(start))
			totalSends.Add(1)

			var chainErr *executor.ChainExecutionError
			if err != nil && !errors.As(err, &chainErr) {
				totalErrors.Add(1)
			}
		}
	}

	testStart := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker()
		}()
	}
	wg.Wait()
	testDuration := time.Since(testStart)

	// Let the poller drain what is still pending.
	drainDeadline := time.Now().Add(cfg.Timeout)
	for l.PendingCount() > 0 && time.Now().Before(drainDeadline) && ctx.Err() == nil {
		time.Sleep(cfg.PollInterval)
	}
	_ = engine.Stop()

	sends := totalSends.Load()
	errCount := totalErrors.Load()

	latenciesMu.Lock()
	allLatencies := make([]int64, len(latenciesNs))
	copy(allLatencies, latenciesNs)
	latenciesMu.Unlock()
	sort.Slice(allLatencies, func(i, j int) bool { return allLatencies[i] < allLatencies[j] })

	errorRate := float64(0)
	if sends > 0 {
		errorRate = float64(errCount) / float64(sends) * 100
	}
	total, failed := estimator.Stats()

	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("       LOAD TEST RESULTS")
	fmt.Println("========================================")
	fmt.Printf("Duration:       %s\n", testDuration.Round(time.Millisecond))
	fmt.Printf("Workers:        %d\n", *concurrency)
	fmt.Printf("Wait mode:      %t\n", *wait)
	fmt.Println("----------------------------------------")
	fmt.Println("Throughput:")
	fmt.Printf("  Sends:        %d\n", sends)
	fmt.Printf("  Sends/sec:    %.2f\n", float64(sends)/testDuration.Seconds())
	fmt.Printf("  Callbacks:    %d\n", callbacks.Load())
	fmt.Printf("  Evicted:      %d\n", evicted.Load())
	fmt.Println("----------------------------------------")
	fmt.Println("Latency (per Send):")
	fmt.Printf("  p50:          %s\n", formatNanos(percentile(allLatencies, 50)))
	fmt.Printf("  p95:          %s\n", formatNanos(percentile(allLatencies, 95)))
	fmt.Printf("  p99:          %s\n", formatNanos(percentile(allLatencies, 99)))
	fmt.Println("----------------------------------------")
	fmt.Println("Outcomes:")
	fmt.Printf("  Send errors:  %d (%.2f%%)\n", errCount, errorRate)
	fmt.Printf("  Resolved:     %d (%d not confirmed)\n", total, failed)
	fmt.Printf("  Success rate: %.4f\n", estimator.SuccessRate())
	fmt.Println("========================================")

	// Send errors are expected at a non-zero fail rate; only a failed
	// consistency check fails the run.
	if *verify && verifyLedger(l, *maxHistory, sends, callbacks.Load()) {
		os.Exit(1)
	}
}

// checkResult holds the outcome of a single verification check.
type checkResult struct {
	Name   string
	Passed bool
	Detail string
}

// verifyLedger checks the ledger after the run and reports whether any
// check failed.
func verifyLedger(l *ledger.Ledger, maxHistory int, sends, callbacks int64) bool {
	var results []checkResult

	historyLen := l.HistoryLen()
	results = append(results, checkResult{
		Name:   "history within bound",
		Passed: historyLen <= maxHistory,
		Detail: fmt.Sprintf("history=%d max=%d", historyLen, maxHistory),
	})

	pending := l.PendingCount()
	results = append(results, checkResult{
		Name:   "pending drained",
		Passed: pending == 0,
		Detail: fmt.Sprintf("pending=%d", pending),
	})

	seen := make(map[string]bool)
	dup := 0
	for _, e := range l.Snapshot() {
		seen[e.ID] = true
	}
	for _, h := range l.GetHistory(0, 0, "") {
		if seen[h.ID] {
			dup++
		}
		seen[h.ID] = true
		if !h.Status.IsTerminal() {
			dup++
		}
	}
	results = append(results, checkResult{
		Name:   "ids unique and history terminal",
		Passed: dup == 0,
		Detail: fmt.Sprintf("violations=%d", dup),
	})

	results = append(results, checkResult{
		Name:   "one callback per resolved send",
		Passed: callbacks <= sends,
		Detail: fmt.Sprintf("callbacks=%d sends=%d", callbacks, sends),
	})

	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("    LEDGER CONSISTENCY VERIFICATION")
	fmt.Println("========================================")
	anyFailed := false
	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
			anyFailed = true
		}
		fmt.Printf("  [%s] %s\n", status, r.Name)
		if r.Detail != "" {
			fmt.Printf("         %s\n", r.Detail)
		}
	}
	fmt.Println("========================================")
	return anyFailed
}

// percentile returns the p-th percentile from a sorted slice of nanosecond values.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func formatNanos(ns int64) string {
	return time.Duration(ns).Round(time.Microsecond).String()
}
