package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/0Papitchu/GBPBot-sub003/internal/admin"
	"github.com/0Papitchu/GBPBot-sub003/internal/alert"
	"github.com/0Papitchu/GBPBot-sub003/internal/chain"
	"github.com/0Papitchu/GBPBot-sub003/internal/chain/evm"
	"github.com/0Papitchu/GBPBot-sub003/internal/chain/ratelimit"
	"github.com/0Papitchu/GBPBot-sub003/internal/chain/solana"
	"github.com/0Papitchu/GBPBot-sub003/internal/chain/solana/rpc"
	"github.com/0Papitchu/GBPBot-sub003/internal/config"
	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	"github.com/0Papitchu/GBPBot-sub003/internal/executor"
	"github.com/0Papitchu/GBPBot-sub003/internal/fee"
	"github.com/0Papitchu/GBPBot-sub003/internal/ledger"
	"github.com/0Papitchu/GBPBot-sub003/internal/metrics"
	"github.com/0Papitchu/GBPBot-sub003/internal/runtimecfg"
	"github.com/0Papitchu/GBPBot-sub003/internal/store/postgres"
	redispkg "github.com/0Papitchu/GBPBot-sub003/internal/store/redis"
	"github.com/0Papitchu/GBPBot-sub003/internal/tracing"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName  = "tx-executor"
	storeTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("executor exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("executor shut down gracefully")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting executor",
		"network", cfg.Network,
		"solana_rpc", cfg.Solana.URL,
		"evm_chains", len(cfg.EVM),
		"fee_source_chain", cfg.Fee.SourceChain,
		"max_history_size", cfg.Executor.MaxHistorySize,
	)

	shutdownTracing, err := tracing.Init(ctx, serviceName, cfg.Tracing.Endpoint, cfg.Tracing.Insecure, cfg.Tracing.SampleRatio)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Tracing.Endpoint != "" {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	registry, feeSource, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}

	l := ledger.New(cfg.Executor.MaxHistorySize, logger)

	var alerters []alert.Alerter
	if cfg.Alert.SlackWebhookURL != "" {
		alerters = append(alerters, alert.NewSlackAlerter(cfg.Alert.SlackWebhookURL))
	}
	if cfg.Alert.WebhookURL != "" {
		alerters = append(alerters, alert.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}
	alerter := alert.NewMultiAlerter(cfg.Alert.Cooldown, logger, alerters...)

	var feeSrc fee.BlockSource
	if feeSource != nil {
		feeSrc = feeSource
	}
	estimator := fee.NewEstimator(fee.Config{
		UpdateInterval:        cfg.Fee.UpdateInterval,
		HistorySize:           cfg.Fee.HistorySize,
		MaxBaseFee:            cfg.Fee.MaxBaseFee,
		MaxPriorityFee:        cfg.Fee.MaxPriorityFee,
		MinPriorityFee:        cfg.Fee.MinPriorityFee,
		BaseFeeMultiplier:     cfg.Fee.BaseFeeMultiplier,
		PriorityFeeMultiplier: cfg.Fee.PriorityFeeMultiplier,
		MaxTotalFee:           cfg.Fee.MaxTotalFee,
		RetryBackoff:          cfg.Fee.RetryBackoff,
	}, feeSrc, logger)

	engine := executor.NewEngine(executor.Config{
		Network:                 cfg.Network,
		Timeout:                 cfg.Executor.Timeout,
		ChainTimeouts:           cfg.Executor.ChainTimeouts,
		RequiredConfirmations:   cfg.Executor.RequiredConfirmations,
		FeeMultipliers:          cfg.Executor.FeeMultipliers,
		MaxRetries:              cfg.Executor.MaxRetries,
		RetryDelay:              cfg.Executor.RetryDelay,
		PollInterval:            cfg.Executor.PollInterval,
		WaitPollInterval:        cfg.Executor.WaitPollInterval,
		PollConcurrency:         cfg.Executor.PollConcurrency,
		BreakerFailureThreshold: cfg.Executor.BreakerFailureThreshold,
		BreakerOpenTimeout:      cfg.Executor.BreakerOpenTimeout,
	}, l, registry, estimator, alerter, logger)

	g, gCtx := errgroup.WithContext(ctx)

	// Archive and publish writes run off the ledger's call path and must
	// land before the stores they write to are closed.
	var storeWrites sync.WaitGroup

	var adminOpts []admin.ServerOption
	if cfg.DB.URL != "" {
		db, err := postgres.New(ctx, postgres.Config{
			URL:             cfg.DB.URL,
			MaxOpenConns:    cfg.DB.MaxOpenConns,
			MaxIdleConns:    cfg.DB.MaxIdleConns,
			ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
		if err := db.RunMigrations(ctx, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("connected to database")

		archive := postgres.NewHistoryRepo(db)
		l.SetEvictionSink(archiveSink(gCtx, &storeWrites, archive, cfg.Network, logger))

		runtimeRepo := postgres.NewRuntimeConfigRepo(db)
		watcher := runtimecfg.NewWatcher(cfg.Network, runtimeRepo, l, cfg.Runtime.PollInterval, logger)
		g.Go(func() error { return watcher.Run(gCtx) })

		adminOpts = append(adminOpts,
			admin.WithHistoryArchive(archive),
			admin.WithRuntimeConfig(runtimeRepo, watcher.Poll),
		)
	}

	if cfg.Redis.URL != "" {
		stream, err := redispkg.NewStatusStream(ctx, cfg.Redis.URL, cfg.Redis.StatusStream, cfg.Redis.MaxLen)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer stream.Close()
		l.AddTerminalHook(publishHook(gCtx, &storeWrites, stream, cfg.Network, logger))
		logger.Info("status stream enabled", "stream", cfg.Redis.StatusStream)
	}

	defer storeWrites.Wait()
	if err := engine.Start(gCtx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer engine.Stop()

	g.Go(func() error {
		return runHealthServer(gCtx, cfg.Server.HealthPort, engine, logger)
	})
	if cfg.Server.AdminPort > 0 {
		adminServer := admin.NewServer(cfg.Network, engine, logger, adminOpts...)
		g.Go(func() error {
			return runAdminServer(gCtx, cfg.Server.AdminPort, adminServer, logger)
		})
	}
	g.Go(func() error {
		<-engine.Done()
		if gCtx.Err() == nil {
			return errors.New("engine stopped unexpectedly")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildRegistry dials every configured chain. The returned fee source is nil
// when no EVM chain is configured.
func buildRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*chain.Registry, *evm.FeeSource, error) {
	registry := chain.NewRegistry()

	if cfg.Solana.URL != "" {
		limiter := ratelimit.NewLimiter(cfg.Solana.RPS, cfg.Solana.Burst, model.ChainSolana.String())
		client := rpc.NewClient(cfg.Solana.URL, logger).WithRateLimiter(limiter)
		registry.Register(solana.NewAdapter(client, solana.Options{
			SkipPreflight:       cfg.Solana.SkipPreflight,
			PreflightCommitment: cfg.Solana.PreflightCommitment,
		}, logger))
	}

	var feeSource *evm.FeeSource
	for _, c := range model.EVMChains() {
		rpcCfg, ok := cfg.EVM[c]
		if !ok {
			continue
		}
		client, err := ethclient.DialContext(ctx, rpcCfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("dial %s rpc: %w", c, err)
		}
		limiter := ratelimit.NewLimiter(rpcCfg.RPS, rpcCfg.Burst, c.String())
		registry.Register(evm.NewAdapter(c, client, limiter, logger))
		if c == cfg.Fee.SourceChain {
			feeSource = evm.NewFeeSource(c, client, limiter)
		}
	}

	logger.Info("chain handlers registered", "chains", registry.Chains())
	return registry, feeSource, nil
}

// archiveSink writes evicted history to the archive off the ledger's call path.
// Each write is tracked on wg.
func archiveSink(ctx context.Context, wg *sync.WaitGroup, archive interface {
	ArchiveHistory(ctx context.Context, network string, entries []model.HistoryEntry) (int, error)
}, network string, logger *slog.Logger) ledger.EvictionSink {
	return func(evicted []model.HistoryEntry) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
			defer cancel()
			n, err := archive.ArchiveHistory(archiveCtx, network, evicted)
			if err != nil {
				metrics.HistoryArchiveErrors.Inc()
				logger.Warn("failed to archive evicted history", "count", len(evicted), "error", err)
				return
			}
			logger.Debug("archived evicted history", "count", n)
		}()
	}
}

func publishHook(ctx context.Context, wg *sync.WaitGroup, stream interface {
	PublishStatus(ctx context.Context, network string, entry model.HistoryEntry) error
}, network string, logger *slog.Logger) ledger.TerminalHook {
	return func(entry model.HistoryEntry) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
			defer cancel()
			if err := stream.PublishStatus(pubCtx, network, entry); err != nil {
				metrics.StatusPublishErrors.Inc()
				logger.Warn("failed to publish status", "tx_id", entry.ID, "error", err)
			}
		}()
	}
}

type healthReporter interface {
	Healthy() bool
	Health() []executor.HealthSnapshot
}

func healthHandler(h healthReporter, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		if !h.Healthy() {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(map[string]any{
			"healthy": status == http.StatusOK,
			"loops":   h.Health(),
		}); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	}
}

func runHealthServer(ctx context.Context, port int, h healthReporter, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler(h, logger))
	mux.Handle("/metrics", promhttp.Handler())
	return serveHTTP(ctx, "health", port, mux, logger)
}

func runAdminServer(ctx context.Context, port int, s *admin.Server, logger *slog.Logger) error {
	return serveHTTP(ctx, "admin", port, s.Handler(), logger)
}

func serveHTTP(ctx context.Context, name string, port int, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("http server shutdown error", "server", name, "error", err)
		}
	}()

	logger.Info("http server started", "server", name, "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}
