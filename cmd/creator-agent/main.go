package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jcmexdev/multihop-creator/internal/api-gateway/infra/httpx"
	"github.com/jcmexdev/multihop-creator/internal/config"
	"github.com/jcmexdev/multihop-creator/internal/coordinator"
	"github.com/jcmexdev/multihop-creator/internal/coordinator/tracklog"
	"github.com/jcmexdev/multihop-creator/internal/coordinator/tracklog/sqlite"
	"github.com/jcmexdev/multihop-creator/internal/core/ports"
	"github.com/jcmexdev/multihop-creator/internal/decompose"
	"github.com/jcmexdev/multihop-creator/internal/ledger"
	"github.com/jcmexdev/multihop-creator/internal/ledger/evm"
	"github.com/jcmexdev/multihop-creator/internal/pkg/cache"
	"github.com/jcmexdev/multihop-creator/internal/pkg/metrics"
	"github.com/jcmexdev/multihop-creator/internal/pkg/telemetry"
	"github.com/jcmexdev/multihop-creator/internal/tracking"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(getEnv("ENV_FILE", ".env"))
	if err != nil {
		telemetry.InitLogger("info")
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	telemetry.InitLogger(cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("creator agent stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	policy := coordinator.Policy{
		Providers:      cfg.Providers,
		StepBudget:     cfg.StepBudget,
		AcceptWindow:   cfg.AcceptWindow,
		CompleteWindow: cfg.CompleteWindow,
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	decomposer, err := newDecomposer(cfg)
	if err != nil {
		return err
	}

	chain, err := evm.Dial(ctx, evm.Config{
		RPCURL:        cfg.Ledger.RPCURL,
		ChainID:       cfg.Ledger.ChainID,
		PrivateKey:    cfg.Ledger.PrivateKey,
		Registry:      cfg.Ledger.JobsModuleAddress,
		PollInterval:  cfg.Ledger.PollInterval,
		BlockLookback: cfg.Ledger.BlockLookback,
		OutputBaseURL: cfg.Ledger.OutputBaseURL,
	})
	if err != nil {
		return err
	}
	defer chain.Close()

	var observers []tracking.Observer
	routerOpts := httpx.RouterOptions{IdempotencyTTL: cfg.IdempotencyTTL}

	if cfg.MetricsEnabled {
		collector, err := metrics.New()
		if err != nil {
			return err
		}
		observers = append(observers, collector)
		routerOpts.Metrics = collector.Handler()
	}

	var coordOpts []coordinator.Option
	if cfg.TrackLogPath != "" {
		repo, err := sqlite.Open(cfg.TrackLogPath)
		if err != nil {
			return err
		}
		defer repo.Close()
		recorder := tracklog.NewRecorder(repo)
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := recorder.Close(flushCtx); err != nil {
				slog.Error("track log flush error", "error", err)
			}
		}()
		observers = append(observers, recorder)
		coordOpts = append(coordOpts, coordinator.WithTrackLog(repo))
	}

	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.ServiceName)
		defer redisCache.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisCache.Ping(pingCtx); err != nil {
			slog.Warn("redis unreachable, keyed submissions will be refused until it recovers", "addr", cfg.RedisAddr, "error", err)
		}
		cancel()
		routerOpts.Idempotency = redisCache
	}

	engine := tracking.NewEngine(
		ledger.NewSubscriber(chain, nil),
		tracking.WithOutputReader(chain),
		tracking.WithObserver(tracking.Observers(observers...)),
		tracking.WithGraceDelay(cfg.GraceDelay),
		tracking.WithOutputReadTimeout(cfg.OutputReadTimeout),
	)
	coord := coordinator.New(engine, decomposer, ledger.NewClient(chain, cfg.Ledger.ConfirmTimeout), policy, coordOpts...)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpx.NewRouter(httpx.NewHandler(engine, coord, httpx.DefaultHeartbeat), routerOpts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logStartup(cfg, chain.Address().Hex())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down", "active_sessions", engine.ActiveSessions())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Closing the sessions ends their streams, so in-flight handlers return.
		engineErr := engine.Shutdown(shutdownCtx)
		srvErr := srv.Shutdown(shutdownCtx)
		return errors.Join(engineErr, srvErr)
	})
	return g.Wait()
}

func newDecomposer(cfg *config.Config) (ports.Decomposer, error) {
	if cfg.Decomposer == config.DecomposerStatic {
		return decompose.NewStatic(), nil
	}
	model, err := decompose.NewOpenAIModel(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL)
	if err != nil {
		return nil, err
	}
	return decompose.NewLLM(model), nil
}

func logStartup(cfg *config.Config, account string) {
	slog.Info("creator agent running",
		"addr", fmt.Sprintf(":%d", cfg.Port),
		"rpc_url", cfg.Ledger.RPCURL,
		"chain_id", cfg.Ledger.ChainID,
		"registry", cfg.Ledger.JobsModuleAddress,
		"account", account,
		"private_key", config.Mask(cfg.Ledger.PrivateKey),
		"providers", cfg.Providers,
		"step_budget_wei", cfg.StepBudget.String(),
		"decomposer", cfg.Decomposer,
		"openai_model", cfg.OpenAI.Model,
		"openai_api_key", config.Mask(cfg.OpenAI.APIKey),
		"metrics", cfg.MetricsEnabled,
		"tracklog", cfg.TrackLogPath != "",
		"idempotency", cfg.RedisAddr != "",
	)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
