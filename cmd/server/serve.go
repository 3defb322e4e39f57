package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/olyamironova/auction-engine/internal/adapter/cache"
	"github.com/olyamironova/auction-engine/internal/adapter/in_memory"
	"github.com/olyamironova/auction-engine/internal/adapter/natsbus"
	"github.com/olyamironova/auction-engine/internal/adapter/pg"
	"github.com/olyamironova/auction-engine/internal/adapter/sqlite"
	"github.com/olyamironova/auction-engine/internal/api/grpc"
	apihttp "github.com/olyamironova/auction-engine/internal/api/http"
	"github.com/olyamironova/auction-engine/internal/api/ws"
	"github.com/olyamironova/auction-engine/internal/codec"
	"github.com/olyamironova/auction-engine/internal/config"
	"github.com/olyamironova/auction-engine/internal/core"
	"github.com/olyamironova/auction-engine/internal/logging"
	"github.com/olyamironova/auction-engine/internal/metric"
	"github.com/olyamironova/auction-engine/internal/port"
)

func newServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Recover persisted auctions and serve the HTTP, websocket and gRPC APIs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rootOpts)
		},
	}
}

func serve(ctx context.Context, opts *RootOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	rules, err := cfg.Auction.Core()
	if err != nil {
		return err
	}
	stateCodec, err := codec.ByName(cfg.StateCodec)
	if err != nil {
		return err
	}

	ledger, closeLedger, err := openLedger(ctx, cfg.Ledger, log)
	if err != nil {
		return err
	}
	defer closeLedger()

	redisStore := cache.NewRedisStateStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL, stateCodec)
	defer func() { _ = redisStore.Close() }()
	store := cache.SelectStateStore(ctx, redisStore, in_memory.NewStateStore(), cfg.Redis.ProbeTimeout, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := metric.New(reg)

	var eng *core.Engine
	hub := ws.NewHub(log.Named("ws"), func(livestreamID string, viewers int) {
		if eng != nil {
			eng.SetViewerCount(livestreamID, viewers)
		}
	})
	sinks := port.Sinks{hub}
	if cfg.NATSURL != "" {
		nc, err := natsbus.Connect(cfg.NATSURL, log)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Drain()
		sinks = append(sinks, natsbus.NewSink(nc, log.Named("nats"), natsbus.WithoutTimerUpdates()))
	}

	eng, err = core.NewEngine(rules, store, ledger, sinks,
		core.WithLogger(log.Named("engine")),
		core.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	defer eng.Close()

	ready := make(chan struct{})
	runErr := make(chan error, 1)
	go func() {
		runErr <- eng.Run(ctx, func(core.RecoveryReport) { close(ready) })
	}()
	select {
	case <-ready:
	case err := <-runErr:
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	api := apihttp.NewHTTPServer(eng, hub, reg, log.Named("http"))
	api.BidInterval = cfg.BidInterval
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpc.NewGRPCServer(eng, log.Named("grpc"))
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		log.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()
	grpcSrv.MarkServing()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errCh:
		log.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	grpcSrv.Stop()
	hub.Close()
	return err
}

func openLedger(ctx context.Context, cfg config.LedgerConfig, log *zap.Logger) (port.Ledger, func(), error) {
	switch cfg.Driver {
	case "postgres":
		repo, err := pg.NewPgRepo(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		if err := repo.InitSchema(ctx); err != nil {
			repo.Close()
			return nil, nil, err
		}
		log.Info("ledger: postgres")
		return repo, repo.Close, nil
	case "sqlite":
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info("ledger: sqlite", zap.String("path", cfg.SQLitePath))
		return repo, func() { _ = repo.Close() }, nil
	default:
		log.Warn("ledger: in-memory, nothing survives a restart")
		return in_memory.NewMemoryRepo(), func() {}, nil
	}
}
