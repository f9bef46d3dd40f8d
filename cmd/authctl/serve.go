package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sportsprop/authcore"
	"github.com/sportsprop/authcore/credstore"
	"github.com/sportsprop/authcore/httpapi"
	"github.com/sportsprop/authcore/metrics/export/prometheus"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Start the authcore HTTP API backed by a SQL account store and an optional Redis session mirror",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", ":8080", "HTTP listen address")
	addStoreFlags(cmd)
	cmd.Flags().String("redis-addr", "", "Redis address for the session mirror (default REDIS_ADDR)")
	cmd.Flags().Bool("miniredis", false, "mirror sessions into an in-process miniredis")
	return cmd
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("driver", "sqlite", "account store driver: sqlite or postgres")
	cmd.Flags().String("dsn", "authcore.db", "account store DSN (default DATABASE_URL when set)")
}

// openStore opens the account store named by --driver and --dsn.
func openStore(ctx context.Context, cmd *cobra.Command) (*credstore.Store, error) {
	driver, _ := cmd.Flags().GetString("driver")
	dsn, _ := cmd.Flags().GetString("dsn")
	if !cmd.Flags().Changed("dsn") {
		if env := strings.TrimSpace(os.Getenv("DATABASE_URL")); env != "" {
			dsn = env
		}
	}
	switch driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	return credstore.Open(ctx, driver, dsn)
}

// openRedis returns a client for the session mirror, or nil when none is
// configured. The returned cleanup is always safe to call.
func openRedis(cmd *cobra.Command) (redis.UniversalClient, func(), error) {
	useMini, _ := cmd.Flags().GetBool("miniredis")
	addr, _ := cmd.Flags().GetString("redis-addr")
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	if useMini {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, func() {}, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}
	if addr == "" {
		return nil, func() {}, nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	return client, func() { _ = client.Close() }, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(&cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	for _, w := range cfg.Lint() {
		logger.Warn("config lint", zap.String("code", w.Code), zap.String("message", w.Message))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cmd)
	if err != nil {
		return fmt.Errorf("open account store: %w", err)
	}
	defer store.Close()

	client, closeRedis, err := openRedis(cmd)
	if err != nil {
		return err
	}
	defer closeRedis()

	builder := authcore.New().
		WithConfig(cfg).
		WithCredentials(store).
		WithTOTPStore(store).
		WithProfiles(store).
		WithAuditSink(authcore.NewZapSink(logger.Named("audit"))).
		WithLogger(logger)
	if client != nil {
		builder = builder.WithRedis(client)
	}
	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if client != nil {
		n, err := engine.RestoreSessions(ctx)
		if err != nil {
			logger.Warn("session restore failed", zap.Error(err))
		} else {
			logger.Info("sessions restored", zap.Int("count", n))
		}
	}

	addr, _ := cmd.Flags().GetString("addr")
	h := httpapi.NewHandler(engine,
		httpapi.WithUsers(store),
		httpapi.WithLogger(logger),
		httpapi.WithMetricsHandler(prometheus.NewPrometheusExporter(engine).Handler()))
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
