package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"outbox-dispatcher/internal/config"
	"outbox-dispatcher/internal/handlers"
	"outbox-dispatcher/internal/logging"
	"outbox-dispatcher/internal/outbox"
	"outbox-dispatcher/internal/outboxstore"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "outbox-worker",
		Short: "Outbox dispatcher: polls the outbox table and applies integration events",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing app.env")
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newDLQCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the poll loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatcher(cmd.Context())
		},
	}
}

func runDispatcher(ctx context.Context) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.Environment)
	defer logger.Sync()

	pool, err := pgxpool.New(ctx, cfg.GetDBSource())
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	store := outboxstore.New(pool)

	effectHandler, err := buildEffectHandler(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build effect handler: %w", err)
	}
	projectionHandler := handlers.NewPostgresProjectionHandler(pool)

	messages := outbox.NewMessageProcessor(store, projectionHandler, effectHandler, cfg.GetMaxAttempts(logger), outbox.DefaultRetryPolicy())

	dispatcherCfg := outbox.DispatcherConfig{
		PollInterval:    cfg.GetPollInterval(logger),
		LeaseBatchSize:  cfg.GetLeaseBatchSize(logger),
		ProcessChunk:    cfg.GetProcessBatchSize(logger),
		MaxAttempts:     cfg.GetMaxAttempts(logger),
		ShutdownTimeout: cfg.GetShutdownTimeout(logger),
	}
	if dispatcherCfg.ProcessChunk == 0 {
		logger.Warn("PROCESS_BATCH_SIZE is 0: leased messages will not be processed until their leases go stale")
	}
	dispatcher := outbox.NewDispatcher(store, messages, dispatcherCfg, outbox.DefaultMetrics, logger)

	adminAddr := cfg.AdminAddr
	if adminAddr == "" {
		adminAddr = fmt.Sprintf(":%d", cfg.GetMetricsPort())
	}
	adminServer := &http.Server{Addr: adminAddr, Handler: newAdminRouter(pool)}
	go func() {
		logger.Info("admin server listening", zap.String("addr", adminAddr))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server failed", zap.Error(err))
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go dispatcher.Run(runCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received")
	cancel()
	dispatcher.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = adminServer.Shutdown(shutdownCtx)

	return nil
}

// newAdminRouter exposes /healthz and /metrics behind permissive CORS, the
// shape an internal admin dashboard or a sibling service would reach this
// worker through.
func newAdminRouter(pool *pgxpool.Pool) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := pool.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func buildEffectHandler(ctx context.Context, cfg config.Config, logger *zap.Logger) (handlers.ExternalEffectHandler, error) {
	var base handlers.ExternalEffectHandler

	switch cfg.EffectTransport {
	case "sqs":
		h, err := handlers.NewSQSEffectHandler(ctx, cfg.SQSRegion, cfg.SQSQueueURL)
		if err != nil {
			return nil, err
		}
		base = h
	case "nats":
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create jetstream context: %w", err)
		}
		base = handlers.NewNATSEffectHandler(js, cfg.NATSSubject)
	default:
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		base = handlers.NewRedisEffectHandler(redisClient)
	}

	if cfg.CircuitBreakerEnabled {
		base = handlers.NewCircuitBreakerEffectHandler(base, handlers.DefaultCircuitBreakerConfig("external-effect"), logger)
	}
	return base, nil
}

func newDLQCmd() *cobra.Command {
	dlqCmd := &cobra.Command{Use: "dlq", Short: "Inspect and requeue dead-lettered messages"}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			pool, err := pgxpool.New(cmd.Context(), cfg.GetDBSource())
			if err != nil {
				return err
			}
			defer pool.Close()

			store := outboxstore.New(pool)
			rows, err := store.ListDeadLetters(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, row := range rows {
				fmt.Printf("%s\tfailed_at=%s\terror=%s\n", row.ID, row.FailedAt.Format(time.RFC3339), row.LastError)
			}
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 100, "maximum rows to list")
	dlqCmd.AddCommand(listCmd)

	requeueCmd := &cobra.Command{
		Use:   "requeue ID",
		Short: "Move a dead-lettered message back onto the outbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}

			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			pool, err := pgxpool.New(cmd.Context(), cfg.GetDBSource())
			if err != nil {
				return err
			}
			defer pool.Close()

			store := outboxstore.New(pool)
			if err := store.RequeueDeadLetter(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("requeued %s\n", id)
			return nil
		},
	}
	dlqCmd.AddCommand(requeueCmd)

	return dlqCmd
}
