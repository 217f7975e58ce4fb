package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sheikh-saqib/funds-transfer-ledger/internal/accounts"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/api"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/config"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/events/kafka"
	redispub "github.com/sheikh-saqib/funds-transfer-ledger/internal/events/redis"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/fx"
	interfaces "github.com/sheikh-saqib/funds-transfer-ledger/internal/interfaces"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/ledger"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/logging"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/storage/postgres"
	"github.com/sheikh-saqib/funds-transfer-ledger/internal/storage/seed"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	// run returns only after its deferred cleanup (store, publisher) is done
	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.SeedAccounts {
		if _, err := seed.Run(ctx, store, logger); err != nil {
			logger.Error("seeding starter accounts failed", zap.Error(err))
		}
	}

	rates := fx.MustDefault()
	if cfg.FXRatesFile != "" {
		if rates, err = fx.LoadFile(cfg.FXRatesFile); err != nil {
			return fmt.Errorf("load exchange rates: %w", err)
		}
		logger.Info("exchange rates loaded", zap.String("file", cfg.FXRatesFile))
	}

	opts := []ledger.Option{
		ledger.WithLogger(logger),
		ledger.WithMaxAttempts(cfg.TransferMaxAttempts),
	}
	if publisher := newPublisher(cfg, logger); publisher != nil {
		defer publisher.Close()
		opts = append(opts, ledger.WithPublisher(publisher))
	}

	l := ledger.NewLedger(store, rates, opts...)
	svc := accounts.NewService(store, rates, logger)
	handler := api.NewHandler(l, svc, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("funds transfer ledger starting",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("storage", cfg.StorageDriver),
			zap.String("events", cfg.EventsDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStore fails only when the configured database cannot be reached.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (interfaces.LedgerStore, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.NewMemoryLedgerStore(), func() {}, nil
	case config.StoragePostgres:
		db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DBConnectAttempts, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return postgres.NewPostgresLedgerStore(db), func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}

func newPublisher(cfg config.Config, logger *zap.Logger) interfaces.EventPublisher {
	switch cfg.EventsDriver {
	case config.EventsKafka:
		logger.Info("publishing events to kafka", zap.Strings("brokers", cfg.KafkaBrokers))
		return kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	case config.EventsRedis:
		logger.Info("publishing events to redis", zap.String("addr", cfg.RedisAddr))
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       0,
		})
		return redispub.NewPublisher(rdb, cfg.RedisChannel)
	case config.EventsNone, "":
		return nil
	default:
		logger.Warn("unknown EVENTS_DRIVER, events disabled", zap.String("driver", cfg.EventsDriver))
		return nil
	}
}
