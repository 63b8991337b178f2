package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/student_portal/internal/app"
	"github.com/Freeeeeet/student_portal/internal/config"
	"github.com/Freeeeeet/student_portal/internal/controller"
	porthttp "github.com/Freeeeeet/student_portal/internal/http"
	"github.com/Freeeeeet/student_portal/internal/lock"
	"github.com/Freeeeeet/student_portal/internal/notify"
	"github.com/Freeeeeet/student_portal/internal/repository"
	"github.com/Freeeeeet/student_portal/internal/service"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Portal stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting student portal",
		zap.String("environment", cfg.Environment),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Bool("redis", cfg.RedisEnabled()),
		zap.Bool("bot", cfg.BotEnabled()),
	)

	pool, err := pgxpool.New(ctx, cfg.GetDBDSN())
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}

	migrator, err := app.NewMigrator(pool, logger)
	if err != nil {
		return err
	}
	if err := migrator.Run(ctx); err != nil {
		_ = migrator.Close()
		return err
	}
	_ = migrator.Close()

	store := repository.NewStore(pool)
	studentService := service.NewStudentService(store.Students(), logger)

	// Блокировка студента: redis при нескольких инстансах, иначе в памяти
	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		locker = lock.NewRedisLocker(rdb, "portal:access-lock:", cfg.LockTTL, logger)
	}

	var (
		botInstance *bot.Bot
		notifier    service.Notifier = notify.NewLogNotifier(logger)
	)
	if cfg.BotEnabled() {
		botInstance, err = bot.New(cfg.TelegramToken)
		if err != nil {
			return err
		}
		notifier = notify.NewTelegramNotifier(botInstance, studentService, logger)
	}

	accessService := service.NewAccessService(store, locker, notifier, logger,
		service.WithStoreTimeout(cfg.StoreTimeout),
	)
	paymentService := service.NewPaymentService(store, accessService, logger,
		service.WithSweepWorkers(cfg.SweepWorkers),
	)

	server := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: porthttp.NewServer(paymentService, accessService, store.Restrictions(), porthttp.Options{
			WebhookSecret:      cfg.WebhookSecret,
			CronAPIKey:         cfg.CronAPIKey,
			RestrictedRedirect: cfg.RestrictedRedirect,
		}, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	scheduler := app.NewScheduler(paymentService, cfg.SweepInterval, cfg.SweepTimeout, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if botInstance != nil {
		botController := controller.NewBotController(botInstance, studentService, accessService, logger)
		if err := botController.RegisterHandlers(ctx); err != nil {
			logger.Warn("Failed to register bot commands", zap.Error(err))
		}
		go botController.Start(ctx) //nolint:errcheck
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	logger.Info("Student portal stopped")
	return nil
}
