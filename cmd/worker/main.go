// Package main - точка входа фонового воркера EduStake.
//
// Воркер отвечает за:
// - Истечение задач с прошедшим дедлайном и возврат стейков
// - Периодический пересчёт рекомендаций для активных студентов
// - Обновление агрегатов задач (success rate, средний рейтинг)
// - Фан-аут событий вопросов/ответов подписчикам realtime-канала
// - Авто-минтинг бейджей за отличные ревью (за фиче-флагом)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/edustake/edustake-core/config"
	"github.com/edustake/edustake-core/internal/application/eventhandler"
	"github.com/edustake/edustake-core/internal/application/query"
	"github.com/edustake/edustake-core/internal/application/saga"
	"github.com/edustake/edustake-core/internal/domain/profile"
	"github.com/edustake/edustake-core/internal/domain/shared"
	"github.com/edustake/edustake-core/internal/infrastructure/messaging"
	"github.com/edustake/edustake-core/internal/infrastructure/persistence/postgres"
	"github.com/edustake/edustake-core/internal/infrastructure/persistence/redis"
	"github.com/edustake/edustake-core/internal/infrastructure/scheduler"
	"github.com/edustake/edustake-core/internal/infrastructure/scheduler/jobs"
	"github.com/edustake/edustake-core/internal/infrastructure/service"
	"github.com/edustake/edustake-core/pkg/clock"
	"github.com/edustake/edustake-core/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	log.Info("starting EduStake worker",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. POSTGRESQL + МИГРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	var conn *postgres.Connection
	if cfg.Database.URL != "" {
		conn, err = postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	} else {
		pgCfg := postgres.DefaultConfig()
		pgCfg.Host = cfg.Database.Host
		pgCfg.Port = cfg.Database.Port
		pgCfg.Database = cfg.Database.Database
		pgCfg.User = cfg.Database.User
		pgCfg.Password = cfg.Database.Password
		pgCfg.SSLMode = cfg.Database.SSLMode
		pgCfg.MaxConns = int32(cfg.Database.MaxConns)
		pgCfg.MinConns = int32(cfg.Database.MinConns)
		pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
		pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout
		conn, err = postgres.NewConnection(ctx, pgCfg)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS И EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log

	var (
		eventBus   shared.EventBus
		closeBus   func() error
		redisCache *redis.Cache
	)

	if cfg.Redis.Disabled {
		log.Info("redis disabled, using in-memory event bus")
		localBus := messaging.NewInMemoryEventBus(busConfig)
		eventBus, closeBus = localBus, localBus.Close
	} else {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisCache.Close()

		instanceID := cfg.App.InstanceID
		if instanceID == "" {
			instanceID = uuid.NewString()
		}
		redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         redisCache.Client(),
			ChannelName:    cfg.Redis.EventChannel,
			InstanceID:     instanceID,
			LocalBusConfig: busConfig,
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("failed to start redis event bus: %w", err)
		}
		eventBus, closeBus = redisBus, redisBus.Close
		log.Info("redis event bus started", "channel", cfg.Redis.EventChannel, "instance_id", instanceID)
	}
	defer func() {
		log.Info("closing event bus...")
		_ = closeBus()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. РЕПОЗИТОРИИ
	// ─────────────────────────────────────────────────────────────────────────
	var profileRepo profile.Repository = postgres.NewProfileRepository(conn)
	if redisCache != nil {
		profileRepo = redis.NewCachedProfileRepository(profileRepo, redis.NewProfileCache(redisCache))
	}
	taskRepo := postgres.NewTaskRepository(conn)
	enrollmentRepo := postgres.NewEnrollmentRepository(conn)
	ledgerRepo := postgres.NewLedgerRepository(conn)
	badgeRepo := postgres.NewBadgeRepository(conn)
	recommendationRepo := postgres.NewRecommendationRepository(conn)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REALTIME Q&A КАНАЛ
	// ─────────────────────────────────────────────────────────────────────────
	var qaChannel *messaging.QAChannel
	if cfg.Features.IsEnabled(config.FeatureRealtimeQA) {
		qaChannel = messaging.NewQAChannel(eventBus, log)
		if err := qaChannel.Start(); err != nil {
			return fmt.Errorf("failed to start qa channel: %w", err)
		}
		defer qaChannel.Close()
		log.Info("qa channel started")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. МИНТИНГ БЕЙДЖЕЙ
	// ─────────────────────────────────────────────────────────────────────────
	anchorService := service.NewAnchorService(service.AnchorConfig{
		Latency:     cfg.Anchor.Latency,
		FailureRate: cfg.Anchor.FailureRate,
		Logger:      log,
	})
	mintingSaga := saga.NewBadgeMintingSaga(
		badgeRepo, enrollmentRepo, taskRepo,
		anchorService, clock.New(), eventBus,
		saga.DefaultBadgeMintingConfig(),
	)

	reviewedHandler := eventhandler.NewOnEnrollmentReviewedHandler(
		enrollmentRepo, taskRepo, mintingSaga, log,
		eventhandler.EnrollmentReviewedConfig{
			AutoMintBadges: cfg.Features.IsEnabled(config.FeatureAutoMintBadges),
			MintTimeout:    30 * time.Second,
		},
	)
	if err := eventBus.Subscribe(shared.EventEnrollmentReviewed, reviewedHandler.Handle); err != nil {
		return fmt.Errorf("failed to subscribe reviewed handler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Scheduler.Enabled {
		sched := scheduler.NewScheduler(log)

		expireJob := jobs.NewExpireTasksJob(
			taskRepo, enrollmentRepo, ledgerRepo, recommendationRepo, eventBus, log)
		if err := sched.Register(expireJob, scheduler.NewIntervalSchedule(cfg.Scheduler.ExpireTasksInterval)); err != nil {
			return err
		}

		if cfg.Features.IsEnabled(config.FeatureRecommendations) {
			recommender := query.NewRecommendTasksHandler(taskRepo, profileRepo, recommendationRepo)
			recommendJob := jobs.NewRecomputeRecommendationsJob(profileRepo, recommender, eventBus, log)
			if err := sched.Register(recommendJob, scheduler.NewIntervalSchedule(cfg.Scheduler.RecomputeRecommendationsInterval)); err != nil {
				return err
			}
		}

		statsJob := jobs.NewRefreshTaskStatsJob(taskRepo, enrollmentRepo, log)
		if err := sched.Register(statsJob, scheduler.NewDailySchedule(cfg.Scheduler.RefreshStatsHour, cfg.Scheduler.RefreshStatsMinute)); err != nil {
			return err
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			log.Info("stopping scheduler...")
			_ = sched.Stop()
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("EduStake worker is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		log.Info("context cancelled")
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	return nil
}

// setupLogger собирает slog поверх JSON-бэкенда pkg/logger, чтобы весь
// процесс писал логи одним форматом.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Logging.Level)
	opts.AddCaller = cfg.Logging.AddCaller
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}

	base := logger.New(opts).With(logger.Component("worker"))
	log := base.Slog()
	slog.SetDefault(log)
	return log
}
