package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"callscreen_backend/internal/calls"
	"callscreen_backend/internal/carrier"
	"callscreen_backend/internal/detector"
	"callscreen_backend/internal/events"
	apphttp "callscreen_backend/internal/http"
	"callscreen_backend/internal/http/router"
	"callscreen_backend/internal/scheduler"
	"callscreen_backend/internal/storage"
	"callscreen_backend/migrations"
	"callscreen_backend/platform/config"
	"callscreen_backend/platform/db"
	"callscreen_backend/platform/logger"
	"callscreen_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// Carrier adapter: places calls and fetches recordings
	carrierClient := carrier.NewTwilioClient(cfg)
	if !cfg.IsCarrierConfigured() {
		log.Warn("carrier credentials not configured; dialing will be rejected")
	}

	// ========================================================================
	// Detection Strategies
	// ========================================================================

	detectors := detector.NewRegistry()
	detectors.Register(detector.NewHeuristic())
	if cfg.IsMLDetectorEnabled() {
		detectors.Register(detector.NewMLRemote(cfg))
		log.Info("ml-remote detector enabled", "url", cfg.GetMLServiceURL())
	}
	if cfg.IsGenAIDetectorEnabled() {
		genaiDetector, err := detector.NewGenAI(ctx, cfg, carrierClient)
		if err != nil {
			log.Error("failed to initialize generative-ai detector", "error", err)
			panic("failed to initialize generative-ai detector: " + err.Error())
		}
		detectors.Register(genaiDetector)
		log.Info("generative-ai detector enabled", "model", cfg.GetGenAIModel())
	}

	// ========================================================================
	// Analysis Dispatch (asynq when redis is configured, in-process otherwise)
	// ========================================================================

	var dispatcher calls.AnalysisDispatcher
	var deduper calls.RecordingDeduper = calls.NoopDeduper{}
	var local *localDispatcher

	if cfg.GetRedisURL() != "" {
		schedClient, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize scheduler client", "error", err)
			panic("failed to initialize scheduler client: " + err.Error())
		}
		defer schedClient.Close()
		dispatcher = schedClient

		redisOpt, err := redis.ParseURL(cfg.GetRedisURL())
		if err != nil {
			log.Error("failed to parse redis url", "error", err)
			panic("failed to parse redis url: " + err.Error())
		}
		redisClient := redis.NewClient(redisOpt)
		defer redisClient.Close()
		deduper = calls.NewRedisDeduper(redisClient)
	} else {
		log.Warn("REDIS_URL not configured; running analysis in-process without dedup")
		local = &localDispatcher{log: log}
		dispatcher = local
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	callsModule := calls.NewModule(
		calls.NewRepository(pool),
		carrierClient,
		detectors,
		dispatcher,
		deduper,
		cfg,
		eventBus,
		val,
		log,
	)
	if local != nil {
		local.processor = callsModule.Reconciler()
	}

	// Recording archive subscribes to classification events (not HTTP-facing)
	if cfg.IsRecordingArchiveEnabled() {
		archiver, err := storage.NewArchiver(cfg, carrierClient, log)
		if err != nil {
			log.Error("failed to initialize recording archiver", "error", err)
			panic("failed to initialize recording archiver: " + err.Error())
		}
		if err := withRetry(ctx, log, "ensure recordings bucket", 5, 2*time.Second, func() error {
			return archiver.EnsureBucketExists(ctx)
		}); err != nil {
			log.Error("failed to ensure recordings bucket exists", "error", err)
			panic("failed to ensure recordings bucket exists: " + err.Error())
		}
		archiver.Subscribe(eventBus)
		log.Info("recording archiver initialized", "bucket", cfg.GetRecordingBucket())
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			callsModule,
		},
	}

	engine := router.New(app)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.GetRedisURL() != "" {
		worker, err := scheduler.NewWorker(cfg, callsModule.Reconciler(), log)
		if err != nil {
			log.Error("failed to initialize scheduler worker", "error", err)
			panic("failed to initialize scheduler worker: " + err.Error())
		}
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
	log.Info("shutdown complete")
}

// localDispatcher runs detection in-process when no task queue is available.
// Deployments without redis trade durability for zero infrastructure.
type localDispatcher struct {
	processor scheduler.RecordingProcessor
	log       *logger.Logger
}

func (d *localDispatcher) DispatchAnalysis(ctx context.Context, callID uuid.UUID, recordingURL string, durationSeconds int) error {
	if d.processor == nil {
		return fmt.Errorf("analysis processor not wired")
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := d.processor.ProcessRecording(detached, callID, recordingURL, durationSeconds); err != nil {
			d.log.WithCallID(callID.String()).Error("in-process recording analysis failed", "error", err)
		}
	}()
	return nil
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
