package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsar-labs/pulse/internal/api"
	"github.com/pulsar-labs/pulse/internal/cache"
	"github.com/pulsar-labs/pulse/internal/config"
	"github.com/pulsar-labs/pulse/internal/database"
	"github.com/pulsar-labs/pulse/internal/domain"
	"github.com/pulsar-labs/pulse/internal/email"
	"github.com/pulsar-labs/pulse/internal/media"
	"github.com/pulsar-labs/pulse/internal/queue"
	"github.com/pulsar-labs/pulse/internal/ratelimit"
	"github.com/pulsar-labs/pulse/internal/resource"
	"github.com/pulsar-labs/pulse/internal/store"
	"github.com/pulsar-labs/pulse/internal/webhook"
	"github.com/pulsar-labs/pulse/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("starting pulse API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database pool
	pool, err := database.NewPgxPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	// Run pending migrations on boot
	if err := migrateUp(cfg, logger); err != nil {
		return err
	}

	// Shared store
	st, err := store.New(store.Config{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to store: %w", err)
	}
	defer func() { _ = st.Close() }()

	// Read-through cache. REDIS_ENABLED=false keeps the store for
	// queue and limiter but turns the cache into a no-op.
	cacheStore := st
	if !cfg.RedisEnabled {
		cacheStore = nil
	}
	resourceCache := cache.New(cacheStore, cfg.CacheTTL, logger)

	// Channel fabric
	hub := ws.NewHub([]string{"users", "posts", "media", "tasks"}, logger)
	go hub.Run()

	relayCtx, cancelRelay := context.WithCancel(context.Background())
	defer cancelRelay()
	relay := ws.NewRelay(hub, st, logger)
	go relay.Run(relayCtx)

	// Job queue
	q := queue.New(st.Client(), queue.Config{
		Lease:      cfg.QueueLease,
		MaxBackoff: cfg.QueueMaxBackoff,
	}, logger)
	publisher := queue.NewPublisher(st, logger)
	tasks := queue.NewTaskRepository(pool)

	// Webhook engine
	webhookRepo := webhook.NewRepository(pool)
	sender := webhook.NewSender(cfg.AppName)
	dispatcher := webhook.NewDispatcher(webhookRepo, q, cfg.AppName, logger)
	deliverer := webhook.NewDeliverer(webhookRepo, sender, q, logger)

	// Resource services, one broadcast channel per kind
	userSvc := resource.NewUserService(pool, ws.NewChannel(hub, "users"), dispatcher, resourceCache, logger)
	postSvc := resource.NewPostService(pool, ws.NewChannel(hub, "posts"), dispatcher, resourceCache, logger)
	mediaSvc := resource.NewMediaService(pool, ws.NewChannel(hub, "media"), dispatcher, resourceCache, logger)

	// Rate limiter
	limiter := ratelimit.NewLimiter(st.Client(), logger)

	// Job executors
	var mediaStore media.MediaStore
	if cfg.UseS3 {
		mediaStore, err = media.NewS3Store(ctx, media.S3Config{
			EndpointURL: cfg.S3EndpointURL,
			AccessKey:   cfg.S3AccessKey,
			SecretKey:   cfg.S3SecretKey,
			Bucket:      cfg.S3BucketName,
			Region:      cfg.S3Region,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize media object store: %w", err)
		}
	} else {
		mediaStore, err = media.NewDiskStore(cfg.MediaFolder)
		if err != nil {
			return fmt.Errorf("failed to prepare media folder: %w", err)
		}
	}
	processor := media.NewProcessor(mediaSvc, mediaStore, publisher, dispatcher, logger)

	mailer := email.NewSMTPMailer(email.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFromEmail,
	})
	emailJobs := email.NewJobs(mailer, limiter, email.BulkLimit{}, publisher, dispatcher, logger)

	// Worker pool
	worker := queue.NewWorker(q, cfg.QueueConcurrency, logger)
	worker.Register(media.JobProcessMedia, processor.Handle)
	worker.Register(email.JobSendEmail, emailJobs.HandleSend)
	worker.Register(email.JobSendBulkEmail, emailJobs.HandleBulk)
	worker.Register(webhook.JobDeliverWebhook, deliverer.Handle)
	worker.OnFinish(taskMirror(tasks, publisher, dispatcher, logger))

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	go worker.Run(workerCtx)

	// HTTP surface
	router := api.NewRouter(logger, &api.Dependencies{
		Config:        cfg,
		DB:            pool,
		Store:         st,
		Hub:           hub,
		Queue:         q,
		Tasks:         tasks,
		Limiter:       limiter,
		WebhookRepo:   webhookRepo,
		WebhookSender: sender,
		Users:         userSvc,
		Posts:         postSvc,
		Media:         mediaSvc,
	})
	router.Setup()

	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown: stop intake first, then drain the workers.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := router.Shutdown(); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	worker.Stop()
	cancelWorker()
	cancelRelay()

	<-shutdownCtx.Done()
	logger.Info("server stopped")

	return nil
}

// migrateUp applies pending schema migrations before serving traffic.
func migrateUp(cfg *config.Config, logger *slog.Logger) error {
	db, err := database.NewSQLPool(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	migrator, err := database.NewMigrator(db, cfg.AppName)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() { _ = migrator.Close() }()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}

// taskMirror keeps the tasks table and the notification topic in step
// with job outcomes. Webhook delivery jobs are internal plumbing and
// never surface as tasks.
func taskMirror(tasks *queue.TaskRepository, publisher *queue.Publisher, dispatcher *webhook.Dispatcher, logger *slog.Logger) func(ctx context.Context, job *queue.Job, runErr error) {
	return func(ctx context.Context, job *queue.Job, runErr error) {
		if job.Function == webhook.JobDeliverWebhook {
			return
		}

		switch job.Status {
		case queue.StatusSucceeded:
			if err := tasks.MarkCompleted(ctx, job.ID, nil); err != nil {
				logger.Warn("task mirror update failed", "task_id", job.ID, "error", err)
			}
			publisher.Progress(ctx, job.ID, "tasks", domain.TaskStatusCompleted, 100, nil)
			emit(ctx, dispatcher, webhook.EventTaskCompleted, job, "", logger)

		case queue.StatusDead:
			if err := tasks.MarkFailed(ctx, job.ID, job.LastError, job.Attempt, true); err != nil {
				logger.Warn("task mirror update failed", "task_id", job.ID, "error", err)
			}
			publisher.Progress(ctx, job.ID, "tasks", domain.TaskStatusFailed, 100, map[string]interface{}{
				"error": job.LastError,
			})
			emit(ctx, dispatcher, webhook.EventTaskFailed, job, job.LastError, logger)

		case queue.StatusRetryScheduled:
			if err := tasks.MarkFailed(ctx, job.ID, job.LastError, job.Attempt, false); err != nil {
				logger.Warn("task mirror update failed", "task_id", job.ID, "error", err)
			}
		}
	}
}

func emit(ctx context.Context, dispatcher *webhook.Dispatcher, event string, job *queue.Job, errMsg string, logger *slog.Logger) {
	data := map[string]interface{}{
		"task_id":   job.ID,
		"task_type": job.Function,
		"attempts":  job.Attempt,
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	if err := dispatcher.TriggerEvent(ctx, event, data); err != nil {
		logger.Warn("event fan-out degraded", "event", event, "error", err)
	}
}
