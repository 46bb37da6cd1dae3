package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/taskfence/taskfence/internal/arbiter"
	"github.com/taskfence/taskfence/internal/config"
	"github.com/taskfence/taskfence/internal/database"
	"github.com/taskfence/taskfence/internal/geofence"
	"github.com/taskfence/taskfence/internal/handlers"
	"github.com/taskfence/taskfence/internal/logger"
	"github.com/taskfence/taskfence/internal/mailbox"
	"github.com/taskfence/taskfence/internal/middleware"
	"github.com/taskfence/taskfence/internal/queue"
	"github.com/taskfence/taskfence/internal/speech"
	"github.com/taskfence/taskfence/internal/state"
	"github.com/taskfence/taskfence/internal/telemetry"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	// Optional tracing
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else if tp, err := telemetry.InitTracer(context.Background(), "taskfence-server", cfg.OTELEndpoint); err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	// Database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	if err := database.Migrate(context.Background(), db); err != nil {
		zapLogger.Fatal("failed_to_migrate_database", zap.Error(err))
	}
	zapLogger.Info("connected_to_database")

	// Cross-process marker store
	store, err := state.NewRedisStore(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_redis")

	// Geofence event queue, with startup retries while the broker comes up
	eventQueue := connectEventQueue(cfg.RabbitMQURL, zapLogger)
	defer func() {
		if err := eventQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()

	// Mailbox directory for the trigger handshake
	directory, err := mailbox.NewAMQPDirectory(cfg.RabbitMQURL)
	if err != nil {
		zapLogger.Fatal("failed_to_create_mailbox_directory", zap.Error(err))
	}
	defer func() {
		if err := directory.Close(); err != nil {
			zapLogger.Warn("failed_to_close_mailbox_directory", zap.Error(err))
		}
	}()

	// Repositories
	taskRepo := database.NewTaskRepository(db)
	fenceRepo := database.NewGeofenceRepository(db)
	taskHistoryRepo := database.NewTaskHistoryRepository(db)
	notificationRepo := database.NewNotificationHistoryRepository(db)
	notificationRepo.SetLogger(zapLogger)

	// Region monitor, seeded from the store
	monitor := geofence.NewMonitor(eventQueue, zapLogger)
	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	fences, err := fenceRepo.List(seedCtx)
	seedCancel()
	if err != nil {
		zapLogger.Fatal("failed_to_load_geofences", zap.Error(err))
	}
	for _, fence := range fences {
		if err := monitor.RegisterRegion(geofence.Region{
			ID:           fence.ID,
			Latitude:     fence.Latitude,
			Longitude:    fence.Longitude,
			RadiusMeters: fence.RadiusMeters,
		}); err != nil {
			zapLogger.Warn("failed_to_register_region",
				zap.String("geofence_id", fence.ID),
				zap.Error(err),
			)
		}
	}
	zapLogger.Info("geofence_monitor_seeded", zap.Int("regions", len(fences)))

	// Speech collaborator for the quiet "queued" announcements
	var engine speech.Engine
	if cfg.SpeechEnabled {
		engine = speech.NewExecEngine(cfg.SpeechCommand, zapLogger)
	}

	arb := arbiter.New(store, taskRepo, taskHistoryRepo, directory, engine, cfg.PendingTTL, zapLogger)
	arb.OnPreempt = func(prompt arbiter.PreemptPrompt) {
		zapLogger.Info("preemption_prompt",
			zap.String("active_task_id", prompt.ActiveTaskID.String()),
			zap.Int("candidates", len(prompt.Candidates)),
			zap.Int32("notification_id", prompt.NotificationID),
		)
	}

	// Foreground side of the handshake: own the announcement mailbox for the
	// lifetime of the server.
	consumeCtx, consumeCancel := context.WithCancel(context.Background())
	defer consumeCancel()
	announcementReceiver, err := directory.Register(consumeCtx, mailbox.AnnouncementMailbox)
	if err != nil {
		zapLogger.Fatal("failed_to_register_announcement_mailbox", zap.Error(err))
	}
	defer func() {
		if err := directory.Unregister(context.Background(), mailbox.AnnouncementMailbox); err != nil {
			zapLogger.Warn("failed_to_unregister_announcement_mailbox", zap.Error(err))
		}
	}()
	go consumeAnnouncements(consumeCtx, announcementReceiver, arb, zapLogger)

	// Handlers
	healthChecker := handlers.NewHealthChecker(db, store.Client(), eventQueue)
	taskHandler := handlers.NewTaskHandler(taskRepo, zapLogger)
	fenceHandler := handlers.NewGeofenceHandler(fenceRepo, monitor, zapLogger)
	sessionHandler := handlers.NewSessionHandler(arb, zapLogger)
	pendingHandler := handlers.NewPendingHandler(store, zapLogger)
	historyHandler := handlers.NewHistoryHandler(taskHistoryRepo, notificationRepo, zapLogger)
	locationHandler := handlers.NewLocationHandler(monitor, zapLogger)

	// Router; middleware executes in registration order, outermost first
	r := mux.NewRouter()
	if cfg.OTELEnabled {
		r.Use(otelmux.Middleware("taskfence-server"))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize, zapLogger))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	rateLimitMW, err := middleware.RateLimit(store.Client(), cfg.RateLimit)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(rateLimitMW)

	taskHandler.RegisterRoutes(apiRouter.PathPrefix("/tasks").Subrouter())
	fenceHandler.RegisterRoutes(apiRouter.PathPrefix("/geofences").Subrouter())
	sessionHandler.RegisterRoutes(apiRouter.PathPrefix("/sessions").Subrouter())
	pendingHandler.RegisterRoutes(apiRouter.PathPrefix("/pending").Subrouter())
	historyHandler.RegisterRoutes(apiRouter.PathPrefix("/history").Subrouter())
	apiRouter.HandleFunc("/location", locationHandler.UpdateLocation).Methods("POST")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler(r)

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        corsHandler,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	consumeCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// connectEventQueue dials RabbitMQ with exponential backoff so the server
// survives the broker starting after it does.
func connectEventQueue(amqpURL string, zapLogger *zap.Logger) queue.EventQueue {
	const maxRetries = 10
	const initialDelay = 2 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		eventQueue, err := queue.NewRabbitMQQueue(amqpURL)
		if err == nil {
			zapLogger.Info("connected_to_rabbitmq")
			return eventQueue
		}
		lastErr = err

		delay := initialDelay * time.Duration(1<<uint(attempt))
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		zapLogger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Duration("retry_delay", delay),
			zap.Error(err),
		)
		time.Sleep(delay)
	}

	zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries",
		zap.Int("max_retries", maxRetries),
		zap.Error(lastErr),
	)
	return nil
}

// consumeAnnouncements runs the foreground side of the trigger handshake for
// the life of the server.
func consumeAnnouncements(ctx context.Context, receiver mailbox.Receiver, arb *arbiter.Arbiter, zapLogger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-receiver.Messages():
			if !ok {
				zapLogger.Info("announcement_mailbox_closed")
				return
			}
			var ann mailbox.Announcement
			if err := json.Unmarshal(msg, &ann); err != nil {
				zapLogger.Warn("malformed_announcement_ignored", zap.Error(err))
				continue
			}
			decision, err := arb.HandleAnnouncement(ctx, ann)
			if err != nil {
				zapLogger.Error("announcement_handling_failed",
					zap.Int32("notification_id", ann.NotificationID),
					zap.Error(err),
				)
				continue
			}
			zapLogger.Info("announcement_handled",
				zap.Int32("notification_id", ann.NotificationID),
				zap.String("decision", string(decision)),
			)
		}
	}
}
