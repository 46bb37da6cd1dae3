package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/taskfence/taskfence/internal/config"
	"github.com/taskfence/taskfence/internal/logger"
	"github.com/taskfence/taskfence/internal/mailbox"
	"github.com/taskfence/taskfence/internal/notify"
	"github.com/taskfence/taskfence/internal/queue"
	"github.com/taskfence/taskfence/internal/speech"
	"github.com/taskfence/taskfence/internal/state"
	"github.com/taskfence/taskfence/internal/trigger"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.TriggerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	zapLogger.Info("starting_trigger_daemon",
		zap.Bool("debug_mode", debugMode),
		zap.Int("prefetch", cfg.TriggerPrefetch),
	)

	// No long-lived database connection here: the handler opens a fresh one
	// per event and closes it on the way out.
	store, err := state.NewRedisStore(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()

	eventQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := eventQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()

	directory, err := mailbox.NewAMQPDirectory(cfg.RabbitMQURL)
	if err != nil {
		zapLogger.Fatal("failed_to_create_mailbox_directory", zap.Error(err))
	}
	defer func() {
		if err := directory.Close(); err != nil {
			zapLogger.Warn("failed_to_close_mailbox_directory", zap.Error(err))
		}
	}()

	var engine speech.Engine
	if cfg.SpeechEnabled {
		engine = speech.NewExecEngine(cfg.SpeechCommand, zapLogger)
	}

	handler := trigger.NewHandler(
		trigger.NewDatabaseConnector(cfg.DatabaseURL, zapLogger),
		directory,
		store,
		notify.NewExecNotifier(cfg.NotifyCommand, zapLogger),
		engine,
		trigger.Options{
			AckTimeout:    cfg.AckTimeout,
			SpeechTimeout: cfg.SpeechTimeout,
			SpeechPoll:    cfg.SpeechPoll,
			SpeechDefault: cfg.SpeechEnabled,
			PendingTTL:    cfg.PendingTTL,
		},
		zapLogger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	msgChan, errChan, err := eventQueue.Consume(ctx, cfg.TriggerPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming", zap.Error(err))
	}

	zapLogger.Info("trigger_daemon_consuming")

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgChan:
				if !ok {
					zapLogger.Info("message_channel_closed")
					return
				}
				event := msg.GetEvent()
				if err := handler.Handle(ctx, event); err != nil {
					zapLogger.Error("failed_to_handle_event",
						zap.String("event_id", event.ID.String()),
						zap.Error(err),
					)
					// No database means no progress; requeue for redelivery.
					if nackErr := msg.Nack(true); nackErr != nil {
						zapLogger.Warn("failed_to_nack_event", zap.Error(nackErr))
					}
					continue
				}
				if ackErr := msg.Ack(); ackErr != nil {
					zapLogger.Warn("failed_to_ack_event", zap.Error(ackErr))
				}
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errChan:
				if !ok {
					return
				}
				zapLogger.Error("queue_error", zap.Error(err))
			}
		}
	}()

	<-sigChan
	zapLogger.Info("shutdown_signal_received")
	cancel()
	zapLogger.Info("trigger_daemon_stopped")
}
