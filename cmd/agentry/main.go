package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agentry/agentry/internal/common/config"
	"github.com/agentry/agentry/internal/common/logger"
	"github.com/agentry/agentry/internal/eventlog"
	"github.com/agentry/agentry/internal/events/bus"
	"github.com/agentry/agentry/internal/manager"
	"github.com/agentry/agentry/internal/push"
	"github.com/agentry/agentry/internal/pushstore"
	"github.com/agentry/agentry/internal/server"
	"github.com/agentry/agentry/internal/taskstore"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting Agentry A2A server...")

	// 3. Open storage backends
	store, evlog, pushCfgs, err := openStorage(cfg)
	if err != nil {
		log.Fatal("Failed to open storage", zap.Error(err))
	}
	defer store.Close()
	defer evlog.Release()
	defer pushCfgs.Close()
	log.Info("Opened storage", zap.String("backend", cfg.Storage.Backend))

	// 4. Connect the event bus: NATS when configured, in-memory otherwise
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		eventBus = natsBus
	} else {
		eventBus = bus.NewMemoryEventBus(log)
		log.Info("Using in-memory event bus")
	}
	defer eventBus.Close()

	// 5. Start the webhook push notifier
	if cfg.Push.Enabled {
		notifier, err := push.NewNotifier(cfg.Push, eventBus, store, pushCfgs, log)
		if err != nil {
			log.Fatal("Failed to start push notifier", zap.Error(err))
		}
		defer notifier.Close()
		log.Info("Started push notifier")
	} else {
		pushCfgs = nil
	}

	// 6. Build the task manager with the sample echo agent
	mgr := manager.New(&manager.EchoHandler{}, store, evlog, pushCfgs, eventBus, log)

	// 7. Start the HTTP server
	srv := server.New(cfg, mgr, log)
	go func() {
		log.Info("HTTP server listening",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.String("rpc_path", cfg.Server.BasePath),
		)
		if err := srv.Start(); err != nil {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 8. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Agentry...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Agentry stopped")
}

// openStorage builds the task store, event log and push-config store for
// the configured backend.
func openStorage(cfg *config.Config) (taskstore.Store, eventlog.Log, pushstore.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return taskstore.NewMemoryStore(), eventlog.NewMemoryLog(), pushstore.NewMemoryStore(), nil

	case "file":
		store, err := taskstore.NewFileStore(cfg.Storage.Dir)
		if err != nil {
			return nil, nil, nil, err
		}
		log, err := eventlog.NewFileLog(cfg.Storage.Dir)
		if err != nil {
			return nil, nil, nil, err
		}
		pushCfgs, err := pushstore.NewFileStore(cfg.Storage.Dir)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, log, pushCfgs, nil

	case "sqlite":
		store, err := taskstore.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		// Event logs and push configs stay on the filesystem next to the
		// database.
		log, err := eventlog.NewFileLog(cfg.Storage.Dir)
		if err != nil {
			return nil, nil, nil, err
		}
		pushCfgs, err := pushstore.NewFileStore(cfg.Storage.Dir)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, log, pushCfgs, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}
