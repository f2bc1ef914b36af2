// Package main is the entry point for the crewmesh coordinator.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crewmesh/crewmesh/internal/agent/registry"
	"github.com/crewmesh/crewmesh/internal/api"
	"github.com/crewmesh/crewmesh/internal/common/config"
	"github.com/crewmesh/crewmesh/internal/common/logger"
	"github.com/crewmesh/crewmesh/internal/common/sqlite"
	"github.com/crewmesh/crewmesh/internal/events"
	"github.com/crewmesh/crewmesh/internal/knowledge"
	"github.com/crewmesh/crewmesh/internal/lock"
	"github.com/crewmesh/crewmesh/internal/messaging"
	"github.com/crewmesh/crewmesh/internal/orchestrator"
	"github.com/crewmesh/crewmesh/internal/task"
	"github.com/crewmesh/crewmesh/internal/testrun"
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
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting crewmesh coordinator...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Open SQLite database
	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()
	log.Info("Database opened", zap.String("path", cfg.Database.Path))

	// 5. Connect the event side channel (NATS, or in-memory when unset)
	eventBus, err := events.ProvideBus(cfg.NATS, log)
	if err != nil {
		log.Fatal("Failed to connect event bus", zap.Error(err))
	}
	defer eventBus.Close()

	// 6. Initialize stores
	lockStore, err := lock.NewSQLiteStore(db)
	if err != nil {
		log.Fatal("Failed to initialize lock store", zap.Error(err))
	}
	agentStore, err := registry.NewSQLiteStore(db)
	if err != nil {
		log.Fatal("Failed to initialize agent store", zap.Error(err))
	}
	taskStore, err := task.NewSQLiteStore(db)
	if err != nil {
		log.Fatal("Failed to initialize task store", zap.Error(err))
	}
	messageStore, err := messaging.NewSQLiteStore(db)
	if err != nil {
		log.Fatal("Failed to initialize message store", zap.Error(err))
	}
	testStore, err := testrun.NewSQLiteStore(db)
	if err != nil {
		log.Fatal("Failed to initialize test store", zap.Error(err))
	}
	knowledgeStore, err := knowledge.NewSQLiteStore(db)
	if err != nil {
		log.Fatal("Failed to initialize knowledge store", zap.Error(err))
	}
	issueStore, err := orchestrator.NewSQLiteStore(db)
	if err != nil {
		log.Fatal("Failed to initialize issue store", zap.Error(err))
	}

	// 7. Build services
	locks := lock.NewManager(lockStore, eventBus, log, cfg.Locks)
	agents := registry.NewRegistry(agentStore, log)
	tasks := task.NewService(taskStore, locks, agents, eventBus, log)
	messages := messaging.NewService(messageStore, agents, eventBus, log, cfg.Messaging)
	testing := testrun.NewCoordinator(testStore, locks, testrun.NewGoTestRunner(), eventBus, log, cfg.Testing)
	know := knowledge.NewService(knowledgeStore, eventBus, log, cfg.Knowledge)
	issues := orchestrator.NewService(issueStore, agents, locks, know, eventBus, log, cfg.Orchestrator)

	// 8. Start background sweeps
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { locks.RunSweeper(groupCtx); return nil })
	group.Go(func() error { messages.RunRetentionSweeper(groupCtx); return nil })
	group.Go(func() error { testing.RunQueueDrainer(groupCtx); return nil })
	group.Go(func() error { testing.RunReservationSweeper(groupCtx); return nil })
	group.Go(func() error { know.RunDecaySweeper(groupCtx); return nil })
	group.Go(func() error { issues.RunSweeper(groupCtx); return nil })
	log.Info("Background sweeps started")

	// 9. Build the HTTP server
	handler := api.NewHandler(tasks, locks, agents, messages, testing, know, issues, log)
	router := api.NewRouter(handler, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	group.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// 10. Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case <-groupCtx.Done():
		log.Error("Background worker failed", zap.Error(groupCtx.Err()))
	}

	// 11. Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	cancel()
	if err := group.Wait(); err != nil {
		log.Error("Worker group exited with error", zap.Error(err))
	}
	log.Info("Coordinator stopped")
}
