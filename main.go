package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kdkiss/CrewAI-Command-Center/internal/activity"
	"github.com/kdkiss/CrewAI-Command-Center/internal/broadcast"
	"github.com/kdkiss/CrewAI-Command-Center/internal/config"
	"github.com/kdkiss/CrewAI-Command-Center/internal/hub"
	"github.com/kdkiss/CrewAI-Command-Center/internal/metrics"
	"github.com/kdkiss/CrewAI-Command-Center/internal/policy"
	"github.com/kdkiss/CrewAI-Command-Center/internal/runtime"
	"github.com/kdkiss/CrewAI-Command-Center/internal/service"
	"github.com/kdkiss/CrewAI-Command-Center/internal/storage"
	v1 "github.com/kdkiss/CrewAI-Command-Center/internal/transport/http/v1"
	"github.com/kdkiss/CrewAI-Command-Center/internal/watcher"
	"github.com/kdkiss/CrewAI-Command-Center/internal/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting crew backend...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Crews folder: %s", cfg.CrewsPath)
	log.Printf("Metrics database: %s", cfg.MetricsDBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Crew storage
	store, err := storage.New(cfg.CrewsPath)
	if err != nil {
		log.Fatalf("Failed to initialize crew storage: %v", err)
	}

	// Activity history ring buffer
	history := activity.NewStore(cfg.ActivityMaxEvents, cfg.ActivityRetention, cfg.ActivityStoragePath)
	go history.RunPeriodicPrune(ctx, cfg.ActivityPruneEvery)

	// Metrics persistence and recorder
	metricsStore, err := metrics.NewStore(cfg.MetricsDBPath)
	if err != nil {
		log.Fatalf("Failed to initialize metrics store: %v", err)
	}
	defer metricsStore.Close()
	recorder := metrics.NewRecorder(metricsStore, cfg.StatsRetention, cfg.RequestMetricsWindow)
	sampler := metrics.NewSampler(recorder, cfg.StatsIncludeHistory, cfg.DefaultHistoryWindow)

	// WebSocket hub
	h := hub.NewHub()
	go h.Run()

	// Launch policy engine
	policyEngine, err := policy.NewEngineFromFile(ctx, cfg.PolicyPath)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Log broadcaster and crew runtime
	recordActivity := func(eventType string, payload any) { history.Record(eventType, payload) }
	broadcaster := broadcast.NewBroadcaster(h, recordActivity, 0)
	rt := runtime.New(store, broadcaster, h, policyEngine, recordActivity)
	rt.EnsureCleanupScheduled(ctx)

	// Facade shared by HTTP and WebSocket surfaces
	svc := service.New(store, rt, history, h)

	// Periodic system stats broadcast
	go sampler.Run(ctx, cfg.StatsInterval, h)

	// Crews folder watcher
	crewsWatcher, err := watcher.New(cfg.CrewsPath, func() {
		if err := h.Emit("crews_updated", svc.ListCrews()); err != nil {
			log.Printf("Error emitting crews_updated: %v", err)
		}
	})
	if err != nil {
		log.Printf("Could not watch crews folder: %v", err)
	} else {
		go crewsWatcher.Run(ctx)
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(v1.RequestMetrics(recorder))

	v1.NewHandler(svc, sampler, recorder, cfg.DefaultHistoryWindow).RegisterRoutes(e)
	e.GET("/ws", ws.NewServer(h, svc).HandleWebSocket)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Crew backend started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down crew backend...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Crew backend stopped")
}
