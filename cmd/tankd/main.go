// Command tankd runs the tank simulation service: a fixed-step simulator
// driven on a wall-clock ticker, a REST and WebSocket API, SQLite run
// persistence, and optional Redis telemetry.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tanksim/tankd/internal/api"
	"github.com/tanksim/tankd/internal/config"
	"github.com/tanksim/tankd/internal/dashboard"
	"github.com/tanksim/tankd/internal/history"
	"github.com/tanksim/tankd/internal/runner"
	"github.com/tanksim/tankd/internal/sim"
	"github.com/tanksim/tankd/internal/store"
	"github.com/tanksim/tankd/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "tankd.yaml", "YAML configuration path")
	listenAddr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	redisAddr := flag.String("redis", "", "Redis address for telemetry (overrides config)")
	tickMs := flag.Int("tick", 0, "step interval in milliseconds (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *listenAddr != "" {
		cfg.Listen = *listenAddr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *redisAddr != "" {
		cfg.Redis.Addr = *redisAddr
	}
	if *tickMs > 0 {
		cfg.TickMillis = *tickMs
	}

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	simulator, err := sim.New(cfg.Simulation)
	if err != nil {
		log.Fatalf("Invalid simulation config: %v", err)
	}

	db, err := store.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database at %s: %v", cfg.DBPath, err)
	}
	defer db.Close()
	log.Printf("Opened database at %s", cfg.DBPath)

	var publisher runner.Publisher
	if cfg.Redis.Addr != "" {
		pub, err := telemetry.NewRedisPublisher(ctx, cfg.Redis.Addr, cfg.Redis.Stream, cfg.Redis.MaxLen)
		if err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.Redis.Addr, err)
		}
		defer pub.Close()
		log.Printf("Publishing telemetry to Redis stream %s at %s", pub.Stream(), cfg.Redis.Addr)
		publisher = pub
	}

	ring := history.NewRing(cfg.HistorySize)
	hub := api.NewHub()
	defer hub.Shutdown()

	run, err := runner.New(runner.Options{
		Sim:          simulator,
		Store:        db,
		History:      ring,
		Hub:          hub,
		Publisher:    publisher,
		Tick:         cfg.Tick(),
		SampleStride: cfg.SampleStride,
	})
	if err != nil {
		log.Fatalf("Failed to start runner: %v", err)
	}
	log.Printf("Opened run %s", run.RunID())

	handler := &api.Handler{
		Runner:  run,
		Store:   db,
		History: ring,
		Hub:     hub,
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/", dashboard.Handler())

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		run.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("HTTP server listening on %s", cfg.Listen)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	wg.Wait()
	log.Println("Shutdown complete")
}
