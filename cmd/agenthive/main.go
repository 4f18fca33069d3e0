package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AGENTHIVE/internal/orchestrator"
	"github.com/AGENTHIVE/internal/server"
	"github.com/AGENTHIVE/internal/types"
)

// ANSI color codes for terminal output
const (
	colorGreen = "\033[32m"
	colorReset = "\033[0m"
)

func main() {
	configPath := flag.String("config", "configs/agenthive.yaml", "Configuration file")
	port := flag.Int("port", 0, "Control API port (overrides config)")
	busPort := flag.Int("bus-port", 0, "Message bus port (overrides config)")
	agents := flag.Int("agents", 0, "Target agent population (overrides config)")
	storePath := flag.String("store", "", "History store path (enables persistence)")
	flag.Parse()

	cfg, err := types.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *busPort > 0 {
		cfg.Bus.Port = *busPort
	}
	if *agents > 0 {
		cfg.Hierarchy.TotalAgents = *agents
	}
	if *storePath != "" {
		cfg.Store.Enabled = true
		cfg.Store.Path = *storePath
	}

	orch, err := orchestrator.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start orchestrator: %v\n", err)
		orch.Stop()
		os.Exit(1)
	}

	srv := server.New(cfg.Server, orch)
	if err := srv.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start control API: %v\n", err)
		orch.Stop()
		os.Exit(1)
	}

	fmt.Printf("%sAGENTHIVE ready: %d agents, control API on :%d%s\n",
		colorGreen, cfg.Hierarchy.TotalAgents, cfg.Server.Port, colorReset)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("[MAIN] Received %s, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[MAIN] HTTP shutdown error: %v", err)
	}
	cancel()
	orch.Stop()
}
