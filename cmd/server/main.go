// Command server boots one elevator-fleet node: it loads configuration,
// wires the Lift/Order Server/Auctioneer/Watchdog actors plus discovery and
// the RPC transport via internal/cluster, mounts the HTTP observation
// surface, and runs until a shutdown signal arrives. Adapted from the
// teacher's cmd/server/main.go (config -> logging -> manager -> HTTP
// server -> signal-driven graceful shutdown) with the single-elevator
// manager replaced by a fully wired cluster.Node.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slavakukuyev/elevator-fleet/internal/cluster"
	"github.com/slavakukuyev/elevator-fleet/internal/config"
	"github.com/slavakukuyev/elevator-fleet/internal/domain"
	"github.com/slavakukuyev/elevator-fleet/internal/httpapi"
	"github.com/slavakukuyev/elevator-fleet/internal/lift"
	"github.com/slavakukuyev/elevator-fleet/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Init(cfg.LogLevel, cfg.NodeName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.InfoContext(ctx, "elevator-fleet node starting",
		slog.String("node", cfg.NodeName),
		slog.Int("floor_count", cfg.FloorCount),
		slog.Int("discovery_port", cfg.DiscoveryPort),
		slog.Int("rpc_port", cfg.RPCPort),
		slog.Int("http_port", cfg.HTTPPort))

	// The hardware Driver/FloorSensor/ButtonSensor is an external
	// collaborator (spec §1); SimDriver stands in for the physical socket
	// so a node is fully runnable without real hardware attached. Advance
	// is a no-op whenever the motor is idle, so a steady ticker is enough
	// to simulate cab movement without a real floor sensor.
	driver := lift.NewSimDriver(domain.NewFloor(0))
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				driver.Advance()
			}
		}
	}()

	node, err := cluster.New(cfg, driver, logger)
	if err != nil {
		logger.ErrorContext(ctx, "failed to start node", slog.String("error", err.Error()))
		os.Exit(1)
	}

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpServer := httpapi.NewServer(httpAddr, cfg.FloorCount, node, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-quit:
		logger.InfoContext(ctx, "received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErr:
		logger.ErrorContext(ctx, "http server failed", slog.String("error", err.Error()))
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(ctx, "http server shutdown failed", slog.String("error", err.Error()))
	}

	node.Shutdown()
	logger.Info("elevator-fleet node stopped", slog.Duration("grace_period", cfg.ShutdownGrace))
	time.Sleep(cfg.ShutdownGrace)
}
