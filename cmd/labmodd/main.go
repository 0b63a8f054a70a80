// Command labmodd loads a declarative instrument configuration, validates
// it, activates the startup modules, and serves the module status API until
// interrupted. With -simulate, dummy modules stand in for classes without a
// registered factory, so any setup file can be exercised without hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openlabkit/labmod"
	"github.com/openlabkit/labmod/feeders"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "labmodd:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to the configuration document (.cfg/.yaml, .toml, .json)")
		simulate   = flag.Bool("simulate", false, "use dummy modules for unregistered classes")
		watch      = flag.Bool("watch", true, "watch the document and reload changed modules")
		checkOnly  = flag.Bool("check", false, "validate the document and exit")
		workers    = flag.Int("workers", 4, "concurrent activation workers")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *configPath == "" {
		return fmt.Errorf("-config is required")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := labmod.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	doc, err := feeders.Load(*configPath)
	if err != nil {
		return err
	}
	diags := labmod.Validate(doc)
	for _, d := range diags {
		fmt.Fprintln(os.Stderr, d)
	}
	if labmod.HasFatal(diags) {
		return fmt.Errorf("configuration has fatal diagnostics")
	}
	if *checkOnly {
		logger.Info("Configuration valid", "modules", doc.ModuleCount(), "warnings", len(diags))
		return nil
	}

	factories := labmod.NewFactoryRegistry()
	if *simulate {
		labmod.RegisterDummyFallbacks(factories)
	}

	bus := labmod.NewEventBus(logger)
	source := feeders.Source(*configPath)
	manager, err := labmod.NewManager(source, factories,
		labmod.WithLogger(logger),
		labmod.WithSubject(bus),
		labmod.WithWorkers(*workers),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.ActivateAll(ctx); err != nil {
		// Partial systems are acceptable at startup; the status API reports
		// which modules came up.
		logger.Error("Activation finished with failures", "error", err)
	}
	logger.Info("Startup complete", "active", len(manager.ActiveModules()))

	var server *labmod.StatusServer
	if doc.Global.ServerAddress != "" || doc.Global.ServerPort != 0 {
		addr := fmt.Sprintf("%s:%d", doc.Global.ServerAddress, doc.Global.ServerPort)
		server = labmod.NewStatusServer(manager, addr, logger)
		server.Start()
	}

	var sweeper *labmod.StatusSweeper
	if doc.Global.StatusSchedule != "" {
		sweeper, err = labmod.NewStatusSweeper(manager, doc.Global.StatusSchedule, bus, logger)
		if err != nil {
			return err
		}
		sweeper.Start()
	}

	var watcher *labmod.ConfigWatcher
	if *watch {
		watcher = labmod.NewConfigWatcher(*configPath, source, manager, logger)
		if err := watcher.Start(ctx); err != nil {
			return err
		}
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	if watcher != nil {
		watcher.Stop()
	}
	if sweeper != nil {
		sweeper.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Status server shutdown failed", "error", err)
		}
	}

	if err := manager.Stop(shutdownCtx); err != nil {
		logger.Error("Module teardown failed during shutdown", "error", err)
	}
	return nil
}
