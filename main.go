package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/seawire/vela/internal/app"
	"github.com/seawire/vela/internal/env"
	"github.com/seawire/vela/internal/logger"
	"github.com/seawire/vela/internal/version"
	"github.com/seawire/vela/pkg/format"
)

func main() {
	startTime := time.Now()
	vlog := log.New(log.Writer(), "", 0)
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	} else {
		version.PrintVersionInfo(false, vlog)
	}

	lcfg := buildLoggerConfig()
	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(lcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	slog.SetDefault(logInstance)

	styledLogger.Info("Initialising", "version", version.Version, "pid", os.Getpid())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		styledLogger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	application, err := app.New(styledLogger)
	if err != nil {
		logger.FatalWithLogger(logInstance, "Failed to create application", "error", err)
	}

	if err := application.Start(ctx); err != nil {
		logger.FatalWithLogger(logInstance, "Failed to start application", "error", err)
	}

	<-ctx.Done()

	if err := application.Stop(context.Background()); err != nil {
		styledLogger.Error("Error during shutdown", "error", err)
	}

	reportProcessStats(styledLogger, startTime)

	styledLogger.Info("vela has shutdown")
}

func reportProcessStats(logger *logger.StyledLogger, startTime time.Time) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	logger.Info("Process Stats",
		"uptime", format.Duration(time.Since(startTime)),
		"heap_alloc", format.Bytes(m.HeapAlloc),
		"heap_sys", format.Bytes(m.HeapSys),
		"total_alloc", format.Bytes(m.TotalAlloc),
		"num_gc_cycles", m.NumGC,
		"num_goroutines", runtime.NumGoroutine(),
		"go_version", runtime.Version(),
	)
}

// buildLoggerConfig creates logger config from environment variables with defaults
func buildLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      env.GetEnvOrDefault("VELA_LOG_LEVEL", "info"),
		FileOutput: env.GetEnvBoolOrDefault("VELA_FILE_OUTPUT", true),
		LogDir:     env.GetEnvOrDefault("VELA_LOG_DIR", "./logs"),
		MaxSize:    env.GetEnvIntOrDefault("VELA_MAX_SIZE", 100),
		MaxBackups: env.GetEnvIntOrDefault("VELA_MAX_BACKUPS", 5),
		MaxAge:     env.GetEnvIntOrDefault("VELA_MAX_AGE", 30),
		Theme:      env.GetEnvOrDefault("VELA_THEME", "default"),
	}
}
