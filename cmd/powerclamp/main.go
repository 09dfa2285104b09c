// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/powerclamp/powerclamp/internal/config"
	"github.com/powerclamp/powerclamp/internal/limiter"
	"github.com/powerclamp/powerclamp/internal/logger"
	"github.com/powerclamp/powerclamp/internal/msr"
	"github.com/powerclamp/powerclamp/internal/powersource"
	"github.com/powerclamp/powerclamp/internal/service"
	"github.com/powerclamp/powerclamp/internal/version"
)

func main() {
	cfg, err := parseArgsAndConfig()
	if err != nil {
		os.Exit(1)
	}
	logger := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	logVersionInfo(logger)
	printConfigInfo(logger, cfg)

	services := createServices(logger, cfg)
	if err := service.Init(logger, services); err != nil {
		logger.Error("Initialization failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting powerclamp")
	if err := service.Run(context.Background(), logger, services); err != nil {
		logger.Error("Powerclamp terminated with an error", "error", err)
		os.Exit(1)
	}
	logger.Info("Graceful shutdown completed")
}

func logVersionInfo(logger *slog.Logger) {
	v := version.Get()
	logger.Info("Powerclamp version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}

func parseArgsAndConfig() (*config.Config, error) {
	const appName = "powerclamp"
	app := kingpin.New(appName, "CPU package power and thermal limit daemon.")

	configFile := app.Flag("config.file", "Path to YAML configuration file").String()
	updateConfig := config.RegisterFlags(app)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger := logger.New("info", "text", os.Stderr)
	cfg := config.DefaultConfig()
	if *configFile != "" {
		logger.Info("Loading configuration file", "path", *configFile)
		loadedCfg, err := config.FromFile(*configFile)
		if err != nil {
			logger.Error("Error loading config file", "error", err.Error())
			return nil, err
		}
		cfg = loadedCfg
		logger.Info("Completed loading of configuration file", "path", *configFile)
	}

	// Command line flags override config file settings
	if err := updateConfig(cfg); err != nil {
		logger.Error("Error applying command line flags", "error", err.Error())
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err.Error())
		return nil, err
	}

	return cfg, nil
}

func printConfigInfo(logger *slog.Logger, cfg *config.Config) {
	if !logger.Enabled(context.Background(), slog.LevelInfo) || cfg.Log.Format == "json" {
		return
	}

	fmt.Printf(`
Configuration
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
%s
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`, cfg)
}

func createServices(logger *slog.Logger, cfg *config.Config) []service.Service {
	logger.Debug("Creating all services")

	device := msr.NewDevice(cfg.MSR.DevicePath, logger)
	monitor := powersource.NewMonitor(
		powersource.WithLogger(logger),
		powersource.WithIndicator(powersource.NewSysfsIndicator(cfg.PowerSource.OnlinePath)),
		powersource.WithPollInterval(time.Duration(cfg.PowerSource.PollIntervalSeconds*float64(time.Second))),
	)
	clamp := limiter.New(cfg, device, monitor, limiter.WithLogger(logger))

	return []service.Service{
		device,
		monitor,
		clamp,
		service.NewSignalHandler(os.Interrupt, syscall.SIGTERM),
	}
}
