package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"rfsentry/cmd/rfsentry/app"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel}))

	var configPath string
	var opts app.Options
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.BoolVar(&opts.Demo, "demo", false, "Run against synthetic receivers instead of hardware")
	flag.BoolVar(&opts.Calibrate, "calibrate", false, "Measure frequency offset against the configured reference instead of detecting")
	flag.Parse()

	if configPath == "" {
		logger.Error("no configuration file provided")
		os.Exit(1)
	}

	config, err := app.LoadConfig(configPath)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
		os.Exit(1)
	}

	if err = logLevel.UnmarshalText([]byte(config.Settings.LogLevel)); err != nil {
		logger.Error(fmt.Sprintf("invalid log level: %s", config.Settings.LogLevel))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = app.Run(ctx, config, opts, logger); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
