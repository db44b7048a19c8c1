// Command arbwatch watches binary-outcome markets for intra-market
// arbitrage: moments where buying both sides costs less than the guaranteed
// payout. It loads configuration, wires dependencies, and runs the
// configured mode until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/arbwatch/arbwatch/internal/app"
	"github.com/arbwatch/arbwatch/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override the configured mode (watch, discover, streamtest)")
	pin := flag.String("pin", "", "pin a market into the hot tier and exit")
	unpin := flag.String("unpin", "", "remove a market pin and exit")
	blacklist := flag.String("blacklist", "", "blacklist a market and exit")
	unblacklist := flag.String("unblacklist", "", "remove a market blacklist entry and exit")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if action, marketID := overrideAction(*pin, *unpin, *blacklist, *unblacklist); action != "" {
		if err := application.Override(ctx, action, marketID); err != nil {
			logger.Error("override failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("shut down gracefully")
			return
		}
		logger.Error("exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// overrideAction returns the first watchlist flag that was set.
func overrideAction(pin, unpin, blacklist, unblacklist string) (action, marketID string) {
	switch {
	case pin != "":
		return "pin", pin
	case unpin != "":
		return "unpin", unpin
	case blacklist != "":
		return "blacklist", blacklist
	case unblacklist != "":
		return "unblacklist", unblacklist
	default:
		return "", ""
	}
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
