// Package main provides the docsite server entrypoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/euforicio/docsite/internal/buildinfo"
	"github.com/euforicio/docsite/internal/config"
	"github.com/euforicio/docsite/internal/content"
	"github.com/euforicio/docsite/internal/metrics"
	"github.com/euforicio/docsite/internal/renderer"
	"github.com/euforicio/docsite/internal/renderer/d2"
	"github.com/euforicio/docsite/internal/server"
)

func main() {
	cfg := config.Default()
	config.ApplyEnvOverrides(&cfg)

	flags := pflag.NewFlagSet("docsite", pflag.ExitOnError)
	config.RegisterFlags(flags, &cfg)
	versionFlag := flags.Bool("version", false, "Print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("parse flags", slog.Any("err", err))
		os.Exit(1)
	}
	if *versionFlag {
		fmt.Println(buildinfo.Summary())
		return
	}
	if err := config.Finalize(&cfg); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	logLevel := slog.LevelWarn
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	logger = logger.With("app", "docsite")
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("docsite stopped", slog.Any("err", err))
		cancel()
		//nolint:gocritic // exitAfterDefer: cancel() explicitly called before os.Exit
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.InfoContext(ctx, "starting docsite",
		slog.String("version", buildinfo.Summary()),
		slog.String("root", cfg.RootDir),
	)

	contentSvc, err := content.NewService(ctx, cfg.RootDir, renderer.NewService(logger), logger, content.Options{
		IncludeHidden: cfg.IncludeHidden,
		ExcludeDirs:   cfg.ExcludeDirs,
	})
	if err != nil {
		return fmt.Errorf("content service init: %w", err)
	}
	defer func() {
		if err := contentSvc.Close(); err != nil {
			logger.Error("close content service", slog.Any("err", err))
		}
	}()

	d2Renderer, err := d2.New(ctx, logger, &d2.Options{
		Timeout:  cfg.D2Timeout,
		CacheTTL: cfg.D2CacheTTL,
	})
	if err != nil {
		return fmt.Errorf("d2 renderer init: %w", err)
	}

	srv, err := server.New(cfg, logger, contentSvc, d2Renderer, metrics.New(nil))
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
