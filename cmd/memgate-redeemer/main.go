// Package main provides the entry point for memgate-redeemer.
//
// memgate-redeemer connects to the Discord gateway, redeems verification
// tokens posted in the verification channel and grants the member's role.
// A small HTTP listener serves /health, /ready and /metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/yndnr/memgate-go/internal/chat/discord"
	"github.com/yndnr/memgate-go/internal/config"
	"github.com/yndnr/memgate-go/internal/core/service"
	"github.com/yndnr/memgate-go/internal/infra/buildinfo"
	"github.com/yndnr/memgate-go/internal/infra/confloader"
	"github.com/yndnr/memgate-go/internal/infra/shutdown"
	"github.com/yndnr/memgate-go/internal/server/httpserver"
	"github.com/yndnr/memgate-go/internal/storage"
	"github.com/yndnr/memgate-go/internal/telemetry/logger"
	"github.com/yndnr/memgate-go/internal/telemetry/metric"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", os.Getenv("MEMGATE_CONFIG"), "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("memgate-redeemer %s\n", buildinfo.String())
		return nil
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.VerifyRedeemer(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting memgate-redeemer",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile,
		"storage", cfg.Storage.Driver)

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	repo, err := storage.Open(ctx, storage.Config{
		Driver:     cfg.Storage.Driver,
		Path:       cfg.Storage.Path,
		DSN:        cfg.Storage.DSN,
		GCInterval: cfg.Storage.GCInterval,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if err := repo.CreateSchema(ctx); err != nil {
		return errors.Join(fmt.Errorf("create schema: %w", err), repo.Close())
	}

	registry := metric.NewRegistry()
	registry.MustRegister(metric.NewCollector(func(ctx context.Context) (map[string]int, error) {
		return service.CountByState(ctx, repo)
	}))
	if m, ok := repo.(interface {
		RegisterMetrics(interface{ MustRegister(...prometheus.Collector) })
	}); ok {
		m.RegisterMetrics(registry)
	}

	bot, err := discord.NewBot(discord.BotConfig{
		Token:   cfg.Redeemer.BotToken,
		GuildID: cfg.Redeemer.GuildID,
		Prefix:  cfg.Redeemer.CommandPrefix,
		Command: cfg.Redeemer.Command,
		Logger:  log,
	})
	if err != nil {
		return errors.Join(err, repo.Close())
	}
	bot.SetHandler(service.NewRedeemer(repo, bot.Platform(), service.RedeemerConfig{
		ChannelID:     cfg.Redeemer.ChannelID,
		Command:       cfg.Redeemer.CommandPrefix + cfg.Redeemer.Command,
		CommunityName: cfg.Redeemer.CommunityName,
		UsageTTL:      cfg.Redeemer.UsageTTL,
		ErrorTTL:      cfg.Redeemer.ErrorTTL,
		WelcomeTTL:    cfg.Redeemer.WelcomeTTL,
		Logger:        log,
		Metrics:       registry,
	}))

	status := httpserver.New(cfg.Redeemer.StatusAddr, httpserver.NewRouter(httpserver.RouterConfig{
		Checks: map[string]httpserver.Check{
			"store": func(ctx context.Context) error {
				_, err := repo.List(ctx, service.ListFilter{Limit: 1})
				return err
			},
			"gateway": func(context.Context) error {
				if !bot.Ready() {
					return errors.New("gateway session not ready")
				}
				return nil
			},
		},
		Metrics: registry.Handler(),
		Logger:  log,
	}))
	if err := status.Listen(); err != nil {
		return errors.Join(fmt.Errorf("status listener: %w", err), repo.Close())
	}

	// Hooks run in reverse: bot first, then the status server, then the store.
	sh := shutdown.NewHandler(shutdownTimeout, log)
	sh.OnShutdown("store", func(context.Context) error { return repo.Close() })
	sh.OnShutdown("status", status.Shutdown)

	if err := bot.Open(); err != nil {
		sh.Shutdown()
		return fmt.Errorf("open gateway: %w", err)
	}
	sh.OnShutdown("bot", bot.Close)

	if *configFile != "" {
		w, err := watchLogLevel(*configFile, log)
		if err != nil {
			log.Warn("config watcher disabled", "error", err)
		} else {
			sh.OnShutdown("watcher", func(context.Context) error { return w.Stop() })
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("status server listening", "addr", status.Addr())
		if err := status.Serve(); err != nil {
			cancel(err)
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("redeemer started, press Ctrl+C to stop")
		return sh.Wait(gctx)
	})
	if err := g.Wait(); err != nil {
		log.Error("stopped with error", "error", err)
		return err
	}

	log.Info("redeemer stopped gracefully")
	return nil
}

// watchLogLevel reloads log.level when the config file changes. Other
// settings need a restart.
func watchLogLevel(path string, log logger.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		w.Stop()
		return nil, err
	}
	w.OnChange(func(string) {
		cfg, err := config.Load(path)
		if err != nil {
			log.Warn("config reload failed", "error", err)
			return
		}
		prev := logger.GetLevel()
		if err := logger.SetLevel(cfg.Log.Level); err != nil {
			log.Warn("log level not applied", "level", cfg.Log.Level, "error", err)
			return
		}
		if cur := logger.GetLevel(); cur != prev {
			log.Info("log level reloaded", "from", prev, "to", cur)
		}
	})
	w.StartAsync()
	return w, nil
}
