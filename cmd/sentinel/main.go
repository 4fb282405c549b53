package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"TradeSentinel/internal/classifier"
	"TradeSentinel/internal/collector"
	"TradeSentinel/internal/config"
	"TradeSentinel/internal/dedup"
	"TradeSentinel/internal/health"
	"TradeSentinel/internal/logging"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/notifier"
	"TradeSentinel/internal/pipeline"
	"TradeSentinel/internal/recorder"
	"TradeSentinel/internal/session"
	"TradeSentinel/internal/supervisor"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	once := flag.Bool("once", false, "Run a single analysis and exit")
	flag.Parse()
	if v := os.Getenv("CONFIG_PATH"); v != "" && !isFlagSet("config") {
		*configPath = v
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		return 1
	}

	logCloser, err := logging.Setup(logging.Options{
		Level:      cfg.Logging.Level,
		Debug:      *isDebug,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		slog.Error("Failed to initialize logging", "error", err)
		return 1
	}
	defer logCloser.Close()
	slog.Info("TradeSentinel starting", "config", *configPath)

	loc, err := cfg.Location()
	if err != nil {
		slog.Error("Failed to load timezone", "error", err)
		return 1
	}

	// Signal handling: cancellation is observed between runs.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init session store
	store := session.NewStore(cfg.Store.File, loc)
	if err := store.Initialize(); err != nil {
		slog.Error("Failed to initialize session store", "path", cfg.Store.File, "error", err)
		return 1
	}

	// Init fetcher and classifier
	fetcher := collector.NewHTTPFetcher(cfg.Fetch.BaseURL, cfg.Fetch.APIKey, cfg.Proxy, cfg.Fetch.Timeout)
	fetcher.MaxPosts = cfg.Fetch.MaxPosts
	slog.Info("Data source configured", "fetcher", fetcher.Name(), "base_url", cfg.Fetch.BaseURL)

	gemini := classifier.NewGeminiClient(cfg.Classifier.APIKey, cfg.Classifier.Model, cfg.Proxy, cfg.Classifier.Timeout)
	if cfg.Classifier.BaseURL != "" {
		gemini.BaseURL = cfg.Classifier.BaseURL
	}
	cls := classifier.NewRetrying(gemini, classifier.RetryConfig{
		MaxAttempts: cfg.Classifier.MaxAttempts,
		BaseDelay:   cfg.Classifier.BaseDelay,
		MaxDelay:    cfg.Classifier.MaxDelay,
	}, loc)

	seen := openSeen(cfg)
	defer seen.Close()

	rec := openRecorder(ctx, cfg)
	defer rec.Close()

	coord := pipeline.NewCoordinator(pipeline.Config{
		MaxWorkers: cfg.Pipeline.MaxWorkers,
		Deadline:   cfg.Pipeline.Deadline,
		Preflight:  cfg.PreflightEnabled(),
	}, pipeline.Deps{
		Sources:    func() ([]model.Source, error) { return collector.LoadSources(cfg.Sources.File) },
		Fetcher:    fetcher,
		Classifier: cls,
		Sink:       store,
		Seen:       seen,
		Recorder:   rec,
		Location:   loc,
	})

	if *once {
		if _, err := coord.RunScheduled(ctx); err != nil {
			slog.Error("Analysis failed", "error", err)
			return 1
		}
		return 0
	}

	// Init Telegram notifier
	var tn *notifier.TelegramNotifier
	var reporter supervisor.Reporter
	if cfg.NotifierEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		reporter = tn
	} else {
		slog.Info("Telegram notifier disabled")
	}

	history, _ := rec.(recorder.History)
	sup, err := supervisor.New(supervisor.Config{
		Schedule:         cfg.Schedule.Cron,
		Heartbeat:        cfg.Schedule.Heartbeat,
		PollInterval:     cfg.Schedule.PollInterval,
		FailureThreshold: cfg.Schedule.FailureThreshold,
		RunOnStart:       cfg.Schedule.RunOnStart,
		Location:         loc,
		History:          history,
		OnRestart: func(failures int, lastErr error) {
			if tn == nil {
				return
			}
			alertCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			tn.ReportRestart(alertCtx, failures, lastErr)
		},
	}, coord, reporter)
	if err != nil {
		slog.Error("Failed to create supervisor", "error", err)
		return 1
	}

	srv := health.NewServer(sup, cfg.Server.Port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Health server listening", "port", cfg.Server.Port)
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})
	if tn != nil {
		g.Go(func() error {
			tn.StartPolling(gctx, sup.HandleCommand)
			return nil
		})
	}
	g.Go(func() error {
		return sup.Run(gctx)
	})

	err = g.Wait()
	switch {
	case errors.Is(err, supervisor.ErrRestartRequested):
		slog.Warn("Exiting for restart", "exit_code", cfg.Schedule.RestartExitCode, "error", err)
		return cfg.Schedule.RestartExitCode
	case err != nil:
		slog.Error("TradeSentinel stopped with error", "error", err)
		return 1
	}
	slog.Info("TradeSentinel stopped")
	return 0
}

func openSeen(cfg *config.Config) dedup.Seen {
	if cfg.Redis.URL == "" {
		return dedup.NewMemorySeen()
	}
	rs, err := dedup.NewRedisSeen(dedup.Config{URL: cfg.Redis.URL, TTL: cfg.Redis.TTL, Prefix: cfg.Redis.Prefix})
	if err != nil {
		slog.Warn("Redis dedup unavailable, using in-memory dedup", "error", err)
		return dedup.NewMemorySeen()
	}
	slog.Info("Redis dedup enabled")
	return rs
}

func openRecorder(ctx context.Context, cfg *config.Config) recorder.Recorder {
	if cfg.Database.PostgresDSN != "" {
		pr, err := recorder.NewPostgresRecorder(ctx, recorder.PostgresConfig{
			DSN:        cfg.Database.PostgresDSN,
			MaxConns:   cfg.Database.MaxConns,
			ViaBouncer: cfg.Database.ViaBouncer,
		})
		if err == nil {
			slog.Info("Recording runs to Postgres")
			return pr
		}
		slog.Warn("Init postgres recorder failed, trying sqlite", "error", err)
	}
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err == nil {
			slog.Info("Recording runs to SQLite", "path", cfg.Database.SQLitePath)
			return sr
		}
		slog.Warn("Init sqlite recorder failed, using noop", "error", err)
	}
	return recorder.NewNoopRecorder()
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
