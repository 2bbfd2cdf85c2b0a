package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/wokeometro/app/api"
	"github.com/lysyi3m/wokeometro/app/cfg"
	"github.com/lysyi3m/wokeometro/app/database"
	"github.com/lysyi3m/wokeometro/app/feed"
	"github.com/lysyi3m/wokeometro/app/review"
	"github.com/lysyi3m/wokeometro/app/scoring"
	"github.com/lysyi3m/wokeometro/app/store"
	"github.com/lysyi3m/wokeometro/app/tasks"
	"github.com/lysyi3m/wokeometro/app/tmdb"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	setupLogger(appCfg.Debug)

	if err := run(appCfg); err != nil {
		slog.Error("Wokeometro stopped with error", "command", string(appCfg.Command), "error", err)
		os.Exit(1)
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting Wokeometro", "version", appCfg.Version, "command", string(appCfg.Command))

	rules, err := scoring.LoadRuleSet(appCfg.RulesFile)
	if err != nil {
		return fmt.Errorf("failed to load rule set: %w", err)
	}
	scorer := scoring.NewScorer(rules)
	slog.Info("Rule set loaded", "version", rules.Version, "file", appCfg.RulesFile)

	titles, err := store.NewFileStore(appCfg.DataFile, appCfg.BackupDir)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	slog.Info("Catalog loaded", "path", titles.Path(), "titles", titles.Count(), "backups", titles.BackupDir())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch appCfg.Command {
	case cfg.CommandDiscover, cfg.CommandEnrich, cfg.CommandRescore:
		return runTasks(ctx, appCfg, titles, scorer)
	default:
		return serve(ctx, appCfg, titles, scorer)
	}
}

func runTasks(ctx context.Context, appCfg *cfg.Cfg, titles store.TitleRepository, scorer *scoring.Scorer) error {
	var task tasks.TaskInterface

	switch appCfg.Command {
	case cfg.CommandDiscover:
		task = tasks.NewDiscoverTask(tasks.DiscoverOptions{
			StartYear:       appCfg.Discover.StartYear,
			EndYear:         appCfg.Discover.EndYear,
			MinVoteCount:    appCfg.Discover.MinVoteCount,
			MinVoteAverage:  appCfg.Discover.MinVoteAverage,
			MaxPagesPerYear: appCfg.Discover.MaxPages,
		}, newProvider(appCfg), titles)
	case cfg.CommandEnrich:
		task = tasks.NewEnrichTask(tasks.EnrichOptions{
			Start:           appCfg.Enrich.Start,
			End:             appCfg.Enrich.End,
			CheckpointEvery: appCfg.Enrich.CheckpointEvery,
		}, newProvider(appCfg), titles, scorer)
	case cfg.CommandRescore:
		task = tasks.NewRescoreTask(titles, scorer)
	default:
		return fmt.Errorf("unknown command %q", appCfg.Command)
	}

	return tasks.NewRunner().Run(ctx, task)
}

func newProvider(appCfg *cfg.Cfg) *tmdb.Client {
	return tmdb.NewClient(tmdb.Config{
		BaseURL:   appCfg.TMDBBaseURL,
		Token:     appCfg.TMDBToken,
		UserAgent: appCfg.UserAgent,
		Interval:  appCfg.RequestInterval,
	})
}

func serve(ctx context.Context, appCfg *cfg.Cfg, titles store.TitleRepository, scorer *scoring.Scorer) error {
	flags, err := scoring.LoadFlagCatalog(appCfg.FlagsFile)
	if err != nil {
		return fmt.Errorf("failed to load flag catalog: %w", err)
	}

	slog.Info("Opening review history", "path", appCfg.HistoryDB)
	db, err := database.NewConnection(appCfg.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to open review history: %w", err)
	}
	defer db.Close()

	history := database.NewHistoryRepository(db)
	reconciler := review.NewReconciler(titles, appCfg.AdminPIN, history)
	generator := feed.NewGenerator(appCfg.PublicURL(), appCfg.Version, flags)

	if !appCfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := api.NewHandler(titles, reconciler, history, generator, flags, scorer, appCfg.Version)
	server := api.NewServer(handler, appCfg.AdminPIN)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port, "public_url", appCfg.PublicURL())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case serveErr = <-serverErrChan:
		slog.Error("Server error", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	return serveErr
}
