// Package main provides the promptvault HTTP server entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/promptvault/internal/api"
	"github.com/thebtf/promptvault/internal/auth"
	"github.com/thebtf/promptvault/internal/config"
	gormdb "github.com/thebtf/promptvault/internal/db/gorm"
	"github.com/thebtf/promptvault/internal/events"
	"github.com/thebtf/promptvault/internal/prompts"
	"github.com/thebtf/promptvault/internal/versioning"
	"github.com/thebtf/promptvault/internal/watcher"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(Version)
		return
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directory")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}

	setupLogging(cfg, *debug)

	gormLevel := logger.Silent
	if *debug {
		gormLevel = logger.Info
	}
	store, err := gormdb.NewStore(gormdb.Config{
		Driver:   cfg.DBDriver,
		Path:     cfg.DBPath,
		DSN:      cfg.DBDSN,
		MaxConns: cfg.MaxConns,
		LogLevel: gormLevel,
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("Failed to open database")
	}
	defer store.Close()

	tokens, err := auth.NewTokens(cfg.JWTSecret, time.Duration(cfg.TokenTTLMinutes)*time.Minute)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid token settings, set jwt_secret in " + config.SettingsPath())
	}

	broadcaster := events.NewBroadcaster()
	versions := versioning.NewService(store, broadcaster, versioning.Options{
		HistoryDefaultLimit: cfg.HistoryDefaultLimit,
		HistoryMaxLimit:     cfg.HistoryMaxLimit,
	})
	promptSvc := prompts.NewService(store, versions, broadcaster, prompts.Options{
		ListDefaultLimit: cfg.ListDefaultLimit,
		TagListLimit:     cfg.TagListLimit,
		PopularTagLimit:  cfg.PopularTagLimit,
	})

	server := api.New(cfg.HTTPAddr, Version, api.Deps{
		Store:       store,
		Prompts:     promptSvc,
		Versions:    versions,
		Auth:        auth.NewService(store, tokens),
		Broadcaster: broadcaster,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watchers := startWatchers(cfg)
	defer func() {
		for _, w := range watchers {
			_ = w.Stop()
		}
	}()

	if err := server.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Server error")
		return
	}
	log.Info().Msg("promptvault stopped")
}

func setupLogging(cfg *config.Config, debug bool) {
	level := cfg.ZerologLevel()
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// startWatchers exits the process when the settings file changes or the
// SQLite database disappears so the supervisor restarts with a clean state.
func startWatchers(cfg *config.Config) []*watcher.Watcher {
	var started []*watcher.Watcher

	restart := func(path, reason string) func(fsnotify.Op) {
		return func(op fsnotify.Op) {
			log.Warn().Str("path", path).Str("op", op.String()).Msg(reason + ", exiting for restart...")
			time.Sleep(100 * time.Millisecond)
			os.Exit(0)
		}
	}

	type target struct {
		path   string
		ops    fsnotify.Op
		reason string
	}
	targets := []target{
		{config.SettingsPath(), fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove, "Config file changed"},
	}
	if cfg.DBDriver == "" || cfg.DBDriver == config.DefaultDBDriver {
		targets = append(targets, target{cfg.DBPath, fsnotify.Remove, "Database file deleted"})
	}

	for _, t := range targets {
		w, err := watcher.New(t.path, t.ops, restart(t.path, t.reason))
		if err != nil {
			log.Warn().Err(err).Str("path", t.path).Msg("Failed to create file watcher")
			continue
		}
		if err := w.Start(); err != nil {
			log.Warn().Err(err).Str("path", t.path).Msg("Failed to start file watcher")
			continue
		}
		log.Info().Str("path", t.path).Msg("File watcher started")
		started = append(started, w)
	}
	return started
}
