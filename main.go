package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"shortgen/config"
	"shortgen/generators"
	"shortgen/handlers"
	"shortgen/logger"
	"shortgen/media"
	"shortgen/pipeline"
	"shortgen/store"
	"shortgen/store/sqlite"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env (local dev only — deployments use real env vars)
	_ = godotenv.Load()

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog, err := logger.New(cfg.Paths.Logs)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	secrets, err := config.LoadSecrets()
	if err != nil {
		appLog.WithError(err).Fatal("Failed to load provider credentials")
	}

	if err := os.MkdirAll(cfg.Paths.Output, 0755); err != nil {
		appLog.WithError(err).Fatal("Failed to create output dir")
	}

	var jobs store.Store
	if cfg.Paths.Database != "" {
		db, err := sqlite.Open(cfg.Paths.Database)
		if err != nil {
			appLog.WithError(err).Fatal("Failed to open job database")
		}
		defer db.Close()
		jobs = db
	} else {
		jobs = store.NewMemory()
	}

	prober := media.FFprobe{}
	adapters := pipeline.Adapters{
		Script: generators.NewScriptGenerator(cfg.Providers.Script, secrets.ScriptAPIKey, appLog),
		Voice:  generators.NewVoiceGenerator(cfg.Providers.Voice, secrets.VoiceAPIKey, prober, appLog),
		Music:  generators.NewMusicGenerator(cfg.Providers.Music, secrets.MusicAPIKey, prober, appLog),
		Video:  generators.NewVideoGenerator(cfg.Providers.Video, secrets.VideoAPIKey, prober, appLog),
	}

	reconciler := media.NewFFmpegReconciler(cfg.Audio.FadeOutSec, appLog)
	composer := media.NewFFmpegComposer(cfg.Audio.SampleRate, media.CaptionStyle{
		Position:     cfg.Captions.Position,
		Font:         cfg.Captions.Font,
		FontSize:     cfg.Captions.FontSize,
		FontColor:    cfg.Captions.FontColor,
		BorderWidth:  cfg.Captions.BorderWidth,
		MarginBottom: cfg.Captions.MarginBottom,
	}, appLog)

	orchestrator := pipeline.New(jobs, adapters, reconciler, composer,
		cfg.Pipeline, cfg.Audio, cfg.Paths.Output, appLog)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(orchestrator, float64(cfg.Server.RateLimit), cfg.Server.RateBurst, appLog),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLog.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Fatal("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	appLog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLog.WithError(err).Error("Server shutdown error")
	}
	orchestrator.Shutdown()
	appLog.Info("Shutdown complete")
}
