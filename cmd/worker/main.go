package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/joeflack4/genonaut/internal/config"
	"github.com/joeflack4/genonaut/internal/engine/comfy"
	"github.com/joeflack4/genonaut/internal/events"
	"github.com/joeflack4/genonaut/internal/files"
	"github.com/joeflack4/genonaut/internal/pool"
	"github.com/joeflack4/genonaut/internal/storage/postgres"
)

// Standalone worker pool for scale-out deployments. Status events published
// here have no local push subscribers; clients on other instances reconcile
// through the job row.
func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	ctx := context.Background()

	cfg, err := config.LoadFromEnv(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	dbCfg, err := postgres.LoadConfigFromEnv(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load db config")
	}

	db, err := postgres.ConnectDB(ctx, dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}

	jobRepo := postgres.NewJobRepository(db)
	contentRepo := postgres.NewContentRepository(db)

	eng := comfy.NewClient(comfy.Options{
		BaseURL: cfg.EngineBaseURL,
		Timeout: cfg.EngineTimeout,
	})

	organizer, err := files.NewOrganizer(cfg.OutputBasePath, cfg.EngineOutputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up output storage")
	}

	workerPool := pool.NewWorkerPool(
		cfg.WorkerCount, jobRepo, contentRepo, eng, organizer,
		events.NewBroadcaster(), cfg, log.Logger,
	)
	workerPool.Start()
	log.Info().Int("workers", cfg.WorkerCount).Msg("worker pool active")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	workerPool.Stop()
	log.Info().Msg("shutdown complete")
}
