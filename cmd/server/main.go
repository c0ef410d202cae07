package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/joeflack4/genonaut/internal/config"
	"github.com/joeflack4/genonaut/internal/engine"
	"github.com/joeflack4/genonaut/internal/engine/comfy"
	"github.com/joeflack4/genonaut/internal/events"
	"github.com/joeflack4/genonaut/internal/files"
	"github.com/joeflack4/genonaut/internal/job"
	"github.com/joeflack4/genonaut/internal/pool"
	"github.com/joeflack4/genonaut/internal/storage/postgres"
	"github.com/joeflack4/genonaut/middleware"
)

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

	if err := postgres.RunMigrations(db, "migrations"); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
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

	broadcaster := events.NewBroadcaster()
	gateway := events.NewGateway(broadcaster, jobRepo, log.Logger)

	workerPool := pool.NewWorkerPool(
		cfg.WorkerCount, jobRepo, contentRepo, eng, organizer, broadcaster, cfg, log.Logger,
	)
	workerPool.Start()
	log.Info().Int("workers", cfg.WorkerCount).Msg("worker pool active")

	service := job.NewJobService(jobRepo, eng, broadcaster, cfg, log.Logger)
	handler := job.NewJobHandler(service, gateway)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.ErrorHandler())

	v1 := router.Group("/api/v1")
	{
		v1.POST("/jobs", handler.Create)
		v1.GET("/jobs", handler.List)
		v1.GET("/jobs/:id", handler.Get)
		v1.POST("/jobs/:id/cancel", handler.Cancel)
		v1.GET("/jobs/:id/events", handler.Events)
	}
	router.GET("/healthz", healthHandler(eng))

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown")
	}
	workerPool.Stop()
	log.Info().Msg("shutdown complete")
}

// healthHandler reports readiness from the engine's auxiliary queue read.
// Engine trouble degrades the report; it never affects job processing.
func healthHandler(eng engine.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		info, err := eng.QueueInfo(ctx)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "engine": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"engine_pending": info.Pending,
			"engine_running": info.Running,
		})
	}
}
