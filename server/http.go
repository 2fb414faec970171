package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"net/http"
	"os"
	"os/signal"
	"renderqueue/config"
	"renderqueue/constant"
	jobHandler "renderqueue/handler"
	"renderqueue/pkg/rabbitmq"
	"renderqueue/repository"
	"renderqueue/service"
	"syscall"
	"time"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	repo := repository.NewRepo(cfg.DB)

	var notifier service.Notifier
	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		// The queue still works over plain HTTP without a broker.
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
	} else {
		notifier = rabbitmq.NewPublisher(conn, cfg.Queue)
	}

	queueService := service.NewService(repo, cfg, notifier)
	serviceDeps := jobHandler.ServiceDependencies{
		QueueService: queueService,
	}

	if conn != nil {
		enqueueConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, cfg.Worker.ConsumerWorkers, jobHandler.EnqueueHandler)
		go func() {
			err := enqueueConsumer.Consume(ctx, serviceDeps)
			if err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("Render request consumer error")
			}
		}()
	}

	if cfg.Sweep.IntervalSeconds > 0 {
		go runSweeper(ctx, queueService, cfg)
	}

	h := jobHandler.NewHandler(queueService)
	r := gin.Default()
	r.Use(jobHandler.CORS())
	addHealth(r)
	addRoutes(r, h, cfg)

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func addRoutes(r *gin.Engine, h *jobHandler.Handler, cfg *config.Config) {
	jobs := r.Group("/jobs")
	{
		jobs.POST("", h.CreateJob)
		jobs.POST("/queue", h.QueueJob)
		jobs.POST("/reset", h.ResetStuck)
		jobs.GET("", h.ListJobs)
	}

	worker := r.Group("", jobHandler.WorkerAuth(cfg.Worker.Secret))
	{
		worker.POST("/jobs/claim", h.ClaimJob)
		worker.POST("/jobs/status", h.UpdateStatus)
		worker.POST("/workers/heartbeat", h.Heartbeat)
	}
}

// runSweeper is the in-process variant of the sweep cron: reclaim stuck
// jobs on a fixed cadence so recovery does not depend on an external
// scheduler being configured.
func runSweeper(ctx context.Context, svc service.Service, cfg *config.Config) {
	interval := time.Duration(cfg.Sweep.IntervalSeconds) * time.Second
	olderThan := time.Duration(cfg.Sweep.StuckMinutes) * time.Minute

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.Sweep(ctx, olderThan, true); err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("background sweep failed")
			}
		}
	}
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
