package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dealerhub/platform/shared/blob"
	"github.com/dealerhub/platform/shared/events"
	"github.com/dealerhub/platform/shared/middleware"
	redisClient "github.com/dealerhub/platform/shared/redis"
	"github.com/dealerhub/platform/vehicle-service/internal/cleanup"
	vehiclecmd "github.com/dealerhub/platform/vehicle-service/internal/command"
	"github.com/dealerhub/platform/vehicle-service/internal/config"
	"github.com/dealerhub/platform/vehicle-service/internal/handler"
	vehicleqry "github.com/dealerhub/platform/vehicle-service/internal/query"
	"github.com/dealerhub/platform/vehicle-service/internal/repository"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.Logging)

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     cfg.Sentry.Release,
	}); err != nil {
		log.Fatal().Err(err).Msg("sentry.Init failed")
	}
	// Flush buffered events before the program terminates.
	defer sentry.Flush(2 * time.Second)

	// Database connection (write store)
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	// Redis connection (read model store + event streaming)
	redis, err := redisClient.NewClient(redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redis.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blobs, localRoot, err := openBlobStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open blob store")
	}

	// --- CQRS wiring ---
	publisher := events.NewPublisher(redis.Client, cfg.Events.StreamMaxLen)

	vehicleWriteRepo := repository.NewVehicleWriteRepository(db)
	vehicleReadRepo := repository.NewVehicleReadRepository(db, redis.Client, cfg.Redis.CacheTTL())
	imageWriteRepo := repository.NewImageWriteRepository(db)
	imageReadRepo := repository.NewImageReadRepository(db, redis.Client, cfg.Redis.CacheTTL())

	imageCommands := vehiclecmd.NewImageCommandService(imageWriteRepo, blobs, imageReadRepo, publisher, vehiclecmd.UploadLimits{
		MaxFileSize:  cfg.Upload.MaxFileSize(),
		MaxFiles:     cfg.Upload.MaxFiles,
		AllowedTypes: cfg.Upload.AllowedTypes,
	})
	vehicleCommands := vehiclecmd.NewVehicleCommandService(vehicleWriteRepo, vehicleReadRepo, imageReadRepo, publisher)
	imageQueries := vehicleqry.NewImageQueryService(imageReadRepo, blobs)
	vehicleQueries := vehicleqry.NewVehicleQueryService(vehicleReadRepo, imageReadRepo, blobs)

	// Whole multipart body: every file at the limit plus form overhead.
	maxUpload := cfg.Upload.MaxFileSize()*int64(cfg.Upload.MaxFiles) + 1<<20
	imageHandler := handler.NewImageHandler(imageCommands, imageQueries, maxUpload)
	vehicleHandler := handler.NewVehicleHandler(vehicleCommands, vehicleQueries)

	// Setup router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.Recovery(), middleware.LoggingMiddleware(), middleware.CORS(cfg.Server.AllowOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "vehicles"})
	})
	if localRoot != "" {
		router.Static("/storage", localRoot)
	}

	var guard []gin.HandlerFunc
	if cfg.Auth.Enabled {
		guard = append(guard, middleware.AuthMiddleware([]byte(cfg.Auth.JWTSecret)))
	}
	vehicles := router.Group(cfg.Server.BasePath + "/vehicles")
	vehicleHandler.Register(vehicles, guard...)
	imageHandler.Register(vehicles)

	// Start event subscriber: vehicle.deleted purges the vehicle's images.
	if cfg.Events.SubscriberEnabled {
		go func() {
			subscriber := events.NewSubscriber(redis.Client, events.SubscriberConfig{
				Group:    "vehicle-service-group",
				Consumer: cfg.Events.Consumer,
				Stream:   events.VehicleEventsStream,
				Handler:  imageCommands.HandleVehicleEvent,
			})
			if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("subscriber stopped")
			}
		}()
	}

	var reaper *cleanup.Reaper
	if cfg.Cleanup.Enabled {
		reaper = cleanup.NewReaper(vehicleWriteRepo, imageCommands, cleanup.Config{
			Schedule:      cfg.Cleanup.Schedule,
			RetentionDays: cfg.Cleanup.RetentionDays,
			MaxBatch:      cfg.Cleanup.MaxBatch,
		})
		if err := reaper.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start cleanup reaper")
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("storage", cfg.Storage.Driver).Msg("vehicle service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("shutting down...")

	cancel()
	if reaper != nil {
		reaper.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

// openBlobStore returns the configured store and, for the local driver, the
// directory to serve under /storage.
func openBlobStore(ctx context.Context, cfg config.StorageConfig) (blob.Store, string, error) {
	if cfg.Driver == "s3" {
		store, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			PublicURL:       cfg.PublicURL,
		})
		return store, "", err
	}
	store, err := blob.NewLocalStore(cfg.LocalRoot, cfg.PublicURL)
	if err != nil {
		return nil, "", err
	}
	return store, store.Root(), nil
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
