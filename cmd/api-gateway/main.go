package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/circle-calendar-api/api/swagger"
	"github.com/noah-isme/circle-calendar-api/internal/handler"
	internalmiddleware "github.com/noah-isme/circle-calendar-api/internal/middleware"
	"github.com/noah-isme/circle-calendar-api/internal/repository"
	"github.com/noah-isme/circle-calendar-api/internal/service"
	"github.com/noah-isme/circle-calendar-api/pkg/cache"
	"github.com/noah-isme/circle-calendar-api/pkg/config"
	"github.com/noah-isme/circle-calendar-api/pkg/database"
	"github.com/noah-isme/circle-calendar-api/pkg/feedtoken"
	"github.com/noah-isme/circle-calendar-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/circle-calendar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/circle-calendar-api/pkg/middleware/requestid"
	"github.com/noah-isme/circle-calendar-api/pkg/realtime"
)

const icsProductID = "-//Circle Calendar//Timeline//EN"

// @title Circle Calendar API
// @version 1.0.0
// @description Composed calendar timelines with live updates, session rooms and calendar feeds
// @BasePath /
// @schemes http
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var rdb *redis.Client
	if cfg.Realtime.Driver == config.RealtimeDriverRedis || cfg.Feeds.CacheEnabled {
		rdb, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close() //nolint:errcheck
	}

	metricsSvc := service.NewMetricsService()

	eventRepo := repository.NewEventRepository(db)
	chatRepo := repository.NewChatRepository(db)

	var changes *repository.ChangeFeed
	if feed, feedErr := repository.NewChangeFeed(cfg.Database, logr); feedErr != nil {
		logr.Warn("change feed unavailable; live views will be static", zap.Error(feedErr))
	} else {
		changes = feed
		defer changes.Close() //nolint:errcheck
		go changes.Run(ctx)
	}

	palette, err := service.LoadPalette(cfg.Markers.PaletteFile)
	if err != nil {
		logr.Fatal("failed to load palette", zap.Error(err))
	}

	normalizer := service.NewEventNormalizer(logr, metricsSvc)
	var store *service.EventStoreClient
	if changes != nil {
		store = service.NewEventStoreClient(eventRepo, changes, normalizer, logr)
	} else {
		store = service.NewEventStoreClient(eventRepo, nil, normalizer, logr)
	}

	markers := service.NewMarkerGenerator(cfg.Markers)
	composer := service.NewTimelineComposer(palette, logr)
	timelineSvc := service.NewTimelineService(store, markers, composer, cfg.Markers.Enabled, logr)
	gateway := service.NewMutationGateway(eventRepo, logr, metricsSvc)

	liveViews := service.NewLiveViewManager(timelineSvc, store, gateway, cfg.Live, logr, metricsSvc)
	liveViews.Start(ctx)
	defer liveViews.Stop()

	var hub realtime.Client
	switch cfg.Realtime.Driver {
	case config.RealtimeDriverRedis:
		hub = realtime.NewRedisHub(rdb, realtime.RedisHubConfig{
			PresenceTTL: cfg.Realtime.PresenceTTL,
			ReceiveOwn:  cfg.Realtime.ReceiveOwn,
			Logger:      logr,
		})
	default:
		hub = realtime.NewMemoryHub(cfg.Realtime.ReceiveOwn, logr)
	}
	defer hub.Close() //nolint:errcheck

	rooms := service.NewRoomService(hub, chatRepo, cfg.Chat, cfg.Realtime.ResyncSpec, validator.New(), logr, metricsSvc)
	if err := rooms.Start(); err != nil {
		logr.Fatal("failed to start room service", zap.Error(err))
	}
	defer rooms.Stop()

	exportSvc := service.NewExportService(timelineSvc, icsProductID)

	var cacheRepo service.CacheRepository
	if rdb != nil {
		cacheRepo = repository.NewCacheRepository(rdb, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Feeds.CacheTTL, logr, cfg.Feeds.CacheEnabled)

	signer := feedtoken.NewSigner(cfg.Feeds.SigningSecret, cfg.Feeds.TokenTTL)
	feedSvc := service.NewFeedService(cfg.Feeds, signer, exportSvc, cacheSvc, logr)
	feedSvc.Start(ctx, store)
	defer feedSvc.Stop()

	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
	})

	timelineHandler := handler.NewTimelineHandler(timelineSvc, exportSvc, cfg.Markers.Enabled)
	eventHandler := handler.NewEventHandler(store, gateway)
	liveHandler := handler.NewLiveHandler(liveViews, cfg.CORS.AllowedOrigins, cfg.Markers.Enabled, logr)
	roomHandler := handler.NewRoomHandler(rooms, cfg.CORS.AllowedOrigins, logr)
	feedHandler := handler.NewFeedHandler(feedSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, readinessChecks(db.PingContext, rdb))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/feeds/calendar.ics", feedHandler.Calendar)

	api := r.Group(cfg.APIPrefix)
	api.GET("/markers", timelineHandler.Markers)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(authSvc))
	secured.GET("/timeline", timelineHandler.Get)
	secured.GET("/timeline/export", timelineHandler.Export)
	secured.GET("/timeline/live", liveHandler.Timeline)
	secured.PATCH("/events/:source/:id/schedule", eventHandler.Reschedule)
	secured.POST("/feeds/link", feedHandler.CreateLink)
	secured.GET("/rooms/:sessionId/live", roomHandler.Live)
	secured.GET("/metrics/summary", metricsHandler.Summary)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "realtime", cfg.Realtime.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func readinessChecks(pingDB func(context.Context) error, rdb *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"database": pingDB,
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}
	return checks
}
