package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"scenesync/internal/broadcast"
	"scenesync/internal/cache"
	"scenesync/internal/clock"
	"scenesync/internal/config"
	"scenesync/internal/conflict"
	"scenesync/internal/presence"
	"scenesync/internal/repository"
	"scenesync/internal/service"
	"scenesync/internal/state"
	"scenesync/internal/transport/rest"
	"scenesync/internal/transport/ws"
	"scenesync/internal/viewport"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found")
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(lvl)
	}

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to MongoDB")
	}
	defer mongoClient.Disconnect(ctx)

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		logrus.WithError(err).Fatal("failed to ping MongoDB")
	}
	logrus.Info("connected to MongoDB")

	db := mongoClient.Database(cfg.MongoDB)

	// Redis connection
	redisAddr := strings.TrimPrefix(cfg.RedisURI, "redis://")
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logrus.WithError(err).Fatal("failed to ping Redis")
	}
	logrus.Info("connected to Redis")

	// Core state
	clk := clock.New()
	store := state.NewStore(cfg.ActivityCap)
	tracker := presence.NewTracker(clk)
	coordinator := viewport.NewCoordinator()
	engine := conflict.NewEngine(store, clk)
	channel := broadcast.NewRedisChannel(rdb)

	// Repositories and caches
	sessionRepo := repository.NewSessionRepo(db)
	annotationRepo := repository.NewAnnotationRepo(db)
	sessionCache := cache.NewSessionCache(rdb)

	// Services
	authSvc := service.NewAuthService()
	viewportSvc := service.NewViewportService(store, coordinator, channel, clk)
	sessionSvc := service.NewSessionService(store, sessionRepo, annotationRepo, sessionCache,
		tracker, engine, viewportSvc, channel, authSvc, clk)
	annotationSvc := service.NewAnnotationService(store, engine, channel, clk)
	dispatcher := service.NewDispatcher(store, annotationSvc, tracker, clk)

	tracker.OnTransition(sessionSvc.PresenceObserver())
	viewportSvc.Start(ctx)

	// Background loops
	go tracker.Run(ctx, cfg.PresenceSweepInterval)
	go sessionSvc.RunExpireSweep(ctx, cfg.ExpireSweepInterval)
	go sessionSvc.RunPersistLoop(ctx, cfg.PersistInterval)

	// Transport
	wsHub := ws.NewHub(channel, dispatcher)
	router := rest.NewRouter(&rest.Container{
		AuthService:       authSvc,
		SessionService:    sessionSvc,
		AnnotationService: annotationSvc,
		ViewportService:   viewportSvc,
		WSHub:             wsHub,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logrus.WithField("port", cfg.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("listen and serve")
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("shutting down")

	cancel()

	// Final persist so nothing written since the last sweep is lost.
	persistCtx, persistCancel := context.WithTimeout(context.Background(), 10*time.Second)
	sessionSvc.PersistAll(persistCtx)
	persistCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Fatal("server forced to shutdown")
	}

	logrus.Info("server exited")
}
