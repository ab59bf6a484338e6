package main // movierama API server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/movierama/internal/config"
	"github.com/iliyamo/movierama/internal/database"
	"github.com/iliyamo/movierama/internal/handler"
	"github.com/iliyamo/movierama/internal/logging"
	"github.com/iliyamo/movierama/internal/middleware"
	"github.com/iliyamo/movierama/internal/queue"
	"github.com/iliyamo/movierama/internal/repository"
	"github.com/iliyamo/movierama/internal/router"
	"github.com/iliyamo/movierama/internal/service"
)

func main() {
	config.LoadDotEnv()
	level, format := config.LoadLogConfig()
	logging.Init(logging.Config{Level: level, Format: format})

	cfg := config.Load()
	reactionCfg := config.LoadReactionConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logging.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if cfg.DBAutoMigrate {
		if err := database.EnsureSchema(ctx, db); err != nil {
			logging.Fatal().Err(err).Msg("apply schema")
		}
	}

	movies := repository.NewMovieRepo(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)

	rdb := config.NewRedisClient() // nil when redis is down
	if rdb != nil {
		defer rdb.Close()
	}

	var locker service.Locker = service.NewLocalLocker()
	if reactionCfg.LockBackend == config.LockBackendRedis {
		if rdb == nil {
			logging.Fatal().Msg("REACTION_LOCK_BACKEND=redis but redis is unavailable")
		}
		locker = service.NewRedisLocker(rdb, "movierama:lock", reactionCfg.LockTTL)
	}

	var events service.Events = service.NopEvents{}
	if cfg.AMQPURL != "" {
		pub := service.NewEventPublisher(cfg.AMQPURL)
		defer pub.Close()
		events = pub
	} else {
		logging.Info().Msg("no broker configured, reaction events are not published")
	}

	manager := service.NewReactionManager(movies,
		service.WithLocker(locker),
		service.WithEvents(events),
		service.WithLockWait(reactionCfg.LockWait),
	)
	reconciler := service.NewReconciler(movies, locker, reactionCfg.ReconcileBatch, reactionCfg.ReconcileInterval)

	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		reconciler.Run(ctx)
	}()
	if cfg.AMQPURL != "" {
		consumers := map[string]queue.Handler{
			queue.CounterDriftQueue:    reconciler.HandleDrift,
			queue.ReactionChangedQueue: queue.NewReactionLog("logs").Handle,
		}
		for name, handle := range consumers {
			workers.Add(1)
			go func(name string, handle queue.Handler) {
				defer workers.Done()
				if err := queue.Consume(ctx, cfg.AMQPURL, name, handle); err != nil && !errors.Is(err, context.Canceled) {
					logging.Error().Err(err).Str("queue", name).Msg("consumer stopped")
				}
			}(name, handle)
		}
	}

	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb)
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger())
	e.Use(echomw.Recover())

	movieHandler := handler.NewMovieHandler(movies, cache)
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterPublic(e, movieHandler, cache)
	router.RegisterMovies(e, movieHandler, handler.NewReactionHandler(manager, cache), cfg.JWTSecret, limiter)

	addr := ":" + cfg.Port
	go func() {
		logging.Info().Str("addr", addr).Str("env", cfg.Env).Str("lock_backend", reactionCfg.LockBackend).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("http shutdown")
	}
	workers.Wait()
}
