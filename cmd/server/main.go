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

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"attestry/internal/jwtauth"
	"attestry/internal/platform/config"
	"attestry/internal/platform/httpserver"
	"attestry/internal/platform/kafka"
	"attestry/internal/platform/logger"
	"attestry/internal/platform/metrics"
	"attestry/internal/platform/middleware"
	platformredis "attestry/internal/platform/redis"
	"attestry/internal/registry/cache"
	"attestry/internal/registry/clock"
	"attestry/internal/registry/events"
	"attestry/internal/registry/handler"
	"attestry/internal/registry/service"
	"attestry/internal/registry/store"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in internal/registry.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: postgres when configured, in-memory otherwise.
	var (
		st store.Store
		tx store.TxRunner
	)
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := store.EnsureSchema(ctx, db); err != nil {
			log.Error("migrate postgres", "error", err)
			os.Exit(1)
		}
		st = store.NewPostgres(db)
		tx = newRegistryPostgresTx(db)
		log.Info("using postgres store")
	} else {
		mem := store.NewInMemory()
		st, tx = mem, mem
		log.Warn("using in-memory store; state is not durable")
	}

	// Events: kafka when brokers are configured, in-process sink otherwise.
	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, log)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		if err := producer.EnsureTopics(ctx,
			events.TopicSchemaCreated, events.TopicAttested, events.TopicRevoked); err != nil {
			log.Error("ensure kafka topics", "error", err)
			os.Exit(1)
		}
		publisher = events.NewKafka(producer)
		log.Info("publishing events to kafka", "brokers", cfg.KafkaBrokers)
	} else {
		publisher = events.NewMemory()
		log.Warn("no kafka brokers configured; events stay in process")
	}

	jwtService := jwtauth.NewService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	validator := jwtauth.NewMiddlewareAdapter(jwtService)

	m := metrics.New()
	opts := []service.Option{
		service.WithLogger(log),
		service.WithPublisher(publisher),
		service.WithMetrics(m),
	}

	// Optional redis read-through cache for immutable schema records.
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		opts = append(opts, service.WithSchemaCache(
			cache.NewRedisSchema(redisClient.Client, cfg.SchemaCacheTTL, log)))
		log.Info("schema cache enabled")
	}

	svc := service.New(st, tx, clock.NewWall(), service.NewContextAuthorizer(), opts...)
	h := handler.New(svc, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(req.Context()); err != nil {
				log.Error("redis health check failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	h.Register(r)
	r.Group(func(protected chi.Router) {
		protected.Use(middleware.RequireAuth(validator, log))
		h.RegisterProtected(protected)
	})

	srv := httpserver.New(cfg.Addr, r)
	log.Info("starting attestry registry", "addr", cfg.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}
