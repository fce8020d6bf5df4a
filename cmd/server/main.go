package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medledger/internal/access"
	accesshandler "medledger/internal/access/handler"
	"medledger/internal/audit"
	"medledger/internal/blob"
	"medledger/internal/events"
	"medledger/internal/ledger"
	"medledger/internal/platform/config"
	"medledger/internal/platform/httpserver"
	"medledger/internal/platform/logger"
	"medledger/internal/platform/metrics"
	"medledger/internal/platform/postgres"
	platformredis "medledger/internal/platform/redis"
	"medledger/internal/records"
	recordshandler "medledger/internal/records/handler"
	"medledger/internal/registry"
	registryhandler "medledger/internal/registry/handler"
	"medledger/internal/session"
	"medledger/internal/token"
	"medledger/pkg/domain"
)

// main wires stores, services, the ledger boundary, and the HTTP transport.
// Business logic lives in the internal services; main only assembles them.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	m := metrics.New()
	bus := events.NewBus()

	// Stores: Postgres when configured, in-memory otherwise.
	var (
		registryStore registry.Store
		accessStore   access.Store
		recordStore   records.Store
	)
	pool, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			log.Error("schema setup failed", "error", err)
			os.Exit(1)
		}
		registryStore = registry.NewPostgresStore(pool)
		accessStore = access.NewPostgresStore(pool)
		recordStore = records.NewPostgresStore(pool)
		log.Info("using postgres stores")
	} else {
		registryStore = registry.NewInMemoryStore()
		accessStore = access.NewInMemoryStore()
		recordStore = records.NewInMemoryStore()
		log.Info("using in-memory stores")
	}

	// Blob store: Redis when configured.
	var blobStore blob.Store
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		blobStore = blob.NewRedisStore(redisClient.Client)
		log.Info("using redis blob store")
	} else {
		blobStore = blob.NewInMemoryStore()
		log.Info("using in-memory blob store")
	}

	// Domain services behind the ledger boundary.
	registrySvc := registry.NewService(registryStore, domain.Address(cfg.AdminAddress))
	accessSvc := access.NewService(accessStore, registrySvc, bus)
	recordsSvc := records.NewService(recordStore, accessSvc)
	ldgr := ledger.New(registrySvc, accessSvc, recordsSvc, bus)

	// Audit pipeline: every committed transition lands in the audit store, and
	// optionally in Kafka for downstream compliance consumers.
	auditCtx, stopAudit := context.WithCancel(ctx)
	defer stopAudit()

	var auditSink audit.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(ctx, cfg.Kafka)
		if err != nil {
			log.Error("kafka sink setup failed", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		auditSink = kafkaSink
		log.Info("audit events forwarded to kafka", "topic", cfg.Kafka.Topic)
	}
	auditWorker := audit.NewWorker(
		audit.NewInMemoryStore(),
		auditSink,
		ldgr.Subscribe(auditCtx, events.Filter{}),
		log,
	)
	go func() {
		if err := auditWorker.Run(auditCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	orchestrator := session.NewOrchestrator(ldgr, blobStore, registrySvc, m)
	tokenSvc := token.NewService(cfg.JWTSigningKey, "medledger")

	router := chi.NewRouter()
	registryhandler.New(ldgr, registrySvc, log, m, tokenSvc).Register(router)
	accesshandler.New(orchestrator, accessSvc, ldgr, log, m, tokenSvc).Register(router)
	recordshandler.New(orchestrator, ldgr, log, m, tokenSvc).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting medledger", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
