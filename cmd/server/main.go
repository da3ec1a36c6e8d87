package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"landledger/internal/authz"
	"landledger/internal/chain"
	"landledger/internal/chain/cache"
	"landledger/internal/identity"
	"landledger/internal/notify"
	parcelservice "landledger/internal/parcel/service"
	parcelstore "landledger/internal/parcel/store"
	"landledger/internal/platform/config"
	"landledger/internal/platform/httpserver"
	"landledger/internal/platform/logger"
	"landledger/internal/platform/postgres"
	"landledger/internal/platform/redis"
	"landledger/internal/registration"
	registrationmetrics "landledger/internal/registration/metrics"
	transfermetrics "landledger/internal/transfer/metrics"
	transferservice "landledger/internal/transfer/service"
	transferstore "landledger/internal/transfer/store"
	transporthttp "landledger/internal/transport/http"
	"landledger/pkg/platform/audit"
	"landledger/pkg/platform/audit/publisher"
	auditpostgres "landledger/pkg/platform/audit/store/postgres"
	auditworker "landledger/pkg/platform/audit/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	log := logger.New()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	chainClient, err := chain.NewEthereumClient(cfg.Chain, log)
	if err != nil {
		log.Fatalf("bind chain client: %v", err)
	}
	defer chainClient.Close()

	parcels := parcelstore.NewPostgres(db)
	transfers := transferstore.NewPostgres(db)
	directory := identity.NewPostgresDirectory(db)

	auditStore := auditpostgres.NewStore(db)
	auditor := audit.NewService(auditStore, log)
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := publisher.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Fatalf("connect kafka: %v", err)
		}
		defer kafka.Close()
		go auditworker.New(auditStore, kafka, log).Run(ctx)
	}

	registrar, err := registration.NewService(parcels, chainClient, auditor, registrationmetrics.New(), log)
	if err != nil {
		log.Fatalf("build registration service: %v", err)
	}

	parcelSvc, err := parcelservice.NewService(parcels, directory, registrar, auditor, log)
	if err != nil {
		log.Fatalf("build parcel service: %v", err)
	}

	transferSvc, err := transferservice.NewService(
		transfers,
		parcels,
		directory,
		authz.NewResolver(chainClient),
		chainClient,
		notify.NewLogDispatcher(log),
		auditor,
		transferservice.NewSQLAtomic(db),
		transfermetrics.New(),
		log,
	)
	if err != nil {
		log.Fatalf("build transfer service: %v", err)
	}

	reads := cache.New(chainClient, redisClient, config.ChainReadCacheTTL)
	handler := transporthttp.NewHandler(parcelSvc, transferSvc, chainClient, reads, db, redisClient, log)
	router := transporthttp.NewRouter(handler, []byte(cfg.JWTSigningKey))

	server := httpserver.New(cfg.Addr, router)
	go func() {
		log.Printf("listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
