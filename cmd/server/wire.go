package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"cashkiosk/internal/compliance"
	"cashkiosk/internal/compliance/outbox"
	compliancestore "cashkiosk/internal/compliance/store"
	customerhandler "cashkiosk/internal/customer/handler"
	"cashkiosk/internal/customer/service"
	customerstore "cashkiosk/internal/customer/store"
	jwttoken "cashkiosk/internal/jwt_token"
	"cashkiosk/internal/platform/config"
	"cashkiosk/internal/platform/kafka"
	"cashkiosk/internal/platform/metrics"
	"cashkiosk/internal/platform/postgres"
	"cashkiosk/internal/platform/redis"
	httptransport "cashkiosk/internal/transport/http"
	"cashkiosk/internal/volume"
	"cashkiosk/pkg/platform/circuit"
)

const (
	tokenIssuer            = "cashkiosk"
	topicReplicationFactor = 1
)

type customerStore interface {
	service.Store
	volume.TransactionSummer
}

type overrideStore interface {
	compliance.Store
	outbox.Store
}

type app struct {
	router  http.Handler
	relay   *outbox.Relay
	storage string
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires stores, services and transport from cfg. An empty
// DATABASE_URL keeps all state in memory.
func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{}
	health := map[string]httptransport.HealthCheck{}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var (
		customers customerStore
		overrides overrideStore
		tx        service.Tx
	)
	if cfg.DatabaseURL == "" {
		customers = customerstore.NewInMemoryStore()
		overrides = compliancestore.NewInMemoryStore()
		a.storage = "memory"
	} else {
		db, err := openDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		health["postgres"] = db.PingContext
		customers = customerstore.NewPostgres(db)
		overrides = compliancestore.NewPostgres(db)
		tx = customerstore.NewPostgresTx(db)
		a.storage = "postgres"
	}

	volumeOpts := []volume.Option{volume.WithLogger(log)}
	rdb, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		a.Close()
		return nil, err
	}
	if rdb != nil {
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		health["redis"] = rdb.Health
		volumeOpts = append(volumeOpts, volume.WithCache(volume.NewRedisCache(rdb.Client, cfg.VolumeCacheTTL)))
	}

	var publisher outbox.Publisher = outbox.NewLogPublisher(log)
	relayOpts := []outbox.Option{
		outbox.WithLogger(log),
		outbox.WithMetrics(m),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaOverrideTopic, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, producer.Close)
		if err := producer.EnsureTopic(ctx, topicReplicationFactor); err != nil {
			a.Close()
			return nil, err
		}
		health["kafka"] = producer.Health
		publisher = producer
		relayOpts = append(relayOpts, outbox.WithBreaker(circuit.New("kafka")))
	}

	relay, err := outbox.NewRelay(overrides, publisher, relayOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.relay = relay

	tracker, err := compliance.NewTracker(overrides, compliance.WithLogger(log))
	if err != nil {
		a.Close()
		return nil, err
	}
	aggregator, err := volume.NewAggregator(customers, volumeOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	svcOpts := []service.Option{service.WithLogger(log), service.WithMetrics(m)}
	if tx != nil {
		svcOpts = append(svcOpts, service.WithTx(tx))
	}
	svc, err := service.New(customers, tracker, aggregator, service.Config{
		AnonymousCustomerID: cfg.AnonymousCustomerID,
		PageSize:            cfg.CustomerPageSize,
	}, svcOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := httptransport.RouterDeps{
		Logger:   log,
		Gatherer: reg,
		Health:   health,
		Routes:   []httptransport.Registrar{customerhandler.New(svc, log)},
	}
	if cfg.JWTSigningKey != "" {
		deps.Tokens = jwttoken.NewJWTService(cfg.JWTSigningKey, tokenIssuer)
	} else {
		log.Warn("JWT_SIGNING_KEY not set; all updates are recorded as system-initiated")
	}
	a.router = httptransport.NewRouter(deps)
	return a, nil
}

func openDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}
