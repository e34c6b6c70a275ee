package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/events"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/sqldb"
)

// closers runs cleanup functions in reverse order of registration.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// openCatalog connects the ingest catalog, or returns nil when none is
// configured.
func openCatalog(ctx context.Context, cfg config.CatalogConfig, cl *closers) (*catalog.Store, *sqldb.Client, error) {
	if cfg.Driver == "" {
		return nil, nil, nil
	}
	db, err := sqldb.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	cl.add(func() { db.Close() })
	store := catalog.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, nil, err
	}
	slog.Info("ingest catalog enabled", "driver", db.Driver())
	return store, db, nil
}

// openNotifier returns a commit notifier, or nil when Kafka is not
// configured.
func openNotifier(cfg config.KafkaConfig, cl *closers) *events.KafkaNotifier {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	producer := kafka.NewProducer(cfg, cfg.Topics.IndexCommits)
	cl.add(func() { producer.Close() })
	slog.Info("commit notifications enabled", "brokers", cfg.Brokers, "topic", cfg.Topics.IndexCommits)
	return events.NewKafkaNotifier(producer, resilience.RetryConfig{})
}

// openCache returns the Redis result cache for dir, or nil when Redis is not
// configured or unreachable.
func openCache(cfg config.RedisConfig, dir string, m *metrics.Metrics, cl *closers) (*cache.QueryCache, *pkgredis.Client) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client, err := pkgredis.NewClient(cfg)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
		return nil, nil
	}
	cl.add(func() { client.Close() })
	breaker := resilience.NewBreaker("redis", resilience.BreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     cfg.ResetTimeout,
		CallTimeout:      cfg.Timeout,
	})
	slog.Info("search cache enabled", "addr", cfg.Addr, "ttl", cfg.CacheTTL)
	return cache.New(client, breaker, dir, cfg.CacheTTL, m), client
}

// openMetrics returns a registry with the application collectors. When
// serve is set the registry is also exposed on the metrics port.
func openMetrics(cfg config.MetricsConfig, serve bool, cl *closers) (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	if cfg.Enabled && serve {
		shutdown := metrics.StartServer(cfg.Port, reg)
		cl.add(func() { shutdown(context.Background()) })
	}
	return reg, m
}
