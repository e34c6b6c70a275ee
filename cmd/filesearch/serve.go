package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/events"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/health"
)

func newServeCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve queries over HTTP, reloading on every commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a.cfg)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (default server.port)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	var cl closers
	defer cl.run()

	reg, m := openMetrics(cfg.Metrics, false, &cl)
	queryCache, redisClient := openCache(cfg.Redis, cfg.Index.DataDir, m, &cl)
	batches, db, err := openCatalog(ctx, cfg.Catalog, &cl)
	if err != nil {
		return err
	}

	engine, err := searcher.Open(cfg.Index.DataDir, searcher.Options{
		Cache:      queryCache,
		Metrics:    m,
		MaxResults: cfg.Search.MaxResults,
	})
	if err != nil {
		return err
	}
	cl.add(func() { engine.Close() })

	if len(cfg.Kafka.Brokers) > 0 {
		consumer := events.NewReloadConsumer(cfg.Kafka, engine, cfg.Index.DataDir)
		cl.add(func() { consumer.Close() })
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("reload consumer stopped", "error", err)
			}
		}()
		slog.Info("reloading on commit events", "topic", cfg.Kafka.Topics.IndexCommits)
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("generation %d, %d documents", engine.Generation(), engine.DocumentCount()),
		}
	})
	if redisClient != nil {
		checker.Register("redis", health.Ping(false, redisClient.Ping))
	}
	if db != nil {
		checker.Register("catalog", health.Ping(false, db.Ping))
	}

	var batchCatalog handler.BatchCatalog
	if batches != nil {
		batchCatalog = batches
	}
	h := handler.New(engine, queryCache, batchCatalog, cfg.Search.DefaultLimit, cfg.Search.MaxResults)
	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(h, handler.RouterOptions{
		Checker:        checker,
		Gatherer:       reg,
		Metrics:        m,
		RequestTimeout: cfg.Server.WriteTimeout,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr, "dir", cfg.Index.DataDir, "generation", engine.Generation())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("search service stopped")
	return nil
}
