package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/opinion-monitor/internal/aggregate"
	"github.com/ignite/opinion-monitor/internal/api"
	"github.com/ignite/opinion-monitor/internal/classifier"
	"github.com/ignite/opinion-monitor/internal/config"
	"github.com/ignite/opinion-monitor/internal/extract"
	"github.com/ignite/opinion-monitor/internal/feedback"
	"github.com/ignite/opinion-monitor/internal/mailer"
	"github.com/ignite/opinion-monitor/internal/notify"
	"github.com/ignite/opinion-monitor/internal/pkg/logger"
	"github.com/ignite/opinion-monitor/internal/report"
	"github.com/ignite/opinion-monitor/internal/scheduler"
	"github.com/ignite/opinion-monitor/internal/store"
)

// apiPoolHeadroom is extra database connections reserved for HTTP handlers
// on top of the pipeline workers.
const apiPoolHeadroom = 8

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("load config failed", "path", *configPath, "error", err.Error())
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err.Error())
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Runtime.LogLevel))
	log := logger.Default()

	poolSize := cfg.Concurrency.PMail + cfg.Concurrency.PURL + apiPoolHeadroom
	st, err := store.Open(cfg.Database.DSN(), poolSize)
	if err != nil {
		log.Error("open database failed", "error", err.Error())
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.EnsureSchema(ctx); err != nil {
		log.Error("ensure schema failed", "error", err.Error())
		os.Exit(1)
	}

	mailClient, err := mailer.NewClient(cfg.Email, log)
	if err != nil {
		log.Error("build mail client failed", "error", err.Error())
		os.Exit(1)
	}

	fetcher := extract.NewRenderClient(cfg.Browser)
	extractor := extract.NewExtractor(cfg.Browser, fetcher, cfg.Concurrency.PURL, log)

	llm := classifier.NewLLMClient(cfg.AI)
	keywords := classifier.NewKeywords(cfg.Notification.SuppressKeywords)
	cls := classifier.New(cfg.Feedback, llm, st, keywords, cfg.Concurrency.PLLM, log)

	var locker aggregate.KeyedLocker
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Error("redis ping failed", "addr", cfg.Redis.Addr, "error", err.Error())
			os.Exit(1)
		}
		locker = aggregate.NewRedisLocker(client, 30*time.Second)
		log.Info("aggregation lock backed by redis", "addr", cfg.Redis.Addr)
	}
	aggregator := aggregate.New(st, locker, cfg.Aggregation, log)

	notifier := notify.New(cfg.Notification, cfg.Feedback, st, log)
	fbService := feedback.NewService(cfg.Feedback, st, log)
	reports := report.NewGenerator(st, llm, cfg.Report, log)

	handlers := api.NewHandlers(st, keywords, llm, fbService, reports, cfg.AI, log)
	server := api.NewServer(cfg.Server, handlers)

	sched := scheduler.New(cfg.Runtime, cfg.Concurrency, mailClient, st,
		extractor, cls, aggregator, notifier, fbService, log)
	sched.Start()

	go func() {
		log.Info("api server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api server failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutdown signal received")

	sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Runtime.ShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("api server shutdown failed", "error", err.Error())
	}
	log.Info("shutdown complete")
}
