package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"Examiner/ai"
	"Examiner/bot"
	"Examiner/core"
	"Examiner/dialog"
	"Examiner/holder"
	"Examiner/lib/sl"
	"Examiner/storage"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	conf := core.MustLoad(*configPath)
	log := setupLogger(conf.Env)
	log.With(
		slog.String("config", *configPath),
		slog.String("env", conf.Env),
		slog.String("model", conf.OpenAI.Model),
		sl.Secret(conf.OpenAI.ApiKey),
	).Info("starting examiner bot")

	var sessions storage.SessionStorage
	if conf.Mongo.Enabled {
		var err error
		sessions, err = storage.NewMongoStorage(conf.MongoURI(), conf.Mongo.Database, log)
		if err != nil {
			log.With(
				slog.String("db", conf.Mongo.Database),
				slog.String("user", conf.Mongo.User),
				slog.String("host", conf.Mongo.Host),
			).Error("falling back to memory", sl.Err(err))
			sessions = storage.NewMemoryStorage()
		} else {
			log.Info("using MongoDB session storage")
		}
	} else {
		sessions = storage.NewMemoryStorage()
		log.Info("using in-memory session storage")
	}

	redisClient, err := storage.ConnectRedis(context.Background(), conf.RedisAddr(), conf.Redis.Password, conf.Redis.DB)
	if err != nil {
		// denial checks fail open until redis comes back
		log.With(slog.String("addr", conf.RedisAddr())).Warn("redis unavailable", sl.Err(err))
	}
	denials := storage.NewDenialStore(redisClient, conf.Redis.DenyTTL, log)

	orchestrator := dialog.NewOrchestrator(
		holder.NewConversation(sessions, log),
		denials,
		ai.NewExaminer(conf, log),
		log,
	)

	tgBot, err := bot.NewTgBot(conf, log)
	if err != nil {
		log.Error("creating telegram", sl.Err(err))
		return
	}
	tgBot.SetHandler(orchestrator)

	metricsServer := startMetrics(conf.Metrics.Listen, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := tgBot.Start(); err != nil {
			log.Error("bot stopped with error", sl.Err(err))
		}
	}()

	log.Info("bot started")

	sig := <-sigChan
	log.Info("received signal, shutting down", slog.String("signal", sig.String()))

	tgBot.Stop()

	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Error("stopping metrics server", sl.Err(err))
		}
		cancel()
	}
	if err := denials.Close(); err != nil {
		log.Error("closing redis", sl.Err(err))
	}
	if err := sessions.Close(); err != nil {
		log.Error("closing session storage", sl.Err(err))
	}

	log.Info("shutdown complete")
}

func startMetrics(listen string, log *slog.Logger) *http.Server {
	if listen == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.With(slog.String("listen", listen)).Info("metrics server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", sl.Err(err))
		}
	}()
	return server
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
