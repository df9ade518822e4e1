package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimasrn/support-inbox/internal/config"
	"github.com/nimasrn/support-inbox/internal/handlers"
	"github.com/nimasrn/support-inbox/internal/notifier"
	"github.com/nimasrn/support-inbox/internal/queue"
	"github.com/nimasrn/support-inbox/internal/repository"
	"github.com/nimasrn/support-inbox/internal/services"
	xhttp "github.com/nimasrn/support-inbox/pkg/http"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/pg"
	"github.com/nimasrn/support-inbox/pkg/prom"
	"github.com/nimasrn/support-inbox/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	logger.Info("starting inbox api", "version", version, "commit", commit, "date", date)

	db, err := pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), cfg.IsDev())
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}
	defer db.Close()

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, cfg.RedisOptions("inbox-api"))
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}
	defer redis.Close("default")

	mailer, err := notifier.New(cfg.Notifier())
	if err != nil {
		logger.Error("failed to create notifier", "error", err)
		return
	}
	defer mailer.Close()

	// the api only publishes; consumers live in cmd/processor
	var publisher handlers.SubmissionPublisher
	q, err := queue.NewQueue(redisAdap, cfg.Queue())
	if err != nil {
		logger.Error("failed creating ingestion queue, submissions disabled", "error", err)
	} else {
		publisher = q
	}

	messageRepo := repository.NewMessageRepository(db)
	replyRepo := repository.NewReplyRepository(db)
	counterRepo := repository.NewStatusCounterRepository(db)

	// services
	messageService := services.NewMessageService(messageRepo, counterRepo, replyRepo)
	replyService := services.NewReplyService(messageRepo, counterRepo, replyRepo, mailer, cfg.NotifierTimeout)
	healthService := services.NewHealthService().
		Register("postgres", db).
		Register("redis", redisAdap)

	rctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if counts, err := messageService.ReconcileCounters(rctx); err != nil {
		logger.Warn("failed to reconcile status counters", "error", err)
	} else {
		logger.Info("status counters reconciled", "total", counts.Total())
	}
	cancel()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	go prom.ListenAndServer(cfg.PromAddr, cfg.PromURI)

	// transport
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpRequestTimeout))

	// v1 handlers
	inboxHandler := handlers.NewInboxHandler(messageService, replyService, publisher)
	healthHandler := handlers.NewHealthHandler(healthService)

	g := s.Router.Group("/api/v1")
	handlers.RegisterInboxRoutes(g, inboxHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(cfg.HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	s.Shutdown()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.HasPrefix(v, "--env=") {
			s := strings.SplitN(v, "=", 2)
			if _, err := os.Stat(s[1]); err != nil {
				logger.Error("failed to open the passed env file", "path", s[1], "error", err)
				return ""
			}
			return s[1]
		}
	}
	return ""
}
