package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nimasrn/support-inbox/internal/config"
	"github.com/nimasrn/support-inbox/internal/processor"
	"github.com/nimasrn/support-inbox/internal/repository"
	"github.com/nimasrn/support-inbox/internal/services"
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
	logger.Info("starting ingestion processor", "version", version, "commit", commit, "date", date)

	db, err := pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), cfg.IsDev())
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}
	defer db.Close()

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, cfg.RedisOptions("inbox-processor"))
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}
	defer redis.Close("default")

	messageService := services.NewMessageService(
		repository.NewMessageRepository(db),
		repository.NewStatusCounterRepository(db),
		repository.NewReplyRepository(db),
	)

	idempotencyService := processor.NewIdempotencyService(redisAdap, cfg.Idempotency())

	service := processor.NewProcessorService(redisAdap, cfg.Processor())
	service.RegisterProcessor(processor.NewIngestionProcessor(messageService, idempotencyService))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	go func() {
		prom.ListenAndServer(cfg.PromAddr, cfg.PromURI)
	}()

	if err = service.Start(); err != nil {
		logger.Error("failed to start processor", "error", err)
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	service.Stop()
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
