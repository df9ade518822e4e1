package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nimasrn/support-inbox/internal/queue"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/redis"
	"github.com/nimasrn/support-inbox/pkg/worker"
)

const (
	DefaultProcessingTimeout = 5 * time.Second
	HealthInterval           = 30 * time.Second
	MetricsInterval          = 30 * time.Second
	ShutdownTimeout          = time.Minute
	highLagThreshold         = 10_000
)

var ErrNoProcessor = errors.New("no processor registered")

// Processor handles one decoded queue message. A nil error acks it.
type Processor interface {
	Process(ctx context.Context, message *queue.Message) error
	GetType() string
}

type ServiceConfig struct {
	Queue             queue.QueueConfig
	Consumers         int
	Workers           int
	BufferSize        int
	ProcessingTimeout time.Duration
}

func (c *ServiceConfig) applyDefaults() {
	if c.Consumers < 1 {
		c.Consumers = 1
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.BufferSize < c.Workers {
		c.BufferSize = c.Workers
	}
	if c.ProcessingTimeout <= 0 {
		c.ProcessingTimeout = DefaultProcessingTimeout
	}
}

// ProcessorService runs queue consumers that hand messages to a worker pool
// and wait for each result before acking.
type ProcessorService struct {
	adapter   redis.RedisAdapter
	config    ServiceConfig
	queues    []*queue.Queue
	processor Processor
	metrics   *ServiceMetrics
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	worker    *worker.WorkerManager
	stopOnce  sync.Once
}

func NewProcessorService(adapter redis.RedisAdapter, cfg ServiceConfig) *ProcessorService {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessorService{
		adapter: adapter,
		config:  cfg,
		metrics: NewServiceMetrics(),
		ctx:     ctx,
		cancel:  cancel,
		worker:  worker.NewWorkerManager(cfg.BufferSize, cfg.Workers, nil),
	}
}

func (s *ProcessorService) RegisterProcessor(p Processor) {
	s.processor = p
	logger.Info("registered processor", "type", p.GetType())
}

func (s *ProcessorService) Metrics() *ServiceMetrics {
	return s.metrics
}

func (s *ProcessorService) Start() error {
	if s.processor == nil {
		return ErrNoProcessor
	}

	s.worker.SetWorker(s.workerHandler)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.worker.Start(); err != nil && !errors.Is(err, worker.ErrStopped) {
			logger.Error("worker manager stopped", "error", err)
		}
	}()

	for i := 0; i < s.config.Consumers; i++ {
		qc := s.config.Queue
		qc.ConsumerName = fmt.Sprintf("%s-instance-%d", qc.ConsumerName, i)

		q, err := queue.NewQueue(s.adapter, qc)
		if err != nil {
			s.Stop()
			return fmt.Errorf("failed to create queue %d: %w", i, err)
		}
		if err := q.Consume(s.messageHandler); err != nil {
			s.Stop()
			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}

		s.queues = append(s.queues, q)
	}

	s.wg.Add(2)
	go s.metricsReporter()
	go s.healthChecker()

	logger.Info("processor service started",
		"queue", s.config.Queue.Name,
		"consumers", len(s.queues),
		"workers", s.config.Workers)
	return nil
}

func (s *ProcessorService) metricsReporter() {
	defer s.wg.Done()

	ticker := time.NewTicker(MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportMetrics()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) reportMetrics() {
	stats := s.metrics.Snapshot()
	logger.Info("processor metrics",
		"total_processed", stats.Processed,
		"total_failed", stats.Failed,
		"rate_per_second", stats.RatePerSecond,
		"avg_duration_ms", stats.AvgDuration.Milliseconds(),
		"uptime_seconds", stats.Uptime.Seconds(),
		"buffered_jobs", s.worker.GetUnreadCount())

	if len(s.queues) == 0 {
		return
	}
	// Consumers share one stream, so one queue's stats cover all of them.
	if qs, err := s.queues[0].GetStats(); err == nil {
		logger.Info("queue stats",
			"queue", s.config.Queue.Name,
			"total", qs.TotalMessages,
			"pending", qs.PendingMessages,
			"dead_letters", qs.DeadLetters)
	}
}

func (s *ProcessorService) healthChecker() {
	defer s.wg.Done()

	ticker := time.NewTicker(HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performHealthCheck()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) performHealthCheck() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if err := s.adapter.Ping(ctx); err != nil {
		logger.Error("health check failed: redis unreachable", "error", err)
		return
	}
	if len(s.queues) == 0 {
		return
	}

	stats, err := s.queues[0].GetStats()
	if err != nil {
		logger.Warn("health check: queue stats unavailable", "error", err)
		return
	}
	if stats.PendingMessages > highLagThreshold {
		logger.Warn("health check: queue has high lag", "pending_messages", stats.PendingMessages)
	}
}

// Stop stops consumers first, then the worker pool. Safe to call twice.
func (s *ProcessorService) Stop() {
	s.stopOnce.Do(func() {
		logger.Info("shutting down processor service")
		s.cancel()

		var qwg sync.WaitGroup
		for i, q := range s.queues {
			qwg.Add(1)
			go func(index int, q *queue.Queue) {
				defer qwg.Done()
				if err := q.Stop(ShutdownTimeout); err != nil {
					logger.Error("error stopping queue", "consumer", index, "error", err)
				}
			}(i, q)
		}
		qwg.Wait()

		s.worker.Exit()
		s.wg.Wait()

		s.reportMetrics()
		logger.Info("processor service stopped")
	})
}

type job struct {
	ctx    context.Context
	msg    *queue.Message
	result chan error
}

// messageHandler hands the message to the pool and blocks for its result so
// the queue can ack or leave it pending.
func (s *ProcessorService) messageHandler(ctx context.Context, msg *queue.Message) error {
	jobCtx, cancel := context.WithTimeout(ctx, s.config.ProcessingTimeout)
	defer cancel()

	j := &job{
		ctx:    jobCtx,
		msg:    msg,
		result: make(chan error, 1),
	}
	if err := s.worker.Enqueue(jobCtx, j); err != nil {
		return fmt.Errorf("enqueue to worker pool: %w", err)
	}

	select {
	case err := <-j.result:
		return err
	case <-jobCtx.Done():
		return fmt.Errorf("timeout waiting for worker: %w", jobCtx.Err())
	}
}

func (s *ProcessorService) workerHandler(workerIndex int, payload interface{}) {
	j, ok := payload.(*job)
	if !ok {
		logger.Error("invalid job type in worker", "worker", workerIndex)
		return
	}

	if j.ctx.Err() != nil {
		logger.Warn("job expired before processing", "worker", workerIndex, "stream_id", j.msg.ID)
		return
	}

	start := time.Now()
	err := s.processor.Process(j.ctx, j.msg)
	if err != nil {
		s.metrics.RecordFailure()
		logger.Error("failed to process message", "worker", workerIndex, "stream_id", j.msg.ID, "error", err)
	} else {
		s.metrics.RecordSuccess(time.Since(start))
	}

	// result is buffered; the handler may already have given up.
	j.result <- err
}
