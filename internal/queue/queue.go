package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/redis"
)

var (
	ErrAlreadyAcked  = errors.New("message already acknowledged")
	ErrAlreadyNacked = errors.New("message already rejected")
)

const (
	fieldData        = "data"
	fieldPublishedAt = "published_at"
	metaPrefix       = "meta_"
	dlqSuffix        = ":dlq"
	pendingScanLimit = 100
)

// Message is one stream entry delivered to a consumer. Attempts counts the
// deliveries that happened before this one.
type Message struct {
	ID          string
	Data        []byte
	Metadata    map[string]string
	PublishedAt time.Time
	Attempts    int
	acked       bool
	nacked      bool
	queue       *Queue
}

// Ack explicitly acknowledges the message (marks as successfully processed)
func (m *Message) Ack() error {
	if m.acked {
		return ErrAlreadyAcked
	}
	if m.nacked {
		return ErrAlreadyNacked
	}

	m.acked = true
	return m.queue.ackMessage(m.ID)
}

// Nack leaves the entry pending so it is reclaimed after the visibility timeout.
func (m *Message) Nack() error {
	if m.acked {
		return ErrAlreadyAcked
	}
	if m.nacked {
		return ErrAlreadyNacked
	}

	m.nacked = true
	return nil
}

// MessageHandler processes one message. A nil return acks the entry unless
// the handler already acked or nacked it; an error leaves it pending.
type MessageHandler func(ctx context.Context, msg *Message) error

type QueueConfig struct {
	Name              string
	ConsumerGroup     string
	ConsumerName      string
	MaxRetries        int
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	BatchSize         int64
	MaxLen            int64
	EnableDLQ         bool
}

type Queue struct {
	adapter    redis.RedisAdapter
	config     QueueConfig
	handler    MessageHandler
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	processing map[string]*Message
}

type QueueStats struct {
	TotalMessages   int64
	PendingMessages int64
	ConsumerCount   int64
	DeadLetters     int64
}

// NewQueue creates the consumer group (and stream) if needed and returns a
// queue ready to publish or consume.
func NewQueue(adapter redis.RedisAdapter, config QueueConfig) (*Queue, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = "default-group"
	}
	if config.ConsumerName == "" {
		config.ConsumerName = fmt.Sprintf("consumer-%d", time.Now().UnixNano())
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.VisibilityTimeout == 0 {
		config.VisibilityTimeout = 30 * time.Second
	}
	if config.PollInterval == 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}

	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		adapter:    adapter,
		config:     config,
		ctx:        ctx,
		cancel:     cancel,
		processing: make(map[string]*Message),
	}

	err := adapter.XGroupCreateMkStream(ctx, config.Name, config.ConsumerGroup, "0")
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		cancel()
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return q, nil
}

func (q *Queue) Name() string {
	return q.config.Name
}

// Publish adds a message to the queue
func (q *Queue) Publish(ctx context.Context, data []byte, metadata map[string]string) (string, error) {
	values := map[string]interface{}{
		fieldData:        string(data),
		fieldPublishedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range metadata {
		values[metaPrefix+k] = v
	}

	id, err := q.adapter.XAdd(ctx, q.config.Name, values)
	if err != nil {
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	if q.config.MaxLen > 0 {
		if err := q.adapter.XTrimApprox(ctx, q.config.Name, q.config.MaxLen); err != nil {
			logger.Warn("queue trim failed", "queue", q.config.Name, "error", err)
		}
	}

	return id, nil
}

// PublishJSON publishes a JSON-encoded message
func (q *Queue) PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return q.Publish(ctx, jsonData, metadata)
}

// Consume starts the polling loop in the background.
func (q *Queue) Consume(handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	q.handler = handler
	q.wg.Add(1)

	go q.consumeLoop()

	return nil
}

func (q *Queue) consumeLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.processMessages()
			q.claimStuckMessages()
		}
	}
}

func (q *Queue) processMessages() {
	messages, err := q.adapter.XReadGroup(
		q.ctx,
		q.config.ConsumerGroup,
		q.config.ConsumerName,
		q.config.Name,
		">",
		q.config.BatchSize,
	)
	if err != nil {
		if q.ctx.Err() == nil {
			logger.Error("queue read failed", "queue", q.config.Name, "error", err)
		}
		return
	}

	for _, streamMsg := range messages {
		if q.ctx.Err() != nil {
			return
		}
		q.handleMessage(q.toMessage(streamMsg, 0))
	}
}

// claimStuckMessages takes over entries idle longer than the visibility
// timeout, whichever consumer they were delivered to.
func (q *Queue) claimStuckMessages() {
	pendingExt, err := q.adapter.XPendingExt(
		q.ctx,
		q.config.Name,
		q.config.ConsumerGroup,
		"-",
		"+",
		pendingScanLimit,
	)
	if err != nil {
		if q.ctx.Err() == nil {
			logger.Error("queue pending scan failed", "queue", q.config.Name, "error", err)
		}
		return
	}

	deliveries := make(map[string]int64)
	var idsToReclaim []string
	for _, p := range pendingExt {
		if p.Idle >= q.config.VisibilityTimeout {
			idsToReclaim = append(idsToReclaim, p.ID)
			deliveries[p.ID] = p.RetryCount
		}
	}
	if len(idsToReclaim) == 0 {
		return
	}

	messages, err := q.adapter.XClaim(
		q.ctx,
		q.config.Name,
		q.config.ConsumerGroup,
		q.config.ConsumerName,
		q.config.VisibilityTimeout,
		idsToReclaim...,
	)
	if err != nil {
		logger.Error("queue claim failed", "queue", q.config.Name, "error", err)
		return
	}

	for _, streamMsg := range messages {
		if q.ctx.Err() != nil {
			return
		}
		q.handleMessage(q.toMessage(streamMsg, int(deliveries[streamMsg.ID])))
	}
}

func (q *Queue) handleMessage(msg *Message) {
	q.mu.Lock()
	q.processing[msg.ID] = msg
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		delete(q.processing, msg.ID)
		q.mu.Unlock()
	}()

	if msg.Attempts >= q.config.MaxRetries {
		logger.Warn("message exceeded max deliveries", "queue", q.config.Name, "id", msg.ID, "attempts", msg.Attempts)
		q.moveToDeadLetterQueue(msg)
		if err := q.ackMessage(msg.ID); err != nil {
			logger.Error("queue ack failed", "queue", q.config.Name, "id", msg.ID, "error", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(q.ctx, q.config.VisibilityTimeout)
	defer cancel()

	if err := q.handler(ctx, msg); err != nil {
		logger.Debug("message handler failed", "queue", q.config.Name, "id", msg.ID, "attempts", msg.Attempts, "error", err)
		return
	}
	if msg.acked || msg.nacked {
		return
	}
	if err := msg.Ack(); err != nil {
		logger.Error("queue ack failed", "queue", q.config.Name, "id", msg.ID, "error", err)
	}
}

func (q *Queue) ackMessage(messageID string) error {
	// Acks must land even while the queue is stopping.
	return q.adapter.XAck(context.Background(), q.config.Name, q.config.ConsumerGroup, messageID)
}

func (q *Queue) moveToDeadLetterQueue(msg *Message) {
	if !q.config.EnableDLQ {
		return
	}

	values := map[string]interface{}{
		fieldData:        string(msg.Data),
		"original_id":    msg.ID,
		"attempts":       msg.Attempts,
		"failed_at":      time.Now().UTC().Format(time.RFC3339Nano),
		"original_queue": q.config.Name,
	}
	for k, v := range msg.Metadata {
		values[metaPrefix+k] = v
	}

	if _, err := q.adapter.XAdd(context.Background(), q.config.Name+dlqSuffix, values); err != nil {
		logger.Error("dead letter publish failed", "queue", q.config.Name, "id", msg.ID, "error", err)
	}
}

func (q *Queue) toMessage(streamMsg redis.StreamMessage, attempts int) *Message {
	msg := &Message{
		ID:       streamMsg.ID,
		Metadata: make(map[string]string),
		Attempts: attempts,
		queue:    q,
	}

	for k, v := range streamMsg.Values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch {
		case k == fieldData:
			msg.Data = []byte(s)
		case k == fieldPublishedAt:
			if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
				msg.PublishedAt = ts
			}
		case strings.HasPrefix(k, metaPrefix):
			msg.Metadata[strings.TrimPrefix(k, metaPrefix)] = s
		}
	}

	return msg
}

// InFlight reports how many messages are being handled right now.
func (q *Queue) InFlight() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.processing)
}

func (q *Queue) Stop(timeout time.Duration) error {
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for queue to stop")
	}
}

func (q *Queue) GetStats() (*QueueStats, error) {
	ctx := context.Background()
	totalMessages, err := q.adapter.XLen(ctx, q.config.Name)
	if err != nil {
		return nil, err
	}

	stats := &QueueStats{
		TotalMessages: totalMessages,
	}

	if pending, err := q.adapter.XPending(ctx, q.config.Name, q.config.ConsumerGroup); err == nil && pending != nil {
		stats.PendingMessages = pending.Count
		stats.ConsumerCount = int64(len(pending.Consumers))
	}

	if q.config.EnableDLQ {
		if dead, err := q.adapter.XLen(ctx, q.config.Name+dlqSuffix); err == nil {
			stats.DeadLetters = dead
		}
	}

	return stats, nil
}
