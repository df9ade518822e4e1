package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/redis"
)

var (
	ErrAlreadyProcessed   = errors.New("submission already processed")
	ErrLockAcquireFailed  = errors.New("failed to acquire processing lock")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

type IdempotencyConfig struct {
	LockTTL      time.Duration
	ProcessedTTL time.Duration
	MaxRetries   int

	RetryKeyPrefix     string
	LockKeyPrefix      string
	ProcessedKeyPrefix string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:            30 * time.Second,
		ProcessedTTL:       24 * time.Hour,
		MaxRetries:         3,
		RetryKeyPrefix:     "inbox:submission:retry:",
		LockKeyPrefix:      "inbox:submission:lock:",
		ProcessedKeyPrefix: "inbox:submission:processed:",
	}
}

// IdempotencyService guards submissions so each is turned into a message at
// most once, even when the stream redelivers it.
type IdempotencyService struct {
	redis  redis.RedisAdapter
	config IdempotencyConfig
}

func NewIdempotencyService(redisAdapter redis.RedisAdapter, config IdempotencyConfig) *IdempotencyService {
	return &IdempotencyService{
		redis:  redisAdapter,
		config: config,
	}
}

type ProcessingContext struct {
	Key          string
	RetryCount   int
	IsRetry      bool
	lockAcquired bool
}

func (s *IdempotencyService) AcquireProcessingLock(ctx context.Context, key string) (*ProcessingContext, error) {
	processed, err := s.IsProcessed(ctx, key)
	if err != nil {
		// A duplicate create is preferable to a stuck submission.
		logger.Warn("failed to check processed marker", "key", key, "error", err)
	} else if processed {
		return nil, ErrAlreadyProcessed
	}

	retryCount, err := s.GetRetryCount(ctx, key)
	if err != nil {
		logger.Warn("failed to read retry counter", "key", key, "error", err)
	}
	if retryCount >= s.config.MaxRetries {
		return nil, fmt.Errorf("%w: key=%s, retries=%d", ErrMaxRetriesExceeded, key, retryCount)
	}

	lockValue := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
	acquired, err := s.redis.SetNX(ctx, s.config.LockKeyPrefix+key, lockValue, s.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}
	if !acquired {
		return nil, ErrLockAcquireFailed
	}

	logger.Debug("processing lock acquired", "key", key, "retry_count", retryCount)

	return &ProcessingContext{
		Key:          key,
		RetryCount:   retryCount,
		IsRetry:      retryCount > 0,
		lockAcquired: true,
	}, nil
}

// MarkSuccess writes the processed marker and clears the lock and retry counter.
func (s *IdempotencyService) MarkSuccess(ctx context.Context, pc *ProcessingContext) error {
	if err := s.redis.Set(ctx, s.config.ProcessedKeyPrefix+pc.Key, []byte("1"), s.config.ProcessedTTL); err != nil {
		return fmt.Errorf("failed to mark as processed: %w", err)
	}

	if err := s.redis.Del(ctx, s.config.RetryKeyPrefix+pc.Key); err != nil {
		logger.Warn("failed to clear retry counter", "key", pc.Key, "error", err)
	}
	return s.ReleaseLock(ctx, pc)
}

// MarkFailure bumps the retry counter and releases the lock so a redelivery
// can try again.
func (s *IdempotencyService) MarkFailure(ctx context.Context, pc *ProcessingContext, reason error) error {
	next := pc.RetryCount + 1
	if err := s.redis.Set(ctx, s.config.RetryKeyPrefix+pc.Key, []byte(strconv.Itoa(next)), s.config.ProcessedTTL); err != nil {
		logger.Error("failed to increment retry counter", "key", pc.Key, "error", err)
	}

	logger.Warn("submission processing failed",
		"key", pc.Key,
		"retry_count", next,
		"max_retries", s.config.MaxRetries,
		"reason", reason)

	return s.ReleaseLock(ctx, pc)
}

func (s *IdempotencyService) ReleaseLock(ctx context.Context, pc *ProcessingContext) error {
	if pc == nil || !pc.lockAcquired {
		return nil
	}

	if err := s.redis.Del(ctx, s.config.LockKeyPrefix+pc.Key); err != nil {
		logger.Warn("failed to release lock", "key", pc.Key, "error", err)
		return err
	}

	pc.lockAcquired = false
	return nil
}

func (s *IdempotencyService) GetRetryCount(ctx context.Context, key string) (int, error) {
	raw, err := s.redis.Get(ctx, s.config.RetryKeyPrefix+key)
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return 0, nil
		}
		return 0, err
	}

	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("corrupt retry counter %q: %w", raw, err)
	}
	return n, nil
}

func (s *IdempotencyService) IsProcessed(ctx context.Context, key string) (bool, error) {
	exists, err := s.redis.Exist(ctx, s.config.ProcessedKeyPrefix+key)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
