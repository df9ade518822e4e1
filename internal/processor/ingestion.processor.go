package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/internal/queue"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/prom"
)

const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeMalformed = "malformed"
	OutcomeFailed    = "failed"
	OutcomeAbandoned = "abandoned"
)

type MessageCreator interface {
	Create(ctx context.Context, p model.MessageCreateRequest) (*model.Message, error)
}

// IngestionProcessor turns queued submissions into inbox messages.
type IngestionProcessor struct {
	creator     MessageCreator
	idempotency *IdempotencyService
}

func NewIngestionProcessor(creator MessageCreator, idempotency *IdempotencyService) *IngestionProcessor {
	return &IngestionProcessor{
		creator:     creator,
		idempotency: idempotency,
	}
}

func (p *IngestionProcessor) GetType() string {
	return "submission"
}

// Process returns nil for anything that must not be redelivered, including
// malformed payloads and submissions that fail validation.
func (p *IngestionProcessor) Process(ctx context.Context, qm *queue.Message) error {
	var sub model.Submission
	if err := json.Unmarshal(qm.Data, &sub); err != nil {
		logger.Error("dropping malformed submission", "stream_id", qm.ID, "error", err)
		prom.IncIngestion(OutcomeMalformed)
		return nil
	}

	key := sub.SubmissionID
	if key == "" {
		key = qm.ID
	}

	pc, err := p.idempotency.AcquireProcessingLock(ctx, key)
	switch {
	case errors.Is(err, ErrAlreadyProcessed):
		logger.Info("submission already processed, skipping", "submission_id", key)
		prom.IncIngestion(OutcomeDuplicate)
		return nil
	case errors.Is(err, ErrMaxRetriesExceeded):
		logger.Error("giving up on submission", "submission_id", key, "error", err)
		prom.IncIngestion(OutcomeAbandoned)
		return nil
	case err != nil:
		return fmt.Errorf("submission %s: %w", key, err)
	}
	defer func() {
		_ = p.idempotency.ReleaseLock(context.Background(), pc)
	}()

	msg, err := p.creator.Create(ctx, sub.Message)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			logger.Warn("submission rejected", "submission_id", key, "error", err)
			prom.IncIngestion(OutcomeRejected)
			if markErr := p.idempotency.MarkSuccess(ctx, pc); markErr != nil {
				logger.Error("failed to mark rejected submission", "submission_id", key, "error", markErr)
			}
			return nil
		}

		prom.IncIngestion(OutcomeFailed)
		if markErr := p.idempotency.MarkFailure(ctx, pc, err); markErr != nil {
			logger.Error("failed to mark failure", "submission_id", key, "error", markErr)
		}
		return err
	}

	if err := p.idempotency.MarkSuccess(ctx, pc); err != nil {
		// The message exists; a redelivery would duplicate it only if the
		// marker write keeps failing.
		logger.Error("failed to mark success", "submission_id", key, "error", err)
	}

	logger.Info("submission ingested",
		"submission_id", key,
		"message_id", msg.ID,
		"retry_count", pc.RetryCount)
	prom.IncIngestion(OutcomeCreated)
	return nil
}
