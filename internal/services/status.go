package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/internal/repository"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/prom"
)

const (
	maxStatusRetries = 3
	baseRetryDelay   = 2 * time.Millisecond
)

// decideFunc picks the target status for the locked message.
type decideFunc func(m *model.Message) (model.MessageStatus, model.Trigger)

// statusWriter is the only code path that changes a message status. Every
// change and its counter adjustment commit in one transaction.
type statusWriter struct {
	messageRepo MessageRepository
	counterRepo StatusCounterRepository
	now         func() time.Time
}

// apply locks the message, lets decide pick the target and writes it. A
// target equal to the current status is a no-op. Lost races are retried
// with exponential backoff: 2ms, 4ms, 8ms.
func (w *statusWriter) apply(ctx context.Context, id string, decide decideFunc) (*model.Message, error) {
	for attempt := 0; attempt <= maxStatusRetries; attempt++ {
		msg, from, err := w.applyAttempt(ctx, id, decide)
		if err == nil {
			if from != msg.Status {
				prom.IncStatusTransition(string(from), string(msg.Status))
				logger.Debug("[inbox] status changed", "id", id, "from", from, "to", msg.Status)
			}
			return msg, nil
		}

		if !errors.Is(err, repository.ErrConcurrentUpdate) {
			return nil, err
		}

		if attempt < maxStatusRetries {
			delay := baseRetryDelay * time.Duration(1<<attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	logger.Warn("[inbox] status update kept conflicting", "id", id, "attempts", maxStatusRetries+1)
	return nil, fmt.Errorf("%w: message %s after %d attempts", model.ErrConflict, id, maxStatusRetries+1)
}

func (w *statusWriter) applyAttempt(ctx context.Context, id string, decide decideFunc) (*model.Message, model.MessageStatus, error) {
	var (
		result *model.Message
		from   model.MessageStatus
	)

	err := w.messageRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		msg, err := w.messageRepo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return translate(err, id)
		}
		from = msg.Status
		result = msg

		to, trigger := decide(msg)
		if to == msg.Status {
			return nil
		}
		if err := model.CheckTransition(msg.Status, to, trigger); err != nil {
			return err
		}

		at := w.now()
		if err := w.messageRepo.UpdateStatus(ctx, id, msg.Status, to, at); err != nil {
			return err
		}
		if err := w.counterRepo.Adjust(ctx, msg.Status, -1); err != nil {
			return fmt.Errorf("adjust counter %s: %w", msg.Status, err)
		}
		if err := w.counterRepo.Adjust(ctx, to, 1); err != nil {
			return fmt.Errorf("adjust counter %s: %w", to, err)
		}

		msg.Status = to
		msg.UpdatedAt = at
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return result, from, nil
}

// translate maps repository errors onto the model error kinds.
func translate(err error, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	return err
}

func utcNow() time.Time {
	return time.Now().UTC()
}
