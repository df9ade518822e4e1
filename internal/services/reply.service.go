package services

import (
	"context"
	"fmt"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/internal/notifier"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/prom"
)

const DefaultNotifierTimeout = 10 * time.Second

type Notifier interface {
	Send(ctx context.Context, to, subject, body string) (*notifier.SendResult, error)
}

// ReplyService manages the replies of a message and the status changes a
// reply implies.
type ReplyService struct {
	messageRepo MessageRepository
	replyRepo   ReplyRepository
	notifier    Notifier
	timeout     time.Duration
	status      *statusWriter
	now         func() time.Time
}

func NewReplyService(messageRepo MessageRepository, counterRepo StatusCounterRepository, replyRepo ReplyRepository, n Notifier, timeout time.Duration) *ReplyService {
	if timeout <= 0 {
		timeout = DefaultNotifierTimeout
	}
	s := &ReplyService{
		messageRepo: messageRepo,
		replyRepo:   replyRepo,
		notifier:    n,
		timeout:     timeout,
		now:         utcNow,
	}
	s.status = &statusWriter{
		messageRepo: messageRepo,
		counterRepo: counterRepo,
		now:         func() time.Time { return s.now() },
	}
	return s
}

// Reply stores a reply, optionally mails it to the sender and moves the
// message to replied, or resolved when requested. A failed delivery is
// reported on the result, not as the returned error. If the status step
// fails after the reply was stored, the result comes back with the error.
func (s *ReplyService) Reply(ctx context.Context, req model.ReplyRequest) (*model.ReplyResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		msg   *model.Message
		reply *model.Reply
	)
	err := s.messageRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		m, err := s.messageRepo.GetByIDForUpdate(ctx, req.MessageID)
		if err != nil {
			return translate(err, req.MessageID)
		}
		if m.Status == model.MessageStatusArchived {
			return fmt.Errorf("%w: message %s is archived", model.ErrInvalidState, m.ID)
		}

		r, err := s.replyRepo.Create(ctx, &model.Reply{
			MessageID:      m.ID,
			RespondedBy:    req.RespondedBy,
			Body:           req.Body,
			EmailAttempted: req.SendEmail,
			CreatedAt:      s.now(),
		})
		if err != nil {
			return fmt.Errorf("create reply: %w", err)
		}

		msg, reply = m, r
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &model.ReplyResult{Reply: reply, Message: msg}

	delivery := "skipped"
	if req.SendEmail {
		s.deliver(ctx, msg, result)
		delivery = "sent"
		if !result.Delivered {
			delivery = "failed"
		}
	}
	prom.IncReply(delivery)

	updated, err := s.status.apply(ctx, msg.ID, func(m *model.Message) (model.MessageStatus, model.Trigger) {
		return model.ReplyTarget(m.Status, req.MarkResolved), model.TriggerReply
	})
	if err != nil {
		logger.Error("[inbox] reply stored but status not updated", "message_id", msg.ID, "reply_id", reply.ID, "error", err)
		return result, fmt.Errorf("reply %s stored, status not updated: %w", reply.ID, err)
	}
	result.Message = updated

	logger.Info("[inbox] reply posted", "message_id", msg.ID, "reply_id", reply.ID, "status", updated.Status, "delivery", delivery)
	return result, nil
}

type sendOutcome struct {
	res *notifier.SendResult
	err error
}

// deliver mails the reply and records the outcome on the reply row. It never
// fails the reply; problems end up in result.DeliveryErr.
func (s *ReplyService) deliver(ctx context.Context, msg *model.Message, result *model.ReplyResult) {
	errText := s.send(ctx, msg.SenderEmail, "Re: "+msg.Subject, result.Reply.Body)

	result.Delivered = errText == ""
	result.Reply.EmailSent = result.Delivered
	if !result.Delivered {
		result.DeliveryError = errText
		result.Reply.DeliveryError = errText
		result.DeliveryErr = fmt.Errorf("%w: %s", model.ErrDelivery, errText)
		logger.Warn("[inbox] reply delivery failed", "message_id", msg.ID, "reply_id", result.Reply.ID, "error", errText)
	}

	// the reply is already committed; a failed audit write must not lose it
	if err := s.replyRepo.UpdateDelivery(ctx, result.Reply.ID, result.Delivered, errText, s.now()); err != nil {
		logger.Error("[inbox] record delivery outcome", "reply_id", result.Reply.ID, "error", err)
	}
}

// send returns an empty string on success and the failure text otherwise.
func (s *ReplyService) send(ctx context.Context, to, subject, body string) string {
	if s.notifier == nil {
		return "no notifier configured"
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan sendOutcome, 1)
	go func() {
		res, err := s.notifier.Send(sendCtx, to, subject, body)
		done <- sendOutcome{res, err}
	}()

	select {
	case <-sendCtx.Done():
		return fmt.Sprintf("notifier timed out after %s", s.timeout)
	case out := <-done:
		switch {
		case out.err != nil:
			return out.err.Error()
		case out.res == nil:
			return "notifier returned no result"
		case !out.res.Success:
			if out.res.Error != "" {
				return out.res.Error
			}
			return "notifier reported failure"
		}
	}
	return ""
}

// Thread returns the replies of a message, oldest first.
func (s *ReplyService) Thread(ctx context.Context, messageID string) ([]*model.Reply, error) {
	if _, err := s.messageRepo.GetByID(ctx, messageID); err != nil {
		return nil, translate(err, messageID)
	}

	replies, err := s.replyRepo.ListByMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	if replies == nil {
		replies = []*model.Reply{}
	}
	return replies, nil
}
