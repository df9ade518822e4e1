package services

import (
	"context"
	"fmt"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/prom"
)

type MessageRepository interface {
	Create(ctx context.Context, p *model.Message) (*model.Message, error)
	GetByID(ctx context.Context, id string) (*model.Message, error)
	GetByIDForUpdate(ctx context.Context, id string) (*model.Message, error)
	List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error) // results, totalCount
	UpdateStatus(ctx context.Context, id string, from, to model.MessageStatus, at time.Time) error
	UpdateNotes(ctx context.Context, id string, notes string, at time.Time) error
	CountByStatus(ctx context.Context) (model.StatusCounts, error)
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type StatusCounterRepository interface {
	Adjust(ctx context.Context, status model.MessageStatus, delta int64) error
	Counts(ctx context.Context) (model.StatusCounts, error)
	Reset(ctx context.Context, counts model.StatusCounts) error
}

type ReplyRepository interface {
	Create(ctx context.Context, r *model.Reply) (*model.Reply, error)
	ListByMessage(ctx context.Context, messageID string) ([]*model.Reply, error)
	UpdateDelivery(ctx context.Context, id string, sent bool, deliveryErr string, at time.Time) error
}

// MessageService is the message store: creation, retrieval, status and notes.
type MessageService struct {
	messageRepo MessageRepository
	counterRepo StatusCounterRepository
	replyRepo   ReplyRepository
	status      *statusWriter
	now         func() time.Time
}

func NewMessageService(messageRepo MessageRepository, counterRepo StatusCounterRepository, replyRepo ReplyRepository) *MessageService {
	s := &MessageService{
		messageRepo: messageRepo,
		counterRepo: counterRepo,
		replyRepo:   replyRepo,
		now:         utcNow,
	}
	s.status = &statusWriter{
		messageRepo: messageRepo,
		counterRepo: counterRepo,
		now:         func() time.Time { return s.now() },
	}
	return s
}

func (s *MessageService) Create(ctx context.Context, p model.MessageCreateRequest) (*model.Message, error) {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	m := &model.Message{
		SenderName:  p.SenderName,
		SenderEmail: p.SenderEmail,
		SenderPhone: p.SenderPhone,
		Subject:     p.Subject,
		Body:        p.Body,
		Category:    p.Category,
		Source:      p.Source,
		OriginalTo:  p.OriginalTo,
		Status:      model.MessageStatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var created *model.Message
	err := s.messageRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		c, err := s.messageRepo.Create(ctx, m)
		if err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		if err := s.counterRepo.Adjust(ctx, model.MessageStatusNew, 1); err != nil {
			return fmt.Errorf("adjust counter: %w", err)
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	prom.IncMessageCreated(string(created.Category), string(created.Source))
	logger.Info("[inbox] message created", "id", created.ID, "category", created.Category, "source", created.Source)
	return created, nil
}

// Get returns a message with its replies. Opening a new message marks it
// read; concurrent openers see read and change nothing.
func (s *MessageService) Get(ctx context.Context, id string) (*model.MessageDetail, error) {
	msg, err := s.messageRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, id)
	}

	if msg.Status == model.MessageStatusNew {
		msg, err = s.status.apply(ctx, id, func(m *model.Message) (model.MessageStatus, model.Trigger) {
			if m.Status == model.MessageStatusNew {
				return model.MessageStatusRead, model.TriggerOpen
			}
			return m.Status, model.TriggerOpen
		})
		if err != nil {
			return nil, err
		}
	}

	replies, err := s.replyRepo.ListByMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	if replies == nil {
		replies = []*model.Reply{}
	}

	return &model.MessageDetail{Message: msg, Replies: replies}, nil
}

func (s *MessageService) List(ctx context.Context, f model.MessageFilter) (*model.ListResult, error) {
	if err := f.Normalize(); err != nil {
		return nil, err
	}

	messages, total, err := s.messageRepo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if messages == nil {
		messages = []*model.Message{}
	}

	counts, err := s.counterRepo.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}

	return &model.ListResult{
		Messages:     messages,
		Total:        total,
		Limit:        f.Limit,
		Offset:       f.Offset,
		StatusCounts: counts,
	}, nil
}

// SetStatus applies an operator requested status. Requesting the current
// status changes nothing.
func (s *MessageService) SetStatus(ctx context.Context, id string, status model.MessageStatus) (*model.Message, error) {
	if !status.IsValid() {
		return nil, model.NewValidationError("status", "unknown status "+string(status))
	}

	return s.status.apply(ctx, id, func(m *model.Message) (model.MessageStatus, model.Trigger) {
		return status, model.TriggerOperator
	})
}

func (s *MessageService) SetNotes(ctx context.Context, id string, notes string) error {
	if err := s.messageRepo.UpdateNotes(ctx, id, notes, s.now()); err != nil {
		return translate(err, id)
	}
	return nil
}

func (s *MessageService) Counts(ctx context.Context) (model.StatusCounts, error) {
	return s.counterRepo.Counts(ctx)
}

// ReconcileCounters rebuilds the counters from the messages table.
func (s *MessageService) ReconcileCounters(ctx context.Context) (model.StatusCounts, error) {
	var counts model.StatusCounts
	err := s.messageRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		c, err := s.messageRepo.CountByStatus(ctx)
		if err != nil {
			return fmt.Errorf("count by status: %w", err)
		}
		if err := s.counterRepo.Reset(ctx, c); err != nil {
			return fmt.Errorf("reset counters: %w", err)
		}
		counts = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("[inbox] status counters reconciled", "total", counts.Total())
	return counts, nil
}
