package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/pg"
)

type ReplyRepository struct {
	*pg.DB
}

func NewReplyRepository(db *pg.DB) *ReplyRepository {
	return &ReplyRepository{
		db,
	}
}

func (r *ReplyRepository) Create(ctx context.Context, reply *model.Reply) (*model.Reply, error) {
	messageID, err := parseID(reply.MessageID)
	if err != nil {
		return nil, err
	}

	entity := &ReplyEntity{
		MessageID:      messageID,
		RespondedBy:    reply.RespondedBy,
		Body:           reply.Body,
		EmailAttempted: reply.EmailAttempted,
		EmailSent:      reply.EmailSent,
		DeliveryError:  reply.DeliveryError,
	}
	entity.CreatedAt = reply.CreatedAt
	entity.UpdatedAt = reply.CreatedAt
	if id, err := uuid.Parse(reply.ID); err == nil {
		entity.ID = id
	}

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toReplyModel(entity), nil
}

// ListByMessage returns the replies of a message, oldest first.
func (r *ReplyRepository) ListByMessage(ctx context.Context, messageID string) ([]*model.Reply, error) {
	uid, err := parseID(messageID)
	if err != nil {
		return nil, err
	}

	var entities []*ReplyEntity
	err = r.Read(ctx).WithContext(ctx).
		Where("message_id = ?", uid).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}

	return toReplyModels(entities), nil
}

// UpdateDelivery records the outcome of sending a reply by email.
func (r *ReplyRepository) UpdateDelivery(ctx context.Context, id string, sent bool, deliveryErr string, at time.Time) error {
	uid, err := parseID(id)
	if err != nil {
		return err
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&ReplyEntity{}).
		Where("id = ?", uid).
		Updates(map[string]any{
			"email_sent":     sent,
			"delivery_error": deliveryErr,
			"updated_at":     at,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
