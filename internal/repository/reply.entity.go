package repository

import (
	"github.com/google/uuid"
	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/pg"
)

type ReplyEntity struct {
	pg.Model
	MessageID      uuid.UUID `db:"message_id"      gorm:"column:message_id;type:uuid;not null;index"`
	RespondedBy    string    `db:"responded_by"    gorm:"column:responded_by;not null;default:''"`
	Body           string    `db:"message"         gorm:"column:message;not null"`
	EmailAttempted bool      `db:"email_attempted" gorm:"column:email_attempted;not null;default:false"`
	EmailSent      bool      `db:"email_sent"      gorm:"column:email_sent;not null;default:false"`
	DeliveryError  string    `db:"delivery_error"  gorm:"column:delivery_error;not null;default:''"`
}

func (ReplyEntity) TableName() string {
	return "message_replies"
}

func toReplyModel(e *ReplyEntity) *model.Reply {
	if e == nil {
		return nil
	}
	return &model.Reply{
		ID:             e.ID.String(),
		MessageID:      e.MessageID.String(),
		RespondedBy:    e.RespondedBy,
		Body:           e.Body,
		EmailAttempted: e.EmailAttempted,
		EmailSent:      e.EmailSent,
		DeliveryError:  e.DeliveryError,
		CreatedAt:      e.CreatedAt,
	}
}

func toReplyModels(entities []*ReplyEntity) []*model.Reply {
	models := make([]*model.Reply, len(entities))
	for i, e := range entities {
		models[i] = toReplyModel(e)
	}
	return models
}
