package repository

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/pg"
)

type MessageEntity struct {
	pg.Model
	SenderName    string         `db:"sender_name"    gorm:"column:sender_name;not null"`
	SenderEmail   string         `db:"sender_email"   gorm:"column:sender_email;not null"`
	SenderPhone   *string        `db:"sender_phone"   gorm:"column:sender_phone"`
	Subject       string         `db:"subject"        gorm:"column:subject;not null"`
	Body          string         `db:"message"        gorm:"column:message;not null"`
	Category      string         `db:"category"       gorm:"column:category;not null;default:general"`
	Source        string         `db:"source"         gorm:"column:source;not null;default:contact_form"`
	OriginalTo    pq.StringArray `db:"original_to"    gorm:"column:original_to;type:text[]"`
	Status        string         `db:"status"         gorm:"column:status;not null;default:new;index"`
	InternalNotes string         `db:"internal_notes" gorm:"column:internal_notes;not null;default:''"`
}

func (MessageEntity) TableName() string {
	return "messages"
}

func toMessageEntity(m *model.Message) *MessageEntity {
	if m == nil {
		return nil
	}
	e := &MessageEntity{
		SenderName:    m.SenderName,
		SenderEmail:   m.SenderEmail,
		SenderPhone:   m.SenderPhone,
		Subject:       m.Subject,
		Body:          m.Body,
		Category:      string(m.Category),
		Source:        string(m.Source),
		Status:        string(m.Status),
		InternalNotes: m.InternalNotes,
	}
	if len(m.OriginalTo) > 0 {
		e.OriginalTo = pq.StringArray(m.OriginalTo)
	}
	if id, err := uuid.Parse(m.ID); err == nil {
		e.ID = id
	}
	e.CreatedAt = m.CreatedAt
	e.UpdatedAt = m.UpdatedAt
	return e
}

func toMessageModel(e *MessageEntity) *model.Message {
	if e == nil {
		return nil
	}
	m := &model.Message{
		ID:            e.ID.String(),
		SenderName:    e.SenderName,
		SenderEmail:   e.SenderEmail,
		SenderPhone:   e.SenderPhone,
		Subject:       e.Subject,
		Body:          e.Body,
		Category:      model.Category(e.Category),
		Source:        model.Source(e.Source),
		Status:        model.MessageStatus(e.Status),
		InternalNotes: e.InternalNotes,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	if len(e.OriginalTo) > 0 {
		m.OriginalTo = []string(e.OriginalTo)
	}
	return m
}

func toMessageModels(entities []*MessageEntity) []*model.Message {
	models := make([]*model.Message, len(entities))
	for i, e := range entities {
		models[i] = toMessageModel(e)
	}
	return models
}
