package model

import (
	"strings"
	"time"
)

type Reply struct {
	ID             string    `json:"id"`
	MessageID      string    `json:"message_id"`
	RespondedBy    string    `json:"responded_by"`
	Body           string    `json:"message"`
	EmailAttempted bool      `json:"email_attempted"`
	EmailSent      bool      `json:"email_sent"`
	DeliveryError  string    `json:"delivery_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReplyRequest is the input for posting a reply to a message.
type ReplyRequest struct {
	MessageID    string
	Body         string
	RespondedBy  string
	SendEmail    bool
	MarkResolved bool
}

func (r *ReplyRequest) Validate() error {
	r.Body = strings.TrimSpace(r.Body)
	r.RespondedBy = strings.TrimSpace(r.RespondedBy)
	if strings.TrimSpace(r.MessageID) == "" {
		return NewValidationError("message_id", "is required")
	}
	if r.Body == "" {
		return NewValidationError("message", "is required")
	}
	return nil
}

// ReplyResult reports what a reply did. The reply is stored even when
// delivery failed; DeliveryErr then matches ErrDelivery.
type ReplyResult struct {
	Reply         *Reply   `json:"reply"`
	Message       *Message `json:"message"`
	Delivered     bool     `json:"delivered"`
	DeliveryError string   `json:"delivery_error,omitempty"`
	DeliveryErr   error    `json:"-"`
}
