package model

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Category classifies an inbound message. Fixed at creation.
type Category string

const (
	CategoryGeneral        Category = "general"
	CategorySupport        Category = "support"
	CategoryBilling        Category = "billing"
	CategoryBugReport      Category = "bug_report"
	CategoryFeatureRequest Category = "feature_request"
	CategoryPartnership    Category = "partnership"
	CategoryOther          Category = "other"
)

var AllCategories = []Category{
	CategoryGeneral,
	CategorySupport,
	CategoryBilling,
	CategoryBugReport,
	CategoryFeatureRequest,
	CategoryPartnership,
	CategoryOther,
}

func (c Category) IsValid() bool {
	for _, v := range AllCategories {
		if c == v {
			return true
		}
	}
	return false
}

// Source is the channel a message arrived through. Fixed at creation.
type Source string

const (
	SourceContactForm  Source = "contact_form"
	SourceInboundEmail Source = "inbound_email"
)

func (s Source) IsValid() bool {
	return s == SourceContactForm || s == SourceInboundEmail
}

type Message struct {
	ID            string        `json:"id"`
	SenderName    string        `json:"sender_name"`
	SenderEmail   string        `json:"sender_email"`
	SenderPhone   *string       `json:"sender_phone,omitempty"`
	Subject       string        `json:"subject"`
	Body          string        `json:"message"`
	Category      Category      `json:"category"`
	Source        Source        `json:"source"`
	OriginalTo    []string      `json:"original_to,omitempty"`
	Status        MessageStatus `json:"status"`
	InternalNotes string        `json:"internal_notes"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// MessageCreateRequest is the input for creating a message.
type MessageCreateRequest struct {
	SenderName  string   `json:"sender_name"`
	SenderEmail string   `json:"sender_email"`
	SenderPhone *string  `json:"sender_phone,omitempty"`
	Subject     string   `json:"subject"`
	Body        string   `json:"message"`
	Category    Category `json:"category"`
	Source      Source   `json:"source"`
	OriginalTo  []string `json:"original_to,omitempty"`
}

var validate = validator.New()

// Normalize trims the free text fields and fills category and source defaults.
func (p *MessageCreateRequest) Normalize() {
	p.SenderName = strings.TrimSpace(p.SenderName)
	p.SenderEmail = strings.TrimSpace(p.SenderEmail)
	p.Subject = strings.TrimSpace(p.Subject)
	p.Body = strings.TrimSpace(p.Body)
	if p.SenderPhone != nil {
		phone := strings.TrimSpace(*p.SenderPhone)
		if phone == "" {
			p.SenderPhone = nil
		} else {
			p.SenderPhone = &phone
		}
	}
	if p.Category == "" {
		p.Category = CategoryGeneral
	}
	if p.Source == "" {
		p.Source = SourceContactForm
	}
	to := p.OriginalTo[:0:0]
	for _, addr := range p.OriginalTo {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	p.OriginalTo = to
}

func (p MessageCreateRequest) Validate() error {
	if p.Subject == "" {
		return NewValidationError("subject", "is required")
	}
	if p.Body == "" {
		return NewValidationError("message", "is required")
	}
	if err := ValidateEmail(p.SenderEmail); err != nil {
		return NewValidationError("sender_email", err.Error())
	}
	if !p.Category.IsValid() {
		return NewValidationError("category", "unknown category "+string(p.Category))
	}
	if !p.Source.IsValid() {
		return NewValidationError("source", "unknown source "+string(p.Source))
	}
	if len(p.OriginalTo) > 0 && p.Source != SourceInboundEmail {
		return NewValidationError("original_to", "only allowed for inbound_email")
	}
	for _, addr := range p.OriginalTo {
		if err := ValidateEmail(addr); err != nil {
			return NewValidationError("original_to", err.Error())
		}
	}
	return nil
}

type emailError string

func (e emailError) Error() string { return string(e) }

// ValidateEmail checks that s is a bare, syntactically valid address.
func ValidateEmail(s string) error {
	if s == "" {
		return emailError("is required")
	}
	if err := validate.Var(s, "email"); err != nil {
		return emailError("is not a valid email address")
	}
	return nil
}

// MessageFilter controls List queries.
type MessageFilter struct {
	Status   *MessageStatus // equals
	Category *Category      // equals
	Search   *string        // substring of sender name, sender email or subject
	Limit    int            // default 20, max 100
	Offset   int
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Normalize applies the limit bounds and rejects malformed options.
func (f *MessageFilter) Normalize() error {
	if f.Status != nil && !f.Status.IsValid() {
		return NewValidationError("status", "unknown status "+string(*f.Status))
	}
	if f.Category != nil && !f.Category.IsValid() {
		return NewValidationError("category", "unknown category "+string(*f.Category))
	}
	if f.Search != nil {
		s := strings.TrimSpace(*f.Search)
		if s == "" {
			f.Search = nil
		} else {
			f.Search = &s
		}
	}
	if f.Offset < 0 {
		return NewValidationError("offset", "must be >= 0")
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	return nil
}

// ListResult is one page of messages plus the global status counts.
type ListResult struct {
	Messages     []*Message   `json:"messages"`
	Total        int64        `json:"total"`
	Limit        int          `json:"limit"`
	Offset       int          `json:"offset"`
	StatusCounts StatusCounts `json:"status_counts"`
}

// MessageDetail is a message with its replies, oldest first.
type MessageDetail struct {
	Message *Message `json:"message"`
	Replies []*Reply `json:"replies"`
}
