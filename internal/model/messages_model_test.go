package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() MessageCreateRequest {
	return MessageCreateRequest{
		SenderName:  "Ada Lovelace",
		SenderEmail: "ada@example.com",
		Subject:     "VAT rates",
		Body:        "How do I configure reduced VAT rates?",
	}
}

func TestMessageCreateRequest_Normalize(t *testing.T) {
	phone := "   "
	p := MessageCreateRequest{
		SenderName:  "  Ada ",
		SenderEmail: " ada@example.com ",
		SenderPhone: &phone,
		Subject:     " Hi ",
		Body:        " body ",
		OriginalTo:  []string{" support@example.com ", " "},
	}
	p.Normalize()

	assert.Equal(t, "Ada", p.SenderName)
	assert.Equal(t, "ada@example.com", p.SenderEmail)
	assert.Nil(t, p.SenderPhone)
	assert.Equal(t, "Hi", p.Subject)
	assert.Equal(t, "body", p.Body)
	assert.Equal(t, CategoryGeneral, p.Category)
	assert.Equal(t, SourceContactForm, p.Source)
	assert.Equal(t, []string{"support@example.com"}, p.OriginalTo)
}

func TestMessageCreateRequest_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		p := validRequest()
		p.Normalize()
		assert.NoError(t, p.Validate())
	})

	cases := map[string]func(p *MessageCreateRequest){
		"subject":      func(p *MessageCreateRequest) { p.Subject = "" },
		"message":      func(p *MessageCreateRequest) { p.Body = "" },
		"sender_email": func(p *MessageCreateRequest) { p.SenderEmail = "not-an-email" },
		"category":     func(p *MessageCreateRequest) { p.Category = "spam" },
		"source":       func(p *MessageCreateRequest) { p.Source = "fax" },
		"original_to":  func(p *MessageCreateRequest) { p.OriginalTo = []string{"support@example.com"} },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			p := validRequest()
			p.Normalize()
			mutate(&p)

			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, field, ve.Field)
		})
	}

	t.Run("inbound email with recipients", func(t *testing.T) {
		p := validRequest()
		p.Source = SourceInboundEmail
		p.OriginalTo = []string{"support@example.com", "billing@example.com"}
		p.Normalize()
		assert.NoError(t, p.Validate())
	})

	t.Run("display name is not a bare address", func(t *testing.T) {
		p := validRequest()
		p.SenderEmail = "Ada <ada@example.com>"
		assert.ErrorIs(t, p.Validate(), ErrValidation)
	})
}

func TestMessageFilter_Normalize(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		f := MessageFilter{}
		require.NoError(t, f.Normalize())
		assert.Equal(t, DefaultListLimit, f.Limit)
		assert.Equal(t, 0, f.Offset)
	})

	t.Run("limit capped", func(t *testing.T) {
		f := MessageFilter{Limit: 5000}
		require.NoError(t, f.Normalize())
		assert.Equal(t, MaxListLimit, f.Limit)
	})

	t.Run("negative offset", func(t *testing.T) {
		f := MessageFilter{Offset: -1}
		assert.ErrorIs(t, f.Normalize(), ErrValidation)
	})

	t.Run("unknown status", func(t *testing.T) {
		s := MessageStatus("deleted")
		f := MessageFilter{Status: &s}
		assert.ErrorIs(t, f.Normalize(), ErrValidation)
	})

	t.Run("unknown category", func(t *testing.T) {
		c := Category("spam")
		f := MessageFilter{Category: &c}
		assert.ErrorIs(t, f.Normalize(), ErrValidation)
	})

	t.Run("blank search dropped", func(t *testing.T) {
		s := "  "
		f := MessageFilter{Search: &s}
		require.NoError(t, f.Normalize())
		assert.Nil(t, f.Search)
	})
}

func TestReplyRequest_Validate(t *testing.T) {
	r := ReplyRequest{MessageID: "abc", Body: "   "}
	assert.ErrorIs(t, r.Validate(), ErrValidation)

	r = ReplyRequest{MessageID: "", Body: "thanks"}
	assert.ErrorIs(t, r.Validate(), ErrValidation)

	r = ReplyRequest{MessageID: "abc", Body: "  thanks  "}
	require.NoError(t, r.Validate())
	assert.Equal(t, "thanks", r.Body)
}
