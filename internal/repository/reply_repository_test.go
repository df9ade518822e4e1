package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyRepository_CreateAndList(t *testing.T) {
	db := setupTestDB(t).DB
	messages := NewMessageRepository(db)
	replies := NewReplyRepository(db)
	ctx := context.Background()

	msg := mustCreateMessage(t, messages, newTestMessage("Hello", baseTime))
	other := mustCreateMessage(t, messages, newTestMessage("Other", baseTime))

	for i, body := range []string{"first", "second", "third"} {
		_, err := replies.Create(ctx, &model.Reply{
			MessageID:   msg.ID,
			RespondedBy: "agent@example.com",
			Body:        body,
			CreatedAt:   baseTime.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err := replies.Create(ctx, &model.Reply{MessageID: other.ID, Body: "elsewhere", CreatedAt: baseTime})
	require.NoError(t, err)

	thread, err := replies.ListByMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, thread, 3)
	assert.Equal(t, "first", thread[0].Body)
	assert.Equal(t, "third", thread[2].Body)
	assert.Equal(t, msg.ID, thread[0].MessageID)
	assert.Equal(t, "agent@example.com", thread[0].RespondedBy)

	empty, err := replies.ListByMessage(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReplyRepository_UpdateDelivery(t *testing.T) {
	db := setupTestDB(t).DB
	messages := NewMessageRepository(db)
	replies := NewReplyRepository(db)
	ctx := context.Background()

	msg := mustCreateMessage(t, messages, newTestMessage("Hello", baseTime))
	reply, err := replies.Create(ctx, &model.Reply{
		MessageID:      msg.ID,
		Body:           "we are on it",
		EmailAttempted: true,
		CreatedAt:      baseTime,
	})
	require.NoError(t, err)
	assert.True(t, reply.EmailAttempted)
	assert.False(t, reply.EmailSent)

	require.NoError(t, replies.UpdateDelivery(ctx, reply.ID, false, "relay unavailable", baseTime.Add(time.Second)))

	thread, err := replies.ListByMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.False(t, thread[0].EmailSent)
	assert.Equal(t, "relay unavailable", thread[0].DeliveryError)

	require.NoError(t, replies.UpdateDelivery(ctx, reply.ID, true, "", baseTime.Add(2*time.Second)))
	thread, err = replies.ListByMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, thread[0].EmailSent)
	assert.Empty(t, thread[0].DeliveryError)

	err = replies.UpdateDelivery(ctx, uuid.NewString(), true, "", baseTime)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplyRepository_MalformedMessageID(t *testing.T) {
	replies := NewReplyRepository(setupTestDB(t).DB)

	_, err := replies.Create(context.Background(), &model.Reply{MessageID: "bogus", Body: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}
