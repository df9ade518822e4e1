package services

import (
	"context"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/internal/notifier"
	"github.com/stretchr/testify/mock"
)

type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Create(ctx context.Context, msg *model.Message) (*model.Message, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MockMessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MockMessageRepository) GetByIDForUpdate(ctx context.Context, id string) (*model.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// hand out a copy so callers mutating the result do not alter the fixture
	msg := *args.Get(0).(*model.Message)
	return &msg, args.Error(1)
}

func (m *MockMessageRepository) List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Message), args.Get(1).(int64), args.Error(2)
}

func (m *MockMessageRepository) UpdateStatus(ctx context.Context, id string, from, to model.MessageStatus, at time.Time) error {
	args := m.Called(ctx, id, from, to, at)
	return args.Error(0)
}

func (m *MockMessageRepository) UpdateNotes(ctx context.Context, id string, notes string, at time.Time) error {
	args := m.Called(ctx, id, notes, at)
	return args.Error(0)
}

func (m *MockMessageRepository) CountByStatus(ctx context.Context) (model.StatusCounts, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.StatusCounts), args.Error(1)
}

func (m *MockMessageRepository) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type MockStatusCounterRepository struct {
	mock.Mock
}

func (m *MockStatusCounterRepository) Adjust(ctx context.Context, status model.MessageStatus, delta int64) error {
	args := m.Called(ctx, status, delta)
	return args.Error(0)
}

func (m *MockStatusCounterRepository) Counts(ctx context.Context) (model.StatusCounts, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.StatusCounts), args.Error(1)
}

func (m *MockStatusCounterRepository) Reset(ctx context.Context, counts model.StatusCounts) error {
	args := m.Called(ctx, counts)
	return args.Error(0)
}

type MockReplyRepository struct {
	mock.Mock
}

func (m *MockReplyRepository) Create(ctx context.Context, r *model.Reply) (*model.Reply, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Reply), args.Error(1)
}

func (m *MockReplyRepository) ListByMessage(ctx context.Context, messageID string) ([]*model.Reply, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Reply), args.Error(1)
}

func (m *MockReplyRepository) UpdateDelivery(ctx context.Context, id string, sent bool, deliveryErr string, at time.Time) error {
	args := m.Called(ctx, id, sent, deliveryErr, at)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, to, subject, body string) (*notifier.SendResult, error) {
	args := m.Called(ctx, to, subject, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notifier.SendResult), args.Error(1)
}
