package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	xhttp "github.com/nimasrn/support-inbox/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type MockMessageService struct {
	mock.Mock
}

func (m *MockMessageService) Create(ctx context.Context, p model.MessageCreateRequest) (*model.Message, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MockMessageService) Get(ctx context.Context, id string) (*model.MessageDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MessageDetail), args.Error(1)
}

func (m *MockMessageService) List(ctx context.Context, f model.MessageFilter) (*model.ListResult, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ListResult), args.Error(1)
}

func (m *MockMessageService) SetStatus(ctx context.Context, id string, status model.MessageStatus) (*model.Message, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MockMessageService) SetNotes(ctx context.Context, id string, notes string) error {
	return m.Called(ctx, id, notes).Error(0)
}

func (m *MockMessageService) Counts(ctx context.Context) (model.StatusCounts, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.StatusCounts), args.Error(1)
}

type MockReplyService struct {
	mock.Mock
}

func (m *MockReplyService) Reply(ctx context.Context, req model.ReplyRequest) (*model.ReplyResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReplyResult), args.Error(1)
}

func (m *MockReplyService) Thread(ctx context.Context, messageID string) ([]*model.Reply, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Reply), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error) {
	args := m.Called(ctx, data, metadata)
	return args.String(0), args.Error(1)
}

type testAPI struct {
	messages  *MockMessageService
	replies   *MockReplyService
	publisher *MockPublisher
	handler   xhttp.RequestHandler
}

func newTestAPI() *testAPI {
	api := &testAPI{
		messages:  new(MockMessageService),
		replies:   new(MockReplyService),
		publisher: new(MockPublisher),
	}
	h := NewInboxHandler(api.messages, api.replies, api.publisher)
	h.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	r := xhttp.CreateDefaultRouter()
	RegisterInboxRoutes(r.Group("/api/v1"), h)
	api.handler = r.Handler
	return api
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func (a *testAPI) do(method, path string, body any, headers ...string) *xhttp.RequestCtx {
	var raw []byte
	switch b := body.(type) {
	case nil:
	case string:
		raw = []byte(b)
	default:
		raw, _ = json.Marshal(b)
	}
	ctx := setupTestContext(method, path, raw)
	for i := 0; i+1 < len(headers); i += 2 {
		ctx.Request.Header.Set(headers[i], headers[i+1])
	}
	a.handler(ctx)
	return ctx
}

func decodeBody(t *testing.T, ctx *xhttp.RequestCtx, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), dst), string(ctx.Response.Body()))
}

func errorBody(t *testing.T, ctx *xhttp.RequestCtx) string {
	var body map[string]string
	decodeBody(t, ctx, &body)
	return body["error"]
}

func TestInboxHandler_ListMessages(t *testing.T) {
	t.Run("parses filters", func(t *testing.T) {
		api := newTestAPI()
		res := &model.ListResult{
			Messages:     []*model.Message{{ID: "m1", Subject: "Hi"}},
			Total:        1,
			Limit:        5,
			Offset:       10,
			StatusCounts: model.StatusCounts{model.MessageStatusNew: 1},
		}
		api.messages.On("List", mock.Anything, mock.MatchedBy(func(f model.MessageFilter) bool {
			return f.Status != nil && *f.Status == model.MessageStatusNew &&
				f.Category != nil && *f.Category == model.CategoryBilling &&
				f.Search != nil && *f.Search == "refund" &&
				f.Limit == 5 && f.Offset == 10
		})).Return(res, nil)

		ctx := api.do("GET", "/api/v1/inbox/messages?status=new&category=billing&search=refund&limit=5&offset=10", nil)

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		var got model.ListResult
		decodeBody(t, ctx, &got)
		assert.Equal(t, int64(1), got.Total)
		require.Len(t, got.Messages, 1)
		assert.Equal(t, "m1", got.Messages[0].ID)
		assert.Equal(t, int64(1), got.StatusCounts[model.MessageStatusNew])
		api.messages.AssertExpectations(t)
	})

	t.Run("rejects non-numeric limit", func(t *testing.T) {
		api := newTestAPI()
		ctx := api.do("GET", "/api/v1/inbox/messages?limit=ten", nil)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		api.messages.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	})

	t.Run("maps validation errors to 400", func(t *testing.T) {
		api := newTestAPI()
		api.messages.On("List", mock.Anything, mock.Anything).
			Return(nil, model.NewValidationError("status", "unknown status bogus"))

		ctx := api.do("GET", "/api/v1/inbox/messages?status=bogus", nil)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		assert.Contains(t, errorBody(t, ctx), "unknown status")
	})
}

func TestInboxHandler_CreateMessage(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		api := newTestAPI()
		req := model.MessageCreateRequest{
			SenderName:  "Ada",
			SenderEmail: "ada@example.com",
			Subject:     "Hello",
			Body:        "Question",
		}
		api.messages.On("Create", mock.Anything, req).
			Return(&model.Message{ID: "m1", Status: model.MessageStatusNew}, nil)

		ctx := api.do("POST", "/api/v1/inbox/messages", req)

		assert.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode())
		var got model.Message
		decodeBody(t, ctx, &got)
		assert.Equal(t, "m1", got.ID)
		assert.Equal(t, model.MessageStatusNew, got.Status)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		api := newTestAPI()
		ctx := api.do("POST", "/api/v1/inbox/messages", "{nope")
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		assert.Contains(t, errorBody(t, ctx), "invalid JSON")
	})

	t.Run("internal errors are not leaked", func(t *testing.T) {
		api := newTestAPI()
		api.messages.On("Create", mock.Anything, mock.Anything).
			Return(nil, errors.New("pq: password authentication failed"))

		ctx := api.do("POST", "/api/v1/inbox/messages", model.MessageCreateRequest{Subject: "x"})
		assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
		assert.Equal(t, "internal error", errorBody(t, ctx))
	})
}

func TestInboxHandler_GetMessage(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		api := newTestAPI()
		detail := &model.MessageDetail{
			Message: &model.Message{ID: "m1", Status: model.MessageStatusRead},
			Replies: []*model.Reply{},
		}
		api.messages.On("Get", mock.Anything, "m1").Return(detail, nil)

		ctx := api.do("GET", "/api/v1/inbox/messages/m1", nil)

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		var got map[string]json.RawMessage
		decodeBody(t, ctx, &got)
		assert.Contains(t, got, "message")
		assert.JSONEq(t, `[]`, string(got["replies"]))
	})

	t.Run("not found", func(t *testing.T) {
		api := newTestAPI()
		api.messages.On("Get", mock.Anything, "missing").
			Return(nil, fmt.Errorf("%w: missing", model.ErrNotFound))

		ctx := api.do("GET", "/api/v1/inbox/messages/missing", nil)
		assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	})
}

func TestInboxHandler_SetStatus(t *testing.T) {
	t.Run("updated", func(t *testing.T) {
		api := newTestAPI()
		api.messages.On("SetStatus", mock.Anything, "m1", model.MessageStatusInProgress).
			Return(&model.Message{ID: "m1", Status: model.MessageStatusInProgress}, nil)

		ctx := api.do("PATCH", "/api/v1/inbox/messages/m1/status", statusRequest{Status: model.MessageStatusInProgress})

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		var got model.Message
		decodeBody(t, ctx, &got)
		assert.Equal(t, model.MessageStatusInProgress, got.Status)
	})

	t.Run("invalid transition is a conflict", func(t *testing.T) {
		api := newTestAPI()
		api.messages.On("SetStatus", mock.Anything, "m1", model.MessageStatusNew).
			Return(nil, &model.TransitionError{From: model.MessageStatusArchived, To: model.MessageStatusNew})

		ctx := api.do("PATCH", "/api/v1/inbox/messages/m1/status", statusRequest{Status: model.MessageStatusNew})
		assert.Equal(t, fasthttp.StatusConflict, ctx.Response.StatusCode())
		assert.Contains(t, errorBody(t, ctx), "archived -> new")
	})

	t.Run("write conflict", func(t *testing.T) {
		api := newTestAPI()
		api.messages.On("SetStatus", mock.Anything, "m1", model.MessageStatusResolved).
			Return(nil, model.ErrConflict)

		ctx := api.do("PATCH", "/api/v1/inbox/messages/m1/status", statusRequest{Status: model.MessageStatusResolved})
		assert.Equal(t, fasthttp.StatusConflict, ctx.Response.StatusCode())
	})
}

func TestInboxHandler_SetNotes(t *testing.T) {
	api := newTestAPI()
	api.messages.On("SetNotes", mock.Anything, "m1", "called back").Return(nil)

	ctx := api.do("PUT", "/api/v1/inbox/messages/m1/notes", notesRequest{InternalNotes: "called back"})

	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	assert.Empty(t, ctx.Response.Body())
	api.messages.AssertExpectations(t)
}

func TestInboxHandler_CreateReply(t *testing.T) {
	t.Run("requires operator header", func(t *testing.T) {
		api := newTestAPI()
		ctx := api.do("POST", "/api/v1/inbox/messages/m1/replies", replyRequest{Message: "thanks"})
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		api.replies.AssertNotCalled(t, "Reply", mock.Anything, mock.Anything)
	})

	t.Run("send_email defaults to true", func(t *testing.T) {
		api := newTestAPI()
		want := model.ReplyRequest{
			MessageID:   "m1",
			Body:        "thanks",
			RespondedBy: "alice",
			SendEmail:   true,
		}
		res := &model.ReplyResult{
			Reply:     &model.Reply{ID: "r1", MessageID: "m1", EmailAttempted: true},
			Message:   &model.Message{ID: "m1", Status: model.MessageStatusReplied},
			Delivered: false,
		}
		res.DeliveryError = "relay unreachable"
		api.replies.On("Reply", mock.Anything, want).Return(res, nil)

		ctx := api.do("POST", "/api/v1/inbox/messages/m1/replies", `{"message":"thanks"}`, OperatorHeader, "alice")

		assert.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode())
		var got model.ReplyResult
		decodeBody(t, ctx, &got)
		assert.Equal(t, "r1", got.Reply.ID)
		assert.False(t, got.Delivered)
		assert.Equal(t, "relay unreachable", got.DeliveryError)
		assert.Equal(t, model.MessageStatusReplied, got.Message.Status)
	})

	t.Run("explicit flags", func(t *testing.T) {
		api := newTestAPI()
		api.replies.On("Reply", mock.Anything, mock.MatchedBy(func(r model.ReplyRequest) bool {
			return !r.SendEmail && r.MarkResolved
		})).Return(&model.ReplyResult{Reply: &model.Reply{ID: "r2"}}, nil)

		sendEmail := false
		ctx := api.do("POST", "/api/v1/inbox/messages/m1/replies",
			replyRequest{Message: "done", SendEmail: &sendEmail, MarkResolved: true},
			OperatorHeader, "bob")
		assert.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode())
		api.replies.AssertExpectations(t)
	})

	t.Run("archived message", func(t *testing.T) {
		api := newTestAPI()
		api.replies.On("Reply", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: message is archived", model.ErrInvalidState))

		ctx := api.do("POST", "/api/v1/inbox/messages/m1/replies", replyRequest{Message: "hi"}, OperatorHeader, "alice")
		assert.Equal(t, fasthttp.StatusConflict, ctx.Response.StatusCode())
	})

	t.Run("stored reply with failed status step", func(t *testing.T) {
		api := newTestAPI()
		api.replies.On("Reply", mock.Anything, mock.Anything).
			Return(&model.ReplyResult{Reply: &model.Reply{ID: "r3"}}, model.ErrConflict)

		ctx := api.do("POST", "/api/v1/inbox/messages/m1/replies", replyRequest{Message: "hi"}, OperatorHeader, "alice")
		assert.Equal(t, fasthttp.StatusConflict, ctx.Response.StatusCode())
		var got replyErrorResponse
		decodeBody(t, ctx, &got)
		require.NotNil(t, got.Reply)
		assert.Equal(t, "r3", got.Reply.ID)
	})
}

func TestInboxHandler_ListReplies(t *testing.T) {
	api := newTestAPI()
	api.replies.On("Thread", mock.Anything, "m1").
		Return([]*model.Reply{{ID: "r1"}, {ID: "r2"}}, nil)

	ctx := api.do("GET", "/api/v1/inbox/messages/m1/replies", nil)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var got repliesResponse
	decodeBody(t, ctx, &got)
	require.Len(t, got.Replies, 2)
	assert.Equal(t, "r1", got.Replies[0].ID)
}

func TestInboxHandler_Submit(t *testing.T) {
	valid := model.Submission{
		Message: model.MessageCreateRequest{
			SenderName:  "Ada",
			SenderEmail: "ada@example.com",
			Subject:     "Hello",
			Body:        "Question",
		},
	}

	t.Run("enqueued with generated id", func(t *testing.T) {
		api := newTestAPI()
		api.publisher.On("PublishJSON", mock.Anything, mock.MatchedBy(func(v interface{}) bool {
			sub, ok := v.(model.Submission)
			return ok && sub.SubmissionID != "" && !sub.ReceivedAt.IsZero() &&
				sub.Message.Category == model.CategoryGeneral
		}), mock.Anything).Return("1700000000000-0", nil)

		ctx := api.do("POST", "/api/v1/inbox/submissions", valid)

		assert.Equal(t, fasthttp.StatusAccepted, ctx.Response.StatusCode())
		var got submissionResponse
		decodeBody(t, ctx, &got)
		assert.NotEmpty(t, got.SubmissionID)
		assert.Equal(t, "1700000000000-0", got.StreamID)
	})

	t.Run("keeps caller id", func(t *testing.T) {
		api := newTestAPI()
		sub := valid
		sub.SubmissionID = "form-123"
		api.publisher.On("PublishJSON", mock.Anything, mock.Anything, mock.MatchedBy(func(meta map[string]string) bool {
			return meta["submission_id"] == "form-123"
		})).Return("1-0", nil)

		ctx := api.do("POST", "/api/v1/inbox/submissions", sub)
		assert.Equal(t, fasthttp.StatusAccepted, ctx.Response.StatusCode())
	})

	t.Run("validates before enqueue", func(t *testing.T) {
		api := newTestAPI()
		sub := valid
		sub.Message.SenderEmail = "nope"

		ctx := api.do("POST", "/api/v1/inbox/submissions", sub)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		api.publisher.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("stream unavailable", func(t *testing.T) {
		api := newTestAPI()
		api.publisher.On("PublishJSON", mock.Anything, mock.Anything, mock.Anything).
			Return("", errors.New("dial tcp: connection refused"))

		ctx := api.do("POST", "/api/v1/inbox/submissions", valid)
		assert.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())
	})
}

func TestInboxHandler_Counts(t *testing.T) {
	api := newTestAPI()
	counts := model.NewStatusCounts()
	counts[model.MessageStatusNew] = 3
	api.messages.On("Counts", mock.Anything).Return(counts, nil)

	ctx := api.do("GET", "/api/v1/inbox/counts", nil)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var got map[string]int64
	decodeBody(t, ctx, &got)
	assert.Equal(t, int64(3), got["new"])
	assert.Contains(t, got, "archived")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.NewValidationError("x", "y"), fasthttp.StatusBadRequest},
		{fmt.Errorf("%w: id", model.ErrNotFound), fasthttp.StatusNotFound},
		{&model.TransitionError{From: model.MessageStatusNew, To: model.MessageStatusReplied}, fasthttp.StatusConflict},
		{model.ErrInvalidState, fasthttp.StatusConflict},
		{model.ErrConflict, fasthttp.StatusConflict},
		{errors.New("boom"), fasthttp.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
