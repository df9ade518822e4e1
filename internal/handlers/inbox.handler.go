package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/nimasrn/support-inbox/internal/model"
	xhttp "github.com/nimasrn/support-inbox/pkg/http"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/valyala/fasthttp"
)

const OperatorHeader = "X-Operator"

type MessageService interface {
	Create(ctx context.Context, p model.MessageCreateRequest) (*model.Message, error)
	Get(ctx context.Context, id string) (*model.MessageDetail, error)
	List(ctx context.Context, f model.MessageFilter) (*model.ListResult, error)
	SetStatus(ctx context.Context, id string, status model.MessageStatus) (*model.Message, error)
	SetNotes(ctx context.Context, id string, notes string) error
	Counts(ctx context.Context) (model.StatusCounts, error)
}

type ReplyService interface {
	Reply(ctx context.Context, req model.ReplyRequest) (*model.ReplyResult, error)
	Thread(ctx context.Context, messageID string) ([]*model.Reply, error)
}

// SubmissionPublisher puts a submission on the ingestion stream.
type SubmissionPublisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

type InboxHandler struct {
	messages  MessageService
	replies   ReplyService
	publisher SubmissionPublisher
	now       func() time.Time
}

func NewInboxHandler(messages MessageService, replies ReplyService, publisher SubmissionPublisher) *InboxHandler {
	return &InboxHandler{
		messages:  messages,
		replies:   replies,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func RegisterInboxRoutes(e *router.Group, h *InboxHandler) {
	g := e.Group("/inbox")
	g.GET("/messages", h.ListMessages)
	g.POST("/messages", h.CreateMessage)
	g.GET("/messages/{id}", h.GetMessage)
	g.PATCH("/messages/{id}/status", h.SetStatus)
	g.PUT("/messages/{id}/notes", h.SetNotes)
	g.GET("/messages/{id}/replies", h.ListReplies)
	g.POST("/messages/{id}/replies", h.CreateReply)
	g.POST("/submissions", h.Submit)
	g.GET("/counts", h.Counts)
}

type statusRequest struct {
	Status model.MessageStatus `json:"status"`
}

type notesRequest struct {
	InternalNotes string `json:"internal_notes"`
}

type replyRequest struct {
	Message      string `json:"message"`
	SendEmail    *bool  `json:"send_email"`
	MarkResolved bool   `json:"mark_resolved"`
}

type repliesResponse struct {
	Replies []*model.Reply `json:"replies"`
}

type submissionResponse struct {
	SubmissionID string `json:"submission_id"`
	StreamID     string `json:"stream_id"`
}

type replyErrorResponse struct {
	Error string       `json:"error"`
	Reply *model.Reply `json:"reply,omitempty"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *InboxHandler) ListMessages(ctx *xhttp.RequestCtx) {
	var f model.MessageFilter

	if v := query(ctx, "status"); v != "" {
		s := model.MessageStatus(v)
		f.Status = &s
	}
	if v := query(ctx, "category"); v != "" {
		c := model.Category(v)
		f.Category = &c
	}
	if v := query(ctx, "search"); v != "" {
		f.Search = &v
	}
	var err error
	if f.Limit, err = queryInt(ctx, "limit"); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "limit: must be an integer")
		return
	}
	if f.Offset, err = queryInt(ctx, "offset"); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "offset: must be an integer")
		return
	}

	res, err := h.messages.List(ctx, f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, res)
}

func (h *InboxHandler) CreateMessage(ctx *xhttp.RequestCtx) {
	var req model.MessageCreateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	msg, err := h.messages.Create(ctx, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, msg)
}

func (h *InboxHandler) GetMessage(ctx *xhttp.RequestCtx) {
	detail, err := h.messages.Get(ctx, pathID(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, detail)
}

func (h *InboxHandler) SetStatus(ctx *xhttp.RequestCtx) {
	var req statusRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	msg, err := h.messages.SetStatus(ctx, pathID(ctx), req.Status)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, msg)
}

func (h *InboxHandler) SetNotes(ctx *xhttp.RequestCtx) {
	var req notesRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if err := h.messages.SetNotes(ctx, pathID(ctx), req.InternalNotes); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (h *InboxHandler) ListReplies(ctx *xhttp.RequestCtx) {
	replies, err := h.replies.Thread(ctx, pathID(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, repliesResponse{Replies: replies})
}

// CreateReply sends send_email=true when the field is omitted.
func (h *InboxHandler) CreateReply(ctx *xhttp.RequestCtx) {
	operator := strings.TrimSpace(string(ctx.Request.Header.Peek(OperatorHeader)))
	if operator == "" {
		writeError(ctx, fasthttp.StatusBadRequest, OperatorHeader+" header is required")
		return
	}

	var req replyRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	sendEmail := true
	if req.SendEmail != nil {
		sendEmail = *req.SendEmail
	}

	res, err := h.replies.Reply(ctx, model.ReplyRequest{
		MessageID:    pathID(ctx),
		Body:         req.Message,
		RespondedBy:  operator,
		SendEmail:    sendEmail,
		MarkResolved: req.MarkResolved,
	})
	if err != nil {
		if res != nil && res.Reply != nil {
			// The reply is stored; only the status step failed.
			writeJSON(ctx, statusFor(err), replyErrorResponse{Error: err.Error(), Reply: res.Reply})
			return
		}
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, res)
}

// Submit validates the payload up front so callers learn about bad input
// immediately, then hands it to the ingestion stream.
func (h *InboxHandler) Submit(ctx *xhttp.RequestCtx) {
	if h.publisher == nil {
		writeError(ctx, fasthttp.StatusServiceUnavailable, "ingestion stream is not configured")
		return
	}

	var sub model.Submission
	if err := readJSON(ctx, &sub); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	sub.Message.Normalize()
	if err := sub.Message.Validate(); err != nil {
		writeServiceError(ctx, err)
		return
	}
	if sub.SubmissionID == "" {
		sub.SubmissionID = uuid.NewString()
	}
	if sub.ReceivedAt.IsZero() {
		sub.ReceivedAt = h.now()
	}

	streamID, err := h.publisher.PublishJSON(ctx, sub, map[string]string{
		"submission_id": sub.SubmissionID,
		"source":        string(sub.Message.Source),
	})
	if err != nil {
		logger.Error("failed to publish submission", "submission_id", sub.SubmissionID, "error", err)
		writeError(ctx, fasthttp.StatusServiceUnavailable, "failed to enqueue submission")
		return
	}
	writeJSON(ctx, fasthttp.StatusAccepted, submissionResponse{SubmissionID: sub.SubmissionID, StreamID: streamID})
}

func (h *InboxHandler) Counts(ctx *xhttp.RequestCtx) {
	counts, err := h.messages.Counts(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, counts)
}

/* --------------------------------- Helpers ---------------------------------- */

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return fasthttp.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return fasthttp.StatusNotFound
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrInvalidState),
		errors.Is(err, model.ErrConflict):
		return fasthttp.StatusConflict
	}
	return fasthttp.StatusInternalServerError
}

func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	status := statusFor(err)
	if status == fasthttp.StatusInternalServerError {
		logger.Error("request failed", "path", string(ctx.Path()), "error", err)
		writeError(ctx, status, "internal error")
		return
	}
	writeError(ctx, status, err.Error())
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	return json.Unmarshal(ctx.PostBody(), dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to encode response", "error", err)
		status = fasthttp.StatusInternalServerError
		b = []byte(`{"error":"internal error"}`)
	}
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func pathID(ctx *xhttp.RequestCtx) string {
	id, _ := ctx.UserValue("id").(string)
	return id
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return strings.TrimSpace(string(ctx.QueryArgs().Peek(key)))
}

func queryInt(ctx *xhttp.RequestCtx, key string) (int, error) {
	v := query(ctx, key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
