package handlers

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	xhttp "github.com/nimasrn/support-inbox/pkg/http"
	"github.com/valyala/fasthttp"
)

const healthTimeout = 2 * time.Second

type HealthService interface {
	Check(ctx context.Context) map[string]error
}

type HealthHandler struct {
	svc HealthService
}

type healthResponse struct {
	Status string            `json:"status"`
	Errors map[string]string `json:"errors,omitempty"`
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(svc HealthService) *HealthHandler {
	return &HealthHandler{
		svc: svc,
	}
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	cctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	failed := h.svc.Check(cctx)
	if len(failed) == 0 {
		writeJSON(ctx, fasthttp.StatusOK, healthResponse{Status: "ok"})
		return
	}

	errs := make(map[string]string, len(failed))
	for name, err := range failed {
		errs[name] = err.Error()
	}
	writeJSON(ctx, fasthttp.StatusServiceUnavailable, healthResponse{Status: "degraded", Errors: errs})
}
