package main

import (
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nimasrn/support-inbox/internal/notifier"
	"github.com/rs/zerolog/log"
)

const outboxSize = 500

// SendMailRequest mirrors notifier.RelayRequest with binding rules.
type SendMailRequest struct {
	Reference string `json:"reference" binding:"required"`
	To        string `json:"to" binding:"required,email"`
	Subject   string `json:"subject" binding:"required"`
	Body      string `json:"body" binding:"required"`
}

type HealthResponse struct {
	Status       string    `json:"status"`
	RelayID      string    `json:"relay_id"`
	Timestamp    time.Time `json:"timestamp"`
	DeliveryRate float64   `json:"delivery_rate"`
}

// MockRelay pretends to hand mail to an MTA and remembers what it accepted.
type MockRelay struct {
	mu           sync.Mutex
	deliveryRate float64
	downtimeRate float64
	minDelay     time.Duration
	maxDelay     time.Duration
	relayID      string
	rng          *rand.Rand
	outbox       []*notifier.RelayResponse
	byRef        map[string]*notifier.RelayResponse
}

func NewMockRelay(deliveryRate float64, minDelay, maxDelay time.Duration) *MockRelay {
	return &MockRelay{
		deliveryRate: deliveryRate,
		minDelay:     minDelay,
		maxDelay:     maxDelay,
		relayID:      "MOCK_RELAY_" + uuid.New().String()[:8],
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		byRef:        make(map[string]*notifier.RelayResponse),
	}
}

func (m *MockRelay) simulateSend(req *SendMailRequest) *notifier.RelayResponse {
	time.Sleep(m.randomDelay())

	resp := &notifier.RelayResponse{
		Reference:   req.Reference,
		RelayID:     m.relayID,
		ProcessedAt: time.Now().UTC(),
	}

	if m.roll() < m.rate() {
		resp.Status = notifier.MailSent
		log.Info().
			Str("reference", req.Reference).
			Str("to", req.To).
			Str("subject", req.Subject).
			Msg("mail relayed")
	} else {
		resp.Status = notifier.MailFailed
		resp.ErrorCode = m.randomErrorCode()
		resp.ErrorMsg = errorMessages[resp.ErrorCode]
		log.Warn().
			Str("reference", req.Reference).
			Str("to", req.To).
			Str("error_code", resp.ErrorCode).
			Msg("mail rejected")
	}

	m.remember(resp)
	return resp
}

func (m *MockRelay) remember(resp *notifier.RelayResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.outbox) == outboxSize {
		delete(m.byRef, m.outbox[0].Reference)
		m.outbox = m.outbox[1:]
	}
	m.outbox = append(m.outbox, resp)
	m.byRef[resp.Reference] = resp
}

func (m *MockRelay) lookup(ref string) (*notifier.RelayResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byRef[ref]
	return r, ok
}

func (m *MockRelay) randomDelay() time.Duration {
	delta := m.maxDelay - m.minDelay
	if delta <= 0 {
		return m.minDelay
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.minDelay + time.Duration(m.rng.Int63n(int64(delta)))
}

func (m *MockRelay) roll() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64()
}

func (m *MockRelay) rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deliveryRate
}

var errorMessages = map[string]string{
	"MAILBOX_UNAVAILABLE": "Recipient mailbox is unavailable",
	"MAILBOX_FULL":        "Recipient mailbox is full",
	"SPAM_REJECTED":       "Message was rejected as spam",
	"RELAY_DENIED":        "Relaying denied for this domain",
}

func (m *MockRelay) randomErrorCode() string {
	codes := []string{"MAILBOX_UNAVAILABLE", "MAILBOX_FULL", "SPAM_REJECTED", "RELAY_DENIED"}
	m.mu.Lock()
	defer m.mu.Unlock()
	return codes[m.rng.Intn(len(codes))]
}

type Handler struct {
	relay *MockRelay
}

func NewHandler(relay *MockRelay) *Handler {
	return &Handler{relay: relay}
}

func (h *Handler) SendMail(c *gin.Context) {
	var req SendMailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	resp := h.relay.simulateSend(&req)

	status := http.StatusOK
	if resp.Status == notifier.MailFailed {
		status = http.StatusAccepted // accepted, delivery refused
	}
	c.JSON(status, resp)
}

func (h *Handler) GetMail(c *gin.Context) {
	resp, ok := h.relay.lookup(c.Param("reference"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown reference"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	h.relay.mu.Lock()
	down := h.relay.downtimeRate > 0 && h.relay.rng.Float64() < h.relay.downtimeRate
	rate := h.relay.deliveryRate
	h.relay.mu.Unlock()

	if down {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  "Relay temporarily unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:       "healthy",
		RelayID:      h.relay.relayID,
		Timestamp:    time.Now().UTC(),
		DeliveryRate: rate,
	})
}

// UpdateConfig changes the delivery and downtime rates at runtime.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var cfg struct {
		DeliveryRate *float64 `json:"delivery_rate" binding:"omitempty,min=0,max=1"`
		DowntimeRate *float64 `json:"downtime_rate" binding:"omitempty,min=0,max=1"`
	}
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	h.relay.mu.Lock()
	if cfg.DeliveryRate != nil {
		h.relay.deliveryRate = *cfg.DeliveryRate
	}
	if cfg.DowntimeRate != nil {
		h.relay.downtimeRate = *cfg.DowntimeRate
	}
	rate, down := h.relay.deliveryRate, h.relay.downtimeRate
	h.relay.mu.Unlock()

	log.Info().Float64("delivery_rate", rate).Float64("downtime_rate", down).Msg("relay config updated")
	c.JSON(http.StatusOK, gin.H{
		"delivery_rate": rate,
		"downtime_rate": down,
	})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request processed")
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/mail/send", handler.SendMail)
		v1.GET("/mail/:reference", handler.GetMail)
		v1.GET("/health", handler.HealthCheck)
		v1.PUT("/config", handler.UpdateConfig)
	}

	// the notifier probes the root path
	router.GET("/health", handler.HealthCheck)

	return router
}
