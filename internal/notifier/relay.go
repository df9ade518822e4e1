package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/prom"
	"github.com/valyala/fasthttp"
)

const (
	sendPath   = "/api/v1/mail/send"
	healthPath = "/health"
)

type MailStatus string

const (
	MailSent   MailStatus = "SENT"
	MailFailed MailStatus = "FAILED"
)

type RelayRequest struct {
	Reference string `json:"reference"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

type RelayResponse struct {
	Reference   string     `json:"reference"`
	Status      MailStatus `json:"status"`
	ErrorCode   string     `json:"error_code,omitempty"`
	ErrorMsg    string     `json:"error_message,omitempty"`
	RelayID     string     `json:"relay_id"`
	ProcessedAt time.Time  `json:"processed_at"`
}

// RelayClient sends mail through HTTP relays, failing over between them.
type RelayClient struct {
	cfg       *Config
	providers []*Provider
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewRelayClient(cfg *Config) (*RelayClient, error) {
	return newRelayClient(cfg, nil)
}

func newRelayClient(cfg *Config, dial fasthttp.DialFunc) (*RelayClient, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(cfg.Providers) == 0 {
		return nil, errors.New("at least one relay provider is required")
	}

	c := &RelayClient{
		cfg:       cfg,
		providers: make([]*Provider, 0, len(cfg.Providers)),
		stopCh:    make(chan struct{}),
	}

	for _, pc := range cfg.Providers {
		httpClient := &fasthttp.Client{
			Dial:                dial,
			MaxConnsPerHost:     cfg.MaxConns,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
		}
		c.providers = append(c.providers, NewProvider(pc.Name, pc.URL, pc.Weight, httpClient))
		logger.Info("[notifier] relay provider initialized", "name", pc.Name, "url", pc.URL, "weight", pc.Weight)
	}

	if cfg.HealthCheckInterval > 0 {
		c.wg.Add(1)
		go c.healthChecker()
	}

	return c, nil
}

// SelectBestProvider picks the available provider with the highest score.
func (c *RelayClient) SelectBestProvider() (*Provider, error) {
	var best *Provider
	var bestScore float64
	for _, p := range c.providers {
		if score := p.Score(); score > bestScore {
			best, bestScore = p, score
		}
	}
	if best == nil {
		return nil, ErrNoAvailableProviders
	}
	return best, nil
}

func (c *RelayClient) Send(ctx context.Context, to, subject, body string) (*SendResult, error) {
	req := RelayRequest{
		Reference: uuid.NewString(),
		To:        to,
		Subject:   subject,
		Body:      body,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal relay request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.cfg.RetryDelay):
			}
		}

		provider, err := c.SelectBestProvider()
		if err != nil {
			lastErr = err
			continue
		}

		start := time.Now()
		raw, err := c.doRequest(ctx, provider, fasthttp.MethodPost, sendPath, payload)
		latency := time.Since(start)

		if err != nil {
			provider.metrics.RecordFailure()
			c.checkCircuitBreaker(provider)
			prom.AddNotifierDuration(latency.Seconds(), provider.name, "error")
			logger.Warn("[notifier] relay request failed", "error", err, "provider", provider.name, "attempt", attempt+1)
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		provider.metrics.RecordSuccess(latency.Milliseconds())

		var resp RelayResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("unmarshal relay response: %w", err)
		}

		result := &SendResult{Success: resp.Status == MailSent, Provider: provider.name}
		outcome := "sent"
		if !result.Success {
			outcome = "rejected"
			result.Error = resp.ErrorMsg
			if result.Error == "" {
				result.Error = fmt.Sprintf("relay reported status %q", resp.Status)
			}
		}
		prom.AddNotifierDuration(latency.Seconds(), provider.name, outcome)
		logger.Info("[notifier] relay accepted mail", "reference", req.Reference, "status", string(resp.Status), "provider", provider.name, "latency_ms", latency.Milliseconds())
		return result, nil
	}

	return nil, fmt.Errorf("relay failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

func (c *RelayClient) doRequest(ctx context.Context, provider *Provider, method, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(provider.url + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.cfg.Timeout)
	}

	if err := provider.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if code := resp.StatusCode(); code != fasthttp.StatusOK && code != fasthttp.StatusAccepted {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", code, resp.Body())
	}

	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return out, nil
}

func (c *RelayClient) checkCircuitBreaker(provider *Provider) {
	if c.cfg.CircuitBreakerThreshold <= 0 {
		return
	}
	fails := provider.metrics.ConsecutiveFails.Load()
	if fails >= int32(c.cfg.CircuitBreakerThreshold) {
		provider.openCircuit(c.cfg.CircuitBreakerTimeout)
		logger.Warn("[notifier] circuit breaker opened", "provider", provider.name, "consecutive_fails", fails, "timeout", c.cfg.CircuitBreakerTimeout)
	}
}

func (c *RelayClient) healthChecker() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.performHealthChecks()
		case <-c.stopCh:
			return
		}
	}
}

func (c *RelayClient) performHealthChecks() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	for _, p := range c.providers {
		if p.State() == StateCircuitOpen {
			continue
		}
		old := p.State()
		next := StateUnhealthy
		if c.checkProviderHealth(ctx, p) {
			next = StateHealthy
		}
		if next != old {
			p.SetState(next)
			logger.Info("[notifier] provider state changed", "provider", p.name, "old_state", old.String(), "new_state", next.String())
		}
	}
}

func (c *RelayClient) checkProviderHealth(ctx context.Context, p *Provider) bool {
	raw, err := c.doRequest(ctx, p, fasthttp.MethodGet, healthPath, nil)
	if err != nil {
		return false
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &health); err != nil {
		return false
	}
	return health.Status == "healthy"
}

// Stats returns per-provider statistics, best score first.
func (c *RelayClient) Stats() []ProviderStats {
	stats := make([]ProviderStats, 0, len(c.providers))
	for _, p := range c.providers {
		stats = append(stats, p.Stats())
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Score > stats[j].Score
	})
	return stats
}

func (c *RelayClient) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	return nil
}
