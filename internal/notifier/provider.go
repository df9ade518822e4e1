package notifier

import (
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
)

type ProviderState int32

const (
	StateHealthy ProviderState = iota
	StateDegraded
	StateUnhealthy
	StateCircuitOpen
)

func (s ProviderState) String() string {
	switch s {
	case StateHealthy:
		return "HEALTHY"
	case StateDegraded:
		return "DEGRADED"
	case StateUnhealthy:
		return "UNHEALTHY"
	case StateCircuitOpen:
		return "CIRCUIT_OPEN"
	default:
		return "UNKNOWN"
	}
}

type ProviderMetrics struct {
	TotalRequests    atomic.Int64
	SuccessfulReqs   atomic.Int64
	FailedReqs       atomic.Int64
	TotalLatencyMs   atomic.Int64
	ConsecutiveFails atomic.Int32
	LastSuccessTime  atomic.Int64
}

func (m *ProviderMetrics) RecordSuccess(latencyMs int64) {
	m.TotalRequests.Add(1)
	m.SuccessfulReqs.Add(1)
	m.TotalLatencyMs.Add(latencyMs)
	m.ConsecutiveFails.Store(0)
	m.LastSuccessTime.Store(time.Now().Unix())
}

func (m *ProviderMetrics) RecordFailure() {
	m.TotalRequests.Add(1)
	m.FailedReqs.Add(1)
	m.ConsecutiveFails.Add(1)
}

func (m *ProviderMetrics) AvgLatencyMs() int64 {
	ok := m.SuccessfulReqs.Load()
	if ok == 0 {
		return 0
	}
	return m.TotalLatencyMs.Load() / ok
}

func (m *ProviderMetrics) SuccessRate() float64 {
	total := m.TotalRequests.Load()
	if total == 0 {
		return 1.0
	}
	return float64(m.SuccessfulReqs.Load()) / float64(total)
}

// Provider is one mail relay endpoint.
type Provider struct {
	name             string
	url              string
	weight           int
	client           *fasthttp.Client
	metrics          ProviderMetrics
	state            atomic.Int32
	circuitOpenUntil atomic.Int64
}

func NewProvider(name, url string, weight int, client *fasthttp.Client) *Provider {
	p := &Provider{
		name:   name,
		url:    url,
		weight: weight,
		client: client,
	}
	p.state.Store(int32(StateHealthy))
	return p
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) State() ProviderState {
	return ProviderState(p.state.Load())
}

func (p *Provider) SetState(state ProviderState) {
	p.state.Store(int32(state))
}

// IsAvailable reports whether the provider may take traffic. An open circuit
// half-opens into the degraded state once its timeout passed.
func (p *Provider) IsAvailable() bool {
	switch p.State() {
	case StateCircuitOpen:
		if time.Now().UnixMilli() >= p.circuitOpenUntil.Load() {
			p.SetState(StateDegraded)
			return true
		}
		return false
	case StateUnhealthy:
		return false
	}
	return true
}

// Score ranks available providers; higher is better, 0 means unavailable.
func (p *Provider) Score() float64 {
	if !p.IsAvailable() {
		return 0
	}

	successScore := p.metrics.SuccessRate() * 100

	// 0ms = 100 points, 5s or slower = 0 points
	latencyScore := 100.0
	if avg := p.metrics.AvgLatencyMs(); avg > 0 {
		latencyScore = 100.0 * (1.0 - float64(avg)/5000.0)
		if latencyScore < 0 {
			latencyScore = 0
		}
	}

	penalty := 1.0 - float64(p.metrics.ConsecutiveFails.Load())*0.1
	if penalty < 0.1 {
		penalty = 0.1
	}
	if p.State() == StateDegraded {
		penalty *= 0.5
	}

	return (successScore*0.4 + latencyScore*0.4 + float64(p.weight)*0.2) * penalty
}

func (p *Provider) openCircuit(d time.Duration) {
	p.circuitOpenUntil.Store(time.Now().Add(d).UnixMilli())
	p.SetState(StateCircuitOpen)
}

type ProviderStats struct {
	Name             string  `json:"name"`
	URL              string  `json:"url"`
	State            string  `json:"state"`
	Score            float64 `json:"score"`
	TotalRequests    int64   `json:"total_requests"`
	FailedReqs       int64   `json:"failed_requests"`
	SuccessRate      float64 `json:"success_rate"`
	AvgLatencyMs     int64   `json:"avg_latency_ms"`
	ConsecutiveFails int32   `json:"consecutive_fails"`
}

func (p *Provider) Stats() ProviderStats {
	return ProviderStats{
		Name:             p.name,
		URL:              p.url,
		State:            p.State().String(),
		Score:            p.Score(),
		TotalRequests:    p.metrics.TotalRequests.Load(),
		FailedReqs:       p.metrics.FailedReqs.Load(),
		SuccessRate:      p.metrics.SuccessRate(),
		AvgLatencyMs:     p.metrics.AvgLatencyMs(),
		ConsecutiveFails: p.metrics.ConsecutiveFails.Load(),
	}
}
