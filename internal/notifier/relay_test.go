package notifier

import (
	"context"
	"encoding/json"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

// startRelay serves handler on an in-memory listener and returns a dialer for it.
func startRelay(t *testing.T, handler fasthttp.RequestHandler) fasthttp.DialFunc {
	ln := fasthttputil.NewInmemoryListener()
	go func() {
		_ = fasthttp.Serve(ln, handler)
	}()
	t.Cleanup(func() { _ = ln.Close() })

	return func(addr string) (net.Conn, error) {
		return ln.Dial()
	}
}

func relayConfig(providers ...ProviderConfig) *Config {
	return &Config{
		Driver:                  DriverRelay,
		Providers:               providers,
		Timeout:                 time.Second,
		MaxRetries:              2,
		RetryDelay:              time.Millisecond,
		MaxConns:                10,
		CircuitBreakerThreshold: 2,
		CircuitBreakerTimeout:   time.Minute,
	}
}

func TestProviderMetrics(t *testing.T) {
	var m ProviderMetrics

	m.RecordSuccess(100)
	m.RecordSuccess(200)
	assert.Equal(t, int64(150), m.AvgLatencyMs())
	assert.Equal(t, 1.0, m.SuccessRate())

	m.RecordFailure()
	m.RecordFailure()
	assert.Equal(t, int64(4), m.TotalRequests.Load())
	assert.InDelta(t, 0.5, m.SuccessRate(), 0.001)
	assert.Equal(t, int32(2), m.ConsecutiveFails.Load())

	m.RecordSuccess(100)
	assert.Equal(t, int32(0), m.ConsecutiveFails.Load())
}

func TestProvider_IsAvailable(t *testing.T) {
	p := NewProvider("test", "http://relay.local", 100, &fasthttp.Client{})

	p.SetState(StateDegraded)
	assert.True(t, p.IsAvailable())

	p.SetState(StateUnhealthy)
	assert.False(t, p.IsAvailable())
	assert.Zero(t, p.Score())

	p.openCircuit(time.Minute)
	assert.False(t, p.IsAvailable())

	p.openCircuit(-time.Second)
	assert.True(t, p.IsAvailable())
	assert.Equal(t, StateDegraded, p.State())
}

func TestProvider_Score(t *testing.T) {
	healthy := NewProvider("a", "http://a", 100, &fasthttp.Client{})
	flaky := NewProvider("b", "http://b", 100, &fasthttp.Client{})
	flaky.metrics.RecordFailure()
	flaky.metrics.RecordFailure()

	assert.Greater(t, healthy.Score(), flaky.Score())

	degraded := NewProvider("c", "http://c", 100, &fasthttp.Client{})
	degraded.SetState(StateDegraded)
	assert.Greater(t, healthy.Score(), degraded.Score())
	assert.Greater(t, degraded.Score(), 0.0)
}

func TestNewRelayClient_Validation(t *testing.T) {
	c, err := NewRelayClient(nil)
	assert.Error(t, err)
	assert.Nil(t, c)

	c, err = NewRelayClient(relayConfig())
	assert.Error(t, err)
	assert.Nil(t, c)
}

func TestRelayClient_Send(t *testing.T) {
	var got RelayRequest
	dial := startRelay(t, func(ctx *fasthttp.RequestCtx) {
		require.Equal(t, sendPath, string(ctx.Path()))
		require.NoError(t, json.Unmarshal(ctx.PostBody(), &got))
		resp, _ := json.Marshal(RelayResponse{Reference: got.Reference, Status: MailSent, RelayID: "relay-1"})
		ctx.SetContentType("application/json")
		ctx.SetBody(resp)
	})

	c, err := newRelayClient(relayConfig(ProviderConfig{Name: "primary", URL: "http://relay.local", Weight: 100}), dial)
	require.NoError(t, err)
	defer c.Close()

	res, err := c.Send(context.Background(), "ada@example.com", "Re: VAT", "hello")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "primary", res.Provider)
	assert.Equal(t, "ada@example.com", got.To)
	assert.Equal(t, "Re: VAT", got.Subject)
	assert.Equal(t, "hello", got.Body)
	assert.NotEmpty(t, got.Reference)
}

func TestRelayClient_SendRejected(t *testing.T) {
	dial := startRelay(t, func(ctx *fasthttp.RequestCtx) {
		resp, _ := json.Marshal(RelayResponse{Status: MailFailed, ErrorCode: "MAILBOX_FULL", ErrorMsg: "mailbox full"})
		ctx.SetBody(resp)
	})

	c, err := newRelayClient(relayConfig(ProviderConfig{Name: "primary", URL: "http://relay.local", Weight: 100}), dial)
	require.NoError(t, err)
	defer c.Close()

	res, err := c.Send(context.Background(), "ada@example.com", "Re: VAT", "hello")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "mailbox full", res.Error)
}

func TestRelayClient_FailsOverAndOpensCircuit(t *testing.T) {
	var calls atomic.Int32
	dial := startRelay(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	})

	c, err := newRelayClient(relayConfig(ProviderConfig{Name: "primary", URL: "http://relay.local", Weight: 100}), dial)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Send(context.Background(), "ada@example.com", "Re: VAT", "hello")
	require.Error(t, err)

	// threshold is 2, so the third attempt finds no provider
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, StateCircuitOpen, c.providers[0].State())
	assert.ErrorIs(t, err, ErrNoAvailableProviders)
}

func TestRelayClient_SendHonoursContext(t *testing.T) {
	dial := startRelay(t, func(ctx *fasthttp.RequestCtx) {
		time.Sleep(200 * time.Millisecond)
		ctx.SetBodyString(`{"status":"SENT"}`)
	})

	cfg := relayConfig(ProviderConfig{Name: "primary", URL: "http://relay.local", Weight: 100})
	cfg.CircuitBreakerThreshold = 0
	c, err := newRelayClient(cfg, dial)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Send(ctx, "ada@example.com", "Re: VAT", "hello")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestRelayClient_HealthChecks(t *testing.T) {
	var healthy atomic.Bool
	dial := startRelay(t, func(ctx *fasthttp.RequestCtx) {
		if healthy.Load() {
			ctx.SetBodyString(`{"status":"healthy"}`)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	})

	c, err := newRelayClient(relayConfig(ProviderConfig{Name: "primary", URL: "http://relay.local", Weight: 100}), dial)
	require.NoError(t, err)
	defer c.Close()

	c.performHealthChecks()
	assert.Equal(t, StateUnhealthy, c.providers[0].State())

	healthy.Store(true)
	c.performHealthChecks()
	assert.Equal(t, StateHealthy, c.providers[0].State())

	stats := c.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "HEALTHY", stats[0].State)
}

func TestProviderState_String(t *testing.T) {
	assert.Equal(t, "HEALTHY", StateHealthy.String())
	assert.Equal(t, "DEGRADED", StateDegraded.String())
	assert.Equal(t, "UNHEALTHY", StateUnhealthy.String())
	assert.Equal(t, "CIRCUIT_OPEN", StateCircuitOpen.String())
	assert.Equal(t, "UNKNOWN", ProviderState(99).String())
}
