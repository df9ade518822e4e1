package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DriverRelay = "relay"
	DriverSMTP  = "smtp"
	DriverLog   = "log"
)

var (
	ErrNoAvailableProviders = errors.New("no available providers")
	ErrUnknownDriver        = errors.New("unknown notifier driver")
)

// Notifier delivers a reply to the original sender by email.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) (*SendResult, error)
	Close() error
}

// SendResult is the outcome reported by a transport. A nil error with
// Success false means the transport accepted the request and refused it.
type SendResult struct {
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Provider string `json:"provider"`
}

type Config struct {
	Driver string

	Providers               []ProviderConfig
	Timeout                 time.Duration
	MaxRetries              int
	RetryDelay              time.Duration
	MaxConns                int
	HealthCheckInterval     time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration

	SMTP SMTPConfig
}

type ProviderConfig struct {
	Name   string
	URL    string
	Weight int // base priority weight (1-100)
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// New builds the notifier selected by cfg.Driver.
func New(cfg *Config) (Notifier, error) {
	switch cfg.Driver {
	case DriverRelay:
		return NewRelayClient(cfg)
	case DriverSMTP:
		return NewSMTPNotifier(cfg.SMTP)
	case DriverLog, "":
		return NewLogNotifier(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
}
