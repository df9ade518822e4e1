package services

import (
	"context"
	"fmt"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService reports whether the backing stores answer.
type HealthService struct {
	deps map[string]Pinger
}

func NewHealthService() *HealthService {
	return &HealthService{deps: make(map[string]Pinger)}
}

func (s *HealthService) Register(name string, p Pinger) *HealthService {
	s.deps[name] = p
	return s
}

func (s *HealthService) Check(ctx context.Context) map[string]error {
	out := make(map[string]error, len(s.deps))
	for name, p := range s.deps {
		if err := p.Ping(ctx); err != nil {
			out[name] = fmt.Errorf("%s: %w", name, err)
		}
	}
	return out
}
