package server

import (
	"context"
)

// HealthService defines behaviour for readiness probes.
type HealthService interface {
	Probe(ctx context.Context) error
}

// Pinger is satisfied by the storage gateways.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageHealthService verifies store connectivity as part of health checks.
type StorageHealthService struct {
	Store Pinger
}

// Probe implements the HealthService interface.
func (s StorageHealthService) Probe(ctx context.Context) error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Ping(ctx)
}
