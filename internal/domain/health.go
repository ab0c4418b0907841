package domain

import "time"

const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// HealthCheck is the outcome of one dependency probe.
type HealthCheck struct {
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates dependency probes for the readiness endpoint.
type HealthReport struct {
	Status      string
	Checks      map[string]HealthCheck
	Version     string
	Uptime      time.Duration
	GeneratedAt time.Time
}
