package handlers

import (
	"net/http"
	"time"

	"github.com/omnipizza/storefront/internal/domain"
	"github.com/omnipizza/storefront/internal/services"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	service services.HealthService
	build   services.BuildInfo
	clock   func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthService sets the service backing /readyz. Without it /readyz reports ok.
func WithHealthService(svc services.HealthService) HealthOption {
	return func(h *HealthHandlers) {
		h.service = svc
		if svc != nil {
			h.build = svc.Build()
		}
	}
}

// WithHealthBuildInfo overrides the build metadata reported by /healthz.
func WithHealthBuildInfo(build services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) { h.build = build }
}

// WithHealthClock overrides the clock used for uptime and timestamps.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs health handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

type healthPayload struct {
	Status    string                        `json:"status"`
	Version   string                        `json:"version,omitempty"`
	CommitSHA string                        `json:"commitSha,omitempty"`
	Uptime    string                        `json:"uptime"`
	Timestamp string                        `json:"timestamp"`
	Checks    map[string]healthCheckPayload `json:"checks,omitempty"`
}

type healthCheckPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// Healthz reports process liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	writeJSONResponse(w, http.StatusOK, healthPayload{
		Status:    domain.HealthStatusOK,
		Version:   h.build.Version,
		CommitSHA: h.build.CommitSHA,
		Uptime:    now.Sub(h.build.StartedAt).Round(time.Second).String(),
		Timestamp: formatTime(now),
	})
}

// Readyz probes dependencies. Degraded optional dependencies still report ready.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		h.Healthz(w, r)
		return
	}
	report, err := h.service.Report(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, healthPayload{
			Status:    domain.HealthStatusError,
			Version:   h.build.Version,
			Timestamp: formatTime(h.clock()),
		})
		return
	}

	payload := healthPayload{
		Status:    report.Status,
		Version:   report.Version,
		CommitSHA: h.build.CommitSHA,
		Uptime:    report.Uptime.Round(time.Second).String(),
		Timestamp: formatTime(report.GeneratedAt),
		Checks:    make(map[string]healthCheckPayload, len(report.Checks)),
	}
	for name, check := range report.Checks {
		payload.Checks[name] = healthCheckPayload{
			Status:    check.Status,
			Detail:    check.Detail,
			LatencyMS: check.Latency.Milliseconds(),
		}
	}
	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}
