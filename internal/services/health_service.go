package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/omnipizza/storefront/internal/domain"
	"github.com/omnipizza/storefront/internal/repositories"
)

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version   string
	CommitSHA string
	StartedAt time.Time
}

// HealthService reports liveness metadata and dependency readiness.
type HealthService interface {
	Report(ctx context.Context) (domain.HealthReport, error)
	Build() BuildInfo
}

// HealthServiceDeps bundles collaborators required to construct a health service.
type HealthServiceDeps struct {
	Repository repositories.HealthRepository
	Clock      func() time.Time
	Build      BuildInfo
}

type healthService struct {
	repo  repositories.HealthRepository
	clock func() time.Time
	build BuildInfo
}

var _ HealthService = (*healthService)(nil)

// NewHealthService assembles the health service used by /healthz and /readyz.
func NewHealthService(deps HealthServiceDeps) (HealthService, error) {
	if deps.Repository == nil {
		return nil, errors.New("health service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}
	return &healthService{
		repo:  deps.Repository,
		clock: func() time.Time { return clock().UTC() },
		build: build,
	}, nil
}

func (s *healthService) Build() BuildInfo { return s.build }

func (s *healthService) Report(ctx context.Context) (domain.HealthReport, error) {
	report, err := s.repo.Collect(ctx)
	if err != nil {
		return domain.HealthReport{}, err
	}

	now := s.clock()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	if strings.TrimSpace(report.Version) == "" {
		report.Version = s.build.Version
	}
	if report.Uptime <= 0 && !s.build.StartedAt.IsZero() {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.HealthCheck{}
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = deriveStatus(report.Checks)
	}
	return report, nil
}

func deriveStatus(checks map[string]domain.HealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
			continue
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
