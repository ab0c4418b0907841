package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/omnipizza/storefront/internal/domain"
)

func TestDependencyHealthRepositoryCollectSuccess(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{Name: "pizza_api", Check: func(context.Context) error { return nil }},
	}, WithDependencyClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK || len(report.Checks) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Checks["firestore"].CheckedAt != now {
		t.Fatalf("expected injected clock to be used")
	}
}

func TestDependencyHealthRepositoryOptionalFailureDegrades(t *testing.T) {
	repo, _ := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{Name: "pizza_api", Optional: true, Check: func(context.Context) error { return errors.New("502") }},
	})

	report, _ := repo.Collect(context.Background())
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if report.Checks["pizza_api"].Detail != "502" {
		t.Fatalf("expected failure detail, got %+v", report.Checks["pizza_api"])
	}
}

func TestDependencyHealthRepositoryTimeout(t *testing.T) {
	repo, _ := NewDependencyHealthRepository([]DependencyCheck{{
		Name:    "firestore",
		Timeout: 10 * time.Millisecond,
		Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}})

	report, _ := repo.Collect(context.Background())
	if report.Status != domain.HealthStatusError || report.Checks["firestore"].Detail != "timeout" {
		t.Fatalf("expected timeout error, got %+v", report)
	}
}

func TestNewDependencyHealthRepositoryValidatesChecks(t *testing.T) {
	if _, err := NewDependencyHealthRepository([]DependencyCheck{{Name: "x"}}); err == nil {
		t.Fatal("expected error for missing check function")
	}
	if _, err := NewDependencyHealthRepository([]DependencyCheck{{Check: func(context.Context) error { return nil }}}); err == nil {
		t.Fatal("expected error for missing name")
	}
	repo, err := NewDependencyHealthRepository(nil)
	if err != nil {
		t.Fatalf("empty check set should be allowed: %v", err)
	}
	if report, _ := repo.Collect(context.Background()); report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok for empty check set")
	}
}
