package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

func TestProbeHealthRepositoryAllHealthy(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewProbeHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{Name: "postgres", Check: func(context.Context) error { return nil }},
	}, WithProbeClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewProbeHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok, got %s", report.Status)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(report.Checks))
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
	}
}

func TestProbeHealthRepositoryDegradedOnError(t *testing.T) {
	boom := errors.New("connection refused")
	repo, err := NewProbeHealthRepository([]DependencyCheck{
		{Name: "postgres", Check: func(context.Context) error { return boom }},
		{Name: "firestore", Check: func(context.Context) error { return nil }},
	})
	if err != nil {
		t.Fatalf("NewProbeHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if got := report.Checks["postgres"].Error; got != boom.Error() {
		t.Fatalf("expected error %q, got %q", boom.Error(), got)
	}
}

func TestProbeHealthRepositoryTimeout(t *testing.T) {
	repo, err := NewProbeHealthRepository([]DependencyCheck{
		{
			Name:    "kafka",
			Timeout: 5 * time.Millisecond,
			Check: func(ctx context.Context) error {
				select {
				case <-time.After(200 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	})
	if err != nil {
		t.Fatalf("NewProbeHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error status, got %s", report.Status)
	}
	if report.Checks["kafka"].Detail != "timeout" {
		t.Fatalf("expected timeout detail, got %s", report.Checks["kafka"].Detail)
	}
}

func TestNewProbeHealthRepositoryRejectsInvalidChecks(t *testing.T) {
	if _, err := NewProbeHealthRepository(nil); err == nil {
		t.Fatal("expected error for empty check set")
	}
	if _, err := NewProbeHealthRepository([]DependencyCheck{{Name: "x"}}); err == nil {
		t.Fatal("expected error for missing check func")
	}
}
