package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// DependencyCheck is one readiness probe (Firestore, Postgres, broker...).
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// ProbeOption customises the probe-backed health repository.
type ProbeOption func(*probeHealthRepository)

// WithProbeTimeout sets the timeout used by checks that do not declare one.
func WithProbeTimeout(timeout time.Duration) ProbeOption {
	return func(repo *probeHealthRepository) {
		if timeout > 0 {
			repo.timeout = timeout
		}
	}
}

// WithProbeClock injects a clock for tests.
func WithProbeClock(clock func() time.Time) ProbeOption {
	return func(repo *probeHealthRepository) {
		if clock != nil {
			repo.now = clock
		}
	}
}

type probeHealthRepository struct {
	checks  []DependencyCheck
	timeout time.Duration
	now     func() time.Time
}

var _ HealthRepository = (*probeHealthRepository)(nil)

// NewProbeHealthRepository validates the probe set up front and returns a HealthRepository
// that runs every probe concurrently on Collect.
func NewProbeHealthRepository(checks []DependencyCheck, opts ...ProbeOption) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: at least one dependency check is required")
	}
	for _, check := range checks {
		if strings.TrimSpace(check.Name) == "" {
			return nil, errors.New("health repository: dependency check missing name")
		}
		if check.Check == nil {
			return nil, fmt.Errorf("health repository: dependency %s missing check function", check.Name)
		}
	}
	repo := &probeHealthRepository{
		checks:  append([]DependencyCheck(nil), checks...),
		timeout: defaultProbeTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

func (r *probeHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if ctx == nil {
		return domain.SystemHealthReport{}, errors.New("health repository: context is required")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]domain.SystemHealthCheck, len(r.checks))
	)
	for _, check := range r.checks {
		wg.Add(1)
		go func(check DependencyCheck) {
			defer wg.Done()
			result := r.probe(ctx, check)
			mu.Lock()
			results[check.Name] = result
			mu.Unlock()
		}(check)
	}
	wg.Wait()

	status := domain.HealthStatusOK
	for _, result := range results {
		switch result.Status {
		case domain.HealthStatusError:
			status = domain.HealthStatusError
		case domain.HealthStatusDegraded:
			if status == domain.HealthStatusOK {
				status = domain.HealthStatusDegraded
			}
		}
	}

	return domain.SystemHealthReport{
		Status:      status,
		Checks:      results,
		GeneratedAt: r.now(),
	}, nil
}

func (r *probeHealthRepository) probe(ctx context.Context, check DependencyCheck) domain.SystemHealthCheck {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := check.Check(probeCtx)
	end := r.now()

	result := domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		Detail:    "ok",
		Latency:   end.Sub(start),
		CheckedAt: end,
	}
	if err == nil && probeCtx.Err() != nil {
		err = probeCtx.Err()
	}
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		result.Status = domain.HealthStatusError
		result.Detail = "timeout"
		result.Error = err.Error()
	case errors.Is(err, context.Canceled):
		result.Status = domain.HealthStatusError
		result.Detail = "cancelled"
		result.Error = err.Error()
	default:
		result.Status = domain.HealthStatusDegraded
		result.Detail = err.Error()
		result.Error = err.Error()
	}
	return result
}
