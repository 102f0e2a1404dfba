package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/funnelkit/provision-api/internal/domain"
	"github.com/funnelkit/provision-api/internal/store"
)

// Status is the aggregate health of the probe set.
type Status string

// Aggregate status values: healthy when all probes succeed, degraded
// when some do, unhealthy when none do.
const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Probe is one named remote procedure check.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Result is the ephemeral outcome of one health check. Not persisted;
// recomputed on each check.
type Result struct {
	Status    Status          `json:"status"`
	Probes    map[string]bool `json:"probes"`
	CheckedAt time.Time       `json:"checked_at"`
}

// MonitorConfig holds configuration for the health monitor.
type MonitorConfig struct {
	// ProbeTimeout bounds each individual probe call.
	ProbeTimeout time.Duration

	// BackoffBase is the unit of the capped exponential backoff in
	// WaitUntilHealthy: sleep = min(base * 2^attempt, BackoffCap).
	BackoffBase time.Duration

	// BackoffCap caps the sleep between attempts.
	BackoffCap time.Duration
}

// DefaultMonitorConfig returns a MonitorConfig with the production
// defaults: 10s per probe, 1s backoff unit capped at 60s.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ProbeTimeout: 10 * time.Second,
		BackoffBase:  time.Second,
		BackoffCap:   60 * time.Second,
	}
}

// Monitor probes the remote procedures and reports aggregate status.
// It never returns an error from a check; probe failures are folded
// into the result.
type Monitor struct {
	probes   []Probe
	reloader SchemaCacheReloader
	logs     store.HealthLogStore
	config   MonitorConfig
	logger   *slog.Logger

	// sleep is indirected for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewMonitor creates a Monitor over the given probes. The reloader and
// log store may be nil; both are best-effort collaborators.
func NewMonitor(probes []Probe, reloader SchemaCacheReloader, logs store.HealthLogStore, config MonitorConfig, logger *slog.Logger) *Monitor {
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = DefaultMonitorConfig().ProbeTimeout
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = DefaultMonitorConfig().BackoffBase
	}
	if config.BackoffCap <= 0 {
		config.BackoffCap = DefaultMonitorConfig().BackoffCap
	}
	return &Monitor{
		probes:   probes,
		reloader: reloader,
		logs:     logs,
		config:   config,
		logger:   logger.With("component", "health_monitor"),
		sleep:    sleepCtx,
	}
}

// ProbeSet builds the fixed five-probe set over the stats port. Each
// probe invokes its procedure with the documented parameter shape; a
// parameter-shape mismatch surfaces as an undefined-object error and
// counts as probe failure.
func ProbeSet(rpc StatsRPC) []Probe {
	probeManager := uuid.Nil
	return []Probe{
		{Name: "leaderboard", Check: func(ctx context.Context) error {
			_, err := rpc.SalesLeaderboard(ctx, 1)
			return err
		}},
		{Name: "manager_stats", Check: func(ctx context.Context) error {
			_, err := rpc.ManagerStats(ctx, probeManager)
			return err
		}},
		{Name: "student_listing", Check: func(ctx context.Context) error {
			_, err := rpc.ListStudents(ctx, 1, 0)
			return err
		}},
		{Name: "manager_activity", Check: func(ctx context.Context) error {
			_, err := rpc.ManagerActivity(ctx, probeManager, 1)
			return err
		}},
		{Name: "sales_chart", Check: func(ctx context.Context) error {
			_, err := rpc.SalesChartData(ctx, probeManager, 7)
			return err
		}},
	}
}

// CheckHealth runs all probes in parallel and aggregates the outcome.
// One probe's failure never aborts the others.
func (m *Monitor) CheckHealth(ctx context.Context) Result {
	results := make([]bool, len(m.probes))
	var wg sync.WaitGroup

	for i, probe := range m.probes {
		wg.Add(1)
		go func(i int, probe Probe) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
			defer cancel()

			err := probe.Check(probeCtx)
			results[i] = err == nil
			if err != nil {
				m.logger.Warn("health probe failed",
					"probe", probe.Name,
					"error", err)
			}
		}(i, probe)
	}
	wg.Wait()

	result := Result{
		Probes:    make(map[string]bool, len(m.probes)),
		CheckedAt: time.Now().UTC(),
	}
	healthy := 0
	for i, probe := range m.probes {
		result.Probes[probe.Name] = results[i]
		if results[i] {
			healthy++
		}
	}
	switch {
	case healthy == len(m.probes):
		result.Status = StatusHealthy
	case healthy > 0:
		result.Status = StatusDegraded
	default:
		result.Status = StatusUnhealthy
	}

	m.recordResult(ctx, result)
	return result
}

// WaitUntilHealthy polls CheckHealth up to maxAttempts times, sleeping
// min(base*2^attempt, cap) between attempts and firing a best-effort
// schema-cache reload on all but the last attempt. Returns true as soon
// as the status is healthy, false when attempts are exhausted or the
// context is cancelled. Intended for operational scripts, not request
// paths: the query layer can take minutes to notice new procedures.
func (m *Monitor) WaitUntilHealthy(ctx context.Context, maxAttempts int) bool {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result := m.CheckHealth(ctx)
		if result.Status == StatusHealthy {
			m.logger.Info("all probes healthy", "attempt", attempt+1)
			return true
		}

		if attempt == maxAttempts-1 {
			break
		}

		if m.reloader != nil {
			if err := m.reloader.ReloadSchemaCache(ctx); err != nil {
				m.logger.Warn("schema cache reload failed", "error", err)
			}
		}

		delay := backoffDelay(m.config.BackoffBase, attempt, m.config.BackoffCap)
		m.logger.Info("waiting for probes to become healthy",
			"attempt", attempt+1,
			"max_attempts", maxAttempts,
			"status", result.Status,
			"delay", delay)
		if err := m.sleep(ctx, delay); err != nil {
			return false
		}
	}

	m.logger.Error("probes did not become healthy", "max_attempts", maxAttempts)
	return false
}

// recordResult writes the check outcome to the health log, best-effort.
func (m *Monitor) recordResult(ctx context.Context, result Result) {
	if m.logs == nil {
		return
	}

	eventType := domain.HealthEventInfo
	switch result.Status {
	case StatusDegraded:
		eventType = domain.HealthEventWarning
	case StatusUnhealthy:
		eventType = domain.HealthEventError
	}

	md := make(map[string]any, len(result.Probes))
	for name, ok := range result.Probes {
		md[name] = ok
	}
	entry := domain.NewHealthLogEntry(eventType, domain.KindHealthCheck,
		fmt.Sprintf("health check: %s", result.Status)).
		WithMetadata(md)
	if err := m.logs.Append(ctx, entry); err != nil {
		m.logger.Warn("failed to record health check outcome", "error", err)
	}
}

// backoffDelay computes min(base * 2^attempt, cap).
func backoffDelay(base time.Duration, attempt int, cap time.Duration) time.Duration {
	delay := base << uint(attempt)
	if delay > cap || delay <= 0 {
		return cap
	}
	return delay
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
