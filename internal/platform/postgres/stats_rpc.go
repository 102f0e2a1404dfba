package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/funnelkit/provision-api/internal/health"
	"github.com/funnelkit/provision-api/internal/store"
)

// StatsRPC implements health.StatsRPC by calling the aggregate SQL
// procedures. Each call goes through the driver's prepared-statement
// path, so a procedure missing from the schema cache fails with an
// undefined-function error, which is exactly the condition the health
// monitor watches for.
type StatsRPC struct {
	db store.DBTX
}

// NewStatsRPC creates a new StatsRPC.
func NewStatsRPC(db store.DBTX) *StatsRPC {
	return &StatsRPC{db: db}
}

var _ health.StatsRPC = (*StatsRPC)(nil)

// ManagerStats returns the aggregate statistics for one manager.
func (s *StatsRPC) ManagerStats(ctx context.Context, managerID uuid.UUID) (*health.ManagerStats, error) {
	query := `SELECT total_students, active_students, completed_students, students_this_month, avg_completion_rate
		FROM rpc_get_manager_stats($1)`
	var stats health.ManagerStats
	err := s.db.QueryRowContext(ctx, query, managerID).Scan(
		&stats.TotalStudents, &stats.ActiveStudents, &stats.CompletedStudents,
		&stats.StudentsThisMonth, &stats.AvgCompletionRate)
	if err != nil {
		return nil, fmt.Errorf("failed to get manager stats: %w", MapError(err))
	}
	return &stats, nil
}

// SalesLeaderboard returns the top managers by students provisioned.
func (s *StatsRPC) SalesLeaderboard(ctx context.Context, limit int) ([]health.LeaderboardEntry, error) {
	query := `SELECT manager_id, manager_name, student_count FROM rpc_get_sales_leaderboard($1)`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get sales leaderboard: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var entries []health.LeaderboardEntry
	for rows.Next() {
		var e health.LeaderboardEntry
		if err := rows.Scan(&e.ManagerID, &e.ManagerName, &e.StudentCount); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListStudents returns a page of provisioned students.
func (s *StatsRPC) ListStudents(ctx context.Context, limit, offset int) ([]health.StudentSummary, error) {
	query := `
		SELECT user_id, email, full_name, status, created_at
		FROM student_enrollments
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var students []health.StudentSummary
	for rows.Next() {
		var st health.StudentSummary
		if err := rows.Scan(&st.UserID, &st.Email, &st.FullName, &st.Status, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan student row: %w", err)
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// ManagerActivity returns a manager's recent activity log entries.
func (s *StatsRPC) ManagerActivity(ctx context.Context, managerID uuid.UUID, limit int) ([]health.ActivityEntry, error) {
	query := `SELECT action_type, target_user_id, created_at FROM rpc_get_manager_activity($1, $2)`
	rows, err := s.db.QueryContext(ctx, query, managerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get manager activity: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var entries []health.ActivityEntry
	for rows.Next() {
		var e health.ActivityEntry
		if err := rows.Scan(&e.ActionType, &e.TargetUserID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SalesChartData returns per-day sales counts for charting.
func (s *StatsRPC) SalesChartData(ctx context.Context, managerID uuid.UUID, daysBack int) ([]health.ChartPoint, error) {
	query := `SELECT day, student_count FROM rpc_get_sales_chart_data($1, $2)`
	rows, err := s.db.QueryContext(ctx, query, managerID, daysBack)
	if err != nil {
		return nil, fmt.Errorf("failed to get sales chart data: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var points []health.ChartPoint
	for rows.Next() {
		var p health.ChartPoint
		if err := rows.Scan(&p.Day, &p.Count); err != nil {
			return nil, fmt.Errorf("failed to scan chart row: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// SchemaCacheReloader implements health.SchemaCacheReloader by notifying
// the query layer's reload channel. PostgREST listens on the pgrst
// channel and reloads its schema cache on this message.
type SchemaCacheReloader struct {
	db store.DBTX
}

// NewSchemaCacheReloader creates a new SchemaCacheReloader.
func NewSchemaCacheReloader(db store.DBTX) *SchemaCacheReloader {
	return &SchemaCacheReloader{db: db}
}

var _ health.SchemaCacheReloader = (*SchemaCacheReloader)(nil)

// ReloadSchemaCache asks the query layer to reload its schema cache.
func (r *SchemaCacheReloader) ReloadSchemaCache(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `NOTIFY pgrst, 'reload schema'`); err != nil {
		return fmt.Errorf("failed to request schema cache reload: %w", MapError(err))
	}
	return nil
}
