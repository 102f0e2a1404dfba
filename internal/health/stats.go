package health

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StatsRPC is the port over the remote aggregate procedures the probes
// exercise. The five procedures back the sales dashboards; their
// availability is the canary for schema-cache staleness, because a
// freshly deployed procedure is invisible to the query layer until the
// cache reloads.
type StatsRPC interface {
	// ManagerStats returns the aggregate statistics for one manager.
	ManagerStats(ctx context.Context, managerID uuid.UUID) (*ManagerStats, error)

	// SalesLeaderboard returns the top managers by students provisioned.
	SalesLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)

	// ListStudents returns a page of provisioned students.
	ListStudents(ctx context.Context, limit, offset int) ([]StudentSummary, error)

	// ManagerActivity returns a manager's recent activity log entries.
	ManagerActivity(ctx context.Context, managerID uuid.UUID, limit int) ([]ActivityEntry, error)

	// SalesChartData returns per-day sales counts for charting.
	SalesChartData(ctx context.Context, managerID uuid.UUID, daysBack int) ([]ChartPoint, error)
}

// SchemaCacheReloader asks the remote query layer to reload its schema
// cache. Fired best-effort between health attempts; its own failure is
// logged but never aborts the wait loop.
type SchemaCacheReloader interface {
	ReloadSchemaCache(ctx context.Context) error
}

// ManagerStats is one manager's aggregate dashboard numbers.
type ManagerStats struct {
	TotalStudents     int     `json:"total_students"`
	ActiveStudents    int     `json:"active_students"`
	CompletedStudents int     `json:"completed_students"`
	StudentsThisMonth int     `json:"students_this_month"`
	AvgCompletionRate float64 `json:"avg_completion_rate"`
}

// LeaderboardEntry is one row of the sales leaderboard.
type LeaderboardEntry struct {
	ManagerID    uuid.UUID `json:"manager_id"`
	ManagerName  string    `json:"manager_name"`
	StudentCount int       `json:"student_count"`
}

// StudentSummary is one row of the student listing.
type StudentSummary struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ActivityEntry is one manager activity log row.
type ActivityEntry struct {
	ActionType   string    `json:"action_type"`
	TargetUserID uuid.UUID `json:"target_user_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChartPoint is one day of chart data.
type ChartPoint struct {
	Day   time.Time `json:"day"`
	Count int       `json:"count"`
}
