package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/funnelkit/provision-api/internal/domain"
	"github.com/funnelkit/provision-api/internal/store"
)

// First course content unlocked for every new student.
const (
	initialModuleID = 16
	initialLessonID = 67
)

// StudentStore implements store.StudentStore. Every insert is keyed by
// the account ID and written with ON CONFLICT DO NOTHING so a retried
// provisioning attempt can safely re-run steps that already completed.
type StudentStore struct {
	db store.DBTX
}

// NewStudentStore creates a new StudentStore.
func NewStudentStore(db store.DBTX) *StudentStore {
	return &StudentStore{db: db}
}

var _ store.StudentStore = (*StudentStore)(nil)

// CreateUserRow inserts the core user row.
func (s *StudentStore) CreateUserRow(ctx context.Context, student *domain.Student) error {
	query := `
		INSERT INTO users (id, email, full_name, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'student', $5, $5)
		ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		student.ID, student.Email, student.FullName, student.HashedPassword, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create user row: %w", MapError(err))
	}
	return nil
}

// CreateEnrollment inserts the enrollment record linking the student to
// the granting manager.
func (s *StudentStore) CreateEnrollment(ctx context.Context, student *domain.Student) error {
	query := `
		INSERT INTO student_enrollments
			(user_id, email, full_name, granted_by, manager_name, status, modules_completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		student.ID, student.Email, student.FullName,
		student.GrantedBy, student.ManagerName, student.Status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create enrollment: %w", MapError(err))
	}
	return nil
}

// CreateProfile inserts the student's course profile row.
func (s *StudentStore) CreateProfile(ctx context.Context, accountID uuid.UUID) error {
	query := `
		INSERT INTO student_profiles
			(user_id, total_modules, modules_completed, completion_percentage, certificate_issued, created_at, updated_at)
		VALUES ($1, 3, 0, 0, false, $2, $2)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query, accountID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", MapError(err))
	}
	return nil
}

// CreateInitialProgress seeds the first module's progress row.
func (s *StudentStore) CreateInitialProgress(ctx context.Context, accountID uuid.UUID) error {
	query := `
		INSERT INTO student_progress (user_id, module_id, lesson_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'not_started', $4, $4)
		ON CONFLICT (user_id, lesson_id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query, accountID, initialModuleID, initialLessonID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create initial progress: %w", MapError(err))
	}
	return nil
}

// LogActivity appends a manager activity record.
func (s *StudentStore) LogActivity(ctx context.Context, managerID, accountID uuid.UUID, action string, details map[string]any) error {
	var detailsJSON []byte
	if details != nil {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to marshal activity details: %w", err)
		}
	}
	query := `
		INSERT INTO sales_activity_log (manager_id, action_type, target_user_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query, managerID, action, accountID, detailsJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", MapError(err))
	}
	return nil
}

// MarkWelcomeEmailSent flags the enrollment after the welcome email goes out.
func (s *StudentStore) MarkWelcomeEmailSent(ctx context.Context, accountID uuid.UUID) error {
	query := `
		UPDATE student_enrollments
		SET welcome_email_sent = true, welcome_email_sent_at = $1, updated_at = $1
		WHERE user_id = $2
	`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), accountID)
	if err != nil {
		return fmt.Errorf("failed to mark welcome email sent: %w", MapError(err))
	}
	return CheckRowsAffected(result, "enrollment")
}

// HasEnrollment reports whether a dependent enrollment record exists.
func (s *StudentStore) HasEnrollment(ctx context.Context, accountID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM student_enrollments WHERE user_id = $1)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, accountID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", MapError(err))
	}
	return exists, nil
}

// HasProfile reports whether the account's profile row exists.
func (s *StudentStore) HasProfile(ctx context.Context, accountID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM student_profiles WHERE user_id = $1)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, accountID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check profile: %w", MapError(err))
	}
	return exists, nil
}

// HasInitialProgress reports whether the account has any progress row.
func (s *StudentStore) HasInitialProgress(ctx context.Context, accountID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM student_progress WHERE user_id = $1)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, accountID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check initial progress: %w", MapError(err))
	}
	return exists, nil
}

// DeleteAccountRows removes the dependent rows for an account, used by
// the compensating rollback.
func (s *StudentStore) DeleteAccountRows(ctx context.Context, accountID uuid.UUID) error {
	// Child tables first; sales_activity_log is append-only audit data
	// and is deliberately left in place.
	statements := []string{
		`DELETE FROM student_progress WHERE user_id = $1`,
		`DELETE FROM student_profiles WHERE user_id = $1`,
		`DELETE FROM student_enrollments WHERE user_id = $1`,
		`DELETE FROM users WHERE id = $1`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt, accountID); err != nil {
			return fmt.Errorf("failed to roll back account rows: %w", MapError(err))
		}
	}
	return nil
}
