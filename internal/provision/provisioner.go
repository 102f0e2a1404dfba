package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/funnelkit/provision-api/internal/domain"
	"github.com/funnelkit/provision-api/internal/retry"
	"github.com/funnelkit/provision-api/internal/store"
)

// Provisioner executes the full account creation sequence. Every
// database step tolerates re-execution, so a retried job resumes from
// wherever the previous attempt stopped. If the identity account was
// created by this run and a later step fails permanently, the account
// and any dependent rows are rolled back so the retry starts clean.
type Provisioner struct {
	identity IdentityStore
	students store.StudentStore
	logs     store.HealthLogStore
	email    EmailSender
	retry    retry.Options
	logger   *slog.Logger
}

// NewProvisioner creates a provisioner. email may be nil when no
// delivery backend is configured; the welcome step is then skipped.
func NewProvisioner(identity IdentityStore, students store.StudentStore, logs store.HealthLogStore, email EmailSender, retryOpts retry.Options, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		identity: identity,
		students: students,
		logs:     logs,
		email:    email,
		retry:    retryOpts,
		logger:   logger.With(slog.String("component", "provisioner")),
	}
}

// Provision creates the student account and all dependent records.
func (p *Provisioner) Provision(ctx context.Context, req domain.ProvisionRequest) (*domain.Student, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	logger := p.logger.With(slog.String("contact_key", req.ContactKey()))

	account, createdIdentity, err := p.ensureAccount(ctx, req)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	student, err := domain.NewStudent(account.ID, req, string(hash))
	if err != nil {
		return nil, err
	}

	if err := p.createRecords(ctx, student, req); err != nil {
		if createdIdentity {
			p.rollback(ctx, account.ID, logger)
		}
		return nil, err
	}

	p.sendWelcome(ctx, student, logger)

	entry := domain.NewHealthLogEntry(domain.HealthEventInfo, domain.KindProvisionSucceeded,
		fmt.Sprintf("provisioned student %s", student.Email)).
		WithContactKey(student.Email).
		WithMetadata(map[string]any{
			"account_id": account.ID.String(),
			"granted_by": student.GrantedBy.String(),
		})
	if err := p.logs.Append(ctx, entry); err != nil {
		logger.Error("failed to append success log entry", slog.String("error", err.Error()))
	}

	logger.Info("student provisioned", slog.String("account_id", account.ID.String()))
	return student, nil
}

// ensureAccount returns the identity account for the request, creating
// it if absent. The second return value reports whether this run
// created it, which scopes the rollback.
func (p *Provisioner) ensureAccount(ctx context.Context, req domain.ProvisionRequest) (*Account, bool, error) {
	account, err := retry.Do(ctx, func(ctx context.Context) (*Account, error) {
		return p.identity.FindAccountByEmail(ctx, req.ContactKey())
	}, p.retry)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, false, fmt.Errorf("failed to look up identity account: %w", err)
	}

	account, err = retry.Do(ctx, func(ctx context.Context) (*Account, error) {
		return p.identity.CreateAccount(ctx, req.ContactKey(), req.Password, map[string]any{
			"full_name":  req.FullName,
			"granted_by": req.RequestedByID.String(),
		})
	}, p.retry)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create identity account: %w", err)
	}
	return account, true, nil
}

// createRecords runs the dependent-row steps in order. Each step is
// individually retried; the inserts are conflict tolerant, so re-runs
// after a partial failure skip what already exists.
func (p *Provisioner) createRecords(ctx context.Context, student *domain.Student, req domain.ProvisionRequest) error {
	steps := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{"user row", func(ctx context.Context) error {
			return p.students.CreateUserRow(ctx, student)
		}},
		{"enrollment", func(ctx context.Context) error {
			return p.students.CreateEnrollment(ctx, student)
		}},
		{"profile", func(ctx context.Context) error {
			return p.students.CreateProfile(ctx, student.ID)
		}},
		{"initial progress", func(ctx context.Context) error {
			return p.students.CreateInitialProgress(ctx, student.ID)
		}},
		{"activity log", func(ctx context.Context) error {
			return p.students.LogActivity(ctx, req.RequestedByID, student.ID, "student_created", map[string]any{
				"email":     student.Email,
				"full_name": student.FullName,
			})
		}},
	}

	for _, step := range steps {
		opts := p.retry
		name := step.name
		opts.OnRetry = func(attempt int, err error) {
			p.logger.Warn("provisioning step failed, retrying",
				slog.String("step", name),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		}
		if err := retry.DoVoid(ctx, step.run, opts); err != nil {
			return fmt.Errorf("failed to create %s: %w", name, err)
		}
	}
	return nil
}

// sendWelcome delivers the welcome email, records delivery on the
// enrollment and appends an activity entry. All best effort.
func (p *Provisioner) sendWelcome(ctx context.Context, student *domain.Student, logger *slog.Logger) {
	if p.email == nil {
		return
	}
	if err := p.email.SendWelcomeEmail(ctx, student.Email, student.FullName); err != nil {
		logger.Warn("failed to send welcome email", slog.String("error", err.Error()))
		return
	}
	if err := p.students.MarkWelcomeEmailSent(ctx, student.ID); err != nil {
		logger.Warn("failed to record welcome email delivery", slog.String("error", err.Error()))
	}
	if err := p.students.LogActivity(ctx, student.GrantedBy, student.ID, "welcome_email_sent", map[string]any{
		"email": student.Email,
	}); err != nil {
		logger.Warn("failed to record welcome email activity", slog.String("error", err.Error()))
	}
}

// rollback removes the identity account and dependent rows created by a
// failed run. Activity log entries are kept as an audit trail.
func (p *Provisioner) rollback(ctx context.Context, accountID uuid.UUID, logger *slog.Logger) {
	logger.Warn("rolling back failed provisioning", slog.String("account_id", accountID.String()))

	if err := p.students.DeleteAccountRows(ctx, accountID); err != nil {
		logger.Error("rollback: failed to delete dependent rows",
			slog.String("account_id", accountID.String()), slog.String("error", err.Error()))
	}
	if err := p.identity.DeleteAccount(ctx, accountID); err != nil {
		logger.Error("rollback: failed to delete identity account",
			slog.String("account_id", accountID.String()), slog.String("error", err.Error()))
	}
}
