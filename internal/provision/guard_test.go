package provision

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funnelkit/provision-api/internal/domain"
)

func guardRequest() domain.ProvisionRequest {
	return domain.ProvisionRequest{
		FullName:      "Jamie Rivera",
		Email:         "jamie@example.com",
		Password:      "correct-horse",
		RequestedByID: uuid.New(),
	}
}

func TestGuardFreshRequestNotProcessed(t *testing.T) {
	t.Parallel()

	g := NewGuard(&fakeLogs{}, newFakeIdentity(), newFakeStudents(), time.Hour)

	processed, err := g.AlreadyProcessed(context.Background(), guardRequest())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestGuardRecentSuccessLogWins(t *testing.T) {
	t.Parallel()

	logs := &fakeLogs{}
	require.NoError(t, logs.Append(context.Background(),
		domain.NewHealthLogEntry(domain.HealthEventInfo, domain.KindProvisionSucceeded, "done").
			WithContactKey("jamie@example.com")))

	g := NewGuard(logs, newFakeIdentity(), newFakeStudents(), time.Hour)

	processed, err := g.AlreadyProcessed(context.Background(), guardRequest())
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestGuardCompleteRecordsAreProcessed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	identity := newFakeIdentity()
	students := newFakeStudents()

	account, err := identity.CreateAccount(ctx, "jamie@example.com", "pw", nil)
	require.NoError(t, err)
	students.enrollments[account.ID] = true
	students.profiles[account.ID] = true
	students.progress[account.ID] = true

	g := NewGuard(&fakeLogs{}, identity, students, time.Hour)

	processed, err := g.AlreadyProcessed(ctx, guardRequest())
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestGuardEnrollmentAloneIsNotProcessed(t *testing.T) {
	t.Parallel()

	// A crash between the enrollment and profile steps leaves the
	// account enrolled but incomplete. The guard must let the retry
	// run so the missing rows get created.
	ctx := context.Background()
	identity := newFakeIdentity()
	students := newFakeStudents()

	account, err := identity.CreateAccount(ctx, "jamie@example.com", "pw", nil)
	require.NoError(t, err)
	students.enrollments[account.ID] = true

	g := NewGuard(&fakeLogs{}, identity, students, time.Hour)

	processed, err := g.AlreadyProcessed(ctx, guardRequest())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestGuardAccountWithoutEnrollmentIsNotProcessed(t *testing.T) {
	t.Parallel()

	// An identity account without dependent records is a partial run
	// that must be resumed.
	ctx := context.Background()
	identity := newFakeIdentity()
	_, err := identity.CreateAccount(ctx, "jamie@example.com", "pw", nil)
	require.NoError(t, err)

	g := NewGuard(&fakeLogs{}, identity, newFakeStudents(), time.Hour)

	processed, err := g.AlreadyProcessed(ctx, guardRequest())
	require.NoError(t, err)
	assert.False(t, processed)
}
