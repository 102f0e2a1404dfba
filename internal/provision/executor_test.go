package provision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funnelkit/provision-api/internal/domain"
)

func TestExecutorProvisionsJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logs := &fakeLogs{}
	identity := newFakeIdentity()
	students := newFakeStudents()

	guard := NewGuard(logs, identity, students, time.Hour)
	prov := NewProvisioner(identity, students, logs, nil, testRetryOptions(), testLogger())
	exec := NewExecutor(guard, prov, testLogger())

	req := submitRequest()
	job := domain.NewProvisionJob(domain.NewJobID(req.Email, time.Now()), req, domain.DefaultJobPriority)

	require.NoError(t, exec.Execute(ctx, job))
	assert.Equal(t, 1, identity.created)

	// Retrying the same job after success does not provision twice.
	require.NoError(t, exec.Execute(ctx, job))
	assert.Equal(t, 1, identity.created)
}

func TestExecutorResumesAfterPartialRun(t *testing.T) {
	t.Parallel()

	// A previous attempt got as far as the enrollment and then died.
	// The retried job must create the remaining records instead of
	// being skipped as already provisioned.
	ctx := context.Background()
	logs := &fakeLogs{}
	identity := newFakeIdentity()
	students := newFakeStudents()

	req := submitRequest()
	account, err := identity.CreateAccount(ctx, req.Email, req.Password, nil)
	require.NoError(t, err)
	students.enrollments[account.ID] = true

	guard := NewGuard(logs, identity, students, time.Hour)
	prov := NewProvisioner(identity, students, logs, nil, testRetryOptions(), testLogger())
	exec := NewExecutor(guard, prov, testLogger())

	job := domain.NewProvisionJob(domain.NewJobID(req.Email, time.Now()), req, domain.DefaultJobPriority)
	require.NoError(t, exec.Execute(ctx, job))

	assert.Equal(t, 1, identity.created, "existing account is reused")
	assert.True(t, students.profiles[account.ID], "profile row created on resume")
	assert.True(t, students.progress[account.ID], "progress row created on resume")
	assert.Equal(t, []string{"student_created"}, students.activities, "activity logged on resume")
	assert.Len(t, logs.byKind(domain.KindProvisionSucceeded), 1)
}
