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

type submitterFixture struct {
	submitter *Submitter
	enqueuer  *fakeEnqueuer
	modes     *fakeModeStore
	identity  *fakeIdentity
	students  *fakeStudents
	logs      *fakeLogs
}

func newSubmitterFixture(mode domain.SystemMode) *submitterFixture {
	logs := &fakeLogs{}
	identity := newFakeIdentity()
	students := newFakeStudents()
	modes := &fakeModeStore{mode: mode, set: true}
	enqueuer := &fakeEnqueuer{}

	guard := NewGuard(logs, identity, students, time.Hour)
	prov := NewProvisioner(identity, students, logs, nil, testRetryOptions(), testLogger())
	controller := NewModeController(modes, logs, time.Minute, testLogger())

	return &submitterFixture{
		submitter: NewSubmitter(controller, enqueuer, guard, prov, logs, testLogger()),
		enqueuer:  enqueuer,
		modes:     modes,
		identity:  identity,
		students:  students,
		logs:      logs,
	}
}

func submitRequest() domain.ProvisionRequest {
	return domain.ProvisionRequest{
		FullName:      "Jamie Rivera",
		Email:         "jamie@example.com",
		Password:      "correct-horse",
		RequestedByID: uuid.New(),
	}
}

func TestSubmitAsyncEnqueues(t *testing.T) {
	t.Parallel()

	f := newSubmitterFixture(domain.ModeAsyncQueue)

	result, err := f.submitter.Submit(context.Background(), submitRequest())
	require.NoError(t, err)

	assert.True(t, result.Queued)
	assert.NotEmpty(t, result.JobID)
	assert.Nil(t, result.Student)

	require.Len(t, f.enqueuer.jobs, 1)
	job := f.enqueuer.jobs[0]
	assert.Equal(t, result.JobID, job.ID)
	assert.Equal(t, domain.DefaultJobPriority, job.Priority)
	assert.Equal(t, domain.JobStatusWaiting, job.Status)

	// Nothing provisioned yet on the async path.
	assert.Equal(t, 0, f.identity.created)

	enqueued := f.logs.byKind(domain.KindJobEnqueued)
	require.Len(t, enqueued, 1)
	assert.Equal(t, "jamie@example.com", enqueued[0].ContactKey)
}

func TestSubmitSyncProvisionsInline(t *testing.T) {
	t.Parallel()

	f := newSubmitterFixture(domain.ModeSyncDirect)

	result, err := f.submitter.Submit(context.Background(), submitRequest())
	require.NoError(t, err)

	assert.False(t, result.Queued)
	require.NotNil(t, result.Student)
	assert.Equal(t, "jamie@example.com", result.Student.Email)
	assert.Empty(t, f.enqueuer.jobs)
	assert.Equal(t, 1, f.identity.created)
}

func TestSubmitQueueFailureFallsBackToSync(t *testing.T) {
	t.Parallel()

	f := newSubmitterFixture(domain.ModeAsyncQueue)
	f.enqueuer.enqueueErr = assert.AnError

	result, err := f.submitter.Submit(context.Background(), submitRequest())
	require.NoError(t, err)

	// The request was still served.
	assert.False(t, result.Queued)
	require.NotNil(t, result.Student)
	assert.Equal(t, 1, f.identity.created)

	// And the outage left a CRITICAL audit entry.
	fallbacks := f.logs.byKind(domain.KindQueueFallback)
	require.Len(t, fallbacks, 1)
	assert.Equal(t, domain.HealthEventCritical, fallbacks[0].EventType)
	assert.Equal(t, "jamie@example.com", fallbacks[0].ContactKey)
}

func TestSubmitSyncDuplicateIsNoOp(t *testing.T) {
	t.Parallel()

	f := newSubmitterFixture(domain.ModeSyncDirect)

	ctx := context.Background()
	_, err := f.submitter.Submit(ctx, submitRequest())
	require.NoError(t, err)

	result, err := f.submitter.Submit(ctx, submitRequest())
	require.NoError(t, err)
	assert.True(t, result.AlreadyProvisioned)
	assert.Equal(t, 1, f.identity.created)
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	t.Parallel()

	f := newSubmitterFixture(domain.ModeAsyncQueue)

	req := submitRequest()
	req.Email = "nope"
	_, err := f.submitter.Submit(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)
	assert.Empty(t, f.enqueuer.jobs)
}
