package provision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/funnelkit/provision-api/internal/domain"
	"github.com/funnelkit/provision-api/internal/retry"
	"github.com/funnelkit/provision-api/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRetryOptions() retry.Options {
	return retry.Options{MaxRetries: 1, BaseDelay: time.Millisecond, Exponential: true}
}

// fakeIdentity is an in-memory IdentityStore.
type fakeIdentity struct {
	mu        sync.Mutex
	accounts  map[string]*Account
	createErr error
	findErr   error
	created   int
	deleted   []uuid.UUID
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{accounts: map[string]*Account{}}
}

func (f *fakeIdentity) CreateAccount(ctx context.Context, email, password string, metadata map[string]any) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.accounts[email]; ok {
		return nil, errors.New("identity API returned 422: user already exists")
	}
	account := &Account{ID: uuid.New(), Email: email, CreatedAt: time.Now().UTC()}
	f.accounts[email] = account
	f.created++
	return account, nil
}

func (f *fakeIdentity) DeleteAccount(ctx context.Context, accountID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for email, account := range f.accounts {
		if account.ID == accountID {
			delete(f.accounts, email)
		}
	}
	f.deleted = append(f.deleted, accountID)
	return nil
}

func (f *fakeIdentity) FindAccountByEmail(ctx context.Context, email string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	account, ok := f.accounts[domain.NormalizeEmail(email)]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// fakeStudents is an in-memory store.StudentStore with per-step
// failure injection.
type fakeStudents struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*domain.Student
	enrollments map[uuid.UUID]bool
	profiles    map[uuid.UUID]bool
	progress    map[uuid.UUID]bool
	activities  []string
	emailSent   map[uuid.UUID]bool

	enrollmentErr error
	progressErr   error
	deletedRows   []uuid.UUID
}

func newFakeStudents() *fakeStudents {
	return &fakeStudents{
		users:       map[uuid.UUID]*domain.Student{},
		enrollments: map[uuid.UUID]bool{},
		profiles:    map[uuid.UUID]bool{},
		progress:    map[uuid.UUID]bool{},
		emailSent:   map[uuid.UUID]bool{},
	}
}

var _ store.StudentStore = (*fakeStudents)(nil)

func (f *fakeStudents) CreateUserRow(ctx context.Context, student *domain.Student) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[student.ID] = student
	return nil
}

func (f *fakeStudents) CreateEnrollment(ctx context.Context, student *domain.Student) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enrollmentErr != nil {
		return f.enrollmentErr
	}
	f.enrollments[student.ID] = true
	return nil
}

func (f *fakeStudents) CreateProfile(ctx context.Context, accountID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[accountID] = true
	return nil
}

func (f *fakeStudents) CreateInitialProgress(ctx context.Context, accountID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.progressErr != nil {
		return f.progressErr
	}
	f.progress[accountID] = true
	return nil
}

func (f *fakeStudents) LogActivity(ctx context.Context, managerID, accountID uuid.UUID, action string, details map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, action)
	return nil
}

func (f *fakeStudents) MarkWelcomeEmailSent(ctx context.Context, accountID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emailSent[accountID] = true
	return nil
}

func (f *fakeStudents) HasEnrollment(ctx context.Context, accountID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enrollments[accountID], nil
}

func (f *fakeStudents) HasProfile(ctx context.Context, accountID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profiles[accountID], nil
}

func (f *fakeStudents) HasInitialProgress(ctx context.Context, accountID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress[accountID], nil
}

func (f *fakeStudents) DeleteAccountRows(ctx context.Context, accountID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, accountID)
	delete(f.enrollments, accountID)
	delete(f.profiles, accountID)
	delete(f.progress, accountID)
	f.deletedRows = append(f.deletedRows, accountID)
	return nil
}

// fakeLogs is an in-memory store.HealthLogStore.
type fakeLogs struct {
	mu      sync.Mutex
	entries []*domain.HealthLogEntry
}

var _ store.HealthLogStore = (*fakeLogs)(nil)

func (f *fakeLogs) Append(ctx context.Context, entry *domain.HealthLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLogs) Recent(ctx context.Context, limit int) ([]*domain.HealthLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.entries)
	if limit > n {
		limit = n
	}
	out := make([]*domain.HealthLogEntry, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.entries[i])
	}
	return out, nil
}

func (f *fakeLogs) HasRecentProvisionSuccess(ctx context.Context, contactKey string, within time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().UTC().Add(-within)
	for _, entry := range f.entries {
		if entry.Kind == domain.KindProvisionSucceeded &&
			entry.ContactKey == contactKey &&
			entry.CreatedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLogs) byKind(kind string) []*domain.HealthLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.HealthLogEntry
	for _, entry := range f.entries {
		if entry.Kind == kind {
			out = append(out, entry)
		}
	}
	return out
}

// fakeModeStore is an in-memory store.ModeStore.
type fakeModeStore struct {
	mu       sync.Mutex
	mode     domain.SystemMode
	set      bool
	getErr   error
	getCalls int
	actor    uuid.UUID
}

var _ store.ModeStore = (*fakeModeStore)(nil)

func (f *fakeModeStore) GetMode(ctx context.Context) (domain.SystemMode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return "", f.getErr
	}
	if !f.set {
		return "", store.ErrModeUnset
	}
	return f.mode, nil
}

func (f *fakeModeStore) SetMode(ctx context.Context, mode domain.SystemMode, actorID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = mode
	f.set = true
	f.actor = actorID
	return nil
}

// fakeEmail records welcome emails.
type fakeEmail struct {
	mu      sync.Mutex
	sent    []string
	sendErr error
}

func (f *fakeEmail) SendWelcomeEmail(ctx context.Context, email, fullName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, email)
	return nil
}

// fakeEnqueuer captures enqueued jobs or rejects them.
type fakeEnqueuer struct {
	mu         sync.Mutex
	jobs       []*domain.ProvisionJob
	enqueueErr error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, job *domain.ProvisionJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.jobs = append(f.jobs, job)
	return nil
}
