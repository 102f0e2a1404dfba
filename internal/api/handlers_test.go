package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funnelkit/provision-api/internal/api/middleware"
	"github.com/funnelkit/provision-api/internal/domain"
	"github.com/funnelkit/provision-api/internal/health"
	"github.com/funnelkit/provision-api/internal/provision"
	"github.com/funnelkit/provision-api/internal/store"
)

const testSecret = "test-secret-test-secret-test-secret!"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signToken(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	claims := middleware.Claims{
		Name: "Sam Ortiz",
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

// fakeSubmitter scripts Submit outcomes.
type fakeSubmitter struct {
	result *provision.SubmitResult
	err    error
	got    domain.ProvisionRequest
}

func (f *fakeSubmitter) Submit(ctx context.Context, req domain.ProvisionRequest) (*provision.SubmitResult, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeMode scripts the mode controller.
type fakeMode struct {
	mode      domain.SystemMode
	switchErr error
	switched  domain.SystemMode
	actor     uuid.UUID
	reason    string
}

func (f *fakeMode) Current(ctx context.Context) domain.SystemMode { return f.mode }

func (f *fakeMode) Switch(ctx context.Context, mode domain.SystemMode, actorID uuid.UUID, reason string) error {
	if f.switchErr != nil {
		return f.switchErr
	}
	f.switched = mode
	f.actor = actorID
	f.reason = reason
	return nil
}

// fakeQueueMetrics returns fixed counts.
type fakeQueueMetrics struct {
	counts map[domain.JobStatus]int
	err    error
}

func (f *fakeQueueMetrics) Metrics(ctx context.Context) (map[domain.JobStatus]int, error) {
	return f.counts, f.err
}

// fakeLogStore serves canned log entries.
type fakeLogStore struct {
	mu       sync.Mutex
	entries  []*domain.HealthLogEntry
	gotLimit int
}

var _ store.HealthLogStore = (*fakeLogStore)(nil)

func (f *fakeLogStore) Append(ctx context.Context, entry *domain.HealthLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLogStore) Recent(ctx context.Context, limit int) ([]*domain.HealthLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotLimit = limit
	return f.entries, nil
}

func (f *fakeLogStore) HasRecentProvisionSuccess(ctx context.Context, contactKey string, within time.Duration) (bool, error) {
	return false, nil
}

// fakeChecker returns a fixed health result.
type fakeChecker struct {
	result health.Result
}

func (f *fakeChecker) CheckHealth(ctx context.Context) health.Result { return f.result }

func newTestRouter(submitter Submitter, mode ModeController, metrics QueueMetrics, logs store.HealthLogStore, checker HealthChecker) http.Handler {
	v := validator.New()
	studentHandler := NewStudentHandler(submitter, v, testLogger())
	systemHandler := NewSystemHandler(mode, metrics, logs, checker, v, testLogger())
	authMiddleware := middleware.NewAuthMiddleware(testSecret)

	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Post("/students", studentHandler.CreateStudent)
			r.Get("/system/mode", systemHandler.GetMode)
			r.Get("/system/metrics", systemHandler.GetMetrics)
			r.Get("/system/logs", systemHandler.GetLogs)
			r.Get("/system/health", systemHandler.GetHealth)
			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.RequireRole("admin"))
				r.Post("/system/mode", systemHandler.UpdateMode)
			})
		})
	})
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateStudentQueued(t *testing.T) {
	t.Parallel()

	submitter := &fakeSubmitter{result: &provision.SubmitResult{Queued: true, JobID: "student-a@b.co-1"}}
	router := newTestRouter(submitter, &fakeMode{}, &fakeQueueMetrics{}, &fakeLogStore{}, &fakeChecker{})

	managerID := uuid.New()
	rec := doJSON(t, router, http.MethodPost, "/api/students", signToken(t, managerID, "manager"), CreateStudentRequest{
		FullName: "Jamie Rivera",
		Email:    "jamie@example.com",
		Password: "correct-horse",
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, managerID, submitter.got.RequestedByID)
	assert.Equal(t, "Sam Ortiz", submitter.got.RequestedByName)

	var result provision.SubmitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Queued)
	assert.Equal(t, "student-a@b.co-1", result.JobID)
}

func TestCreateStudentSyncCreated(t *testing.T) {
	t.Parallel()

	student := &domain.Student{ID: uuid.New(), Email: "jamie@example.com", FullName: "Jamie Rivera"}
	submitter := &fakeSubmitter{result: &provision.SubmitResult{Student: student}}
	router := newTestRouter(submitter, &fakeMode{}, &fakeQueueMetrics{}, &fakeLogStore{}, &fakeChecker{})

	rec := doJSON(t, router, http.MethodPost, "/api/students", signToken(t, uuid.New(), "manager"), CreateStudentRequest{
		FullName: "Jamie Rivera",
		Email:    "jamie@example.com",
		Password: "correct-horse",
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateStudentDuplicateReturnsOK(t *testing.T) {
	t.Parallel()

	submitter := &fakeSubmitter{result: &provision.SubmitResult{AlreadyProvisioned: true}}
	router := newTestRouter(submitter, &fakeMode{}, &fakeQueueMetrics{}, &fakeLogStore{}, &fakeChecker{})

	rec := doJSON(t, router, http.MethodPost, "/api/students", signToken(t, uuid.New(), "manager"), CreateStudentRequest{
		FullName: "Jamie Rivera",
		Email:    "jamie@example.com",
		Password: "correct-horse",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateStudentValidationFailure(t *testing.T) {
	t.Parallel()

	submitter := &fakeSubmitter{}
	router := newTestRouter(submitter, &fakeMode{}, &fakeQueueMetrics{}, &fakeLogStore{}, &fakeChecker{})

	rec := doJSON(t, router, http.MethodPost, "/api/students", signToken(t, uuid.New(), "manager"), CreateStudentRequest{
		FullName: "Jamie Rivera",
		Email:    "not-an-email",
		Password: "correct-horse",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.ProvisionRequest{}, submitter.got)
}

func TestCreateStudentConflict(t *testing.T) {
	t.Parallel()

	submitter := &fakeSubmitter{err: store.ErrEmailExists}
	router := newTestRouter(submitter, &fakeMode{}, &fakeQueueMetrics{}, &fakeLogStore{}, &fakeChecker{})

	rec := doJSON(t, router, http.MethodPost, "/api/students", signToken(t, uuid.New(), "manager"), CreateStudentRequest{
		FullName: "Jamie Rivera",
		Email:    "jamie@example.com",
		Password: "correct-horse",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateStudentRequiresAuth(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&fakeSubmitter{}, &fakeMode{}, &fakeQueueMetrics{}, &fakeLogStore{}, &fakeChecker{})

	rec := doJSON(t, router, http.MethodPost, "/api/students", "", CreateStudentRequest{
		FullName: "Jamie Rivera",
		Email:    "jamie@example.com",
		Password: "correct-horse",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/students", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetMode(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&fakeSubmitter{}, &fakeMode{mode: domain.ModeSyncDirect}, &fakeQueueMetrics{}, &fakeLogStore{}, &fakeChecker{})

	rec := doJSON(t, router, http.MethodGet, "/api/system/mode", signToken(t, uuid.New(), "manager"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ModeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sync_direct", resp.Mode)
}

func TestUpdateModeRequiresAdmin(t *testing.T) {
	t.Parallel()

	mode := &fakeMode{mode: domain.ModeAsyncQueue}
	router := newTestRouter(&fakeSubmitter{}, mode, &fakeQueueMetrics{}, &fakeLogStore{}, &fakeChecker{})

	rec := doJSON(t, router, http.MethodPost, "/api/system/mode", signToken(t, uuid.New(), "manager"), UpdateModeRequest{
		Mode: "sync_direct",
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, mode.switched)
}

func TestUpdateModeAsAdmin(t *testing.T) {
	t.Parallel()

	mode := &fakeMode{mode: domain.ModeAsyncQueue}
	router := newTestRouter(&fakeSubmitter{}, mode, &fakeQueueMetrics{}, &fakeLogStore{}, &fakeChecker{})

	adminID := uuid.New()
	rec := doJSON(t, router, http.MethodPost, "/api/system/mode", signToken(t, adminID, "admin"), UpdateModeRequest{
		Mode:   "sync_direct",
		Reason: "queue backlog",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ModeSyncDirect, mode.switched)
	assert.Equal(t, adminID, mode.actor)
	assert.Equal(t, "queue backlog", mode.reason)
}

func TestUpdateModeRejectsUnknownMode(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&fakeSubmitter{}, &fakeMode{}, &fakeQueueMetrics{}, &fakeLogStore{}, &fakeChecker{})

	rec := doJSON(t, router, http.MethodPost, "/api/system/mode", signToken(t, uuid.New(), "admin"), UpdateModeRequest{
		Mode: "turbo",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMetrics(t *testing.T) {
	t.Parallel()

	metrics := &fakeQueueMetrics{counts: map[domain.JobStatus]int{
		domain.JobStatusWaiting:   3,
		domain.JobStatusActive:    1,
		domain.JobStatusCompleted: 40,
		domain.JobStatusFailed:    2,
	}}
	router := newTestRouter(&fakeSubmitter{}, &fakeMode{}, metrics, &fakeLogStore{}, &fakeChecker{})

	rec := doJSON(t, router, http.MethodGet, "/api/system/metrics", signToken(t, uuid.New(), "manager"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp MetricsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Jobs["waiting"])
	assert.Equal(t, 40, resp.Jobs["completed"])
}

func TestGetLogs(t *testing.T) {
	t.Parallel()

	logs := &fakeLogStore{entries: []*domain.HealthLogEntry{
		domain.NewHealthLogEntry(domain.HealthEventInfo, domain.KindJobEnqueued, "enqueued"),
	}}
	router := newTestRouter(&fakeSubmitter{}, &fakeMode{}, &fakeQueueMetrics{}, logs, &fakeChecker{})

	token := signToken(t, uuid.New(), "manager")

	rec := doJSON(t, router, http.MethodGet, "/api/system/logs", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultLogLimit, logs.gotLimit)

	rec = doJSON(t, router, http.MethodGet, "/api/system/logs?limit=7", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, logs.gotLimit)

	// Oversized limits clamp instead of failing.
	rec = doJSON(t, router, http.MethodGet, "/api/system/logs?limit=99999", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxLogLimit, logs.gotLimit)

	rec = doJSON(t, router, http.MethodGet, "/api/system/logs?limit=-1", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetHealthStatusCodes(t *testing.T) {
	t.Parallel()

	token := signToken(t, uuid.New(), "manager")

	healthy := &fakeChecker{result: health.Result{Status: health.StatusHealthy}}
	router := newTestRouter(&fakeSubmitter{}, &fakeMode{}, &fakeQueueMetrics{}, &fakeLogStore{}, healthy)
	rec := doJSON(t, router, http.MethodGet, "/api/system/health", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	unhealthy := &fakeChecker{result: health.Result{Status: health.StatusUnhealthy}}
	router = newTestRouter(&fakeSubmitter{}, &fakeMode{}, &fakeQueueMetrics{}, &fakeLogStore{}, unhealthy)
	rec = doJSON(t, router, http.MethodGet, "/api/system/health", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestExpiredTokenRejected(t *testing.T) {
	t.Parallel()

	claims := middleware.Claims{
		Role: "manager",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	router := newTestRouter(&fakeSubmitter{}, &fakeMode{}, &fakeQueueMetrics{}, &fakeLogStore{}, &fakeChecker{})
	rec := doJSON(t, router, http.MethodPost, "/api/students", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Token expired", resp["error"])
}
