package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/phumblot-gs/gs-stream-digest-sub000/application"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSchedulerControl struct {
	mock.Mock
}

func (m *mockSchedulerControl) GetStatus() application.SchedulerStatus {
	args := m.Called()
	return args.Get(0).(application.SchedulerStatus)
}

func (m *mockSchedulerControl) RunDigestNow(ctx context.Context, digestID string, triggeredBy *string) (*application.ProcessResult, error) {
	args := m.Called(ctx, digestID, triggeredBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.ProcessResult), args.Error(1)
}

func (m *mockSchedulerControl) RunTestNow(ctx context.Context, digestID, email string, triggeredBy *string) (*application.ProcessResult, error) {
	args := m.Called(ctx, digestID, email, triggeredBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.ProcessResult), args.Error(1)
}

func (m *mockSchedulerControl) SyncDigest(ctx context.Context, digestID string) error {
	args := m.Called(ctx, digestID)
	return args.Error(0)
}

type mockDigestStateControl struct {
	mock.Mock
}

func (m *mockDigestStateControl) Pause(ctx context.Context, digestID string) error {
	args := m.Called(ctx, digestID)
	return args.Error(0)
}

func (m *mockDigestStateControl) Resume(ctx context.Context, digestID string) error {
	args := m.Called(ctx, digestID)
	return args.Error(0)
}

func setupServer(token string) (*mockSchedulerControl, *testhelpers.MockRunRepository, http.Handler) {
	scheduler := new(mockSchedulerControl)
	runs := new(testhelpers.MockRunRepository)
	return scheduler, runs, NewServer("127.0.0.1:0", token, scheduler, new(mockDigestStateControl), runs).Handler()
}

func doRequest(handler http.Handler, method, path, body, token string) (*httptest.ResponseRecorder, Response) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp Response
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func completedRun() *entities.Run {
	completedAt := time.Date(2026, 5, 4, 9, 0, 2, 0, time.UTC)
	duration := int64(2000)
	return &entities.Run{
		ID:          "run-1",
		DigestID:    "digest-1",
		RunType:     entities.RunTypeManual,
		Status:      entities.RunStatusSuccess,
		RunAt:       time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
		EventsCount: 4,
		EmailsSent:  2,
		DurationMs:  &duration,
		CompletedAt: &completedAt,
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	_, _, handler := setupServer("secret")

	rec, _ := doRequest(handler, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAuthorization(t *testing.T) {
	t.Parallel()
	scheduler, _, handler := setupServer("secret")
	scheduler.On("GetStatus").Return(application.SchedulerStatus{})

	rec, resp := doRequest(handler, http.MethodGet, "/scheduler/status", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)

	rec, _ = doRequest(handler, http.MethodGet, "/scheduler/status", "", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, resp = doRequest(handler, http.MethodGet, "/scheduler/status", "", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestSchedulerStatus(t *testing.T) {
	t.Parallel()
	scheduler, _, handler := setupServer("")
	next := time.Date(2026, 5, 5, 8, 30, 0, 0, time.UTC)
	scheduler.On("GetStatus").Return(application.SchedulerStatus{
		IsRunning: true,
		Jobs:      []application.JobStatus{{DigestID: "digest-1", CronExpression: "30 8 * * *", NextRun: &next}},
	})

	rec, _ := doRequest(handler, http.MethodGet, "/scheduler/status", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"isRunning":true,"jobs":[{"digestId":"digest-1","cronExpression":"30 8 * * *","nextRun":"2026-05-05T08:30:00Z"}]}}`, rec.Body.String())
}

func TestRunDigest(t *testing.T) {
	t.Parallel()
	scheduler, _, handler := setupServer("")

	triggeredBy := "ops@example.test"
	scheduler.On("RunDigestNow", mock.Anything, "digest-1", &triggeredBy).
		Return(&application.ProcessResult{Run: completedRun(), EventsFetched: 5}, nil)

	rec, resp := doRequest(handler, http.MethodPost, "/digests/digest-1/run", `{"triggeredBy":"ops@example.test"}`, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(5), data["eventsFetched"])
	run := data["run"].(map[string]any)
	assert.Equal(t, "success", run["status"])
	assert.Equal(t, float64(4), run["eventsCount"])
	scheduler.AssertExpectations(t)
}

func TestRunDigest_Skipped(t *testing.T) {
	t.Parallel()
	scheduler, _, handler := setupServer("")
	scheduler.On("RunDigestNow", mock.Anything, "digest-1", (*string)(nil)).
		Return(&application.ProcessResult{Skipped: true, SkipReason: "paused"}, nil)

	rec, resp := doRequest(handler, http.MethodPost, "/digests/digest-1/run", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["skipped"])
	assert.Equal(t, "paused", data["skipReason"])
	assert.NotContains(t, data, "run")
}

func TestRunDigest_ErrorStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "not found", err: fmt.Errorf("%w: digest-1", entities.ErrDigestNotFound), status: http.StatusNotFound},
		{name: "already running", err: fmt.Errorf("%w: digest-1", entities.ErrDigestAlreadyRunning), status: http.StatusConflict},
		{name: "no recipients", err: entities.ErrNoRecipients, status: http.StatusBadRequest},
		{name: "bus down", err: errors.New("event bus fetch failed"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			scheduler, _, handler := setupServer("")
			scheduler.On("RunDigestNow", mock.Anything, "digest-1", (*string)(nil)).Return(nil, tt.err)

			rec, resp := doRequest(handler, http.MethodPost, "/digests/digest-1/run", "", "")

			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.err.Error(), resp.Error)
		})
	}
}

func TestRunDigest_WatermarkConflictKeepsRun(t *testing.T) {
	t.Parallel()
	scheduler, _, handler := setupServer("")
	scheduler.On("RunDigestNow", mock.Anything, "digest-1", (*string)(nil)).
		Return(&application.ProcessResult{Run: completedRun()}, entities.ErrWatermarkConflict)

	rec, resp := doRequest(handler, http.MethodPost, "/digests/digest-1/run", "", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, resp.Success)
	run := resp.Data.(map[string]any)["run"].(map[string]any)
	assert.Equal(t, "run-1", run["id"])
}

func TestRunDigest_InvalidBody(t *testing.T) {
	t.Parallel()
	_, _, handler := setupServer("")

	rec, resp := doRequest(handler, http.MethodPost, "/digests/digest-1/run", "{", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", resp.Error)
}

func TestTestRun(t *testing.T) {
	t.Parallel()
	scheduler, _, handler := setupServer("")

	run := completedRun()
	run.RunType = entities.RunTypeTest
	scheduler.On("RunTestNow", mock.Anything, "digest-1", "qa@example.test", (*string)(nil)).
		Return(&application.ProcessResult{Run: run}, nil)
	scheduler.On("RunTestNow", mock.Anything, "digest-2", "", (*string)(nil)).
		Return(nil, entities.ErrTestEmailRequired)

	rec, resp := doRequest(handler, http.MethodPost, "/digests/digest-1/test", `{"email":"qa@example.test"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", resp.Data.(map[string]any)["run"].(map[string]any)["runType"])

	rec, _ = doRequest(handler, http.MethodPost, "/digests/digest-2/test", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncDigest(t *testing.T) {
	t.Parallel()
	scheduler, _, handler := setupServer("")
	scheduler.On("SyncDigest", mock.Anything, "digest-1").Return(nil)
	scheduler.On("SyncDigest", mock.Anything, "digest-2").Return(errors.New("database unavailable"))

	rec, resp := doRequest(handler, http.MethodPost, "/digests/digest-1/sync", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Digest schedule synchronized", resp.Message)

	rec, _ = doRequest(handler, http.MethodPost, "/digests/digest-2/sync", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec, _ = doRequest(handler, http.MethodGet, "/digests/digest-1/sync", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRunHistory(t *testing.T) {
	t.Parallel()
	_, runs, handler := setupServer("")
	runs.On("ListByDigest", mock.Anything, "digest-1", 20).Return([]*entities.Run{completedRun()}, nil)
	runs.On("ListByDigest", mock.Anything, "digest-1", 5).Return([]*entities.Run{}, nil)

	rec, resp := doRequest(handler, http.MethodGet, "/digests/digest-1/runs", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := resp.Data.([]any)
	require.Len(t, history, 1)
	assert.Equal(t, float64(2000), history[0].(map[string]any)["durationMs"])

	rec, _ = doRequest(handler, http.MethodGet, "/digests/digest-1/runs?limit=5", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doRequest(handler, http.MethodGet, "/digests/digest-1/runs?limit=abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	runs.AssertExpectations(t)
}

func TestHealth_Checks(t *testing.T) {
	t.Parallel()
	connected := true
	server := NewServer("127.0.0.1:0", "", new(mockSchedulerControl), new(mockDigestStateControl), new(testhelpers.MockRunRepository))
	server.AddHealthCheck("nats", func() bool { return connected })
	handler := server.Handler()

	rec, _ := doRequest(handler, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	connected = false
	rec, _ = doRequest(handler, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "nats unavailable", rec.Body.String())
}

func TestPauseResume(t *testing.T) {
	t.Parallel()
	control := new(mockDigestStateControl)
	handler := NewServer("127.0.0.1:0", "secret", new(mockSchedulerControl), control, new(testhelpers.MockRunRepository)).Handler()

	control.On("Pause", mock.Anything, "digest-1").Return(nil).Once()
	control.On("Resume", mock.Anything, "digest-1").Return(nil).Once()
	control.On("Pause", mock.Anything, "missing").Return(fmt.Errorf("failed to set pause state: %w", entities.ErrDigestNotFound))

	rec, _ := doRequest(handler, http.MethodPost, "/digests/digest-1/pause", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, resp := doRequest(handler, http.MethodPost, "/digests/digest-1/pause", "", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Digest paused", resp.Message)

	rec, resp = doRequest(handler, http.MethodPost, "/digests/digest-1/resume", "", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Digest resumed", resp.Message)

	rec, resp = doRequest(handler, http.MethodPost, "/digests/missing/pause", "", "secret")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
	control.AssertExpectations(t)
}
