package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/phumblot-gs/gs-stream-digest-sub000/application"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// SchedulerControl is the part of the scheduler the admin API drives
type SchedulerControl interface {
	GetStatus() application.SchedulerStatus
	RunDigestNow(ctx context.Context, digestID string, triggeredBy *string) (*application.ProcessResult, error)
	RunTestNow(ctx context.Context, digestID, email string, triggeredBy *string) (*application.ProcessResult, error)
	SyncDigest(ctx context.Context, digestID string) error
}

// DigestStateControl pauses and resumes digests
type DigestStateControl interface {
	Pause(ctx context.Context, digestID string) error
	Resume(ctx context.Context, digestID string) error
}

// Response is the envelope of every admin API reply
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// RunSummary is the JSON view of a run
type RunSummary struct {
	ID            string     `json:"id"`
	DigestID      string     `json:"digestId"`
	RunType       string     `json:"runType"`
	Status        string     `json:"status"`
	RunAt         time.Time  `json:"runAt"`
	EventsCount   int        `json:"eventsCount"`
	EmailsSent    int        `json:"emailsSent"`
	EmailsFailed  int        `json:"emailsFailed"`
	EventUIDStart *string    `json:"eventUidStart,omitempty"`
	EventUIDEnd   *string    `json:"eventUidEnd,omitempty"`
	SnapshotKey   *string    `json:"snapshotKey,omitempty"`
	Error         *string    `json:"error,omitempty"`
	DurationMs    *int64     `json:"durationMs,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

type triggerRequest struct {
	TriggeredBy string `json:"triggeredBy"`
	Email       string `json:"email"`
}

type triggerResult struct {
	Skipped       bool        `json:"skipped"`
	SkipReason    string      `json:"skipReason,omitempty"`
	EventsFetched int         `json:"eventsFetched"`
	Run           *RunSummary `json:"run,omitempty"`
}

// Server is the internal HTTP API used by operators and the admin UI
type Server struct {
	scheduler SchedulerControl
	digests   DigestStateControl
	runs      interfaces.RunRepository
	token     string
	checks    []healthCheck
	server    *http.Server
}

type healthCheck struct {
	name    string
	healthy func() bool
}

// NewServer creates the admin API. An empty token disables authentication.
func NewServer(addr, token string, scheduler SchedulerControl, digests DigestStateControl, runs interfaces.RunRepository) *Server {
	s := &Server{
		scheduler: scheduler,
		digests:   digests,
		runs:      runs,
		token:     token,
	}
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// Manual runs are synchronous
		WriteTimeout: 5 * time.Minute,
	}
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		for _, check := range s.checks {
			if !check.healthy() {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(check.name + " unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /scheduler/status", s.authorized(s.handleStatus))
	mux.HandleFunc("GET /digests/{id}/runs", s.authorized(s.handleHistory))
	mux.HandleFunc("POST /digests/{id}/run", s.authorized(s.handleRun))
	mux.HandleFunc("POST /digests/{id}/test", s.authorized(s.handleTest))
	mux.HandleFunc("POST /digests/{id}/sync", s.authorized(s.handleSync))
	mux.HandleFunc("POST /digests/{id}/pause", s.authorized(s.handlePause))
	mux.HandleFunc("POST /digests/{id}/resume", s.authorized(s.handleResume))

	return mux
}

// AddHealthCheck makes /health report 503 while healthy returns false.
// Register checks before Start.
func (s *Server) AddHealthCheck(name string, healthy func() bool) {
	s.checks = append(s.checks, healthCheck{name: name, healthy: healthy})
}

// Start serves in the background
func (s *Server) Start() {
	go func() {
		log.Infof("Admin API listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Admin API server error: %v", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				respondWithError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondWithData(w, http.StatusOK, s.scheduler.GetStatus())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			respondWithError(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	runs, err := s.runs.ListByDigest(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		log.WithError(err).Error("Failed to list digest runs")
		respondWithError(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, Summarize(run))
	}
	respondWithData(w, http.StatusOK, summaries)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTrigger(w, r)
	if !ok {
		return
	}

	result, err := s.scheduler.RunDigestNow(r.Context(), r.PathValue("id"), optional(req.TriggeredBy))
	s.respondWithResult(w, r, result, err)
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTrigger(w, r)
	if !ok {
		return
	}

	result, err := s.scheduler.RunTestNow(r.Context(), r.PathValue("id"), req.Email, optional(req.TriggeredBy))
	s.respondWithResult(w, r, result, err)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.SyncDigest(r.Context(), r.PathValue("id")); err != nil {
		respondWithError(w, err.Error(), statusFor(err))
		return
	}
	respondWithSuccess(w, "Digest schedule synchronized")
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.digests.Pause(r.Context(), r.PathValue("id")); err != nil {
		respondWithError(w, err.Error(), statusFor(err))
		return
	}
	respondWithSuccess(w, "Digest paused")
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.digests.Resume(r.Context(), r.PathValue("id")); err != nil {
		respondWithError(w, err.Error(), statusFor(err))
		return
	}
	respondWithSuccess(w, "Digest resumed")
}

func (s *Server) respondWithResult(w http.ResponseWriter, r *http.Request, result *application.ProcessResult, err error) {
	if err != nil && result == nil {
		log.WithFields(log.Fields{
			"digest_id": r.PathValue("id"),
			"error":     err,
		}).Warn("Admin triggered run failed")
		respondWithError(w, err.Error(), statusFor(err))
		return
	}

	body := triggerResult{
		Skipped:       result.Skipped,
		SkipReason:    result.SkipReason,
		EventsFetched: result.EventsFetched,
	}
	if result.Run != nil {
		summary := Summarize(result.Run)
		body.Run = &summary
	}

	if err != nil {
		// The run reached a terminal state but a later step failed
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusFor(err))
		_ = json.NewEncoder(w).Encode(Response{Success: false, Error: err.Error(), Data: body})
		return
	}
	respondWithData(w, http.StatusOK, body)
}

func decodeTrigger(w http.ResponseWriter, r *http.Request) (triggerRequest, bool) {
	var req triggerRequest
	if r.ContentLength == 0 {
		return req, true
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, "Invalid request body", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, entities.ErrDigestNotFound):
		return http.StatusNotFound
	case errors.Is(err, entities.ErrDigestAlreadyRunning), errors.Is(err, entities.ErrWatermarkConflict):
		return http.StatusConflict
	case errors.Is(err, entities.ErrTestEmailRequired), errors.Is(err, entities.ErrNoRecipients):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Summarize converts a run to its JSON view
func Summarize(run *entities.Run) RunSummary {
	return RunSummary{
		ID:            run.ID,
		DigestID:      run.DigestID,
		RunType:       string(run.RunType),
		Status:        string(run.Status),
		RunAt:         run.RunAt,
		EventsCount:   run.EventsCount,
		EmailsSent:    run.EmailsSent,
		EmailsFailed:  run.EmailsFailed,
		EventUIDStart: run.EventUIDStart,
		EventUIDEnd:   run.EventUIDEnd,
		SnapshotKey:   run.SnapshotKey,
		Error:         run.Error,
		DurationMs:    run.DurationMs,
		CompletedAt:   run.CompletedAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func respondWithSuccess(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Response{
		Success: true,
		Message: message,
	})
}

func respondWithData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		Success: true,
		Data:    data,
	})
}

func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(Response{
		Success: false,
		Error:   message,
	})
}
