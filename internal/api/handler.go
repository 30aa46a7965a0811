// Package api exposes the operational HTTP surface: health, queue stats,
// system overview, job scheduling and alert management.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/monitor"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/queue"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/scheduler"
)

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

const defaultMetricsWindowDays = 7

// Scheduler is the scheduling surface the API depends on.
type Scheduler interface {
	ScheduleRecurring(job domain.Job) (uuid.UUID, error)
	ScheduleOneTime(ctx context.Context, job domain.Job) (uuid.UUID, error)
	PauseJob(ctx context.Context, jobID uuid.UUID) error
	ResumeJob(ctx context.Context, jobID uuid.UUID) error
	RemoveJob(ctx context.Context, jobID uuid.UUID) error
	TaskStatus(ctx context.Context, executionID string) (*domain.JobStatus, error)
	QueueStats(ctx context.Context) (queue.Stats, error)
	HealthCheck(ctx context.Context) scheduler.Health
}

// Monitor is the observability surface the API depends on.
type Monitor interface {
	JobPerformanceMetrics(ctx context.Context, jobID uuid.UUID, windowDays int) (*monitor.PerformanceMetrics, error)
	SystemOverview(ctx context.Context) (*monitor.SystemOverview, error)
	CreateAlert(ctx context.Context, alert domain.JobAlert) error
}

type Handler struct {
	scheduler Scheduler
	monitor   Monitor
}

func NewHandler(sched Scheduler, mon Monitor) *Handler {
	return &Handler{scheduler: sched, monitor: mon}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/queue/stats" && r.Method == http.MethodGet:
		h.queueStats(w, r)

	case path == "/system/overview" && r.Method == http.MethodGet:
		h.systemOverview(w, r)

	case path == "/jobs" && r.Method == http.MethodPost:
		h.createJob(w, r)

	case strings.HasSuffix(path, "/metrics") && strings.HasPrefix(path, "/jobs/") && r.Method == http.MethodGet:
		h.jobMetrics(w, r)

	case strings.HasSuffix(path, "/pause") && strings.HasPrefix(path, "/jobs/") && r.Method == http.MethodPost:
		h.pauseJob(w, r)

	case strings.HasSuffix(path, "/resume") && strings.HasPrefix(path, "/jobs/") && r.Method == http.MethodPost:
		h.resumeJob(w, r)

	case strings.HasSuffix(path, "/alerts") && strings.HasPrefix(path, "/jobs/") && r.Method == http.MethodPost:
		h.createAlert(w, r)

	case strings.HasPrefix(path, "/jobs/") && r.Method == http.MethodDelete:
		h.removeJob(w, r)

	case strings.HasPrefix(path, "/tasks/") && r.Method == http.MethodGet:
		h.taskStatus(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse mirrors the composite scheduler health snapshot.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	snapshot := h.scheduler.HealthCheck(ctx)

	resp := HealthResponse{Status: "ok", Components: make(map[string]string)}
	if snapshot.QueueReachable {
		resp.Components["queue"] = "healthy"
	} else {
		resp.Components["queue"] = "unhealthy"
	}
	if snapshot.WorkersAlive {
		resp.Components["workers"] = "healthy"
	} else {
		resp.Components["workers"] = "unhealthy"
	}
	resp.Components["recurring_jobs"] = strconv.Itoa(snapshot.RecurringJobs)

	status := http.StatusOK
	if !snapshot.Healthy {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *Handler) queueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.scheduler.QueueStats(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "queue stats unavailable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) systemOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.monitor.SystemOverview(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "overview unavailable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	job, err := jobFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var id uuid.UUID
	if req.CronExpression != "" {
		id, err = h.scheduler.ScheduleRecurring(job)
	} else {
		id, err = h.scheduler.ScheduleOneTime(r.Context(), job)
	}
	if err != nil {
		var jobErr *domain.JobError
		if errors.As(err, &jobErr) && jobErr.Kind == domain.ErrorKindValidation {
			writeError(w, http.StatusBadRequest, jobErr.Message)
			return
		}
		writeError(w, http.StatusInternalServerError, "schedule failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, JobResponse{
		ID:        id.String(),
		Name:      job.Name,
		Type:      string(job.Type),
		Recurring: req.CronExpression != "",
		CreatedAt: formatTime(time.Now()),
	})
}

func (h *Handler) jobMetrics(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDFromPath(w, r.URL.Path)
	if !ok {
		return
	}

	windowDays := defaultMetricsWindowDays
	if raw := r.URL.Query().Get("window_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "window_days must be a positive integer")
			return
		}
		windowDays = n
	}

	metrics, err := h.monitor.JobPerformanceMetrics(r.Context(), jobID, windowDays)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "metrics unavailable: "+err.Error())
		return
	}
	if metrics == nil {
		writeError(w, http.StatusNotFound, "no execution history for job")
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (h *Handler) pauseJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDFromPath(w, r.URL.Path)
	if !ok {
		return
	}
	if err := h.scheduler.PauseJob(r.Context(), jobID); err != nil {
		writeError(w, http.StatusInternalServerError, "pause failed: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resumeJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDFromPath(w, r.URL.Path)
	if !ok {
		return
	}
	if err := h.scheduler.ResumeJob(r.Context(), jobID); err != nil {
		writeError(w, http.StatusInternalServerError, "resume failed: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDFromPath(w, r.URL.Path)
	if !ok {
		return
	}
	if err := h.scheduler.RemoveJob(r.Context(), jobID); err != nil {
		writeError(w, http.StatusInternalServerError, "remove failed: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createAlert(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDFromPath(w, r.URL.Path)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req CreateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	alert, err := alertFromRequest(jobID, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.monitor.CreateAlert(r.Context(), alert); err != nil {
		writeError(w, http.StatusInternalServerError, "create alert failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, AlertResponse{
		ID:    alert.ID.String(),
		JobID: jobID.String(),
		Type:  string(alert.Type),
	})
}

func (h *Handler) taskStatus(w http.ResponseWriter, r *http.Request) {
	executionID := strings.TrimPrefix(r.URL.Path, "/tasks/")
	if executionID == "" {
		writeError(w, http.StatusBadRequest, "missing execution id")
		return
	}

	status, err := h.scheduler.TaskStatus(r.Context(), executionID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "status unavailable: "+err.Error())
		return
	}
	if status == nil {
		writeError(w, http.StatusNotFound, "unknown execution")
		return
	}
	writeJSON(w, http.StatusOK, TaskStatusResponse{
		ExecutionID: executionID,
		Status:      string(*status),
	})
}

// jobIDFromPath extracts the UUID segment after /jobs/. Writes the error
// response itself when the id is malformed.
func jobIDFromPath(w http.ResponseWriter, path string) (uuid.UUID, bool) {
	rest := strings.TrimPrefix(path, "/jobs/")
	segment := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		segment = rest[:i]
	}
	id, err := uuid.Parse(segment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
