package scheduler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/schoolplay/progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// OPERATOR ROUTES
// Served by the worker next to /metrics on its internal listener.
// ══════════════════════════════════════════════════════════════════════════════

// JobStatusDTO describes one registered job.
type JobStatusDTO struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Enabled     bool       `json:"enabled"`
	Schedule    string     `json:"schedule"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     time.Time  `json:"next_run"`
	RunCount    int64      `json:"run_count"`
	FailCount   int64      `json:"fail_count"`
	LastResult  *JobRunDTO `json:"last_result,omitempty"`
}

// JobRunDTO describes one finished run.
type JobRunDTO struct {
	Job        string    `json:"job"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Manual     bool      `json:"manual"`
	Error      string    `json:"error,omitempty"`
}

func newJobRunDTO(r JobResult) JobRunDTO {
	dto := JobRunDTO{
		Job:        r.JobName,
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
		Success:    r.Success,
		Manual:     r.Manual,
	}
	if r.Error != nil {
		dto.Error = r.Error.Error()
	}
	return dto
}

func newJobStatusDTO(info JobInfo) JobStatusDTO {
	dto := JobStatusDTO{
		Name:        info.Name,
		Description: info.Description,
		Enabled:     info.Enabled,
		Schedule:    info.Schedule,
		NextRun:     info.NextRun,
		RunCount:    info.RunCount,
		FailCount:   info.FailCount,
	}
	if !info.LastRun.IsZero() {
		last := info.LastRun
		dto.LastRun = &last
	}
	if info.LastResult != nil {
		r := newJobRunDTO(*info.LastResult)
		dto.LastResult = &r
	}
	return dto
}

// RegisterRoutes mounts the job status and toggle routes:
//
//	GET  /jobs                   registered jobs
//	GET  /jobs/history?limit=N   recent runs, oldest first
//	POST /jobs/{name}/enable
//	POST /jobs/{name}/disable
func (s *Scheduler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/history", s.handleHistory)
	mux.HandleFunc("POST /jobs/{name}/enable", s.handleToggle(s.EnableJob, true))
	mux.HandleFunc("POST /jobs/{name}/disable", s.handleToggle(s.DisableJob, false))
}

func (s *Scheduler) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	infos := s.ListJobs()
	out := make([]JobStatusDTO, 0, len(infos))
	for _, info := range infos {
		out = append(out, newJobStatusDTO(info))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Scheduler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	runs := s.GetHistory(limit)
	out := make([]JobRunDTO, 0, len(runs))
	for _, run := range runs {
		out = append(out, newJobRunDTO(run))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Scheduler) handleToggle(toggle func(string) error, enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if err := toggle(name); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrJobNotFound) {
				status = http.StatusNotFound
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		s.log.Info("job toggled", logger.String("job", name), logger.Bool("enabled", enabled))
		writeJSON(w, http.StatusOK, map[string]any{"job": name, "enabled": enabled})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
