package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MimeLyc/beatreel/internal/config"
	"github.com/MimeLyc/beatreel/internal/jobs"
	"github.com/MimeLyc/beatreel/internal/pipeline"
	"github.com/MimeLyc/beatreel/internal/themes"
	"github.com/MimeLyc/beatreel/pkg/icron"
)

type enqueueRunRequest struct {
	Topic string `json:"topic"`
	Theme string `json:"theme,omitempty"`
	Voice string `json:"voice,omitempty"`
}

// runResponse is a job plus the latest progress event, the shape both
// the run list and the SSE stream emit.
type runResponse struct {
	*jobs.Job
	Progress *pipeline.ProgressEvent `json:"progress,omitempty"`
}

func (s *Server) listRuns() []runResponse {
	jobList := s.queue.List()
	out := make([]runResponse, 0, len(jobList))
	for _, job := range jobList {
		resp := runResponse{Job: job}
		if s.board != nil {
			if ev, ok := s.board.Get(job.ID); ok {
				resp.Progress = &ev
			}
		}
		out = append(out, resp)
	}
	return out
}

func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"runs": s.listRuns(),
	})
}

func (s *Server) handleEnqueueRun(w http.ResponseWriter, r *http.Request) {
	var req enqueueRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}
	if s.themes != nil && req.Theme != "" {
		if _, err := s.themes.Select(req.Theme); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	job, created := s.queue.Enqueue(jobs.EnqueueRequest{
		Source:    "api",
		DedupeKey: jobs.DedupeKey(req.Topic, req.Theme),
		Payload: jobs.JobPayload{
			Topic: req.Topic,
			Theme: req.Theme,
			Voice: req.Voice,
		},
	})
	code := http.StatusCreated
	if !created {
		code = http.StatusOK
	}
	writeJSON(w, code, map[string]any{
		"created": created,
		"job":     job,
	})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.queue.Get(id); !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	job, ok := s.queue.Cancel(id)
	if !ok {
		writeError(w, http.StatusConflict, "run already finished")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job": job,
	})
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	runs, err := s.scanner.Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs": runs,
	})
}

func (s *Server) handleLibraryRescan(w http.ResponseWriter, _ *http.Request) {
	s.scanner.Invalidate()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok": true,
	})
}

func (s *Server) handleThemes(w http.ResponseWriter, _ *http.Request) {
	list := []themes.Theme{}
	if s.themes != nil {
		list = s.themes.All()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"themes": list,
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}
	settings, err := s.settings.GetRuntimeSettings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	var req config.RuntimeSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	saved, err := s.settings.UpdateRuntimeSettings(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.apply != nil {
		if err := s.apply(saved); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, saved)
}

type retentionStatus struct {
	Schedule  string `json:"schedule"`
	Days      int    `json:"days"`
	NextSweep string `json:"next_sweep,omitempty"`
	LastSweep string `json:"last_sweep,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

type statusResponse struct {
	PlannerProvider string           `json:"planner_provider"`
	PlannerModel    string           `json:"planner_model"`
	RenderModel     string           `json:"render_model"`
	TTSEngine       string           `json:"tts_engine"`
	DefaultTheme    string           `json:"default_theme,omitempty"`
	ResearchEnabled bool             `json:"research_enabled"`
	QueueDepth      int              `json:"queue_depth"`
	Retention       *retentionStatus `json:"retention,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		PlannerProvider: s.cfg.LLM.Provider,
		PlannerModel:    s.cfg.PlannerModel(),
		RenderModel:     s.cfg.Render.Model,
		TTSEngine:       s.cfg.Speech.Engine,
		DefaultTheme:    s.cfg.Pipeline.Theme,
		ResearchEnabled: s.cfg.Agent.ResearchEnabled,
		QueueDepth:      s.queue.Depth(),
	}

	if s.sweep != nil {
		if info, err := s.sweep.TriggerInfo(); err == nil && info != nil {
			resp.Retention = retentionStatusFrom(info, s.cfg.Retention.Days)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func retentionStatusFrom(info *icron.TriggerInfo, days int) *retentionStatus {
	status := &retentionStatus{
		Schedule: info.Expression,
		Days:     days,
		Summary:  info.Summary(),
	}
	if !info.Next.IsZero() {
		status.NextSweep = info.Next.UTC().Format(time.RFC3339)
	}
	if !info.Last.IsZero() {
		status.LastSweep = info.Last.UTC().Format(time.RFC3339)
	}
	return status
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
