package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MimeLyc/beatreel/internal/jobs"
	"github.com/MimeLyc/beatreel/internal/pipeline"
	"github.com/MimeLyc/beatreel/internal/planner"
)

var errRunNotFound = errors.New("run not found")

type runDetailResponse struct {
	Job         *jobs.Job               `json:"job"`
	Progress    *pipeline.ProgressEvent `json:"progress,omitempty"`
	Storyboard  *planner.Storyboard     `json:"storyboard,omitempty"`
	Manifest    *pipeline.Manifest      `json:"manifest,omitempty"`
	Checkpoints []beatCheckpointState   `json:"checkpoints,omitempty"`
	HasVideo    bool                    `json:"has_video"`
}

// beatCheckpointState reports which per-beat artifacts survive on disk,
// not just which rows exist. A checkpoint whose file is gone is useless
// for resume and is shown as absent.
type beatCheckpointState struct {
	Beat     int    `json:"beat"`
	HasAudio bool   `json:"has_audio"`
	HasVideo bool   `json:"has_video"`
	TaskID   string `json:"task_id,omitempty"`
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detail, err := s.buildRunDetail(r.Context(), id)
	if err != nil {
		if errors.Is(err, errRunNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) buildRunDetail(ctx context.Context, id string) (runDetailResponse, error) {
	job, ok := s.queue.Get(id)
	if !ok {
		return runDetailResponse{}, errRunNotFound
	}

	detail := runDetailResponse{Job: job}
	if s.board != nil {
		if ev, ok := s.board.Get(id); ok {
			detail.Progress = &ev
		}
	}

	runDir := filepath.Join(s.cfg.RunsDir(), id)
	detail.Storyboard = readStoryboardIfExists(filepath.Join(runDir, pipeline.StoryboardName))
	if m, err := pipeline.ReadManifest(runDir); err == nil {
		detail.Manifest = m
	}
	detail.HasVideo = fileHasContent(filepath.Join(runDir, pipeline.FinalName))

	states, err := s.loadCheckpointStates(ctx, id)
	if err != nil {
		return runDetailResponse{}, err
	}
	detail.Checkpoints = states
	return detail, nil
}

func (s *Server) loadCheckpointStates(ctx context.Context, id string) ([]beatCheckpointState, error) {
	if s.jobData == nil {
		return nil, nil
	}
	checkpoints, err := s.jobData.LoadBeatCheckpoints(ctx, id)
	if err != nil {
		return nil, err
	}
	states := make([]beatCheckpointState, 0, len(checkpoints))
	for _, cp := range checkpoints {
		states = append(states, beatCheckpointState{
			Beat:     cp.Beat,
			HasAudio: fileHasContent(cp.AudioPath) && cp.AudioMS > 0,
			HasVideo: fileHasContent(cp.VideoPath),
			TaskID:   cp.TaskID,
		})
	}
	return states, nil
}

func readStoryboardIfExists(path string) *planner.Storyboard {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var board planner.Storyboard
	if err := json.Unmarshal(data, &board); err != nil {
		return nil
	}
	return &board
}

func fileHasContent(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

func (s *Server) handleRunVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validRunID(id) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	path := filepath.Join(s.cfg.RunsDir(), id, pipeline.FinalName)
	if !fileHasContent(path) {
		writeError(w, http.StatusNotFound, "video not available")
		return
	}
	http.ServeFile(w, r, path)
}

// validRunID rejects anything that could escape the runs directory.
func validRunID(id string) bool {
	if strings.TrimSpace(id) == "" {
		return false
	}
	if strings.ContainsAny(id, `/\`) {
		return false
	}
	return !strings.Contains(id, "..")
}
