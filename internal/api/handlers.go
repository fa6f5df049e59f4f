package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bobarin/storyreel/internal/db"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/musicsync"
	"github.com/bobarin/storyreel/internal/queue"
	"github.com/bobarin/storyreel/internal/services"
)

// RunStore is the subset of the database the API reads and writes.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	ListRuns(ctx context.Context, status, channel string, limit, offset int) ([]models.RunSummary, error)
	CountRuns(ctx context.Context, status, channel string) (int, error)
	CreateJob(ctx context.Context, job *models.Job) error
	GetRunJobs(ctx context.Context, runID uuid.UUID) ([]models.Job, error)
}

type JobQueue interface {
	EnqueueGenerateVideo(ctx context.Context, runID, jobID uuid.UUID) error
	GetQueueLength(ctx context.Context, queueName string) (int64, error)
}

// ObjectStore resolves archived videos to URLs.
type ObjectStore interface {
	GetPublicURL(storagePath string) string
	GetSignedURL(ctx context.Context, storagePath string, expiresIn int) (string, error)
}

type CursorLister interface {
	Entries(ctx context.Context) ([]musicsync.Entry, error)
}

type Handler struct {
	db      RunStore
	queue   JobQueue
	storage ObjectStore
	cursors CursorLister
}

// NewHandler builds the API handler. cursors may be nil, in which case the
// cursor listing reports an empty set.
func NewHandler(database RunStore, q JobQueue, stor ObjectStore, cursors CursorLister) *Handler {
	return &Handler{
		db:      database,
		queue:   q,
		storage: stor,
		cursors: cursors,
	}
}

// CreateRun handles POST /v1/videos
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "Title is required")
		return
	}
	if req.Channel == "" {
		req.Channel = models.ModeDefault
	}
	mode, err := models.LookupChannelMode(req.Channel)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A supplied script is checked now so a bad ratio never reaches the queue.
	if len(req.VoiceScripts) > 0 || len(req.ImagePrompts) > 0 {
		script := services.Script{VoiceScripts: req.VoiceScripts, ImagePrompts: req.ImagePrompts}
		if err := script.Validate(mode); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	run := &models.Run{
		ID:           uuid.New(),
		Title:        req.Title,
		Channel:      mode.Name,
		Status:       models.RunStatusQueued,
		Content:      req.Content,
		VoiceScripts: req.VoiceScripts,
		ImagePrompts: req.ImagePrompts,
		Captions:     req.Captions,
		MusicPath:    req.MusicPath,
	}
	if err := h.db.CreateRun(r.Context(), run); err != nil {
		log.Printf("[API] Failed to create run: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to create run")
		return
	}

	job := &models.Job{
		ID:     uuid.New(),
		RunID:  run.ID,
		Type:   queue.JobTypeGenerateVideo,
		Status: models.JobStatusQueued,
	}
	if err := h.db.CreateJob(r.Context(), job); err != nil {
		log.Printf("[API] Failed to create job for run %s: %v", run.ID, err)
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.EnqueueGenerateVideo(r.Context(), run.ID, job.ID); err != nil {
		log.Printf("[API] Failed to enqueue run %s: %v", run.ID, err)
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateRunResponse{
		RunID:  run.ID,
		Status: run.Status,
	})
}

// ListRuns handles GET /v1/videos
// Query params:
//   - status:  filter by run status
//   - channel: filter by channel mode
//   - limit:   max results per page (default 20, max 100)
//   - offset:  number of results to skip (default 0)
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	statusFilter := query.Get("status")
	if statusFilter != "" && !validRunStatus(models.RunStatus(statusFilter)) {
		respondError(w, http.StatusBadRequest, "Invalid status filter. Allowed: "+strings.Join(runStatusNames(), ", "))
		return
	}

	channelFilter := query.Get("channel")
	if channelFilter != "" {
		mode, err := models.LookupChannelMode(channelFilter)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		channelFilter = mode.Name
	}

	limit := 20
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := query.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	total, err := h.db.CountRuns(r.Context(), statusFilter, channelFilter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count runs")
		return
	}

	runs, err := h.db.ListRuns(r.Context(), statusFilter, channelFilter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []models.RunSummary{}
	}

	respondJSON(w, http.StatusOK, models.ListRunsResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetRun handles GET /v1/videos/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	response := models.RunResponse{Run: *run}
	if run.StoragePath != nil && *run.StoragePath != "" {
		url := h.storage.GetPublicURL(*run.StoragePath)
		response.DownloadURL = &url
	}

	respondJSON(w, http.StatusOK, response)
}

// GetRunDownload handles GET /v1/videos/{id}/download
// Archived videos redirect to a signed URL; otherwise the local file is served.
func (h *Handler) GetRunDownload(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	if run.StoragePath != nil && *run.StoragePath != "" {
		// Valid for 1 hour
		signedURL, err := h.storage.GetSignedURL(r.Context(), *run.StoragePath, 3600)
		if err != nil {
			log.Printf("[API] Failed to sign %s: %v", *run.StoragePath, err)
			respondError(w, http.StatusInternalServerError, "Failed to generate download URL")
			return
		}
		http.Redirect(w, r, signedURL, http.StatusTemporaryRedirect)
		return
	}

	if run.Status == models.RunStatusCompleted && run.OutputPath != nil {
		if _, err := os.Stat(*run.OutputPath); err == nil {
			w.Header().Set("Content-Type", "video/mp4")
			http.ServeFile(w, r, *run.OutputPath)
			return
		}
	}

	respondError(w, http.StatusNotFound, "Video not ready")
}

// GetRunJobs handles GET /v1/videos/{id}/debug/jobs
func (h *Handler) GetRunJobs(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	jobs, err := h.db.GetRunJobs(r.Context(), runID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get jobs")
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}

	respondJSON(w, http.StatusOK, jobs)
}

// ListChannelModes handles GET /v1/channel-modes
func (h *Handler) ListChannelModes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.ChannelModes())
}

// ListMusicCursors handles GET /v1/music-cursors
func (h *Handler) ListMusicCursors(w http.ResponseWriter, r *http.Request) {
	cursors := []models.MusicCursorResponse{}
	if h.cursors != nil {
		entries, err := h.cursors.Entries(r.Context())
		if err != nil {
			log.Printf("[API] Failed to read music cursors: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to read music cursors")
			return
		}
		for _, e := range entries {
			cursors = append(cursors, models.MusicCursorResponse{
				Video:          e.Video,
				LastMusicStart: e.Cursor.LastMusicStart,
			})
		}
	}
	respondJSON(w, http.StatusOK, cursors)
}

func (h *Handler) loadRun(w http.ResponseWriter, r *http.Request) (*models.Run, bool) {
	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid run ID")
		return nil, false
	}

	run, err := h.db.GetRun(r.Context(), runID)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Run not found")
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get run")
		return nil, false
	}
	return run, true
}

var runStatuses = []models.RunStatus{
	models.RunStatusQueued,
	models.RunStatusWriting,
	models.RunStatusGenerating,
	models.RunStatusAssembling,
	models.RunStatusCaptioning,
	models.RunStatusMixing,
	models.RunStatusCompleted,
	models.RunStatusFailed,
}

func validRunStatus(s models.RunStatus) bool {
	for _, known := range runStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func runStatusNames() []string {
	names := make([]string, len(runStatuses))
	for i, s := range runStatuses {
		names[i] = string(s)
	}
	return names
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check. Queue depth is included when Redis answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if n, err := h.queue.GetQueueLength(r.Context(), queue.QueueGenerateVideo); err == nil {
		body["queued_jobs"] = n
	}
	respondJSON(w, http.StatusOK, body)
}
