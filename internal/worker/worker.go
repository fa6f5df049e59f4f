package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/queue"
	"github.com/bobarin/storyreel/internal/services"
)

// RunStore is the persistence the worker needs; *db.DB implements it.
type RunStore interface {
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	UpdateRunStatus(ctx context.Context, id uuid.UUID, status models.RunStatus) error
	SaveRunScript(ctx context.Context, id uuid.UUID, content string, voiceScripts, imagePrompts []string) error
	CompleteRun(ctx context.Context, run *models.Run) error
	FailRun(ctx context.Context, id uuid.UUID, errorCode, errorMessage string) error
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error
	UpdateJobError(ctx context.Context, id uuid.UUID, errorMessage string) error
}

// JobSource hands out queued jobs; *queue.Queue implements it.
type JobSource interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error)
}

type Worker struct {
	db        RunStore
	queue     JobSource
	generator *Generator
	outputDir string
}

// New creates a worker. Each run writes under outputDir/<run id>/ so
// concurrent runs never share output files.
func New(store RunStore, q JobSource, generator *Generator, outputDir string) *Worker {
	return &Worker{
		db:        store,
		queue:     q,
		generator: generator,
		outputDir: outputDir,
	}
}

// Start processes generate_video jobs until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	log.Printf("[Worker] Started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueGenerateVideo)
	}

	<-ctx.Done()
	log.Println("[Worker] Shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Worker] Error dequeuing from %s: %v", queueName, err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		w.handleJob(ctx, job)
	}
}

// handleJob runs one job and records the outcome on both the job and the run.
func (w *Worker) handleJob(ctx context.Context, job *queue.Job) {
	log.Printf("[Worker] Processing job %s (type: %s, run: %s)", job.ID, job.Type, job.RunID)

	if err := w.db.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
		log.Printf("[Worker] Failed to update job status: %v", err)
	}

	var err error
	switch job.Type {
	case queue.JobTypeGenerateVideo:
		err = w.handleGenerateVideo(ctx, job)
	default:
		err = fmt.Errorf("unknown job type %q", job.Type)
	}

	if err != nil {
		log.Printf("[Worker] Job %s failed: %v", job.ID, err)
		if uerr := w.db.UpdateJobError(ctx, job.ID, err.Error()); uerr != nil {
			log.Printf("[Worker] Failed to record job error: %v", uerr)
		}
		return
	}
	log.Printf("[Worker] Job %s completed successfully", job.ID)
	if uerr := w.db.UpdateJobStatus(ctx, job.ID, models.JobStatusSucceeded); uerr != nil {
		log.Printf("[Worker] Failed to update job status: %v", uerr)
	}
}

func (w *Worker) handleGenerateVideo(ctx context.Context, job *queue.Job) error {
	run, err := w.db.GetRun(ctx, job.RunID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}
	if run.Status.Terminal() {
		log.Printf("[Worker] Run %s already %s, skipping", run.ID, run.Status)
		return nil
	}

	req := RunRequest{
		RunID:        run.ID.String(),
		Title:        run.Title,
		Channel:      run.Channel,
		VoiceScripts: run.VoiceScripts,
		ImagePrompts: run.ImagePrompts,
		Captions:     run.Captions,
		OutputDir:    filepath.Join(w.outputDir, run.ID.String()),
	}
	if run.Content != nil {
		req.Content = *run.Content
	}
	if run.MusicPath != nil {
		req.MusicPath = *run.MusicPath
	}

	result, err := w.generator.Run(ctx, req, &runProgress{store: w.db, runID: run.ID})
	if err != nil {
		w.fail(run.ID, err)
		return err
	}

	applyResult(run, result)
	if err := w.db.CompleteRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save run result: %w", err)
	}
	return nil
}

// fail records the failure even when ctx was cancelled mid-run.
func (w *Worker) fail(runID uuid.UUID, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	code := services.ErrorCode(runErr)
	if errors.Is(runErr, context.Canceled) {
		code = "cancelled"
	}
	if err := w.db.FailRun(ctx, runID, code, runErr.Error()); err != nil {
		log.Printf("[Worker] Failed to mark run %s failed: %v", runID, err)
	}
}

// applyResult copies pipeline outputs onto the run record.
func applyResult(run *models.Run, result *RunResult) {
	run.Status = models.RunStatusCompleted
	run.OutputPath = strPtr(result.VideoPath)
	if key := result.StoragePath(); key != "" {
		run.StoragePath = strPtr(key)
	}
	if result.Assembly != nil {
		run.DurationSec = float64Ptr(result.Assembly.Duration)
	}
	if result.MusicPath != "" {
		run.MusicPath = strPtr(result.MusicPath)
	}
	if result.Music != nil {
		run.MusicStart = float64Ptr(result.Music.MusicStart)
		run.MusicEnd = float64Ptr(result.Music.MusicEnd)
	}

	meta := models.JSONB{
		"assembled_path": result.AssembledPath,
	}
	if result.Assembly != nil {
		meta["timeline"] = result.Assembly.Timeline
		meta["lines"] = result.Assembly.Lines
	}
	if result.CaptionedPath != "" {
		meta["captioned_path"] = result.CaptionedPath
	}
	if len(result.Warnings) > 0 {
		meta["warnings"] = result.Warnings
	}
	run.Metadata = meta
}

// runProgress mirrors pipeline milestones into the database.
type runProgress struct {
	store RunStore
	runID uuid.UUID
}

func (p *runProgress) Status(ctx context.Context, status models.RunStatus) {
	if err := p.store.UpdateRunStatus(ctx, p.runID, status); err != nil {
		log.Printf("[Worker] Failed to update run %s to %s: %v", p.runID, status, err)
	}
}

func (p *runProgress) Script(ctx context.Context, content string, script *services.Script) {
	if err := p.store.SaveRunScript(ctx, p.runID, content, script.VoiceScripts, script.ImagePrompts); err != nil {
		log.Printf("[Worker] Failed to save script for run %s: %v", p.runID, err)
	}
}

func strPtr(s string) *string {
	return &s
}

func float64Ptr(f float64) *float64 {
	return &f
}
