package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Enums
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusWriting    RunStatus = "writing"
	RunStatusGenerating RunStatus = "generating"
	RunStatusAssembling RunStatus = "assembling"
	RunStatusCaptioning RunStatus = "captioning"
	RunStatusMixing     RunStatus = "mixing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Models

// Run is one end-to-end generation: script, media, assembly, captions and music.
type Run struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	Channel      string    `json:"channel"`
	Status       RunStatus `json:"status"`
	Content      *string   `json:"content,omitempty"`
	VoiceScripts []string  `json:"voice_scripts"`
	ImagePrompts []string  `json:"image_prompts"`
	Captions     bool      `json:"captions"`
	MusicPath    *string   `json:"music_path,omitempty"`
	// Local path of the newest artifact (assembled, captioned or music-mixed).
	OutputPath  *string  `json:"output_path,omitempty"`
	StoragePath *string  `json:"storage_path,omitempty"`
	DurationSec *float64 `json:"duration_sec,omitempty"`
	MusicStart  *float64 `json:"music_start,omitempty"`
	MusicEnd    *float64 `json:"music_end,omitempty"`
	// Metadata holds the assembly timeline and step warnings.
	Metadata     JSONB      `json:"metadata,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

type Job struct {
	ID           uuid.UUID  `json:"id"`
	RunID        uuid.UUID  `json:"run_id"`
	Type         string     `json:"type"`
	Status       JobStatus  `json:"status"`
	Attempts     int        `json:"attempts"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// DTOs for API requests and responses

type CreateRunRequest struct {
	Title   string `json:"title"`
	Channel string `json:"channel,omitempty"` // Default: "default"
	// Optional overrides. When set the matching generation step is skipped.
	Content      *string  `json:"content,omitempty"`
	VoiceScripts []string `json:"voice_scripts,omitempty"`
	ImagePrompts []string `json:"image_prompts,omitempty"`
	Captions     bool     `json:"captions,omitempty"`
	MusicPath    *string  `json:"music_path,omitempty"` // Default: channel music from env
}

type CreateRunResponse struct {
	RunID  uuid.UUID `json:"run_id"`
	Status RunStatus `json:"status"`
}

type RunResponse struct {
	Run
	DownloadURL *string `json:"download_url,omitempty"`
}

// RunSummary is the list endpoint shape: no scripts or prompts.
type RunSummary struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	Channel      string    `json:"channel"`
	Status       RunStatus `json:"status"`
	Captions     bool      `json:"captions"`
	LineCount    int       `json:"line_count"`
	DurationSec  *float64  `json:"duration_sec,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ListRunsResponse struct {
	Runs   []RunSummary `json:"runs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

type MusicCursorResponse struct {
	Video          string  `json:"video"`
	LastMusicStart float64 `json:"last_music_start"`
}
