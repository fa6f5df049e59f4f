package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/bobarin/storyreel/internal/models"
)

const runColumns = `
	id, title, channel, status, content, voice_scripts, image_prompts,
	captions, music_path, output_path, storage_path, duration_sec,
	music_start, music_end, metadata, error_message,
	created_at, updated_at, finished_at
`

func (db *DB) CreateRun(ctx context.Context, run *models.Run) error {
	query := `
		INSERT INTO runs (
			id, title, channel, status, content, voice_scripts, image_prompts,
			captions, music_path, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		run.ID, run.Title, run.Channel, run.Status, run.Content,
		pq.Array(nonNil(run.VoiceScripts)), pq.Array(nonNil(run.ImagePrompts)),
		run.Captions, run.MusicPath, run.Metadata,
	).Scan(&run.CreatedAt, &run.UpdatedAt)
}

func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	run := &models.Run{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.Title, &run.Channel, &run.Status, &run.Content,
		pq.Array(&run.VoiceScripts), pq.Array(&run.ImagePrompts),
		&run.Captions, &run.MusicPath, &run.OutputPath, &run.StoragePath,
		&run.DurationSec, &run.MusicStart, &run.MusicEnd, &run.Metadata,
		&run.ErrorMessage, &run.CreatedAt, &run.UpdatedAt, &run.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns summaries newest first, optionally filtered by status and channel.
func (db *DB) ListRuns(ctx context.Context, status, channel string, limit, offset int) ([]models.RunSummary, error) {
	query := `
		SELECT id, title, channel, status, captions, COALESCE(array_length(voice_scripts, 1), 0),
			duration_sec, error_message, created_at, updated_at
		FROM runs
		WHERE ($1::text = '' OR status = $1) AND ($2::text = '' OR channel = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := db.QueryContext(ctx, query, status, channel, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.RunSummary{}
	for rows.Next() {
		var r models.RunSummary
		if err := rows.Scan(
			&r.ID, &r.Title, &r.Channel, &r.Status, &r.Captions, &r.LineCount,
			&r.DurationSec, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (db *DB) CountRuns(ctx context.Context, status, channel string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE ($1::text = '' OR status = $1) AND ($2::text = '' OR channel = $2)`,
		status, channel,
	).Scan(&count)
	return count, err
}

func (db *DB) UpdateRunStatus(ctx context.Context, id uuid.UUID, status models.RunStatus) error {
	_, err := db.ExecContext(ctx, `UPDATE runs SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	return err
}

// SaveRunScript records the generated (or supplied) content and script.
func (db *DB) SaveRunScript(ctx context.Context, id uuid.UUID, content string, voiceScripts, imagePrompts []string) error {
	query := `
		UPDATE runs
		SET content = $1, voice_scripts = $2, image_prompts = $3, updated_at = NOW()
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, content, pq.Array(nonNil(voiceScripts)), pq.Array(nonNil(imagePrompts)), id)
	return err
}

// CompleteRun stores the run's outputs and marks it completed.
func (db *DB) CompleteRun(ctx context.Context, run *models.Run) error {
	query := `
		UPDATE runs
		SET status = $1, output_path = $2, storage_path = $3, duration_sec = $4,
			music_path = $5, music_start = $6, music_end = $7, metadata = $8,
			updated_at = NOW(), finished_at = NOW()
		WHERE id = $9
	`
	_, err := db.ExecContext(ctx, query,
		models.RunStatusCompleted, run.OutputPath, run.StoragePath, run.DurationSec,
		run.MusicPath, run.MusicStart, run.MusicEnd, run.Metadata, run.ID,
	)
	return err
}

func (db *DB) FailRun(ctx context.Context, id uuid.UUID, errorCode, errorMessage string) error {
	query := `
		UPDATE runs
		SET status = $1, error_code = $2, error_message = $3, updated_at = NOW(), finished_at = NOW()
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, models.RunStatusFailed, errorCode, errorMessage, id)
	return err
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
