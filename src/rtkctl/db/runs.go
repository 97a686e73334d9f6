package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunKind classifies what a run did.
type RunKind string

const (
	// RunBuild is a build pipeline run
	RunBuild RunKind = "build"
	// RunDeploy is a deploy to a target host
	RunDeploy RunKind = "deploy"
	// RunVerify is a post-reboot verification
	RunVerify RunKind = "verify"
)

// Run statuses
const (
	StatusRunning  = "running"
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusDeclined = "declined"
)

// Run is one recorded pipeline, deploy or verify invocation
type Run struct {
	ID            string
	Kind          RunKind
	KernelVersion string
	Status        string
	ArtifactCount int
	ErrorMessage  string
	StartedAt     time.Time
	FinishedAt    *time.Time
}

// RunRepository handles run history database operations
type RunRepository struct {
	db *Database
}

// NewRunRepository creates a run repository
func NewRunRepository(db *Database) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run in the running state and returns it
func (r *RunRepository) Create(kind RunKind, kernelVersion string) (*Run, error) {
	run := &Run{
		ID:            uuid.New().String(),
		Kind:          kind,
		KernelVersion: kernelVersion,
		Status:        StatusRunning,
		StartedAt:     time.Now().UTC(),
	}

	query := `
		INSERT INTO runs (id, kind, kernel_version, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := r.db.DB().Exec(query,
		run.ID, run.Kind, run.KernelVersion, run.Status, run.StartedAt); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	return run, nil
}

// Finish marks a run as ended. A non-nil runErr records a failure with its
// message; otherwise the given status stands.
func (r *RunRepository) Finish(id, status string, artifactCount int, runErr error) error {
	errorMessage := ""
	if runErr != nil {
		status = StatusFailed
		errorMessage = runErr.Error()
	}

	query := `
		UPDATE runs
		SET status = ?, artifact_count = ?, error_message = ?, finished_at = ?
		WHERE id = ?
	`
	result, err := r.db.DB().Exec(query, status, artifactCount, errorMessage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// ListRecent returns the most recent runs, newest first
func (r *RunRepository) ListRecent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, kind, kernel_version, status, artifact_count,
			COALESCE(error_message, ''), started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := r.db.DB().Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.Kind, &run.KernelVersion, &run.Status,
			&run.ArtifactCount, &run.ErrorMessage, &run.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			run.FinishedAt = &finished.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
