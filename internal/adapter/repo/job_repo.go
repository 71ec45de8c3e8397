package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"enhancer/internal/domain"
	"enhancer/internal/infra"
	"enhancer/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on the generation_jobs table.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a journal repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create records a freshly submitted task. Recording the same task id twice is a no-op.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.GenerationJob) error {
	if job == nil || job.TaskID == "" {
		return fmt.Errorf("job with task id is required")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.State = domain.JobStatePolling
	_, err := r.sql.Exec(ctx, sqlinline.QInsertGenerationJob,
		job.ID,
		job.TaskID,
		job.UserID,
		job.UserEmail,
		job.SourceImage,
		job.Prompt,
		job.CategoryLabel,
		job.EnhancementLabel,
		job.LeaseUntil,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// MarkSucceeded transitions the job to SUCCEEDED. It reports false when another
// caller already did so.
func (r *JobRepositoryPG) MarkSucceeded(ctx context.Context, taskID, resultURL string) (bool, error) {
	var id string
	if err := r.sql.QueryRow(ctx, sqlinline.QMarkJobSucceeded, taskID, resultURL).Scan(&id); err != nil {
		if infra.IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("mark job succeeded: %w", err)
	}
	return true, nil
}

// MarkFinished records a non-success terminal state.
func (r *JobRepositoryPG) MarkFinished(ctx context.Context, taskID string, state domain.JobState, reason string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QMarkJobFinished, taskID, string(state), reason); err != nil {
		return fmt.Errorf("mark job %s: %w", state, err)
	}
	return nil
}

// RenewLease keeps a POLLING job away from the recovery worker for another lease.
func (r *JobRepositoryPG) RenewLease(ctx context.Context, taskID string, lease time.Duration) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QRenewJobLease, taskID, int(lease.Seconds())); err != nil {
		return fmt.Errorf("renew job lease: %w", err)
	}
	return nil
}

// GetByTaskID fetches a journal entry by provider task id.
func (r *JobRepositoryPG) GetByTaskID(ctx context.Context, taskID string) (*domain.GenerationJob, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectJobByTaskID, taskID)
	var job domain.GenerationJob
	var state string
	if err := row.Scan(
		&job.ID,
		&job.TaskID,
		&job.UserID,
		&job.UserEmail,
		&job.SourceImage,
		&job.Prompt,
		&job.CategoryLabel,
		&job.EnhancementLabel,
		&state,
		&job.ResultURL,
		&job.Failure,
		&job.LeaseUntil,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("query job: %w", err)
	}
	job.State = domain.JobState(state)
	return &job, nil
}

// ClaimStale leases abandoned POLLING jobs for the caller.
func (r *JobRepositoryPG) ClaimStale(ctx context.Context, lease time.Duration, limit int) ([]domain.GenerationJob, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := r.sql.Query(ctx, sqlinline.QClaimStaleJobs, int(lease.Seconds()), limit)
	if err != nil {
		return nil, fmt.Errorf("claim stale jobs: %w", err)
	}
	defer rows.Close()
	var jobs []domain.GenerationJob
	for rows.Next() {
		var job domain.GenerationJob
		var state string
		if err := rows.Scan(&job.ID, &job.TaskID, &job.UserID, &job.UserEmail, &job.SourceImage, &job.Prompt,
			&job.CategoryLabel, &job.EnhancementLabel, &state, &job.LeaseUntil, &job.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan claimed job: %w", err)
		}
		job.State = domain.JobState(state)
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed jobs: %w", err)
	}
	return jobs, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
