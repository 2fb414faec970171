package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"renderqueue/constant"
	"renderqueue/entities"
)

var ErrNotFound = errors.New("job not found")

type RenderJobRepository interface {
	GetDB() *gorm.DB
	CreateJob(ctx context.Context, job *entities.RenderJob) error
	FindJobById(ctx context.Context, id uuid.UUID) (*entities.RenderJob, error)
	FindActiveBySource(ctx context.Context, sourceType, sourceID string) (*entities.RenderJob, error)
	ClaimNextJob(ctx context.Context, workerID string, leaseTTL time.Duration) (*entities.RenderJob, error)
	CompleteJob(ctx context.Context, id uuid.UUID, result datatypes.JSON, outputURL string) error
	FailJob(ctx context.Context, id uuid.UUID, errorMessage string) error
	UpdateStatusJob(ctx context.Context, status constant.JobStatus, id uuid.UUID) error
	ResetStuckJobs(ctx context.Context, olderThan time.Duration) ([]entities.RenderJob, error)
	ResetErroredJobs(ctx context.Context, maxRetries int) ([]entities.RenderJob, error)
	MarkPoisonedJobs(ctx context.Context, maxRetries int) (int64, error)
	ListJobs(ctx context.Context, status string, limit, offset int) ([]entities.RenderJob, int64, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
	UpsertWorkerStat(ctx context.Context, stat *entities.WorkerStat) error
	LatestWorkerStat(ctx context.Context) (*entities.WorkerStat, error)
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB) RenderJobRepository {
	gormDB, _ := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		},
	)
	return &repo{
		db: gormDB,
	}
}

// NewRepoWithDB wraps an already opened gorm connection. Used by tests.
func NewRepoWithDB(db *gorm.DB) RenderJobRepository {
	return &repo{db: db}
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

func (r *repo) CreateJob(ctx context.Context, job *entities.RenderJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = constant.JobStatusPending
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = constant.DefaultMaxAttempts
	}
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repo) FindJobById(ctx context.Context, id uuid.UUID) (*entities.RenderJob, error) {
	job := &entities.RenderJob{}
	err := r.db.WithContext(ctx).First(job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// FindActiveBySource returns the in-flight job for a dedup key, or nil
// when the key has no pending/running job.
func (r *repo) FindActiveBySource(ctx context.Context, sourceType, sourceID string) (*entities.RenderJob, error) {
	job := &entities.RenderJob{}
	err := r.db.WithContext(ctx).
		Where("source_type = ? AND source_id = ? AND status IN ?",
			sourceType, sourceID,
			[]string{constant.JobStatusPending.String(), constant.JobStatusRunning.String()}).
		Order("created_at ASC").
		First(job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ClaimNextJob marks the best candidate running in one conditional
// update, so two workers can never claim the same row. Candidates are
// pending jobs plus running jobs whose lease expired, ordered by
// priority desc then age.
func (r *repo) ClaimNextJob(ctx context.Context, workerID string, leaseTTL time.Duration) (*entities.RenderJob, error) {
	cutoff := time.Now().Add(-leaseTTL)
	job := &entities.RenderJob{}
	res := r.db.WithContext(ctx).Raw(`
		UPDATE render_jobs
		SET status = 'running',
		    worker_id = ?,
		    started_at = NOW(),
		    locked_at = NOW(),
		    updated_at = NOW(),
		    attempts = attempts + 1
		WHERE id = (
			SELECT id FROM render_jobs
			WHERE status = 'pending'
			   OR (status = 'running' AND locked_at < ? AND attempts < max_attempts)
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`, workerID, cutoff).Scan(job)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return job, nil
}

func (r *repo) CompleteJob(ctx context.Context, id uuid.UUID, result datatypes.JSON, outputURL string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       constant.JobStatusDone.String(),
		"completed_at": now,
		"updated_at":   now,
	}
	if result != nil {
		updates["result"] = result
	}
	if outputURL != "" {
		updates["output_url"] = outputURL
	}
	return r.updateJob(ctx, id, updates)
}

func (r *repo) FailJob(ctx context.Context, id uuid.UUID, errorMessage string) error {
	updates := map[string]interface{}{
		"status":      constant.JobStatusError.String(),
		"retry_count": gorm.Expr("retry_count + 1"),
		"updated_at":  time.Now(),
	}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}
	return r.updateJob(ctx, id, updates)
}

func (r *repo) UpdateStatusJob(ctx context.Context, status constant.JobStatus, id uuid.UUID) error {
	return r.updateJob(ctx, id, map[string]interface{}{
		"status":     status.String(),
		"updated_at": time.Now(),
	})
}

func (r *repo) updateJob(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&entities.RenderJob{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetStuckJobs reclaims running jobs whose row has not been touched
// since the cutoff, clearing the lease so any worker may pick them up.
func (r *repo) ResetStuckJobs(ctx context.Context, olderThan time.Duration) ([]entities.RenderJob, error) {
	cutoff := time.Now().Add(-olderThan)
	var jobs []entities.RenderJob
	res := r.db.WithContext(ctx).Raw(`
		UPDATE render_jobs
		SET status = 'pending',
		    worker_id = NULL,
		    started_at = NULL,
		    locked_at = NULL,
		    updated_at = NOW()
		WHERE status = 'running' AND updated_at < ?
		RETURNING *`, cutoff).Scan(&jobs)
	if res.Error != nil {
		return nil, res.Error
	}
	return jobs, nil
}

// ResetErroredJobs re-queues errored jobs still under the retry bound;
// rows at or over the bound are untouched.
func (r *repo) ResetErroredJobs(ctx context.Context, maxRetries int) ([]entities.RenderJob, error) {
	var jobs []entities.RenderJob
	res := r.db.WithContext(ctx).Raw(`
		UPDATE render_jobs
		SET status = 'pending',
		    error_message = NULL,
		    updated_at = NOW()
		WHERE status = 'error' AND retry_count < ?
		RETURNING *`, maxRetries).Scan(&jobs)
	if res.Error != nil {
		return nil, res.Error
	}
	return jobs, nil
}

// MarkPoisonedJobs moves errored jobs that exhausted their retries to
// the terminal poison status so sweeps stop reconsidering them.
func (r *repo) MarkPoisonedJobs(ctx context.Context, maxRetries int) (int64, error) {
	res := r.db.WithContext(ctx).Model(&entities.RenderJob{}).
		Where("status = ? AND retry_count >= ?", constant.JobStatusError.String(), maxRetries).
		Updates(map[string]interface{}{
			"status":     constant.JobStatusPoison.String(),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) ListJobs(ctx context.Context, status string, limit, offset int) ([]entities.RenderJob, int64, error) {
	q := r.db.WithContext(ctx).Model(&entities.RenderJob{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []entities.RenderJob
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&jobs).Error
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (r *repo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&entities.RenderJob{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := make(map[string]int64, len(rows))
	for _, row := range rows {
		stats[row.Status] = row.Count
	}
	return stats, nil
}

func (r *repo) UpsertWorkerStat(ctx context.Context, stat *entities.WorkerStat) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(stat).Error
}

func (r *repo) LatestWorkerStat(ctx context.Context) (*entities.WorkerStat, error) {
	stat := &entities.WorkerStat{}
	err := r.db.WithContext(ctx).Order("last_heartbeat DESC").First(stat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return stat, nil
}
