package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"renderqueue/constant"
	"renderqueue/entities"
)

// newMockRepo creates a repository backed by a mocked SQL connection.
func newMockRepo(t *testing.T) (RenderJobRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewRepoWithDB(gormDB), mock, mockDB
}

func jobColumns() []string {
	return []string{
		"id", "type", "image_url", "priority", "status",
		"attempts", "max_attempts", "retry_count",
		"source_type", "source_id", "created_at", "updated_at",
	}
}

func TestCreateJob(t *testing.T) {
	t.Run("applies queue defaults", func(t *testing.T) {
		repo, mock, mockDB := newMockRepo(t)
		defer mockDB.Close()

		mock.ExpectExec(`INSERT INTO "render_jobs"`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		job := &entities.RenderJob{
			Type:     constant.JobTypeAlbumGif,
			ImageURL: "https://img.example.com/cover.jpg",
		}
		err := repo.CreateJob(context.Background(), job)

		assert.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, job.ID)
		assert.Equal(t, constant.JobStatusPending, job.Status)
		assert.Equal(t, constant.DefaultMaxAttempts, job.MaxAttempts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFindJobById(t *testing.T) {
	t.Run("finds existing job", func(t *testing.T) {
		repo, mock, mockDB := newMockRepo(t)
		defer mockDB.Close()

		id := uuid.New()
		rows := sqlmock.NewRows(jobColumns()).AddRow(
			id, "album_gif", "https://img.example.com/a.jpg", 10, "pending",
			0, 3, 0, "", "", time.Now(), time.Now(),
		)

		mock.ExpectQuery(`SELECT \* FROM "render_jobs" WHERE id = \$1`).
			WithArgs(id, 1).
			WillReturnRows(rows)

		job, err := repo.FindJobById(context.Background(), id)

		assert.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, id, job.ID)
		assert.Equal(t, constant.JobStatusPending, job.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps missing row to ErrNotFound", func(t *testing.T) {
		repo, mock, mockDB := newMockRepo(t)
		defer mockDB.Close()

		id := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "render_jobs" WHERE id = \$1`).
			WithArgs(id, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		job, err := repo.FindJobById(context.Background(), id)

		assert.Nil(t, job)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFindActiveBySource(t *testing.T) {
	t.Run("returns in-flight job for dedup key", func(t *testing.T) {
		repo, mock, mockDB := newMockRepo(t)
		defer mockDB.Close()

		id := uuid.New()
		rows := sqlmock.NewRows(jobColumns()).AddRow(
			id, "album_gif", "https://img.example.com/a.jpg", 0, "pending",
			0, 3, 0, "album", "disc-42", time.Now(), time.Now(),
		)

		mock.ExpectQuery(`SELECT \* FROM "render_jobs" WHERE source_type = \$1 AND source_id = \$2 AND status IN \(\$3,\$4\)`).
			WithArgs("album", "disc-42", "pending", "running", 1).
			WillReturnRows(rows)

		job, err := repo.FindActiveBySource(context.Background(), "album", "disc-42")

		assert.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, id, job.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns nil when no active job", func(t *testing.T) {
		repo, mock, mockDB := newMockRepo(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "render_jobs" WHERE source_type = \$1`).
			WithArgs("album", "disc-42", "pending", "running", 1).
			WillReturnError(gorm.ErrRecordNotFound)

		job, err := repo.FindActiveBySource(context.Background(), "album", "disc-42")

		assert.NoError(t, err)
		assert.Nil(t, job)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestClaimNextJob(t *testing.T) {
	t.Run("claims via single conditional update ordered by priority then age", func(t *testing.T) {
		repo, mock, mockDB := newMockRepo(t)
		defer mockDB.Close()

		id := uuid.New()
		rows := sqlmock.NewRows(jobColumns()).AddRow(
			id, "album_gif", "https://img.example.com/a.jpg", 10, "running",
			1, 3, 0, "", "", time.Now(), time.Now(),
		)

		// Claim must be one statement: subselect ordered priority DESC,
		// created_at ASC under SKIP LOCKED, update guarded on it.
		mock.ExpectQuery(`(?s)UPDATE render_jobs.*status = 'running'.*ORDER BY priority DESC, created_at ASC.*LIMIT 1.*FOR UPDATE SKIP LOCKED.*RETURNING`).
			WithArgs("worker-1", sqlmock.AnyArg()).
			WillReturnRows(rows)

		job, err := repo.ClaimNextJob(context.Background(), "worker-1", 5*time.Minute)

		assert.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, id, job.ID)
		assert.Equal(t, constant.JobStatusRunning, job.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty queue is a no-op", func(t *testing.T) {
		repo, mock, mockDB := newMockRepo(t)
		defer mockDB.Close()

		mock.ExpectQuery(`(?s)UPDATE render_jobs.*RETURNING`).
			WithArgs("worker-1", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(jobColumns()))

		job, err := repo.ClaimNextJob(context.Background(), "worker-1", 5*time.Minute)

		assert.NoError(t, err)
		assert.Nil(t, job)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCompleteJob(t *testing.T) {
	t.Run("sets done with result and output url", func(t *testing.T) {
		repo, mock, mockDB := newMockRepo(t)
		defer mockDB.Close()

		id := uuid.New()
		mock.ExpectExec(`UPDATE "render_jobs" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.CompleteJob(context.Background(), id, []byte(`{"gif_url":"x"}`), "x")

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id is ErrNotFound", func(t *testing.T) {
		repo, mock, mockDB := newMockRepo(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE "render_jobs" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.CompleteJob(context.Background(), uuid.New(), nil, "")

		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFailJob(t *testing.T) {
	t.Run("records error and bumps retry count", func(t *testing.T) {
		repo, mock, mockDB := newMockRepo(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE "render_jobs" SET .*retry_count.*retry_count \+ 1`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.FailJob(context.Background(), uuid.New(), "render crashed")

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResetStuckJobs(t *testing.T) {
	t.Run("reclaims quiet running jobs and clears the lease", func(t *testing.T) {
		repo, mock, mockDB := newMockRepo(t)
		defer mockDB.Close()

		a, b := uuid.New(), uuid.New()
		rows := sqlmock.NewRows(jobColumns()).
			AddRow(a, "album_gif", "u", 0, "pending", 1, 3, 0, "", "", time.Now(), time.Now()).
			AddRow(b, "shelf_video", "v", 5, "pending", 2, 3, 1, "", "", time.Now(), time.Now())

		mock.ExpectQuery(`(?s)UPDATE render_jobs.*worker_id = NULL.*started_at = NULL.*locked_at = NULL.*WHERE status = 'running' AND updated_at < \$1.*RETURNING`).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(rows)

		jobs, err := repo.ResetStuckJobs(context.Background(), 5*time.Minute)

		assert.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, a, jobs[0].ID)
		assert.Equal(t, constant.JobStatusPending, jobs[0].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResetErroredJobs(t *testing.T) {
	t.Run("only rows under the retry bound are requeued", func(t *testing.T) {
		repo, mock, mockDB := newMockRepo(t)
		defer mockDB.Close()

		id := uuid.New()
		rows := sqlmock.NewRows(jobColumns()).
			AddRow(id, "album_gif", "u", 0, "pending", 1, 3, 2, "", "", time.Now(), time.Now())

		mock.ExpectQuery(`(?s)UPDATE render_jobs.*error_message = NULL.*WHERE status = 'error' AND retry_count < \$1.*RETURNING`).
			WithArgs(3).
			WillReturnRows(rows)

		jobs, err := repo.ResetErroredJobs(context.Background(), 3)

		assert.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, id, jobs[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMarkPoisonedJobs(t *testing.T) {
	t.Run("exhausted error rows become poison", func(t *testing.T) {
		repo, mock, mockDB := newMockRepo(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE "render_jobs" SET`).
			WillReturnResult(sqlmock.NewResult(0, 2))

		n, err := repo.MarkPoisonedJobs(context.Background(), 3)

		assert.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListJobs(t *testing.T) {
	t.Run("filters by status with pagination", func(t *testing.T) {
		repo, mock, mockDB := newMockRepo(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT count\(\*\) FROM "render_jobs" WHERE status = \$1`).
			WithArgs("pending").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

		id := uuid.New()
		rows := sqlmock.NewRows(jobColumns()).
			AddRow(id, "album_gif", "u", 0, "pending", 0, 3, 0, "", "", time.Now(), time.Now())

		mock.ExpectQuery(`SELECT \* FROM "render_jobs" WHERE status = \$1 ORDER BY created_at DESC`).
			WillReturnRows(rows)

		jobs, total, err := repo.ListJobs(context.Background(), "pending", 10, 0)

		assert.NoError(t, err)
		assert.Equal(t, int64(7), total)
		require.Len(t, jobs, 1)
		assert.Equal(t, id, jobs[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCountByStatus(t *testing.T) {
	t.Run("aggregates per status", func(t *testing.T) {
		repo, mock, mockDB := newMockRepo(t)
		defer mockDB.Close()

		rows := sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 4).
			AddRow("done", 11)

		mock.ExpectQuery(`SELECT status, count\(\*\) as count FROM "render_jobs" GROUP BY`).
			WillReturnRows(rows)

		stats, err := repo.CountByStatus(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, int64(4), stats["pending"])
		assert.Equal(t, int64(11), stats["done"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpsertWorkerStat(t *testing.T) {
	t.Run("heartbeat overwrites the existing record", func(t *testing.T) {
		repo, mock, mockDB := newMockRepo(t)
		defer mockDB.Close()

		mock.ExpectExec(`INSERT INTO "worker_stats" .*ON CONFLICT \("id"\) DO UPDATE SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpsertWorkerStat(context.Background(), &entities.WorkerStat{
			ID:                "worker-1",
			LastHeartbeat:     time.Now(),
			Status:            "idle",
			PollingIntervalMs: 2000,
			UpdatedAt:         time.Now(),
		})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLatestWorkerStat(t *testing.T) {
	t.Run("no heartbeats yet is not an error", func(t *testing.T) {
		repo, mock, mockDB := newMockRepo(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "worker_stats" ORDER BY last_heartbeat DESC`).
			WillReturnError(gorm.ErrRecordNotFound)

		stat, err := repo.LatestWorkerStat(context.Background())

		assert.NoError(t, err)
		assert.Nil(t, stat)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
