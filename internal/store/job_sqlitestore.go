package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/haatos/securegate/internal"
)

type JobSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewJobSQLiteStore(rdb, rwdb *sql.DB) *JobSQLiteStore {
	return &JobSQLiteStore{rdb, rwdb}
}

func (store *JobSQLiteStore) CreateRunJob(
	ctx context.Context,
	runID int64,
	jobKey, name string,
) (*RunJob, error) {
	rj := &RunJob{
		JobRunID: runID,
		JobKey:   jobKey,
		Name:     name,
		Status:   JobPending,
	}
	query := `insert into run_jobs (
		job_run_id,
		job_key,
		name,
		status
	)
	values ($1, $2, $3, $4)
	returning run_job_id`
	if err := sqlscan.Get(
		ctx, store.rwdb, rj, query,
		rj.JobRunID, rj.JobKey, rj.Name, rj.Status,
	); err != nil {
		return nil, err
	}
	return rj, nil
}

func (store *JobSQLiteStore) UpdateRunJobStatus(
	ctx context.Context,
	runID int64,
	jobKey string,
	status JobStatus,
) error {
	now := time.Now().UTC().Format(internal.DBTimestampLayout)
	var query string
	switch status {
	case JobRunning:
		query = `update run_jobs
		set status = $1, started_on = $2
		where job_run_id = $3 and job_key = $4`
	default:
		query = `update run_jobs
		set status = $1, ended_on = $2
		where job_run_id = $3 and job_key = $4`
	}
	_, err := store.rwdb.ExecContext(ctx, query, status, now, runID, jobKey)
	return err
}

func (store *JobSQLiteStore) ListRunJobs(ctx context.Context, runID int64) ([]RunJob, error) {
	query := `select * from run_jobs
	where job_run_id = $1
	order by run_job_id`
	jobs := make([]RunJob, 0)
	err := sqlscan.Select(ctx, store.rdb, &jobs, query, runID)
	return jobs, err
}
