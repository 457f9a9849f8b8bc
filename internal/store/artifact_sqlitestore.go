package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/georgysavva/scany/v2/sqlscan"
)

type ArtifactSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewArtifactSQLiteStore(rdb, rwdb *sql.DB) *ArtifactSQLiteStore {
	return &ArtifactSQLiteStore{rdb, rwdb}
}

func (store *ArtifactSQLiteStore) UploadArtifact(
	ctx context.Context,
	runID int64,
	jobKey, name string,
	payload []byte,
) (*Artifact, error) {
	a := &Artifact{
		ArtifactRunID: runID,
		JobKey:        jobKey,
		Name:          name,
		Payload:       payload,
		Size:          int64(len(payload)),
	}
	query := `insert into artifacts (
		artifact_run_id,
		job_key,
		name,
		payload,
		size
	)
	values ($1, $2, $3, $4, $5)
	on conflict (artifact_run_id, name) do update set
		job_key = excluded.job_key,
		payload = excluded.payload,
		size = excluded.size,
		created_on = current_timestamp
	returning artifact_id, created_on`
	if err := sqlscan.Get(
		ctx, store.rwdb, a, query,
		a.ArtifactRunID, a.JobKey, a.Name, a.Payload, a.Size,
	); err != nil {
		return nil, err
	}
	return a, nil
}

func (store *ArtifactSQLiteStore) DownloadArtifact(
	ctx context.Context,
	runID int64,
	name string,
) (*Artifact, error) {
	a := new(Artifact)
	query := `select * from artifacts
	where artifact_run_id = $1 and name = $2`
	if err := sqlscan.Get(ctx, store.rdb, a, query, runID, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrArtifactNotFound{Name: name}
		}
		return nil, err
	}
	return a, nil
}

func (store *ArtifactSQLiteStore) ListRunArtifacts(
	ctx context.Context,
	runID int64,
) ([]Artifact, error) {
	query := `select
		artifact_id,
		artifact_run_id,
		job_key,
		name,
		size,
		created_on
	from artifacts
	where artifact_run_id = $1
	order by name`
	artifacts := make([]Artifact, 0)
	err := sqlscan.Select(ctx, store.rdb, &artifacts, query, runID)
	return artifacts, err
}
