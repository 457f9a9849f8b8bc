package store

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type runSQLiteStoreSuite struct {
	runStore *RunSQLiteStore
	jobStore *JobSQLiteStore
	db       *sql.DB
	pipeline *Pipeline
	suite.Suite
}

func TestRunSQLiteStore(t *testing.T) {
	suite.Run(t, new(runSQLiteStoreSuite))
}

func (suite *runSQLiteStoreSuite) SetupSuite() {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		log.Fatal(err)
	}
	suite.db = db
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		log.Fatal(err)
	}

	RunMigrations(db, "migrations")

	suite.runStore = NewRunSQLiteStore(db, db)
	suite.jobStore = NewJobSQLiteStore(db, db)
	pipelineStore := NewPipelineSQLiteStore(db, db)
	p, err := pipelineStore.CreatePipeline(
		context.Background(),
		nil,
		"runpipeline",
		"",
		"main",
		"name: runpipeline\njobs:\n  - job: a\n    steps: [{step: s, run: \"true\"}]\n",
	)
	if err != nil {
		log.Fatal(err)
	}
	suite.pipeline = p
}

func (suite *runSQLiteStoreSuite) TearDownSuite() {
	_ = suite.db.Close()
}

func (suite *runSQLiteStoreSuite) TestRunSQLiteStore_CreateRun() {
	suite.Run("success - run created", func() {
		// arrange
		branch := "main"

		// act
		r, err := suite.runStore.CreateRun(
			context.Background(),
			suite.pipeline.PipelineID,
			branch,
			"push",
		)

		// assert
		suite.NoError(err)
		suite.NotNil(r)
		suite.Equal(branch, r.Branch)
		suite.Equal("push", r.Event)
		suite.Equal(StatusQueued, r.Status)
	})
	suite.Run("failure - invalid pipeline id", func() {
		// arrange
		var pipelineID int64 = 2345523

		// act
		r, err := suite.runStore.CreateRun(context.Background(), pipelineID, "main", "manual")

		// assert
		suite.Error(err)
		var sqliteErr *sqlite.Error
		ok := errors.As(err, &sqliteErr)
		suite.True(ok)
		suite.Equal(sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, sqliteErr.Code())
		suite.Nil(r)
	})
}

func (suite *runSQLiteStoreSuite) TestRunSQLiteStore_UpdateAndOutput() {
	suite.Run("success - status transitions and output append", func() {
		// arrange
		r, err := suite.runStore.CreateRun(
			context.Background(), suite.pipeline.PipelineID, "main", "manual",
		)
		suite.NoError(err)

		// act
		startedOn := time.Now().UTC()
		suite.NoError(suite.runStore.UpdateRunStartedOn(
			context.Background(), r.RunID, StatusRunning, &startedOn,
		))
		suite.NoError(suite.runStore.AppendRunOutput(context.Background(), r.RunID, "line 1\n"))
		suite.NoError(suite.runStore.AppendRunOutput(context.Background(), r.RunID, "line 2\n"))
		endedOn := time.Now().UTC()
		suite.NoError(suite.runStore.UpdateRunEndedOn(
			context.Background(), r.RunID, StatusPassed, &endedOn,
		))

		// assert
		got, err := suite.runStore.ReadRunByID(context.Background(), r.RunID)
		suite.NoError(err)
		suite.Equal(StatusPassed, got.Status)
		suite.NotNil(got.Output)
		suite.Equal("line 1\nline 2\n", *got.Output)
		suite.NotNil(got.StartedOn)
		suite.NotNil(got.EndedOn)
	})
}

func (suite *runSQLiteStoreSuite) TestJobSQLiteStore_RunJobs() {
	suite.Run("success - per-run job records and status updates", func() {
		// arrange
		r, err := suite.runStore.CreateRun(
			context.Background(), suite.pipeline.PipelineID, "main", "manual",
		)
		suite.NoError(err)

		for _, key := range []string{"build", "test", "gate"} {
			_, err := suite.jobStore.CreateRunJob(context.Background(), r.RunID, key, key)
			suite.NoError(err)
		}

		// act
		suite.NoError(suite.jobStore.UpdateRunJobStatus(
			context.Background(), r.RunID, "build", JobRunning,
		))
		suite.NoError(suite.jobStore.UpdateRunJobStatus(
			context.Background(), r.RunID, "build", JobSuccess,
		))
		suite.NoError(suite.jobStore.UpdateRunJobStatus(
			context.Background(), r.RunID, "test", JobFailure,
		))
		suite.NoError(suite.jobStore.UpdateRunJobStatus(
			context.Background(), r.RunID, "gate", JobSkipped,
		))

		// assert
		jobs, err := suite.jobStore.ListRunJobs(context.Background(), r.RunID)
		suite.NoError(err)
		suite.Len(jobs, 3)
		statuses := make(map[string]JobStatus, len(jobs))
		for _, j := range jobs {
			statuses[j.JobKey] = j.Status
		}
		suite.Equal(JobSuccess, statuses["build"])
		suite.Equal(JobFailure, statuses["test"])
		suite.Equal(JobSkipped, statuses["gate"])
	})
	suite.Run("failure - duplicate job key within a run", func() {
		// arrange
		r, err := suite.runStore.CreateRun(
			context.Background(), suite.pipeline.PipelineID, "main", "manual",
		)
		suite.NoError(err)
		_, err = suite.jobStore.CreateRunJob(context.Background(), r.RunID, "build", "build")
		suite.NoError(err)

		// act
		_, err = suite.jobStore.CreateRunJob(context.Background(), r.RunID, "build", "build")

		// assert
		suite.Error(err)
		var sqliteErr *sqlite.Error
		suite.True(errors.As(err, &sqliteErr))
		suite.Equal(sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqliteErr.Code())
	})
}
