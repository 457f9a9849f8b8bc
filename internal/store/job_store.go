package store

import (
	"context"
	"time"
)

// JobStatus is the lifecycle state of a single job within a run. A job
// transitions Pending -> Running -> terminal exactly once; terminal
// statuses are immutable.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSuccess   JobStatus = "success"
	JobFailure   JobStatus = "failure"
	JobSkipped   JobStatus = "skipped"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSuccess, JobFailure, JobSkipped, JobCancelled:
		return true
	}
	return false
}

type RunJob struct {
	RunJobID  int64
	JobRunID  int64
	JobKey    string
	Name      string
	Status    JobStatus
	StartedOn *time.Time
	EndedOn   *time.Time
}

type JobStore interface {
	CreateRunJob(context.Context, int64, string, string) (*RunJob, error)
	UpdateRunJobStatus(context.Context, int64, string, JobStatus) error
	ListRunJobs(context.Context, int64) ([]RunJob, error)
}
