package store

import (
	"context"
	"time"
)

// Pipeline is a registered pipeline definition. Source holds the YAML
// document; it is parsed and validated on save and again on each run.
type Pipeline struct {
	PipelineID      int64 `param:"pipeline_id"`
	PipelineAgentID *int64
	Name            string
	Description     string
	Branch          string
	Source          string
	Schedule        *string
	ScheduleJobID   *string
	CreatedOn       time.Time
}

type PipelineStore interface {
	CreatePipeline(context.Context, *int64, string, string, string, string) (*Pipeline, error)
	ReadPipelineByID(context.Context, int64) (*Pipeline, error)
	UpdatePipeline(context.Context, int64, *int64, string, string, string, string) error
	UpdatePipelineSchedule(context.Context, int64, *string, *string) error
	UpdatePipelineScheduleJobID(context.Context, int64, *string) error
	DeletePipeline(context.Context, int64) error
	ListPipelines(context.Context) ([]*Pipeline, error)
	ListScheduledPipelines(context.Context) ([]*Pipeline, error)
}
