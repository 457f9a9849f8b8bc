package testutil

import (
	"context"

	"github.com/haatos/securegate/internal/service"
	"github.com/haatos/securegate/internal/store"
	"github.com/stretchr/testify/mock"
)

type MockPipelineService struct {
	mock.Mock
}

func (m *MockPipelineService) CreatePipeline(
	ctx context.Context,
	agentID *int64,
	name, description, branch, source string,
) (*store.Pipeline, error) {
	args := m.Called(ctx, agentID, name, description, branch, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Pipeline), args.Error(1)
}

func (m *MockPipelineService) GetPipelineByID(ctx context.Context, id int64) (*store.Pipeline, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Pipeline), args.Error(1)
}

func (m *MockPipelineService) ListPipelines(ctx context.Context) ([]*store.Pipeline, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*store.Pipeline), args.Error(1)
}

func (m *MockPipelineService) UpdatePipeline(
	ctx context.Context,
	pipelineID int64,
	agentID *int64,
	name, description, branch, source string,
) error {
	args := m.Called(ctx, pipelineID, agentID, name, description, branch, source)
	return args.Error(0)
}

func (m *MockPipelineService) UpdatePipelineSchedule(
	ctx context.Context,
	pipelineID int64,
	schedule *string,
) error {
	args := m.Called(ctx, pipelineID, schedule)
	return args.Error(0)
}

func (m *MockPipelineService) DeletePipeline(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPipelineService) EnqueuePipelineRun(
	ctx context.Context,
	pipelineID int64,
	branch, event string,
) (*store.Run, error) {
	args := m.Called(ctx, pipelineID, branch, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Run), args.Error(1)
}

func (m *MockPipelineService) TriggerWebhookRun(
	ctx context.Context,
	pipelineID int64,
	event, branch string,
) (*store.Run, error) {
	args := m.Called(ctx, pipelineID, event, branch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Run), args.Error(1)
}

func (m *MockPipelineService) GetRunByID(ctx context.Context, id int64) (*store.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Run), args.Error(1)
}

func (m *MockPipelineService) DeleteRun(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPipelineService) ListPipelineRuns(ctx context.Context, pipelineID int64) ([]store.Run, error) {
	args := m.Called(ctx, pipelineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Run), args.Error(1)
}

func (m *MockPipelineService) ListPipelineRunsPaginated(
	ctx context.Context,
	pipelineID, limit, offset int64,
) ([]store.Run, error) {
	args := m.Called(ctx, pipelineID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Run), args.Error(1)
}

func (m *MockPipelineService) GetPipelineRunCount(ctx context.Context, pipelineID int64) (int64, error) {
	args := m.Called(ctx, pipelineID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPipelineService) ListRunJobs(ctx context.Context, runID int64) ([]store.RunJob, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.RunJob), args.Error(1)
}

func (m *MockPipelineService) CancelRun(pipelineID, runID int64) error {
	args := m.Called(pipelineID, runID)
	return args.Error(0)
}

func (m *MockPipelineService) GetPipelineRunQueue(id int64) (*service.RunQueue, bool) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*service.RunQueue), args.Bool(1)
}
