package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/haatos/securegate/internal"
	"github.com/haatos/securegate/internal/pipeline"
	"github.com/haatos/securegate/internal/security"
	"github.com/haatos/securegate/internal/store"
	"github.com/haatos/securegate/internal/util"
)

type PipelineService struct {
	pipelineStore store.PipelineStore
	runStore      store.RunStore
	jobStore      store.JobStore
	agentStore    store.AgentStore
	cache         *CacheService
	artifacts     *ArtifactService
	secrets       SecretResolver
	scheduler     gocron.Scheduler
	aesEncrypter  security.Encrypter
	runsRoot      string

	mu     sync.Mutex
	queues map[int64]*RunQueue
}

func NewPipelineService(
	pipelineStore store.PipelineStore,
	runStore store.RunStore,
	jobStore store.JobStore,
	agentStore store.AgentStore,
	cache *CacheService,
	artifacts *ArtifactService,
	secrets SecretResolver,
	scheduler gocron.Scheduler,
	aesEncrypter security.Encrypter,
	runsRoot string,
) *PipelineService {
	return &PipelineService{
		pipelineStore: pipelineStore,
		runStore:      runStore,
		jobStore:      jobStore,
		agentStore:    agentStore,
		cache:         cache,
		artifacts:     artifacts,
		secrets:       secrets,
		scheduler:     scheduler,
		aesEncrypter:  aesEncrypter,
		runsRoot:      runsRoot,
		queues:        make(map[int64]*RunQueue),
	}
}

func (s *PipelineService) InitializeRunQueues(ctx context.Context) error {
	pipelines, err := s.ListPipelines(ctx)
	if err != nil {
		return err
	}

	ids := make([]int64, len(pipelines))
	for i, p := range pipelines {
		ids[i] = p.PipelineID
	}

	s.AddRunQueues(ids, internal.Config.QueueSize)
	s.StartRunQueues()
	return nil
}

func (s *PipelineService) CreatePipeline(
	ctx context.Context,
	agentID *int64,
	name, description, branch, source string,
) (*store.Pipeline, error) {
	if _, err := pipeline.Load([]byte(source)); err != nil {
		return nil, fmt.Errorf("invalid pipeline definition: %w", err)
	}
	p, err := s.pipelineStore.CreatePipeline(
		ctx,
		agentID,
		name,
		description,
		branch,
		source,
	)
	if err != nil {
		return nil, err
	}
	s.AddRunQueue(p.PipelineID, internal.Config.QueueSize)
	if err := s.StartRunQueue(p.PipelineID); err != nil {
		return p, err
	}
	return p, nil
}

func (s *PipelineService) GetPipelineByID(
	ctx context.Context,
	pipelineID int64,
) (*store.Pipeline, error) {
	return s.pipelineStore.ReadPipelineByID(ctx, pipelineID)
}

// GetPipelineRunData loads the pipeline and its agent, decrypting the
// agent's private key for the run queue.
func (s *PipelineService) GetPipelineRunData(
	ctx context.Context,
	pipelineID int64,
) (*PipelineRunData, error) {
	p, err := s.pipelineStore.ReadPipelineByID(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	prd := &PipelineRunData{Pipeline: p}

	if p.PipelineAgentID != nil {
		a, err := s.agentStore.ReadAgentByID(ctx, *p.PipelineAgentID)
		if err != nil {
			return nil, err
		}
		if a.SSHPrivateKeyHash != nil {
			privateKey, err := s.aesEncrypter.DecryptAES(*a.SSHPrivateKeyHash)
			if err != nil {
				return nil, err
			}
			a.SSHPrivateKey = privateKey
		}
		prd.Agent = a
	}

	return prd, nil
}

func (s *PipelineService) ListPipelines(
	ctx context.Context,
) ([]*store.Pipeline, error) {
	pipelines, err := s.pipelineStore.ListPipelines(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return pipelines, nil
}

func (s *PipelineService) ListScheduledPipelines(
	ctx context.Context,
) ([]*store.Pipeline, error) {
	pipelines, err := s.pipelineStore.ListScheduledPipelines(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return pipelines, nil
}

func (s *PipelineService) UpdatePipeline(
	ctx context.Context,
	pipelineID int64,
	agentID *int64,
	name, description, branch, source string,
) error {
	if _, err := pipeline.Load([]byte(source)); err != nil {
		return fmt.Errorf("invalid pipeline definition: %w", err)
	}
	return s.pipelineStore.UpdatePipeline(
		ctx,
		pipelineID,
		agentID,
		name,
		description,
		branch,
		source,
	)
}

func (s *PipelineService) UpdatePipelineSchedule(
	ctx context.Context,
	id int64,
	schedule *string,
) error {
	p, err := s.pipelineStore.ReadPipelineByID(ctx, id)
	if err != nil {
		return err
	}

	if p.ScheduleJobID != nil && s.scheduler != nil {
		if err := s.scheduler.RemoveJob(uuid.MustParse(*p.ScheduleJobID)); err != nil {
			log.Println("unable to remove existing job:", err)
		}
	}

	if schedule == nil {
		return s.pipelineStore.UpdatePipelineSchedule(ctx, p.PipelineID, nil, nil)
	}

	jobID, err := s.SchedulePipelineRun(p.PipelineID, *schedule)
	if err != nil {
		return err
	}
	return s.pipelineStore.UpdatePipelineSchedule(ctx, p.PipelineID, schedule, jobID)
}

func (s *PipelineService) DeletePipeline(
	ctx context.Context, pipelineID int64,
) error {
	if err := s.pipelineStore.DeletePipeline(ctx, pipelineID); err != nil {
		return err
	}
	s.ShutdownRunQueue(pipelineID)
	s.RemoveRunQueue(pipelineID)
	return nil
}

func (s *PipelineService) EnqueuePipelineRun(
	ctx context.Context,
	pipelineID int64,
	branch, event string,
) (*store.Run, error) {
	r, err := s.runStore.CreateRun(ctx, pipelineID, branch, event)
	if err != nil {
		return nil, err
	}
	if err := s.EnqueueRun(r); err != nil {
		endedOn := util.AsPtr(time.Now().UTC())
		if sqlErr := s.runStore.UpdateRunEndedOn(
			ctx, r.RunID, store.StatusCancelled, endedOn,
		); sqlErr != nil {
			log.Println("err cancelling unqueued run:", sqlErr)
		}
		return nil, err
	}
	return r, nil
}

// TriggerWebhookRun enqueues a run for a webhook event, honoring the
// pipeline's trigger spec. A filtered-out event is not an error: the
// caller gets a nil run.
func (s *PipelineService) TriggerWebhookRun(
	ctx context.Context,
	pipelineID int64,
	event, branch string,
) (*store.Run, error) {
	pl, err := s.pipelineStore.ReadPipelineByID(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	p, err := pipeline.Load([]byte(pl.Source))
	if err != nil {
		return nil, err
	}
	if branch == "" {
		branch = pl.Branch
	}
	if !p.Triggered(event, branch) {
		return nil, nil
	}
	return s.EnqueuePipelineRun(ctx, pipelineID, branch, event)
}

func (s *PipelineService) GetRunByID(
	ctx context.Context, runID int64,
) (*store.Run, error) {
	return s.runStore.ReadRunByID(ctx, runID)
}

func (s *PipelineService) DeleteRun(
	ctx context.Context, runID int64,
) error {
	return s.runStore.DeleteRun(ctx, runID)
}

func (s *PipelineService) ListPipelineRuns(
	ctx context.Context,
	pipelineID int64,
) ([]store.Run, error) {
	runs, err := s.runStore.ListPipelineRuns(ctx, pipelineID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return runs, nil
}

func (s *PipelineService) ListLatestPipelineRuns(
	ctx context.Context,
	pipelineID, limit int64,
) ([]store.Run, error) {
	return s.runStore.ListLatestPipelineRuns(ctx, pipelineID, limit)
}

func (s *PipelineService) ListPipelineRunsPaginated(
	ctx context.Context,
	pipelineID, limit, offset int64,
) ([]store.Run, error) {
	return s.runStore.ListPipelineRunsPaginated(ctx, pipelineID, limit, offset)
}

func (s *PipelineService) GetPipelineRunCount(
	ctx context.Context, id int64,
) (int64, error) {
	return s.runStore.CountPipelineRuns(ctx, id)
}

func (s *PipelineService) ListRunJobs(
	ctx context.Context, runID int64,
) ([]store.RunJob, error) {
	return s.jobStore.ListRunJobs(ctx, runID)
}

// SchedulePipelines registers cron jobs for every pipeline with a
// stored schedule. Called once on startup, after the queues exist.
func (s *PipelineService) SchedulePipelines(ctx context.Context) error {
	pipelines, err := s.ListScheduledPipelines(ctx)
	if err != nil {
		return err
	}
	for _, p := range pipelines {
		jobID, err := s.SchedulePipelineRun(p.PipelineID, *p.Schedule)
		if err != nil {
			return err
		}
		if err := s.pipelineStore.UpdatePipelineScheduleJobID(
			ctx, p.PipelineID, jobID,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *PipelineService) SchedulePipelineRun(
	pipelineID int64,
	schedule string,
) (*string, error) {
	if s.scheduler == nil {
		return nil, nil
	}
	job, err := s.scheduler.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(func() {
			if _, err := s.EnqueuePipelineRun(
				context.Background(),
				pipelineID,
				"",
				internal.EventSchedule,
			); err != nil {
				log.Println("err enqueuing scheduled run:", err)
			}
		}))
	if err != nil {
		return nil, fmt.Errorf("error scheduling pipeline job: %w", err)
	}
	return util.AsPtr(job.ID().String()), nil
}

func (s *PipelineService) AddRunQueues(ids []int64, maxRuns int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.queues[id] = s.newRunQueue(maxRuns)
	}
}

func (s *PipelineService) StartRunQueues() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.queues {
		go s.queues[i].Run()
	}
}

func (s *PipelineService) AddRunQueue(id int64, maxRuns int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[id] = s.newRunQueue(maxRuns)
}

func (s *PipelineService) newRunQueue(maxRuns int64) *RunQueue {
	return NewRunQueue(
		s,
		s.runStore,
		s.jobStore,
		s.cache,
		s.artifacts,
		s.secrets,
		s.runsRoot,
		int(internal.Config.RunnerSlots),
		maxRuns,
	)
}

func (s *PipelineService) StartRunQueue(id int64) error {
	rq, ok := s.GetPipelineRunQueue(id)
	if !ok {
		return fmt.Errorf("run queue for pipeline %d does not exist", id)
	}
	go rq.Run()
	return nil
}

func (s *PipelineService) GetPipelineRunQueue(id int64) (*RunQueue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rq, ok := s.queues[id]
	return rq, ok
}

func (s *PipelineService) RemoveRunQueue(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queues, id)
}

func (s *PipelineService) EnqueueRun(r *store.Run) error {
	rq, ok := s.GetPipelineRunQueue(r.RunPipelineID)
	if !ok {
		return fmt.Errorf("run queue for pipeline %d does not exist", r.RunPipelineID)
	}
	return rq.Enqueue(r)
}

func (s *PipelineService) CancelRun(pipelineID, runID int64) error {
	rq, ok := s.GetPipelineRunQueue(pipelineID)
	if !ok {
		return fmt.Errorf("run queue for pipeline %d does not exist", pipelineID)
	}
	rq.CancelRun(runID)
	return nil
}

func (s *PipelineService) ShutdownRunQueue(id int64) {
	rq, ok := s.GetPipelineRunQueue(id)
	if !ok {
		return
	}
	rq.Shutdown()
}

func (s *PipelineService) ShutdownAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var wg sync.WaitGroup
	for _, rq := range s.queues {
		wg.Go(func() {
			rq.Shutdown()
		})
	}
	wg.Wait()
}
