package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/haatos/securegate/internal"
	"github.com/haatos/securegate/internal/pipeline"
	"github.com/haatos/securegate/internal/store"
	"github.com/haatos/securegate/internal/util"
)

// PipelineRunData bundles everything a queued run needs to start: the
// pipeline row (with its YAML source) and the agent it targets, private
// key already decrypted. A nil Agent means the controller runs the jobs
// itself.
type PipelineRunData struct {
	Pipeline *store.Pipeline
	Agent    *store.Agent
}

// RunDataProvider resolves the run data for a pipeline. Implemented by
// PipelineService, which owns the decryption of agent keys.
type RunDataProvider interface {
	GetPipelineRunData(ctx context.Context, pipelineID int64) (*PipelineRunData, error)
}

func NewRunQueue(
	data RunDataProvider,
	runStore store.RunStore,
	jobStore store.JobStore,
	cache *CacheService,
	artifacts *ArtifactService,
	secrets SecretResolver,
	runsRoot string,
	slots int,
	maxRuns int64,
) *RunQueue {
	return &RunQueue{
		data:             data,
		runStore:         runStore,
		jobStore:         jobStore,
		cache:            cache,
		artifacts:        artifacts,
		secrets:          secrets,
		runsRoot:         runsRoot,
		slots:            slots,
		OutputSSEClients: NewSSEClientMap[string](),
		StatusSSEClients: NewSSEClientMap[store.RunJob](),
		queue:            make(chan *store.Run, maxRuns),
		done:             make(chan struct{}),
		cancelRunMap:     NewCancelMap[int64](),
	}
}

// RunQueue serializes a pipeline's runs: one runs at a time, up to
// maxRuns wait in the channel. Each pipeline owns its own queue, so
// separate pipelines still run concurrently.
type RunQueue struct {
	data      RunDataProvider
	runStore  store.RunStore
	jobStore  store.JobStore
	cache     *CacheService
	artifacts *ArtifactService
	secrets   SecretResolver
	runsRoot  string
	slots     int

	OutputSSEClients *SSEClientMap[string]
	StatusSSEClients *SSEClientMap[store.RunJob]

	queue        chan *store.Run
	done         chan struct{}
	cancelRunMap *CancelMap[int64]

	outputCh chan string
	mu       sync.Mutex
}

func (rq *RunQueue) CancelRun(runID int64) {
	rq.cancelRunMap.Call(runID)
}

func (rq *RunQueue) Enqueue(r *store.Run) error {
	select {
	case rq.queue <- r:
		return nil
	default:
		return NewErrRunQueueFull()
	}
}

func (rq *RunQueue) Run() {
	for {
		select {
		case run := <-rq.queue:
			rq.outputCh = make(chan string)

			ctx, cancel := context.WithCancel(context.Background())
			rq.cancelRunMap.AddCancel(run.RunID, cancel)

			outputDone := make(chan struct{})
			go rq.handleOutput(run.RunID, outputDone)

			if err := rq.processRun(ctx, run); err != nil {
				status := store.StatusFailed
				if _, ok := err.(RunCancelError); ok {
					status = store.StatusCancelled
				}
				if sqlErr := rq.runStore.UpdateRunEndedOn(
					context.Background(),
					run.RunID,
					status,
					util.AsPtr(time.Now().UTC()),
				); sqlErr != nil {
					log.Println("err updating run status:", errors.Join(err, sqlErr))
				}
				log.Println("err processing run:", err)

				rq.outputCh <- fmt.Sprintf(`
=============================================
FAIL || %v
=============================================
`, err)
			}

			close(rq.outputCh)
			<-outputDone
			rq.cancelRunMap.RemoveCancel(run.RunID)
			cancel()
		case <-rq.done:
			close(rq.queue)
			return
		}
	}
}

func (rq *RunQueue) Shutdown() {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	select {
	case <-rq.done:
	default:
		close(rq.done)
	}
}

func (rq *RunQueue) handleOutput(runID int64, done chan<- struct{}) {
	defer close(done)
	for out := range rq.outputCh {
		if err := rq.runStore.AppendRunOutput(context.Background(), runID, out); err != nil {
			log.Printf("err appending run output: %+v\n", err)
		}
		rq.OutputSSEClients.SendToClients(out)
	}
}

func (rq *RunQueue) processRun(ctx context.Context, run *store.Run) error {
	prd, err := rq.data.GetPipelineRunData(ctx, run.RunPipelineID)
	if err != nil {
		rq.outputCh <- fmt.Sprintf("err getting pipeline/agent: %+v\n", err)
		return err
	}

	p, err := pipeline.Load([]byte(prd.Pipeline.Source))
	if err != nil {
		rq.outputCh <- fmt.Sprintf("err loading pipeline definition: %+v\n", err)
		return err
	}

	if err := rq.runStore.UpdateRunStartedOn(
		context.Background(),
		run.RunID,
		store.StatusRunning,
		util.AsPtr(time.Now().UTC()),
	); err != nil {
		rq.outputCh <- "err updating run started on\n"
		return err
	}

	for _, j := range p.Jobs {
		if _, err := rq.jobStore.CreateRunJob(
			context.Background(), run.RunID, j.ID, j.Label(),
		); err != nil {
			rq.outputCh <- fmt.Sprintf("err creating job row for '%s'\n", j.ID)
			return err
		}
	}

	rq.outputCh <- fmt.Sprintf("Loaded pipeline %s. Starting %d jobs...\n", p.Name, len(p.Jobs))

	runner, err := rq.newRunner(run, prd)
	if err != nil {
		return err
	}

	onStatus := func(jobID string, status store.JobStatus) {
		if err := rq.jobStore.UpdateRunJobStatus(
			context.Background(), run.RunID, jobID, status,
		); err != nil {
			log.Printf("err updating job '%s' status: %+v\n", jobID, err)
		}
		rq.StatusSSEClients.SendToClients(store.RunJob{
			JobRunID: run.RunID,
			JobKey:   jobID,
			Status:   status,
		})
	}

	statuses, err := NewScheduler(runner, rq.slots, onStatus).Run(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			return RunCancelError{Message: "run was cancelled"}
		}
		return err
	}

	for id, st := range statuses {
		if st == store.JobFailure {
			return fmt.Errorf("job '%s' failed", id)
		}
		if st == store.JobCancelled {
			return RunCancelError{Message: "run was cancelled"}
		}
	}

	rq.outputCh <- `
=============================================
PASS || All jobs completed, gate passed.
=============================================
`

	if err := rq.runStore.UpdateRunEndedOn(
		context.Background(),
		run.RunID,
		store.StatusPassed,
		util.AsPtr(time.Now().UTC()),
	); err != nil {
		rq.outputCh <- "err updating run ended on\n"
		return err
	}

	return nil
}

// newRunner picks the execution target. Controller runs use the local
// filesystem and the shared cache; remote agents get an SSH factory and
// no cache, since payloads would have to cross the wire both ways.
func (rq *RunQueue) newRunner(run *store.Run, prd *PipelineRunData) (*Runner, error) {
	runDir := fmt.Sprintf("%s_%d", time.Now().UTC().Format(internal.RunDirLayout), run.RunID)

	if prd.Agent == nil || prd.Agent.IsController() {
		factory := &LocalExecutorFactory{Root: filepath.Join(rq.runsRoot, runDir)}
		return NewRunner(
			run.RunID, factory, rq.cache, rq.artifacts, rq.secrets, rq.outputCh,
		), nil
	}

	agent := *prd.Agent
	agent.Workspace = path.Join(agent.Workspace, runDir)
	factory := &SSHExecutorFactory{Agent: &agent}
	return NewRunner(
		run.RunID, factory, nil, rq.artifacts, rq.secrets, rq.outputCh,
	), nil
}
