package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/haatos/securegate/internal/pipeline"
	"github.com/haatos/securegate/internal/store"
)

// StatusLookup reads another job's current status. Lookups on jobs named
// in `needs` or a gate's watch list always see a terminal status, because
// the scheduler starts a job only after its needs have settled.
type StatusLookup func(jobID string) store.JobStatus

// JobExecutor runs one job to completion. A returned error marks the job
// Failure (or Cancelled when the context was cancelled).
type JobExecutor interface {
	ExecuteJob(ctx context.Context, job *pipeline.Job, statuses StatusLookup) error
}

// Scheduler executes a validated pipeline DAG. Ready jobs run
// concurrently on a bounded runner-slot pool; a job occupies one slot for
// its entire duration. Dependents wait for terminal upstream status, and
// failure propagation skips them unless their condition overrides it.
type Scheduler struct {
	executor JobExecutor
	slots    int
	onStatus func(jobID string, status store.JobStatus)
}

func NewScheduler(
	executor JobExecutor,
	slots int,
	onStatus func(string, store.JobStatus),
) *Scheduler {
	if slots < 1 {
		slots = 1
	}
	return &Scheduler{executor: executor, slots: slots, onStatus: onStatus}
}

type jobResult struct {
	id     string
	status store.JobStatus
}

func (s *Scheduler) Run(
	ctx context.Context,
	p *pipeline.Pipeline,
) (map[string]store.JobStatus, error) {
	statuses := make(map[string]store.JobStatus, len(p.Jobs))
	for _, j := range p.Jobs {
		statuses[j.ID] = store.JobPending
	}

	var mu sync.Mutex
	lookup := func(id string) store.JobStatus {
		mu.Lock()
		defer mu.Unlock()
		return statuses[id]
	}
	set := func(id string, st store.JobStatus) {
		mu.Lock()
		statuses[id] = st
		mu.Unlock()
		if s.onStatus != nil {
			s.onStatus(id, st)
		}
	}

	sem := make(chan struct{}, s.slots)
	results := make(chan jobResult)
	pending := len(p.Jobs)
	inFlight := 0

	for pending > 0 || inFlight > 0 {
		progress := true
		for progress {
			progress = false
			for i := range p.Jobs {
				j := &p.Jobs[i]
				if lookup(j.ID) != store.JobPending {
					continue
				}
				if !s.needsTerminal(j, lookup) {
					continue
				}
				if ctx.Err() != nil {
					set(j.ID, store.JobCancelled)
					pending--
					progress = true
					continue
				}
				if !s.eligible(j, lookup) {
					set(j.ID, store.JobSkipped)
					pending--
					progress = true
					continue
				}
				select {
				case sem <- struct{}{}:
					set(j.ID, store.JobRunning)
					pending--
					inFlight++
					progress = true
					go s.runJob(ctx, j, lookup, sem, results)
				default:
					// no free runner slot; the job stays queued
				}
			}
		}

		if inFlight == 0 {
			if pending > 0 {
				// cannot happen on a validated DAG
				return statuses, fmt.Errorf(
					"scheduler stalled with %d jobs unresolved", pending,
				)
			}
			break
		}

		res := <-results
		inFlight--
		set(res.id, res.status)
	}

	return statuses, nil
}

func (s *Scheduler) runJob(
	ctx context.Context,
	j *pipeline.Job,
	lookup StatusLookup,
	sem chan struct{},
	results chan<- jobResult,
) {
	err := s.executor.ExecuteJob(ctx, j, lookup)
	st := store.JobSuccess
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			st = store.JobCancelled
		} else {
			st = store.JobFailure
		}
	}
	<-sem
	results <- jobResult{id: j.ID, status: st}
}

func (s *Scheduler) needsTerminal(j *pipeline.Job, lookup StatusLookup) bool {
	for _, need := range j.Needs {
		if !lookup(need).Terminal() {
			return false
		}
	}
	return true
}

// eligible applies failure propagation once all needs are terminal. A
// RunAlways job runs no matter what happened upstream; a RunOnFailure job
// runs only when a need failed outright; the default runs only when every
// need succeeded.
func (s *Scheduler) eligible(j *pipeline.Job, lookup StatusLookup) bool {
	failed := false
	notSucceeded := false
	for _, need := range j.Needs {
		switch lookup(need) {
		case store.JobFailure:
			failed = true
			notSucceeded = true
		case store.JobSkipped, store.JobCancelled:
			notSucceeded = true
		}
	}
	switch j.Condition {
	case pipeline.RunAlways:
		return true
	case pipeline.RunOnFailure:
		return failed
	default:
		return !notSucceeded
	}
}
