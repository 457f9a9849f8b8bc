package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/haatos/securegate/internal"
	"github.com/haatos/securegate/internal/pipeline"
)

// Runner executes the jobs of a single run. It satisfies JobExecutor for
// the scheduler: one Runner per run, shared by all of that run's jobs.
// cache is nil when the run targets a remote agent, because cache
// payloads restore into the controller filesystem only.
type Runner struct {
	runID     int64
	factory   ExecutorFactory
	cache     *CacheService
	artifacts *ArtifactService
	secrets   SecretResolver
	client    *http.Client
	outputCh  chan<- string
}

func NewRunner(
	runID int64,
	factory ExecutorFactory,
	cache *CacheService,
	artifacts *ArtifactService,
	secrets SecretResolver,
	outputCh chan<- string,
) *Runner {
	return &Runner{
		runID:     runID,
		factory:   factory,
		cache:     cache,
		artifacts: artifacts,
		secrets:   secrets,
		client:    &http.Client{Timeout: 15 * time.Second},
		outputCh:  outputCh,
	}
}

func (r *Runner) ExecuteJob(
	ctx context.Context,
	job *pipeline.Job,
	statuses StatusLookup,
) error {
	r.outputCh <- fmt.Sprintf("=== job %s ===\n", job.Label())

	if job.Gate != nil {
		return r.executeGate(job, statuses)
	}

	exec, err := r.factory.NewExecutor(job.ID)
	if err != nil {
		return fmt.Errorf("err creating executor for job '%s': %w", job.ID, err)
	}
	defer exec.Close()

	env, err := r.buildEnv(ctx, job)
	if err != nil {
		return err
	}

	cacheRes, err := r.restoreCache(ctx, exec, job)
	if err != nil {
		return err
	}

	firstErr := r.runSteps(ctx, exec, job, env, cacheRes)

	if firstErr == nil && job.Cache != nil && r.cache != nil && !cacheRes.Exact {
		if err := r.cache.Save(ctx, exec.Workdir(), job.Cache, cacheRes); err != nil {
			r.outputCh <- fmt.Sprintf("WARN || cache save failed: %v\n", err)
		} else {
			r.outputCh <- fmt.Sprintf("cache saved under key %s\n", cacheRes.Key)
		}
	}

	r.uploadArtifacts(ctx, exec, job)

	return firstErr
}

func (r *Runner) executeGate(job *pipeline.Job, statuses StatusLookup) error {
	verdict := EvaluateGate(job.Gate.Watch, statuses)
	r.outputCh <- verdict.Summary()
	if !verdict.Pass() {
		return GateFailError{Failed: verdict.Failed}
	}
	return nil
}

// buildEnv merges the job's declared environment with its resolved
// secrets. A secret that cannot be resolved fails the job before any
// step runs, so a misnamed secret never silently expands to "".
func (r *Runner) buildEnv(ctx context.Context, job *pipeline.Job) ([]string, error) {
	env := make([]string, 0, len(job.Env)+len(job.Secrets))
	for k, v := range job.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	for _, name := range job.Secrets {
		if r.secrets == nil {
			return nil, fmt.Errorf("job '%s' requires secret '%s' but no resolver is configured", job.ID, name)
		}
		value, err := r.secrets.ResolveSecret(ctx, name)
		if err != nil {
			return nil, err
		}
		env = append(env, fmt.Sprintf("%s=%s", name, value))
	}
	return env, nil
}

func (r *Runner) restoreCache(
	ctx context.Context,
	exec StepExecutor,
	job *pipeline.Job,
) (CacheResult, error) {
	if job.Cache == nil {
		return CacheResult{}, nil
	}
	if r.cache == nil {
		r.outputCh <- "cache is unavailable on remote agents, treating as miss\n"
		return CacheResult{}, nil
	}
	res, err := r.cache.Restore(ctx, exec.Workdir(), job.Cache)
	if err != nil {
		return res, fmt.Errorf("err restoring cache for job '%s': %w", job.ID, err)
	}
	switch {
	case res.Exact:
		r.outputCh <- fmt.Sprintf("cache hit on key %s\n", res.Key)
	case res.Hit:
		r.outputCh <- fmt.Sprintf("cache restored from a previous key, will re-save as %s\n", res.Key)
	default:
		r.outputCh <- fmt.Sprintf("cache miss on key %s\n", res.Key)
	}
	return res, nil
}

// runSteps executes the steps in declared order. The first failure
// aborts the remainder, except steps marked always, which still run
// during the unwind. Cache conditions branch on the restore result and
// never run once the job is failing.
func (r *Runner) runSteps(
	ctx context.Context,
	exec StepExecutor,
	job *pipeline.Job,
	env []string,
	cacheRes CacheResult,
) error {
	var firstErr error
	for i := range job.Steps {
		step := &job.Steps[i]
		if !stepEligible(step, firstErr, cacheRes) {
			r.outputCh <- fmt.Sprintf("--- skipping step: %s\n", step.Name)
			continue
		}
		r.outputCh <- fmt.Sprintf("--- step: %s\n", step.Name)
		if err := r.runStep(ctx, exec, step, env); err != nil {
			r.outputCh <- fmt.Sprintf("step '%s' failed: %v\n", step.Name, err)
			if firstErr == nil {
				firstErr = err
			}
			if _, ok := err.(RunCancelError); ok {
				return firstErr
			}
		}
	}
	return firstErr
}

func stepEligible(step *pipeline.Step, firstErr error, cacheRes CacheResult) bool {
	switch step.Condition {
	case pipeline.RunAlways:
		return true
	case pipeline.RunOnCacheMiss:
		return firstErr == nil && !cacheRes.Hit
	case pipeline.RunOnCacheHit:
		return firstErr == nil && cacheRes.Hit
	default:
		return firstErr == nil
	}
}

func (r *Runner) runStep(
	ctx context.Context,
	exec StepExecutor,
	step *pipeline.Step,
	env []string,
) error {
	switch {
	case step.Probe != nil:
		return ProbeReadiness(ctx, r.client, probeWithDefaults(step.Probe), r.outputCh)
	case step.Report != nil:
		report, err := exec.ReadFile(step.Report.Path)
		if err != nil {
			return fmt.Errorf("err reading report %s: %w", step.Report.Path, err)
		}
		return EvaluateReport(step.Report, report)
	default:
		stepEnv := env
		if len(step.Env) > 0 {
			stepEnv = make([]string, len(env), len(env)+len(step.Env))
			copy(stepEnv, env)
			for k, v := range step.Env {
				stepEnv = append(stepEnv, fmt.Sprintf("%s=%s", k, v))
			}
		}
		timeout := time.Duration(step.TimeoutSeconds) * time.Second
		return exec.RunCommand(ctx, step.Run, stepEnv, timeout, r.outputCh)
	}
}

func probeWithDefaults(spec *pipeline.ProbeSpec) *pipeline.ProbeSpec {
	if internal.Config == nil {
		return spec
	}
	p := *spec
	if p.Retries == 0 {
		p.Retries = internal.Config.ProbeRetries
	}
	if p.IntervalSeconds == 0 {
		p.IntervalSeconds = internal.Config.ProbeIntervalS
	}
	if p.InitialDelaySeconds == 0 {
		p.InitialDelaySeconds = internal.Config.ProbeInitialDelayS
	}
	return &p
}

// uploadArtifacts persists declared artifacts even for failing jobs, so
// scan reports survive the failures they describe. A missing artifact is
// a warning, not a failure, because the producing step may have been the
// one that failed.
func (r *Runner) uploadArtifacts(ctx context.Context, exec StepExecutor, job *pipeline.Job) {
	for _, spec := range job.Artifacts {
		payload, err := exec.ReadFile(spec.Path)
		if err != nil {
			r.outputCh <- fmt.Sprintf("WARN || artifact '%s' not uploaded: %v\n", spec.Name, err)
			continue
		}
		if _, err := r.artifacts.Upload(ctx, r.runID, job.ID, spec.Name, payload); err != nil {
			r.outputCh <- fmt.Sprintf("WARN || artifact '%s' upload failed: %v\n", spec.Name, err)
			continue
		}
		r.outputCh <- fmt.Sprintf("artifact '%s' uploaded (%d bytes)\n", spec.Name, len(payload))
	}
}
