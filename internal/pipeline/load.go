package pipeline

import (
	"fmt"

	"github.com/goccy/go-yaml"
)

// Load parses and validates a pipeline document. Validation failures are
// fatal configuration errors: they are reported here, never at runtime.
func Load(source []byte) (*Pipeline, error) {
	p := new(Pipeline)
	if err := yaml.Unmarshal(source, p); err != nil {
		return nil, fmt.Errorf("err unmarshaling pipeline yaml: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) Validate() error {
	if len(p.Jobs) == 0 {
		return fmt.Errorf("pipeline '%s' declares no jobs", p.Name)
	}

	jobs := make(map[string]*Job, len(p.Jobs))
	for i := range p.Jobs {
		j := &p.Jobs[i]
		if j.ID == "" {
			return fmt.Errorf("job at index %d has no id", i)
		}
		if _, ok := jobs[j.ID]; ok {
			return fmt.Errorf("duplicate job id '%s'", j.ID)
		}
		jobs[j.ID] = j
	}

	for _, j := range p.Jobs {
		if err := validateJob(jobs, &j); err != nil {
			return err
		}
	}

	return detectCycles(jobs)
}

func validateJob(jobs map[string]*Job, j *Job) error {
	if !j.Condition.valid(false) {
		return fmt.Errorf("job '%s' has invalid condition '%s'", j.ID, j.Condition)
	}
	for _, need := range j.Needs {
		if need == j.ID {
			return fmt.Errorf("job '%s' needs itself", j.ID)
		}
		if _, ok := jobs[need]; !ok {
			return fmt.Errorf("job '%s' needs unknown job '%s'", j.ID, need)
		}
	}
	if j.Gate != nil {
		if len(j.Steps) > 0 {
			return fmt.Errorf("gate job '%s' cannot declare steps", j.ID)
		}
		needs := make(map[string]bool, len(j.Needs))
		for _, need := range j.Needs {
			needs[need] = true
		}
		for _, watched := range j.Gate.Watch {
			if _, ok := jobs[watched]; !ok {
				return fmt.Errorf("gate job '%s' watches unknown job '%s'", j.ID, watched)
			}
			if !needs[watched] {
				return fmt.Errorf(
					"gate job '%s' watches job '%s' without needing it",
					j.ID, watched,
				)
			}
		}
	}
	for _, s := range j.Steps {
		if err := validateStep(j, &s); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(j *Job, s *Step) error {
	if !s.Condition.valid(true) {
		return fmt.Errorf(
			"step '%s' of job '%s' has invalid condition '%s'",
			s.Name, j.ID, s.Condition,
		)
	}
	if (s.Condition == RunOnCacheMiss || s.Condition == RunOnCacheHit) && j.Cache == nil {
		return fmt.Errorf(
			"step '%s' of job '%s' branches on a cache result but job declares no cache",
			s.Name, j.ID,
		)
	}
	kinds := 0
	if s.Run != "" {
		kinds++
	}
	if s.Probe != nil {
		kinds++
	}
	if s.Report != nil {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf(
			"step '%s' of job '%s' must declare exactly one of run/probe/report",
			s.Name, j.ID,
		)
	}
	if s.Report != nil {
		if s.Report.Path == "" {
			return fmt.Errorf("report step '%s' of job '%s' has no path", s.Name, j.ID)
		}
		if (s.Report.Contains == "") == (s.Report.Query == "") {
			return fmt.Errorf(
				"report step '%s' of job '%s' must declare exactly one of contains/query",
				s.Name, j.ID,
			)
		}
	}
	return nil
}

// detectCycles runs a depth-first search over the needs edges, tracking
// the recursion stack to find back edges.
func detectCycles(jobs map[string]*Job) error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(j *Job) error
	visit = func(j *Job) error {
		if permanent[j.ID] {
			return nil
		}
		if temporary[j.ID] {
			return fmt.Errorf("needs cycle detected involving job '%s'", j.ID)
		}

		temporary[j.ID] = true
		for _, need := range j.Needs {
			if err := visit(jobs[need]); err != nil {
				return err
			}
		}
		delete(temporary, j.ID)
		permanent[j.ID] = true

		return nil
	}

	for _, j := range jobs {
		if !permanent[j.ID] {
			if err := visit(j); err != nil {
				return err
			}
		}
	}
	return nil
}

// JobByID returns the job with the given id, or nil.
func (p *Pipeline) JobByID(id string) *Job {
	for i := range p.Jobs {
		if p.Jobs[i].ID == id {
			return &p.Jobs[i]
		}
	}
	return nil
}

// Triggered reports whether the pipeline accepts the given webhook event
// on the given branch. A pipeline without an `on` block accepts any event.
func (p *Pipeline) Triggered(event, branch string) bool {
	if p.On == nil {
		return true
	}
	switch event {
	case "push":
		if !p.On.Push {
			return false
		}
	case "pull_request":
		if !p.On.PullRequest {
			return false
		}
	default:
		// the `on` block only ever declares push/pull_request
		return false
	}
	if len(p.On.Branches) == 0 {
		return true
	}
	for _, b := range p.On.Branches {
		if b == branch {
			return true
		}
	}
	return false
}
