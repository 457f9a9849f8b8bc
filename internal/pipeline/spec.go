package pipeline

// Condition controls whether a job or step runs once its dependencies
// (for jobs) or preceding steps (for steps) have settled.
type Condition string

const (
	// RunOnSuccess is the default: run only when everything upstream succeeded.
	RunOnSuccess Condition = "on-success"
	// RunAlways runs regardless of upstream outcome. On a job it overrides
	// failure propagation; on a step it also executes during abort unwind.
	RunAlways Condition = "always"
	// RunOnFailure runs only when at least one upstream dependency failed.
	RunOnFailure Condition = "on-failure"
	// RunOnCacheMiss and RunOnCacheHit are step-only conditions branching on
	// the job's cache restore result.
	RunOnCacheMiss Condition = "on-cache-miss"
	RunOnCacheHit  Condition = "on-cache-hit"
)

func (c Condition) valid(step bool) bool {
	switch c {
	case "", RunOnSuccess, RunAlways:
		return true
	case RunOnFailure:
		return !step
	case RunOnCacheMiss, RunOnCacheHit:
		return step
	}
	return false
}

type Pipeline struct {
	Name string        `yaml:"name"`
	On   *TriggerSpec  `yaml:"on,omitempty"`
	Jobs []Job         `yaml:"jobs"`
}

// TriggerSpec limits which webhook events enqueue a run.
type TriggerSpec struct {
	Push        bool     `yaml:"push"`
	PullRequest bool     `yaml:"pull_request"`
	Branches    []string `yaml:"branches,omitempty"`
}

type Job struct {
	ID        string            `yaml:"job"`
	Name      string            `yaml:"name,omitempty"`
	Needs     []string          `yaml:"needs,omitempty"`
	Condition Condition         `yaml:"if,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	Secrets   []string          `yaml:"secrets,omitempty"`
	Cache     *CacheSpec        `yaml:"cache,omitempty"`
	Artifacts []ArtifactSpec    `yaml:"artifacts,omitempty"`
	Gate      *GateSpec         `yaml:"gate,omitempty"`
	Steps     []Step            `yaml:"steps,omitempty"`
}

func (j *Job) Label() string {
	if j.Name != "" {
		return j.Name
	}
	return j.ID
}

type Step struct {
	Name           string            `yaml:"step"`
	Run            string            `yaml:"run,omitempty"`
	Condition      Condition         `yaml:"if,omitempty"`
	Env            map[string]string `yaml:"env,omitempty"`
	TimeoutSeconds int64             `yaml:"timeout_seconds,omitempty"`
	Probe          *ProbeSpec        `yaml:"probe,omitempty"`
	Report         *ReportSpec       `yaml:"report,omitempty"`
}

// CacheSpec declares a restorable payload keyed by a hash of the input
// file set. Restore keys are prefixes tried in order after an exact miss.
type CacheSpec struct {
	Namespace   string   `yaml:"namespace"`
	Paths       []string `yaml:"paths"`
	KeyFiles    []string `yaml:"key_files"`
	RestoreKeys []string `yaml:"restore_keys,omitempty"`
}

type ArtifactSpec struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// ProbeSpec waits for a service to become reachable: a fixed initial
// delay, then a bounded retry loop with fixed spacing.
type ProbeSpec struct {
	URL                 string `yaml:"url"`
	InitialDelaySeconds int64  `yaml:"initial_delay_seconds"`
	Retries             int64  `yaml:"retries"`
	IntervalSeconds     int64  `yaml:"interval_seconds"`
}

// ReportSpec applies a policy predicate to a report file produced by an
// earlier step. Contains is a literal byte-for-byte substring match;
// Query is a gjson path that fails the step when it resolves.
type ReportSpec struct {
	Path     string `yaml:"path"`
	Contains string `yaml:"contains,omitempty"`
	Query    string `yaml:"query,omitempty"`
}

type GateSpec struct {
	Watch []string `yaml:"watch"`
}
