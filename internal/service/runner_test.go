package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haatos/securegate/internal/pipeline"
	"github.com/haatos/securegate/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCacheStore struct {
	mu      sync.Mutex
	entries map[string]*store.CacheEntry
}

func newFakeCacheStore() *fakeCacheStore {
	return &fakeCacheStore{entries: make(map[string]*store.CacheEntry)}
}

func (f *fakeCacheStore) Restore(
	ctx context.Context,
	key string,
	restoreKeys []string,
) (*store.CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[key]; ok {
		return e, nil
	}
	for _, prefix := range restoreKeys {
		for k, e := range f.entries {
			if strings.HasPrefix(k, prefix) {
				return e, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeCacheStore) Save(ctx context.Context, key, namespace string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = &store.CacheEntry{
		CacheKey:  key,
		Namespace: namespace,
		Payload:   payload,
		Size:      int64(len(payload)),
	}
	return nil
}

func (f *fakeCacheStore) Prune(ctx context.Context, capacity int64) (int64, error) {
	return 0, nil
}

type fakeArtifactStore struct {
	mu       sync.Mutex
	payloads map[string][]byte
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{payloads: make(map[string][]byte)}
}

func (f *fakeArtifactStore) UploadArtifact(
	ctx context.Context,
	runID int64,
	jobKey, name string,
	payload []byte,
) (*store.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[name] = payload
	return &store.Artifact{
		ArtifactRunID: runID,
		JobKey:        jobKey,
		Name:          name,
		Size:          int64(len(payload)),
	}, nil
}

func (f *fakeArtifactStore) DownloadArtifact(
	ctx context.Context,
	runID int64,
	name string,
) (*store.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.payloads[name]
	if !ok {
		return nil, store.ErrArtifactNotFound{Name: name}
	}
	return &store.Artifact{ArtifactRunID: runID, Name: name, Payload: payload}, nil
}

func (f *fakeArtifactStore) ListRunArtifacts(
	ctx context.Context,
	runID int64,
) ([]store.Artifact, error) {
	return nil, nil
}

type mapSecretResolver map[string]string

func (m mapSecretResolver) ResolveSecret(ctx context.Context, name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", fmt.Errorf("secret '%s' not found", name)
	}
	return v, nil
}

type runnerFixture struct {
	runner    *Runner
	root      string
	artifacts *fakeArtifactStore
	cache     *fakeCacheStore
	output    *strings.Builder
	drain     func() string
}

func newRunnerFixture(t *testing.T, secrets mapSecretResolver) *runnerFixture {
	t.Helper()
	root := t.TempDir()

	f := &runnerFixture{
		root:      root,
		artifacts: newFakeArtifactStore(),
		cache:     newFakeCacheStore(),
		output:    &strings.Builder{},
	}

	outputCh := make(chan string)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for out := range outputCh {
			f.output.WriteString(out)
		}
	}()
	f.drain = func() string {
		close(outputCh)
		<-done
		return f.output.String()
	}

	f.runner = NewRunner(
		1,
		&LocalExecutorFactory{Root: root},
		NewCacheService(f.cache),
		NewArtifactService(f.artifacts),
		secrets,
		outputCh,
	)
	return f
}

func noStatuses(jobID string) store.JobStatus {
	return store.JobSuccess
}

func TestRunnerRunsStepsInOrder(t *testing.T) {
	f := newRunnerFixture(t, nil)
	job := &pipeline.Job{
		ID: "build",
		Steps: []pipeline.Step{
			{Name: "first", Run: "echo one > order.txt"},
			{Name: "second", Run: "echo two >> order.txt"},
		},
	}

	err := f.runner.ExecuteJob(context.Background(), job, noStatuses)
	f.drain()

	assert.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(f.root, "build", "order.txt"))
	assert.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(b))
}

func TestRunnerInjectsEnvAndSecrets(t *testing.T) {
	f := newRunnerFixture(t, mapSecretResolver{"SCAN_TOKEN": "hunter2"})
	job := &pipeline.Job{
		ID:      "scan",
		Env:     map[string]string{"TARGET": "http://localhost:8080"},
		Secrets: []string{"SCAN_TOKEN"},
		Steps: []pipeline.Step{
			{Name: "dump", Run: `printf '%s %s' "$TARGET" "$SCAN_TOKEN" > env.txt`},
		},
	}

	err := f.runner.ExecuteJob(context.Background(), job, noStatuses)
	f.drain()

	assert.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(f.root, "scan", "env.txt"))
	assert.NoError(t, err)
	assert.Equal(t, "http://localhost:8080 hunter2", string(b))
}

func TestRunnerFailsOnUnresolvableSecret(t *testing.T) {
	f := newRunnerFixture(t, mapSecretResolver{})
	job := &pipeline.Job{
		ID:      "scan",
		Secrets: []string{"MISSING"},
		Steps: []pipeline.Step{
			{Name: "never", Run: "echo ran > ran.txt"},
		},
	}

	err := f.runner.ExecuteJob(context.Background(), job, noStatuses)
	f.drain()

	assert.Error(t, err)
	exists, _ := os.Stat(filepath.Join(f.root, "scan", "ran.txt"))
	assert.Nil(t, exists)
}

func TestRunnerFailureAbortsRemainingStepsExceptAlways(t *testing.T) {
	f := newRunnerFixture(t, nil)
	job := &pipeline.Job{
		ID: "scan",
		Steps: []pipeline.Step{
			{Name: "break", Run: "exit 3"},
			{Name: "skipped", Run: "echo no > skipped.txt"},
			{Name: "cleanup", Run: "echo yes > cleanup.txt", Condition: pipeline.RunAlways},
		},
	}

	err := f.runner.ExecuteJob(context.Background(), job, noStatuses)
	out := f.drain()

	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(f.root, "scan", "skipped.txt"))
	assert.True(t, os.IsNotExist(statErr))
	b, readErr := os.ReadFile(filepath.Join(f.root, "scan", "cleanup.txt"))
	assert.NoError(t, readErr)
	assert.Equal(t, "yes\n", string(b))
	assert.Contains(t, out, "skipping step: skipped")
}

func TestRunnerReportStepFailsOnPolicyViolation(t *testing.T) {
	f := newRunnerFixture(t, nil)
	job := &pipeline.Job{
		ID: "sast",
		Steps: []pipeline.Step{
			{Name: "scan", Run: `printf '%s' '{"results": [{"severity": "ERROR"}]}' > report.json`},
			{
				Name: "evaluate",
				Report: &pipeline.ReportSpec{
					Path:     "report.json",
					Contains: `"severity": "ERROR"`,
				},
			},
		},
	}

	err := f.runner.ExecuteJob(context.Background(), job, noStatuses)
	f.drain()

	var pve PolicyViolationError
	assert.ErrorAs(t, err, &pve)
}

func TestRunnerCacheHitSkipsGuardedStep(t *testing.T) {
	f := newRunnerFixture(t, nil)
	cacheSpec := &pipeline.CacheSpec{
		Namespace: "depcheck",
		Paths:     []string{"data"},
		KeyFiles:  []string{"lockfile.txt"},
	}
	job := &pipeline.Job{
		ID:    "sca",
		Cache: cacheSpec,
		Steps: []pipeline.Step{
			{
				Name:      "download db",
				Run:       "mkdir -p data && echo nvd > data/db.txt && echo fetched > fetched.txt",
				Condition: pipeline.RunOnCacheMiss,
			},
			{Name: "scan", Run: "cat data/db.txt > scanned.txt"},
		},
	}

	// first run: miss, rebuild, save
	err := f.runner.ExecuteJob(context.Background(), job, noStatuses)
	out := f.drain()
	assert.NoError(t, err)
	assert.Contains(t, out, "cache miss")
	assert.Contains(t, out, "cache saved")
	assert.Len(t, f.cache.entries, 1)

	// second run in a fresh working directory: exact hit, guarded
	// rebuild skipped, restored payload still served the scan
	job2 := *job
	job2.ID = "sca-again"
	outputCh := make(chan string)
	done := make(chan struct{})
	sb := &strings.Builder{}
	go func() {
		defer close(done)
		for o := range outputCh {
			sb.WriteString(o)
		}
	}()
	runner2 := NewRunner(
		2,
		&LocalExecutorFactory{Root: f.root},
		NewCacheService(f.cache),
		NewArtifactService(f.artifacts),
		nil,
		outputCh,
	)

	err = runner2.ExecuteJob(context.Background(), &job2, noStatuses)
	close(outputCh)
	<-done

	assert.NoError(t, err)
	assert.Contains(t, sb.String(), "cache hit")
	assert.Contains(t, sb.String(), "skipping step: download db")
	_, statErr := os.Stat(filepath.Join(f.root, "sca-again", "fetched.txt"))
	assert.True(t, os.IsNotExist(statErr))
	b, readErr := os.ReadFile(filepath.Join(f.root, "sca-again", "scanned.txt"))
	assert.NoError(t, readErr)
	assert.Equal(t, "nvd\n", string(b))
	assert.Len(t, f.cache.entries, 1)
}

func TestRunnerPrefixCacheHitSkipsRebuildButResaves(t *testing.T) {
	f := newRunnerFixture(t, nil)
	cacheSpec := &pipeline.CacheSpec{
		Namespace: "depcheck",
		Paths:     []string{"data"},
		KeyFiles:  []string{"lockfile.txt"},
	}
	job := &pipeline.Job{
		ID:    "sca",
		Cache: cacheSpec,
		Steps: []pipeline.Step{
			{
				Name:      "download db",
				Run:       "mkdir -p data && echo nvd > data/db.txt",
				Condition: pipeline.RunOnCacheMiss,
			},
			{Name: "scan", Run: "cat data/db.txt > scanned.txt"},
		},
	}

	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "sca"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(f.root, "sca", "lockfile.txt"), []byte("deps v1\n"), 0o644,
	))
	err := f.runner.ExecuteJob(context.Background(), job, noStatuses)
	f.drain()
	require.NoError(t, err)
	require.Len(t, f.cache.entries, 1)

	// changed lockfile: exact key misses, the namespace prefix still
	// matches the previous entry, so the rebuild is skipped but the
	// payload is re-saved under the new exact key
	job2 := *job
	job2.ID = "sca-v2"
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "sca-v2"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(f.root, "sca-v2", "lockfile.txt"), []byte("deps v2\n"), 0o644,
	))

	outputCh := make(chan string)
	done := make(chan struct{})
	sb := &strings.Builder{}
	go func() {
		defer close(done)
		for o := range outputCh {
			sb.WriteString(o)
		}
	}()
	runner2 := NewRunner(
		2,
		&LocalExecutorFactory{Root: f.root},
		NewCacheService(f.cache),
		NewArtifactService(f.artifacts),
		nil,
		outputCh,
	)

	err = runner2.ExecuteJob(context.Background(), &job2, noStatuses)
	close(outputCh)
	<-done

	assert.NoError(t, err)
	assert.Contains(t, sb.String(), "cache restored from a previous key")
	assert.Contains(t, sb.String(), "skipping step: download db")
	assert.Contains(t, sb.String(), "cache saved")
	b, readErr := os.ReadFile(filepath.Join(f.root, "sca-v2", "scanned.txt"))
	assert.NoError(t, readErr)
	assert.Equal(t, "nvd\n", string(b))
	assert.Len(t, f.cache.entries, 2)
}

func TestRunnerUploadsArtifactsEvenOnFailure(t *testing.T) {
	f := newRunnerFixture(t, nil)
	job := &pipeline.Job{
		ID: "dast",
		Artifacts: []pipeline.ArtifactSpec{
			{Name: "zap-report", Path: "zap.html"},
			{Name: "never-produced", Path: "missing.html"},
		},
		Steps: []pipeline.Step{
			{Name: "scan", Run: "echo '<html>findings</html>' > zap.html && exit 1"},
		},
	}

	err := f.runner.ExecuteJob(context.Background(), job, noStatuses)
	out := f.drain()

	assert.Error(t, err)
	assert.Equal(t, "<html>findings</html>\n", string(f.artifacts.payloads["zap-report"]))
	assert.NotContains(t, f.artifacts.payloads, "never-produced")
	assert.Contains(t, out, "artifact 'never-produced' not uploaded")
}

func TestRunnerGateJob(t *testing.T) {
	f := newRunnerFixture(t, nil)
	job := &pipeline.Job{
		ID:    "security-gate",
		Needs: []string{"tests", "sast"},
		Gate:  &pipeline.GateSpec{Watch: []string{"tests", "sast"}},
	}

	statuses := map[string]store.JobStatus{
		"tests": store.JobSuccess,
		"sast":  store.JobFailure,
	}
	err := f.runner.ExecuteJob(context.Background(), job, lookupFrom(statuses))
	out := f.drain()

	var gfe GateFailError
	assert.ErrorAs(t, err, &gfe)
	assert.Equal(t, []string{"sast"}, gfe.Failed)
	assert.Contains(t, out, "GATE || FAIL: sast")
}

func TestRunnerStepTimeout(t *testing.T) {
	f := newRunnerFixture(t, nil)
	job := &pipeline.Job{
		ID: "slow",
		Steps: []pipeline.Step{
			{Name: "hang", Run: "sleep 30", TimeoutSeconds: 1},
		},
	}

	start := time.Now()
	err := f.runner.ExecuteJob(context.Background(), job, noStatuses)
	f.drain()

	assert.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
}
