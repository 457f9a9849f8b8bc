package service

import (
	"testing"

	"github.com/haatos/securegate/internal/store"
	"github.com/stretchr/testify/assert"
)

func lookupFrom(m map[string]store.JobStatus) StatusLookup {
	return func(jobID string) store.JobStatus {
		return m[jobID]
	}
}

func TestGatePassesWhenAllWatchedSucceed(t *testing.T) {
	watch := []string{"tests", "sca", "sast"}
	v := EvaluateGate(watch, lookupFrom(map[string]store.JobStatus{
		"tests": store.JobSuccess,
		"sca":   store.JobSuccess,
		"sast":  store.JobSuccess,
	}))

	assert.True(t, v.Pass())
	assert.Empty(t, v.Failed)
	assert.Contains(t, v.Summary(), "GATE || PASS")
}

func TestGateFailsOnSingleFailure(t *testing.T) {
	watch := []string{"tests", "sca", "sast"}
	v := EvaluateGate(watch, lookupFrom(map[string]store.JobStatus{
		"tests": store.JobSuccess,
		"sca":   store.JobFailure,
		"sast":  store.JobSuccess,
	}))

	assert.False(t, v.Pass())
	assert.Equal(t, []string{"sca"}, v.Failed)
	assert.Contains(t, v.Summary(), "GATE || FAIL: sca")
}

func TestGateSkippedAndCancelledPass(t *testing.T) {
	watch := []string{"tests", "sca", "dast"}
	v := EvaluateGate(watch, lookupFrom(map[string]store.JobStatus{
		"tests": store.JobSuccess,
		"sca":   store.JobSkipped,
		"dast":  store.JobCancelled,
	}))

	assert.True(t, v.Pass())
	assert.ElementsMatch(t, []string{"sca", "dast"}, v.Skipped)
	assert.Contains(t, v.Summary(), "WARN || skipped scans pass the gate")
}

func TestGateCollectsAllFailures(t *testing.T) {
	watch := []string{"a", "b", "c"}
	v := EvaluateGate(watch, lookupFrom(map[string]store.JobStatus{
		"a": store.JobFailure,
		"b": store.JobFailure,
		"c": store.JobSuccess,
	}))

	assert.False(t, v.Pass())
	assert.ElementsMatch(t, []string{"a", "b"}, v.Failed)
}
