package service

import (
	"fmt"
	"strings"

	"github.com/haatos/securegate/internal/store"
)

// Verdict maps each watched job to its terminal status, reduced to a
// single pass/fail. Only an explicit Failure fails the gate: a Skipped or
// Cancelled scan passes it. That asymmetry mirrors common CI gate
// behavior and is surfaced as a warning rather than changed.
type Verdict struct {
	Statuses map[string]store.JobStatus
	Failed   []string
	Skipped  []string
}

func (v Verdict) Pass() bool {
	return len(v.Failed) == 0
}

func (v Verdict) Summary() string {
	var sb strings.Builder
	for job, st := range v.Statuses {
		fmt.Fprintf(&sb, "  |  %s: %s\n", job, st)
	}
	if len(v.Skipped) > 0 {
		fmt.Fprintf(
			&sb,
			"WARN || skipped scans pass the gate: %s\n",
			strings.Join(v.Skipped, ", "),
		)
	}
	if v.Pass() {
		sb.WriteString("GATE || PASS\n")
	} else {
		fmt.Fprintf(&sb, "GATE || FAIL: %s\n", strings.Join(v.Failed, ", "))
	}
	return sb.String()
}

// EvaluateGate is computed unconditionally: the gate job runs with an
// always condition, so it is never skipped by upstream failure
// propagation.
func EvaluateGate(watch []string, lookup StatusLookup) Verdict {
	v := Verdict{Statuses: make(map[string]store.JobStatus, len(watch))}
	for _, id := range watch {
		st := lookup(id)
		v.Statuses[id] = st
		switch st {
		case store.JobFailure:
			v.Failed = append(v.Failed, id)
		case store.JobSkipped, store.JobCancelled:
			v.Skipped = append(v.Skipped, id)
		}
	}
	return v
}
