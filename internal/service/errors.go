package service

import (
	"fmt"
	"strings"
)

type ErrRunQueueFull struct{}

func (e ErrRunQueueFull) Error() string {
	return "run queue is full"
}

func NewErrRunQueueFull() ErrRunQueueFull {
	return ErrRunQueueFull{}
}

type RunCancelError struct {
	Message string
}

func (rce RunCancelError) Error() string {
	return rce.Message
}

// PolicyViolationError marks a report predicate match. It is returned as
// a plain step failure so it propagates exactly like a tool crash.
type PolicyViolationError struct {
	Path   string
	Detail string
}

func (pve PolicyViolationError) Error() string {
	return fmt.Sprintf("report %s violates policy: %s", pve.Path, pve.Detail)
}

// GateFailError is the non-zero exit of a gate job.
type GateFailError struct {
	Failed []string
}

func (gfe GateFailError) Error() string {
	return fmt.Sprintf("gate failed: watched jobs failed: %s", strings.Join(gfe.Failed, ", "))
}
