package service

import (
	"bytes"
	"fmt"

	"github.com/haatos/securegate/internal/pipeline"
	"github.com/tidwall/gjson"
)

// Predicate decides whether a report file contains a policy violation.
// Evaluate returns true when the forbidden content is present.
type Predicate interface {
	Evaluate(report []byte) (bool, error)
}

// SubstringPredicate is the default, back-compat evaluation mode: a
// byte-for-byte literal containment test on the raw report text. It is
// deliberately exact about casing and spacing, including the false
// negatives that come with matching a pretty-printed JSON fragment.
type SubstringPredicate struct {
	Literal string
}

func (p SubstringPredicate) Evaluate(report []byte) (bool, error) {
	return bytes.Contains(report, []byte(p.Literal)), nil
}

// QueryPredicate evaluates a gjson path against the parsed report,
// matching when the path resolves. Unlike SubstringPredicate it survives
// reformatted or minified JSON.
type QueryPredicate struct {
	Path string
}

func (p QueryPredicate) Evaluate(report []byte) (bool, error) {
	if !gjson.ValidBytes(report) {
		return false, fmt.Errorf("report is not valid json")
	}
	return gjson.GetBytes(report, p.Path).Exists(), nil
}

func NewPredicate(spec *pipeline.ReportSpec) Predicate {
	if spec.Query != "" {
		return QueryPredicate{Path: spec.Query}
	}
	return SubstringPredicate{Literal: spec.Contains}
}

// EvaluateReport applies the declared predicate and converts a match
// into a step failure.
func EvaluateReport(spec *pipeline.ReportSpec, report []byte) error {
	found, err := NewPredicate(spec).Evaluate(report)
	if err != nil {
		return err
	}
	if found {
		detail := spec.Contains
		if spec.Query != "" {
			detail = spec.Query
		}
		return PolicyViolationError{Path: spec.Path, Detail: detail}
	}
	return nil
}
