// Package remediation contains the scan-and-mutate core: per-volume
// inspection, key-protector reconciliation, protection resume, and the run
// coordinator that ties them together under one status-code contract.
package remediation

import (
	"fmt"
	"strings"
	"time"
)

// Aggregate status codes. StatusWarning is negative on purpose: the exit
// contract normalizes negative codes to 0, so a soft anomaly never fails a
// compliance run.
const (
	StatusOK      = 0
	StatusFail    = 1
	StatusWarning = -1
)

// Mode selects the run behavior.
type Mode string

const (
	// ModeDetect is a read-only scan that stops at the first
	// non-compliant volume.
	ModeDetect Mode = "detect"
	// ModeRemediate rewrites the protector set of every non-compliant
	// volume found.
	ModeRemediate Mode = "remediate"
)

// VolumeOutcome records what happened to one scanned volume, for reporting.
type VolumeOutcome struct {
	Letter  string `json:"letter"`
	Outcome string `json:"outcome"` // detected, updated, skipped, error
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RunResult accumulates the status code and summary clauses of a run. The
// code always reflects the worst outcome observed.
type RunResult struct {
	Mode     Mode
	Code     int
	Clauses  []string
	Volumes  []VolumeOutcome
	Started  time.Time
	Finished time.Time
}

// Append adds one summary clause in event order.
func (r *RunResult) Append(clause string) {
	r.Clauses = append(r.Clauses, clause)
}

// Merge folds a status code into the accumulated one under the worst-of
// ordering FAIL > WARNING > OK. A warning never overrides a failure.
func (r *RunResult) Merge(code int) {
	if r.Code == StatusFail {
		return
	}
	switch code {
	case StatusFail:
		r.Code = StatusFail
	case StatusWarning:
		if r.Code == StatusOK {
			r.Code = StatusWarning
		}
	}
}

// Prefix derives the summary-line tier from the pre-normalization code.
func (r *RunResult) Prefix() string {
	switch r.Code {
	case StatusOK:
		return "OK"
	case StatusFail:
		return "FAIL"
	default:
		return "WARNING"
	}
}

// ExitCode is the final process exit code. Negative warning codes collapse
// to 0: warnings are visible on the summary line but never fail the run.
func (r *RunResult) ExitCode() int {
	if r.Code < 0 {
		return 0
	}
	return r.Code
}

// SummaryLine renders the single console line emitted at run end.
func (r *RunResult) SummaryLine(at time.Time) string {
	return fmt.Sprintf("%s %s = %s", r.Prefix(), at.Format("2006-01-02 15:04:05"), strings.Join(r.Clauses, "; "))
}
