// Package system runs preflight diagnostics: everything the remediation
// needs from the host, checked before any mutation is attempted.
package system

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/bitlocker"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/security"
)

// DiagnosticTest identifies one preflight check.
type DiagnosticTest string

const (
	TestPermissions DiagnosticTest = "permissions"
	TestHost        DiagnosticTest = "host"
	TestVolumes     DiagnosticTest = "volumes"
	TestEncryption  DiagnosticTest = "encryption"
)

// DiagnosticResult contains the outcome of one check.
type DiagnosticResult struct {
	Test      DiagnosticTest `json:"test"`
	Status    string         `json:"status"` // PASS, FAIL, WARN
	Message   string         `json:"message"`
	Duration  time.Duration  `json:"duration"`
	Timestamp time.Time      `json:"timestamp"`
}

// DiagnosticSummary counts check outcomes.
type DiagnosticSummary struct {
	TotalTests int `json:"total_tests"`
	Passed     int `json:"passed"`
	Failed     int `json:"failed"`
	Warnings   int `json:"warnings"`
}

// SystemEnvironment describes the host the checks ran on.
type SystemEnvironment struct {
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	Username     string `json:"username"`
	MachineName  string `json:"machine_name"`
	IsAdmin      bool   `json:"is_admin"`
	IsServer     bool   `json:"is_server"`
}

// Diagnostics is the full preflight report.
type Diagnostics struct {
	StartTime   time.Time          `json:"start_time"`
	EndTime     time.Time          `json:"end_time"`
	Duration    time.Duration      `json:"duration"`
	Overall     string             `json:"overall"` // HEALTHY, WARNING, CRITICAL
	Results     []DiagnosticResult `json:"results"`
	Summary     DiagnosticSummary  `json:"summary"`
	Environment SystemEnvironment  `json:"environment"`
}

// DiagnosticsRunner executes the preflight checks against the encryption
// management surface.
type DiagnosticsRunner struct {
	mgr bitlocker.Manager
}

func NewDiagnosticsRunner(mgr bitlocker.Manager) *DiagnosticsRunner {
	return &DiagnosticsRunner{mgr: mgr}
}

// Run executes every check and aggregates the outcome.
func (r *DiagnosticsRunner) Run(ctx context.Context) (*Diagnostics, error) {
	diag := &Diagnostics{
		StartTime:   time.Now(),
		Results:     make([]DiagnosticResult, 0, 4),
		Environment: collectEnvironment(),
	}

	tests := []DiagnosticTest{TestPermissions, TestHost, TestVolumes, TestEncryption}
	for _, test := range tests {
		select {
		case <-ctx.Done():
			return diag, ctx.Err()
		default:
		}
		diag.Results = append(diag.Results, r.runTest(test))
	}

	diag.EndTime = time.Now()
	diag.Duration = diag.EndTime.Sub(diag.StartTime)
	diag.Summary = summarize(diag.Results)
	diag.Overall = overallStatus(diag.Summary)

	return diag, nil
}

func (r *DiagnosticsRunner) runTest(test DiagnosticTest) DiagnosticResult {
	start := time.Now()
	result := DiagnosticResult{Test: test, Timestamp: start}

	switch test {
	case TestPermissions:
		if security.IsElevated() {
			result.Status = "PASS"
			result.Message = "process is running with administrative rights"
		} else {
			result.Status = "FAIL"
			result.Message = "administrative rights are required for key protector changes"
		}
	case TestHost:
		if security.IsServerOS() {
			result.Status = "WARN"
			result.Message = "host looks like a server OS; remediation is typically blocked there"
		} else {
			result.Status = "PASS"
			result.Message = "host is a workstation OS"
		}
	case TestVolumes:
		volumes, err := r.mgr.ListFixedVolumes()
		switch {
		case err != nil:
			result.Status = "FAIL"
			result.Message = fmt.Sprintf("volume enumeration failed: %v", err)
		case len(volumes) == 0:
			result.Status = "WARN"
			result.Message = "no local fixed volumes with drive letters found"
		default:
			result.Status = "PASS"
			result.Message = fmt.Sprintf("%d local fixed volume(s) found", len(volumes))
		}
	case TestEncryption:
		result.Status, result.Message = r.checkEncryptionSurface()
	}

	result.Duration = time.Since(start)
	return result
}

// checkEncryptionSurface verifies the volume encryption provider answers
// for at least one fixed volume.
func (r *DiagnosticsRunner) checkEncryptionSurface() (string, string) {
	volumes, err := r.mgr.ListFixedVolumes()
	if err != nil || len(volumes) == 0 {
		return "WARN", "no volumes available to probe the encryption provider"
	}

	for _, vol := range volumes {
		status, err := r.mgr.ProtectionStatus(vol.Letter)
		if err != nil {
			return "FAIL", fmt.Sprintf("encryption provider query failed for %s: %v", vol.Letter, err)
		}
		if status == bitlocker.ProtectionOn {
			return "PASS", fmt.Sprintf("encryption provider reachable, protection on for %s", vol.Letter)
		}
	}

	return "WARN", "encryption provider reachable but no volume has protection on"
}

func collectEnvironment() SystemEnvironment {
	hostname, _ := os.Hostname()
	return SystemEnvironment{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		Username:     os.Getenv("USERNAME"),
		MachineName:  hostname,
		IsAdmin:      security.IsElevated(),
		IsServer:     security.IsServerOS(),
	}
}

func summarize(results []DiagnosticResult) DiagnosticSummary {
	s := DiagnosticSummary{TotalTests: len(results)}
	for _, r := range results {
		switch r.Status {
		case "PASS":
			s.Passed++
		case "WARN":
			s.Warnings++
		case "FAIL":
			s.Failed++
		}
	}
	return s
}

func overallStatus(s DiagnosticSummary) string {
	switch {
	case s.Failed > 0:
		return "CRITICAL"
	case s.Warnings > 0:
		return "WARNING"
	default:
		return "HEALTHY"
	}
}
