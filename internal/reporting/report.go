// Package reporting writes the JSON record of a detection or remediation
// run for the compliance pipeline to pick up.
package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/config"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/remediation"
)

// Report is the JSON document describing one run.
type Report struct {
	RunID     string                      `json:"run_id"`
	Version   string                      `json:"version"`
	Hostname  string                      `json:"hostname"`
	Mode      string                      `json:"mode"`
	Timestamp time.Time                   `json:"timestamp"`
	Volumes   []remediation.VolumeOutcome `json:"volumes"`
	Clauses   []string                    `json:"clauses"`
	Summary   Summary                     `json:"summary"`
	ExitCode  int                         `json:"exit_code"`
	Status    string                      `json:"status"`
	Duration  string                      `json:"duration"`
}

// Summary counts per-volume outcomes.
type Summary struct {
	TotalVolumes int `json:"total_volumes"`
	Updated      int `json:"updated"`
	Detected     int `json:"detected"`
	Skipped      int `json:"skipped"`
	Errors       int `json:"errors"`
}

// Generate builds the report for one finished run.
func Generate(res *remediation.RunResult, version string) *Report {
	hostname, _ := os.Hostname()

	report := &Report{
		RunID:     fmt.Sprintf("run_%d", res.Started.UnixNano()),
		Version:   version,
		Hostname:  hostname,
		Mode:      string(res.Mode),
		Timestamp: res.Started,
		Volumes:   res.Volumes,
		Clauses:   res.Clauses,
		ExitCode:  res.ExitCode(),
		Status:    res.Prefix(),
		Duration:  res.Finished.Sub(res.Started).String(),
	}

	for _, vol := range res.Volumes {
		report.Summary.TotalVolumes++
		switch vol.Outcome {
		case "updated":
			report.Summary.Updated++
		case "detected":
			report.Summary.Detected++
		case "skipped":
			report.Summary.Skipped++
		case "error":
			report.Summary.Errors++
		}
	}

	return report
}

// Save writes the report under the configured reports directory. A no-op
// when reporting is disabled.
func Save(report *Report, cfg *config.Config) error {
	if !cfg.Reporting.Enabled {
		return nil
	}

	if err := os.MkdirAll(cfg.Reporting.LocalPath, 0755); err != nil {
		return fmt.Errorf("creating reports directory: %w", err)
	}

	filename := fmt.Sprintf("keyprotector_%s_%s.json", report.Mode, report.Timestamp.Format("20060102_150405"))
	path := filepath.Join(cfg.Reporting.LocalPath, filename)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	return nil
}
