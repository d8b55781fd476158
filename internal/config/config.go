// Package config loads and validates the tool configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// SecurityConfig gates which devices and volumes the tool will touch.
type SecurityConfig struct {
	RequireAdmin   bool     `yaml:"require_admin"`
	BlockServers   bool     `yaml:"block_servers"`
	ExcludedDrives []string `yaml:"excluded_drives"`
}

// RemediationConfig controls how a non-compliant volume is rewritten.
type RemediationConfig struct {
	// TargetProtector is the single protector left on a volume after
	// remediation. PIN is required for TpmAndPin, RecoveryPassword for the
	// RecoveryPassword target.
	TargetProtector string `yaml:"target_protector" validate:"oneof=Tpm TpmAndPin RecoveryPassword"`
	PIN             string `yaml:"pin,omitempty" validate:"required_if=TargetProtector TpmAndPin"`
	RecoveryPassword string `yaml:"recovery_password,omitempty" validate:"required_if=TargetProtector RecoveryPassword"`
	// AddSafetyNet installs an auto-generated recovery password before the
	// existing protectors are removed, narrowing the zero-protector window
	// of the remove-then-add sequence. Off by default.
	AddSafetyNet bool `yaml:"add_safety_net"`
	// StopOnFailure aborts the whole run on the first mutation failure
	// instead of continuing to the remaining volumes.
	StopOnFailure    bool `yaml:"stop_on_failure"`
	ResumeProtection bool `yaml:"resume_protection"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	File  string `yaml:"file,omitempty"`
}

type ReportingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	LocalPath string `yaml:"local_path"`
}

type Config struct {
	Security    SecurityConfig    `yaml:"security"`
	Remediation RemediationConfig `yaml:"remediation"`
	Logging     LoggingConfig     `yaml:"logging"`
	Reporting   ReportingConfig   `yaml:"reporting"`
}

// Default returns the shipped configuration: TPM-only target, stop on the
// first mutation failure, no safety net.
func Default() *Config {
	return &Config{
		Security: SecurityConfig{
			RequireAdmin:   true,
			BlockServers:   true,
			ExcludedDrives: []string{"A:", "B:"},
		},
		Remediation: RemediationConfig{
			TargetProtector:  "Tpm",
			AddSafetyNet:     false,
			StopOnFailure:    true,
			ResumeProtection: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Reporting: ReportingConfig{
			Enabled:   true,
			LocalPath: "./reports",
		},
	}
}

// Load reads the configuration from path, falling back to Default when the
// path is empty or the file is absent.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks the configuration for internal consistency.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("field %s failed %q validation", e.Namespace(), e.Tag())
		}
		return err
	}

	for _, drive := range cfg.Security.ExcludedDrives {
		if len(drive) != 2 || drive[1] != ':' {
			return fmt.Errorf("invalid excluded drive %q, expected a letter with colon (e.g. \"D:\")", drive)
		}
	}

	if cfg.Reporting.Enabled && cfg.Reporting.LocalPath == "" {
		return fmt.Errorf("reporting is enabled but local_path is empty")
	}

	return nil
}

// Save writes the configuration to path, creating directories as needed.
func Save(cfg *Config, path string) error {
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
