package config

import "fmt"

// ApplyProfile overlays a named behavior profile onto the configuration.
func ApplyProfile(cfg *Config, profile string) error {
	switch profile {
	case "baseline":
		// Shipped behavior: abort on the first mutation failure, no
		// compensating protector.
		cfg.Remediation.AddSafetyNet = false
		cfg.Remediation.StopOnFailure = true
	case "cautious":
		// Install an auto-generated recovery password before removing
		// protectors so a mid-sequence failure never leaves a volume
		// with zero protectors.
		cfg.Remediation.AddSafetyNet = true
		cfg.Remediation.StopOnFailure = true
	case "sweep":
		// Fix as many volumes as possible per run instead of aborting on
		// the first failed write.
		cfg.Remediation.AddSafetyNet = false
		cfg.Remediation.StopOnFailure = false
	default:
		return fmt.Errorf("unknown profile: %s", profile)
	}
	return nil
}
