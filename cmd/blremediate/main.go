package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/bitlocker"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/config"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/logging"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/remediation"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/reporting"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/security"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/system"
)

const (
	Version = "1.0.2"
	AppName = "BitLocker Key Protector Remediation"
)

var (
	cfg        *config.Config
	logger     *logging.Logger
	dryRun     bool
	verbose    bool
	configPath string
	profile    string
	exitCode   int
)

var rootCmd = &cobra.Command{
	Use:     "blremediate",
	Short:   "Audit and remediate BitLocker key protector configuration",
	Long:    "Detects volumes protected with the legacy TpmPin key protector and rewrites them to the configured target protector, reporting a single OK/FAIL/WARNING outcome per run.",
	Version: Version,
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Read-only scan for volumes with a TpmPin key protector",
	RunE:  runDetect,
}

var remediateCmd = &cobra.Command{
	Use:   "remediate",
	Short: "Replace TpmPin key protectors with the configured target protector",
	RunE:  runRemediate,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show protection status and key protectors of local fixed volumes",
	RunE:  runInfo,
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Run preflight checks against the volume encryption surface",
	RunE:  runDiagnose,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "Behavior profile (baseline/cautious/sweep)")

	remediateCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Report intended changes without mutating anything")

	diagnoseCmd.Flags().String("output", "", "Save the diagnostics report to a JSON file")

	rootCmd.AddCommand(detectCmd, remediateCmd, infoCmd, diagnoseCmd)
}

// setup loads configuration, applies the selected profile and initializes
// the logger. Shared by every subcommand.
func setup() error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if profile != "" {
		if err := config.ApplyProfile(cfg, profile); err != nil {
			return fmt.Errorf("applying profile %s: %w", profile, err)
		}
	}

	logger, err = logging.New(cfg, verbose)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	return nil
}

func runDetect(cmd *cobra.Command, args []string) error {
	return runScan(remediation.ModeDetect)
}

func runRemediate(cmd *cobra.Command, args []string) error {
	return runScan(remediation.ModeRemediate)
}

func runScan(mode remediation.Mode) error {
	if err := setup(); err != nil {
		return err
	}
	defer logger.Close()

	var res *remediation.RunResult
	if err := security.Checks(cfg); err != nil {
		// The run still terminates through the summary/exit contract.
		res = &remediation.RunResult{Mode: mode, Started: time.Now(), Finished: time.Now()}
		res.Append(err.Error())
		res.Merge(remediation.StatusFail)
	} else {
		coord := remediation.NewCoordinator(bitlocker.NewManager(), cfg, logger)
		coord.SetDryRun(dryRun)
		res = coord.Run(mode)
	}

	report := reporting.Generate(res, Version)
	if err := reporting.Save(report, cfg); err != nil {
		logger.Warn().Err(err).Msg("could not save run report")
	}

	fmt.Println(res.SummaryLine(time.Now()))
	exitCode = res.ExitCode()
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	if err := setup(); err != nil {
		return err
	}
	defer logger.Close()

	if err := security.Checks(cfg); err != nil {
		return err
	}

	mgr := bitlocker.NewManager()
	volumes, err := mgr.ListFixedVolumes()
	if err != nil {
		return fmt.Errorf("enumerating volumes: %w", err)
	}

	fmt.Println("Local fixed volumes:")
	fmt.Println("====================")
	for _, vol := range volumes {
		status, err := mgr.ProtectionStatus(vol.Letter)
		if err != nil {
			fmt.Printf("%s - protection status unavailable: %v\n", vol.Letter, err)
			continue
		}

		protectors, err := mgr.KeyProtectors(vol.Letter)
		if err != nil {
			fmt.Printf("%s - protection %s, key protectors unavailable: %v\n", vol.Letter, status, err)
			continue
		}

		if len(protectors) == 0 {
			fmt.Printf("%s - protection %s, no key protectors\n", vol.Letter, status)
			continue
		}
		fmt.Printf("%s - protection %s, protectors:", vol.Letter, status)
		for _, p := range protectors {
			fmt.Printf(" %s", p.Type)
		}
		fmt.Println()
	}

	return nil
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	if err := setup(); err != nil {
		return err
	}
	defer logger.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	runner := system.NewDiagnosticsRunner(bitlocker.NewManager())
	diag, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("running diagnostics: %w", err)
	}

	fmt.Printf("Preflight: %s (%d passed, %d warnings, %d failed)\n",
		diag.Overall, diag.Summary.Passed, diag.Summary.Warnings, diag.Summary.Failed)
	for _, result := range diag.Results {
		fmt.Printf("  [%s] %s: %s\n", result.Status, result.Test, result.Message)
	}

	if output, _ := cmd.Flags().GetString("output"); output != "" {
		data, err := json.MarshalIndent(diag, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling diagnostics: %w", err)
		}
		if err := os.WriteFile(output, data, 0644); err != nil {
			return fmt.Errorf("writing diagnostics report: %w", err)
		}
	}

	if diag.Overall == "CRITICAL" {
		exitCode = 1
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
