package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stdg/reqs-builder/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Display the configuration after loading the config file, applying STDG_*
environment overrides and filling in defaults.

Examples:
  reqs-builder config                   # Print as YAML
  reqs-builder config --format json     # Print as JSON
  reqs-builder config validate          # Report problems and warnings
  STDG_SOURCE_DIR=./data reqs-builder config`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the effective configuration and list every problem found.

Examples:
  reqs-builder config validate                       # Validate .reqs-builder.yml
  reqs-builder --config ci.yml config validate       # Validate a specific file
  reqs-builder config validate --strict              # Treat warnings as errors`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

var (
	configFormat string
	configStrict bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)

	configCmd.Flags().StringVar(&configFormat, "format", "yaml", "Output format (yaml, json)")
	configValidateCmd.Flags().BoolVar(&configStrict, "strict", false, "Treat warnings as errors")
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	switch configFormat {
	case "yaml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		if err := encoder.Encode(cfg); err != nil {
			return fmt.Errorf("encode configuration: %w", err)
		}
		return encoder.Close()
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (supported: yaml, json)", configFormat)
	}
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	// loadConfig fails on errors, so only warnings can remain.
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	result := config.Validate(cfg)
	if !result.HasWarnings() {
		fmt.Fprintln(out, "Configuration is valid")
		return nil
	}

	fmt.Fprint(out, result.String())
	if configStrict {
		return errors.New("configuration has warnings")
	}
	return nil
}
