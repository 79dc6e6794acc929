// Package cmd provides the command-line interface for reqs-builder with
// layered configuration.
//
// Configuration System:
//
//	Values come from several sources with clear precedence:
//	1. Command-line flags (--source, --workers, etc.) - highest priority
//	2. Individual environment variables (STDG_SOURCE_DIR, etc.)
//	3. Configuration file selected by --config or STDG_CONFIG_FILE,
//	   else .reqs-builder.yml in the working directory
//	4. Built-in defaults - lowest priority
//
// Environment Variables:
//
//	STDG_CONFIG_FILE: Path to custom configuration file
//	STDG_SOURCE_DIR: Override the source data directory
//	STDG_OUTPUT_DOC_DIR: Override the generated documents directory
//	And every other key following the STDG_<SECTION>_<OPTION> pattern
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stdg/reqs-builder/internal/config"
	"github.com/stdg/reqs-builder/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reqs-builder",
	Short: "Generate documentation from structured requirement data",
	Long: `reqs-builder merges a directory of YAML, JSON and TOML data files into one
tree, derives table-of-contents data from it, and expands a directory of
templates into documents.

Pipeline:
  source/     merged into a single data tree
  toc/        templates rendered against the tree, merged into toc data
  templates/  rendered against {source, toc} into output documents

Quick Start:
  reqs-builder generate           Run the pipeline once
  reqs-builder dev                Regenerate on change with a live preview
  reqs-builder config             Print the effective configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is .reqs-builder.yml, can also use "+config.ConfigFileEnv+" env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

var logFlagBindings = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
}

// initConfig selects the config file.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag
//  2. STDG_CONFIG_FILE environment variable
//  3. .reqs-builder.yml in the current directory
//
// A missing default file is not an error; an explicitly named file that
// cannot be read is reported when the configuration is loaded.
func initConfig() {
	v := viper.GetViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.ConfigFileEnv); envConfigFile != "" {
		v.SetConfigFile(envConfigFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(config.DefaultConfigName)
	}
	config.ConfigureEnv(v)
	bindFlags(rootCmd.PersistentFlags(), logFlagBindings)
}

// loadConfig reads the selected file and returns the validated configuration.
func loadConfig() (*config.Config, error) {
	v := viper.GetViper()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return config.Load()
}

// newLogger builds the process logger from the log section.
func newLogger(cfg *config.Config, out io.Writer) logging.Logger {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: out,
	})
}
