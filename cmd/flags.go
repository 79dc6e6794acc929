package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// pipelineFlagBindings maps pipeline flag names to configuration keys.
var pipelineFlagBindings = map[string]string{
	"source":    "source.dir",
	"toc":       "toc.dir",
	"templates": "templates.dir",
	"out":       "output.doc.dir",
	"toc-out":   "output.toc.dir",
	"extension": "output.extension",
	"workers":   "render.workers",
}

// AddPipelineFlags adds the directory and rendering flags shared by
// generate and dev. The command binds them with bindFlags when it runs,
// since viper holds one flag per key.
func AddPipelineFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("source", "s", "./source", "Source data directory")
	flags.String("toc", "./toc", "Table-of-contents template directory")
	flags.StringP("templates", "t", "./templates", "Document template directory")
	flags.StringP("out", "o", "./output/docs", "Generated documents directory")
	flags.String("toc-out", "./output/tocs", "Rendered toc debug directory")
	flags.String("extension", ".md", "Extension for templates without an output extension")
	flags.IntP("workers", "w", 4, "Templates rendered concurrently")

	AddFlagValidation(cmd, "workers", ValidatePositive)
}

// bindFlags binds flags to viper configuration keys so an explicitly set
// flag beats the environment and the config file.
func bindFlags(flags *pflag.FlagSet, bindings map[string]string) {
	for flagName, configKey := range bindings {
		if flag := flags.Lookup(flagName); flag != nil {
			_ = viper.BindPFlag(configKey, flag)
		}
	}
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}
	flag.Value = &validatingValue{Value: flag.Value, validator: validator}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidatePort accepts 0 through 65535.
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}
	return nil
}

func ValidatePositive(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid number: %s", s)
	}
	if n <= 0 {
		return fmt.Errorf("must be positive, got %d", n)
	}
	return nil
}
