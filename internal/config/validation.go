package config

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/stdg/reqs-builder/internal/logging"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", issue.Field, issue.Message))
			for _, suggestion := range issue.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}

	write("errors", vr.Errors)
	write("warnings", vr.Warnings)
	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, message string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, message string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

// Validate checks every field and collects all problems at once.
func Validate(config *Config) *ValidationResult {
	result := &ValidationResult{}

	dirs := []struct {
		field string
		value string
	}{
		{"source.dir", config.Source.Dir},
		{"toc.dir", config.Toc.Dir},
		{"templates.dir", config.Templates.Dir},
		{"output.doc.dir", config.Output.Doc.Dir},
		{"output.toc.dir", config.Output.Toc.Dir},
		{"output.rendered.dir", config.Output.Rendered.Dir},
	}
	for _, d := range dirs {
		validatePath(d.field, d.value, result)
	}

	if config.Output.Extension == "" {
		result.addError("output.extension", config.Output.Extension, "must not be empty", "use .md")
	}

	validateWatch(&config.Watch, result)
	validatePort("preview.port", config.Preview.Port, result)
	validatePort("reload.port", config.Reload.Port, result)

	if config.Preview.Enabled && strings.TrimSpace(config.Preview.Command) == "" {
		result.addError("preview.command", config.Preview.Command, "must not be empty while preview is enabled",
			"set preview.enabled to false to run without a render server")
	}
	if config.Preview.Enabled && config.Reload.Enabled && config.Preview.Port == config.Reload.Port {
		result.addError("reload.port", config.Reload.Port, "collides with preview.port")
	}

	if config.Render.Workers <= 0 {
		result.addError("render.workers", config.Render.Workers, "must be positive")
	}

	if _, err := logging.ParseLevel(config.Log.Level); err != nil {
		result.addError("log.level", config.Log.Level, err.Error(), "use debug, info, warn or error")
	}
	switch config.Log.Format {
	case "text", "json":
	default:
		result.addError("log.format", config.Log.Format, "unknown format", "use text or json")
	}

	return result
}

func validatePath(field, path string, result *ValidationResult) {
	if strings.TrimSpace(path) == "" {
		result.addError(field, path, "must not be empty")
		return
	}
	if strings.ContainsRune(path, 0) {
		result.addError(field, path, "contains a NUL byte")
	}
}

func validatePort(field string, port int, result *ValidationResult) {
	if port < 0 || port > 65535 {
		result.addError(field, port, fmt.Sprintf("port %d is not in valid range 0-65535", port))
	} else if port > 0 && port < 1024 {
		result.addWarning(field, port, "privileged port may need elevated permissions")
	}
}

func validateWatch(config *WatchConfig, result *ValidationResult) {
	if config.Debounce <= 0 {
		result.addError("watch.debounce", config.Debounce, "must be positive")
	}
	if config.Stability <= 0 {
		result.addError("watch.stability", config.Stability, "must be positive")
	}
	if config.PollInterval <= 0 {
		result.addError("watch.poll_interval", config.PollInterval, "must be positive")
	} else if config.Stability > 0 && config.PollInterval > config.Stability {
		result.addWarning("watch.poll_interval", config.PollInterval, "longer than watch.stability",
			"poll at least once per stability window")
	}
	for _, pattern := range config.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			result.addError("watch.ignore", pattern, "invalid glob pattern")
		}
	}
}
