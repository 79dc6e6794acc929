// Package config provides configuration management for reqs-builder using
// Viper for loading from files, environment variables and command-line
// flags.
//
// Every key has a default, can be set in .reqs-builder.yml, and can be
// overridden by an environment variable with the STDG_ prefix where dots
// become underscores (output.doc.dir -> STDG_OUTPUT_DOC_DIR).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	generrors "github.com/stdg/reqs-builder/internal/errors"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "STDG"

// ConfigFileEnv names the environment variable that selects a config file.
const ConfigFileEnv = "STDG_CONFIG_FILE"

// DefaultConfigName is the config file looked up in the working directory.
const DefaultConfigName = ".reqs-builder"

type Config struct {
	Source    DirConfig     `mapstructure:"source" yaml:"source" json:"source"`
	Toc       DirConfig     `mapstructure:"toc" yaml:"toc" json:"toc"`
	Templates DirConfig     `mapstructure:"templates" yaml:"templates" json:"templates"`
	Output    OutputConfig  `mapstructure:"output" yaml:"output" json:"output"`
	Watch     WatchConfig   `mapstructure:"watch" yaml:"watch" json:"watch"`
	Preview   PreviewConfig `mapstructure:"preview" yaml:"preview" json:"preview"`
	Reload    ReloadConfig  `mapstructure:"reload" yaml:"reload" json:"reload"`
	Render    RenderConfig  `mapstructure:"render" yaml:"render" json:"render"`
	Log       LogConfig     `mapstructure:"log" yaml:"log" json:"log"`
}

type DirConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir" json:"dir"`
}

type OutputConfig struct {
	Doc       DirConfig `mapstructure:"doc" yaml:"doc" json:"doc"`
	Toc       DirConfig `mapstructure:"toc" yaml:"toc" json:"toc"`
	Rendered  DirConfig `mapstructure:"rendered" yaml:"rendered" json:"rendered"`
	Extension string    `mapstructure:"extension" yaml:"extension" json:"extension"`
}

type WatchConfig struct {
	Debounce     time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
	Stability    time.Duration `mapstructure:"stability" yaml:"stability" json:"stability"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" json:"poll_interval"`
	Ignore       []string      `mapstructure:"ignore" yaml:"ignore" json:"ignore"`
}

type PreviewConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Command   string `mapstructure:"command" yaml:"command" json:"command"`
	Host      string `mapstructure:"host" yaml:"host" json:"host"`
	Port      int    `mapstructure:"port" yaml:"port" json:"port"`
	Config    string `mapstructure:"config" yaml:"config" json:"config"`
	LayoutDir string `mapstructure:"layout_dir" yaml:"layout_dir" json:"layout_dir"`
}

type ReloadConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port" json:"port"`
}

type RenderConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers" json:"workers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// Defaults returns every key with its default value.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"source.dir":          "./source",
		"toc.dir":             "./toc",
		"templates.dir":       "./templates",
		"output.doc.dir":      "./output/docs",
		"output.toc.dir":      "./output/tocs",
		"output.rendered.dir": "./output/rendered",
		"output.extension":    ".md",
		"watch.debounce":      300 * time.Millisecond,
		"watch.stability":     200 * time.Millisecond,
		"watch.poll_interval": 100 * time.Millisecond,
		"watch.ignore":        []string{"**/.git/**", "**/*.swp", "**/*~"},
		"preview.enabled":     true,
		"preview.command":     "hugo",
		"preview.host":        "0.0.0.0",
		"preview.port":        1313,
		"preview.config":      "",
		"preview.layout_dir":  "",
		"reload.enabled":      false,
		"reload.port":         35729,
		"render.workers":      4,
		"log.level":           "info",
		"log.format":          "text",
	}
}

// SetDefaults registers the defaults on v. Registering every key also lets
// AutomaticEnv overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
}

// ConfigureEnv enables STDG_* environment overrides on v.
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, generrors.Wrap(err, generrors.KindConfig, "decode configuration failed")
	}

	// STDG_WATCH_IGNORE is a comma separated list.
	config.Watch.Ignore = splitList(config.Watch.Ignore)
	if config.Output.Extension != "" && !strings.HasPrefix(config.Output.Extension, ".") {
		config.Output.Extension = "." + config.Output.Extension
	}

	if result := Validate(&config); result.HasErrors() {
		return nil, generrors.NewConfigError(fmt.Sprintf("invalid configuration:\n%s", result.String()))
	}
	return &config, nil
}

func splitList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
