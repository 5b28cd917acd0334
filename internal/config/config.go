// Package config provides configuration data structures for npx-scripts.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/arciisine/npx-types-plugin/internal/logging"
)

// Config represents the complete npx-scripts configuration.
type Config struct {
	Cache      CacheConfig      `yaml:"cache"      json:"cache"      mapstructure:"cache"`
	Install    InstallConfig    `yaml:"install"    json:"install"    mapstructure:"install"`
	Resolve    ResolveConfig    `yaml:"resolve"    json:"resolve"    mapstructure:"resolve"`
	Directive  DirectiveConfig  `yaml:"directive"  json:"directive"  mapstructure:"directive"`
	Annotation AnnotationConfig `yaml:"annotation" json:"annotation" mapstructure:"annotation"`
	Watch      WatchConfig      `yaml:"watch"      json:"watch"      mapstructure:"watch"`
	Log        LogConfig        `yaml:"log"        json:"log"        mapstructure:"log"`
}

// CacheConfig configures the managed install cache.
type CacheConfig struct {
	// Dir is the cache root. Empty means the user cache directory.
	Dir string `yaml:"dir" json:"dir" mapstructure:"dir"`
}

// InstallConfig configures the package install command.
type InstallConfig struct {
	// Command is the package manager executable (default: npm).
	Command string `yaml:"command" json:"command" mapstructure:"command"`
	// Args precede the package reference (default: install --no-save).
	Args []string `yaml:"args" json:"args" mapstructure:"args"`
	// Timeout bounds one install. Zero disables the limit.
	Timeout time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`
}

// ResolveConfig configures standard module resolution.
type ResolveConfig struct {
	// BaseDir is where node_modules lookup starts. Empty means the working
	// directory.
	BaseDir string `yaml:"base_dir" json:"base_dir" mapstructure:"base_dir"`
	// NodePath lists extra search roots, searched before NODE_PATH.
	NodePath []string `yaml:"node_path" json:"node_path" mapstructure:"node_path"`
}

// DirectiveConfig configures shebang parsing.
type DirectiveConfig struct {
	// Launcher is the executable named in the shebang (default: npx).
	Launcher string `yaml:"launcher" json:"launcher" mapstructure:"launcher"`
}

// AnnotationConfig configures annotation placement.
type AnnotationConfig struct {
	// DefaultLine is the zero-based line new annotations are inserted at
	// (default: 1, right after the shebang).
	DefaultLine int `yaml:"default_line" json:"default_line" mapstructure:"default_line"`
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	// Debounce is the quiet period per file (default: 500ms).
	Debounce time.Duration `yaml:"debounce" json:"debounce" mapstructure:"debounce"`
	// Patterns select the watched scripts.
	Patterns []string `yaml:"patterns" json:"patterns" mapstructure:"patterns"`
	// Ignore lists extra patterns that are never watched.
	Ignore []string `yaml:"ignore" json:"ignore" mapstructure:"ignore"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string `yaml:"level" json:"level" mapstructure:"level"`
	// JSON switches file and console output to JSON.
	JSON bool `yaml:"json" json:"json" mapstructure:"json"`
	// Console mirrors logs to stderr.
	Console bool `yaml:"console" json:"console" mapstructure:"console"`
}

// Default values.
const (
	DefaultInstallCommand = "npm"
	DefaultLauncher       = "npx"
	DefaultAnnotationLine = 1
	DefaultDebounce       = 500 * time.Millisecond
	DefaultLogLevel       = "info"
)

// DefaultInstallArgs precede the package reference on the install command.
var DefaultInstallArgs = []string{"install", "--no-save"}

// DefaultWatchPatterns select the scripts the watch command checks.
var DefaultWatchPatterns = []string{"**/*.js", "**/*.mjs", "**/*.cjs"}

// NewConfig returns a new Config with default values applied.
func NewConfig() *Config {
	return &Config{
		Install: InstallConfig{
			Command: DefaultInstallCommand,
			Args:    append([]string{}, DefaultInstallArgs...),
		},
		Resolve: ResolveConfig{
			NodePath: []string{},
		},
		Directive: DirectiveConfig{
			Launcher: DefaultLauncher,
		},
		Annotation: AnnotationConfig{
			DefaultLine: DefaultAnnotationLine,
		},
		Watch: WatchConfig{
			Debounce: DefaultDebounce,
			Patterns: append([]string{}, DefaultWatchPatterns...),
			Ignore:   []string{},
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// ApplyDefaults fills fields left empty after loading.
func (c *Config) ApplyDefaults() {
	defaults := NewConfig()

	if c.Install.Command == "" {
		c.Install.Command = defaults.Install.Command
	}
	if c.Install.Args == nil {
		c.Install.Args = defaults.Install.Args
	}
	if c.Directive.Launcher == "" {
		c.Directive.Launcher = defaults.Directive.Launcher
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = defaults.Watch.Debounce
	}
	if len(c.Watch.Patterns) == 0 {
		c.Watch.Patterns = defaults.Watch.Patterns
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}

	// Initialize nil slices
	if c.Resolve.NodePath == nil {
		c.Resolve.NodePath = []string{}
	}
	if c.Watch.Ignore == nil {
		c.Watch.Ignore = []string{}
	}
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() logging.Level {
	level, _ := logging.ParseLevel(c.Log.Level)
	return level
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
	Options []string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := "multiple validation errors:"
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(c.Install.Command) == "" {
		errs = append(errs, &ValidationError{Field: "install.command", Message: "must not be empty"})
	}
	if c.Install.Timeout < 0 {
		errs = append(errs, &ValidationError{Field: "install.timeout", Message: "must be non-negative"})
	}
	if strings.ContainsAny(c.Directive.Launcher, " \t") || c.Directive.Launcher == "" {
		errs = append(errs, &ValidationError{Field: "directive.launcher", Message: "must be a single word"})
	}
	if c.Annotation.DefaultLine < 0 {
		errs = append(errs, &ValidationError{Field: "annotation.default_line", Message: "must be non-negative"})
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, &ValidationError{Field: "watch.debounce", Message: "must be non-negative"})
	}
	for i, pat := range c.Watch.Patterns {
		if !doublestar.ValidatePattern(pat) {
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("watch.patterns[%d]", i),
				Message: fmt.Sprintf("invalid glob %q", pat),
			})
		}
	}
	for i, pat := range c.Watch.Ignore {
		if !doublestar.ValidatePattern(pat) {
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("watch.ignore[%d]", i),
				Message: fmt.Sprintf("invalid glob %q", pat),
			})
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown level %q", c.Log.Level),
			Options: logLevels,
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
