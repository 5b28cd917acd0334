package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	npxerrors "github.com/arciisine/npx-types-plugin/internal/errors"
)

const (
	// EnvPrefix is the prefix for environment variable overrides, e.g.
	// NPX_SCRIPTS_INSTALL_TIMEOUT=2m.
	EnvPrefix = "NPX_SCRIPTS"

	// FileName is the config file name inside the config directory.
	FileName = "config.yaml"
)

// DefaultPath returns the default config file location under the user
// config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".npx-scripts", FileName)
	}
	return filepath.Join(dir, "npx-scripts", FileName)
}

// Loader handles loading configuration from files and environment.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default for AutomaticEnv to reach it on Unmarshal.
	setDefaults(v, NewConfig())
	return &Loader{v: v}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("install.command", d.Install.Command)
	v.SetDefault("install.args", d.Install.Args)
	v.SetDefault("install.timeout", d.Install.Timeout)
	v.SetDefault("resolve.base_dir", d.Resolve.BaseDir)
	v.SetDefault("resolve.node_path", d.Resolve.NodePath)
	v.SetDefault("directive.launcher", d.Directive.Launcher)
	v.SetDefault("annotation.default_line", d.Annotation.DefaultLine)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("watch.patterns", d.Watch.Patterns)
	v.SetDefault("watch.ignore", d.Watch.Ignore)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.console", d.Log.Console)
}

// LoadConfig loads configuration from path, merges environment variables,
// applies defaults and validates the result. The file must exist.
func (l *Loader) LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, npxerrors.Wrap(err, npxerrors.ErrNotFound, fmt.Sprintf("config file not found: %s", path))
		}
		return nil, npxerrors.ConfigParseError(path, err)
	}

	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return nil, npxerrors.ConfigParseError(path, err)
	}
	return l.decode(path)
}

// LoadOrDefault loads path, or DefaultPath when path is empty. A missing
// file is not an error: defaults and environment overrides are used and
// the returned path is empty.
func (l *Loader) LoadOrDefault(path string) (*Config, string, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg, err := l.LoadConfig(path)
	if err == nil {
		return cfg, path, nil
	}
	if explicit || !errors.Is(err, npxerrors.ErrNotFound) {
		return nil, "", err
	}

	cfg, err = l.decode("")
	if err != nil {
		return nil, "", err
	}
	return cfg, "", nil
}

func (l *Loader) decode(path string) (*Config, error) {
	cfg := NewConfig()
	if err := l.v.Unmarshal(cfg, viperDecodeHook); err != nil {
		return nil, npxerrors.ConfigParseError(path, err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		var verrs ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, npxerrors.ConfigValidationError(verrs[0].Field, err.Error(), verrs[0].Options)
		}
		return nil, err
	}
	return cfg, nil
}

// viperDecodeHook composes the standard mapstructure hooks. Lists given
// through the environment are comma separated.
func viperDecodeHook(dc *mapstructure.DecoderConfig) {
	dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// Load is a convenience function that creates a new Loader and loads path.
func Load(path string) (*Config, error) {
	return NewLoader().LoadConfig(path)
}

// LoadOrDefault is a convenience function for Loader.LoadOrDefault.
func LoadOrDefault(path string) (*Config, string, error) {
	return NewLoader().LoadOrDefault(path)
}
