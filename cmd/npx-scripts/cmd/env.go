package cmd

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/arciisine/npx-types-plugin/internal/annotate"
	"github.com/arciisine/npx-types-plugin/internal/config"
	"github.com/arciisine/npx-types-plugin/internal/directive"
	"github.com/arciisine/npx-types-plugin/internal/install"
	"github.com/arciisine/npx-types-plugin/internal/logging"
	"github.com/arciisine/npx-types-plugin/internal/session"
)

// newRunner returns the runner used for installs. Tests replace it.
var newRunner = func() install.Runner { return install.ExecRunner{} }

// env is everything a command needs, built from flags and configuration.
type env struct {
	cfg     *config.Config
	cfgPath string
	logger  *logging.Logger
	cache   *install.Cache
	session *session.Session
}

// loadConfig reads the configuration selected by the global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, used, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, "", err
	}

	if dir, _ := cmd.Flags().GetString("cache-dir"); dir != "" {
		cfg.Cache.Dir = dir
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
		cfg.Log.Console = true
	}
	if cfg.Cache.Dir == "" {
		root, err := install.DefaultRoot()
		if err != nil {
			return nil, "", err
		}
		cfg.Cache.Dir = root
	}
	return cfg, used, nil
}

// loadEnv builds the logger, cache and session for a command. Callers
// must Close the result.
func loadEnv(cmd *cobra.Command) (*env, error) {
	cfg, used, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel()
	logCfg.LogDir = filepath.Join(cfg.Cache.Dir, ".logs")
	logCfg.Console = cfg.Log.Console
	logCfg.JSONFormat = cfg.Log.JSON
	if err := logging.InitGlobal(logCfg); err != nil {
		return nil, err
	}
	logger := logging.Global()

	baseDir := cfg.Resolve.BaseDir
	if baseDir == "" {
		baseDir, _ = os.Getwd()
	}
	extra := append(slices.Clone(cfg.Resolve.NodePath), install.NodePathEntries()...)

	fs := afero.NewOsFs()
	cache, err := install.New(install.Options{
		Root:     cfg.Cache.Dir,
		Fs:       fs,
		Runner:   newRunner(),
		Resolver: install.NewResolver(fs, baseDir, extra),
		Command:  cfg.Install.Command,
		Args:     cfg.Install.Args,
		Timeout:  cfg.Install.Timeout,
		Logger:   logger,
	})
	if err != nil {
		_ = logging.CloseGlobal()
		return nil, err
	}

	sess := session.New(session.Options{
		Cache:        cache,
		Parser:       directive.NewParser(cfg.Directive.Launcher),
		Synchronizer: annotate.NewSynchronizer(cfg.Annotation.DefaultLine),
		Logger:       logger,
	})

	logger.Debug("Environment loaded", "config", used, "cache", cache.Root())
	return &env{cfg: cfg, cfgPath: used, logger: logger, cache: cache, session: sess}, nil
}

// Close releases the log file.
func (e *env) Close() {
	_ = logging.CloseGlobal()
}
