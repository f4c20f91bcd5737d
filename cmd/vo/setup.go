package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/codefionn/vo/internal/config"
	"github.com/codefionn/vo/internal/fallback"
	"github.com/codefionn/vo/internal/logger"
	"github.com/codefionn/vo/internal/registry"
	"github.com/codefionn/vo/internal/resolver"
	"github.com/codefionn/vo/internal/vcs"
)

// loadConfig reads the configuration and initialises logging. With
// lenient set an unusable config file is reported and the defaults are
// used instead.
func loadConfig(lenient bool) (*config.Config, error) {
	path := configFile
	if path == "" {
		path = config.GetConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		if !lenient || !errors.Is(err, config.ErrInvalid) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}

	applyEnv(cfg)
	if err := initLogger(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *config.Config) {
	if level := strings.TrimSpace(os.Getenv("VO_LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}
	if path := strings.TrimSpace(os.Getenv("VO_LOG_PATH")); path != "" {
		cfg.LogPath = path
	}
}

func initLogger(cfg *config.Config) error {
	var mirror io.Writer
	if verbose {
		mirror = os.Stderr
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if verbose && level > logger.LevelDebug {
		level = logger.LevelDebug
	}

	if err := logger.Init(logger.Options{Level: level, Path: cfg.LogPath, Mirror: mirror}); err != nil {
		// Logging must never block an open.
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
		return logger.Init(logger.Options{Level: level, Mirror: mirror})
	}
	return nil
}

func newStore(cfg *config.Config) *registry.FileStore {
	return registry.NewFileStore(cfg.RegistryPath)
}

func newResolver(cfg *config.Config) *resolver.Resolver {
	return resolver.New(resolver.Options{
		Registry:          newStore(cfg),
		Finder:            vcs.ForMode(cfg.VCSDetection),
		Fallback:          fallback.New(cfg.Fallback),
		FallbackWorkspace: cfg.FallbackWorkspace,
		ProbeTimeout:      cfg.ProbeTimeout(),
		OpenTimeout:       cfg.OpenTimeout(),
		Log:               logger.Global().WithPrefix("resolver"),
	})
}
