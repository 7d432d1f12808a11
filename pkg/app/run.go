// Package app provides the composition root and the entry point for the
// inovy binary.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Inovico-app/inovy-sub002/internal/config"
)

// stopTimeout bounds the whole shutdown sequence.
const stopTimeout = 30 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the configured data directory.
	DataDir string

	// LogLevel overrides the configured log level when non-empty.
	LogLevel string
}

// LoadConfig resolves, loads and validates the configuration named by
// params, applying its overrides.
func LoadConfig(params RunParams) (*config.Config, string, error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, "", err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}
	if params.DataDir != "" {
		cfg.DataDir = params.DataDir
	}
	if params.LogLevel != "" {
		cfg.Log.Level = params.LogLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, cfgPath, err
	}
	return cfg, cfgPath, nil
}

// Run loads configuration, starts the pipeline and blocks until SIGINT or
// SIGTERM is received.
func Run(params RunParams) error {
	cfg, cfgPath, err := LoadConfig(params)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := Build(ctx, cfg, BuildParams{Version: params.Version})
	if err != nil {
		return err
	}
	logger := application.Logger
	logger.Info("starting inovy",
		"version", params.Version,
		"commit", params.Commit,
		"config", cfgPath,
		"chat_provider", cfg.Chat.ChatProvider,
	)

	if err := application.Start(ctx); err != nil {
		_ = application.Stop(context.Background())
		return err
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := application.Stop(stopCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/inovy/inovy.yaml, ~/.config/inovy/inovy.yaml, ./inovy.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "inovy", "inovy.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "inovy", "inovy.yaml"))
	}

	candidates = append(candidates, "inovy.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}
