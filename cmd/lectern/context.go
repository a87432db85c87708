package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lectern/internal/config"
	"lectern/internal/eventstore"
	"lectern/internal/logging"
	"lectern/internal/orchestrator"
)

type commandContext struct {
	configFlag  *string
	verboseFlag *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string, verboseFlag *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		verboseFlag: verboseFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// buildLogger writes structured logs into the log directory; the console
// stays reserved for progress and results unless --verbose is set. One
// logger serves the whole invocation.
func (c *commandContext) buildLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		runID := time.Now().UTC().Format("20060102T150405Z")
		logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("lectern-%s.log", runID))

		outputs := []string{logPath}
		if c.verboseFlag != nil && *c.verboseFlag {
			outputs = append(outputs, "stderr")
		}
		logger, err := logging.New(logging.Options{
			Level:       cfg.Logging.Level,
			Format:      cfg.Logging.Format,
			OutputPaths: outputs,
		})
		if err != nil {
			c.loggerErr = fmt.Errorf("init logger: %w", err)
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) openStore() (*eventstore.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return eventstore.Open(cfg)
}

// newOrchestrator builds the store, logger, and orchestrator for a driving
// command. The returned closer releases the store.
func (c *commandContext) newOrchestrator() (*orchestrator.Orchestrator, *eventstore.Store, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := c.buildLogger()
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := c.openStore()
	if err != nil {
		return nil, nil, nil, err
	}
	orch := orchestrator.New(cfg, store, logger)
	return orch, store, func() { _ = store.Close() }, nil
}

// signalContext derives a context cancelled by SIGINT/SIGTERM so an
// interrupted session stops cleanly and stays resumable.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
