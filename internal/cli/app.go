// Package cli exposes the bridge operations as cobra commands, one per CI step.
package cli

import (
	"context"
	"fmt"

	"github.com/ryo246912/gerrit-bridge/internal/bridge"
	"github.com/ryo246912/gerrit-bridge/internal/config"
	"github.com/ryo246912/gerrit-bridge/internal/logger"
	"github.com/ryo246912/gerrit-bridge/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// App carries the dependencies and global flags shared by all commands
type App struct {
	LoadConfig func(path string) (*config.Config, error)
	NewLogger  func(level string) (*zap.SugaredLogger, error)
	NewBridge  func(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*bridge.Bridge, error)
	Prompter   ui.Prompter

	configPath string
	logLevel   string
	format     string

	bridge *bridge.Bridge
	log    *zap.SugaredLogger
}

// NewApp returns an App wired to the real configuration, logger and server
func NewApp() *App {
	return &App{
		LoadConfig: config.Load,
		NewLogger:  logger.New,
		NewBridge:  bridge.New,
		Prompter:   &ui.DefaultPrompter{},
	}
}

// RootCommand builds the command tree
func (a *App) RootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "gerrit-bridge",
		Short:             "Drive CI builds from Gerrit changes and report the results back",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides logging.level")
	flags.StringVar(&a.format, "format", formatText, "output format (text, json)")

	cmd.AddCommand(
		newDetectCommand(a),
		newListCommand(a),
		newLastCommitCommand(a),
		newCheckoutCommand(a),
		newMergeCommand(a),
		newCommitCommand(a),
		newPushCommand(a),
		newVerifyCommand(a),
		newReportCommand(a),
		newBootstrapCommand(a),
		newTestConnectionCommand(a),
		newBranchesCommand(a),
	)
	return cmd
}

func (a *App) setup(cmd *cobra.Command, args []string) error {
	if a.format != formatText && a.format != formatJSON {
		return fmt.Errorf("unknown output format %q", a.format)
	}

	cfg, err := a.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.Logging.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	log, err := a.NewLogger(level)
	if err != nil {
		return err
	}
	b, err := a.NewBridge(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize bridge: %w", err)
	}
	a.log = log
	a.bridge = b
	return nil
}

// Close releases what setup acquired. Call it after the command tree has run, whether or not it failed.
func (a *App) Close() error {
	if a.log != nil {
		_ = a.log.Sync()
	}
	if a.bridge == nil {
		return nil
	}
	err := a.bridge.Close()
	a.bridge = nil
	return err
}

// initialized returns the bridge after running the once-only bootstrap
func (a *App) initialized(ctx context.Context) (*bridge.Bridge, error) {
	if err := a.bridge.Initialize(ctx); err != nil {
		return nil, err
	}
	return a.bridge, nil
}

func (a *App) workDir(dir string) string {
	if dir != "" {
		return dir
	}
	return a.bridge.ProjectDir()
}
