// Package bridge assembles one long-lived service graph from configuration.
//
// A process builds a single Bridge and shares it between callers so the
// once-only bootstrap and parser state hold process-wide.
package bridge

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/ryo246912/gerrit-bridge/internal/bootstrap"
	"github.com/ryo246912/gerrit-bridge/internal/config"
	"github.com/ryo246912/gerrit-bridge/internal/gerrit"
	"github.com/ryo246912/gerrit-bridge/internal/gitops"
	"github.com/ryo246912/gerrit-bridge/internal/service"
	"github.com/ryo246912/gerrit-bridge/internal/sshauth"
	"github.com/ryo246912/gerrit-bridge/internal/store"
	"go.uber.org/zap"
)

// Bridge holds the wired components
type Bridge struct {
	Config     *config.Config
	Client     gerrit.GerritClient
	Store      store.RevisionStore
	Detector   *service.ChangeDetector
	Repository *service.WorkingCopyManager
	Reporter   *service.Reporter
	Bootstrap  *bootstrap.Bootstrapper

	log *zap.SugaredLogger
}

// New connects the SSH command channel and git transport described by cfg
func New(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*Bridge, error) {
	sshOpts := cfg.SSHOptions()
	clientConfig, err := sshauth.ClientConfig(sshOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to configure ssh: %w", err)
	}
	gitAuth, err := sshauth.GitAuth(sshOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to configure git auth: %w", err)
	}

	runner := gerrit.NewSSHRunner(cfg.Gerrit.Host, cfg.Gerrit.Port, clientConfig)
	client := gerrit.NewClient(runner, cfg.Gerrit.CommandTimeout, log)
	return Assemble(ctx, cfg, client, gitAuth, log)
}

// Assemble wires the components around an existing client and git auth method.
// auth may be nil for local repositories.
func Assemble(ctx context.Context, cfg *config.Config, client gerrit.GerritClient, auth transport.AuthMethod, log *zap.SugaredLogger) (*Bridge, error) {
	revisions, err := store.New(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open revision store: %w", err)
	}

	projectSync := gitops.NewSynchronizer(cfg.RepositoryURL(), auth, log)
	metaSync := gitops.NewSynchronizer(cfg.MetaConfigURL(), auth, log)

	boot, err := bootstrap.New(metaSync, client, bootstrap.Options{
		WorkingDir: cfg.Git.WorkingDir,
		Committer:  cfg.Committer(),
		Patcher:    cfg.PatcherKind(),
	}, log)
	if err != nil {
		_ = revisions.Close()
		return nil, err
	}

	var history service.HistorySource
	if cfg.Detect.HistoryFallback {
		history = service.NewGitHistory(projectSync, filepath.Join(cfg.Git.WorkingDir, ".history", cfg.Gerrit.Project))
	}

	b := &Bridge{
		Config:    cfg,
		Client:    client,
		Store:     revisions,
		Reporter:  service.NewReporter(client, log),
		Bootstrap: boot,
		log:       log.Named("bridge"),
	}
	b.Detector = service.NewChangeDetector(client, revisions, history, service.DetectorConfig{
		RepositoryID:    cfg.Gerrit.Project,
		Project:         cfg.Gerrit.Project,
		Branch:          cfg.Gerrit.Branch,
		HistoryFallback: cfg.Detect.HistoryFallback,
	}, log)
	branch := cfg.Gerrit.Branch
	if branch == service.AllBranches {
		branch = ""
	}
	b.Repository = service.NewWorkingCopyManager(client, projectSync, service.RepositoryConfig{
		RepositoryID:     cfg.Gerrit.Project,
		Branch:           branch,
		UseShallowClones: cfg.Git.UseShallowClones,
		Committer:        boot.Committer,
	}, log)
	return b, nil
}

// Initialize runs the server bootstrap when enabled.
// Call it once before the first git or vote operation.
func (b *Bridge) Initialize(ctx context.Context) error {
	if !b.Config.Bootstrap.Enabled {
		return nil
	}
	return b.RunBootstrap(ctx)
}

// RunBootstrap installs the Verified label and database access regardless of configuration.
// Commits made afterwards use the committer identity it resolves.
func (b *Bridge) RunBootstrap(ctx context.Context) error {
	return b.Bootstrap.Initialize(ctx)
}

// CheckConnection verifies the command channel and that the configured project exists
func (b *Bridge) CheckConnection(ctx context.Context) (string, error) {
	if err := b.Client.TestConnection(ctx); err != nil {
		return "", err
	}
	version, err := b.Client.Version(ctx)
	if err != nil {
		return "", err
	}
	ok, err := b.Client.IsProject(ctx, b.Config.Gerrit.Project)
	if err != nil {
		return version, err
	}
	if !ok {
		return version, fmt.Errorf("project %q not found on %s", b.Config.Gerrit.Project, b.Config.Gerrit.Addr())
	}
	b.log.Infow("connection ok", "server_version", version, "project", b.Config.Gerrit.Project)
	return version, nil
}

// ProjectDir is the default working copy location
func (b *Bridge) ProjectDir() string {
	return b.Config.ProjectDir()
}

// Close releases the revision store
func (b *Bridge) Close() error {
	return b.Store.Close()
}
