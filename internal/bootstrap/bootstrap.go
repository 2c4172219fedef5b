// Package bootstrap installs the server-side configuration the bridge depends on:
// the Verified label and the accessDatabase capability in All-Projects.
//
// Each install runs at most once per Bootstrapper. A failed install leaves its
// done flag unset so the next attempt retries it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/ryo246912/gerrit-bridge/internal/gerrit"
	"github.com/ryo246912/gerrit-bridge/internal/gitops"
	"github.com/ryo246912/gerrit-bridge/internal/models"
	"go.uber.org/zap"
)

const (
	// MetaConfigRef holds project configuration on the server
	MetaConfigRef = "refs/meta/config"
	// MetaConfigDir is the working copy directory below the working dir
	MetaConfigDir = "MetaConfig"

	projectConfigFile = "project.config"

	labelCommitMessage      = "Enabled verification label."
	capabilityCommitMessage = "Grant Database Access."
)

// Options configures a Bootstrapper
type Options struct {
	WorkingDir string
	Committer  models.Identity
	Patcher    Kind
}

type step struct {
	name    string
	patcher ConfigPatcher
	message string
	done    *atomic.Bool
}

// Bootstrapper applies the one-time meta-config edits
type Bootstrapper struct {
	syncer *gitops.Synchronizer
	client gerrit.GerritClient
	dir    string
	log    *zap.SugaredLogger

	mu             sync.Mutex
	committer      models.Identity
	label          step
	capability     step
	labelDone      atomic.Bool
	capabilityDone atomic.Bool
}

// New creates a Bootstrapper. syncer must be bound to the All-Projects repository.
func New(syncer *gitops.Synchronizer, client gerrit.GerritClient, opts Options, log *zap.SugaredLogger) (*Bootstrapper, error) {
	labelPatcher, capabilityPatcher, err := Patchers(opts.Patcher)
	if err != nil {
		return nil, err
	}
	b := &Bootstrapper{
		syncer:    syncer,
		client:    client,
		dir:       filepath.Join(opts.WorkingDir, MetaConfigDir),
		log:       log.Named("bootstrap"),
		committer: opts.Committer,
	}
	b.label = step{name: "verified-label", patcher: labelPatcher, message: labelCommitMessage, done: &b.labelDone}
	b.capability = step{name: "database-access", patcher: capabilityPatcher, message: capabilityCommitMessage, done: &b.capabilityDone}
	return b, nil
}

// VerifiedLabelInstalled reports whether the label install has completed
func (b *Bootstrapper) VerifiedLabelInstalled() bool {
	return b.labelDone.Load()
}

// DatabaseAccessGranted reports whether the capability install has completed
func (b *Bootstrapper) DatabaseAccessGranted() bool {
	return b.capabilityDone.Load()
}

// Committer returns the identity used for meta-config commits
func (b *Bootstrapper) Committer() models.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.committer
}

// EnsureVerifiedLabel installs the Verified label and grants it on refs/heads/*
func (b *Bootstrapper) EnsureVerifiedLabel(ctx context.Context) error {
	return b.ensure(ctx, b.label)
}

// EnsureDatabaseAccess grants the accessDatabase capability to Administrators
func (b *Bootstrapper) EnsureDatabaseAccess(ctx context.Context) error {
	return b.ensure(ctx, b.capability)
}

// Initialize runs both installs and resolves the committer email from the
// service account when none is configured.
func (b *Bootstrapper) Initialize(ctx context.Context) error {
	if err := b.EnsureDatabaseAccess(ctx); err != nil {
		return err
	}
	if err := b.EnsureVerifiedLabel(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.committer.Email != "" {
		return nil
	}
	user, err := b.client.SystemUser(ctx, b.committer.Username)
	if err != nil {
		return &models.ConfigBootstrapError{Step: "system-user", Err: err}
	}
	b.committer.Email = user.Email
	if b.committer.Name == "" {
		b.committer.Name = user.FullName
	}
	b.log.Infow("resolved system user", "username", user.Username, "email", user.Email)
	return nil
}

func (b *Bootstrapper) ensure(ctx context.Context, st step) error {
	if st.done.Load() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if st.done.Load() {
		return nil
	}

	if err := b.apply(ctx, st); err != nil {
		b.log.Errorw("bootstrap step failed", "step", st.name, "error", err)
		return &models.ConfigBootstrapError{Step: st.name, Err: err}
	}
	st.done.Store(true)
	return nil
}

// apply runs with b.mu held
func (b *Bootstrapper) apply(ctx context.Context, st step) error {
	repo, err := b.syncer.Open(b.dir)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.Fetch(ctx, MetaConfigRef, 0); err != nil {
		return err
	}
	if err := repo.Checkout(MetaConfigRef); err != nil {
		return err
	}

	path := filepath.Join(b.dir, projectConfigFile)
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read %s: %w", projectConfigFile, err)
	}

	patched, present, err := st.patcher.Patch(string(data))
	if err != nil {
		return err
	}
	if present {
		b.log.Infow("already configured", "step", st.name)
		return nil
	}

	if err := os.WriteFile(path, []byte(patched), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", projectConfigFile, err)
	}

	name := b.committer.Name
	if name == "" {
		name = b.committer.Username
	}
	revision, err := repo.Commit(st.message, name, b.committer.Email)
	if err != nil {
		return err
	}

	messages, err := repo.Push(ctx, revision, MetaConfigRef)
	if err != nil {
		return err
	}
	if gitops.HasRemoteError(messages) {
		return &models.GitOperationError{Op: "push", Ref: MetaConfigRef, RemoteMessage: messages,
			Err: errors.New("remote rejected the update")}
	}

	b.log.Infow("meta config updated", "step", st.name, "revision", revision)
	return nil
}
