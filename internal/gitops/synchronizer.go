// Package gitops realizes review revisions in local git working copies.
//
// Every operation opens its own handle through Synchronizer.Open and the caller
// closes it when done. Handles are never cached across calls.
package gitops

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/ryo246912/gerrit-bridge/internal/models"
	"go.uber.org/zap"
)

const (
	// RemoteName is the remote every working copy fetches from and pushes to
	RemoteName = "origin"

	mergeHeadRef = plumbing.ReferenceName("MERGE_HEAD")
	pushTempRef  = plumbing.ReferenceName("refs/bridge/push")
)

// Synchronizer opens working copies bound to one remote repository
type Synchronizer struct {
	remoteURL string
	auth      transport.AuthMethod
	log       *zap.SugaredLogger
}

// NewSynchronizer creates a synchronizer. auth may be nil for local remotes.
func NewSynchronizer(remoteURL string, auth transport.AuthMethod, log *zap.SugaredLogger) *Synchronizer {
	return &Synchronizer{
		remoteURL: remoteURL,
		auth:      auth,
		log:       log.Named("gitops"),
	}
}

// RemoteURL returns the URL working copies are bound to
func (s *Synchronizer) RemoteURL() string {
	return s.remoteURL
}

// Open opens the repository in dir, creating it when missing, and points origin at the remote
func (s *Synchronizer) Open(dir string) (*Repository, error) {
	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, opError("init", dir, err)
		}
		repo, err = git.PlainInit(dir, false)
		if err == nil {
			s.log.Debugw("initialized repository", "dir", dir)
		}
	}
	if err != nil {
		return nil, opError("open", dir, err)
	}

	if err := s.ensureRemote(repo); err != nil {
		return nil, opError("remote", s.remoteURL, err)
	}

	return &Repository{
		repo: repo,
		dir:  dir,
		auth: s.auth,
		log:  s.log.With("dir", dir),
	}, nil
}

func (s *Synchronizer) ensureRemote(repo *git.Repository) error {
	remote, err := repo.Remote(RemoteName)
	if err == nil {
		urls := remote.Config().URLs
		if len(urls) == 1 && urls[0] == s.remoteURL {
			return nil
		}
		if err := repo.DeleteRemote(RemoteName); err != nil {
			return fmt.Errorf("failed to replace remote: %w", err)
		}
	} else if !errors.Is(err, git.ErrRemoteNotFound) {
		return err
	}

	_, err = repo.CreateRemote(&config.RemoteConfig{
		Name: RemoteName,
		URLs: []string{s.remoteURL},
	})
	return err
}

func opError(op, ref string, err error) error {
	return &models.GitOperationError{Op: op, Ref: ref, Err: err}
}

// HasRemoteError reports whether remote output carries a server-side error marker
func HasRemoteError(message string) bool {
	return strings.Contains(message, "ERROR")
}

// BranchRef expands a branch name to its full ref name
func BranchRef(branch string) string {
	if strings.HasPrefix(branch, "refs/") {
		return branch
	}
	return "refs/heads/" + branch
}

func remoteTrackingRef(branch string) plumbing.ReferenceName {
	return plumbing.ReferenceName(fmt.Sprintf("refs/remotes/%s/%s", RemoteName, branch))
}

// fetchRefSpec maps branches to remote-tracking refs and fetches everything else under its own name
func fetchRefSpec(ref string) config.RefSpec {
	full := BranchRef(ref)
	if branch, ok := strings.CutPrefix(full, "refs/heads/"); ok {
		return config.RefSpec(fmt.Sprintf("+%s:%s", full, remoteTrackingRef(branch)))
	}
	return config.RefSpec(fmt.Sprintf("+%s:%s", full, full))
}
