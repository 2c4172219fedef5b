package service

import (
	"context"
	"fmt"

	"github.com/ryo246912/gerrit-bridge/internal/gitops"
	"github.com/ryo246912/gerrit-bridge/internal/models"
)

// GitHistory reads branch heads through a local mirror of the project
type GitHistory struct {
	syncer *gitops.Synchronizer
	dir    string
}

// NewGitHistory creates a HistorySource keeping its mirror in dir
func NewGitHistory(syncer *gitops.Synchronizer, dir string) *GitHistory {
	return &GitHistory{syncer: syncer, dir: dir}
}

// BranchHead fetches the tip of branch and returns its commit metadata
func (h *GitHistory) BranchHead(ctx context.Context, branch string) (models.CommitInfo, error) {
	repo, err := h.syncer.Open(h.dir)
	if err != nil {
		return models.CommitInfo{}, err
	}
	defer repo.Close()

	if err := repo.Fetch(ctx, gitops.BranchRef(branch), 1); err != nil {
		return models.CommitInfo{}, fmt.Errorf("failed to fetch %s: %w", branch, err)
	}
	return repo.CommitInfo(gitops.BranchRef(branch))
}

// Ensure GitHistory implements HistorySource interface
var _ HistorySource = (*GitHistory)(nil)
