package service

import (
	"context"
	"fmt"

	"github.com/ryo246912/gerrit-bridge/internal/models"
)

// LastCommit returns the commit the next poll would build, or ErrChangeNotFound when nothing is open
func (d *ChangeDetector) LastCommit(ctx context.Context) (*models.Commit, error) {
	candidate, ok, err := d.selectCandidate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find last commit: %w", err)
	}
	if !ok {
		return nil, models.ErrChangeNotFound
	}
	commit := ConvertChangeToCommit(candidate, true)
	return &commit, nil
}

// OpenBranches lists the branches on the server other than the configured one
func (m *WorkingCopyManager) OpenBranches(ctx context.Context, dir string) ([]string, error) {
	repo, err := m.syncer.Open(dir)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	branches, err := repo.RemoteBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	open := make([]string, 0, len(branches))
	for _, b := range branches {
		if b != m.cfg.Branch {
			open = append(open, b)
		}
	}
	return open, nil
}
