package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ryo246912/gerrit-bridge/internal/gerrit"
	"github.com/ryo246912/gerrit-bridge/internal/gitops"
	"github.com/ryo246912/gerrit-bridge/internal/models"
	"go.uber.org/zap"
)

// RepositoryConfig controls how working copies are prepared.
// Committer is read on every commit so an identity resolved later is picked up.
type RepositoryConfig struct {
	RepositoryID     string
	Branch           string
	UseShallowClones bool
	Committer        func() models.Identity
}

// MergeRequest names the two sides of a pre-build merge.
// Revisions win over branches when both are set.
type MergeRequest struct {
	Dir            string
	TargetBranch   string
	TargetRevision string
	SourceBranch   string
	SourceRevision string
}

// WorkingCopyManager prepares and publishes the working copies CI builds run in
type WorkingCopyManager struct {
	client gerrit.GerritClient
	syncer *gitops.Synchronizer
	cfg    RepositoryConfig
	log    *zap.SugaredLogger
}

// NewWorkingCopyManager creates a manager bound to one project repository
func NewWorkingCopyManager(client gerrit.GerritClient, syncer *gitops.Synchronizer, cfg RepositoryConfig, log *zap.SugaredLogger) *WorkingCopyManager {
	return &WorkingCopyManager{
		client: client,
		syncer: syncer,
		cfg:    cfg,
		log:    log.Named("repository"),
	}
}

// RetrieveSourceCode fetches the patch set of revisionKey into dir and checks it out.
// deep forces a full fetch even when shallow clones are configured.
func (m *WorkingCopyManager) RetrieveSourceCode(ctx context.Context, revisionKey, dir string, deep bool) (*models.WorkingCopy, error) {
	change, err := m.client.QueryChangeByRevision(ctx, revisionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up revision %s: %w", revisionKey, err)
	}
	if change == nil {
		return nil, fmt.Errorf("revision %s: %w", revisionKey, models.ErrChangeNotFound)
	}

	repo, err := m.syncer.Open(dir)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	depth := 0
	if m.cfg.UseShallowClones && !deep {
		depth = 1
	}
	ref := change.CurrentPatchSet.Ref
	if err := repo.Fetch(ctx, ref, depth); err != nil {
		return nil, err
	}
	if err := repo.Checkout(ref); err != nil {
		return nil, err
	}

	m.log.Infow("source retrieved", "revision", revisionKey, "ref", ref, "dir", dir, "depth", depth)
	return &models.WorkingCopy{
		RepositoryID: m.cfg.RepositoryID,
		Path:         dir,
		Branch:       change.Branch,
		Revision:     revisionKey,
		Clean:        true,
	}, nil
}

// CheckoutAndMerge checks out the target and merges the source into the working tree without committing.
// A merge that leaves the tree clean reports Merged=false and the resulting HEAD; otherwise the
// working copy keeps the pre-merge HEAD and reports Merged=true.
func (m *WorkingCopyManager) CheckoutAndMerge(ctx context.Context, req MergeRequest) (*models.WorkingCopy, error) {
	if req.SourceRevision == "" && req.SourceBranch == "" {
		return nil, errors.New("merge source must name a revision or a branch")
	}
	targetBranch := req.TargetBranch
	if targetBranch == "" {
		targetBranch = m.cfg.Branch
	}
	if targetBranch == "" || targetBranch == AllBranches {
		return nil, errors.New("merge target must name a branch")
	}

	repo, err := m.syncer.Open(req.Dir)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	if err := repo.Fetch(ctx, gitops.BranchRef(targetBranch), 0); err != nil {
		return nil, err
	}
	target := req.TargetRevision
	if target == "" {
		target = gitops.BranchRef(targetBranch)
	}
	if err := repo.Checkout(target); err != nil {
		return nil, err
	}
	headBefore, err := repo.Head()
	if err != nil {
		return nil, err
	}

	source, err := m.fetchSource(ctx, repo, req)
	if err != nil {
		return nil, err
	}

	result, err := repo.Merge(ctx, source)
	if err != nil {
		return nil, err
	}
	status, err := repo.Status()
	if err != nil {
		return nil, err
	}

	log := m.log.With("target", target, "source", source, "merge", result.Status.String())
	wc := &models.WorkingCopy{
		RepositoryID: m.cfg.RepositoryID,
		Path:         req.Dir,
		Branch:       targetBranch,
	}
	if status.Clean {
		log.Infow("nothing to merge", "head", result.HeadAfter)
		wc.Revision = result.HeadAfter
		wc.Clean = true
		return wc, nil
	}

	log.Infow("merged into working tree", "head", headBefore, "files", len(status.Modified))
	wc.Revision = headBefore
	wc.Merged = true
	return wc, nil
}

// fetchSource makes the merge source available locally and returns the name to merge
func (m *WorkingCopyManager) fetchSource(ctx context.Context, repo *gitops.Repository, req MergeRequest) (string, error) {
	if req.SourceRevision != "" {
		change, err := m.client.QueryChangeByRevision(ctx, req.SourceRevision)
		if err != nil {
			return "", fmt.Errorf("failed to look up revision %s: %w", req.SourceRevision, err)
		}
		switch {
		case change != nil:
			if err := repo.Fetch(ctx, change.CurrentPatchSet.Ref, 0); err != nil {
				return "", err
			}
		case req.SourceBranch != "":
			if err := repo.Fetch(ctx, gitops.BranchRef(req.SourceBranch), 0); err != nil {
				return "", err
			}
		}
		return req.SourceRevision, nil
	}

	if err := repo.Fetch(ctx, gitops.BranchRef(req.SourceBranch), 0); err != nil {
		return "", err
	}
	return gitops.BranchRef(req.SourceBranch), nil
}

// CommitLocal commits everything in the working copy, concluding a pending merge
func (m *WorkingCopyManager) CommitLocal(ctx context.Context, wc models.WorkingCopy, message string) (*models.WorkingCopy, error) {
	repo, err := m.syncer.Open(wc.Path)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	committer := m.cfg.Committer()
	name := committer.Name
	if name == "" {
		name = committer.Username
	}
	revision, err := repo.Commit(message, name, committer.Email)
	if err != nil {
		return nil, err
	}

	m.log.Infow("committed", "revision", revision, "dir", wc.Path)
	wc.Revision = revision
	wc.Clean = true
	wc.Merged = false
	return &wc, nil
}

// UpdateRemote pushes the working copy revision to its branch on the server
func (m *WorkingCopyManager) UpdateRemote(ctx context.Context, wc models.WorkingCopy) (*models.WorkingCopy, error) {
	branch := wc.Branch
	if branch == "" {
		branch = m.cfg.Branch
	}
	ref := gitops.BranchRef(branch)

	repo, err := m.syncer.Open(wc.Path)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	messages, err := repo.Push(ctx, wc.Revision, ref)
	if err != nil {
		return nil, err
	}
	if gitops.HasRemoteError(messages) {
		return nil, &models.GitOperationError{Op: "push", Ref: ref, RemoteMessage: messages,
			Err: errors.New("remote rejected the update")}
	}

	m.log.Infow("remote updated", "revision", wc.Revision, "ref", ref)
	wc.Branch = branch
	return &wc, nil
}
