package gitops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/ryo246912/gerrit-bridge/internal/models"
	"go.uber.org/zap"
)

// Repository is an open working copy
type Repository struct {
	repo *git.Repository
	dir  string
	auth transport.AuthMethod
	log  *zap.SugaredLogger
}

// Status summarizes the working tree
type Status struct {
	Clean    bool
	Modified []string
}

// Dir returns the working copy path
func (r *Repository) Dir() string {
	return r.dir
}

// Close releases the handle. The on-disk repository is left in place.
func (r *Repository) Close() error {
	r.repo = nil
	return nil
}

// Fetch fetches one ref from origin. depth > 0 makes the fetch shallow.
func (r *Repository) Fetch(ctx context.Context, ref string, depth int) error {
	spec := fetchRefSpec(ref)
	r.log.Debugw("fetching", "refspec", spec, "depth", depth)

	var progress bytes.Buffer
	err := r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: RemoteName,
		RefSpecs:   []config.RefSpec{spec},
		Depth:      depth,
		Auth:       r.auth,
		Progress:   &progress,
		Tags:       git.NoTags,
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return &models.GitOperationError{Op: "fetch", Ref: ref, RemoteMessage: strings.TrimSpace(progress.String()), Err: err}
	}
	return nil
}

// Checkout forces a detached checkout of a ref name or revision and drops any pending merge
func (r *Repository) Checkout(ref string) error {
	hash, err := r.resolve(ref)
	if err != nil {
		return &models.GitOperationError{Op: "checkout", Ref: ref, Err: err}
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return &models.GitOperationError{Op: "checkout", Ref: ref, Err: err}
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return &models.GitOperationError{Op: "checkout", Ref: ref, Err: err}
	}
	if err := r.clearMergeHead(); err != nil {
		return &models.GitOperationError{Op: "checkout", Ref: ref, Err: err}
	}
	r.log.Debugw("checked out", "ref", ref, "revision", hash.String())
	return nil
}

// Head returns the revision HEAD points at
func (r *Repository) Head() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", &models.GitOperationError{Op: "rev-parse", Ref: "HEAD", Err: err}
	}
	return head.Hash().String(), nil
}

// ResolveRevision resolves a ref name or (abbreviated) revision to a full revision id
func (r *Repository) ResolveRevision(rev string) (string, error) {
	hash, err := r.resolve(rev)
	if err != nil {
		return "", &models.GitOperationError{Op: "rev-parse", Ref: rev, Err: err}
	}
	return hash.String(), nil
}

// Status reports whether the working tree matches HEAD
func (r *Repository) Status() (Status, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return Status{}, &models.GitOperationError{Op: "status", Err: err}
	}
	st, err := wt.Status()
	if err != nil {
		return Status{}, &models.GitOperationError{Op: "status", Err: err}
	}

	var modified []string
	for path, fs := range st {
		if fs.Staging != git.Unmodified || fs.Worktree != git.Unmodified {
			modified = append(modified, path)
		}
	}
	sort.Strings(modified)
	return Status{Clean: len(modified) == 0, Modified: modified}, nil
}

// Commit stages everything and commits it. A pending merge becomes the second parent.
func (r *Repository) Commit(message, name, email string) (string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return "", &models.GitOperationError{Op: "commit", Err: err}
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", &models.GitOperationError{Op: "commit", Err: fmt.Errorf("failed to stage changes: %w", err)}
	}

	sig := &object.Signature{Name: name, Email: email, When: now()}
	opts := &git.CommitOptions{Author: sig, Committer: sig}

	mergeHead, err := r.repo.Reference(mergeHeadRef, false)
	if err == nil {
		head, err := r.repo.Head()
		if err != nil {
			return "", &models.GitOperationError{Op: "commit", Err: err}
		}
		opts.Parents = []plumbing.Hash{head.Hash(), mergeHead.Hash()}
		opts.AllowEmptyCommits = true
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", &models.GitOperationError{Op: "commit", Err: err}
	}

	hash, err := wt.Commit(message, opts)
	if err != nil {
		return "", &models.GitOperationError{Op: "commit", Err: err}
	}
	if err := r.clearMergeHead(); err != nil {
		return "", &models.GitOperationError{Op: "commit", Err: err}
	}
	r.log.Infow("committed", "revision", hash.String(), "parents", len(opts.Parents))
	return hash.String(), nil
}

// Push pushes revision to remoteRef on origin and returns the remote's messages verbatim
func (r *Repository) Push(ctx context.Context, revision, remoteRef string) (string, error) {
	hash, err := r.resolve(revision)
	if err != nil {
		return "", &models.GitOperationError{Op: "push", Ref: remoteRef, Err: err}
	}

	// push sources must be refs, so park the revision under a private ref
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(pushTempRef, hash)); err != nil {
		return "", &models.GitOperationError{Op: "push", Ref: remoteRef, Err: err}
	}
	defer func() {
		_ = r.repo.Storer.RemoveReference(pushTempRef)
	}()

	var progress bytes.Buffer
	err = r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: RemoteName,
		RefSpecs:   []config.RefSpec{config.RefSpec(fmt.Sprintf("%s:%s", pushTempRef, remoteRef))},
		Auth:       r.auth,
		Progress:   &progress,
	})
	messages := strings.TrimSpace(progress.String())
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return messages, &models.GitOperationError{Op: "push", Ref: remoteRef, RemoteMessage: messages, Err: err}
	}
	r.log.Infow("pushed", "revision", hash.String(), "ref", remoteRef)
	return messages, nil
}

// RemoteBranches lists the branch names on origin
func (r *Repository) RemoteBranches(ctx context.Context) ([]string, error) {
	refs, err := r.listRemote(ctx)
	if err != nil {
		return nil, err
	}
	var branches []string
	for _, ref := range refs {
		if ref.Name().IsBranch() {
			branches = append(branches, ref.Name().Short())
		}
	}
	sort.Strings(branches)
	return branches, nil
}

// RemoteHead returns the revision a branch points at on origin
func (r *Repository) RemoteHead(ctx context.Context, branch string) (string, error) {
	refs, err := r.listRemote(ctx)
	if err != nil {
		return "", err
	}
	want := plumbing.ReferenceName(BranchRef(branch))
	for _, ref := range refs {
		if ref.Name() == want {
			return ref.Hash().String(), nil
		}
	}
	return "", &models.GitOperationError{Op: "ls-remote", Ref: string(want), Err: plumbing.ErrReferenceNotFound}
}

// CommitInfo reads author, date and message of a revision
func (r *Repository) CommitInfo(rev string) (models.CommitInfo, error) {
	hash, err := r.resolve(rev)
	if err != nil {
		return models.CommitInfo{}, &models.GitOperationError{Op: "log", Ref: rev, Err: err}
	}
	c, err := r.repo.CommitObject(hash)
	if err != nil {
		return models.CommitInfo{}, &models.GitOperationError{Op: "log", Ref: rev, Err: err}
	}
	return models.CommitInfo{
		Hash:    c.Hash.String(),
		Message: strings.TrimSpace(c.Message),
		Author:  models.Identity{Name: c.Author.Name, Email: c.Author.Email},
		When:    c.Author.When,
	}, nil
}

func (r *Repository) listRemote(ctx context.Context) ([]*plumbing.Reference, error) {
	remote, err := r.repo.Remote(RemoteName)
	if err != nil {
		return nil, &models.GitOperationError{Op: "ls-remote", Err: err}
	}
	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: r.auth})
	if err != nil {
		return nil, &models.GitOperationError{Op: "ls-remote", Err: err}
	}
	return refs, nil
}

// resolve prefers the remote-tracking ref for branch names since fetches only update those
func (r *Repository) resolve(rev string) (plumbing.Hash, error) {
	candidates := []string{rev}
	if branch, ok := strings.CutPrefix(rev, "refs/heads/"); ok {
		candidates = []string{string(remoteTrackingRef(branch)), rev}
	}
	var lastErr error
	for _, c := range candidates {
		hash, err := r.repo.ResolveRevision(plumbing.Revision(c))
		if err == nil {
			return *hash, nil
		}
		lastErr = err
	}
	return plumbing.ZeroHash, fmt.Errorf("cannot resolve %s: %w", rev, lastErr)
}

func (r *Repository) clearMergeHead() error {
	err := r.repo.Storer.RemoveReference(mergeHeadRef)
	if err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return err
	}
	return nil
}
