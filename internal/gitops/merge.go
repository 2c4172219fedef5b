package gitops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
	"github.com/ryo246912/gerrit-bridge/internal/models"
)

var now = time.Now

// MergeStatus tells whether a merge changed the working tree
type MergeStatus int

const (
	// MergeAlreadyUpToDate means the source is already contained in HEAD
	MergeAlreadyUpToDate MergeStatus = iota
	// MergeApplied means the source's changes were written to the tree and staged, uncommitted
	MergeApplied
)

func (s MergeStatus) String() string {
	if s == MergeApplied {
		return "applied"
	}
	return "already-up-to-date"
}

// MergeResult describes the outcome of Merge
type MergeResult struct {
	Status     MergeStatus
	HeadBefore string
	HeadAfter  string
	Base       string
	Files      []string
}

// Merge integrates source into the working tree without committing.
// HEAD never moves; a pending merge is recorded so the next Commit gets two parents.
// Paths changed on both sides in different ways abort the merge before the tree is touched.
func (r *Repository) Merge(ctx context.Context, source string) (MergeResult, error) {
	fail := func(err error) (MergeResult, error) {
		return MergeResult{}, &models.GitOperationError{Op: "merge", Ref: source, Err: err}
	}

	head, err := r.repo.Head()
	if err != nil {
		return fail(err)
	}
	headCommit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return fail(err)
	}
	srcHash, err := r.resolve(source)
	if err != nil {
		return fail(err)
	}
	srcCommit, err := r.repo.CommitObject(srcHash)
	if err != nil {
		return fail(err)
	}

	result := MergeResult{
		Status:     MergeAlreadyUpToDate,
		HeadBefore: head.Hash().String(),
		HeadAfter:  head.Hash().String(),
	}

	if srcHash == head.Hash() {
		return result, nil
	}
	contained, err := srcCommit.IsAncestor(headCommit)
	if err != nil {
		return fail(err)
	}
	if contained {
		r.log.Debugw("merge source already contained", "source", srcHash.String())
		return result, nil
	}

	bases, err := headCommit.MergeBase(srcCommit)
	if err != nil {
		return fail(err)
	}
	if len(bases) == 0 {
		return fail(errors.New("refusing to merge unrelated histories"))
	}
	base := bases[0]
	result.Base = base.Hash.String()

	baseTree, err := base.Tree()
	if err != nil {
		return fail(err)
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return fail(err)
	}
	srcTree, err := srcCommit.Tree()
	if err != nil {
		return fail(err)
	}

	ours, err := object.DiffTreeWithOptions(ctx, baseTree, headTree, nil)
	if err != nil {
		return fail(err)
	}
	theirs, err := object.DiffTreeWithOptions(ctx, baseTree, srcTree, nil)
	if err != nil {
		return fail(err)
	}

	ourChanges := make(map[string]*object.Change, len(ours))
	for _, ch := range ours {
		ourChanges[changePath(ch)] = ch
	}

	var apply []*object.Change
	var conflicts []string
	for _, ch := range theirs {
		path := changePath(ch)
		if o, ok := ourChanges[path]; ok {
			if sameResult(o, ch) {
				continue
			}
			conflicts = append(conflicts, path)
			continue
		}
		apply = append(apply, ch)
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return fail(fmt.Errorf("conflicting changes in %s", strings.Join(conflicts, ", ")))
	}

	if len(apply) == 0 {
		r.log.Debugw("merge source brings no new changes", "source", srcHash.String(), "base", result.Base)
		return result, nil
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return fail(err)
	}
	for _, ch := range apply {
		if err := r.applyChange(wt, srcTree, ch); err != nil {
			return fail(err)
		}
		result.Files = append(result.Files, changePath(ch))
	}

	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(mergeHeadRef, srcHash)); err != nil {
		return fail(err)
	}

	result.Status = MergeApplied
	r.log.Infow("merged without commit",
		"source", srcHash.String(),
		"base", result.Base,
		"files", len(result.Files),
	)
	return result, nil
}

func (r *Repository) applyChange(wt *git.Worktree, srcTree *object.Tree, ch *object.Change) error {
	action, err := ch.Action()
	if err != nil {
		return err
	}

	if action == merkletrie.Delete {
		if _, err := wt.Remove(ch.From.Name); err != nil {
			return fmt.Errorf("failed to remove %s: %w", ch.From.Name, err)
		}
		return nil
	}

	path := ch.To.Name
	f, err := srcTree.File(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	contents, err := f.Contents()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	target := filepath.Join(r.dir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	switch f.Mode {
	case filemode.Symlink:
		_ = os.Remove(target)
		if err := os.Symlink(contents, target); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	default:
		perm := os.FileMode(0o644)
		if f.Mode == filemode.Executable {
			perm = 0o755
		}
		if err := os.WriteFile(target, []byte(contents), perm); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		if err := os.Chmod(target, perm); err != nil {
			return err
		}
	}

	if _, err := wt.Add(path); err != nil {
		return fmt.Errorf("failed to stage %s: %w", path, err)
	}
	return nil
}

func changePath(ch *object.Change) string {
	if ch.To.Name != "" {
		return ch.To.Name
	}
	return ch.From.Name
}

// sameResult reports whether both sides ended up with the same content at the same path
func sameResult(a, b *object.Change) bool {
	return a.To.Name == b.To.Name &&
		a.To.TreeEntry.Hash == b.To.TreeEntry.Hash &&
		a.To.TreeEntry.Mode == b.To.TreeEntry.Mode
}
