package gitops

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/ryo246912/gerrit-bridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSynchronizer(remote string) *Synchronizer {
	return NewSynchronizer(remote, nil, zap.NewNop().Sugar())
}

func openRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := newSynchronizer(filepath.Join(t.TempDir(), "upstream")).Open(filepath.Join(t.TempDir(), "work"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func writeFile(t *testing.T, r *Repository, name, content string) {
	t.Helper()
	path := filepath.Join(r.Dir(), name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, r *Repository, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(r.Dir(), name))
	require.NoError(t, err)
	return string(data)
}

func commitFiles(t *testing.T, r *Repository, msg string, files map[string]string) string {
	t.Helper()
	for name, content := range files {
		writeFile(t, r, name, content)
	}
	rev, err := r.Commit(msg, "Tester", "tester@example.com")
	require.NoError(t, err)
	return rev
}

func TestSynchronizer_OpenInitializesAndSetsRemote(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "work")
	s := newSynchronizer("ssh://ci@gerrit.example.com:29418/demo")

	r, err := s.Open(dir)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	remote, err := repo.Remote(RemoteName)
	require.NoError(t, err)
	assert.Equal(t, []string{"ssh://ci@gerrit.example.com:29418/demo"}, remote.Config().URLs)

	moved := newSynchronizer("ssh://ci@gerrit.example.com:29418/other")
	r, err = moved.Open(dir)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	repo, err = git.PlainOpen(dir)
	require.NoError(t, err)
	remote, err = repo.Remote(RemoteName)
	require.NoError(t, err)
	assert.Equal(t, []string{"ssh://ci@gerrit.example.com:29418/other"}, remote.Config().URLs)
}

func TestRepository_CommitAndStatus(t *testing.T) {
	r := openRepo(t)

	first := commitFiles(t, r, "initial", map[string]string{"README.md": "hello\n"})
	head, err := r.Head()
	require.NoError(t, err)
	assert.Equal(t, first, head)

	st, err := r.Status()
	require.NoError(t, err)
	assert.True(t, st.Clean)

	writeFile(t, r, "README.md", "changed\n")
	st, err = r.Status()
	require.NoError(t, err)
	assert.False(t, st.Clean)
	assert.Equal(t, []string{"README.md"}, st.Modified)

	info, err := r.CommitInfo(first)
	require.NoError(t, err)
	assert.Equal(t, "initial", info.Message)
	assert.Equal(t, "Tester", info.Author.Name)
}

func TestRepository_CheckoutDiscardsChanges(t *testing.T) {
	r := openRepo(t)
	first := commitFiles(t, r, "one", map[string]string{"a.txt": "1\n"})
	commitFiles(t, r, "two", map[string]string{"a.txt": "2\n"})

	require.NoError(t, r.Checkout(first))
	assert.Equal(t, "1\n", readFile(t, r, "a.txt"))
	head, err := r.Head()
	require.NoError(t, err)
	assert.Equal(t, first, head)

	err = r.Checkout("does-not-exist")
	var gitErr *models.GitOperationError
	require.True(t, errors.As(err, &gitErr))
	assert.Equal(t, "checkout", gitErr.Op)
}

func TestRepository_MergeAlreadyContained(t *testing.T) {
	r := openRepo(t)
	first := commitFiles(t, r, "one", map[string]string{"a.txt": "1\n"})
	second := commitFiles(t, r, "two", map[string]string{"a.txt": "2\n"})

	res, err := r.Merge(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, MergeAlreadyUpToDate, res.Status)
	assert.Equal(t, second, res.HeadBefore)
	assert.Equal(t, second, res.HeadAfter)

	st, err := r.Status()
	require.NoError(t, err)
	assert.True(t, st.Clean, "no-op merge leaves a clean tree")

	head, err := r.Head()
	require.NoError(t, err)
	assert.Equal(t, second, head)
}

func TestRepository_MergeDivergent(t *testing.T) {
	r := openRepo(t)
	base := commitFiles(t, r, "base", map[string]string{"a.txt": "a\n", "b.txt": "b\n", "gone.txt": "x\n"})

	require.NoError(t, r.Checkout(base))
	writeFile(t, r, "b.txt", "b from source\n")
	writeFile(t, r, "new/c.txt", "c\n")
	require.NoError(t, os.Remove(filepath.Join(r.Dir(), "gone.txt")))
	source, err := r.Commit("source", "Tester", "tester@example.com")
	require.NoError(t, err)

	require.NoError(t, r.Checkout(base))
	target := commitFiles(t, r, "target", map[string]string{"a.txt": "a from target\n"})

	res, err := r.Merge(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, MergeApplied, res.Status)
	assert.Equal(t, base, res.Base)
	assert.ElementsMatch(t, []string{"b.txt", "new/c.txt", "gone.txt"}, res.Files)

	head, err := r.Head()
	require.NoError(t, err)
	assert.Equal(t, target, head, "merge never moves HEAD")

	st, err := r.Status()
	require.NoError(t, err)
	assert.False(t, st.Clean)

	assert.Equal(t, "a from target\n", readFile(t, r, "a.txt"))
	assert.Equal(t, "b from source\n", readFile(t, r, "b.txt"))
	assert.Equal(t, "c\n", readFile(t, r, "new/c.txt"))
	_, err = os.Stat(filepath.Join(r.Dir(), "gone.txt"))
	assert.True(t, os.IsNotExist(err))

	merged, err := r.Commit("Merge source", "Tester", "tester@example.com")
	require.NoError(t, err)

	commit, err := r.repo.CommitObject(plumbing.NewHash(merged))
	require.NoError(t, err)
	require.Len(t, commit.ParentHashes, 2)
	assert.Equal(t, target, commit.ParentHashes[0].String())
	assert.Equal(t, source, commit.ParentHashes[1].String())

	_, err = r.repo.Reference(mergeHeadRef, false)
	assert.ErrorIs(t, err, plumbing.ErrReferenceNotFound, "commit clears the pending merge")
}

func TestRepository_MergeIdenticalChangesIsNoOp(t *testing.T) {
	r := openRepo(t)
	base := commitFiles(t, r, "base", map[string]string{"a.txt": "a\n"})
	source := commitFiles(t, r, "source", map[string]string{"a.txt": "same\n"})
	require.NoError(t, r.Checkout(base))
	target := commitFiles(t, r, "target", map[string]string{"a.txt": "same\n"})

	res, err := r.Merge(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, MergeAlreadyUpToDate, res.Status)
	assert.Equal(t, target, res.HeadAfter)
	assert.Empty(t, res.Files)

	st, err := r.Status()
	require.NoError(t, err)
	assert.True(t, st.Clean)

	_, err = r.repo.Reference(mergeHeadRef, false)
	assert.ErrorIs(t, err, plumbing.ErrReferenceNotFound, "nothing pending for the next commit")
}

func TestRepository_MergeFastForwardIsNotCommitted(t *testing.T) {
	r := openRepo(t)
	first := commitFiles(t, r, "one", map[string]string{"a.txt": "1\n"})
	second := commitFiles(t, r, "two", map[string]string{"a.txt": "2\n"})
	require.NoError(t, r.Checkout(first))

	res, err := r.Merge(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, MergeApplied, res.Status)
	assert.Equal(t, first, res.HeadAfter)
	assert.Equal(t, "2\n", readFile(t, r, "a.txt"))
}

func TestRepository_MergeConflictLeavesTreeUntouched(t *testing.T) {
	r := openRepo(t)
	base := commitFiles(t, r, "base", map[string]string{"a.txt": "a\n", "b.txt": "b\n"})
	source := commitFiles(t, r, "source", map[string]string{"a.txt": "source\n", "b.txt": "b2\n"})
	require.NoError(t, r.Checkout(base))
	commitFiles(t, r, "target", map[string]string{"a.txt": "target\n"})

	_, err := r.Merge(context.Background(), source)
	var gitErr *models.GitOperationError
	require.True(t, errors.As(err, &gitErr))
	assert.Equal(t, "merge", gitErr.Op)
	assert.Contains(t, err.Error(), "a.txt")

	st, err := r.Status()
	require.NoError(t, err)
	assert.True(t, st.Clean)
	assert.Equal(t, "b\n", readFile(t, r, "b.txt"))
}

func TestFetchRefSpec(t *testing.T) {
	tests := []struct {
		ref      string
		expected string
	}{
		{"master", "+refs/heads/master:refs/remotes/origin/master"},
		{"refs/heads/feature/x", "+refs/heads/feature/x:refs/remotes/origin/feature/x"},
		{"refs/changes/34/1234/2", "+refs/changes/34/1234/2:refs/changes/34/1234/2"},
		{"refs/meta/config", "+refs/meta/config:refs/meta/config"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.expected, fetchRefSpec(tt.ref).String())
		})
	}
}

func TestHasRemoteError(t *testing.T) {
	assert.True(t, HasRemoteError("remote: ERROR: missing Change-Id in commit message"))
	assert.False(t, HasRemoteError("remote: Processing changes: refs: 1, done"))
	assert.False(t, HasRemoteError(""))
}

// The tests below talk to a local remote through go-git's file transport, which runs git-upload-pack.
func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func TestRepository_FetchCheckoutPush(t *testing.T) {
	requireGit(t)
	ctx := context.Background()

	upstreamDir := filepath.Join(t.TempDir(), "upstream")
	upstream, err := newSynchronizer("unused").Open(upstreamDir)
	require.NoError(t, err)
	first := commitFiles(t, upstream, "one", map[string]string{"a.txt": "1\n"})
	patch := commitFiles(t, upstream, "patch set", map[string]string{"a.txt": "2\n"})
	require.NoError(t, upstream.repo.Storer.SetReference(
		plumbing.NewHashReference("refs/changes/01/1/1", plumbing.NewHash(patch))))
	require.NoError(t, upstream.repo.Storer.SetReference(
		plumbing.NewHashReference("refs/heads/master", plumbing.NewHash(first))))

	work, err := newSynchronizer(upstreamDir).Open(filepath.Join(t.TempDir(), "work"))
	require.NoError(t, err)

	require.NoError(t, work.Fetch(ctx, "refs/heads/master", 0))
	require.NoError(t, work.Fetch(ctx, "refs/heads/master", 0), "already up to date is not an error")
	require.NoError(t, work.Checkout("refs/heads/master"))
	head, err := work.Head()
	require.NoError(t, err)
	assert.Equal(t, first, head)

	require.NoError(t, work.Fetch(ctx, "refs/changes/01/1/1", 1))
	require.NoError(t, work.Checkout("refs/changes/01/1/1"))
	assert.Equal(t, "2\n", readFile(t, work, "a.txt"))

	branches, err := work.RemoteBranches(ctx)
	require.NoError(t, err)
	assert.Contains(t, branches, "master")

	remoteHead, err := work.RemoteHead(ctx, "master")
	require.NoError(t, err)
	assert.Equal(t, first, remoteHead)

	require.NoError(t, work.Checkout(first))
	pushed := commitFiles(t, work, "integrated", map[string]string{"b.txt": "b\n"})
	_, err = work.Push(ctx, pushed, "refs/heads/integration")
	require.NoError(t, err)

	ref, err := upstream.repo.Reference("refs/heads/integration", false)
	require.NoError(t, err)
	assert.Equal(t, pushed, ref.Hash().String())

	_, err = work.repo.Reference(pushTempRef, false)
	assert.ErrorIs(t, err, plumbing.ErrReferenceNotFound)
}

func TestRepository_FetchMissingRef(t *testing.T) {
	requireGit(t)

	upstreamDir := filepath.Join(t.TempDir(), "upstream")
	upstream, err := newSynchronizer("unused").Open(upstreamDir)
	require.NoError(t, err)
	commitFiles(t, upstream, "one", map[string]string{"a.txt": "1\n"})

	work, err := newSynchronizer(upstreamDir).Open(filepath.Join(t.TempDir(), "work"))
	require.NoError(t, err)

	err = work.Fetch(context.Background(), "refs/changes/99/99/1", 0)
	var gitErr *models.GitOperationError
	require.True(t, errors.As(err, &gitErr))
	assert.Equal(t, "fetch", gitErr.Op)
}
